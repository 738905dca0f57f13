package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	r, err := New([]Step{{ID: "a"}, {ID: "b", Needs: []string{"a"}}})
	require.NoError(t, err)

	a, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", a.Label)
	assert.Equal(t, PhaseSetup, a.Phase)
	assert.Equal(t, []string{"a"}, r.Roots())
	assert.Equal(t, []string{"b"}, r.Successors("a"))
	assert.Equal(t, []Edge{{From: "a", To: "b"}}, r.Edges())
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		err   error
	}{
		{"duplicate", []Step{{ID: "a"}, {ID: "a"}}, ErrDuplicateStep},
		{"unknown dependency", []Step{{ID: "a", Needs: []string{"x"}}}, ErrUnknownStep},
		{"self loop", []Step{{ID: "a", Needs: []string{"a"}}}, ErrCycle},
		{"cycle", []Step{
			{ID: "root"},
			{ID: "a", Needs: []string{"root", "c"}},
			{ID: "b", Needs: []string{"a"}},
			{ID: "c", Needs: []string{"b"}},
		}, ErrCycle},
		{"empty id", []Step{{Label: "nameless"}}, ErrUnknownStep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.steps)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTopoOrder(t *testing.T) {
	r, err := New([]Step{
		{ID: "results", Needs: []string{"x", "y"}},
		{ID: "x", Needs: []string{"setup"}},
		{ID: "y", Needs: []string{"setup"}},
		{ID: "setup"},
	})
	require.NoError(t, err)

	order, err := r.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"setup", "x", "y", "results"}, order)
}

func TestStepsAreCopies(t *testing.T) {
	r, err := New([]Step{{ID: "a"}, {ID: "b", Needs: []string{"a"}}})
	require.NoError(t, err)

	steps := r.Steps()
	steps[1].Needs[0] = "mutated"

	assert.Equal(t, []string{"a"}, r.Predecessors("b"))
}

func TestDefault(t *testing.T) {
	r, plan := Default()

	assert.Len(t, r.Steps(), 11)
	assert.Equal(t, []string{"enable-apis"}, r.Roots())
	assert.ElementsMatch(t, []string{"fastqc", "quant"}, r.Predecessors("multiqc"))
	require.NotNil(t, plan.Handoff)
	assert.Equal(t, "write-config", plan.Handoff.Step)
	assert.NoError(t, plan.Validate(r))
}

func TestPlanValidate(t *testing.T) {
	r, err := New([]Step{{ID: "a"}, {ID: "b", Needs: []string{"a"}}, {ID: "c", Needs: []string{"b"}}})
	require.NoError(t, err)

	tests := []struct {
		name string
		plan Plan
		ok   bool
	}{
		{"sequential", Plan{Phases: []PlanPhase{{Mode: ModeSequential, Steps: []string{"a", "b", "c"}}}}, true},
		{"unknown mode", Plan{Phases: []PlanPhase{{Mode: "random", Steps: []string{"a"}}}}, false},
		{"empty phase", Plan{Phases: []PlanPhase{{Mode: ModeParallel}}}, false},
		{"unknown step", Plan{Phases: []PlanPhase{{Mode: ModeSequential, Steps: []string{"z"}}}}, false},
		{"twice", Plan{Phases: []PlanPhase{
			{Mode: ModeSequential, Steps: []string{"a"}},
			{Mode: ModeParallel, Steps: []string{"a", "b"}},
		}}, false},
		{"handoff also streamed", Plan{
			Phases:  []PlanPhase{{Mode: ModeSequential, Steps: []string{"a"}}},
			Handoff: &Handoff{Step: "a"},
		}, false},
		{"composite is task", Plan{
			Phases:  []PlanPhase{{Mode: ModeSequential, Steps: []string{"a"}}},
			Handoff: &Handoff{Step: "b", Tasks: []string{"c"}, Composite: "c"},
		}, false},
		{"handoff", Plan{
			Phases:  []PlanPhase{{Mode: ModeSequential, Steps: []string{"a"}}},
			Handoff: &Handoff{Step: "b", Await: []string{"c"}, Tasks: []string{"c"}},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate(r)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPlan)
			}
		})
	}
}
