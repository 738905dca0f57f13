package registry

import (
	"fmt"
	"slices"
)

// Phase is the backend phase a step belongs to. It is sent along with every
// execution request.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhasePipeline Phase = "pipeline"
)

type Step struct {
	ID    string   `yaml:"id" json:"id"`
	Label string   `yaml:"label" json:"label"`
	Phase Phase    `yaml:"phase" json:"phase"`
	Needs []string `yaml:"needs" json:"needs,omitempty"`
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Registry is the static, validated set of known steps. It is immutable
// once built.
type Registry struct {
	steps []Step
	index map[string]int
	succ  map[string][]string
}

// New validates steps and builds a registry. Step ids must be unique, every
// dependency must refer to a known step and the dependency graph must be
// acyclic. Declaration order is preserved.
func New(steps []Step) (*Registry, error) {
	r := &Registry{
		index: make(map[string]int, len(steps)),
		succ:  make(map[string][]string, len(steps)),
	}

	for _, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrUnknownStep)
		}
		if _, ok := r.index[s.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.ID)
		}
		if s.Label == "" {
			s.Label = s.ID
		}
		if s.Phase == "" {
			s.Phase = PhaseSetup
		}
		s.Needs = slices.Clone(s.Needs)
		r.index[s.ID] = len(r.steps)
		r.steps = append(r.steps, s)
	}

	for _, s := range r.steps {
		for _, dep := range s.Needs {
			if _, ok := r.index[dep]; !ok {
				return nil, fmt.Errorf("%w: %s needs %s", ErrUnknownStep, s.ID, dep)
			}
			if dep == s.ID {
				return nil, fmt.Errorf("%w: %s needs itself", ErrCycle, s.ID)
			}
			r.succ[dep] = append(r.succ[dep], s.ID)
		}
	}

	if _, err := r.TopoOrder(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) Steps() []Step {
	out := make([]Step, len(r.steps))
	for i, s := range r.steps {
		s.Needs = slices.Clone(s.Needs)
		out[i] = s
	}
	return out
}

func (r *Registry) IDs() []string {
	ids := make([]string, len(r.steps))
	for i, s := range r.steps {
		ids[i] = s.ID
	}
	return ids
}

func (r *Registry) Get(id string) (Step, bool) {
	i, ok := r.index[id]
	if !ok {
		return Step{}, false
	}
	s := r.steps[i]
	s.Needs = slices.Clone(s.Needs)
	return s, true
}

func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

func (r *Registry) Predecessors(id string) []string {
	s, _ := r.Get(id)
	return s.Needs
}

func (r *Registry) Successors(id string) []string {
	return slices.Clone(r.succ[id])
}

// Roots returns the steps without declared predecessors.
func (r *Registry) Roots() []string {
	var roots []string
	for _, s := range r.steps {
		if len(s.Needs) == 0 {
			roots = append(roots, s.ID)
		}
	}
	return roots
}

func (r *Registry) Edges() []Edge {
	var edges []Edge
	for _, s := range r.steps {
		for _, dep := range s.Needs {
			edges = append(edges, Edge{From: dep, To: s.ID})
		}
	}
	return edges
}

// TopoOrder returns the step ids in a dependency-respecting order, breaking
// ties by declaration order.
func (r *Registry) TopoOrder() ([]string, error) {
	indegree := make(map[string]int, len(r.steps))
	for _, s := range r.steps {
		indegree[s.ID] = len(s.Needs)
	}

	var (
		order []string
		ready []string
	)
	for _, s := range r.steps {
		if indegree[s.ID] == 0 {
			ready = append(ready, s.ID)
		}
	}

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range r.succ[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(r.steps) {
		var stuck []string
		for _, s := range r.steps {
			if indegree[s.ID] > 0 {
				stuck = append(stuck, s.ID)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
	}

	return order, nil
}
