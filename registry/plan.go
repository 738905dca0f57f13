package registry

import (
	"fmt"
	"slices"
)

type Mode string

const (
	// steps run strictly one after another, stopping at the first failure
	ModeSequential Mode = "sequential"
	// steps are started together and the phase waits for all of them
	ModeParallel Mode = "parallel"
)

type PlanPhase struct {
	Name  string   `yaml:"name" json:"name,omitempty"`
	Mode  Mode     `yaml:"mode" json:"mode"`
	Steps []string `yaml:"steps" json:"steps"`
}

// Handoff describes the point where the client stops triggering steps
// itself. Step is streamed like any other step; once it succeeds the steps
// listed in Await are expected to be triggered externally and are only
// observed by polling.
type Handoff struct {
	Step string `yaml:"step" json:"step"`
	// steps that receive a "waiting" log when monitoring begins
	Await []string `yaml:"await" json:"await,omitempty"`
	// steps whose status is reported directly by the polling backend
	Tasks []string `yaml:"tasks" json:"tasks,omitempty"`
	// umbrella step inferred from Tasks, with no direct external signal
	Composite string `yaml:"composite" json:"composite,omitempty"`
	// step completed once the polling backend reports the bucket exists
	Bucket string `yaml:"bucket" json:"bucket,omitempty"`
}

type Plan struct {
	Phases  []PlanPhase `yaml:"phases" json:"phases"`
	Handoff *Handoff    `yaml:"handoff" json:"handoff,omitempty"`
}

// Validate checks the plan against the registry: every referenced step must
// exist and no step may be streamed twice.
func (p Plan) Validate(r *Registry) error {
	seen := make(map[string]struct{})
	use := func(where, id string) error {
		if !r.Has(id) {
			return fmt.Errorf("%w: %s refers to %w %q", ErrInvalidPlan, where, ErrUnknownStep, id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: step %q is executed more than once", ErrInvalidPlan, id)
		}
		seen[id] = struct{}{}
		return nil
	}

	for i, ph := range p.Phases {
		switch ph.Mode {
		case ModeSequential, ModeParallel:
		default:
			return fmt.Errorf("%w: phase %d has unknown mode %q", ErrInvalidPlan, i, ph.Mode)
		}
		if len(ph.Steps) == 0 {
			return fmt.Errorf("%w: phase %d is empty", ErrInvalidPlan, i)
		}
		for _, id := range ph.Steps {
			if err := use(fmt.Sprintf("phase %d", i), id); err != nil {
				return err
			}
		}
	}

	h := p.Handoff
	if h == nil {
		return nil
	}
	if err := use("handoff", h.Step); err != nil {
		return err
	}

	refs := slices.Concat(h.Await, h.Tasks)
	if h.Composite != "" {
		refs = append(refs, h.Composite)
	}
	if h.Bucket != "" {
		refs = append(refs, h.Bucket)
	}
	for _, id := range refs {
		if !r.Has(id) {
			return fmt.Errorf("%w: handoff refers to %w %q", ErrInvalidPlan, ErrUnknownStep, id)
		}
	}
	if slices.Contains(h.Tasks, h.Composite) {
		return fmt.Errorf("%w: composite step %q cannot also be a polled task", ErrInvalidPlan, h.Composite)
	}

	return nil
}

// Streamed returns every step the client triggers itself, in plan order.
func (p Plan) Streamed() []string {
	var ids []string
	for _, ph := range p.Phases {
		ids = append(ids, ph.Steps...)
	}
	if p.Handoff != nil {
		ids = append(ids, p.Handoff.Step)
	}
	return ids
}
