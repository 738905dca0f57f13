package notify

import (
	"context"
	"time"

	"nfviz.dev/core/status"
)

// Run describes one orchestrator run session.
type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	// completed, aborted or superseded; empty while the run is active
	Outcome string
}

type StepResult struct {
	RunID    string
	Step     string
	Phase    string
	Status   status.Status
	Duration time.Duration
	Aborted  bool
}

type Notifier interface {
	RunStarted(ctx context.Context, run Run)
	StepFinished(ctx context.Context, res StepResult)
	MonitoringStarted(ctx context.Context, run Run)
	PipelineCompleted(ctx context.Context, run Run)
	RunFinished(ctx context.Context, run Run)
}

// BaseNotifier is a listener that does nothing
type BaseNotifier struct{}

var _ Notifier = &BaseNotifier{}

func (m *BaseNotifier) RunStarted(ctx context.Context, run Run)          {}
func (m *BaseNotifier) StepFinished(ctx context.Context, res StepResult) {}
func (m *BaseNotifier) MonitoringStarted(ctx context.Context, run Run)   {}
func (m *BaseNotifier) PipelineCompleted(ctx context.Context, run Run)   {}
func (m *BaseNotifier) RunFinished(ctx context.Context, run Run)         {}
