package posthog

import (
	"context"

	"github.com/posthog/posthog-go"

	"nfviz.dev/core/log"
	"nfviz.dev/core/notify"
)

type posthogNotifier struct {
	client posthog.Client
	// identifies this installation; posthog needs a distinct id per event
	distinctID string
	notify.BaseNotifier
}

func NewPosthogNotifier(client posthog.Client, distinctID string) notify.Notifier {
	return &posthogNotifier{
		client,
		distinctID,
		notify.BaseNotifier{},
	}
}

var _ notify.Notifier = &posthogNotifier{}

func (n *posthogNotifier) enqueue(ctx context.Context, event string, props posthog.Properties) {
	err := n.client.Enqueue(posthog.Capture{
		DistinctId: n.distinctID,
		Event:      event,
		Properties: props,
	})
	if err != nil {
		log.FromContext(ctx).Error("failed to enqueue posthog event", "event", event, "err", err)
	}
}

func (n *posthogNotifier) RunStarted(ctx context.Context, run notify.Run) {
	n.enqueue(ctx, "run_started", posthog.Properties{"run_id": run.ID})
}

func (n *posthogNotifier) StepFinished(ctx context.Context, res notify.StepResult) {
	n.enqueue(ctx, "step_finished", posthog.Properties{
		"run_id":      res.RunID,
		"step":        res.Step,
		"phase":       res.Phase,
		"status":      res.Status.String(),
		"aborted":     res.Aborted,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

func (n *posthogNotifier) MonitoringStarted(ctx context.Context, run notify.Run) {
	n.enqueue(ctx, "monitoring_started", posthog.Properties{"run_id": run.ID})
}

func (n *posthogNotifier) PipelineCompleted(ctx context.Context, run notify.Run) {
	n.enqueue(ctx, "pipeline_completed", posthog.Properties{"run_id": run.ID})
}

func (n *posthogNotifier) RunFinished(ctx context.Context, run notify.Run) {
	n.enqueue(ctx, "run_finished", posthog.Properties{
		"run_id":      run.ID,
		"outcome":     run.Outcome,
		"duration_ms": run.Finished.Sub(run.Started).Milliseconds(),
	})
}
