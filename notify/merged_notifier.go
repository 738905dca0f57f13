package notify

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"nfviz.dev/core/log"
)

type mergedNotifier struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewMergedNotifier(notifiers []Notifier, logger *slog.Logger) Notifier {
	return &mergedNotifier{notifiers, logger}
}

var _ Notifier = &mergedNotifier{}

// fanout calls the same method on all notifiers concurrently
func (m *mergedNotifier) fanout(method string, ctx context.Context, args ...any) {
	ctx = log.IntoContext(ctx, m.logger.With("method", method))
	var wg sync.WaitGroup
	for _, n := range m.notifiers {
		wg.Add(1)
		go func(notifier Notifier) {
			defer wg.Done()
			v := reflect.ValueOf(notifier).MethodByName(method)
			in := make([]reflect.Value, len(args)+1)
			in[0] = reflect.ValueOf(ctx)
			for i, arg := range args {
				in[i+1] = reflect.ValueOf(arg)
			}
			v.Call(in)
		}(n)
	}
	wg.Wait()
}

func (m *mergedNotifier) RunStarted(ctx context.Context, run Run) {
	m.fanout("RunStarted", ctx, run)
}

func (m *mergedNotifier) StepFinished(ctx context.Context, res StepResult) {
	m.fanout("StepFinished", ctx, res)
}

func (m *mergedNotifier) MonitoringStarted(ctx context.Context, run Run) {
	m.fanout("MonitoringStarted", ctx, run)
}

func (m *mergedNotifier) PipelineCompleted(ctx context.Context, run Run) {
	m.fanout("PipelineCompleted", ctx, run)
}

func (m *mergedNotifier) RunFinished(ctx context.Context, run Run) {
	m.fanout("RunFinished", ctx, run)
}
