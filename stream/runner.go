package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"nfviz.dev/core/backend"
	"nfviz.dev/core/log"
	"nfviz.dev/core/notify"
	"nfviz.dev/core/registry"
	"nfviz.dev/core/status"
)

const readChunk = 4096

// Executor starts a step on the backend and returns its frame stream.
type Executor interface {
	Execute(ctx context.Context, r backend.ExecuteRequest) (io.ReadCloser, error)
}

// Runner executes steps by streaming them from the backend and folding
// every frame into the store.
type Runner struct {
	store *status.Store
	exec  Executor
	reg   *registry.Registry
	n     notify.Notifier
	l     *slog.Logger
}

type RunnerOpt func(*Runner)

func WithLogger(l *slog.Logger) RunnerOpt {
	return func(r *Runner) {
		r.l = l
	}
}

func WithNotifier(n notify.Notifier) RunnerOpt {
	return func(r *Runner) {
		r.n = n
	}
}

func NewRunner(store *status.Store, exec Executor, reg *registry.Registry, opts ...RunnerOpt) *Runner {
	r := &Runner{
		store: store,
		exec:  exec,
		reg:   reg,
		n:     &notify.BaseNotifier{},
		l:     log.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// mutate applies fn to the store unless sess has been invalidated. The
// check runs inside the store, so a session replaced between the check and
// the write cannot slip a mutation in.
func (r *Runner) mutate(sess *Session, fn func(tx *status.Tx)) {
	r.store.Update(func(tx *status.Tx) {
		if !sess.Live() {
			return
		}
		fn(tx)
	})
}

// RunStep executes one step and reports whether it completed. A step that
// observes cancellation before it starts is not run at all.
func (r *Runner) RunStep(sess *Session, step registry.Step) bool {
	if sess.Err() != nil {
		return false
	}

	l := r.l.With("step", step.ID, "session", sess.ID())
	started := time.Now()

	r.mutate(sess, func(tx *status.Tx) {
		tx.SetStatus(step.ID, status.StatusRunning)
	})
	l.Debug("step started")

	st, err := r.execute(sess, step, l)
	aborted := errors.Is(err, ErrAborted)
	switch {
	case aborted:
		l.Info("step aborted")
		r.mutate(sess, func(tx *status.Tx) {
			tx.Log(step.ID, status.LogInfo, "Aborted")
		})
	case err != nil:
		l.Warn("step failed", "err", err)
		st = status.StatusError
		r.mutate(sess, func(tx *status.Tx) {
			tx.Log(step.ID, status.LogError, err.Error())
			tx.SetStatus(step.ID, status.StatusError)
		})
	default:
		l.Debug("step finished", "status", st)
	}

	if sess.Live() {
		r.n.StepFinished(context.WithoutCancel(sess.Context()), notify.StepResult{
			RunID:    sess.ID(),
			Step:     step.ID,
			Phase:    string(step.Phase),
			Status:   st,
			Duration: time.Since(started),
			Aborted:  aborted,
		})
	}

	return !aborted && st == status.StatusComplete
}

// execute reads the step stream to EOF and returns the last terminal status
// it carried.
func (r *Runner) execute(sess *Session, step registry.Step, l *slog.Logger) (status.Status, error) {
	body, err := r.exec.Execute(sess.Context(), backend.ExecuteRequest{
		StepID: step.ID,
		Phase:  string(step.Phase),
	})
	if err != nil {
		if sess.Err() != nil {
			return "", ErrAborted
		}
		return "", err
	}
	defer body.Close()

	var (
		lb       LineBuffer
		terminal status.Status
		buf      = make([]byte, readChunk)
	)
	for {
		n, rerr := body.Read(buf)
		for _, line := range lb.Feed(buf[:n]) {
			f := ParseFrame(line)
			if f.Kind == FrameNoop {
				continue
			}
			if f.Kind == FrameStep && f.Terminal != "" {
				terminal = f.Terminal
			}
			r.apply(sess, step.ID, f)
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if terminal != "" {
				return terminal, nil
			}
			if sess.Err() != nil {
				return "", ErrAborted
			}
			return "", fmt.Errorf("reading stream: %w", rerr)
		}
	}

	if rest := lb.Pending(); rest != "" {
		l.Debug("discarding partial frame at end of stream", "bytes", len(rest))
	}
	if terminal == "" {
		return "", ErrNoTerminal
	}
	return terminal, nil
}

// apply folds one frame into the store as a single atomic batch.
func (r *Runner) apply(sess *Session, id string, f Frame) {
	r.mutate(sess, func(tx *status.Tx) {
		switch f.Kind {
		case FrameStep:
			if f.URL != "" {
				tx.SetURL(id, f.URL)
			}
			if f.HasLog {
				tx.Log(id, f.LogKind, f.Log)
			}
			switch f.Terminal {
			case status.StatusComplete:
				tx.SetStatus(id, status.StatusComplete)
			case status.StatusError:
				if f.Message != "" {
					tx.Log(id, status.LogError, f.Message)
				} else if !f.HasLog {
					tx.Log(id, status.LogError, "Step failed")
				}
				tx.SetStatus(id, status.StatusError)
			}

		case FrameTaskUpdate:
			if f.Message != "" {
				tx.Log(f.Task, logKindFor(f.TaskStatus), f.Message)
			}
			tx.SetStatus(f.Task, f.TaskStatus)
		}
	})
}

func logKindFor(st status.Status) status.LogKind {
	switch st {
	case status.StatusComplete:
		return status.LogSuccess
	case status.StatusError:
		return status.LogError
	default:
		return status.LogInfo
	}
}

func (r *Runner) resolve(ids []string) []registry.Step {
	steps := make([]registry.Step, 0, len(ids))
	for _, id := range ids {
		s, ok := r.reg.Get(id)
		if !ok {
			s = registry.Step{ID: id, Label: id}
		}
		steps = append(steps, s)
	}
	return steps
}

// RunSequential runs steps one after another and stops at the first one
// that fails or is cancelled.
func (r *Runner) RunSequential(sess *Session, ids []string) bool {
	for _, step := range r.resolve(ids) {
		if sess.Err() != nil {
			return false
		}
		if !r.RunStep(sess, step) {
			return false
		}
	}
	return true
}

// RunParallel starts every step at once and waits for all of them. It
// reports true only if all of them completed.
func (r *Runner) RunParallel(sess *Session, ids []string) bool {
	steps := r.resolve(ids)
	results := make([]bool, len(steps))

	var g errgroup.Group
	for i, step := range steps {
		g.Go(func() error {
			results[i] = r.RunStep(sess, step)
			return nil
		})
	}
	g.Wait()

	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

func (r *Runner) RunPhase(sess *Session, ph registry.PlanPhase) bool {
	r.l.Info("running phase", "phase", ph.Name, "mode", ph.Mode, "steps", len(ph.Steps), "session", sess.ID())
	if ph.Mode == registry.ModeParallel {
		return r.RunParallel(sess, ph.Steps)
	}
	return r.RunSequential(sess, ph.Steps)
}
