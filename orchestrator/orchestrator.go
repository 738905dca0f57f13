package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nfviz.dev/core/log"
	"nfviz.dev/core/notify"
	"nfviz.dev/core/poll"
	"nfviz.dev/core/registry"
	"nfviz.dev/core/status"
	"nfviz.dev/core/stream"
)

type State string

const (
	StateIdle       State = "idle"
	StateSetup      State = "setup-phase"
	StateHandoff    State = "handoff-phase"
	StateMonitoring State = "monitoring"
	StateStopped    State = "stopped"
)

// Active reports whether a run or a monitoring session is in progress.
func (s State) Active() bool {
	switch s {
	case StateSetup, StateHandoff, StateMonitoring:
		return true
	}
	return false
}

var ErrBusy = errors.New("a run is in progress")

const waitingMessage = "Waiting for external trigger"

// Orchestrator drives the plan: streamed phases first, then the handoff
// step, then polling until the backend reports completion. At most one
// session is live at a time.
type Orchestrator struct {
	ctx    context.Context
	store  *status.Store
	runner *stream.Runner
	poller *poll.Reconciler
	reg    *registry.Registry
	plan   registry.Plan
	n      notify.Notifier
	l      *slog.Logger

	mu    sync.Mutex
	state State
	sess  *stream.Session
	// closed when sess reaches stopped
	done chan struct{}
	// run goroutines, which may still be writing abort logs after done
	runs sync.WaitGroup
}

type Option func(*Orchestrator)

func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) {
		o.n = n
	}
}

// New creates an idle orchestrator. ctx bounds every session it starts.
func New(ctx context.Context, store *status.Store, runner *stream.Runner, poller *poll.Reconciler, reg *registry.Registry, plan registry.Plan, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ctx:    ctx,
		store:  store,
		runner: runner,
		poller: poller,
		reg:    reg,
		plan:   plan,
		n:      &notify.BaseNotifier{},
		l:      log.SubLogger(log.FromContext(ctx), "orchestrator"),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns the current session id and state, or empty values when
// nothing ever ran.
func (o *Orchestrator) Session() (string, stream.SessionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return "", stream.SessionIdle
	}
	return o.sess.ID(), o.sess.State()
}

// begin replaces the current session with a fresh one. The previous
// session is invalidated before anything else happens so none of its
// in-flight requests can write to the store afterwards.
func (o *Orchestrator) begin(state State) *stream.Session {
	sess := stream.NewSession(o.ctx)
	sess.SetState(stream.SessionActive)
	done := make(chan struct{})

	o.mu.Lock()
	prev, prevDone := o.sess, o.done
	o.sess, o.done, o.state = sess, done, state
	o.mu.Unlock()

	if prev != nil {
		prev.Invalidate()
		if prev.State() == stream.SessionActive {
			prev.SetState(stream.SessionAborted)
			close(prevDone)
			o.l.Info("run superseded", "session", prev.ID())
			o.n.RunFinished(context.WithoutCancel(o.ctx), o.runInfo(prev, "superseded"))
		}
	}
	o.poller.Stop()
	return sess
}

// RunAll starts a new run of the whole plan, replacing any active one, and
// returns its session id. It does not wait for the run.
func (o *Orchestrator) RunAll() string {
	sess := o.begin(StateSetup)

	o.l.Info("run started", "session", sess.ID())
	o.n.RunStarted(context.WithoutCancel(o.ctx), o.runInfo(sess, ""))

	o.runs.Add(1)
	go func() {
		defer o.runs.Done()
		o.run(sess)
	}()
	return sess.ID()
}

// Monitor starts polling without running anything, for pipelines that were
// launched elsewhere.
func (o *Orchestrator) Monitor() (string, error) {
	if o.State().Active() {
		return "", ErrBusy
	}

	sess := o.begin(StateMonitoring)
	o.l.Info("monitoring started", "session", sess.ID())
	o.n.RunStarted(context.WithoutCancel(o.ctx), o.runInfo(sess, ""))
	o.n.MonitoringStarted(context.WithoutCancel(o.ctx), o.runInfo(sess, ""))
	o.startPolling(sess)
	return sess.ID(), nil
}

// Stop aborts the active session. In-flight steps record an abort and keep
// their status. Stopping when nothing is active does nothing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	sess, state := o.sess, o.state
	o.mu.Unlock()

	o.poller.Stop()
	if sess == nil || !state.Active() {
		return
	}

	sess.Cancel()
	o.finish(sess, stream.SessionAborted)
}

// Wait blocks until the current session stops or ctx is done. It returns
// immediately when nothing ever ran.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until every run goroutine has returned, so that the last
// writes of a stopped session are in the store.
func (o *Orchestrator) Drain(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		o.runs.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(sess *stream.Session) {
	for _, ph := range o.plan.Phases {
		if !o.runner.RunPhase(sess, ph) {
			o.fail(sess)
			return
		}
	}

	h := o.plan.Handoff
	if h == nil {
		o.finish(sess, stream.SessionCompleted)
		return
	}

	if !o.transition(sess, StateHandoff) {
		return
	}
	step, ok := o.reg.Get(h.Step)
	if !ok {
		step = registry.Step{ID: h.Step, Label: h.Step}
	}
	if !o.runner.RunStep(sess, step) {
		o.fail(sess)
		return
	}

	o.monitor(sess, h)
}

func (o *Orchestrator) monitor(sess *stream.Session, h *registry.Handoff) {
	if !o.transition(sess, StateMonitoring) {
		return
	}

	o.store.Update(func(tx *status.Tx) {
		if !sess.Live() {
			return
		}
		for _, id := range h.Await {
			tx.Log(id, status.LogInfo, waitingMessage)
		}
	})

	o.l.Info("handoff complete, monitoring backend", "session", sess.ID())
	o.n.MonitoringStarted(context.WithoutCancel(o.ctx), o.runInfo(sess, ""))
	o.startPolling(sess)
}

// startPolling starts the reconciler for sess unless sess already stopped.
func (o *Orchestrator) startPolling(sess *stream.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != sess || sess.State() != stream.SessionActive {
		return
	}
	o.poller.Start(sess.Context(), func() { o.pipelineCompleted(sess) })
}

func (o *Orchestrator) pipelineCompleted(sess *stream.Session) {
	o.n.PipelineCompleted(context.WithoutCancel(o.ctx), o.runInfo(sess, ""))
	o.finish(sess, stream.SessionCompleted)
}

// transition moves to state if sess is still the current session.
func (o *Orchestrator) transition(sess *stream.Session, state State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != sess || sess.State() != stream.SessionActive {
		return false
	}
	o.state = state
	return true
}

func (o *Orchestrator) fail(sess *stream.Session) {
	if sess.Err() != nil {
		o.finish(sess, stream.SessionAborted)
		return
	}
	o.finish(sess, stream.SessionFailed)
}

// finish stops sess with the given outcome. Only the first call for a
// session has any effect.
func (o *Orchestrator) finish(sess *stream.Session, outcome stream.SessionState) {
	o.mu.Lock()
	if o.sess != sess || sess.State() != stream.SessionActive {
		o.mu.Unlock()
		return
	}
	sess.SetState(outcome)
	o.state = StateStopped
	close(o.done)
	o.mu.Unlock()

	o.l.Info("run finished", "session", sess.ID(), "outcome", outcome)
	o.n.RunFinished(context.WithoutCancel(o.ctx), o.runInfo(sess, outcome.String()))
}

func (o *Orchestrator) runInfo(sess *stream.Session, outcome string) notify.Run {
	r := notify.Run{
		ID:      sess.ID(),
		Started: sess.Started(),
		Outcome: outcome,
	}
	if outcome != "" {
		r.Finished = time.Now()
	}
	return r
}
