package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nfviz.dev/core/backend"
	"nfviz.dev/core/log"
	"nfviz.dev/core/registry"
	"nfviz.dev/core/status"
)

// DefaultInterval is how often the backend is polled while monitoring.
const DefaultInterval = 5 * time.Second

// Fetcher returns the aggregate state currently observed by the backend.
type Fetcher interface {
	Status(ctx context.Context) (*backend.Snapshot, error)
}

type Config struct {
	Interval time.Duration
	// steps whose status the backend reports directly
	Tasks []string
	// step inferred from Tasks; empty disables inference
	Composite string
	// step completed once the bucket is reported to exist
	Bucket string
}

// ConfigFromHandoff derives the reconciled step set from a plan handoff.
func ConfigFromHandoff(h *registry.Handoff, interval time.Duration) Config {
	cfg := Config{Interval: interval}
	if h != nil {
		cfg.Tasks = h.Tasks
		cfg.Composite = h.Composite
		cfg.Bucket = h.Bucket
	}
	return cfg
}

// Reconciler periodically folds the backend's observed state into the
// store. Only differences against what the store already records are
// applied, so polling the same state twice changes nothing.
type Reconciler struct {
	store *status.Store
	fetch Fetcher
	reg   *registry.Registry
	cfg   Config
	l     *slog.Logger

	mu   sync.Mutex
	cur  *session
	// most recently started session, kept after it ends for Done
	last *session
}

type session struct {
	live       atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
	once       sync.Once
	onComplete func()
}

func NewReconciler(store *status.Store, fetch Fetcher, reg *registry.Registry, cfg Config, l *slog.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if l == nil {
		l = log.Discard()
	}
	return &Reconciler{
		store: store,
		fetch: fetch,
		reg:   reg,
		cfg:   cfg,
		l:     l,
	}
}

// Start begins a new poll session, replacing any running one. It fetches
// once immediately and then on every interval. onComplete is invoked at
// most once, when the backend reports that everything completed.
func (r *Reconciler) Start(ctx context.Context, onComplete func()) {
	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		cancel:     cancel,
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
	s.live.Store(true)

	r.mu.Lock()
	prev := r.cur
	r.cur = s
	r.last = s
	r.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	r.l.Info("polling started", "interval", r.cfg.Interval)
	go r.loop(ctx, s)
}

// Stop ends the current poll session. It does not wait for an in-flight
// fetch; its result is discarded. Calling Stop when not polling is a no-op.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	s := r.cur
	r.cur = nil
	r.mu.Unlock()

	if s != nil && s.stop() {
		r.l.Info("polling stopped")
	}
}

// Running reports whether a poll session is active.
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil && r.cur.live.Load()
}

// Done is closed when the most recently started poll session's goroutine
// exits. It is nil when no session was ever started.
func (r *Reconciler) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	return r.last.done
}

func (s *session) stop() bool {
	was := s.live.Swap(false)
	s.cancel()
	return was
}

func (r *Reconciler) loop(ctx context.Context, s *session) {
	defer close(s.done)
	defer r.release(s)

	r.tick(ctx, s)

	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.tick(ctx, s)
		}
	}
}

// release marks s as no longer live and forgets it if it is still current.
// A session whose context was cancelled from outside ends up here too.
func (r *Reconciler) release(s *session) {
	s.live.Store(false)
	r.mu.Lock()
	if r.cur == s {
		r.cur = nil
	}
	r.mu.Unlock()
}

func (r *Reconciler) tick(ctx context.Context, s *session) {
	if !s.live.Load() {
		return
	}

	snap, err := r.fetch.Status(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.l.Warn("failed to fetch backend status", "err", err)
		}
		return
	}

	if !r.reconcile(snap, s.live.Load) {
		return
	}

	s.once.Do(func() {
		r.l.Info("backend reports all steps complete")
		s.stop()
		r.release(s)
		if s.onComplete != nil {
			s.onComplete()
		}
	})
}

// Reconcile applies snap to the store and reports whether it marks the
// pipeline as complete.
func (r *Reconciler) Reconcile(snap *backend.Snapshot) bool {
	return r.reconcile(snap, func() bool { return true })
}

func (r *Reconciler) reconcile(snap *backend.Snapshot, live func() bool) bool {
	applied := false
	r.store.Update(func(tx *status.Tx) {
		if !live() {
			return
		}
		applied = true

		if b := r.cfg.Bucket; b != "" && snap.Bucket.Exists && tx.Status(b) != status.StatusComplete {
			msg := "Bucket available"
			if snap.Bucket.Location != "" {
				msg = fmt.Sprintf("Bucket available at %s", snap.Bucket.Location)
			}
			tx.Log(b, status.LogSuccess, msg)
			tx.SetStatus(b, status.StatusComplete)
		}

		anyRunning := snap.PipelineRunning
		for _, id := range r.cfg.Tasks {
			raw, ok := snap.Tasks[id]
			if !ok {
				continue
			}
			st := status.Status(raw)
			if !st.Valid() {
				continue
			}
			if st == status.StatusRunning {
				anyRunning = true
			}
			if tx.Status(id) == st {
				continue
			}
			kind, msg := r.describe(id, st)
			tx.Log(id, kind, msg)
			tx.SetStatus(id, st)
		}

		c := r.cfg.Composite
		if c == "" {
			return
		}
		switch {
		case snap.AllComplete:
			if tx.Status(c) != status.StatusComplete {
				tx.Log(c, status.LogSuccess, "✓ Pipeline completed")
				tx.SetStatus(c, status.StatusComplete)
			}
		case anyRunning:
			if tx.Status(c) != status.StatusRunning {
				tx.Log(c, status.LogInfo, "Pipeline running")
				tx.SetStatus(c, status.StatusRunning)
			}
		}
	})
	return applied && snap.AllComplete
}

func (r *Reconciler) label(id string) string {
	if r.reg != nil {
		if s, ok := r.reg.Get(id); ok {
			return s.Label
		}
	}
	return id
}

func (r *Reconciler) describe(id string, st status.Status) (status.LogKind, string) {
	name := r.label(id)
	switch st {
	case status.StatusRunning:
		return status.LogInfo, name + " started"
	case status.StatusComplete:
		return status.LogSuccess, "✓ " + name + " completed"
	case status.StatusError:
		return status.LogError, "✗ " + name + " failed"
	default:
		return status.LogInfo, name + " pending"
	}
}
