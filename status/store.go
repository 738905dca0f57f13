package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nfviz.dev/core/log"
	"nfviz.dev/core/notifier"
)

// followBatch bounds how many changes Follow reads from the journal at once.
const followBatch = 256

// Store is the single writer of step state. One goroutine owns the state
// and applies mutations in the order they are received; every other
// component talks to it through its methods, which block until the
// mutation has been applied.
//
// Transitions are not validated: the latest write wins, so a late
// "running" after "complete" moves the step back to running.
type Store struct {
	mailbox chan func()
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// owned by the actor goroutine
	steps map[string]StepState
	seq   uint64

	journal Journal
	n       *notifier.Notifier
	l       *slog.Logger
	now     func() time.Time
}

type Option func(*Store)

func WithJournal(j Journal) Option {
	return func(s *Store) {
		s.journal = j
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.l = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithSteps seeds the store with pending steps. Seeding is not a mutation
// and produces no change.
func WithSteps(ids ...string) Option {
	return func(s *Store) {
		for _, id := range ids {
			if _, ok := s.steps[id]; !ok {
				s.steps[id] = StepState{Status: StatusPending}
			}
		}
	}
}

// NewStore starts the store. If the journal already holds changes they are
// replayed first, so a store backed by a persistent journal resumes where
// it left off.
func NewStore(ctx context.Context, opts ...Option) *Store {
	s := &Store{
		mailbox: make(chan func()),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		steps:   make(map[string]StepState),
		n:       notifier.New(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.journal == nil {
		s.journal = NewMemoryJournal()
	}
	if s.l == nil {
		s.l = log.FromContext(ctx).With("component", "status")
	}

	s.replay(ctx)

	go s.loop()
	return s
}

func (s *Store) replay(ctx context.Context) {
	changes, err := s.journal.Since(ctx, 0, 0)
	if err != nil {
		s.l.Error("failed to replay journal", "err", err)
		return
	}
	for _, c := range changes {
		s.apply(c)
	}
	if len(changes) > 0 {
		s.l.Info("replayed journal", "changes", len(changes), "seq", s.seq)
	}
}

func (s *Store) loop() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.mailbox:
			fn()
		case <-s.quit:
			return
		}
	}
}

// Close stops the actor. Mutations after Close are dropped.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.quit)
	})
	<-s.stopped
}

// do runs fn on the actor goroutine and waits for it. It reports false if
// the store is closed.
func (s *Store) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.mailbox <- func() {
		defer close(done)
		fn()
	}:
	case <-s.stopped:
		return false
	}
	<-done
	return true
}

// Update applies a batch of mutations atomically: no other mutation and no
// snapshot is interleaved with fn. fn must not call back into the store.
func (s *Store) Update(fn func(tx *Tx)) {
	s.do(func() {
		tx := &Tx{s: s}
		fn(tx)
		s.commit(tx.changes)
	})
}

func (s *Store) SetStatus(id string, st Status) {
	s.Update(func(tx *Tx) { tx.SetStatus(id, st) })
}

func (s *Store) AppendLog(id string, e LogEntry) {
	s.Update(func(tx *Tx) { tx.AppendLog(id, e) })
}

func (s *Store) SetURL(id, url string) {
	s.Update(func(tx *Tx) { tx.SetURL(id, url) })
}

// Log appends a log line stamped with the store's clock.
func (s *Store) Log(id string, kind LogKind, message string) {
	s.AppendLog(id, NewLogEntry(s.now(), kind, message))
}

func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	if !s.do(func() { snap = s.snapshot() }) {
		// the actor is gone, nothing writes anymore
		snap = s.snapshot()
	}
	return snap
}

func (s *Store) snapshot() Snapshot {
	snap := Snapshot{
		Seq:   s.seq,
		Steps: make(map[string]StepState, len(s.steps)),
	}
	for id, st := range s.steps {
		snap.Steps[id] = st.clone()
	}
	return snap
}

func (s *Store) Changes(ctx context.Context, cursor uint64, limit int) ([]Change, error) {
	return s.journal.Since(ctx, cursor, limit)
}

func (s *Store) Subscribe() chan struct{} {
	return s.n.Subscribe()
}

func (s *Store) Unsubscribe(ch chan struct{}) {
	s.n.Unsubscribe(ch)
}

// Follow calls fn for every change after cursor, in order, first draining
// the backlog and then waiting for new ones. It returns when ctx is done or
// fn returns an error.
func (s *Store) Follow(ctx context.Context, cursor uint64, fn func(Change) error) error {
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	for {
		for {
			changes, err := s.Changes(ctx, cursor, followBatch)
			if err != nil {
				return err
			}
			for _, c := range changes {
				if err := fn(c); err != nil {
					return err
				}
				cursor = c.Seq
			}
			if len(changes) < followBatch {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (s *Store) commit(changes []Change) {
	if len(changes) == 0 {
		return
	}
	if err := s.journal.Append(context.Background(), changes...); err != nil {
		s.l.Error("failed to journal changes", "err", err, "count", len(changes))
	}
	s.n.NotifyAll()
}

func (s *Store) record(c Change) Change {
	s.seq++
	c.Seq = s.seq
	c.At = s.now()
	s.apply(c)
	return c
}

func (s *Store) apply(c Change) {
	st, ok := s.steps[c.Step]
	if !ok {
		st = StepState{Status: StatusPending}
	}
	switch c.Kind {
	case ChangeStatus:
		st.Status = c.Status
	case ChangeLog:
		if c.Entry != nil {
			st.Logs = Append(st.Logs, *c.Entry)
		}
	case ChangeURL:
		st.URL = c.URL
	}
	s.steps[c.Step] = st
	if c.Seq > s.seq {
		s.seq = c.Seq
	}
}

// Tx is the view of the store handed to Update. It is only valid inside
// the callback.
type Tx struct {
	s       *Store
	changes []Change
}

// Status returns the recorded status of id; unknown ids are pending.
func (tx *Tx) Status(id string) Status {
	if st, ok := tx.s.steps[id]; ok {
		return st.Status
	}
	return StatusPending
}

func (tx *Tx) LogCount(id string) int {
	return len(tx.s.steps[id].Logs)
}

// SetStatus records st for id. Re-asserting the status a known step
// already has is not a change.
func (tx *Tx) SetStatus(id string, st Status) {
	if cur, ok := tx.s.steps[id]; ok && cur.Status == st {
		return
	}
	tx.changes = append(tx.changes, tx.s.record(Change{Step: id, Kind: ChangeStatus, Status: st}))
}

func (tx *Tx) AppendLog(id string, e LogEntry) {
	tx.changes = append(tx.changes, tx.s.record(Change{Step: id, Kind: ChangeLog, Entry: &e}))
}

func (tx *Tx) Log(id string, kind LogKind, message string) {
	tx.AppendLog(id, NewLogEntry(tx.s.now(), kind, message))
}

func (tx *Tx) SetURL(id, url string) {
	tx.changes = append(tx.changes, tx.s.record(Change{Step: id, Kind: ChangeURL, URL: url}))
}
