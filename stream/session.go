package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionActive
	SessionCompleted
	SessionFailed
	SessionAborted
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionCompleted:
		return "completed"
	case SessionFailed:
		return "failed"
	case SessionAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Session is one run of the plan. All in-flight requests of a run share its
// context, so cancelling the session aborts every step at once.
//
// A session stays live after Cancel so that abort logs still land; only
// Invalidate, used when a newer run replaces it, turns its writes off.
type Session struct {
	id      string
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	live    atomic.Bool
	state   atomic.Int32
}

func NewSession(parent context.Context) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:      uuid.NewString(),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.live.Store(true)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Started() time.Time {
	return s.started
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Err() error {
	return s.ctx.Err()
}

func (s *Session) Live() bool {
	return s.live.Load()
}

// Cancel aborts the session's in-flight requests.
func (s *Session) Cancel() {
	s.cancel()
}

// Invalidate cancels the session and drops every mutation it attempts
// from now on.
func (s *Session) Invalidate() {
	s.live.Store(false)
	s.cancel()
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) SetState(st SessionState) {
	s.state.Store(int32(st))
}
