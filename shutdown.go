package batdev

import (
	"context"

	"go.uber.org/atomic"
)

// Shutdown is the session-wide cancellation token. It fires at most once;
// the first cause wins and is kept for the rest of the session.
type Shutdown struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	fired  atomic.Bool
}

// NewShutdown derives a token from parent. Cancelling parent also fires it.
func NewShutdown(parent context.Context) *Shutdown {
	ctx, cancel := context.WithCancelCause(parent)
	return &Shutdown{ctx: ctx, cancel: cancel}
}

// Context returns the context both loops observe.
func (s *Shutdown) Context() context.Context {
	return s.ctx
}

// Trigger fires the token with cause. It reports whether this call was the one that fired it.
func (s *Shutdown) Trigger(cause error) bool {
	if !s.fired.CompareAndSwap(false, true) {
		return false
	}
	s.cancel(cause)
	return true
}

// Fired reports whether the token has fired, either through Trigger or
// because the parent context ended.
func (s *Shutdown) Fired() bool {
	return s.fired.Load() || s.ctx.Err() != nil
}

// Done is closed once the token fires.
func (s *Shutdown) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Cause returns why the session ended, or nil while it is still running.
func (s *Shutdown) Cause() error {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}
