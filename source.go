package batdev

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	readChunkSize   = 256
	idleInitialWait = time.Millisecond
	idleMaxWait     = 20 * time.Millisecond
)

// byteSource hands out link bytes one at a time. When the link has nothing
// to offer it backs off exponentially instead of spinning, and every wait
// observes ctx.
type byteSource struct {
	r      LinkReader
	buf    []byte
	pos    int
	end    int
	idle   *backoff.ExponentialBackOff
	onIdle func()
}

func newByteSource(r LinkReader, onIdle func()) *byteSource {
	return &byteSource{
		r:      r,
		buf:    make([]byte, readChunkSize),
		idle:   idleBackoff(),
		onIdle: onIdle,
	}
}

func idleBackoff() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(idleInitialWait),
		backoff.WithMaxInterval(idleMaxWait),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
}

// buffered returns the number of bytes already read from the link but not yet consumed.
func (s *byteSource) buffered() int {
	return s.end - s.pos
}

// next returns the next byte from the link. It fails with the cause of ctx
// once ctx is done, and with a *LinkError when the link read fails. No read
// is issued after ctx is done.
func (s *byteSource) next(ctx context.Context) (byte, error) {
	for {
		if ctx.Err() != nil {
			return 0, context.Cause(ctx)
		}
		if s.pos < s.end {
			b := s.buf[s.pos]
			s.pos++
			return b, nil
		}

		n, err := s.r.Read(s.buf)
		if err != nil {
			return 0, &LinkError{Op: "read", Err: err}
		}
		if n == 0 {
			if s.onIdle != nil {
				s.onIdle()
			}
			if err = sleepCtx(ctx, s.idle.NextBackOff()); err != nil {
				return 0, context.Cause(ctx)
			}
			continue
		}
		s.idle.Reset()
		s.pos, s.end = 0, n
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
