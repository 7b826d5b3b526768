package batdev

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// SessionConfig gathers the settings of both loops.
type SessionConfig struct {
	Decoder    DecoderConfig
	Dispatcher DispatcherConfig
	Script     ScriptConfig
}

// Console is the operator side of the session.
type Console struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Session owns the link and the shutdown token and runs the reader and
// writer loops for one connection.
type Session struct {
	cfg       SessionConfig
	link      *Link
	inventory Inventory
	console   Console
	metrics   *Metrics
	logger    zerolog.Logger

	started  atomic.Bool
	shutdown *Shutdown
	wg       sync.WaitGroup
}

func NewSession(cfg SessionConfig, link *Link, inventory Inventory, console Console, metrics *Metrics, logger zerolog.Logger) *Session {
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Session{
		cfg:       cfg,
		link:      link,
		inventory: inventory,
		console:   console,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start discards stale device output and launches the reader and writer
// goroutines. Cancelling ctx ends the session.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}
	if err := s.link.DiscardInput(); err != nil {
		s.started.Store(false)
		return &LinkError{Op: "reset input", Err: err}
	}

	s.shutdown = NewShutdown(ctx)

	decoder := NewDecoder(s.cfg.Decoder, s.link.Reader(), s.console.Out, s.console.Err,
		s.shutdown, s.metrics, s.logger.With().Str("loop", "reader").Logger())

	writerLog := s.logger.With().Str("loop", "writer").Logger()
	scripts := NewScriptIncluder(s.cfg.Script, s.link.Writer(), s.console.Err, s.metrics, writerLog)
	dispatcher := NewDispatcher(s.cfg.Dispatcher, s.link.Writer(), s.inventory, scripts,
		s.console.Err, s.shutdown, s.metrics, writerLog)
	lines := ReadLines(s.shutdown.Context(), s.console.In, writerLog)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		_ = decoder.Run()
	}()
	go func() {
		defer s.wg.Done()
		_ = dispatcher.Run(lines)
	}()

	s.logger.Debug().Str("port", s.link.PortName()).Msg("session started")
	return nil
}

// Join blocks until both loops have returned. It returns the link fault
// that ended the session, or nil for a quit or cancellation.
func (s *Session) Join() error {
	if !s.started.Load() || s.shutdown == nil {
		return errors.New("session not started")
	}
	s.wg.Wait()

	cause := s.shutdown.Cause()
	s.logger.Debug().AnErr("cause", cause).Msg("session ended")

	var linkErr *LinkError
	if errors.As(cause, &linkErr) {
		return linkErr
	}
	return nil
}

// Run is Start followed by Join.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Join()
}

// Cause reports why the session ended, or nil while it runs.
func (s *Session) Cause() error {
	if s.shutdown == nil {
		return nil
	}
	return s.shutdown.Cause()
}
