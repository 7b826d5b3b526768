package batdev

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Commands handled locally or specially by the dispatcher.
const (
	cmdHelp     = "help"
	cmdCompile  = "compile"
	cmdQuit     = "quit"
	cmdBattery  = "b"
	cmdCapacity = "bc"
)

// DispatcherConfig controls the writer loop.
type DispatcherConfig struct {
	// CommandDelay follows every line forwarded to the device. It is zero
	// for a human at a terminal and non-zero for piped input, which would
	// otherwise overrun the device's input buffer.
	CommandDelay time.Duration
	// ExitOnEOF ends the session when the console reaches end of input.
	// With it unset the writer idles until the session ends otherwise.
	ExitOnEOF bool
	// HelpFile is streamed to the operator on "help".
	HelpFile string
}

// Dispatcher is the writer loop: it takes console lines, handles local
// commands and forwards everything else to the device.
type Dispatcher struct {
	cfg       DispatcherConfig
	w         LinkWriter
	inventory Inventory
	scripts   *ScriptIncluder
	errOut    io.Writer
	shutdown  *Shutdown
	metrics   *Metrics
	logger    zerolog.Logger
}

func NewDispatcher(cfg DispatcherConfig, w LinkWriter, inventory Inventory, scripts *ScriptIncluder, errOut io.Writer, shutdown *Shutdown, metrics *Metrics, logger zerolog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Dispatcher{
		cfg:       cfg,
		w:         w,
		inventory: inventory,
		scripts:   scripts,
		errOut:    errOut,
		shutdown:  shutdown,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run dispatches lines until the shutdown token fires. It returns nil when
// the session ends normally and a *LinkError when a write fails, in which
// case it has already fired the token.
func (d *Dispatcher) Run(lines <-chan string) error {
	ctx := d.shutdown.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if d.cfg.ExitOnEOF {
					d.logger.Info().Msg("console closed")
					d.shutdown.Trigger(ErrOperatorQuit)
					return nil
				}
				d.logger.Debug().Msg("console input exhausted, waiting for the device")
				lines = nil
				continue
			}
			if err := d.Dispatch(ctx, line); err != nil {
				return d.stop(err)
			}
			if d.shutdown.Fired() {
				return nil
			}
		}
	}
}

// Dispatch handles one console line.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) error {
	cmd, arg := tokenize(line)
	switch cmd {
	case cmdHelp:
		if err := ShowHelp(d.errOut, d.cfg.HelpFile); err != nil {
			d.logger.Debug().Err(err).Msg("help unavailable")
		}
		return nil
	case cmdCompile:
		return d.scripts.InsertScript(ctx, arg)
	case cmdQuit:
		d.logger.Info().Msg("operator quit")
		d.shutdown.Trigger(ErrOperatorQuit)
		return nil
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if err := send(ctx, d.w, line); err != nil {
		return err
	}
	d.metrics.ConsoleLines.Add(1)

	if cmd == cmdBattery {
		if err := d.injectCapacity(ctx, line); err != nil {
			return err
		}
	}

	if err := sleepCtx(ctx, d.cfg.CommandDelay); err != nil {
		return context.Cause(ctx)
	}
	return nil
}

// injectCapacity follows "b <id>" with "bc <mAh>" when id is in the
// inventory. Anything else is silently ignored.
func (d *Dispatcher) injectCapacity(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return nil
	}
	capacity, ok := d.inventory.Capacity(fields[1])
	if !ok {
		d.logger.Debug().Str("battery", fields[1]).Msg("battery not in inventory")
		return nil
	}
	if err := send(ctx, d.w, fmt.Sprintf("%s %d\n", cmdCapacity, capacity)); err != nil {
		return err
	}
	d.metrics.CapacityInjections.Add(1)
	return nil
}

func (d *Dispatcher) stop(err error) error {
	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		d.logger.Error().Err(err).Msg("writer stopping on link fault")
		d.shutdown.Trigger(linkErr)
		return linkErr
	}
	return nil
}

// tokenize isolates the first two whitespace-separated words of a line.
func tokenize(line string) (cmd, arg string) {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		cmd = fields[0]
	}
	if len(fields) > 1 {
		arg = fields[1]
	}
	return cmd, arg
}

// send writes data and flushes it, unless ctx is already done.
func send(ctx context.Context, w LinkWriter, data string) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if _, err := w.Write([]byte(data)); err != nil {
		return &LinkError{Op: "write", Err: err}
	}
	if err := w.Flush(); err != nil {
		return &LinkError{Op: "flush", Err: err}
	}
	return nil
}
