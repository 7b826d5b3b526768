package batdev

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// EscapeMarker announces that the next inbound byte is a control code.
const EscapeMarker = '$'

const (
	codeQuit = 'Q'
	codeDump = 'D'
)

// DefaultDumpTimeout bounds the wait for one hex dump row. A 50-byte row
// takes under two seconds even at 300 baud.
const DefaultDumpTimeout = 5 * time.Second

// DecoderState is the inbound escape protocol state.
type DecoderState int32

const (
	StateNormal DecoderState = iota
	StateEscapeSeen
	StateHexDump
)

func (s DecoderState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateEscapeSeen:
		return "escape-seen"
	case StateHexDump:
		return "hex-dump"
	default:
		return fmt.Sprintf("DecoderState(%d)", int32(s))
	}
}

// DecoderConfig controls the inbound escape protocol.
type DecoderConfig struct {
	// AutoExit makes the device's $Q end the session. When false $Q prints Q.
	AutoExit bool
	// DumpTimeout bounds the wait for each hex dump row; zero means
	// DefaultDumpTimeout.
	DumpTimeout time.Duration
}

// Decoder is the reader loop: it echoes device output to the console and
// acts on escape sequences.
type Decoder struct {
	cfg      DecoderConfig
	src      *byteSource
	out      *bufio.Writer
	errOut   io.Writer
	shutdown *Shutdown
	metrics  *Metrics
	logger   zerolog.Logger

	state atomic.Int32
}

// NewDecoder builds a Decoder reading from r and echoing to out. Diagnostics go to errOut.
func NewDecoder(cfg DecoderConfig, r LinkReader, out, errOut io.Writer, shutdown *Shutdown, metrics *Metrics, logger zerolog.Logger) *Decoder {
	if cfg.DumpTimeout <= 0 {
		cfg.DumpTimeout = DefaultDumpTimeout
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	d := &Decoder{
		cfg:      cfg,
		out:      bufio.NewWriter(out),
		errOut:   errOut,
		shutdown: shutdown,
		metrics:  metrics,
		logger:   logger,
	}
	d.src = newByteSource(r, d.flush)
	return d
}

// State returns the current protocol state.
func (d *Decoder) State() DecoderState {
	return DecoderState(d.state.Load())
}

func (d *Decoder) setState(s DecoderState) {
	d.state.Store(int32(s))
}

// Run decodes until the shutdown token fires. It returns nil when the
// session ends normally and a *LinkError when the link read fails, in which
// case it has already fired the token.
func (d *Decoder) Run() error {
	ctx := d.shutdown.Context()
	defer d.flush()

	for {
		b, err := d.src.next(ctx)
		if err != nil {
			return d.stop(err)
		}
		if b != EscapeMarker {
			d.emit(b)
			continue
		}

		d.setState(StateEscapeSeen)
		code, err := d.src.next(ctx)
		if err != nil {
			return d.stop(err)
		}
		d.metrics.EscapeCodes.Add(1)

		switch {
		case code == codeQuit && d.cfg.AutoExit:
			d.setState(StateNormal)
			d.flush()
			d.logger.Info().Msg("device requested quit")
			d.shutdown.Trigger(ErrDeviceQuit)
			return nil
		case code == codeDump:
			if err = d.hexDump(ctx); err != nil {
				if !isDumpDesync(err) {
					return d.stop(err)
				}
				d.reportDumpFailure(err)
			}
		default:
			d.emit(code)
		}
	}
}

// stop handles an error from the byte source.
func (d *Decoder) stop(err error) error {
	d.setState(StateNormal)
	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		d.logger.Error().Err(err).Msg("reader stopping on link fault")
		d.shutdown.Trigger(linkErr)
		return linkErr
	}
	return nil
}

// reportDumpFailure reports an aborted dump; decoding resumes in StateNormal.
func (d *Decoder) reportDumpFailure(err error) {
	d.setState(StateNormal)
	d.metrics.HexDumpFailures.Add(1)
	d.flush()
	d.logger.Warn().Err(err).Msg("hex dump aborted")
	fmt.Fprintf(d.errOut, "hex dump failed: %v\n", err)
}

func (d *Decoder) emit(b byte) {
	d.setState(StateNormal)
	_ = d.out.WriteByte(b)
	if d.src.buffered() == 0 {
		d.flush()
	}
}

func (d *Decoder) flush() {
	if err := d.out.Flush(); err != nil {
		d.logger.Debug().Err(err).Msg("console flush failed")
	}
}
