package batdev

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"go.uber.org/atomic"
)

// allow tests to override external dependencies
var (
	openPort = func(name string, mode *serial.Mode) (SerialPort, error) {
		p, err := serial.Open(name, mode)
		if err != nil {
			return nil, err
		}
		return &bugstPort{Port: p}, nil
	}
	getPortsList = serial.GetPortsList
	sleep        = time.Sleep
)

const (
	// DefaultReadTimeout bounds how long a Read waits when nothing has arrived.
	DefaultReadTimeout = 10 * time.Millisecond

	// DefaultBootDelay covers the Arduino boot loader, which swallows
	// anything sent while the board restarts after the port opens.
	DefaultBootDelay = 1500 * time.Millisecond

	maxWriteRetries = 3
)

// LinkConfig holds what is needed to open the serial link to the device.
type LinkConfig struct {
	PortName    string
	BaudRate    int
	ReadTimeout time.Duration
	BootDelay   time.Duration
}

// Link is the duplex byte channel to the device. The read side and the
// write side are handed out as separate capabilities so the reader and
// writer goroutines never share a handle.
type Link struct {
	port    SerialPort
	cfg     LinkConfig
	metrics *Metrics
	logger  zerolog.Logger

	isOpen    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenLink opens the serial port described by cfg, 8N1, and waits out the
// device boot delay.
func OpenLink(cfg LinkConfig, metrics *Metrics, logger zerolog.Logger) (*Link, error) {
	if cfg.PortName == "" {
		return nil, fmt.Errorf("open link: %w", ErrInvalidPortName)
	}
	if !BaudRate(cfg.BaudRate).Valid() {
		return nil, fmt.Errorf("open link: unsupported baud rate %d", cfg.BaudRate)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: BaudRate(cfg.BaudRate).Int(),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	if metrics != nil {
		metrics.ConnectionAttempts.Add(1)
	}
	port, err := openPort(cfg.PortName, mode)
	if err != nil {
		if metrics != nil {
			metrics.ConnectionFailures.Add(1)
		}
		return nil, fmt.Errorf("opening serial port %q: %w", cfg.PortName, err)
	}

	l := newLink(port, cfg, metrics, logger)
	if err = port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		return nil, l.handleOpenError(err)
	}

	logger.Info().
		Str("port", cfg.PortName).
		Int("baud", cfg.BaudRate).
		Dur("boot_delay", cfg.BootDelay).
		Msg("serial link open")

	if cfg.BootDelay > 0 {
		sleep(cfg.BootDelay)
	}
	return l, nil
}

// newLink constructs a Link around an existing SerialPort.
func newLink(port SerialPort, cfg LinkConfig, metrics *Metrics, logger zerolog.Logger) *Link {
	if metrics == nil {
		metrics = &Metrics{}
	}
	l := &Link{
		port:    port,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
	l.isOpen.Store(true)
	metrics.ConnectionStartTime.Store(time.Now().UnixNano())
	return l
}

// handleOpenError closes the port and joins any error from closing with the original error
func (l *Link) handleOpenError(err error) error {
	if e := l.Close(); e != nil {
		err = errors.Join(err, e)
	}
	return err
}

// PortName returns the device path the link was opened on.
func (l *Link) PortName() string {
	return l.cfg.PortName
}

// Reader returns the read capability of the link.
func (l *Link) Reader() LinkReader {
	return linkReader{l: l}
}

// Writer returns the write capability of the link.
func (l *Link) Writer() LinkWriter {
	return linkWriter{l: l}
}

// DiscardInput drops anything the device sent before the session started.
func (l *Link) DiscardInput() error {
	if !l.isOpen.Load() {
		return ErrPortNotOpen
	}
	return l.port.ResetInputBuffer()
}

// Close closes the underlying port. It is safe to call multiple times.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.isOpen.Store(false)
		if start := l.metrics.ConnectionStartTime.Load(); start > 0 {
			l.metrics.TotalUptime.Add(time.Now().UnixNano() - start)
		}
		l.closeErr = l.port.Close()
		l.logger.Debug().Str("port", l.cfg.PortName).Err(l.closeErr).Msg("serial link closed")
	})
	return l.closeErr
}

type linkReader struct {
	l *Link
}

// Read returns 0..len(p) bytes; 0, nil means nothing arrived within the read timeout.
func (r linkReader) Read(p []byte) (int, error) {
	l := r.l
	if !l.isOpen.Load() {
		return 0, ErrPortNotOpen
	}
	start := time.Now()
	n, err := l.port.Read(p)
	l.metrics.recordRead(n, err, time.Since(start))
	return n, err
}

type linkWriter struct {
	l *Link
}

// Write writes all of p, retrying short writes a bounded number of times.
func (w linkWriter) Write(p []byte) (int, error) {
	l := w.l
	if !l.isOpen.Load() {
		return 0, ErrPortNotOpen
	}

	start := time.Now()
	var total int
	var err error
	for retries := 0; total < len(p) && retries < maxWriteRetries; retries++ {
		n, writeErr := l.port.Write(p[total:])
		if writeErr != nil {
			err = writeErr
			break
		}
		total += n
		if n == 0 {
			// Prevent infinite loop if Write returns 0
			break
		}
	}
	if total < len(p) && err == nil {
		err = errors.New("partial write: not all bytes written")
	}
	l.metrics.recordWrite(total, err, time.Since(start))
	return total, err
}

func (w linkWriter) Flush() error {
	if !w.l.isOpen.Load() {
		return ErrPortNotOpen
	}
	return w.l.port.Drain()
}
