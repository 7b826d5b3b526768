package batdev

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// fakePort is a SerialPort that never blocks: a Read with nothing queued
// returns 0, nil like a port with a short read timeout.
type fakePort struct {
	mu       sync.Mutex
	in       []byte
	chunk    int // max bytes per Read, 0 = unlimited
	writes   []string
	writeAt  []time.Time
	readErr  error
	writeErr error
	resetErr error
	closed   bool
	drains   int
	resets   int
}

func newFakePort() *fakePort {
	return &fakePort{}
}

func (p *fakePort) feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = append(p.in, s...)
}

func (p *fakePort) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.in)
}

func (p *fakePort) setReadErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.in) == 0 {
		return 0, nil
	}
	data := p.in
	if p.chunk > 0 && len(data) > p.chunk {
		data = data[:p.chunk]
	}
	n := copy(b, data)
	p.in = p.in[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, string(b))
	p.writeAt = append(p.writeAt, time.Now())
	return len(b), nil
}

func (p *fakePort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drains++
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	if p.resetErr != nil {
		return p.resetErr
	}
	p.in = nil
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func (p *fakePort) writtenText() string {
	return strings.Join(p.written(), "")
}

func (p *fakePort) writeTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.writeAt...)
}

func newTestLink(t *testing.T) (*Link, *fakePort) {
	t.Helper()
	port := newFakePort()
	l := newLink(port, LinkConfig{PortName: "/dev/ttyFAKE0", BaudRate: 38400}, &Metrics{}, zerolog.Nop())
	t.Cleanup(func() { _ = l.Close() })
	return l, port
}

// syncBuffer is a bytes.Buffer safe for one writer goroutine and a polling test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// guardedReader counts reads issued after the shutdown token fired.
type guardedReader struct {
	r    LinkReader
	s    *Shutdown
	late atomic.Int32
}

func (g *guardedReader) Read(p []byte) (int, error) {
	if g.s.Fired() {
		g.late.Inc()
	}
	return g.r.Read(p)
}

// guardedWriter counts writes issued after the shutdown token fired.
type guardedWriter struct {
	w    LinkWriter
	s    *Shutdown
	late atomic.Int32
}

func (g *guardedWriter) Write(p []byte) (int, error) {
	if g.s.Fired() {
		g.late.Inc()
	}
	return g.w.Write(p)
}

func (g *guardedWriter) Flush() error {
	return g.w.Flush()
}
