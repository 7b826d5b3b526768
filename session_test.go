package batdev

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionHarness struct {
	port    *fakePort
	stdin   *io.PipeWriter
	out     *syncBuffer
	errOut  *syncBuffer
	metrics *Metrics
	session *Session
}

func newSessionHarness(t *testing.T, cfg SessionConfig) *sessionHarness {
	t.Helper()
	link, port := newTestLink(t)
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	h := &sessionHarness{
		port:    port,
		stdin:   pw,
		out:     &syncBuffer{},
		errOut:  &syncBuffer{},
		metrics: &Metrics{},
	}
	h.session = NewSession(cfg, link, Inventory{"A1": {ID: "A1", Capacity: 2000}},
		Console{In: pr, Out: h.out, Err: h.errOut}, h.metrics, zerolog.Nop())
	return h
}

func (h *sessionHarness) join(t *testing.T) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- h.session.Join() }()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func TestSessionDuplex(t *testing.T) {
	h := newSessionHarness(t, SessionConfig{Decoder: DecoderConfig{AutoExit: true}})
	require.NoError(t, h.session.Start(context.Background()))

	h.port.feed("ready> ")
	require.Eventually(t, func() bool { return h.out.String() == "ready> " }, time.Second, time.Millisecond)

	_, err := io.WriteString(h.stdin, "b A1\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.port.writtenText() == "b A1\nbc 2000\n" }, time.Second, time.Millisecond)

	h.port.feed("ok$Q")
	require.NoError(t, h.join(t))
	assert.Equal(t, "ready> ok", h.out.String())
	assert.ErrorIs(t, h.session.Cause(), ErrDeviceQuit)
}

func TestSessionOperatorQuit(t *testing.T) {
	h := newSessionHarness(t, SessionConfig{})
	require.NoError(t, h.session.Start(context.Background()))

	_, err := io.WriteString(h.stdin, "quit\n")
	require.NoError(t, err)
	require.NoError(t, h.join(t))
	assert.ErrorIs(t, h.session.Cause(), ErrOperatorQuit)
	assert.Empty(t, h.port.written())
}

func TestSessionLinkFaultEndsBothLoops(t *testing.T) {
	h := newSessionHarness(t, SessionConfig{})
	require.NoError(t, h.session.Start(context.Background()))

	h.port.setReadErr(errors.New("device unplugged"))

	err := h.join(t)
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestSessionParentCancel(t *testing.T) {
	h := newSessionHarness(t, SessionConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.session.Start(ctx))

	cancel()
	require.NoError(t, h.join(t))
	assert.ErrorIs(t, h.session.Cause(), context.Canceled)
}

func TestSessionDiscardsStaleInput(t *testing.T) {
	h := newSessionHarness(t, SessionConfig{})
	h.port.feed("boot garbage")
	require.NoError(t, h.session.Start(context.Background()))

	h.port.feed("fresh")
	require.Eventually(t, func() bool { return h.out.String() == "fresh" }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.port.resets)

	_, _ = io.WriteString(h.stdin, "quit\n")
	require.NoError(t, h.join(t))
}

func TestSessionStartTwice(t *testing.T) {
	h := newSessionHarness(t, SessionConfig{})
	require.NoError(t, h.session.Start(context.Background()))
	assert.Error(t, h.session.Start(context.Background()))

	_, _ = io.WriteString(h.stdin, "quit\n")
	require.NoError(t, h.join(t))
}

func TestSessionJoinBeforeStart(t *testing.T) {
	h := newSessionHarness(t, SessionConfig{})
	assert.Error(t, h.session.Join())
	assert.NoError(t, h.session.Cause())
}

func TestSessionStartFailsOnInputReset(t *testing.T) {
	h := newSessionHarness(t, SessionConfig{})
	h.port.resetErr = errors.New("device unplugged")

	err := h.session.Start(context.Background())
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, "reset input", linkErr.Op)

	assert.Error(t, h.session.Join())
	assert.NoError(t, h.session.Cause())

	h.port.resetErr = nil
	require.NoError(t, h.session.Start(context.Background()))
	_, _ = io.WriteString(h.stdin, "quit\n")
	require.NoError(t, h.join(t))
}

func TestSessionPipedConsoleWaitsForDevice(t *testing.T) {
	link, port := newTestLink(t)
	out := &syncBuffer{}
	s := NewSession(SessionConfig{Decoder: DecoderConfig{AutoExit: true}}, link, nil,
		Console{In: strings.NewReader("v 1\nv 2\n"), Out: out, Err: io.Discard}, nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return port.writtenText() == "v 1\nv 2\n" }, time.Second, time.Millisecond)
	port.feed("$Q")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end on device quit")
	}
	assert.ErrorIs(t, s.Cause(), ErrDeviceQuit)
}
