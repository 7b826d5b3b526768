package batdev

import (
	"time"

	"go.bug.st/serial"
)

// SerialPort abstracts the subset of go.bug.st/serial.Port used by this package.
type SerialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	ResetInputBuffer() error
	SetReadTimeout(d time.Duration) error
	Close() error
}

// bugstPort wraps the concrete serial.Port to satisfy SerialPort.
type bugstPort struct {
	serial.Port
}

// LinkReader is the read-only capability over the link, owned by the inbound decoder.
type LinkReader interface {
	Read(p []byte) (int, error)
}

// LinkWriter is the write-only capability over the link, owned by the outbound dispatcher.
type LinkWriter interface {
	Write(p []byte) (int, error)
	// Flush blocks until everything written has been transmitted.
	Flush() error
}
