package batdev

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("batdev: link closed")
	ErrPortNotOpen     = errors.New("batdev: port not open")
	ErrInvalidPortName = errors.New("batdev: invalid port name")
	ErrNoPortFound     = errors.New("batdev: no USB port found")
)

// Session termination causes.
var (
	ErrOperatorQuit = errors.New("operator quit")
	ErrDeviceQuit   = errors.New("device requested quit")
)

var (
	ErrDumpDesync     = errors.New("hex dump desync")
	ErrScriptNotFound = errors.New("script not found")
	ErrCyclicInclude  = errors.New("cyclic include")
	ErrIncludeTooDeep = errors.New("include nesting too deep")
	ErrInvalidScript  = errors.New("invalid script name")
)

// LinkError is a read or write fault on the serial link. It is fatal to the session.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}
