package batdev

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// The device dumps SRAM 0x0100..0x08FF, one 16-byte row per line.
const (
	dumpStartAddr = 0x100
	dumpEndAddr   = 0x900
	dumpRowBytes  = 16
	// DumpRows is the number of rows in one dump.
	DumpRows = (dumpEndAddr - dumpStartAddr) / dumpRowBytes

	dumpHalfWidth = 24 // eight "XX " tokens
	maxDumpRowLen = 256
)

const nulGlyph = "·"

// hexDump consumes exactly DumpRows rows from the link and renders them.
// Each row must arrive within DumpTimeout; the dump as a whole may take as
// long as the baud rate needs.
func (d *Decoder) hexDump(ctx context.Context) error {
	d.setState(StateHexDump)
	d.flush()

	for addr := dumpStartAddr; addr < dumpEndAddr; addr += dumpRowBytes {
		row, err := d.readDumpRow(ctx)
		if err != nil {
			return fmt.Errorf("row %04X: %w", addr, err)
		}
		_, _ = d.out.WriteString(FormatDumpRow(addr, row))
		d.flush()
	}

	d.metrics.HexDumps.Add(1)
	d.setState(StateNormal)
	return nil
}

// readDumpRow reads one newline-terminated row, without the terminator.
func (d *Decoder) readDumpRow(ctx context.Context) (string, error) {
	rctx, cancel := context.WithTimeoutCause(ctx, d.cfg.DumpTimeout,
		fmt.Errorf("%w: no complete row within %s", ErrDumpDesync, d.cfg.DumpTimeout))
	defer cancel()

	var row []byte
	for {
		b, err := d.src.next(rctx)
		if err != nil {
			return "", err
		}
		if b == '\n' {
			break
		}
		if len(row) >= maxDumpRowLen {
			return "", fmt.Errorf("%w: row longer than %d bytes", ErrDumpDesync, maxDumpRowLen)
		}
		row = append(row, b)
	}
	return strings.TrimSuffix(string(row), "\r"), nil
}

// FormatDumpRow renders one dump row: the address, the raw hex text split
// into two halves and the translated column.
func FormatDumpRow(addr int, row string) string {
	left, right := row, ""
	if len(row) > dumpHalfWidth {
		left, right = row[:dumpHalfWidth], row[dumpHalfWidth:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%04X:  %s  %s  ", addr, left, right)
	for _, tok := range strings.Fields(row) {
		b.WriteString(translateHexToken(tok))
	}
	b.WriteByte('\n')
	return b.String()
}

func translateHexToken(tok string) string {
	if len(tok) != 2 {
		return "?"
	}
	v, err := strconv.ParseUint(tok, 16, 8)
	if err != nil {
		return "?"
	}
	switch c := byte(v); {
	case c == 0x00:
		return nulGlyph
	case c < 0x20 || c > 0x7e:
		return "."
	default:
		return string(rune(c))
	}
}

// isDumpDesync reports whether err aborted a dump without a link fault.
func isDumpDesync(err error) bool {
	return errors.Is(err, ErrDumpDesync)
}
