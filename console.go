package batdev

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// IsInteractive reports whether f is a terminal operated by a human.
func IsInteractive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ReadLines streams r line by line, newline included, until EOF, a read
// error or ctx ending. The channel is closed afterwards. A read blocked on r
// is not interrupted by ctx.
func ReadLines(ctx context.Context, r io.Reader, logger zerolog.Logger) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Warn().Err(err).Msg("console read failed")
				}
				return
			}
		}
	}()
	return lines
}
