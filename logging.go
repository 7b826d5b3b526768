package batdev

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the diagnostic logger. With cfg.File set the log goes to
// a rotating file so it never interleaves with device output; otherwise it
// is written to stderr in console format. The returned closer releases the file.
func NewLogger(cfg LogConfig, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	level := zerolog.WarnLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		level = parsed
	}

	var w io.Writer
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w, closer = lj, lj
	} else {
		w = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}
