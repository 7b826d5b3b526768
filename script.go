package batdev

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Compile-mode framing understood by the device.
const (
	compileMarker    = "comp\n"
	endOfScript      = "\n\n"
	includeDirective = "include"
	commentPrefix    = "#"
)

// ScriptConfig locates scripts and paces their upload.
type ScriptConfig struct {
	// Dir is the root every script name is resolved under.
	Dir string
	// LineDelay follows every uploaded line; the device has no flow control.
	LineDelay time.Duration
	// MaxDepth bounds include nesting; zero means DefaultMaxIncludeDepth.
	MaxDepth int
}

// ScriptIncluder uploads script files to the device in compile mode,
// expanding include directives.
type ScriptIncluder struct {
	cfg     ScriptConfig
	w       LinkWriter
	errOut  io.Writer
	metrics *Metrics
	logger  zerolog.Logger
}

func NewScriptIncluder(cfg ScriptConfig, w LinkWriter, errOut io.Writer, metrics *Metrics, logger zerolog.Logger) *ScriptIncluder {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxIncludeDepth
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &ScriptIncluder{
		cfg:     cfg,
		w:       w,
		errOut:  errOut,
		metrics: metrics,
		logger:  logger,
	}
}

// InsertScript uploads the named script framed by the compile marker and the
// end-of-script marker. A missing top-level script is reported and nothing
// is sent. Once the compile marker is out the end-of-script marker always
// follows, so the device is never left in compile mode. Only link faults and
// shutdown are returned; every other problem is reported to the operator and
// the session continues.
func (s *ScriptIncluder) InsertScript(ctx context.Context, name string) error {
	path, err := s.resolve(name)
	if err != nil {
		s.report(err)
		return nil
	}
	if _, err = os.Stat(path); err != nil {
		s.report(notFound(name, err))
		return nil
	}

	s.logger.Info().Str("script", name).Msg("uploading script")
	if err = send(ctx, s.w, compileMarker); err != nil {
		return err
	}
	s.metrics.ScriptUploads.Add(1)

	if err = s.Include(ctx, name); err != nil {
		if !errors.Is(err, ErrCyclicInclude) && !errors.Is(err, ErrIncludeTooDeep) {
			return err
		}
		s.report(err)
	}

	// Always leave compile mode, even after an aborted upload.
	return send(ctx, s.w, endOfScript)
}

// Include sends the lines of the named script, recursing into include
// directives. Comments and blank lines are not sent.
func (s *ScriptIncluder) Include(ctx context.Context, name string) error {
	return s.include(ctx, name, nil)
}

func (s *ScriptIncluder) include(ctx context.Context, name string, stack []string) error {
	path, err := s.resolve(name)
	if err != nil {
		s.report(err)
		return nil
	}
	for _, open := range stack {
		if open == path {
			return fmt.Errorf("%w: %s", ErrCyclicInclude, chain(stack, path, s.cfg.Dir))
		}
	}
	if len(stack) >= s.cfg.MaxDepth {
		return fmt.Errorf("%w (max %d): %s", ErrIncludeTooDeep, s.cfg.MaxDepth, chain(stack, path, s.cfg.Dir))
	}

	f, err := os.Open(path)
	if err != nil {
		s.report(notFound(name, err))
		return nil
	}
	defer f.Close()
	stack = append(stack, path)

	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadString('\n')
		if line != "" {
			if err = s.includeLine(ctx, line, stack); err != nil {
				return err
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				s.report(fmt.Errorf("reading script %s: %w", name, readErr))
			}
			return nil
		}
	}
}

func (s *ScriptIncluder) includeLine(ctx context.Context, line string, stack []string) error {
	cmd, arg := tokenize(line)
	switch {
	case cmd == "":
		// An empty line ends compile mode on the device.
		return nil
	case strings.HasPrefix(cmd, commentPrefix):
		return nil
	case cmd == includeDirective:
		return s.include(ctx, arg, stack)
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if err := send(ctx, s.w, line); err != nil {
		return err
	}
	s.metrics.ScriptLines.Add(1)
	if err := sleepCtx(ctx, s.cfg.LineDelay); err != nil {
		return context.Cause(ctx)
	}
	return nil
}

// resolve maps a script name to a path under the script directory.
func (s *ScriptIncluder) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: missing file name", ErrInvalidScript)
	}
	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %s is outside the script directory", ErrInvalidScript, name)
	}
	return filepath.Join(s.cfg.Dir, name), nil
}

func (s *ScriptIncluder) report(err error) {
	s.logger.Warn().Err(err).Msg("script upload problem")
	fmt.Fprintf(s.errOut, "%v\n", err)
}

func notFound(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}
	return fmt.Errorf("opening script %s: %w", name, err)
}

func chain(stack []string, last, dir string) string {
	names := make([]string, 0, len(stack)+1)
	for _, p := range stack {
		names = append(names, relTo(dir, p))
	}
	names = append(names, relTo(dir, last))
	return strings.Join(names, " -> ")
}

func relTo(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil {
		return rel
	}
	return path
}
