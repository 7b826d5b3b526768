package batdev

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is read when no --config flag or BATDEV_CONFIG is given.
	DefaultConfigPath = "~/MSR/batdev.yaml"

	DefaultPortPattern       = "/dev/cu.usb*"
	DefaultHelpFile          = "~/MSR/BatDevHelp.txt"
	DefaultScriptDir         = "~/MSR/BatDevScripts"
	DefaultInventoryFile     = "~/MSR/BatDevInventory.yaml"
	DefaultScriptLineDelay   = 50 * time.Millisecond
	DefaultPipedCommandDelay = 100 * time.Millisecond
	DefaultMaxIncludeDepth   = 16
)

// Config is the monitor configuration, loaded from YAML and overridden by flags.
type Config struct {
	// Port is an explicit device path. When empty the first port matching
	// PortPattern is used.
	Port        string        `yaml:"port"`
	PortPattern string        `yaml:"port_pattern" validate:"required_without=Port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`
	BootDelay   time.Duration `yaml:"boot_delay" validate:"gte=0"`

	AutoExit bool `yaml:"auto_exit"`
	Alert    bool `yaml:"alert"`

	HelpFile      string `yaml:"help_file" validate:"required"`
	ScriptDir     string `yaml:"script_dir" validate:"required"`
	InventoryFile string `yaml:"inventory_file" validate:"required"`

	ScriptLineDelay   time.Duration `yaml:"script_line_delay" validate:"gte=0"`
	PipedCommandDelay time.Duration `yaml:"piped_command_delay" validate:"gte=0"`
	DumpTimeout       time.Duration `yaml:"dump_timeout" validate:"gte=0"`
	MaxIncludeDepth   int           `yaml:"max_include_depth" validate:"gte=1,lte=64"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects where diagnostics are logged.
type LogConfig struct {
	// File, when set, receives the log through a rotating writer instead of stderr.
	File       string `yaml:"file"`
	Level      string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		PortPattern:       DefaultPortPattern,
		BaudRate:          DefaultBaudRate.Int(),
		ReadTimeout:       DefaultReadTimeout,
		BootDelay:         DefaultBootDelay,
		HelpFile:          DefaultHelpFile,
		ScriptDir:         DefaultScriptDir,
		InventoryFile:     DefaultInventoryFile,
		ScriptLineDelay:   DefaultScriptLineDelay,
		PipedCommandDelay: DefaultPipedCommandDelay,
		DumpTimeout:       DefaultDumpTimeout,
		MaxIncludeDepth:   DefaultMaxIncludeDepth,
		Log: LogConfig{
			Level:      "warn",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. A missing file is an
// error only when mustExist is set. The result is normalized but not validated.
func LoadConfig(path string, mustExist bool) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Normalize()
	}

	expanded, err := expandHome(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return cfg, cfg.Normalize()
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", expanded, err)
	}
	return cfg, cfg.Normalize()
}

// Normalize expands ~ in every path field.
func (c *Config) Normalize() error {
	for _, p := range []*string{&c.HelpFile, &c.ScriptDir, &c.InventoryFile, &c.Log.File} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// LinkConfig returns the link settings for the given device path.
func (c *Config) LinkConfig(port string) LinkConfig {
	return LinkConfig{
		PortName:    port,
		BaudRate:    c.BaudRate,
		ReadTimeout: c.ReadTimeout,
		BootDelay:   c.BootDelay,
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
