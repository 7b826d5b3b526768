package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Station-Manager/batdev"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// envConfig names a config file when --config is not given.
const envConfig = "BATDEV_CONFIG"

type options struct {
	configPath string
	port       string
	baud       int
	autoExit   bool
	alert      bool
	logLevel   string
	logFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "batdev: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "batdev",
		Short: "Serial monitor for the battery test bench",
		Long: `batdev connects the console to the battery test bench over USB serial.

Device output is echoed as it arrives; typed lines are sent to the device.
Local commands: help, compile <script>, quit.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.alert, "alert", "a", false, "ring the terminal bell when the monitor exits")
	f.BoolVarP(&opts.autoExit, "auto-exit", "x", false, "exit when the device sends the quit escape")
	f.IntVarP(&opts.baud, "baud", "b", batdev.DefaultBaudRate.Int(), "baud rate")
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (default "+batdev.DefaultConfigPath+")")
	f.StringVarP(&opts.port, "port", "p", "", "serial device, overrides port discovery")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, disabled")
	f.StringVar(&opts.logFile, "log-file", "", "write the log to this file instead of stderr")
	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	fmt.Printf("Run date: %s\n", time.Now().Format("Jan 02 2006, 15:04:05"))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "ignoring .env: %v\n", err)
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, closer, err := batdev.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closer.Close()

	inventory, err := batdev.LoadInventory(cfg.InventoryFile)
	if err != nil {
		return err
	}
	logger.Debug().Strs("batteries", inventory.IDs()).Msg("inventory loaded")

	port, err := batdev.SelectPort(cfg.Port, cfg.PortPattern)
	if err != nil {
		return err
	}

	interactive := batdev.IsInteractive(os.Stdin)
	var commandDelay time.Duration
	if !interactive {
		// Input is not coming from human hands; pace it.
		commandDelay = cfg.PipedCommandDelay
	}

	metrics := &batdev.Metrics{}
	link, err := batdev.OpenLink(cfg.LinkConfig(port), metrics, logger)
	if err != nil {
		return fmt.Errorf("could not open port %q: %w", port, err)
	}
	defer link.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := batdev.NewSession(batdev.SessionConfig{
		Decoder: batdev.DecoderConfig{
			AutoExit:    cfg.AutoExit,
			DumpTimeout: cfg.DumpTimeout,
		},
		Dispatcher: batdev.DispatcherConfig{
			CommandDelay: commandDelay,
			ExitOnEOF:    interactive,
			HelpFile:     cfg.HelpFile,
		},
		Script: batdev.ScriptConfig{
			Dir:       cfg.ScriptDir,
			LineDelay: cfg.ScriptLineDelay,
			MaxDepth:  cfg.MaxIncludeDepth,
		},
	}, link, inventory, batdev.Console{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}, metrics, logger)

	err = session.Run(ctx)

	fmt.Fprintln(os.Stderr, "Exiting monitor...")
	fmt.Fprintln(os.Stderr, metrics.Snapshot())
	if cfg.Alert {
		alert()
	}
	return err
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts *options) (batdev.Config, error) {
	path, mustExist := opts.configPath, true
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path == "" {
		path, mustExist = batdev.DefaultConfigPath, false
	}

	cfg, err := batdev.LoadConfig(path, mustExist)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("baud") {
		cfg.BaudRate = opts.baud
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("auto-exit") {
		cfg.AutoExit = opts.autoExit
	}
	if flags.Changed("alert") {
		cfg.Alert = opts.alert
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}

	if err = batdev.ValidateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func alert() {
	for n := 0; n < 3; n++ {
		fmt.Fprint(os.Stderr, "\a")
		time.Sleep(400 * time.Millisecond)
	}
}

