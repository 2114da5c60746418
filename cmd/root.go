package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"procaffinity/internal/apply"
	"procaffinity/internal/config"
	"procaffinity/internal/process"
	"procaffinity/internal/ui"
)

type Options struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
	Name       string
	GroupSize  int
	PID        int
	CPUs       string
	Policy     string
	DryRun     bool
	JSON       bool
}

var ErrInvalidArguments = errors.New("invalid arguments")

// System is the host capability the commands drive.
type System interface {
	apply.Host
	Affinity(pid int) ([]int, error)
	Lookup(pid int) (process.Process, error)
}

// newSystem is replaced in tests.
var newSystem = func() System { return process.NewSystem() }

// logFile is the open --log-file handle of the running command, if any.
var logFile *os.File

func init() {
	// Finalizers run even when RunE fails, unlike PersistentPostRunE.
	cobra.OnFinalize(closeLogFile)
}

// Execute runs the command line and returns the first error.
func Execute() error {
	return NewRootCommand().Execute()
}

func NewRootCommand() *cobra.Command {
	opts := &Options{}
	var cfg config.Config

	root := &cobra.Command{
		Use:           "procaffinity",
		Short:         "View and set CPU affinity for running instances of a process",
		Long:          "With no subcommand procaffinity opens an interactive view of the matching processes and their cores.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := resolve(cmd, opts)
			if err != nil {
				return err
			}
			cfg = loaded

			// The TUI owns the terminal, so it only logs to a file.
			interactive := cmd.Root() == cmd
			logFile, err = setupLogging(cfg.LogLevel, opts.LogFile, interactive, cmd.ErrOrStderr())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sys := newSystem()
			return ui.Run(sys, newRunner(sys, cfg), cfg.Process, cfg.GroupSize)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "YAML settings file")
	flags.StringVar(&opts.LogLevel, "log-level", config.DefaultLogLevel, "Log level: trace, debug, info, warn, error")
	flags.StringVar(&opts.LogFile, "log-file", "", "Write logs to this file instead of stderr")
	flags.StringVarP(&opts.Name, "name", "n", config.DefaultProcessName, "Process name to match")
	flags.IntVar(&opts.GroupSize, "group-size", 0, "Cores per group for core-group policies (default 2)")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Show what would change without setting affinity")

	root.AddCommand(
		newListCommand(opts, &cfg),
		newShowCommand(opts),
		newSetCommand(opts, &cfg),
		newAutoCommand(opts, &cfg),
		newPoliciesCommand(&cfg),
		newTopologyCommand(opts),
	)
	return root
}

// resolve merges explicitly set flags over the settings file.
func resolve(cmd *cobra.Command, opts *Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.Process = opts.Name
	}
	if flags.Changed("group-size") {
		cfg.GroupSize = opts.GroupSize
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = opts.DryRun
	}

	if strings.TrimSpace(cfg.Process) == "" {
		return cfg, fmt.Errorf("%w: --name must not be empty", ErrInvalidArguments)
	}
	if cfg.GroupSize < 1 {
		return cfg, fmt.Errorf("%w: --group-size must be at least 1, got %d", ErrInvalidArguments, cfg.GroupSize)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return cfg, nil
}

func setupLogging(level, path string, interactive bool, stderr io.Writer) (*os.File, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if path == "" {
		if interactive {
			logrus.SetOutput(io.Discard)
		} else {
			logrus.SetOutput(stderr)
		}
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return f, nil
}

func closeLogFile() {
	if logFile == nil {
		return
	}
	if err := logFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
	logFile = nil
	logrus.SetOutput(os.Stderr)
}

func newRunner(sys System, cfg config.Config) *apply.Runner {
	return apply.NewRunner(sys,
		apply.WithDryRun(cfg.DryRun),
		apply.WithLogger(logrus.WithField("process", cfg.Process)),
	)
}

func requirePID(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: --pid is required", ErrInvalidArguments)
	}
	return nil
}
