// scriptmate keeps a catalog of parameterized shell commands and runs them
// from the terminal or from a Telegram chat.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rashpile/scriptmate/internal/audit"
	"github.com/rashpile/scriptmate/internal/config"
	"github.com/rashpile/scriptmate/internal/store"
	"github.com/rashpile/scriptmate/internal/tui"
	"github.com/rashpile/scriptmate/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(&app{}).ExecuteContext(ctx)
	stop()

	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, tui.Error("Error:"), err)
		os.Exit(1)
	}
}

// exitError carries a command's exit status out of RunE without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app is the state shared by subcommands, filled in by setup.
type app struct {
	configPath   string
	commandsPath string

	cfg      *config.Config
	logger   *slog.Logger
	logClose io.Closer
	registry *store.Registry
	loadErr  error // non-nil when the commands file could not be loaded
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "scriptmate",
		Short: "Run parameterized shell commands from a saved catalog",
		Long: tui.Title("scriptmate") + tui.Muted(" - parameterized shell commands") + `

Definitions are kept in a JSON file and can be run from the terminal,
where missing arguments are asked for interactively, or from Telegram.

Examples:
  scriptmate list                  List all definitions
  scriptmate run deploy            Collect arguments and run 'deploy'
  scriptmate add -f deploy.json    Add a definition
  scriptmate bot                   Serve the catalog over Telegram`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "path to configuration file")
	root.PersistentFlags().StringVar(&a.commandsPath, "commands", "", "definitions file (overrides commands_path)")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newNewCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newRenameCmd(a),
		newDeleteCmd(a),
		newRenderCmd(a),
		newRunCmd(a),
		newHistoryCmd(a),
		newBotCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Needs neither config nor registry.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// setup loads the config, installs the logger and opens the registry.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, closer, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger, a.logClose = logger, closer
	slog.SetDefault(logger)

	path, err := a.resolveCommandsPath()
	if err != nil {
		return err
	}

	a.registry, a.loadErr = store.Open(path, store.WithLogger(logger))
	if a.loadErr != nil {
		logger.Warn("commands file could not be loaded", "path", path, "error", a.loadErr)
	}
	return nil
}

func (a *app) close() error {
	if a.logClose != nil {
		return a.logClose.Close()
	}
	return nil
}

// resolveCommandsPath applies the --commands flag over the config file.
func (a *app) resolveCommandsPath() (string, error) {
	if a.commandsPath != "" {
		return filepath.Abs(a.commandsPath)
	}

	path, err := a.cfg.ResolveCommandsPath()
	if errors.Is(err, config.ErrRelativeCommandsPath) {
		a.logger.Warn("ignoring commands_path", "error", err)
		return path, nil
	}
	return path, err
}

// writable refuses changes while the commands file is unreadable, so a save
// does not replace a document the user still has to repair.
func (a *app) writable() error {
	if a.loadErr != nil {
		return fmt.Errorf("commands file %s is not loaded, fix it first: %w", a.registry.Path(), a.loadErr)
	}
	return nil
}

// history opens the execution log, falling back to a no-op log.
func (a *app) history() audit.Logger {
	l, err := audit.NewSQLiteLogger(a.cfg.Database.Path)
	if err != nil {
		a.logger.Warn("execution history disabled", "path", a.cfg.Database.Path, "error", err)
		return audit.NopLogger{}
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds a slog logger on top of charmbracelet/log. A configured
// log file is rotated by lumberjack.
func newLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log.level: %w", err)
	}

	var formatter log.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, nil, fmt.Errorf("log.format must be text, json or logfmt, got %q", cfg.Format)
	}

	var (
		w      = stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		w, closer = lj, lj
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	return slog.New(handler), closer, nil
}
