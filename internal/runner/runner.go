// Package runner turns a committed definition into an invocation and runs it.
package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/rashpile/scriptmate/internal/audit"
	"github.com/rashpile/scriptmate/internal/config"
	"github.com/rashpile/scriptmate/internal/executor"
	"github.com/rashpile/scriptmate/pkg/script"
)

// Settings are the config values an invocation depends on.
// They are replaced as a whole when the config file changes.
type Settings struct {
	BaseDirectory string
	GlobalEnv     map[string]string
	Quoting       script.Quoting
	Timeout       time.Duration
	MaxOutput     int
}

// SettingsFrom extracts runner settings from a loaded config.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		BaseDirectory: cfg.BaseDirectory,
		GlobalEnv:     cfg.GlobalEnv,
		Quoting:       cfg.Shell.Quoting,
		Timeout:       cfg.Defaults.Timeout,
		MaxOutput:     cfg.Defaults.MaxOutput,
	}
}

// Plan is a fully resolved invocation.
type Plan struct {
	DefinitionID string
	Label        string
	Command      string
	Workdir      string // empty when no base directory is known
	Env          []string
}

// Notice is the line shown next to the command before it runs.
func (p Plan) Notice() string {
	if p.Workdir == "" {
		return "(Base directory not set! Command may fail.)"
	}
	return "(Will run in: " + p.Workdir + ")"
}

// Origin identifies who asked for an execution.
type Origin struct {
	Source   string
	ChatID   int64
	Username string
}

// Result describes a finished execution.
type Result struct {
	ExitCode  int
	Duration  time.Duration
	Truncated bool
	Err       error
}

// Runner plans and executes commands. It is safe for concurrent use.
type Runner struct {
	exec     executor.Executor
	history  audit.Logger
	logger   *slog.Logger
	environ  func() []string
	settings atomic.Pointer[Settings]
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithEnviron replaces the ambient environment source.
func WithEnviron(fn func() []string) Option {
	return func(r *Runner) { r.environ = fn }
}

// New creates a runner. A nil history disables recording.
func New(exec executor.Executor, history audit.Logger, s Settings, opts ...Option) *Runner {
	if history == nil {
		history = audit.NopLogger{}
	}
	r := &Runner{
		exec:    exec,
		history: history,
		logger:  slog.Default(),
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.SetSettings(s)
	return r
}

// SetSettings swaps the settings used by subsequent plans.
func (r *Runner) SetSettings(s Settings) {
	r.settings.Store(&s)
}

// Settings returns the current settings.
func (r *Runner) Settings() Settings {
	return *r.settings.Load()
}

// Plan renders def with values and resolves where and how it runs.
// A definition's own base directory overrides the configured one.
func (r *Runner) Plan(def script.Definition, values script.Values) Plan {
	s := r.settings.Load()

	workdir := def.BaseDirectory
	if workdir == "" {
		workdir = s.BaseDirectory
	}

	return Plan{
		DefinitionID: def.ID,
		Label:        def.Label,
		Command:      script.RenderWith(&def, values, script.Options{Quoting: s.Quoting}),
		Workdir:      workdir,
		Env:          executor.BuildEnv(r.environ(), s.GlobalEnv, config.BaseDirectoryEnv, workdir),
	}
}

// Run executes plan, streaming output to out, and records it in history.
func (r *Runner) Run(ctx context.Context, plan Plan, out io.Writer, origin Origin) Result {
	s := r.settings.Load()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	if out == nil {
		out = io.Discard
	}
	var tw *executor.TruncatingWriter
	if s.MaxOutput > 0 {
		tw = executor.NewTruncatingWriter(out, s.MaxOutput)
		out = tw
	}

	r.logger.Info("executing command",
		"id", plan.DefinitionID,
		"source", origin.Source,
		"chat_id", origin.ChatID,
		"workdir", plan.Workdir,
	)

	start := time.Now()
	err := r.exec.Execute(ctx, executor.ExecuteConfig{
		Command: plan.Command,
		Workdir: plan.Workdir,
		Env:     plan.Env,
		Output:  out,
	})
	res := Result{
		ExitCode: executor.ExitCode(err),
		Duration: time.Since(start),
		Err:      err,
	}
	if tw != nil {
		res.Truncated = tw.Truncated()
	}

	switch {
	case err == nil:
		r.logger.Info("command finished", "id", plan.DefinitionID, "duration", res.Duration)
	case errors.Is(err, executor.ErrTimeout):
		r.logger.Warn("command timed out", "id", plan.DefinitionID, "timeout", s.Timeout)
	default:
		r.logger.Warn("command failed", "id", plan.DefinitionID, "exit_code", res.ExitCode, "error", err)
	}

	entry := audit.Entry{
		Timestamp:  start,
		Source:     origin.Source,
		ChatID:     origin.ChatID,
		Username:   origin.Username,
		CommandID:  plan.DefinitionID,
		Rendered:   plan.Command,
		Workdir:    plan.Workdir,
		ExitCode:   res.ExitCode,
		DurationMs: res.Duration.Milliseconds(),
	}
	// History must be written even when the caller's context is already done.
	if err := r.history.Log(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("failed to record execution", "id", plan.DefinitionID, "error", err)
	}

	return res
}

// History exposes the execution log.
func (r *Runner) History() audit.Logger {
	return r.history
}
