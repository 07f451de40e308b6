// Package executor runs rendered command lines with streaming output.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// ErrTimeout is returned when the context ends before the command finishes.
var ErrTimeout = errors.New("command timed out or cancelled")

// ExecuteConfig describes one invocation.
type ExecuteConfig struct {
	Command string    // full command line, already rendered
	Workdir string    // empty inherits the process cwd
	Env     []string  // KEY=VALUE; nil inherits the process environment
	Output  io.Writer // receives stdout and stderr
}

// Executor runs a command line.
type Executor interface {
	Execute(ctx context.Context, cfg ExecuteConfig) error
}

// ShellExecutor runs commands via /bin/sh -c.
type ShellExecutor struct{}

// NewShellExecutor creates a shell executor.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

// Execute runs a shell command with the provided configuration.
func (e *ShellExecutor) Execute(ctx context.Context, cfg ExecuteConfig) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cfg.Command)
	cmd.Stdout = cfg.Output
	cmd.Stderr = cfg.Output
	cmd.Env = cfg.Env

	if cfg.Workdir != "" {
		cmd.Dir = cfg.Workdir
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ErrTimeout
		}
		return fmt.Errorf("command failed: %w", err)
	}

	return nil
}
