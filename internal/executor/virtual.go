package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualExecutor interprets the command line with an embedded POSIX shell,
// so no /bin/sh is needed on the host. External programs are still spawned
// by the interpreter's default exec handler.
type VirtualExecutor struct{}

// NewVirtualExecutor creates an interpreter-backed executor.
func NewVirtualExecutor() *VirtualExecutor {
	return &VirtualExecutor{}
}

// Execute parses and runs cfg.Command.
func (e *VirtualExecutor) Execute(ctx context.Context, cfg ExecuteConfig) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(cfg.Command), "command")
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}

	env := cfg.Env
	if env == nil {
		env = os.Environ()
	}

	out := cfg.Output
	if out == nil {
		out = io.Discard
	}

	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, out, out),
	}
	if cfg.Workdir != "" {
		opts = append(opts, interp.Dir(cfg.Workdir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return fmt.Errorf("create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		if ctx.Err() != nil {
			return ErrTimeout
		}
		return fmt.Errorf("command failed: %w", err)
	}

	return nil
}

// ExitCode extracts the process exit status from an Execute error.
// It returns 0 for nil and -1 when no status is available.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	if status, ok := interp.IsExitStatus(err); ok {
		return int(status)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

// New returns the executor for a shell.runtime setting.
func New(runtime string) Executor {
	if runtime == "virtual" {
		return NewVirtualExecutor()
	}
	return NewShellExecutor()
}
