package main

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rashpile/scriptmate/internal/collect"
	"github.com/rashpile/scriptmate/internal/executor"
	"github.com/rashpile/scriptmate/internal/runner"
	"github.com/rashpile/scriptmate/internal/tui"
	"github.com/rashpile/scriptmate/pkg/script"
)

// presetFlags are the --set and --flag values shared by render and run.
type presetFlags struct {
	sets  []string
	flags []string
}

func (p *presetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&p.sets, "set", nil, "string argument value as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&p.flags, "flag", nil, "boolean argument as name or name=false (repeatable)")
}

func (p *presetFlags) values(def script.Definition) (script.Values, error) {
	return parsePresets(def, p.sets, p.flags)
}

func newRenderCmd(a *app) *cobra.Command {
	var presets presetFlags

	cmd := &cobra.Command{
		Use:   "render <id>",
		Short: "Print the command line for the given argument values",
		Long: `Print the command line a definition renders to. Defaults are applied
first, then --set and --flag values. Nothing is executed. Required
arguments without a default must be given with --set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			values, err := presets.values(def)
			if err != nil {
				return err
			}
			final, err := commitPresets(cmd, def, values, a.cfg.Shell.Quoting)
			if err != nil {
				return err
			}
			line := script.RenderWith(&def, final, script.Options{Quoting: a.cfg.Shell.Quoting})
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
	presets.register(cmd)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var (
		presets presetFlags
		yes     bool
		dryRun  bool
		theme   string
	)

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Collect argument values and run a definition",
		Long: `Run a definition. A review form shows the command line and lets you
edit any argument before executing; esc abandons. With --yes the form is
skipped and the defaults plus --set/--flag values are used as they are.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			preset, err := presets.values(def)
			if err != nil {
				return err
			}

			history := a.history()
			defer history.Close()

			exec := executor.New(a.cfg.Shell.Runtime)
			settings := runner.SettingsFrom(a.cfg)
			settings.MaxOutput = 0 // the terminal takes all of it
			run := runner.New(exec, history, settings, runner.WithLogger(a.logger))
			notice := run.Plan(def, nil).Notice()

			var values script.Values
			if yes {
				values, err = commitPresets(cmd, def, preset, a.cfg.Shell.Quoting)
			} else {
				cfg := tui.DefaultConfig()
				if cfg.Theme, err = tui.ParseTheme(theme); err != nil {
					return err
				}
				values, err = collect.Run(cmd.Context(), def, tui.NewPrompter(cfg, notice),
					collect.WithQuoting(a.cfg.Shell.Quoting), collect.WithValues(preset))
			}
			if errors.Is(err, collect.ErrAbandoned) {
				fmt.Fprintln(cmd.ErrOrStderr(), tui.Muted("Script execution cancelled."))
				return nil
			}
			if err != nil {
				return err
			}

			plan := run.Plan(def, values)
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(out, plan.Command)
				fmt.Fprintln(cmd.ErrOrStderr(), tui.Muted(plan.Notice()))
				return nil
			}

			fmt.Fprintln(cmd.ErrOrStderr(), tui.Title("$ "+plan.Command)+" "+tui.Muted(plan.Notice()))
			res := run.Run(cmd.Context(), plan, out, runner.Origin{Source: "cli", Username: currentUser()})
			fmt.Fprintln(cmd.ErrOrStderr(), resultLine(res))
			if res.Err != nil {
				code := res.ExitCode
				if code <= 0 {
					code = 1
				}
				return &exitError{code: code}
			}
			return nil
		},
	}
	presets.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the review form")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the command instead of running it")
	cmd.Flags().StringVar(&theme, "theme", "", "form theme: default, charm, dracula, catppuccin or base16")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			history := a.history()
			defer history.Close()

			entries, err := history.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, tui.Muted("No executions recorded yet."))
				return nil
			}
			for _, e := range entries {
				who := e.Source
				if e.Username != "" {
					who += ":" + e.Username
				}
				fmt.Fprintf(out, "%s  %-16s exit %-3d %-8s %s\n",
					e.Timestamp.Local().Format(time.DateTime), e.CommandID, e.ExitCode,
					(time.Duration(e.DurationMs) * time.Millisecond).String(), tui.Muted(who))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of entries")
	return cmd
}

// parsePresets converts --set name=value and --flag name[=bool] into values
// checked against def's arguments.
func parsePresets(def script.Definition, sets, flags []string) (script.Values, error) {
	values := script.Values{}

	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: expected name=value", s)
		}
		arg, found := def.Arg(name)
		if !found {
			return nil, fmt.Errorf("--set %q: %s has no argument %q", s, def.ID, name)
		}
		if arg.Type != script.TypeString {
			return nil, fmt.Errorf("--set %q: %q is a boolean, use --flag", s, name)
		}
		values[name] = value
	}

	for _, f := range flags {
		name, raw, hasValue := strings.Cut(f, "=")
		arg, found := def.Arg(name)
		if !found {
			return nil, fmt.Errorf("--flag %q: %s has no argument %q", f, def.ID, name)
		}
		if arg.Type != script.TypeBoolean {
			return nil, fmt.Errorf("--flag %q: %q is a string, use --set", f, name)
		}
		v := true
		if hasValue {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("--flag %q: %w", f, err)
			}
			v = b
		}
		values[name] = v
	}

	return values, nil
}

// commitPresets commits defaults plus presets without prompting. When a
// required argument is still unset the review is printed to stderr.
func commitPresets(cmd *cobra.Command, def script.Definition, preset script.Values, q script.Quoting) (script.Values, error) {
	s := collect.Start(def, collect.WithValues(preset), collect.WithQuoting(q))
	values, err := s.Commit()
	if errors.Is(err, collect.ErrRequiredArgumentMissing) {
		fmt.Fprintln(cmd.ErrOrStderr(), tui.Muted(s.Review().Summary()))
		return nil, fmt.Errorf("%s: %w (use --set)", def.ID, err)
	}
	return values, err
}

func resultLine(res runner.Result) string {
	d := res.Duration.Round(time.Millisecond)
	switch {
	case errors.Is(res.Err, executor.ErrTimeout):
		return tui.Error(fmt.Sprintf("Timed out after %s", d))
	case res.Err != nil:
		return tui.Error(fmt.Sprintf("Exit code %d after %s", res.ExitCode, d))
	case res.Truncated:
		return tui.Success(fmt.Sprintf("Done in %s", d)) + " " + tui.Muted("(output truncated)")
	default:
		return tui.Success(fmt.Sprintf("Done in %s", d))
	}
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
