package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rashpile/scriptmate/internal/audit"
	"github.com/rashpile/scriptmate/internal/auth"
	"github.com/rashpile/scriptmate/internal/bot"
	"github.com/rashpile/scriptmate/internal/config"
	"github.com/rashpile/scriptmate/internal/executor"
	"github.com/rashpile/scriptmate/internal/runner"
	"github.com/rashpile/scriptmate/internal/status"
	"github.com/rashpile/scriptmate/internal/store"
	"github.com/rashpile/scriptmate/internal/watch"
)

func newBotCmd(a *app) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Serve the catalog over Telegram",
		Long: `Start the Telegram bot. Allowed chats can run definitions; admin chats
can also add, edit and delete them. The commands file and the config file
are watched and reloaded when they change on disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serveBot(cmd.Context(), !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload files changed on disk")
	return cmd
}

func (a *app) serveBot(ctx context.Context, watchFiles bool) error {
	cfg := a.cfg
	if err := cfg.ValidateBot(); err != nil {
		return err
	}

	a.logger.Info("configuration loaded",
		"commands", a.registry.Path(),
		"definitions", a.registry.Len(),
		"database", cfg.Database.Path,
		"runtime", cfg.Shell.Runtime,
	)

	history, err := audit.NewSQLiteLogger(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer history.Close()

	authorizer := auth.NewAllowlist(cfg.Telegram.AllowedChatIDs, cfg.Telegram.AdminChatIDs)
	run := runner.New(executor.New(cfg.Shell.Runtime), history, runner.SettingsFrom(cfg),
		runner.WithLogger(a.logger))

	collector := status.NewGopsutilCollector(func() string {
		return run.Settings().BaseDirectory
	})

	b, err := bot.New(bot.Config{
		Token:           cfg.Telegram.Token,
		Authorizer:      authorizer,
		Registry:        a.registry,
		Runner:          run,
		Status:          collector,
		ArgumentTimeout: cfg.Defaults.ArgumentTimeout,
		AllowedChatIDs:  cfg.Telegram.AllowedChatIDs,
		Logger:          a.logger.With("component", "bot"),
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if watchFiles {
		configPath, err := filepath.Abs(a.configPath)
		if err != nil {
			return err
		}
		reloader := &configReloader{app: a, auth: authorizer, runner: run, current: cfg}
		w, err := watch.New(watch.Config{
			Path:     func() string { return configPath },
			OnChange: reloader.reload,
			Logger:   a.logger.With("component", "config-watch"),
		})
		if err != nil {
			return err
		}

		// Watcher failures are logged, not fatal.
		g.Go(func() error {
			if err := store.Watch(ctx, a.registry, 0); err != nil {
				a.logger.Error("commands watcher stopped", "error", err)
			}
			return nil
		})
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				a.logger.Error("config watcher stopped", "error", err)
			}
			return nil
		})
	}

	b.NotifyStartup()
	a.logger.Info("starting bot")
	g.Go(func() error { return b.Run(ctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// configReloader applies a changed config file to a running bot. Settings
// that need a restart (token, database, runtime, logging) are left alone.
type configReloader struct {
	app     *app
	auth    *auth.Allowlist
	runner  *runner.Runner
	current *config.Config // last applied; only touched by the watcher goroutine
}

func (r *configReloader) reload(context.Context) {
	logger := r.app.logger

	cfg, err := config.Load(r.app.configPath)
	if err != nil {
		logger.Warn("config reload failed, keeping previous settings", "error", err)
		return
	}

	if r.app.commandsPath == "" {
		path, err := cfg.ResolveCommandsPath()
		switch {
		case errors.Is(err, config.ErrRelativeCommandsPath):
			logger.Warn("ignoring commands_path", "error", err)
		case err != nil:
			logger.Warn("config reload failed, keeping previous settings", "error", err)
			return
		}
		if path != r.app.registry.Path() {
			if err := r.app.registry.SetPath(path); err != nil {
				logger.Warn("new commands file could not be loaded", "path", path, "error", err)
			}
		}
	}

	r.auth.Reload(cfg.Telegram.AllowedChatIDs, cfg.Telegram.AdminChatIDs)
	r.runner.SetSettings(runner.SettingsFrom(cfg))

	if restartNeeded(r.current, cfg) {
		logger.Warn("some config changes take effect only after a restart")
	}
	r.current = cfg
	logger.Info("config reloaded", "commands", r.app.registry.Path(), "base_directory", cfg.BaseDirectory)
}

// restartNeeded reports changes to settings the running bot cannot apply.
func restartNeeded(old, cur *config.Config) bool {
	return old.Telegram.Token != cur.Telegram.Token ||
		old.Database.Path != cur.Database.Path ||
		old.Shell.Runtime != cur.Shell.Runtime ||
		old.Log != cur.Log ||
		old.Defaults.ArgumentTimeout != cur.Defaults.ArgumentTimeout
}
