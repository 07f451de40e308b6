// Package watch fires a debounced callback when a single file changes.
//
// The parent directory is watched rather than the file itself so that
// editors which save by writing a temp file and renaming it are still seen,
// and so a file that does not exist yet can be picked up once created.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces the burst of events a single save produces.
const defaultDebounce = 300 * time.Millisecond

// Config holds the parameters for a Watcher.
type Config struct {
	// Path returns the file to watch. It is re-evaluated on Retarget.
	// An empty path watches nothing.
	Path func() string

	// Debounce is the quiet period after the last event before OnChange
	// runs. Zero or negative values fall back to defaultDebounce.
	Debounce time.Duration

	// OnChange runs on the Run goroutine; calls never overlap.
	OnChange func(ctx context.Context)

	Logger *slog.Logger
}

// Watcher follows one file. Run must be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	retarget chan struct{}
	started  atomic.Bool

	// owned by the Run goroutine
	dir  string
	file string
}

// New creates a Watcher from the given Config.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == nil {
		return nil, errors.New("watch: Path is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	return &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		logger:   logger,
		debounce: debounce,
		retarget: make(chan struct{}, 1),
	}, nil
}

// Retarget asks Run to re-read Path and move the watch if it changed.
// It never blocks.
func (w *Watcher) Retarget() {
	select {
	case w.retarget <- struct{}{}:
	default:
	}
}

// Run processes events until ctx is cancelled. It returns nil on clean
// cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}
	defer w.fsw.Close()

	fired := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.target()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.retarget:
			w.target()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.file == "" || filepath.Clean(ev.Name) != w.file {
				continue
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fired <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watch error", "file", w.file, "error", err)

		case <-fired:
			if w.cfg.OnChange != nil && ctx.Err() == nil {
				w.cfg.OnChange(ctx)
			}
		}
	}
}

// target points the fsnotify watch at the directory of the current path.
func (w *Watcher) target() {
	path := w.cfg.Path()
	if path == "" {
		w.drop()
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		w.logger.Warn("cannot resolve watched file", "path", path, "error", err)
		return
	}
	w.file = filepath.Clean(abs)

	dir := filepath.Dir(w.file)
	if dir == w.dir {
		return
	}
	w.drop()
	w.file = filepath.Clean(abs)

	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("cannot watch directory", "dir", dir, "error", err)
		return
	}
	w.dir = dir
	w.logger.Debug("watching file", "file", w.file)
}

func (w *Watcher) drop() {
	if w.dir != "" {
		_ = w.fsw.Remove(w.dir)
	}
	w.dir = ""
	w.file = ""
}
