package store

import (
	"context"
	"time"

	"github.com/rashpile/scriptmate/internal/watch"
)

// Watch reloads r whenever its backing file is changed by someone else.
// It follows SetPath and blocks until ctx is cancelled.
func Watch(ctx context.Context, r *Registry, debounce time.Duration) error {
	w, err := watch.New(watch.Config{
		Path:     r.Path,
		Debounce: debounce,
		Logger:   r.logger,
		OnChange: func(ctx context.Context) {
			reloaded, err := r.ReloadIfChanged()
			if err != nil {
				r.logger.Warn("commands reload failed", "error", err)
				return
			}
			if reloaded {
				r.logger.Info("commands reloaded after external change", "count", r.Len())
			}
		},
	})
	if err != nil {
		return err
	}

	unsubscribe := r.Subscribe(w.Retarget)
	defer unsubscribe()

	return w.Run(ctx)
}
