// Package watcher re-runs all configured sync jobs on a fixed interval.
package watcher

import (
	"context"
	"log/slog"
	"time"
)

// RunAll executes one pass over every enabled job. A pass-level error is
// logged by the caller and does not stop the watcher.
type RunAll func(ctx context.Context) error

// Watcher drives periodic synchronization.
type Watcher struct {
	interval time.Duration
	run      RunAll
	log      *slog.Logger
}

// New creates a watcher that invokes run every interval.
func New(interval time.Duration, run RunAll) *Watcher {
	return &Watcher{
		interval: interval,
		run:      run,
		log:      slog.With("component", "watcher"),
	}
}

// Run executes an immediate pass, then one per tick until the context is
// canceled. A failing pass is logged and the schedule continues.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watching", "interval", w.interval.String())

	if err := w.run(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Error("sync pass failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopping")
			return ctx.Err()

		case <-ticker.C:
			if err := w.run(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.log.Error("sync pass failed", "error", err)
			}
		}
	}
}
