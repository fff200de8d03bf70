package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherRunsImmediatelyAndOnTicks(t *testing.T) {
	var passes atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	w := New(10*time.Millisecond, func(ctx context.Context) error {
		if passes.Add(1) >= 3 {
			cancel()
		}
		return nil
	})

	err := w.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
	if got := passes.Load(); got < 3 {
		t.Errorf("passes = %d, want at least 3", got)
	}
}

func TestWatcherContinuesAfterFailure(t *testing.T) {
	var passes atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	w := New(10*time.Millisecond, func(ctx context.Context) error {
		n := passes.Add(1)
		if n >= 2 {
			cancel()
			return nil
		}
		return errors.New("pass failed")
	})

	_ = w.Run(ctx)
	if got := passes.Load(); got < 2 {
		t.Errorf("passes = %d, want at least 2 (failure must not stop the schedule)", got)
	}
}
