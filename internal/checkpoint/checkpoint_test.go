package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFileManagerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(Config{Enabled: true, Dir: dir})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	ctx := context.Background()

	if _, err := mgr.Load(ctx, "search-wiki"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load before Save err = %v, want ErrNoCheckpoint", err)
	}

	cp := &Checkpoint{
		SyncerID:    "syncer-1",
		Index:       "search-wiki",
		LastRunID:   "run-abc",
		DocsUpdated: 42,
		DocsSkipped: 7,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := mgr.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := mgr.Load(ctx, "search-wiki")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LastRunID != "run-abc" || loaded.DocsUpdated != 42 || loaded.DocsSkipped != 7 {
		t.Errorf("loaded = %+v", loaded)
	}

	// Checkpoints are keyed per index.
	if _, err := mgr.Load(ctx, "search-other"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load(other index) err = %v, want ErrNoCheckpoint", err)
	}
}

func TestSaveRequiresIndex(t *testing.T) {
	mgr, err := NewManager(Config{Enabled: true, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := mgr.Save(context.Background(), &Checkpoint{}); err == nil {
		t.Error("expected error for checkpoint without index")
	}
}

func TestNoopManager(t *testing.T) {
	mgr, err := NewManager(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	ctx := context.Background()
	if err := mgr.Save(ctx, &Checkpoint{Index: "x"}); err != nil {
		t.Errorf("noop Save err = %v", err)
	}
	if _, err := mgr.Load(ctx, "x"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("noop Load err = %v, want ErrNoCheckpoint", err)
	}
}
