package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileBackup appends events to a local NDJSON audit file.
type FileBackup struct {
	mu   sync.Mutex
	path string
}

// NewFileBackup creates a backup writer under dir.
func NewFileBackup(dir string) (*FileBackup, error) {
	if dir == "" {
		dir = "./notify-backup"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	return &FileBackup{path: filepath.Join(dir, "events.ndjson")}, nil
}

// Save appends one event as a single JSON line.
func (f *FileBackup) Save(evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// FileEmitter writes events to the local audit file only (no HTTP).
type FileEmitter struct {
	chainTracker *ChainTracker
	backup       *FileBackup
	version      string
	log          *slog.Logger
}

// NewFileEmitter creates an emitter that only writes locally.
func NewFileEmitter(cfg Config) (*FileEmitter, error) {
	chainTracker, err := NewChainTracker(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	backup, err := NewFileBackup(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}

	return &FileEmitter{
		chainTracker: chainTracker,
		backup:       backup,
		version:      cfg.Version,
		log:          slog.With("component", "notify"),
	}, nil
}

// EmitRun chains and appends one run event.
func (e *FileEmitter) EmitRun(ctx context.Context, run RunInfo) error {
	evt := buildEvent(run, e.version, time.Now())

	prevHash, _ := e.chainTracker.GetHead(run.ChainKey())
	evt.SetChainHashes(prevHash)

	e.log.Debug("file-only emit",
		"index", run.Index,
		"run_id", run.RunID,
		"event_hash", evt.Chain.EventHash,
	)

	if err := e.backup.Save(evt); err != nil {
		return err
	}

	if err := e.chainTracker.SetHead(run.ChainKey(), evt.Chain.EventHash); err != nil {
		e.log.Warn("failed to update chain head", "error", err)
	}
	return nil
}

// Close releases resources.
func (e *FileEmitter) Close() error {
	return nil
}
