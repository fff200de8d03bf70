// Package checkpoint persists per-index sync state between runs.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists for an index.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Checkpoint is the durable record of the last completed run for one index.
type Checkpoint struct {
	SyncerID         string    `json:"syncer_id"`
	Index            string    `json:"index"`
	LastRunID        string    `json:"last_run_id"`
	DocsUpdated      int       `json:"docs_updated"`
	DocsSkipped      int       `json:"docs_skipped"`
	DocsDeleted      int       `json:"docs_deleted"`
	Attachments      int       `json:"attachments"`
	AttachmentErrors int       `json:"attachment_errors"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the checkpoint for an index.
	Load(ctx context.Context, index string) (*Checkpoint, error)

	// Save persists the checkpoint for cp.Index.
	Save(ctx context.Context, cp *Checkpoint) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // directory for checkpoint files
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{dir: cfg.Dir}, nil
}

// fileManager persists checkpoints to one JSON file per index.
type fileManager struct {
	dir string
}

func (m *fileManager) checkpointPath(index string) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s.json", index))
}

// Load reads the checkpoint for an index.
func (m *fileManager) Load(ctx context.Context, index string) (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath(index))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}

	return &cp, nil
}

// Save persists the checkpoint to file.
func (m *fileManager) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.Index == "" {
		return errors.New("checkpoint has no index")
	}
	path := m.checkpointPath(cp.Index)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// noopManager is used when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context, index string) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, cp *Checkpoint) error {
	return nil
}
