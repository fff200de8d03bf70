// Package history records completed sync runs in a Postgres catalog so
// operators can audit per-index churn over time. Recording is optional; an
// empty DSN yields a no-op recorder.
package history

import (
	"context"
	"time"
)

// RunRecord is one completed synchronization run.
type RunRecord struct {
	RunID            string
	Job              string
	Index            string
	ExistingDocs     int
	DocsUpdated      int
	DocsSkipped      int
	DocsDeleted      int
	Attachments      int
	AttachmentErrors int
	BulkCalls        int
	IndexedOps       int
	ItemFailures     int
	Duration         time.Duration
	StartedAt        time.Time
}

// Recorder persists run records.
type Recorder interface {
	// RecordRun writes one completed run.
	RecordRun(ctx context.Context, rec RunRecord) error

	// LastRun returns the most recent run for an index, or nil when the
	// index has never been synced.
	LastRun(ctx context.Context, index string) (*RunRecord, error)

	// Close releases database connections.
	Close() error
}

// Config configures the history recorder.
type Config struct {
	PostgresDSN string
}

// NewRecorder creates a recorder; without a DSN it records nothing.
func NewRecorder(ctx context.Context, cfg Config) (Recorder, error) {
	if cfg.PostgresDSN == "" {
		return &noopRecorder{}, nil
	}
	return newPostgresRecorder(ctx, cfg)
}

type noopRecorder struct{}

func (noopRecorder) RecordRun(ctx context.Context, rec RunRecord) error { return nil }

func (noopRecorder) LastRun(ctx context.Context, index string) (*RunRecord, error) {
	return nil, nil
}

func (noopRecorder) Close() error { return nil }
