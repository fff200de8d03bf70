package notify

import (
	"context"
	"log/slog"
	"time"
)

const (
	eventVersion = "1.0"
	eventType    = "sync_run"
	producerName = "index-syncer"
)

// Emitter is the interface for sync-run event emission.
type Emitter interface {
	EmitRun(ctx context.Context, run RunInfo) error
	Close() error
}

// Config configures event emission.
type Config struct {
	Enabled   bool
	Endpoint  string // webhook URL; empty means file-only
	BackupDir string
	Version   string // producer version label
}

// NewEmitter creates an appropriate emitter based on configuration. A
// construction failure degrades toward file-only and then no-op emission
// rather than blocking sync runs.
func NewEmitter(cfg Config) Emitter {
	log := slog.With("component", "notify")

	if !cfg.Enabled {
		log.Debug("notifications disabled, using no-op emitter")
		return &noopEmitter{}
	}

	if cfg.Endpoint != "" {
		emitter, err := NewHTTPEmitter(cfg)
		if err != nil {
			log.Warn("failed to create HTTP emitter, falling back to file-only", "error", err)
			return newFileOnly(cfg, log)
		}
		log.Info("using HTTP emitter", "endpoint", cfg.Endpoint)
		return emitter
	}

	return newFileOnly(cfg, log)
}

func newFileOnly(cfg Config, log *slog.Logger) Emitter {
	emitter, err := NewFileEmitter(cfg)
	if err != nil {
		log.Warn("failed to create file emitter, using no-op", "error", err)
		return &noopEmitter{}
	}
	log.Info("using file-only emitter", "dir", cfg.BackupDir)
	return emitter
}

// buildEvent wraps run aggregates into a chain-ready event.
func buildEvent(run RunInfo, version string, now time.Time) *Event {
	return &Event{
		Version:   eventVersion,
		EventType: eventType,
		EventID:   GenerateEventID(now),
		Timestamp: now.UTC(),
		Run:       run,
		Producer: ProducerInfo{
			Name:    producerName,
			Version: version,
		},
	}
}

// noopEmitter discards all events.
type noopEmitter struct{}

func (n *noopEmitter) EmitRun(_ context.Context, _ RunInfo) error { return nil }

func (n *noopEmitter) Close() error { return nil }
