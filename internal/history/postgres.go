package history

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// postgresRecorder implements Recorder using PostgreSQL.
type postgresRecorder struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func newPostgresRecorder(ctx context.Context, cfg Config) (*postgresRecorder, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &postgresRecorder{
		pool: pool,
		log:  slog.With("component", "history"),
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	r.log.Info("connected to run history catalog")
	return r, nil
}

// RecordRun writes one completed run.
func (r *postgresRecorder) RecordRun(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO sync_runs (
			run_id, job, index_name, existing_docs,
			docs_updated, docs_skipped, docs_deleted,
			attachments, attachment_errors,
			bulk_calls, indexed_ops, item_failures,
			duration_ms, started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.RunID,
		rec.Job,
		rec.Index,
		rec.ExistingDocs,
		rec.DocsUpdated,
		rec.DocsSkipped,
		rec.DocsDeleted,
		rec.Attachments,
		rec.AttachmentErrors,
		rec.BulkCalls,
		rec.IndexedOps,
		rec.ItemFailures,
		rec.Duration.Milliseconds(),
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	r.log.Debug("recorded run", "run_id", rec.RunID, "index", rec.Index)
	return nil
}

// LastRun returns the most recent run for an index.
func (r *postgresRecorder) LastRun(ctx context.Context, index string) (*RunRecord, error) {
	query := `
		SELECT run_id, job, index_name, existing_docs,
		       docs_updated, docs_skipped, docs_deleted,
		       attachments, attachment_errors,
		       bulk_calls, indexed_ops, item_failures,
		       duration_ms, started_at
		FROM sync_runs
		WHERE index_name = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	var rec RunRecord
	var durationMS int64
	err := r.pool.QueryRow(ctx, query, index).Scan(
		&rec.RunID, &rec.Job, &rec.Index, &rec.ExistingDocs,
		&rec.DocsUpdated, &rec.DocsSkipped, &rec.DocsDeleted,
		&rec.Attachments, &rec.AttachmentErrors,
		&rec.BulkCalls, &rec.IndexedOps, &rec.ItemFailures,
		&durationMS, &rec.StartedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get last run: %w", err)
	}

	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}

// Close releases database connections.
func (r *postgresRecorder) Close() error {
	r.pool.Close()
	return nil
}
