// Package syncer implements the streaming diff-and-batch engine: it mirrors
// a source document stream into a remote index, upserting changed
// documents, skipping unchanged ones, and deleting vanished ones.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/index"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/metrics"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/source"
)

// Syncer runs synchronization passes for one index.
type Syncer struct {
	store index.Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
}

// New creates a syncer bound to an index store.
func New(store index.Store, cfg Config) *Syncer {
	cfg = cfg.withDefaults()
	return &Syncer{
		store: store,
		cfg:   cfg,
		log:   slog.With("component", "syncer", "index", cfg.Index),
		now:   time.Now,
	}
}

// Sync runs one synchronization pass: scan the existing state, then run the
// fetcher and bulker concurrently over a shared hand-off channel. The first
// failure in either cancels the other; on success every produced operation
// has been acknowledged by a bulk call.
func (s *Syncer) Sync(ctx context.Context, src source.DocumentSource) (*Result, error) {
	start := s.now()
	runID := uuid.New().String()
	log := s.log.With("run_id", runID)

	// The snapshot must be complete before the fetcher starts diffing.
	existing, err := s.scanExisting(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan existing: %w", err)
	}
	log.Info("scanned existing documents",
		"count", len(existing),
		"duration", time.Since(start).String(),
	)

	stream := make(chan envelope, s.cfg.QueueSize)
	docs, errs := src.Stream(ctx)

	f := newFetcher(s.cfg.Index, existing, stream, s.cfg.QueueSize, s.now)
	b := newBulker(s.store, stream, s.cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.run(gctx, docs, errs) })
	g.Go(func() error { return b.run(gctx) })

	if err := g.Wait(); err != nil {
		if m := metrics.Get(); m != nil {
			m.IncSyncErrors(s.cfg.Index)
		}
		return nil, err
	}

	res := &Result{
		RunID:            runID,
		Index:            s.cfg.Index,
		ExistingDocs:     len(existing),
		DocsUpdated:      f.docsUpdated,
		DocsSkipped:      f.docsSkipped,
		DocsDeleted:      f.docsDeleted,
		Attachments:      f.attachments,
		AttachmentErrors: f.attachmentErrors,
		BulkCalls:        int(b.bulkCalls.Load()),
		IndexedOps:       int(b.indexedOps.Load()),
		ItemFailures:     int(b.itemFailures.Load()),
		BulkTime:         time.Duration(b.bulkNanos.Load()),
		Duration:         time.Since(start),
	}

	log.Info("sync complete",
		"updated", res.DocsUpdated,
		"skipped", res.DocsSkipped,
		"deleted", res.DocsDeleted,
		"attachments", res.Attachments,
		"attachment_errors", res.AttachmentErrors,
		"bulk_calls", res.BulkCalls,
		"item_failures", res.ItemFailures,
		"bulk_time", res.BulkTime.String(),
		"duration", res.Duration.String(),
	)

	if m := metrics.Get(); m != nil {
		m.RecordRun(s.cfg.Index,
			res.DocsUpdated, res.DocsSkipped, res.DocsDeleted,
			res.Attachments, res.AttachmentErrors,
			res.Duration.Seconds(),
		)
	}

	return res, nil
}

// scanExisting materializes the id/timestamp projection of the index. A
// missing index yields an empty snapshot; anything else aborts the run.
func (s *Syncer) scanExisting(ctx context.Context) (map[string]string, error) {
	existing := make(map[string]string)
	entries, errs := s.store.ScanEntries(ctx, s.cfg.Index)

	for entries != nil || errs != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			existing[e.ID] = e.Timestamp

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				if errors.Is(err, index.ErrIndexNotFound) {
					s.log.Debug("index missing, starting from empty snapshot")
					return map[string]string{}, nil
				}
				return nil, err
			}
		}
	}

	return existing, nil
}
