package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/index"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/metrics"
)

// bulker drains the hand-off channel into fixed-size chunks and submits
// each chunk as an independent concurrent bulk call. It terminates once
// both end markers have been observed and every in-flight call is awaited.
type bulker struct {
	store         index.Store
	indexName     string
	in            <-chan envelope
	chunkSize     int
	retryAttempts int
	retryBackoff  time.Duration
	log           *slog.Logger

	// updated from concurrent submissions
	bulkCalls    atomic.Int64
	indexedOps   atomic.Int64
	itemFailures atomic.Int64
	bulkNanos    atomic.Int64
}

func newBulker(store index.Store, in <-chan envelope, cfg Config) *bulker {
	return &bulker{
		store:         store,
		indexName:     cfg.Index,
		in:            in,
		chunkSize:     cfg.ChunkSize,
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
		log:           slog.With("component", "bulker", "index", cfg.Index),
	}
}

// run returns once both markers arrived and all submitted chunks are
// acknowledged, or once the context is canceled.
func (b *bulker) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var batch []index.Operation
	docsEnded, downloadsEnded := false, false

	flush := func() {
		if len(batch) == 0 {
			return
		}
		chunk := batch
		batch = nil
		g.Go(func() error { return b.submit(gctx, chunk) })
	}

loop:
	for !docsEnded || !downloadsEnded {
		select {
		case <-gctx.Done():
			break loop

		case env := <-b.in:
			switch env.end {
			case endDocs:
				docsEnded = true
			case endDownloads:
				downloadsEnded = true
			default:
				batch = append(batch, *env.op)
				if len(batch) >= b.chunkSize {
					flush()
				}
			}
		}
	}

	if docsEnded && downloadsEnded {
		flush()
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if !docsEnded || !downloadsEnded {
		// Canceled before the fetcher finished; the partial batch is
		// deliberately discarded.
		return ctx.Err()
	}
	return nil
}

// submit issues one bulk call with bounded retry and exponential backoff.
func (b *bulker) submit(ctx context.Context, chunk []index.Operation) error {
	var lastErr error

	for attempt := 0; attempt < b.retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := b.retryBackoff * (1 << (attempt - 1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		res, err := b.store.Bulk(ctx, chunk)
		elapsed := time.Since(start)
		b.bulkNanos.Add(elapsed.Nanoseconds())

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			b.log.Warn("bulk call failed",
				"ops", len(chunk),
				"attempt", attempt+1,
				"error", err,
			)
			if m := metrics.Get(); m != nil {
				m.IncBulkRetries(b.indexName)
			}
			continue
		}

		b.bulkCalls.Add(1)
		total := b.indexedOps.Add(int64(len(chunk)))
		if n := len(res.Failed); n > 0 {
			b.itemFailures.Add(int64(n))
			b.log.Warn("bulk items rejected",
				"rejected", n,
				"first_reason", res.Failed[0].Reason,
			)
		}
		if m := metrics.Get(); m != nil {
			m.ObserveBulkCall(b.indexName, len(chunk), elapsed.Seconds())
			m.AddItemFailures(b.indexName, len(res.Failed))
		}
		b.log.Debug("submitted chunk", "ops", len(chunk), "total_ops", total)
		return nil
	}

	return fmt.Errorf("bulk submit of %d ops failed after %d attempts: %w",
		len(chunk), b.retryAttempts, lastErr)
}
