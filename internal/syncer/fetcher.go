package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/index"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/source"
)

// download is one scheduled attachment fetch. The document sub-flow starts
// it and hands it over; the attachment sub-flow awaits done.
type download struct {
	done chan struct{}
	rec  document.Fields
	err  error
}

// fetcher consumes the source stream, diffs against the existing-state
// snapshot, and emits operations plus the two end markers. Its two
// sub-flows hand scheduled downloads over a dedicated channel so ordering
// stays scheduling order even under real parallelism.
type fetcher struct {
	index    string
	existing map[string]string // id -> timestamp, read-only after scan
	out      chan<- envelope
	pending  chan *download
	now      func() time.Time
	log      *slog.Logger

	// mutated by the document sub-flow only
	docsUpdated int
	docsSkipped int
	docsDeleted int

	// mutated by the attachment sub-flow only
	attachments      int
	attachmentErrors int
}

func newFetcher(indexName string, existing map[string]string, out chan<- envelope, queueSize int, now func() time.Time) *fetcher {
	return &fetcher{
		index:    indexName,
		existing: existing,
		out:      out,
		pending:  make(chan *download, queueSize),
		now:      now,
		log:      slog.With("component", "fetcher", "index", indexName),
	}
}

// run consumes the source to exhaustion. When it returns nil, every
// produced operation has been enqueued and both end markers sent.
func (f *fetcher) run(ctx context.Context, docs <-chan source.Fetched, errs <-chan error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.runDocs(gctx, docs, errs) })
	g.Go(func() error { return f.runDownloads(gctx) })
	return g.Wait()
}

// runDocs is the document sub-flow: diff, schedule downloads, emit updates,
// then deletes for vanished ids, then the docs end marker.
func (f *fetcher) runDocs(ctx context.Context, docs <-chan source.Fetched, errs <-chan error) error {
	// Closing pending lets the attachment sub-flow finish once it has
	// drained everything scheduled so far.
	defer close(f.pending)

	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("source error: %w", err)
			}

		case fd, ok := <-docs:
			if !ok {
				// A source error can race with the stream close.
				if errs != nil {
					select {
					case err, ok := <-errs:
						if ok && err != nil {
							return fmt.Errorf("source error: %w", err)
						}
					default:
					}
				}
				return f.finish(ctx, seen)
			}
			if err := f.processDoc(ctx, fd, seen); err != nil {
				return err
			}
		}
	}
}

func (f *fetcher) processDoc(ctx context.Context, fd source.Fetched, seen map[string]struct{}) error {
	doc := fd.Doc
	seen[doc.ID] = struct{}{}

	// A matching timestamp means the document has not changed since the
	// last run; skipping it is the core cost saving. Sources that cannot
	// supply timestamps get updated in any case.
	if prev, ok := f.existing[doc.ID]; ok && doc.Timestamp != "" && prev == doc.Timestamp {
		f.docsSkipped++
		f.log.Debug("skipping unchanged document", "id", doc.ID)
		if fd.Fetch != nil {
			if _, err := fd.Fetch(ctx, false, ""); err != nil {
				f.log.Debug("attachment release failed", "id", doc.ID, "error", err)
			}
		}
		return nil
	}

	if doc.Timestamp == "" {
		// Inject a fresh timestamp so the next run can diff against it.
		doc = doc.Stamp(document.FreshTimestamp(f.now()))
	}

	if fd.Fetch != nil {
		d := &download{done: make(chan struct{})}
		go func(fetch source.AttachmentFetch, ts string) {
			d.rec, d.err = fetch(ctx, true, ts)
			close(d.done)
		}(fd.Fetch, doc.Timestamp)

		select {
		case f.pending <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	op := index.Update(f.index, doc.ID, doc.Body())
	if err := f.send(ctx, envelope{op: &op}); err != nil {
		return err
	}
	f.docsUpdated++
	return nil
}

// finish emits deletes for every snapshot id the source no longer returns,
// then the docs end marker.
func (f *fetcher) finish(ctx context.Context, seen map[string]struct{}) error {
	for id := range f.existing {
		if _, ok := seen[id]; ok {
			continue
		}
		op := index.Delete(f.index, id)
		if err := f.send(ctx, envelope{op: &op}); err != nil {
			return err
		}
		f.docsDeleted++
	}

	f.log.Debug("document flow complete",
		"updated", f.docsUpdated,
		"skipped", f.docsSkipped,
		"deleted", f.docsDeleted,
	)
	return f.send(ctx, envelope{end: endDocs})
}

// runDownloads is the attachment sub-flow: await scheduled downloads in
// scheduling order, emit an update per resolved record, then the downloads
// end marker. Failed fetches are skipped and counted.
func (f *fetcher) runDownloads(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-f.pending:
			if !ok {
				return f.send(ctx, envelope{end: endDownloads})
			}

			select {
			case <-d.done:
			case <-ctx.Done():
				return ctx.Err()
			}

			if d.err != nil {
				f.attachmentErrors++
				f.log.Warn("attachment fetch failed", "error", d.err)
				continue
			}
			if d.rec == nil {
				continue
			}

			id, ok := document.PopID(d.rec)
			if !ok || id == "" {
				f.attachmentErrors++
				f.log.Warn("attachment record has no _id")
				continue
			}

			op := index.Update(f.index, id, d.rec)
			if err := f.send(ctx, envelope{op: &op}); err != nil {
				return err
			}
			f.attachments++
		}
	}
}

func (f *fetcher) send(ctx context.Context, env envelope) error {
	select {
	case f.out <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
