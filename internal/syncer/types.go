package syncer

import (
	"time"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/index"
)

// endMarker tags the end of one fetcher sub-flow on the hand-off channel.
type endMarker int

const (
	endNone endMarker = iota
	endDocs
	endDownloads
)

// envelope is one hand-off channel item: either an index operation or an
// end-of-subflow marker, never both.
type envelope struct {
	op  *index.Operation
	end endMarker
}

// Config tunes one synchronization pipeline.
type Config struct {
	// Index is the target index name.
	Index string

	// ChunkSize is the number of logical operations per bulk call.
	ChunkSize int

	// QueueSize caps the hand-off channel and the pending-download queue.
	QueueSize int

	// RetryAttempts bounds bulk-call retries; RetryBackoff is the initial
	// delay, doubled per attempt.
	RetryAttempts int
	RetryBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize < 1 {
		c.ChunkSize = 500
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1024
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Result aggregates one synchronization run.
type Result struct {
	RunID string
	Index string

	ExistingDocs int // snapshot size at scan time

	DocsUpdated      int // update operations from the document sub-flow
	DocsSkipped      int // unchanged documents (timestamp match)
	DocsDeleted      int // delete operations for vanished ids
	Attachments      int // update operations from resolved downloads
	AttachmentErrors int // downloads skipped after a fetch failure

	BulkCalls    int           // bulk submissions issued
	IndexedOps   int           // operations acknowledged by bulk calls
	ItemFailures int           // per-item rejections inside accepted calls
	BulkTime     time.Duration // cumulative time inside bulk calls
	Duration     time.Duration // wall-clock run duration
}
