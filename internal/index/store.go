// Package index abstracts the remote document-index store: chunked bulk
// writes, the id/timestamp projection scan, and index administration.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
)

var (
	// ErrIndexNotFound distinguishes a missing index from other store
	// failures. Callers treat it as "empty state" during scans.
	ErrIndexNotFound = errors.New("index not found")
)

// ActionType is the bulk operation kind.
type ActionType string

const (
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Operation is a single index mutation. Immutable once constructed;
// produced by the fetcher, consumed exactly once by the bulker.
type Operation struct {
	Action ActionType
	Index  string
	ID     string
	Doc    document.Fields // nil for deletes
}

// Update builds an upsert operation for a document body.
func Update(index, id string, doc document.Fields) Operation {
	return Operation{Action: ActionUpdate, Index: index, ID: id, Doc: doc}
}

// Delete builds a delete operation.
func Delete(index, id string) Operation {
	return Operation{Action: ActionDelete, Index: index, ID: id}
}

// Entry is one projected document from a scan: just the fields the diff
// needs, so scan cost stays bounded on large indices.
type Entry struct {
	ID        string
	Timestamp string
}

// ItemFailure is one rejected item from a bulk response.
type ItemFailure struct {
	Action ActionType
	ID     string
	Status int
	Reason string
}

// BulkResult summarizes one bulk call.
type BulkResult struct {
	TookMillis int
	Items      int
	Failed     []ItemFailure
}

// Store is the driven port toward the index store.
type Store interface {
	// Bulk submits the operations as one bulk call and returns per-item
	// results. A returned error means the call itself failed.
	Bulk(ctx context.Context, ops []Operation) (*BulkResult, error)

	// ScanEntries streams the id/timestamp projection of every document in
	// the index. A missing index surfaces as ErrIndexNotFound on the error
	// channel.
	ScanEntries(ctx context.Context, index string) (<-chan Entry, <-chan error)

	// EnsureIndex creates the index if absent, optionally seeding it with
	// documents keyed by sequential integer ids. Provisioning only.
	EnsureIndex(ctx context.Context, index string, seed []document.Fields) error

	// DeleteIndex removes the index. Missing index is ErrIndexNotFound.
	DeleteIndex(ctx context.Context, index string) error

	// Close releases client resources.
	Close() error
}

type actionMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type upsertBody struct {
	Doc         document.Fields `json:"doc"`
	DocAsUpsert bool            `json:"doc_as_upsert"`
}

// EncodeBulk renders operations into the flat NDJSON action/body shape the
// bulk endpoint expects: one action line per operation, plus one body line
// for updates.
func EncodeBulk(ops []Operation) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, op := range ops {
		action := map[ActionType]actionMeta{
			op.Action: {Index: op.Index, ID: op.ID},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("encode action for %s: %w", op.ID, err)
		}
		if op.Action == ActionUpdate {
			if err := enc.Encode(upsertBody{Doc: op.Doc, DocAsUpsert: true}); err != nil {
				return nil, fmt.Errorf("encode body for %s: %w", op.ID, err)
			}
		}
	}

	return buf.Bytes(), nil
}

// Config configures the index store client.
type Config struct {
	Addresses []string
	Username  string
	Password  string

	// ScanPageSize controls how many entries each scroll page carries.
	ScanPageSize int

	// Compress enables request-body compression on bulk calls.
	Compress bool
}

// NewStore creates the Elasticsearch-backed store.
func NewStore(cfg Config) (Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("at least one index store address required")
	}
	return newElasticStore(cfg)
}
