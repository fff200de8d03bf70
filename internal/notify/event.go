// Package notify emits tamper-evident sync-run events to a webhook and a
// local NDJSON audit file. Events for one index form a hash chain so a
// consumer can detect gaps or rewrites.
package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one emitted sync-run record.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Run      RunInfo      `json:"run"`
	Producer ProducerInfo `json:"producer"`
	Chain    ChainInfo    `json:"chain"`
}

// RunInfo carries the aggregates of one synchronization run.
type RunInfo struct {
	RunID            string `json:"run_id"`
	Job              string `json:"job"`
	Index            string `json:"index"`
	DocsUpdated      int    `json:"docs_updated"`
	DocsSkipped      int    `json:"docs_skipped"`
	DocsDeleted      int    `json:"docs_deleted"`
	Attachments      int    `json:"attachments"`
	AttachmentErrors int    `json:"attachment_errors"`
	DurationMillis   int64  `json:"duration_ms"`
}

// ProducerInfo identifies the software that produced the event.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ChainInfo links events per index for a tamper-evident audit log.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ChainKey returns the key under which this event's chain is tracked.
func (r RunInfo) ChainKey() string {
	return r.Index
}

// SetChainHashes links the event to its predecessor and computes its own
// hash over everything except the event_hash field itself.
func (e *Event) SetChainHashes(prevHash string) {
	e.Chain.PrevEventHash = prevHash
	e.Chain.EventHash = computeEventHash(e)
}

// computeEventHash hashes the canonical JSON form of the event. Go's
// json.Marshal sorts map keys, so the form is stable.
func computeEventHash(e *Event) string {
	cp := *e
	cp.Chain.EventHash = ""

	canonical, err := json.Marshal(cp)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// GenerateEventID creates a unique event ID.
func GenerateEventID(now time.Time) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d", now.UnixNano())))
	return "sync_evt_" + hex.EncodeToString(hash[:8])
}
