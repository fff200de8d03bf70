// Package document defines the structurally-typed source record that flows
// through the sync pipeline: a required id, an optional opaque timestamp,
// and an open map of pass-through fields.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingID is returned when a raw record has no usable _id field.
	ErrMissingID = errors.New("document has no _id field")
)

// Fields is the open key/value payload of a source record.
type Fields map[string]any

// Document is one record from a source connector. The timestamp is opaque
// and only compared for equality; its format is source-defined.
type Document struct {
	ID        string
	Timestamp string
	Fields    Fields
}

// FromRaw builds a Document from a raw decoded record. The source-side
// "_id" key is popped and becomes the ID; a "timestamp" key, if present and
// a string, is popped and becomes the Timestamp. Remaining keys pass through
// untouched.
func FromRaw(raw map[string]any) (Document, error) {
	id, ok := popString(raw, "_id")
	if !ok || id == "" {
		return Document{}, ErrMissingID
	}

	ts, _ := popString(raw, "timestamp")

	return Document{
		ID:        id,
		Timestamp: ts,
		Fields:    Fields(raw),
	}, nil
}

// ParseLine decodes a single NDJSON line into a Document.
func ParseLine(line []byte) (Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return FromRaw(raw)
}

// Body returns the index-ready document body: the open fields plus the id
// republished under "id" and the resolved timestamp under "timestamp".
func (d Document) Body() Fields {
	body := make(Fields, len(d.Fields)+2)
	for k, v := range d.Fields {
		body[k] = v
	}
	body["id"] = d.ID
	if d.Timestamp != "" {
		body["timestamp"] = d.Timestamp
	}
	return body
}

// Stamp returns a copy of the document carrying the given timestamp.
func (d Document) Stamp(ts string) Document {
	d.Timestamp = ts
	return d
}

// FreshTimestamp returns a wall-clock timestamp in the format the pipeline
// injects when a source does not supply one (RFC 3339, UTC).
func FreshTimestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

// PopID removes and returns the "_id" entry of an attachment record.
func PopID(rec Fields) (string, bool) {
	return popString(rec, "_id")
}

func popString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	delete(m, key)
	s, ok := v.(string)
	return s, ok
}
