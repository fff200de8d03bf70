package index

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
)

func TestEncodeBulkShape(t *testing.T) {
	ops := []Operation{
		Update("search-content", "a", document.Fields{"id": "a", "title": "one"}),
		Delete("search-content", "b"),
	}

	encoded, err := EncodeBulk(ops)
	if err != nil {
		t.Fatalf("EncodeBulk failed: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(encoded), []byte("\n"))
	// update contributes action+body, delete only an action line
	if len(lines) != 3 {
		t.Fatalf("encoded lines = %d, want 3", len(lines))
	}

	var action map[string]map[string]string
	if err := json.Unmarshal(lines[0], &action); err != nil {
		t.Fatalf("decode action line: %v", err)
	}
	meta, ok := action["update"]
	if !ok {
		t.Fatalf("first action = %v, want update", action)
	}
	if meta["_index"] != "search-content" || meta["_id"] != "a" {
		t.Errorf("update meta = %v", meta)
	}

	var body map[string]any
	if err := json.Unmarshal(lines[1], &body); err != nil {
		t.Fatalf("decode body line: %v", err)
	}
	if body["doc_as_upsert"] != true {
		t.Error("update body must set doc_as_upsert")
	}
	doc, ok := body["doc"].(map[string]any)
	if !ok || doc["title"] != "one" {
		t.Errorf("update body doc = %v", body["doc"])
	}

	if err := json.Unmarshal(lines[2], &action); err != nil {
		t.Fatalf("decode delete line: %v", err)
	}
	meta, ok = action["delete"]
	if !ok {
		t.Fatalf("second action = %v, want delete", action)
	}
	if meta["_id"] != "b" {
		t.Errorf("delete meta = %v", meta)
	}
}

func TestEncodeBulkEmpty(t *testing.T) {
	encoded, err := EncodeBulk(nil)
	if err != nil {
		t.Fatalf("EncodeBulk failed: %v", err)
	}
	if len(encoded) != 0 {
		t.Errorf("encoded = %q, want empty", encoded)
	}
}

func TestNewStoreRequiresAddress(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Error("expected error for empty address list")
	}
}
