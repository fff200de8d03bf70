package document

import (
	"errors"
	"testing"
	"time"
)

func TestFromRaw(t *testing.T) {
	doc, err := FromRaw(map[string]any{
		"_id":       "doc-1",
		"timestamp": "2026-01-02T03:04:05Z",
		"title":     "hello",
		"size":      float64(42),
	})
	if err != nil {
		t.Fatalf("FromRaw failed: %v", err)
	}

	if doc.ID != "doc-1" {
		t.Errorf("ID = %q, want doc-1", doc.ID)
	}
	if doc.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("Timestamp = %q", doc.Timestamp)
	}
	if _, ok := doc.Fields["_id"]; ok {
		t.Error("_id should be popped from fields")
	}
	if _, ok := doc.Fields["timestamp"]; ok {
		t.Error("timestamp should be popped from fields")
	}
	if doc.Fields["title"] != "hello" {
		t.Errorf("title = %v", doc.Fields["title"])
	}
}

func TestFromRawMissingID(t *testing.T) {
	_, err := FromRaw(map[string]any{"title": "orphan"})
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("err = %v, want ErrMissingID", err)
	}

	_, err = FromRaw(map[string]any{"_id": ""})
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("empty id: err = %v, want ErrMissingID", err)
	}
}

func TestBodyRepublishesReservedKeys(t *testing.T) {
	doc := Document{
		ID:        "doc-2",
		Timestamp: "t1",
		Fields:    Fields{"note": "x"},
	}

	body := doc.Body()
	if body["id"] != "doc-2" {
		t.Errorf("body id = %v", body["id"])
	}
	if body["timestamp"] != "t1" {
		t.Errorf("body timestamp = %v", body["timestamp"])
	}
	if body["note"] != "x" {
		t.Errorf("body note = %v", body["note"])
	}

	// Body must not alias the document's field map.
	body["note"] = "mutated"
	if doc.Fields["note"] != "x" {
		t.Error("Body must copy fields")
	}
}

func TestParseLine(t *testing.T) {
	doc, err := ParseLine([]byte(`{"_id":"a","k":1}`))
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if doc.ID != "a" {
		t.Errorf("ID = %q", doc.ID)
	}

	if _, err := ParseLine([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFreshTimestamp(t *testing.T) {
	at := time.Date(2026, 8, 24, 10, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	got := FreshTimestamp(at)
	if got != "2026-08-24T08:30:00Z" {
		t.Errorf("FreshTimestamp = %q", got)
	}
}

func TestPopID(t *testing.T) {
	rec := Fields{"_id": "att-1", "data": "blob"}
	id, ok := PopID(rec)
	if !ok || id != "att-1" {
		t.Fatalf("PopID = %q, %v", id, ok)
	}
	if _, present := rec["_id"]; present {
		t.Error("_id should be removed")
	}
}
