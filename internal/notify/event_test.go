package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func runInfo(runID string) RunInfo {
	return RunInfo{
		RunID:          runID,
		Job:            "wiki",
		Index:          "search-wiki",
		DocsUpdated:    10,
		DocsSkipped:    5,
		DocsDeleted:    1,
		DurationMillis: 1200,
	}
}

func TestEventHashComputed(t *testing.T) {
	evt := buildEvent(runInfo("run-1"), "v0.1.0", time.Now())
	evt.SetChainHashes("")

	if evt.Chain.EventHash == "" {
		t.Error("EventHash should be computed")
	}
	if len(evt.Chain.EventHash) < 7 || evt.Chain.EventHash[:7] != "sha256:" {
		t.Errorf("EventHash should start with 'sha256:', got %s", evt.Chain.EventHash)
	}
	if evt.Chain.PrevEventHash != "" {
		t.Errorf("PrevEventHash should be empty for first in chain, got %s", evt.Chain.PrevEventHash)
	}
}

func TestEventHashDeterminism(t *testing.T) {
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	createEvent := func() *Event {
		evt := buildEvent(runInfo("run-1"), "v0.1.0", ts)
		evt.EventID = "sync_evt_fixed"
		return evt
	}

	event1 := createEvent()
	event1.SetChainHashes("prev_hash_123")

	event2 := createEvent()
	event2.SetChainHashes("prev_hash_123")

	if event1.Chain.EventHash != event2.Chain.EventHash {
		t.Errorf("identical events should hash identically:\n  %s\n  %s",
			event1.Chain.EventHash, event2.Chain.EventHash)
	}

	// A different predecessor must change the hash.
	event3 := createEvent()
	event3.SetChainHashes("prev_hash_456")
	if event3.Chain.EventHash == event1.Chain.EventHash {
		t.Error("different prev_hash should produce a different event_hash")
	}

	// Different content must change the hash.
	event4 := buildEvent(runInfo("run-2"), "v0.1.0", ts)
	event4.EventID = "sync_evt_fixed"
	event4.SetChainHashes("prev_hash_123")
	if event4.Chain.EventHash == event1.Chain.EventHash {
		t.Error("different content should produce a different event_hash")
	}
}

func TestFileEmitterChaining(t *testing.T) {
	dir := t.TempDir()
	em, err := NewFileEmitter(Config{BackupDir: dir, Version: "v0.1.0"})
	if err != nil {
		t.Fatalf("NewFileEmitter failed: %v", err)
	}
	defer em.Close()

	ctx := context.Background()
	if err := em.EmitRun(ctx, runInfo("run-1")); err != nil {
		t.Fatalf("first EmitRun failed: %v", err)
	}
	if err := em.EmitRun(ctx, runInfo("run-2")); err != nil {
		t.Fatalf("second EmitRun failed: %v", err)
	}

	file, err := os.Open(filepath.Join(dir, "events.ndjson"))
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var evt Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			t.Fatalf("parse event line: %v", err)
		}
		events = append(events, evt)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	if events[0].Chain.PrevEventHash != "" {
		t.Errorf("first event prev_hash = %q, want empty", events[0].Chain.PrevEventHash)
	}
	if events[1].Chain.PrevEventHash != events[0].Chain.EventHash {
		t.Errorf("second event prev_hash = %q, want %q",
			events[1].Chain.PrevEventHash, events[0].Chain.EventHash)
	}
	if events[0].EventType != "sync_run" || events[0].Run.Index != "search-wiki" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestChainTrackerPersistence(t *testing.T) {
	dir := t.TempDir()

	ct, err := NewChainTracker(dir)
	if err != nil {
		t.Fatalf("NewChainTracker failed: %v", err)
	}
	if _, err := ct.GetHead("search-wiki"); err != ErrNoChainHead {
		t.Errorf("GetHead before Set err = %v, want ErrNoChainHead", err)
	}
	if err := ct.SetHead("search-wiki", "sha256:abc"); err != nil {
		t.Fatalf("SetHead failed: %v", err)
	}

	// A fresh tracker over the same directory sees the persisted head.
	ct2, err := NewChainTracker(dir)
	if err != nil {
		t.Fatalf("NewChainTracker reload failed: %v", err)
	}
	head, err := ct2.GetHead("search-wiki")
	if err != nil || head != "sha256:abc" {
		t.Errorf("GetHead = %q, %v", head, err)
	}
}

func TestNoopEmitter(t *testing.T) {
	em := NewEmitter(Config{Enabled: false})
	if err := em.EmitRun(context.Background(), runInfo("run-1")); err != nil {
		t.Errorf("noop EmitRun err = %v", err)
	}
}
