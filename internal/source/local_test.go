package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func collect(t *testing.T, s *LocalSource) []Fetched {
	t.Helper()
	ctx := context.Background()
	docCh, errCh := s.Stream(ctx)

	var out []Fetched
	for docCh != nil || errCh != nil {
		select {
		case fd, ok := <-docCh:
			if !ok {
				docCh = nil
				continue
			}
			out = append(out, fd)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				t.Fatalf("stream error: %v", err)
			}
		}
	}
	return out
}

func TestLocalSourceStream(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docs/batch1.ndjson", []byte(
		`{"_id":"a","timestamp":"t1","title":"first"}`+"\n"+
			"\n"+ // blank lines are skipped
			`{"_id":"b","title":"second"}`+"\n"))

	s, err := NewLocalSource(dir)
	if err != nil {
		t.Fatalf("NewLocalSource failed: %v", err)
	}
	defer s.Close()

	docs := collect(t, s)
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Doc.ID != "a" || docs[0].Doc.Timestamp != "t1" {
		t.Errorf("doc[0] = %+v", docs[0].Doc)
	}
	if docs[1].Doc.ID != "b" || docs[1].Doc.Timestamp != "" {
		t.Errorf("doc[1] = %+v", docs[1].Doc)
	}
	if docs[0].Fetch != nil {
		t.Error("doc without _attachment must have nil fetch")
	}
}

func TestLocalSourceGzip(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(`{"_id":"z","note":"compressed"}` + "\n"))
	gz.Close()
	writeFile(t, dir, "batch.ndjson.gz", buf.Bytes())

	s, err := NewLocalSource(dir)
	if err != nil {
		t.Fatalf("NewLocalSource failed: %v", err)
	}
	defer s.Close()

	docs := collect(t, s)
	if len(docs) != 1 || docs[0].Doc.ID != "z" {
		t.Fatalf("docs = %+v", docs)
	}
}

func TestLocalSourceAttachment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "batch.ndjson", []byte(`{"_id":"c","_attachment":"blobs/c.bin"}`+"\n"))
	writeFile(t, dir, "blobs/c.bin", []byte("payload"))

	s, err := NewLocalSource(dir)
	if err != nil {
		t.Fatalf("NewLocalSource failed: %v", err)
	}
	defer s.Close()

	docs := collect(t, s)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if _, ok := docs[0].Doc.Fields[attachmentKey]; ok {
		t.Error("_attachment must be popped before hand-off")
	}
	if docs[0].Fetch == nil {
		t.Fatal("expected an attachment fetch")
	}

	ctx := context.Background()

	// Skipped documents release without producing a record.
	rec, err := docs[0].Fetch(ctx, false, "")
	if err != nil || rec != nil {
		t.Errorf("uncommitted fetch = %v, %v", rec, err)
	}

	rec, err = docs[0].Fetch(ctx, true, "t9")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if rec["_id"] != "c" || rec["timestamp"] != "t9" {
		t.Errorf("record = %v", rec)
	}
	if rec["attachment_name"] != "c.bin" {
		t.Errorf("attachment_name = %v", rec["attachment_name"])
	}
}

func TestLocalSourceRejectsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "file.ndjson", []byte(`{"_id":"x"}`))

	if _, err := NewLocalSource(path); err == nil {
		t.Error("expected error for non-directory path")
	}
	if _, err := NewLocalSource(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestLocalSourceInvalidLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.ndjson", []byte("{broken\n"))

	s, err := NewLocalSource(dir)
	if err != nil {
		t.Fatalf("NewLocalSource failed: %v", err)
	}
	defer s.Close()

	_, errCh := s.Stream(context.Background())
	if err := <-errCh; err == nil {
		t.Error("expected decode error")
	}
}

func TestNewSourceModes(t *testing.T) {
	if _, err := New(Config{Mode: "tape"}); err != ErrInvalidSourceMode {
		t.Errorf("err = %v, want ErrInvalidSourceMode", err)
	}

	dir := t.TempDir()
	s, err := New(Config{Mode: "local", LocalPath: dir})
	if err != nil {
		t.Fatalf("local mode failed: %v", err)
	}
	s.Close()
}
