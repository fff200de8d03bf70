package source

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
)

// attachmentKey is the source-side convention for referencing a binary
// attachment by object key. It is popped before the document is handed on.
const attachmentKey = "_attachment"

// maxLineBytes bounds a single NDJSON document line.
const maxLineBytes = 16 << 20

// IsDocumentFile reports whether the object key looks like a document
// payload this source can decode.
func IsDocumentFile(name string) bool {
	base := strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".zst")
	return strings.HasSuffix(base, ".ndjson") || strings.HasSuffix(base, ".jsonl")
}

// openPayload wraps a raw payload reader with the decompressor its file
// extension calls for.
func openPayload(name string, r io.Reader) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip open %s: %w", name, err)
		}
		return gz, nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd open %s: %w", name, err)
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// decodeDocuments parses NDJSON documents from r, handing each one to emit
// together with its attachment object key (empty when absent).
func decodeDocuments(r io.Reader, emit func(doc document.Document, attachment string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		doc, err := document.ParseLine(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		attachment := ""
		if ref, ok := doc.Fields[attachmentKey].(string); ok {
			attachment = ref
			delete(doc.Fields, attachmentKey)
		}

		if err := emit(doc, attachment); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read documents: %w", err)
	}
	return nil
}
