package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
)

// LocalSource reads NDJSON document files from a local directory tree.
// Attachment references resolve against the same base path.
type LocalSource struct {
	basePath string
	log      *slog.Logger
}

// NewLocalSource creates a new local filesystem source.
func NewLocalSource(basePath string) (*LocalSource, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid local path %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local path %s is not a directory", basePath)
	}

	return &LocalSource{
		basePath: basePath,
		log:      slog.With("component", "source", "mode", "local"),
	}, nil
}

// Stream implements DocumentSource.Stream for local files.
func (s *LocalSource) Stream(ctx context.Context) (<-chan Fetched, <-chan error) {
	docCh := make(chan Fetched, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(docCh)
		defer close(errCh)

		files, err := s.listFiles()
		if err != nil {
			errCh <- err
			return
		}

		s.log.Info("streaming document files", "files", len(files), "path", s.basePath)

		for _, file := range files {
			if err := s.streamFile(ctx, file, docCh); err != nil {
				if ctx.Err() != nil {
					return
				}
				errCh <- fmt.Errorf("stream %s: %w", file, err)
				return
			}
		}
	}()

	return docCh, errCh
}

// Close releases resources.
func (s *LocalSource) Close() error { return nil }

// listFiles walks the directory tree collecting document files in stable
// lexical order.
func (s *LocalSource) listFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsDocumentFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (s *LocalSource) streamFile(ctx context.Context, path string, out chan<- Fetched) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	payload, err := openPayload(path, f)
	if err != nil {
		return err
	}
	defer payload.Close()

	return decodeDocuments(payload, func(doc document.Document, attachment string) error {
		fetched := Fetched{Doc: doc}
		if attachment != "" {
			fetched.Fetch = s.attachmentFetch(doc.ID, attachment)
		}
		select {
		case out <- fetched:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// attachmentFetch builds the lazy download for an attachment reference.
func (s *LocalSource) attachmentFetch(docID, ref string) AttachmentFetch {
	return func(ctx context.Context, commit bool, timestamp string) (document.Fields, error) {
		if !commit {
			// Nothing held open for local files.
			return nil, nil
		}
		full := filepath.Join(s.basePath, filepath.FromSlash(ref))
		f, err := os.Open(full)
		if err != nil {
			return nil, fmt.Errorf("open attachment %s: %w", ref, err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", ref, err)
		}
		return attachmentRecord(docID, ref, data, timestamp), nil
	}
}
