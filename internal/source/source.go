// Package source streams documents from a connector backend (local
// directory, GCS, or S3) toward the sync pipeline.
package source

import (
	"context"
	"errors"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
)

// AttachmentFetch resolves auxiliary content for a document. It is invoked
// with commit=false when the document is being skipped as unchanged, so the
// backend can release whatever it holds, and with commit=true plus the
// resolved timestamp when the document will be indexed. A nil record means
// there is nothing to attach.
type AttachmentFetch func(ctx context.Context, commit bool, timestamp string) (document.Fields, error)

// Fetched pairs a document with its optional lazy attachment fetch.
type Fetched struct {
	Doc   document.Document
	Fetch AttachmentFetch // nil when the document has no attachment
}

// DocumentSource streams documents from a source backend. The stream is
// finite and restartable per call; document order is source order.
type DocumentSource interface {
	Stream(ctx context.Context) (<-chan Fetched, <-chan error)
	Close() error
}

// Config selects and configures a source backend.
type Config struct {
	Mode string `yaml:"mode"` // "local" | "gcs" | "s3"

	// Local filesystem
	LocalPath string `yaml:"local_path"`

	// GCS
	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
}

var ErrInvalidSourceMode = errors.New("invalid source mode")

// New constructs a document source based on the configured mode.
func New(cfg Config) (DocumentSource, error) {
	switch cfg.Mode {
	case "local":
		return NewLocalSource(cfg.LocalPath)
	case "gcs":
		return NewGCSSource(cfg.GCSBucket, cfg.GCSPrefix)
	case "s3":
		return NewS3Source(cfg.S3Bucket, cfg.S3Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, ErrInvalidSourceMode
	}
}
