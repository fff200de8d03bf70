package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
	_ "gocloud.dev/blob/s3blob"  // S3 driver

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
)

// BlobSource reads NDJSON document objects from a cloud bucket. Attachment
// references resolve as object keys in the same bucket.
type BlobSource struct {
	bucket *blob.Bucket
	prefix string
	log    *slog.Logger
}

// NewGCSSource opens a Google Cloud Storage source. Uses Application
// Default Credentials for authentication.
func NewGCSSource(bucketName, prefix string) (*BlobSource, error) {
	return openBlobSource(fmt.Sprintf("gs://%s", bucketName), prefix, "gcs")
}

// NewS3Source opens an S3-compatible source. endpoint can be empty for AWS
// S3, or a custom URL for B2/R2/MinIO.
func NewS3Source(bucketName, prefix, endpoint, region string) (*BlobSource, error) {
	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		// Custom endpoints usually need path-style addressing.
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}

	return openBlobSource(bucketURL, prefix, "s3")
}

func openBlobSource(bucketURL, prefix, mode string) (*BlobSource, error) {
	bucket, err := blob.OpenBucket(context.Background(), bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return &BlobSource{
		bucket: bucket,
		prefix: prefix,
		log:    slog.With("component", "source", "mode", mode),
	}, nil
}

// Stream implements DocumentSource.Stream for bucket objects.
func (s *BlobSource) Stream(ctx context.Context) (<-chan Fetched, <-chan error) {
	docCh := make(chan Fetched, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(docCh)
		defer close(errCh)

		keys, err := s.listObjects(ctx)
		if err != nil {
			errCh <- err
			return
		}

		s.log.Info("streaming document objects", "objects", len(keys), "prefix", s.prefix)

		for _, key := range keys {
			if err := s.streamObject(ctx, key, docCh); err != nil {
				if ctx.Err() != nil {
					return
				}
				errCh <- fmt.Errorf("stream %s: %w", key, err)
				return
			}
		}
	}()

	return docCh, errCh
}

// Close releases resources.
func (s *BlobSource) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

// listObjects collects document object keys under the prefix in stable
// lexical order.
func (s *BlobSource) listObjects(ctx context.Context) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if obj.IsDir || !IsDocumentFile(obj.Key) {
			continue
		}
		keys = append(keys, obj.Key)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *BlobSource) streamObject(ctx context.Context, key string, out chan<- Fetched) error {
	reader, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open object: %w", err)
	}
	defer reader.Close()

	payload, err := openPayload(key, reader)
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

// attachmentFetch builds the lazy download for an attachment object key.
func (s *BlobSource) attachmentFetch(docID, key string) AttachmentFetch {
	return func(ctx context.Context, commit bool, timestamp string) (document.Fields, error) {
		if !commit {
			// No reader is opened until commit, so nothing to release.
			return nil, nil
		}
		reader, err := s.bucket.NewReader(ctx, key, nil)
		if err != nil {
			return nil, fmt.Errorf("open attachment %s: %w", key, err)
		}
		defer reader.Close()

		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", key, err)
		}
		return attachmentRecord(docID, key, data, timestamp), nil
	}
}
