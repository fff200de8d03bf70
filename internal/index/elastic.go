package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
)

const scrollKeepAlive = time.Minute

// elasticStore implements Store against an Elasticsearch-compatible API.
type elasticStore struct {
	client       *elasticsearch.Client
	scanPageSize int
	log          *slog.Logger
}

func newElasticStore(cfg Config) (*elasticStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:           cfg.Addresses,
		Username:            cfg.Username,
		Password:            cfg.Password,
		CompressRequestBody: cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create index client: %w", err)
	}

	pageSize := cfg.ScanPageSize
	if pageSize < 1 {
		pageSize = 1000
	}

	return &elasticStore{
		client:       client,
		scanPageSize: pageSize,
		log:          slog.With("component", "index"),
	}, nil
}

// bulkResponse is the subset of the bulk reply the syncer cares about.
type bulkResponse struct {
	Took   int  `json:"took"`
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

func (s *elasticStore) Bulk(ctx context.Context, ops []Operation) (*BulkResult, error) {
	body, err := EncodeBulk(ops)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Bulk(
		bytes.NewReader(body),
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk call: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("bulk call returned %s", res.Status())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	result := &BulkResult{
		TookMillis: parsed.Took,
		Items:      len(parsed.Items),
	}
	if parsed.Errors {
		for _, item := range parsed.Items {
			for action, detail := range item {
				if detail.Error == nil {
					continue
				}
				result.Failed = append(result.Failed, ItemFailure{
					Action: ActionType(action),
					ID:     detail.ID,
					Status: detail.Status,
					Reason: detail.Error.Reason,
				})
			}
		}
	}

	return result, nil
}

// scanResponse is the subset of a search/scroll reply the scan needs.
type scanResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source struct {
				ID        string `json:"id"`
				Timestamp string `json:"timestamp"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *elasticStore) ScanEntries(ctx context.Context, index string) (<-chan Entry, <-chan error) {
	entryCh := make(chan Entry, s.scanPageSize)
	errCh := make(chan error, 1)

	go func() {
		defer close(entryCh)
		defer close(errCh)

		exists, err := s.indexExists(ctx, index)
		if err != nil {
			errCh <- err
			return
		}
		if !exists {
			errCh <- fmt.Errorf("scan %s: %w", index, ErrIndexNotFound)
			return
		}

		res, err := s.client.Search(
			s.client.Search.WithContext(ctx),
			s.client.Search.WithIndex(index),
			s.client.Search.WithSize(s.scanPageSize),
			s.client.Search.WithScroll(scrollKeepAlive),
			s.client.Search.WithSourceIncludes("id", "timestamp"),
		)
		if err != nil {
			errCh <- fmt.Errorf("scan %s: %w", index, err)
			return
		}

		page, scrollID, err := s.decodePage(res, index)
		if err != nil {
			errCh <- err
			return
		}
		defer func() { s.clearScroll(scrollID) }()

		for len(page) > 0 {
			for _, entry := range page {
				select {
				case entryCh <- entry:
				case <-ctx.Done():
					return
				}
			}

			res, err := s.client.Scroll(
				s.client.Scroll.WithContext(ctx),
				s.client.Scroll.WithScrollID(scrollID),
				s.client.Scroll.WithScroll(scrollKeepAlive),
			)
			if err != nil {
				errCh <- fmt.Errorf("scroll %s: %w", index, err)
				return
			}

			page, scrollID, err = s.decodePage(res, index)
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	return entryCh, errCh
}

// decodePage parses one search/scroll response into scan entries.
func (s *elasticStore) decodePage(res *esapi.Response, index string) ([]Entry, string, error) {
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return nil, "", fmt.Errorf("scan %s: %w", index, ErrIndexNotFound)
		}
		return nil, "", fmt.Errorf("scan %s returned %s", index, res.Status())
	}

	var parsed scanResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, "", fmt.Errorf("decode scan page: %w", err)
	}

	entries := make([]Entry, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		entries = append(entries, Entry{
			ID:        hit.Source.ID,
			Timestamp: hit.Source.Timestamp,
		})
	}
	return entries, parsed.ScrollID, nil
}

func (s *elasticStore) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	// Best effort; the scroll expires on its own after the keep-alive.
	res, err := s.client.ClearScroll(s.client.ClearScroll.WithScrollID(scrollID))
	if err != nil {
		s.log.Debug("clear scroll failed", "error", err)
		return
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}

func (s *elasticStore) indexExists(ctx context.Context, index string) (bool, error) {
	res, err := s.client.Indices.Exists(
		[]string{index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", index, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check index %s returned %s", index, res.Status())
	}
}

func (s *elasticStore) EnsureIndex(ctx context.Context, index string, seed []document.Fields) error {
	exists, err := s.indexExists(ctx, index)
	if err != nil {
		return err
	}
	if exists {
		s.log.Debug("index exists", "index", index)
		return nil
	}

	res, err := s.client.Indices.Create(
		index,
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.IsError() {
		return fmt.Errorf("create index %s returned %s", index, res.Status())
	}

	s.log.Info("created index", "index", index, "seed_docs", len(seed))

	for i, doc := range seed {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode seed doc %d: %w", i+1, err)
		}
		res, err := s.client.Index(
			index,
			bytes.NewReader(body),
			s.client.Index.WithDocumentID(strconv.Itoa(i+1)),
			s.client.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("seed doc %d: %w", i+1, err)
		}
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("seed doc %d returned %s", i+1, res.Status())
		}
	}

	return nil
}

func (s *elasticStore) DeleteIndex(ctx context.Context, index string) error {
	res, err := s.client.Indices.Delete(
		[]string{index},
		s.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", index, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete index %s: %w", index, ErrIndexNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("delete index %s returned %s", index, res.Status())
	}
	return nil
}

func (s *elasticStore) Close() error { return nil }
