package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"beacon/internal/platform/config"
)

// IndexingEvent is handed to the live-indexing consumer when an inbound
// event maps to an indexing type.
type IndexingEvent struct {
	Type     string                 `json:"type"`
	Provider string                 `json:"provider"`
	UserID   string                 `json:"user_id"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// IndexingConsumer receives live-indexing events. The RAG/knowledge-graph
// indexer sits outside this pipeline; this is its contract boundary.
type IndexingConsumer interface {
	Consume(ctx context.Context, event *IndexingEvent) error
}

// NoopIndexer is used when no indexer endpoint is configured.
type NoopIndexer struct{}

func (NoopIndexer) Consume(ctx context.Context, event *IndexingEvent) error { return nil }

// HTTPIndexer forwards indexing events to the indexer service.
type HTTPIndexer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPIndexer(cfg config.IndexerConfig) *HTTPIndexer {
	return &HTTPIndexer{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (i *HTTPIndexer) Consume(ctx context.Context, event *IndexingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("indexer returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// NewIndexer picks the consumer implementation from config.
func NewIndexer(cfg config.IndexerConfig) IndexingConsumer {
	if cfg.Endpoint == "" {
		return NoopIndexer{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return NewHTTPIndexer(cfg)
}
