package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"

	"github.com/your-username/logsgate/internal/config"
	"github.com/your-username/logsgate/internal/models"
)

// LogsIndex is the collection every operation targets
const LogsIndex = "logs"

// ErrBackend is wrapped by every error response returned by Elasticsearch
var ErrBackend = errors.New("elasticsearch error")

// Backend abstracts the search engine operations the gateway relies on.
// Implementations must be safe for concurrent use.
type Backend interface {
	Info(ctx context.Context) (json.RawMessage, error)
	Bulk(ctx context.Context, index string, records []models.LogRecord) (*BulkResult, error)
	Search(ctx context.Context, index string, query map[string]interface{}) ([]json.RawMessage, error)
	Health(ctx context.Context) error
}

var _ Backend = (*DB)(nil)

// ResponseError is an error response from the backend
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: [%d] %s", ErrBackend, e.StatusCode, e.Body)
}

func (e *ResponseError) Unwrap() error { return ErrBackend }

// IsRetryable reports whether a failed backend call may succeed if repeated.
// Transport errors and 429/5xx responses are retryable; other error
// responses mean the request itself was rejected.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return retryableStatus(respErr.StatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// BulkItemError describes one document the backend refused to index
type BulkItemError struct {
	Position int    `json:"position"`
	Status   int    `json:"status"`
	Type     string `json:"type,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Retryable reports whether resubmitting the document may succeed
func (e BulkItemError) Retryable() bool {
	return retryableStatus(e.Status)
}

// BulkResult is the per-item outcome of one bulk call. Positions refer to
// the records slice passed to Bulk.
type BulkResult struct {
	Indexed int
	Failed  []BulkItemError
}

type DB struct {
	client *elasticsearch.Client
}

// New creates the long-lived backend handle. An unreachable cluster is not
// fatal: the client connects lazily and /health reports the state.
func New(cfg config.ElasticsearchConfig) (*DB, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	db := NewWithClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Health(ctx); err != nil {
		log.Warn().Err(err).Strs("addresses", cfg.Addresses).Msg("Elasticsearch not reachable yet")
	} else {
		log.Info().Strs("addresses", cfg.Addresses).Msg("Connected to Elasticsearch")
	}
	return db, nil
}

// NewWithClient wraps an already configured client
func NewWithClient(client *elasticsearch.Client) *DB {
	return &DB{client: client}
}

// Info returns the cluster info document, used as a liveness check
func (db *DB) Info(ctx context.Context) (json.RawMessage, error) {
	res, err := db.client.Info(db.client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cluster info: %w", err)
	}
	defer res.Body.Close()

	body, err := readResponse(res)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Health pings the cluster
func (db *DB) Health(ctx context.Context) error {
	res, err := db.client.Ping(db.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	_, err = readResponse(res)
	return err
}

// Bulk submits one index operation per record as a single bulk request
func (db *DB) Bulk(ctx context.Context, index string, records []models.LogRecord) (*BulkResult, error) {
	if len(records) == 0 {
		return &BulkResult{}, nil
	}

	body, err := encodeBulk(index, records)
	if err != nil {
		return nil, err
	}

	res, err := db.client.Bulk(bytes.NewReader(body),
		db.client.Bulk.WithContext(ctx),
		db.client.Bulk.WithIndex(index),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit bulk request: %w", err)
	}
	defer res.Body.Close()

	raw, err := readResponse(res)
	if err != nil {
		return nil, err
	}
	return decodeBulk(raw, len(records))
}

// Search runs a query DSL body and returns hits.hits untouched
func (db *DB) Search(ctx context.Context, index string, query map[string]interface{}) ([]json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := db.client.Search(
		db.client.Search.WithContext(ctx),
		db.client.Search.WithIndex(index),
		db.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	raw, err := readResponse(res)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []json.RawMessage `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if parsed.Hits.Hits == nil {
		return []json.RawMessage{}, nil
	}
	return parsed.Hits.Hits, nil
}

func readResponse(res *esapi.Response) ([]byte, error) {
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if res.IsError() {
		return nil, &ResponseError{StatusCode: res.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return body, nil
}

func encodeBulk(index string, records []models.LogRecord) ([]byte, error) {
	meta, err := json.Marshal(map[string]interface{}{
		"index": map[string]string{"_index": index},
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for i := range records {
		doc, err := json.Marshal(&records[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

func decodeBulk(raw []byte, expected int) (*BulkResult, error) {
	var resp bulkResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if len(resp.Items) != expected {
		return nil, fmt.Errorf("%w: bulk response has %d items, sent %d", ErrBackend, len(resp.Items), expected)
	}

	result := &BulkResult{}
	for i, item := range resp.Items {
		for _, op := range item {
			if op.Error == nil && op.Status < 300 {
				result.Indexed++
				continue
			}
			itemErr := BulkItemError{Position: i, Status: op.Status}
			if op.Error != nil {
				itemErr.Type = op.Error.Type
				itemErr.Reason = op.Error.Reason
			}
			result.Failed = append(result.Failed, itemErr)
		}
	}
	return result, nil
}
