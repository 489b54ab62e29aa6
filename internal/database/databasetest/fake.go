// Package databasetest provides an in-memory Backend for handler tests.
package databasetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/your-username/logsgate/internal/database"
	"github.com/your-username/logsgate/internal/models"
)

var _ database.Backend = (*Fake)(nil)

// Fake records every call. BulkFunc, when set, decides bulk outcomes;
// otherwise every record is indexed.
type Fake struct {
	mu sync.Mutex

	InfoBody   json.RawMessage
	InfoErr    error
	SearchHits []json.RawMessage
	SearchErr  error
	HealthErr  error
	BulkFunc   func(ctx context.Context, records []models.LogRecord) (*database.BulkResult, error)

	bulkCalls [][]models.LogRecord
	queries   []map[string]interface{}
	indices   []string
}

func New() *Fake {
	return &Fake{
		InfoBody: json.RawMessage(`{"cluster_name":"test","version":{"number":"8.11.1"}}`),
	}
}

func (f *Fake) Info(ctx context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.InfoBody, f.InfoErr
}

func (f *Fake) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.HealthErr
}

func (f *Fake) Bulk(ctx context.Context, index string, records []models.LogRecord) (*database.BulkResult, error) {
	f.mu.Lock()
	batch := append([]models.LogRecord(nil), records...)
	f.bulkCalls = append(f.bulkCalls, batch)
	f.indices = append(f.indices, index)
	fn := f.BulkFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, batch)
	}
	return &database.BulkResult{Indexed: len(records)}, nil
}

func (f *Fake) Search(ctx context.Context, index string, query map[string]interface{}) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.indices = append(f.indices, index)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if f.SearchHits == nil {
		return []json.RawMessage{}, nil
	}
	return f.SearchHits, nil
}

// BulkCalls returns copies of the batches passed to Bulk, in call order
func (f *Fake) BulkCalls() [][]models.LogRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]models.LogRecord(nil), f.bulkCalls...)
}

func (f *Fake) Queries() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.queries...)
}

// Indices returns the index name of every Bulk and Search call
func (f *Fake) Indices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.indices...)
}
