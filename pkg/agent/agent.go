// Package agent batches log records in-process and ships them to a
// logsgate /ingest endpoint.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// Record is one log record in the gateway's ingest format. Every field is
// required by the gateway; empty strings are accepted.
type Record struct {
	Level      string   `json:"level"`
	Message    string   `json:"message"`
	ResourceID string   `json:"resourceId"`
	Timestamp  string   `json:"timestamp"`
	TraceID    string   `json:"traceId"`
	SpanID     string   `json:"spanId"`
	Commit     string   `json:"commit"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata is the nested part of a Record
type Metadata struct {
	ParentResourceID string `json:"parentResourceId"`
}

// Config holds the agent configuration
type Config struct {
	// Endpoint is the ingest URL
	Endpoint string
	// BatchSize is the number of records to buffer before sending
	BatchSize int
	// FlushInterval is how often to flush records
	FlushInterval time.Duration
	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int
	// RetryBackoff is the wait before the second attempt; it doubles after
	// that unless the server sends Retry-After
	RetryBackoff time.Duration
	// ResourceID, Commit and ParentResourceID are stamped on every record
	ResourceID       string
	Commit           string
	ParentResourceID string
	// Compress gzips request bodies
	Compress    bool
	HTTPTimeout time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Endpoint:      "http://localhost:8000/ingest",
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryBackoff:  time.Second,
		ResourceID:    "unknown",
		Commit:        "unknown",
		Compress:      true,
		HTTPTimeout:   10 * time.Second,
	}
}

// SendError is a non-2xx answer from the gateway
type SendError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *SendError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

func (e *SendError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Agent collects and ships logs to the gateway
type Agent struct {
	config    *Config
	buffer    []Record
	bufferMu  sync.Mutex
	client    *http.Client
	stopChan  chan struct{}
	flushChan chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// New creates a new log agent
func New(config *Config) *Agent {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	return &Agent{
		config: config,
		buffer: make([]Record, 0, config.BatchSize),
		client: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		stopChan:  make(chan struct{}),
		flushChan: make(chan struct{}, 1),
	}
}

// Start starts the background flush loop
func (a *Agent) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop flushes what is buffered and stops the agent
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stopChan) })
	a.wg.Wait()
}

// Log buffers a record outside of any trace. Fresh trace and span ids are
// generated since the gateway requires both.
func (a *Agent) Log(level, message string) {
	a.LogWithTrace(level, message, "", "")
}

// LogWithTrace buffers a record belonging to the given trace and span
func (a *Agent) LogWithTrace(level, message, traceID, spanID string) {
	if traceID == "" {
		traceID = uuid.New().String()
	}
	if spanID == "" {
		spanID = uuid.New().String()
	}

	a.addToBuffer(Record{
		Level:      level,
		Message:    message,
		ResourceID: a.config.ResourceID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		TraceID:    traceID,
		SpanID:     spanID,
		Commit:     a.config.Commit,
		Metadata:   Metadata{ParentResourceID: a.config.ParentResourceID},
	})
}

// LogError logs an error
func (a *Agent) LogError(err error, message string) {
	a.Log("error", fmt.Sprintf("%s: %v", message, err))
}

func (a *Agent) Debug(message string) { a.Log("debug", message) }
func (a *Agent) Info(message string)  { a.Log("info", message) }
func (a *Agent) Warn(message string)  { a.Log("warn", message) }
func (a *Agent) Error(message string) { a.Log("error", message) }

func (a *Agent) addToBuffer(record Record) {
	a.bufferMu.Lock()
	a.buffer = append(a.buffer, record)
	shouldFlush := len(a.buffer) >= a.config.BatchSize
	a.bufferMu.Unlock()

	if shouldFlush {
		select {
		case a.flushChan <- struct{}{}:
		default:
		}
	}
}

func (a *Agent) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			a.flush()
			return
		case <-ticker.C:
			a.flush()
		case <-a.flushChan:
			a.flush()
		}
	}
}

func (a *Agent) flush() {
	a.bufferMu.Lock()
	if len(a.buffer) == 0 {
		a.bufferMu.Unlock()
		return
	}

	batch := make([]Record, len(a.buffer))
	copy(batch, a.buffer)
	a.buffer = a.buffer[:0]
	a.bufferMu.Unlock()

	id, err := a.Send(context.Background(), batch)
	if err != nil {
		log.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to send logs after all retries")
		return
	}
	log.Debug().Str("submission_id", id).Int("batch_size", len(batch)).Msg("Logs accepted")
}

// Send posts one batch, retrying throttled and server-side failures. It
// returns the submission id assigned by the gateway.
func (a *Agent) Send(ctx context.Context, batch []Record) (string, error) {
	backoff := a.config.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= a.config.MaxRetries; attempt++ {
		id, err := a.send(ctx, batch)
		if err == nil {
			return id, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to send logs")

		wait := backoff
		var sendErr *SendError
		if errors.As(err, &sendErr) {
			if !sendErr.retryable() {
				return "", err
			}
			if sendErr.RetryAfter > 0 {
				wait = sendErr.RetryAfter
			}
		}
		if attempt == a.config.MaxRetries {
			break
		}

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
		backoff *= 2
	}
	return "", lastErr
}

func (a *Agent) send(ctx context.Context, batch []Record) (string, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("failed to marshal logs: %w", err)
	}

	body := data
	if a.config.Compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return "", fmt.Errorf("failed to compress logs: %w", err)
		}
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("failed to compress logs: %w", err)
		}
		body = buf.Bytes()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.Compress {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sendErr := &SendError{StatusCode: resp.StatusCode, Body: string(raw)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			sendErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return "", sendErr
	}

	var accepted struct {
		Submission struct {
			ID string `json:"id"`
		} `json:"submission"`
	}
	if err := json.Unmarshal(raw, &accepted); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return accepted.Submission.ID, nil
}
