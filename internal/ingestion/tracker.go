package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/your-username/logsgate/internal/models"
)

// ErrNotFound is returned for unknown or expired submissions
var ErrNotFound = errors.New("submission not found")

// Tracker stores submission state so callers can poll the outcome of a
// batch after the ingest response has been sent.
type Tracker interface {
	Put(ctx context.Context, sub models.Submission) error
	Get(ctx context.Context, id string) (models.Submission, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	sub     models.Submission
	expires time.Time
}

// MemoryTracker keeps submissions in process memory until their TTL passes
type MemoryTracker struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	puts    int
}

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (t *MemoryTracker) Put(_ context.Context, sub models.Submission) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.entries[sub.ID] = memoryEntry{sub: sub, expires: now.Add(t.ttl)}

	// sweep every 256 writes so abandoned entries do not pile up
	t.puts++
	if t.puts%256 == 0 {
		for id, e := range t.entries {
			if now.After(e.expires) {
				delete(t.entries, id)
			}
		}
	}
	return nil
}

func (t *MemoryTracker) Get(_ context.Context, id string) (models.Submission, error) {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()

	if !ok || t.now().After(e.expires) {
		return models.Submission{}, ErrNotFound
	}
	return e.sub, nil
}

func (t *MemoryTracker) Delete(_ context.Context, id string) error {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (t *MemoryTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// RedisTracker shares submission state between gateway replicas
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTracker connects to the Redis server at url (redis://...)
func NewRedisTracker(url string, ttl time.Duration) (*RedisTracker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisTrackerWithClient(client, ttl), nil
}

func NewRedisTrackerWithClient(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, prefix: "logsgate:submission:", ttl: ttl}
}

func (t *RedisTracker) Put(ctx context.Context, sub models.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}
	return t.client.Set(ctx, t.prefix+sub.ID, data, t.ttl).Err()
}

func (t *RedisTracker) Get(ctx context.Context, id string) (models.Submission, error) {
	data, err := t.client.Get(ctx, t.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Submission{}, ErrNotFound
	}
	if err != nil {
		return models.Submission{}, fmt.Errorf("failed to read submission: %w", err)
	}

	var sub models.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return models.Submission{}, fmt.Errorf("failed to decode submission: %w", err)
	}
	return sub, nil
}

func (t *RedisTracker) Delete(ctx context.Context, id string) error {
	return t.client.Del(ctx, t.prefix+id).Err()
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
