package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxRevalidateAttempts bounds the WATCH retries of Revalidated.
const maxRevalidateAttempts = 3

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// getter is the read side shared by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Manager stores catalog responses in Redis, one key per endpoint and
// query. Redis expires the keys together with the entries.
type Manager struct {
	redis *redis.Client
	now   func() time.Time
}

// NewManager creates a cache manager on top of redisClient.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
		now:   time.Now,
	}
}

// Get returns the entry of key, or ErrCacheMiss when there is none or it
// has expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	label := key.Label()

	entry, err := m.load(ctx, m.redis, key.String())
	if errors.Is(err, ErrCacheMiss) {
		CacheMisses.WithLabelValues(label).Inc()
		return nil, err
	}
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}

	if entry.Expired(m.now()) {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(label).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(label).Inc()
	return entry, nil
}

// Set stores entry until it expires. Endpoint and StoredAt are filled in
// when empty. An entry that is already expired is skipped.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	now := m.now()
	ttl := entry.TTL(now)
	if ttl <= 0 {
		return nil
	}
	if entry.Endpoint == "" {
		entry.Endpoint = key.Label()
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = now
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheStoredBytes.WithLabelValues(entry.Endpoint).Add(float64(len(entry.Body)))
	return nil
}

// Delete removes the entry of key.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Revalidated records a 304 answer for key: the stored body is kept, the
// expiry moves to expires and the revalidation count goes up. The update
// runs under WATCH so processes revalidating the same listing do not
// overwrite each other. It returns ErrCacheMiss when the entry is gone.
func (m *Manager) Revalidated(ctx context.Context, key Key, expires time.Time) (*Entry, error) {
	k := key.String()

	var updated *Entry
	txf := func(tx *redis.Tx) error {
		entry, err := m.load(ctx, tx, k)
		if err != nil {
			return err
		}
		entry.Expires = expires
		entry.Revalidations++

		ttl := entry.TTL(m.now())
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl <= 0 {
				pipe.Del(ctx, k)
				return nil
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshal cache entry: %w", err)
			}
			pipe.Set(ctx, k, data, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		if ttl <= 0 {
			return ErrCacheMiss
		}
		updated = entry
		return nil
	}

	for attempt := 0; attempt < maxRevalidateAttempts; attempt++ {
		err := m.redis.Watch(ctx, txf, k)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrCacheMiss):
			return nil, err
		case err != nil:
			CacheErrors.WithLabelValues("revalidate").Inc()
			return nil, fmt.Errorf("revalidate %s: %w", k, err)
		}
		return updated, nil
	}

	CacheErrors.WithLabelValues("revalidate").Inc()
	return nil, fmt.Errorf("revalidate %s: %w", k, redis.TxFailedErr)
}

func (m *Manager) load(ctx context.Context, cmd getter, k string) (*Entry, error) {
	data, err := cmd.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}
