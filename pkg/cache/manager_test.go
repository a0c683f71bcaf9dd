package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips the test when
// none is running. tests/integration covers the same paths against a
// container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	// Ping to check connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB before each test
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// listingKey is the key of the second search page for "phone".
func listingKey() Key {
	return Key{
		Endpoint: "/products/search",
		Query:    url.Values{"q": {"phone"}, "limit": {"6"}, "skip": {"6"}},
	}
}

func listingEntry(now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Body:        []byte(`{"products":[{"id":121,"title":"iPhone 5s"}],"total":23,"skip":6,"limit":6}`),
		ContentType: "application/json",
		StatusCode:  200,
		ETag:        `W/"phone-6"`,
		Expires:     now.Add(ttl),
	}
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_StoresListing(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	now := time.Now()
	manager.now = func() time.Time { return now }

	key := listingKey()
	if err := manager.Set(ctx, key, listingEntry(now, 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Endpoint != "/products/search" {
		t.Errorf("Endpoint = %q, want /products/search", got.Endpoint)
	}
	if !got.StoredAt.Equal(now) {
		t.Errorf("StoredAt = %v, want %v", got.StoredAt, now)
	}
	if got.ContentType != "application/json" || got.ETag != `W/"phone-6"` {
		t.Errorf("metadata not kept: %+v", got)
	}
	if string(got.Body) != string(listingEntry(now, 0).Body) {
		t.Errorf("Body = %s", got.Body)
	}

	ttl, err := client.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 4*time.Minute || ttl > 5*time.Minute {
		t.Errorf("redis ttl = %v, want about 5m", ttl)
	}
}

func TestManager_ProductLabel(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Endpoint: "/products/7"}
	entry := &Entry{Body: []byte(`{"id":7}`), Expires: time.Now().Add(time.Minute)}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Endpoint != "/products/{id}" {
		t.Errorf("Endpoint = %q, want /products/{id}", got.Endpoint)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Get(context.Background(), Key{Endpoint: "/products/999999"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredListing(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	now := time.Now()
	manager.now = func() time.Time { return now }

	key := listingKey()
	if err := manager.Set(ctx, key, listingEntry(now, 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Redis still holds the key; the entry itself is past its expiry.
	manager.now = func() time.Time { return now.Add(6 * time.Minute) }

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Expected ErrCacheMiss for expired listing, got %v", err)
	}
	if n, _ := client.Exists(ctx, key.String()).Result(); n != 0 {
		t.Error("expired listing should be deleted on read")
	}
}

func TestManager_Set_SkipsExpired(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := listingKey()
	if err := manager.Set(ctx, key, listingEntry(time.Now(), -time.Hour)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if n, _ := client.Exists(ctx, key.String()).Result(); n != 0 {
		t.Error("an expired entry should not be written")
	}
}

func TestManager_Revalidated(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	now := time.Now()
	manager.now = func() time.Time { return now }

	key := listingKey()
	if err := manager.Set(ctx, key, listingEntry(now, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A 304 arrives 50s later granting another ten minutes.
	later := now.Add(50 * time.Second)
	manager.now = func() time.Time { return later }

	updated, err := manager.Revalidated(ctx, key, later.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Revalidated failed: %v", err)
	}
	if updated.Revalidations != 1 {
		t.Errorf("Revalidations = %d, want 1", updated.Revalidations)
	}
	if !updated.StoredAt.Equal(now) {
		t.Errorf("StoredAt moved to %v, the body was not refetched", updated.StoredAt)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after Revalidated failed: %v", err)
	}
	if !got.Expires.Equal(later.Add(10 * time.Minute)) {
		t.Errorf("Expires = %v, want %v", got.Expires, later.Add(10*time.Minute))
	}
	if string(got.Body) != string(listingEntry(now, 0).Body) {
		t.Errorf("304 should keep the body, got %s", got.Body)
	}
	if got.Revalidations != 1 {
		t.Errorf("stored Revalidations = %d, want 1", got.Revalidations)
	}

	ttl, _ := client.TTL(ctx, key.String()).Result()
	if ttl <= 5*time.Minute {
		t.Errorf("redis ttl = %v, want it extended to about 10m", ttl)
	}

	if _, err := manager.Revalidated(ctx, key, later.Add(20*time.Minute)); err != nil {
		t.Fatalf("second Revalidated failed: %v", err)
	}
	if got, _ := manager.Get(ctx, key); got == nil || got.Revalidations != 2 {
		t.Errorf("Revalidations after second 304 = %+v", got)
	}
}

func TestManager_Revalidated_NoStore(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	now := time.Now()
	manager.now = func() time.Time { return now }

	key := listingKey()
	if err := manager.Set(ctx, key, listingEntry(now, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A 304 carrying no-cache expires at once.
	if _, err := manager.Revalidated(ctx, key, now); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Revalidated = %v, want ErrCacheMiss", err)
	}
	if n, _ := client.Exists(ctx, key.String()).Result(); n != 0 {
		t.Error("a listing revalidated to no freshness should be dropped")
	}
}

func TestManager_Revalidated_Missing(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Revalidated(context.Background(), listingKey(), time.Now().Add(time.Minute))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Revalidated on a missing listing = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Revalidated_Corrupt(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := listingKey()
	client.Set(ctx, key.String(), "not json", time.Minute)

	_, err := manager.Revalidated(ctx, key, time.Now().Add(time.Minute))
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Revalidated on a corrupt entry = %v, want ErrInvalidEntry", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := listingKey()
	if err := manager.Set(ctx, key, listingEntry(time.Now(), 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	if err := manager.Set(context.Background(), listingKey(), nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
