package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-process Store with TTL expiry driven by an
// injectable clock, mirroring the Redis-backed implementation.
type memStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{entries: make(map[string]memEntry), now: now}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.value, nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

type testPayload struct {
	Value string `json:"value"`
}

func newTestCache() (*Freshness, *time.Time) {
	current := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	cache := NewFreshness(newMemStore(now))
	cache.now = now
	return cache, &current
}

func TestFreshness_FreshReadWithinStaleWindow(t *testing.T) {
	cache, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, cache.SetWithMeta(ctx, "k", testPayload{Value: "v"}, 300*time.Second, 300*time.Second))

	var got testPayload
	meta, err := cache.GetWithMeta(ctx, "k", &got)

	require.NoError(t, err)
	assert.Equal(t, "v", got.Value)
	assert.False(t, meta.IsStale)
}

func TestFreshness_StaleAfterAndTTLAreDistinctThresholds(t *testing.T) {
	cache, current := newTestCache()
	ctx := context.Background()

	require.NoError(t, cache.SetWithMeta(ctx, "k", testPayload{Value: "v"}, 600*time.Second, 300*time.Second))

	// At t+301s the entry is stale but still served.
	*current = current.Add(301 * time.Second)
	var got testPayload
	meta, err := cache.GetWithMeta(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, meta.IsStale)
	assert.Equal(t, "v", got.Value)

	// Past the TTL the entry reads as absent.
	*current = current.Add(300 * time.Second)
	_, err = cache.GetWithMeta(ctx, "k", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFreshness_EqualTTLAndStaleAfter(t *testing.T) {
	cache, current := newTestCache()
	ctx := context.Background()

	require.NoError(t, cache.SetWithMeta(ctx, "k", testPayload{Value: "v"}, 300*time.Second, 300*time.Second))

	// Exactly at the boundary the entry is neither stale nor expired.
	*current = current.Add(300 * time.Second)
	var got testPayload
	meta, err := cache.GetWithMeta(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, meta.IsStale)
}

func TestFreshness_MissingKey(t *testing.T) {
	cache, _ := newTestCache()

	var got testPayload
	_, err := cache.GetWithMeta(context.Background(), "absent", &got)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFreshness_OverwriteResetsCachedAt(t *testing.T) {
	cache, current := newTestCache()
	ctx := context.Background()

	require.NoError(t, cache.SetWithMeta(ctx, "k", testPayload{Value: "old"}, 600*time.Second, 60*time.Second))
	*current = current.Add(120 * time.Second)
	require.NoError(t, cache.SetWithMeta(ctx, "k", testPayload{Value: "new"}, 600*time.Second, 60*time.Second))

	var got testPayload
	meta, err := cache.GetWithMeta(ctx, "k", &got)

	require.NoError(t, err)
	assert.Equal(t, "new", got.Value)
	assert.False(t, meta.IsStale)
	assert.Equal(t, current.UTC(), meta.CachedAt)
}
