package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound reports a cache miss, including entries past their TTL.
var ErrNotFound = errors.New("cache: entry not found")

// Store is the backing key-value store for cache entries. Entries
// expire after their TTL and then read as absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Meta carries the staleness signal attached to every cached read.
type Meta struct {
	CachedAt time.Time
	IsStale  bool
}

// Freshness wraps a Store with stale-while-revalidate bookkeeping. The
// cache itself never refreshes anything: a consumer that receives a
// stale value decides whether to trigger a refresh and must label its
// response accordingly.
type Freshness struct {
	store Store
	now   func() time.Time
}

type envelope struct {
	Payload           json.RawMessage `json:"payload"`
	CachedAt          time.Time       `json:"cached_at"`
	StaleAfterSeconds int             `json:"stale_after_seconds"`
}

// NewFreshness creates the cache wrapper.
func NewFreshness(store Store) *Freshness {
	return &Freshness{store: store, now: time.Now}
}

// SetWithMeta stores value under key. The entry disappears after ttl;
// it is reported stale once older than staleAfter. staleAfter may equal
// ttl, making the entry stale only in the window where clock skew keeps
// it readable.
func (f *Freshness) SetWithMeta(ctx context.Context, key string, value any, ttl, staleAfter time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	env := envelope{
		Payload:           payload,
		CachedAt:          f.now().UTC(),
		StaleAfterSeconds: int(staleAfter / time.Second),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return f.store.Set(ctx, key, raw, ttl)
}

// GetWithMeta loads the entry under key into out and returns its
// staleness metadata. A missing or expired entry returns ErrNotFound.
func (f *Freshness) GetWithMeta(ctx context.Context, key string, out any) (Meta, error) {
	raw, err := f.store.Get(ctx, key)
	if err != nil {
		return Meta{}, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Meta{}, err
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return Meta{}, err
	}

	staleAfter := time.Duration(env.StaleAfterSeconds) * time.Second
	return Meta{
		CachedAt: env.CachedAt,
		IsStale:  f.now().Sub(env.CachedAt) > staleAfter,
	}, nil
}
