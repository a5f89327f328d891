package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock is a named, non-blocking lock backed by a Postgres
// session advisory lock. It guards jobs that must not run concurrently
// across the whole system, such as snapshot reconciliation.
type AdvisoryLock struct {
	pool *pgxpool.Pool
	key  int64
}

// NewAdvisoryLock creates a lock scoped to the given key.
func NewAdvisoryLock(pool *pgxpool.Pool, key int64) *AdvisoryLock {
	return &AdvisoryLock{pool: pool, key: key}
}

// TryAcquire attempts to take the lock without blocking. On success it
// returns a release func that must be called to free the lock; when the
// lock is already held elsewhere it returns ok=false.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (release func(), ok bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release = func() {
		// Unlock on the same session that took the lock; the background
		// context keeps release working after the caller's ctx is done.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key)
		conn.Release()
	}
	return release, true, nil
}
