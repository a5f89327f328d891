package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-insights/internal/domain"
)

// ClosureRepository persists per-assignee closure counts. The snapshot
// reconciler is the only component allowed to write through it.
type ClosureRepository interface {
	ListByDate(ctx context.Context, bucketDate time.Time) ([]domain.ClosureCount, error)
	ListRange(ctx context.Context, from, to time.Time) ([]domain.ClosureCount, error)
	Upsert(ctx context.Context, count domain.ClosureCount) error
}

type closureRepository struct {
	pool *pgxpool.Pool
}

// NewClosureRepository instantiates repository.
func NewClosureRepository(pool *pgxpool.Pool) ClosureRepository {
	return &closureRepository{pool: pool}
}

func (r *closureRepository) ListByDate(ctx context.Context, bucketDate time.Time) ([]domain.ClosureCount, error) {
	const query = `
        SELECT bucket_date, assignee_id, assignee_name, count
        FROM closure_counts
        WHERE bucket_date = $1
        ORDER BY assignee_id ASC`
	rows, err := r.pool.Query(ctx, query, bucketDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClosureCounts(rows)
}

func (r *closureRepository) ListRange(ctx context.Context, from, to time.Time) ([]domain.ClosureCount, error) {
	const query = `
        SELECT bucket_date, assignee_id, assignee_name, count
        FROM closure_counts
        WHERE bucket_date >= $1 AND bucket_date <= $2
        ORDER BY bucket_date ASC, assignee_id ASC`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClosureCounts(rows)
}

func (r *closureRepository) Upsert(ctx context.Context, count domain.ClosureCount) error {
	const query = `
        INSERT INTO closure_counts (bucket_date, assignee_id, assignee_name, count)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (bucket_date, assignee_id)
        DO UPDATE SET assignee_name = EXCLUDED.assignee_name, count = EXCLUDED.count`
	_, err := r.pool.Exec(ctx, query,
		count.BucketDate,
		count.AssigneeID,
		count.AssigneeName,
		count.Count,
	)
	return err
}

func scanClosureCounts(rows pgx.Rows) ([]domain.ClosureCount, error) {
	var result []domain.ClosureCount
	for rows.Next() {
		var count domain.ClosureCount
		if err := rows.Scan(
			&count.BucketDate,
			&count.AssigneeID,
			&count.AssigneeName,
			&count.Count,
		); err != nil {
			return nil, err
		}
		result = append(result, count)
	}
	return result, rows.Err()
}
