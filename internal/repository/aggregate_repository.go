package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-insights/internal/domain"
)

// AggregateRepository persists daily and weekly duration aggregates.
// Replace operations overwrite an entire bucket in one transaction so
// reruns for the same bucket are idempotent.
type AggregateRepository interface {
	ReplaceDaily(ctx context.Context, bucketDate time.Time, rows []domain.DailyAggregate) error
	ReplaceWeekly(ctx context.Context, isoYear, isoWeek int, rows []domain.WeeklyAggregate) error
	ListDailyRange(ctx context.Context, from, to time.Time, statuses []domain.TicketStatus) ([]domain.DailyAggregate, error)
	ListWeeklyRange(ctx context.Context, fromYear, fromWeek, toYear, toWeek int, statuses []domain.TicketStatus) ([]domain.WeeklyAggregate, error)
}

type aggregateRepository struct {
	pool *pgxpool.Pool
}

// NewAggregateRepository instantiates repository.
func NewAggregateRepository(pool *pgxpool.Pool) AggregateRepository {
	return &aggregateRepository{pool: pool}
}

func (r *aggregateRepository) ReplaceDaily(ctx context.Context, bucketDate time.Time, rows []domain.DailyAggregate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM daily_aggregates WHERE bucket_date = $1`, bucketDate); err != nil {
		return err
	}
	const insert = `
        INSERT INTO daily_aggregates (bucket_date, status, avg_wall_seconds, avg_business_seconds, segment_count)
        VALUES ($1,$2,$3,$4,$5)`
	for _, row := range rows {
		if _, err := tx.Exec(ctx, insert,
			bucketDate, row.Status, row.AvgWallSeconds, row.AvgBusinessSeconds, row.SegmentCount,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *aggregateRepository) ReplaceWeekly(ctx context.Context, isoYear, isoWeek int, rows []domain.WeeklyAggregate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM weekly_aggregates WHERE iso_year = $1 AND iso_week = $2`, isoYear, isoWeek); err != nil {
		return err
	}
	const insert = `
        INSERT INTO weekly_aggregates (iso_year, iso_week, status, avg_wall_seconds, avg_business_seconds, segment_count)
        VALUES ($1,$2,$3,$4,$5,$6)`
	for _, row := range rows {
		if _, err := tx.Exec(ctx, insert,
			isoYear, isoWeek, row.Status, row.AvgWallSeconds, row.AvgBusinessSeconds, row.SegmentCount,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *aggregateRepository) ListDailyRange(ctx context.Context, from, to time.Time, statuses []domain.TicketStatus) ([]domain.DailyAggregate, error) {
	query := `
        SELECT bucket_date, status, avg_wall_seconds, avg_business_seconds, segment_count
        FROM daily_aggregates
        WHERE bucket_date >= $1 AND bucket_date <= $2`
	args := []any{from, to}
	if len(statuses) > 0 {
		args = append(args, statuses)
		query += ` AND status = ANY($3)`
	}
	query += ` ORDER BY bucket_date ASC, status ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DailyAggregate
	for rows.Next() {
		var agg domain.DailyAggregate
		if err := rows.Scan(
			&agg.BucketDate,
			&agg.Status,
			&agg.AvgWallSeconds,
			&agg.AvgBusinessSeconds,
			&agg.SegmentCount,
		); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	return result, rows.Err()
}

func (r *aggregateRepository) ListWeeklyRange(ctx context.Context, fromYear, fromWeek, toYear, toWeek int, statuses []domain.TicketStatus) ([]domain.WeeklyAggregate, error) {
	query := `
        SELECT iso_year, iso_week, status, avg_wall_seconds, avg_business_seconds, segment_count
        FROM weekly_aggregates
        WHERE (iso_year * 100 + iso_week) >= $1 AND (iso_year * 100 + iso_week) <= $2`
	args := []any{fromYear*100 + fromWeek, toYear*100 + toWeek}
	if len(statuses) > 0 {
		args = append(args, statuses)
		query += ` AND status = ANY($3)`
	}
	query += ` ORDER BY iso_year ASC, iso_week ASC, status ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WeeklyAggregate
	for rows.Next() {
		var agg domain.WeeklyAggregate
		if err := rows.Scan(
			&agg.ISOYear,
			&agg.ISOWeek,
			&agg.Status,
			&agg.AvgWallSeconds,
			&agg.AvgBusinessSeconds,
			&agg.SegmentCount,
		); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	return result, rows.Err()
}
