package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-insights/internal/domain"
)

// SegmentRepository encapsulates status segment persistence. Segments
// are keyed by (ticket_id, status, entered_at); Upsert only corrects
// left_at for an existing key, so replays never duplicate intervals.
type SegmentRepository interface {
	CloseOpen(ctx context.Context, ticketID string, leftAt time.Time) error
	Upsert(ctx context.Context, segment *domain.StatusSegment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusSegment, error)
	// ListClosedInRange returns segments whose left_at falls in [from, to).
	ListClosedInRange(ctx context.Context, from, to time.Time) ([]domain.StatusSegment, error)
	DistinctStatuses(ctx context.Context) ([]domain.TicketStatus, error)
}

type segmentRepository struct {
	pool *pgxpool.Pool
}

// NewSegmentRepository instantiates repository.
func NewSegmentRepository(pool *pgxpool.Pool) SegmentRepository {
	return &segmentRepository{pool: pool}
}

func (r *segmentRepository) CloseOpen(ctx context.Context, ticketID string, leftAt time.Time) error {
	const query = `
        UPDATE status_segments SET left_at = $2
        WHERE ticket_id = $1 AND left_at IS NULL`
	_, err := r.pool.Exec(ctx, query, ticketID, leftAt)
	return err
}

func (r *segmentRepository) Upsert(ctx context.Context, segment *domain.StatusSegment) error {
	const query = `
        INSERT INTO status_segments (id, ticket_id, status, entered_at, left_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (ticket_id, status, entered_at)
        DO UPDATE SET left_at = EXCLUDED.left_at
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		segment.ID,
		segment.TicketID,
		segment.Status,
		segment.EnteredAt,
		segment.LeftAt,
	).Scan(&segment.ID)
}

func (r *segmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusSegment, error) {
	const query = `
        SELECT id, ticket_id, status, entered_at, left_at
        FROM status_segments
        WHERE ticket_id = $1
        ORDER BY entered_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSegments(rows)
}

func (r *segmentRepository) ListClosedInRange(ctx context.Context, from, to time.Time) ([]domain.StatusSegment, error) {
	const query = `
        SELECT id, ticket_id, status, entered_at, left_at
        FROM status_segments
        WHERE left_at >= $1 AND left_at < $2
        ORDER BY left_at ASC`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSegments(rows)
}

func (r *segmentRepository) DistinctStatuses(ctx context.Context) ([]domain.TicketStatus, error) {
	const query = `SELECT DISTINCT status FROM status_segments ORDER BY status`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketStatus
	for rows.Next() {
		var status domain.TicketStatus
		if err := rows.Scan(&status); err != nil {
			return nil, err
		}
		result = append(result, status)
	}
	return result, rows.Err()
}

func scanSegments(rows pgx.Rows) ([]domain.StatusSegment, error) {
	var result []domain.StatusSegment
	for rows.Next() {
		var segment domain.StatusSegment
		if err := rows.Scan(
			&segment.ID,
			&segment.TicketID,
			&segment.Status,
			&segment.EnteredAt,
			&segment.LeftAt,
		); err != nil {
			return nil, err
		}
		result = append(result, segment)
	}
	return result, rows.Err()
}
