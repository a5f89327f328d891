package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-insights/internal/domain"
)

// EventRepository encapsulates the append-only status event log.
type EventRepository interface {
	// Append stores a new event. It reports false without error when an
	// event with the same idempotency key already exists.
	Append(ctx context.Context, event *domain.StatusEvent) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusEvent, error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository instantiates repository.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) Append(ctx context.Context, event *domain.StatusEvent) (bool, error) {
	const query = `
        INSERT INTO status_events (id, idempotency_key, ticket_id, status, occurred_at, received_at, raw_payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (idempotency_key) DO NOTHING
        RETURNING seq`
	err := r.pool.QueryRow(ctx, query,
		event.ID,
		event.IdempotencyKey,
		event.TicketID,
		event.Status,
		event.OccurredAt,
		event.ReceivedAt,
		event.RawPayload,
	).Scan(&event.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *eventRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusEvent, error) {
	const query = `
        SELECT id, idempotency_key, ticket_id, status, occurred_at, received_at, raw_payload, seq
        FROM status_events
        WHERE ticket_id = $1
        ORDER BY occurred_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusEvent
	for rows.Next() {
		var event domain.StatusEvent
		if err := rows.Scan(
			&event.ID,
			&event.IdempotencyKey,
			&event.TicketID,
			&event.Status,
			&event.OccurredAt,
			&event.ReceivedAt,
			&event.RawPayload,
			&event.Seq,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
