package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-insights/internal/domain"
	"github.com/spec-kit/ticket-insights/internal/events"
	"github.com/spec-kit/ticket-insights/internal/repository"
)

// SegmentService reconstructs status segments from the event log. A
// rebuild is a deterministic fold over the ticket's ordered events:
// re-running it on an unchanged event set leaves the segment set
// unchanged, so failed rebuilds are retried by simple re-invocation.
type SegmentService struct {
	events     repository.EventRepository
	segments   repository.SegmentRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// SegmentDependencies bundles collaborators for the segment service.
type SegmentDependencies struct {
	EventRepo   repository.EventRepository
	SegmentRepo repository.SegmentRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewSegmentService constructs the service.
func NewSegmentService(deps SegmentDependencies) *SegmentService {
	return &SegmentService{
		events:     deps.EventRepo,
		segments:   deps.SegmentRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Rebuild recomputes the segment set for one ticket from its full event
// history. Callers must serialize invocations per ticket.
func (s *SegmentService) Rebuild(ctx context.Context, ticketID string) error {
	history, err := s.events.ListByTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	// Close any open segment first. If the closing event for it never
	// arrived, this conservative cutoff is the best available bound;
	// when the last event below is still current, its upsert reopens
	// the segment.
	if err := s.segments.CloseOpen(ctx, ticketID, s.now().UTC()); err != nil {
		return err
	}

	for i, event := range history {
		segment := &domain.StatusSegment{
			ID:        uuid.NewString(),
			TicketID:  ticketID,
			Status:    event.Status,
			EnteredAt: event.OccurredAt,
		}
		if i+1 < len(history) {
			leftAt := history[i+1].OccurredAt
			segment.LeftAt = &leftAt
		}
		if err := s.segments.Upsert(ctx, segment); err != nil {
			return err
		}
	}

	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSegmentsRebuilt,
		TicketID:  ticketID,
		Timestamp: s.now().UTC(),
		Payload:   events.SegmentsRebuiltPayload{SegmentCount: len(history)},
	})

	s.logger.Debug("segments rebuilt",
		zap.String("ticket_id", ticketID),
		zap.Int("event_count", len(history)),
	)
	return nil
}
