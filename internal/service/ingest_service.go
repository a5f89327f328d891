package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-insights/internal/domain"
	"github.com/spec-kit/ticket-insights/internal/events"
	"github.com/spec-kit/ticket-insights/internal/repository"
	apperrors "github.com/spec-kit/ticket-insights/pkg/util"
)

// Webhook event types accepted from the ticketing provider.
const (
	WebhookTicketCreated       = "ticket.created"
	WebhookTicketStatusChanged = "ticket.status_changed"
)

// WebhookInput is the already-authenticated webhook payload.
type WebhookInput struct {
	Type     string
	TicketID string
	Status   string
	Raw      []byte
}

// IngestService appends status events to the permanent log and triggers
// segment rebuilds. Event identity is generated here: an externally
// supplied event id or timestamp is never trusted.
type IngestService struct {
	events     repository.EventRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// IngestDependencies bundles collaborators for the ingest service.
type IngestDependencies struct {
	EventRepo  repository.EventRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewIngestService constructs the service.
func NewIngestService(deps IngestDependencies) *IngestService {
	return &IngestService{
		events:     deps.EventRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Ingest validates and stores one webhook notification. Duplicate
// deliveries within the dedup window are a success no-op.
func (s *IngestService) Ingest(ctx context.Context, input WebhookInput) (*domain.StatusEvent, error) {
	ticketID := strings.TrimSpace(input.TicketID)
	status := string(domain.NormalizeStatus(input.Status))

	switch input.Type {
	case WebhookTicketCreated:
		if status == "" {
			status = string(domain.TicketStatusNew)
		}
	case WebhookTicketStatusChanged:
		if status == "" {
			return nil, apperrors.NewValidationError("status is required", map[string]any{"field": "status"})
		}
	default:
		return nil, apperrors.NewValidationError("unsupported webhook type", map[string]any{"type": input.Type})
	}
	if ticketID == "" {
		return nil, apperrors.NewValidationError("ticket_id is required", map[string]any{"field": "ticket_id"})
	}

	receivedAt := s.now().UTC()
	event := &domain.StatusEvent{
		ID:             uuid.NewString(),
		IdempotencyKey: idempotencyKey(ticketID, status, receivedAt),
		TicketID:       ticketID,
		Status:         domain.TicketStatus(status),
		OccurredAt:     receivedAt,
		ReceivedAt:     receivedAt,
		RawPayload:     input.Raw,
	}

	inserted, err := s.events.Append(ctx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.logger.Debug("duplicate webhook delivery ignored",
			zap.String("ticket_id", ticketID),
			zap.String("status", status),
		)
		return event, nil
	}

	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        event.ID,
		Type:      events.EventStatusRecorded,
		TicketID:  event.TicketID,
		Timestamp: event.ReceivedAt,
		Payload: events.StatusRecordedPayload{
			Status:     event.Status,
			OccurredAt: event.OccurredAt,
		},
	})
	return event, nil
}

// idempotencyKey derives a deterministic key from the event content and
// a one-minute receipt window, so re-delivered webhooks collapse onto
// the stored event instead of forking the log.
func idempotencyKey(ticketID, status string, receivedAt time.Time) string {
	window := receivedAt.UTC().Truncate(time.Minute)
	data := fmt.Sprintf("%s|%s|%d", ticketID, status, window.Unix())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
