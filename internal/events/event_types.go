package events

import (
	"time"

	"github.com/spec-kit/ticket-insights/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventStatusRecorded  EventType = "status_recorded"
	EventSegmentsRebuilt EventType = "segments_rebuilt"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StatusRecordedPayload payload.
type StatusRecordedPayload struct {
	Status     domain.TicketStatus `json:"status"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// SegmentsRebuiltPayload payload.
type SegmentsRebuiltPayload struct {
	SegmentCount int `json:"segment_count"`
}
