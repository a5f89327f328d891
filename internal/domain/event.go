package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew         TicketStatus = "NEW"
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
)

// NormalizeStatus canonicalizes provider-supplied status strings.
// Statuses outside the known set are kept as sent; the pipeline treats
// status as an open vocabulary.
func NormalizeStatus(raw string) TicketStatus {
	return TicketStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// StatusEvent is one observed status change for a ticket. Events are
// append-only: the ingestion path creates them and nothing ever mutates
// or deletes them afterwards.
type StatusEvent struct {
	ID             string
	IdempotencyKey string
	TicketID       string
	Status         TicketStatus
	OccurredAt     time.Time
	ReceivedAt     time.Time
	RawPayload     []byte
	// Seq is assigned by the store in arrival order and breaks ties
	// between events sharing the same OccurredAt.
	Seq int64
}
