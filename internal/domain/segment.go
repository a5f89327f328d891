package domain

import "time"

// StatusSegment is a contiguous interval during which a ticket held one
// status. LeftAt == nil means the segment is still open; a ticket has at
// most one open segment at any time.
type StatusSegment struct {
	ID        string
	TicketID  string
	Status    TicketStatus
	EnteredAt time.Time
	LeftAt    *time.Time
}

// IsOpen reports whether the segment has no recorded exit.
func (s StatusSegment) IsOpen() bool {
	return s.LeftAt == nil
}
