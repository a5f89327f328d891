package domain

import "time"

// UnassignedID stands in for tickets closed without an assignee.
const UnassignedID = "unassigned"

// ClosureCount is the number of tickets an assignee closed on one day.
// The value is a replacement snapshot written exclusively by the
// reconciler; a count of 0 records that an assignee previously seen for
// this date no longer has any closures there.
type ClosureCount struct {
	BucketDate   time.Time
	AssigneeID   string
	AssigneeName string
	Count        int
}

// ClosedTicket is one upstream observation of a closed ticket.
type ClosedTicket struct {
	TicketID   string
	AssigneeID string
	ClosedAt   time.Time
	State      string
}

// Assignee is a directory entry from the upstream user listing.
type Assignee struct {
	ID   string
	Name string
}
