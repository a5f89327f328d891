package dto

// WebhookEventRequest is the ticketing provider's notification payload.
// Only the fields the service cares about are declared; the full body is
// stored verbatim alongside the event.
type WebhookEventRequest struct {
	Type     string `json:"type"`
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}

// WebhookEventResponse acknowledges an accepted notification.
type WebhookEventResponse struct {
	EventID  string `json:"event_id"`
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}
