package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-insights/internal/api/dto"
	"github.com/spec-kit/ticket-insights/internal/service"
	apperrors "github.com/spec-kit/ticket-insights/pkg/util"
)

// WebhookHandler receives status notifications from the ticketing
// provider. Authentication of the webhook happens upstream (gateway);
// this handler assumes the request is already trusted.
type WebhookHandler struct {
	ingest *service.IngestService
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(ingest *service.IngestService) *WebhookHandler {
	return &WebhookHandler{ingest: ingest}
}

// Receive POST /webhooks/ticketing.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var req dto.WebhookEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	raw := make([]byte, len(c.Body()))
	copy(raw, c.Body())

	event, err := h.ingest.Ingest(c.UserContext(), service.WebhookInput{
		Type:     req.Type,
		TicketID: req.TicketID,
		Status:   req.Status,
		Raw:      raw,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.WebhookEventResponse{
		EventID:  event.ID,
		TicketID: event.TicketID,
		Status:   string(event.Status),
	}})
}
