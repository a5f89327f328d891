package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-insights/internal/api/dto"
	"github.com/spec-kit/ticket-insights/internal/domain"
	"github.com/spec-kit/ticket-insights/internal/service"
	apperrors "github.com/spec-kit/ticket-insights/pkg/util"
)

// AnalyticsHandler serves the aggregated read endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Lifecycle GET /analytics/lifecycle.
func (h *AnalyticsHandler) Lifecycle(c *fiber.Ctx) error {
	from, to, err := parseDateRange(c)
	if err != nil {
		return err
	}
	grouping, err := parseGrouping(c.Query("grouping", service.GroupingDay))
	if err != nil {
		return err
	}
	hoursMode, err := parseHoursMode(c.Query("hours", service.HoursModeWall))
	if err != nil {
		return err
	}

	query := service.LifecycleQuery{
		From:      from,
		To:        to,
		Grouping:  grouping,
		HoursMode: hoursMode,
		Statuses:  parseStatuses(c.Query("status")),
	}
	points, meta, err := h.analytics.LifecycleData(c.UserContext(), query)
	if err != nil {
		return err
	}

	items := make([]dto.LifecyclePointResponse, 0, len(points))
	for _, point := range points {
		items = append(items, dto.LifecyclePointResponse{
			Bucket:               point.Bucket,
			Status:               point.Status,
			AvgDurationSeconds:   point.AvgDurationSeconds,
			AvgDurationFormatted: point.AvgDurationFormatted,
			Count:                point.Count,
		})
	}
	return c.JSON(fiber.Map{"data": items, "meta": cacheMeta(meta)})
}

// Statuses GET /analytics/statuses.
func (h *AnalyticsHandler) Statuses(c *fiber.Ctx) error {
	statuses, err := h.analytics.DistinctStatuses(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]string, 0, len(statuses))
	for _, status := range statuses {
		items = append(items, string(status))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Closures GET /analytics/closures.
func (h *AnalyticsHandler) Closures(c *fiber.Ctx) error {
	from, to, err := parseDateRange(c)
	if err != nil {
		return err
	}
	grouping, err := parseGrouping(c.Query("grouping", service.GroupingDay))
	if err != nil {
		return err
	}

	points, meta, err := h.analytics.ClosureCounts(c.UserContext(), from, to, grouping)
	if err != nil {
		return err
	}

	items := make([]dto.ClosurePointResponse, 0, len(points))
	for _, point := range points {
		items = append(items, dto.ClosurePointResponse{
			Bucket:       point.Bucket,
			AssigneeID:   point.AssigneeID,
			AssigneeName: point.AssigneeName,
			Count:        point.Count,
		})
	}
	return c.JSON(fiber.Map{"data": items, "meta": cacheMeta(meta)})
}

func cacheMeta(meta service.ReadMeta) dto.CacheMetaResponse {
	resp := dto.CacheMetaResponse{
		FromCache: meta.ServingCached,
		Stale:     meta.IsStale,
	}
	if !meta.CachedAt.IsZero() {
		cachedAt := meta.CachedAt
		resp.CachedAt = &cachedAt
	}
	return resp
}

func parseDateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	from, err := parseDate(c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.NewValidationError("from must be a YYYY-MM-DD date", map[string]any{"field": "from"})
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.NewValidationError("to must be a YYYY-MM-DD date", map[string]any{"field": "to"})
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, apperrors.NewValidationError("to must not precede from", nil)
	}
	return from, to, nil
}

func parseDate(val string) (time.Time, error) {
	return time.Parse("2006-01-02", val)
}

func parseGrouping(val string) (string, error) {
	switch val {
	case service.GroupingDay, service.GroupingWeek:
		return val, nil
	default:
		return "", apperrors.NewValidationError("grouping must be day or week", map[string]any{"grouping": val})
	}
}

func parseHoursMode(val string) (string, error) {
	switch val {
	case service.HoursModeWall, service.HoursModeBusiness:
		return val, nil
	default:
		return "", apperrors.NewValidationError("hours must be wall or business", map[string]any{"hours": val})
	}
}

func parseStatuses(val string) []domain.TicketStatus {
	if val == "" {
		return nil
	}
	var statuses []domain.TicketStatus
	for _, part := range strings.Split(val, ",") {
		if status := domain.NormalizeStatus(part); status != "" {
			statuses = append(statuses, status)
		}
	}
	return statuses
}
