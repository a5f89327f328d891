package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-insights/internal/api/dto"
	"github.com/spec-kit/ticket-insights/internal/service"
	apperrors "github.com/spec-kit/ticket-insights/pkg/util"
)

// AggregationRunner recomputes lifecycle buckets over a civil date range.
type AggregationRunner interface {
	AggregateDailyRange(ctx context.Context, from, to time.Time) error
	AggregateWeeklyRange(ctx context.Context, from, to time.Time) error
}

// ReconcileRunner runs a closure snapshot pass over a civil date range.
type ReconcileRunner interface {
	Reconcile(ctx context.Context, fromDay, toDay time.Time) error
}

// JobsHandler exposes manual triggers for the background jobs that
// normally run on the scheduler.
type JobsHandler struct {
	aggregation AggregationRunner
	reconcile   ReconcileRunner
	loc         *time.Location
}

// NewJobsHandler constructs handler.
func NewJobsHandler(aggregation AggregationRunner, reconcile ReconcileRunner, loc *time.Location) *JobsHandler {
	return &JobsHandler{aggregation: aggregation, reconcile: reconcile, loc: loc}
}

// TriggerAggregation POST /analytics/aggregate. Recomputes the buckets
// covering the requested range; defaults to yesterday. An explicit
// grouping limits the run to that cadence, otherwise both run.
func (h *JobsHandler) TriggerAggregation(c *fiber.Ctx) error {
	from, to, err := optionalDateRange(c, time.Now().In(h.loc).AddDate(0, 0, -1))
	if err != nil {
		return err
	}

	grouping := c.Query("grouping")
	if grouping != "" {
		if grouping, err = parseGrouping(grouping); err != nil {
			return err
		}
	}

	if grouping == "" || grouping == service.GroupingDay {
		if err := h.aggregation.AggregateDailyRange(c.UserContext(), from, to); err != nil {
			return err
		}
	}
	if grouping == "" || grouping == service.GroupingWeek {
		if err := h.aggregation.AggregateWeeklyRange(c.UserContext(), from, to); err != nil {
			return err
		}
	}
	return c.JSON(fiber.Map{"data": dto.JobTriggerResponse{Job: "aggregation", Status: "completed"}})
}

// TriggerReconcile POST /analytics/reconcile. Runs a closure snapshot
// reconciliation over the requested range; defaults to today.
func (h *JobsHandler) TriggerReconcile(c *fiber.Ctx) error {
	from, to, err := optionalDateRange(c, time.Now().In(h.loc))
	if err != nil {
		return err
	}

	if err := h.reconcile.Reconcile(c.UserContext(), from, to); err != nil {
		if errors.Is(err, service.ErrReconciliationRunning) {
			return apperrors.NewConflict("a reconciliation pass is already running", nil)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.JobTriggerResponse{Job: "reconciliation", Status: "completed"}})
}

func optionalDateRange(c *fiber.Ctx, def time.Time) (time.Time, time.Time, error) {
	if c.Query("from") == "" && c.Query("to") == "" {
		day := time.Date(def.Year(), def.Month(), def.Day(), 0, 0, 0, 0, time.UTC)
		return day, day, nil
	}
	return parseDateRange(c)
}
