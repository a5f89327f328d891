package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-insights/internal/calendar"
	"github.com/spec-kit/ticket-insights/internal/config"
	"github.com/spec-kit/ticket-insights/internal/domain"
	"github.com/spec-kit/ticket-insights/internal/repository"
	"github.com/spec-kit/ticket-insights/internal/upstream"
	apperrors "github.com/spec-kit/ticket-insights/pkg/util"
)

// ErrReconciliationRunning reports that another reconciliation pass
// holds the system-wide lock; the trigger is skipped, not queued.
var ErrReconciliationRunning = errors.New("reconciliation already in flight")

// RunGuard provides system-wide mutual exclusion for a named job.
type RunGuard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// ReconcileService is the sole writer of the closure-count table. Every
// pass replaces materialized counts with freshly observed upstream
// snapshots; it never increments and never merges.
type ReconcileService struct {
	upstream upstream.Client
	closures repository.ClosureRepository
	guard    RunGuard
	cfg      config.UpstreamConfig
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// ReconcileDependencies bundles collaborators for the service.
type ReconcileDependencies struct {
	Upstream    upstream.Client
	ClosureRepo repository.ClosureRepository
	Guard       RunGuard
	Upstreamcfg config.UpstreamConfig
	Location    *time.Location
	Logger      *zap.Logger
}

// NewReconcileService constructs the service.
func NewReconcileService(deps ReconcileDependencies) *ReconcileService {
	return &ReconcileService{
		upstream: deps.Upstream,
		closures: deps.ClosureRepo,
		guard:    deps.Guard,
		cfg:      deps.Upstreamcfg,
		loc:      deps.Location,
		logger:   deps.Logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// ReconcileToday runs the short cadence over the current business day.
func (s *ReconcileService) ReconcileToday(ctx context.Context) error {
	today := calendar.Midnight(s.now(), s.loc)
	return s.Reconcile(ctx, today, today)
}

// ReconcileLookback runs the long cadence over the trailing window,
// self-healing missed short-cadence updates and retroactive upstream
// changes such as closures reassigned after the fact.
func (s *ReconcileService) ReconcileLookback(ctx context.Context, days int) error {
	today := calendar.Midnight(s.now(), s.loc)
	return s.Reconcile(ctx, today.AddDate(0, 0, -days), today)
}

// Reconcile processes every business-timezone date in [fromDay, toDay].
// At most one pass, of either cadence, runs at a time.
func (s *ReconcileService) Reconcile(ctx context.Context, fromDay, toDay time.Time) error {
	release, ok, err := s.guard.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire reconciliation lock: %w", err)
	}
	if !ok {
		s.logger.Info("reconciliation trigger skipped, another pass is running")
		return ErrReconciliationRunning
	}
	defer release()

	directory, err := s.upstream.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("fetch assignee directory: %w", err)
	}
	names := make(map[string]string, len(directory))
	for _, user := range directory {
		names[user.ID] = user.Name
	}

	windowDays := s.cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 5
	}

	// fromDay and toDay are civil dates: take their year, month and day
	// as-is and anchor the pass at local midnight.
	start := calendar.CivilMidnight(fromDay, s.loc)
	end := calendar.CivilMidnight(toDay, s.loc)

	var windowCount, failedWindows int
	var lastErr error
	for winStart := start; !winStart.After(end); winStart = winStart.AddDate(0, 0, windowDays) {
		windowCount++
		winEnd := winStart.AddDate(0, 0, windowDays)
		if winEnd.After(end.AddDate(0, 0, 1)) {
			winEnd = end.AddDate(0, 0, 1)
		}

		if err := s.reconcileWindow(ctx, winStart, winEnd, names); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// One bad window must not abort the rest of the run.
			failedWindows++
			lastErr = err
			s.logger.Error("reconciliation window skipped",
				zap.Time("window_start", winStart),
				zap.Time("window_end", winEnd),
				zap.Error(err),
			)
		}

		if winStart.AddDate(0, 0, windowDays).After(end) {
			break
		}
		if err := s.sleep(ctx, s.cfg.Pacing()); err != nil {
			return err
		}
	}

	if failedWindows > 0 {
		if failedWindows == windowCount {
			return apperrors.NewUpstreamUnavailable(lastErr)
		}
		s.logger.Warn("reconciliation finished with skipped windows", zap.Int("failed_windows", failedWindows))
	}
	return nil
}

// reconcileWindow fetches one upstream window and diffs each contained
// date against the materialized counts.
func (s *ReconcileService) reconcileWindow(ctx context.Context, winStart, winEnd time.Time, names map[string]string) error {
	closed, err := s.upstream.ListClosedTickets(ctx, winStart.UTC(), winEnd.UTC())
	if err != nil {
		return err
	}

	// Group observations by (closed-date in business timezone, assignee).
	observed := make(map[time.Time]map[string]int)
	for _, ticket := range closed {
		day := s.bucketDate(ticket.ClosedAt)
		assignee := ticket.AssigneeID
		if assignee == "" {
			assignee = domain.UnassignedID
		}
		if observed[day] == nil {
			observed[day] = make(map[string]int)
		}
		observed[day][assignee]++
	}

	for day := winStart; day.Before(winEnd); day = day.AddDate(0, 0, 1) {
		bucket := s.bucketDate(day)
		if err := s.reconcileDate(ctx, bucket, observed[bucket], names); err != nil {
			return err
		}
	}
	return nil
}

// reconcileDate writes only the rows that changed. An assignee present
// in the table but absent upstream is zeroed, not deleted: the row
// keeps its historical presence while reflecting current truth.
func (s *ReconcileService) reconcileDate(ctx context.Context, bucket time.Time, fresh map[string]int, names map[string]string) error {
	existing, err := s.closures.ListByDate(ctx, bucket)
	if err != nil {
		return err
	}
	current := make(map[string]domain.ClosureCount, len(existing))
	for _, row := range existing {
		current[row.AssigneeID] = row
	}

	for assignee, count := range fresh {
		prev, seen := current[assignee]
		if seen && prev.Count == count {
			continue
		}
		row := domain.ClosureCount{
			BucketDate:   bucket,
			AssigneeID:   assignee,
			AssigneeName: s.assigneeName(assignee, names),
			Count:        count,
		}
		s.logger.Info("closure count updated",
			zap.String("bucket", bucket.Format("2006-01-02")),
			zap.String("assignee_id", assignee),
			zap.Int("before", prev.Count),
			zap.Int("after", count),
		)
		if err := s.closures.Upsert(ctx, row); err != nil {
			return err
		}
	}

	for assignee, prev := range current {
		if _, stillPresent := fresh[assignee]; stillPresent || prev.Count == 0 {
			continue
		}
		s.logger.Info("closure count zeroed",
			zap.String("bucket", bucket.Format("2006-01-02")),
			zap.String("assignee_id", assignee),
			zap.Int("before", prev.Count),
		)
		prev.Count = 0
		prev.AssigneeName = s.assigneeName(assignee, names)
		if err := s.closures.Upsert(ctx, prev); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReconcileService) assigneeName(assigneeID string, names map[string]string) string {
	if assigneeID == domain.UnassignedID {
		return "Unassigned"
	}
	if name, ok := names[assigneeID]; ok && name != "" {
		return name
	}
	return assigneeID
}

// bucketDate normalizes an instant to its business-timezone calendar
// date, stored as UTC midnight.
func (s *ReconcileService) bucketDate(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
