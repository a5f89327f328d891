package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-insights/internal/cache"
	"github.com/spec-kit/ticket-insights/internal/calendar"
	"github.com/spec-kit/ticket-insights/internal/config"
	"github.com/spec-kit/ticket-insights/internal/domain"
	"github.com/spec-kit/ticket-insights/internal/repository"
)

// Grouping selects the bucket size of a lifecycle query.
const (
	GroupingDay  = "day"
	GroupingWeek = "week"
)

// Hours modes for lifecycle durations.
const (
	HoursModeWall     = "wall"
	HoursModeBusiness = "business"
)

// LifecycleQuery filters the aggregated lifecycle data.
type LifecycleQuery struct {
	From      time.Time
	To        time.Time
	Grouping  string
	HoursMode string
	Statuses  []domain.TicketStatus
}

// LifecyclePoint is one (bucket, status) result row.
type LifecyclePoint struct {
	Bucket               string  `json:"bucket"`
	Status               string  `json:"status"`
	AvgDurationSeconds   float64 `json:"avgDurationSeconds"`
	AvgDurationFormatted string  `json:"avgDurationFormatted"`
	Count                int     `json:"count"`
}

// ClosurePoint is one (bucket, assignee) closure-count row.
type ClosurePoint struct {
	Bucket       string `json:"bucket"`
	AssigneeID   string `json:"assigneeId"`
	AssigneeName string `json:"assigneeName"`
	Count        int    `json:"count"`
}

// ReadMeta describes how a response was served.
type ReadMeta struct {
	CachedAt      time.Time
	IsStale       bool
	ServingCached bool
}

// ReconcileTrigger requests a same-day reconciliation pass. Implemented
// by ReconcileService; kept as an interface so reads can be tested
// without the upstream client.
type ReconcileTrigger interface {
	ReconcileToday(ctx context.Context) error
}

// AnalyticsService serves the aggregated read surface through the
// freshness cache. Stale values are returned immediately with the stale
// flag set while a background refresh recomputes the entry; a read
// never blocks on a refresh.
type AnalyticsService struct {
	aggregates repository.AggregateRepository
	segments   repository.SegmentRepository
	closures   repository.ClosureRepository
	cache      *cache.Freshness
	cacheCfg   config.CacheConfig
	reconcile  ReconcileTrigger
	logger     *zap.Logger
}

// AnalyticsDependencies bundles collaborators for the service.
type AnalyticsDependencies struct {
	AggregateRepo repository.AggregateRepository
	SegmentRepo   repository.SegmentRepository
	ClosureRepo   repository.ClosureRepository
	Cache         *cache.Freshness
	CacheCfg      config.CacheConfig
	Reconcile     ReconcileTrigger
	Logger        *zap.Logger
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(deps AnalyticsDependencies) *AnalyticsService {
	return &AnalyticsService{
		aggregates: deps.AggregateRepo,
		segments:   deps.SegmentRepo,
		closures:   deps.ClosureRepo,
		cache:      deps.Cache,
		cacheCfg:   deps.CacheCfg,
		reconcile:  deps.Reconcile,
		logger:     deps.Logger,
	}
}

// LifecycleData returns average time-in-status per bucket.
func (s *AnalyticsService) LifecycleData(ctx context.Context, query LifecycleQuery) ([]LifecyclePoint, ReadMeta, error) {
	key := lifecycleCacheKey(query)
	compute := func(ctx context.Context) ([]LifecyclePoint, error) {
		return s.computeLifecycle(ctx, query)
	}
	return serveCached(ctx, s, key, compute)
}

// ClosureCounts returns per-assignee closure counts, grouped by day or
// rolled up into ISO weeks. A stale read additionally kicks off a
// same-day reconciliation so the counts themselves freshen, not just
// the cached rendering of them.
func (s *AnalyticsService) ClosureCounts(ctx context.Context, from, to time.Time, grouping string) ([]ClosurePoint, ReadMeta, error) {
	key := fmt.Sprintf("closures:%s:%s:%s",
		from.Format("2006-01-02"), to.Format("2006-01-02"), grouping)
	compute := func(ctx context.Context) ([]ClosurePoint, error) {
		return s.computeClosures(ctx, from, to, grouping)
	}
	points, meta, err := serveCached(ctx, s, key, compute)
	if err == nil && meta.IsStale {
		s.triggerReconcile(ctx)
	}
	return points, meta, err
}

// triggerReconcile starts a background same-day reconciliation pass. A
// pass already running elsewhere is not an error, just a no-op here.
func (s *AnalyticsService) triggerReconcile(ctx context.Context) {
	if s.reconcile == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		reconcileCtx, cancel := context.WithTimeout(bg, 5*time.Minute)
		defer cancel()
		if err := s.reconcile.ReconcileToday(reconcileCtx); err != nil && !errors.Is(err, ErrReconciliationRunning) {
			s.logger.Warn("stale-read reconciliation failed", zap.Error(err))
		}
	}()
}

// DistinctStatuses lists every status observed in the segment table.
func (s *AnalyticsService) DistinctStatuses(ctx context.Context) ([]domain.TicketStatus, error) {
	return s.segments.DistinctStatuses(ctx)
}

// serveCached implements the stale-while-revalidate read path shared by
// the lifecycle and closure queries.
func serveCached[T any](ctx context.Context, s *AnalyticsService, key string, compute func(context.Context) ([]T, error)) ([]T, ReadMeta, error) {
	var cached []T
	meta, err := s.cache.GetWithMeta(ctx, key, &cached)
	if err == nil {
		if meta.IsStale {
			refreshInBackground(ctx, s, key, compute)
		}
		return cached, ReadMeta{CachedAt: meta.CachedAt, IsStale: meta.IsStale, ServingCached: true}, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := compute(ctx)
	if err != nil {
		return nil, ReadMeta{}, err
	}
	now := time.Now().UTC()
	if err := s.cache.SetWithMeta(ctx, key, value, s.cacheCfg.TTL(), s.cacheCfg.StaleAfter()); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, ReadMeta{CachedAt: now, IsStale: false, ServingCached: false}, nil
}

// refreshInBackground recomputes a cache entry without blocking the
// caller. There is no cancellation of in-flight refreshes; a superseded
// result is simply overwritten by a later one.
func refreshInBackground[T any](ctx context.Context, s *AnalyticsService, key string, compute func(context.Context) ([]T, error)) {
	bg := context.WithoutCancel(ctx)
	go func() {
		refreshCtx, cancel := context.WithTimeout(bg, 30*time.Second)
		defer cancel()

		value, err := compute(refreshCtx)
		if err != nil {
			s.logger.Warn("background refresh failed", zap.String("key", key), zap.Error(err))
			return
		}
		if err := s.cache.SetWithMeta(refreshCtx, key, value, s.cacheCfg.TTL(), s.cacheCfg.StaleAfter()); err != nil {
			s.logger.Warn("background refresh write failed", zap.String("key", key), zap.Error(err))
		}
	}()
}

func (s *AnalyticsService) computeLifecycle(ctx context.Context, query LifecycleQuery) ([]LifecyclePoint, error) {
	business := query.HoursMode == HoursModeBusiness

	if query.Grouping == GroupingWeek {
		fromYear, fromWeek := query.From.ISOWeek()
		toYear, toWeek := query.To.ISOWeek()
		rows, err := s.aggregates.ListWeeklyRange(ctx, fromYear, fromWeek, toYear, toWeek, query.Statuses)
		if err != nil {
			return nil, err
		}
		points := make([]LifecyclePoint, 0, len(rows))
		for _, row := range rows {
			avg := row.AvgWallSeconds
			if business {
				avg = row.AvgBusinessSeconds
			}
			points = append(points, LifecyclePoint{
				Bucket:               fmt.Sprintf("%d-W%02d", row.ISOYear, row.ISOWeek),
				Status:               string(row.Status),
				AvgDurationSeconds:   avg,
				AvgDurationFormatted: calendar.FormatDuration(int64(avg)),
				Count:                row.SegmentCount,
			})
		}
		return points, nil
	}

	rows, err := s.aggregates.ListDailyRange(ctx, dateOnly(query.From), dateOnly(query.To), query.Statuses)
	if err != nil {
		return nil, err
	}
	points := make([]LifecyclePoint, 0, len(rows))
	for _, row := range rows {
		avg := row.AvgWallSeconds
		if business {
			avg = row.AvgBusinessSeconds
		}
		points = append(points, LifecyclePoint{
			Bucket:               row.BucketDate.Format("2006-01-02"),
			Status:               string(row.Status),
			AvgDurationSeconds:   avg,
			AvgDurationFormatted: calendar.FormatDuration(int64(avg)),
			Count:                row.SegmentCount,
		})
	}
	return points, nil
}

func (s *AnalyticsService) computeClosures(ctx context.Context, from, to time.Time, grouping string) ([]ClosurePoint, error) {
	rows, err := s.closures.ListRange(ctx, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, err
	}

	if grouping != GroupingWeek {
		points := make([]ClosurePoint, 0, len(rows))
		for _, row := range rows {
			points = append(points, ClosurePoint{
				Bucket:       row.BucketDate.Format("2006-01-02"),
				AssigneeID:   row.AssigneeID,
				AssigneeName: row.AssigneeName,
				Count:        row.Count,
			})
		}
		return points, nil
	}

	// Weekly view sums the daily replacement snapshots per ISO week.
	type weekKey struct {
		bucket   string
		assignee string
	}
	sums := make(map[weekKey]*ClosurePoint)
	for _, row := range rows {
		year, week := row.BucketDate.ISOWeek()
		key := weekKey{fmt.Sprintf("%d-W%02d", year, week), row.AssigneeID}
		point := sums[key]
		if point == nil {
			point = &ClosurePoint{
				Bucket:       key.bucket,
				AssigneeID:   row.AssigneeID,
				AssigneeName: row.AssigneeName,
			}
			sums[key] = point
		}
		point.Count += row.Count
	}

	points := make([]ClosurePoint, 0, len(sums))
	for _, point := range sums {
		points = append(points, *point)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Bucket != points[j].Bucket {
			return points[i].Bucket < points[j].Bucket
		}
		return points[i].AssigneeID < points[j].AssigneeID
	})
	return points, nil
}

func lifecycleCacheKey(query LifecycleQuery) string {
	statuses := make([]string, 0, len(query.Statuses))
	for _, status := range query.Statuses {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	return fmt.Sprintf("lifecycle:%s:%s:%s:%s:%s",
		query.From.Format("2006-01-02"),
		query.To.Format("2006-01-02"),
		query.Grouping,
		query.HoursMode,
		strings.Join(statuses, ","),
	)
}

// dateOnly strips the time-of-day from a civil date, keeping the
// year, month and day as the caller supplied them.
func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
