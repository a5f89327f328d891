package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-insights/internal/calendar"
	"github.com/spec-kit/ticket-insights/internal/domain"
	"github.com/spec-kit/ticket-insights/internal/repository"
)

// AggregationService computes per-status average durations for daily
// and ISO-week buckets. Each run fully recomputes its bucket, so reruns
// after partial failure or late segment corrections are safe.
type AggregationService struct {
	segments   repository.SegmentRepository
	aggregates repository.AggregateRepository
	cal        calendar.Config
	logger     *zap.Logger
}

// AggregationDependencies bundles collaborators for the service.
type AggregationDependencies struct {
	SegmentRepo   repository.SegmentRepository
	AggregateRepo repository.AggregateRepository
	Calendar      calendar.Config
	Logger        *zap.Logger
}

// NewAggregationService constructs the service.
func NewAggregationService(deps AggregationDependencies) *AggregationService {
	return &AggregationService{
		segments:   deps.SegmentRepo,
		aggregates: deps.AggregateRepo,
		cal:        deps.Calendar,
		logger:     deps.Logger,
	}
}

type statusAccumulator struct {
	wallTotal     int64
	businessTotal int64
	count         int
}

// AggregateDaily recomputes the aggregate rows for one calendar day in
// the business timezone. A day with no qualifying segments ends up with
// no rows at all: absent and zero are distinct states.
func (s *AggregationService) AggregateDaily(ctx context.Context, date time.Time) error {
	// date is a civil date: its year/month/day name the business day
	// regardless of the location it was constructed in.
	year, month, day := date.Date()
	from, to := calendar.DayBounds(year, month, day, s.cal.Location)

	segments, err := s.segments.ListClosedInRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load segments for %04d-%02d-%02d: %w", year, month, day, err)
	}

	bucketDate := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	rows := s.buildDailyRows(bucketDate, segments)

	if err := s.aggregates.ReplaceDaily(ctx, bucketDate, rows); err != nil {
		return fmt.Errorf("replace daily aggregates for %s: %w", bucketDate.Format("2006-01-02"), err)
	}

	s.logger.Info("daily aggregation complete",
		zap.String("bucket", bucketDate.Format("2006-01-02")),
		zap.Int("statuses", len(rows)),
		zap.Int("segments", len(segments)),
	)
	return nil
}

// AggregateWeekly recomputes the aggregate rows for one ISO week.
func (s *AggregationService) AggregateWeekly(ctx context.Context, isoYear, isoWeek int) error {
	from, to := calendar.ISOWeekBounds(isoYear, isoWeek, s.cal.Location)

	segments, err := s.segments.ListClosedInRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load segments for week %d-W%02d: %w", isoYear, isoWeek, err)
	}

	grouped := s.accumulate(segments)
	rows := make([]domain.WeeklyAggregate, 0, len(grouped))
	for _, status := range sortedStatuses(grouped) {
		acc := grouped[status]
		rows = append(rows, domain.WeeklyAggregate{
			ISOYear:            isoYear,
			ISOWeek:            isoWeek,
			Status:             status,
			AvgWallSeconds:     float64(acc.wallTotal) / float64(acc.count),
			AvgBusinessSeconds: float64(acc.businessTotal) / float64(acc.count),
			SegmentCount:       acc.count,
		})
	}

	if err := s.aggregates.ReplaceWeekly(ctx, isoYear, isoWeek, rows); err != nil {
		return fmt.Errorf("replace weekly aggregates for %d-W%02d: %w", isoYear, isoWeek, err)
	}

	s.logger.Info("weekly aggregation complete",
		zap.Int("iso_year", isoYear),
		zap.Int("iso_week", isoWeek),
		zap.Int("statuses", len(rows)),
		zap.Int("segments", len(segments)),
	)
	return nil
}

// AggregateDailyRange recomputes every day in [from, to]. Buckets are
// independent: they run concurrently and one failed day does not stop
// the others.
func (s *AggregationService) AggregateDailyRange(ctx context.Context, from, to time.Time) error {
	days := calendar.DaysBetween(from, to, s.cal.Location)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	errs := make([]error, len(days))
	for i, day := range days {
		i, day := i, day
		g.Go(func() error {
			if err := s.AggregateDaily(ctx, day); err != nil {
				s.logger.Error("daily aggregation failed",
					zap.String("bucket", day.Format("2006-01-02")),
					zap.Error(err),
				)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// AggregateWeeklyRange recomputes every ISO week touched by [from, to].
func (s *AggregationService) AggregateWeeklyRange(ctx context.Context, from, to time.Time) error {
	type week struct{ year, number int }
	var weeks []week
	seen := map[week]bool{}
	for _, day := range calendar.DaysBetween(from, to, s.cal.Location) {
		year, number := day.ISOWeek()
		w := week{year, number}
		if !seen[w] {
			seen[w] = true
			weeks = append(weeks, w)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	errs := make([]error, len(weeks))
	for i, w := range weeks {
		i, w := i, w
		g.Go(func() error {
			if err := s.AggregateWeekly(ctx, w.year, w.number); err != nil {
				s.logger.Error("weekly aggregation failed",
					zap.Int("iso_year", w.year),
					zap.Int("iso_week", w.number),
					zap.Error(err),
				)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *AggregationService) buildDailyRows(bucketDate time.Time, segments []domain.StatusSegment) []domain.DailyAggregate {
	grouped := s.accumulate(segments)
	rows := make([]domain.DailyAggregate, 0, len(grouped))
	for _, status := range sortedStatuses(grouped) {
		acc := grouped[status]
		rows = append(rows, domain.DailyAggregate{
			BucketDate:         bucketDate,
			Status:             status,
			AvgWallSeconds:     float64(acc.wallTotal) / float64(acc.count),
			AvgBusinessSeconds: float64(acc.businessTotal) / float64(acc.count),
			SegmentCount:       acc.count,
		})
	}
	return rows
}

// accumulate groups closed segments by status, dropping segments with
// non-positive wall duration as data errors.
func (s *AggregationService) accumulate(segments []domain.StatusSegment) map[domain.TicketStatus]*statusAccumulator {
	grouped := make(map[domain.TicketStatus]*statusAccumulator)
	for _, segment := range segments {
		if segment.LeftAt == nil {
			continue
		}
		wall := calendar.WallSeconds(segment.EnteredAt, *segment.LeftAt)
		if wall <= 0 {
			continue
		}
		business := calendar.BusinessSeconds(segment.EnteredAt, *segment.LeftAt, s.cal)

		acc := grouped[segment.Status]
		if acc == nil {
			acc = &statusAccumulator{}
			grouped[segment.Status] = acc
		}
		acc.wallTotal += wall
		acc.businessTotal += business
		acc.count++
	}
	return grouped
}

func sortedStatuses(grouped map[domain.TicketStatus]*statusAccumulator) []domain.TicketStatus {
	statuses := make([]domain.TicketStatus, 0, len(grouped))
	for status := range grouped {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	return statuses
}
