package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-insights/internal/config"
	"github.com/spec-kit/ticket-insights/internal/observability"
	"github.com/spec-kit/ticket-insights/internal/service"
)

// Scheduler runs the recurring background jobs: the frequent same-day
// closure reconciliation, the hourly lookback reconciliation, and the
// nightly aggregation of the previous day and its ISO week.
type Scheduler struct {
	cron        *cron.Cron
	aggregation *service.AggregationService
	reconcile   *service.ReconcileService
	cfg         config.ReconcilerConfig
	aggCfg      config.AggregationConfig
	loc         *time.Location
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// Dependencies bundles collaborators for the scheduler.
type Dependencies struct {
	Aggregation *service.AggregationService
	Reconcile   *service.ReconcileService
	Reconciler  config.ReconcilerConfig
	AggCfg      config.AggregationConfig
	Location    *time.Location
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// New creates the scheduler. Cron expressions are evaluated in the
// business timezone so "30 0 * * *" means half past local midnight.
func New(deps Dependencies) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithLocation(deps.Location)),
		aggregation: deps.Aggregation,
		reconcile:   deps.Reconcile,
		cfg:         deps.Reconciler,
		aggCfg:      deps.AggCfg,
		loc:         deps.Location,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// Start registers all jobs and begins the cron loop. Blocks until the
// context is cancelled, then waits for running jobs to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.register(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("reconcile_short", s.cfg.ShortSchedule),
		zap.String("reconcile_long", s.cfg.LongSchedule),
		zap.String("aggregation", s.aggCfg.Schedule),
	)

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) register(ctx context.Context) error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{"reconcile_today", s.cfg.ShortSchedule, s.reconcile.ReconcileToday},
		{"reconcile_lookback", s.cfg.LongSchedule, func(ctx context.Context) error {
			return s.reconcile.ReconcileLookback(ctx, s.cfg.LookbackDays)
		}},
		{"aggregate_nightly", s.aggCfg.Schedule, s.aggregateNightly},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.schedule, func() {
			s.runJob(ctx, job.name, job.run)
		})
		if err != nil {
			return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", job.schedule, job.name, err)
		}
	}
	return nil
}

// aggregateNightly recomputes yesterday's daily bucket and the ISO week
// it belongs to. Re-running over an already aggregated bucket replaces
// it, so late events that slipped past midnight are picked up.
func (s *Scheduler) aggregateNightly(ctx context.Context) error {
	yesterday := time.Now().In(s.loc).AddDate(0, 0, -1)
	day := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)

	var errs []error
	if err := s.aggregation.AggregateDaily(ctx, day); err != nil {
		errs = append(errs, err)
	}
	isoYear, isoWeek := yesterday.ISOWeek()
	if err := s.aggregation.AggregateWeekly(ctx, isoYear, isoWeek); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runJob(ctx context.Context, name string, run func(context.Context) error) {
	start := time.Now()
	err := run(ctx)
	duration := time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordJob(name, err == nil, duration)
	}

	switch {
	case errors.Is(err, service.ErrReconciliationRunning):
		s.logger.Debug("job skipped, previous pass still running", zap.String("job", name))
	case err != nil:
		s.logger.Error("job failed", zap.String("job", name), zap.Duration("duration", duration), zap.Error(err))
	default:
		s.logger.Info("job completed", zap.String("job", name), zap.Duration("duration", duration))
	}
}
