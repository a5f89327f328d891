package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-insights/internal/calendar"
	"github.com/spec-kit/ticket-insights/internal/domain"
)

func newAggregationFixture() (*AggregationService, *fakeSegmentRepo, *fakeAggregateRepo) {
	segmentRepo := newFakeSegmentRepo()
	aggregateRepo := newFakeAggregateRepo()
	svc := NewAggregationService(AggregationDependencies{
		SegmentRepo:   segmentRepo,
		AggregateRepo: aggregateRepo,
		Calendar: calendar.Config{
			Location:     time.UTC,
			BusinessDays: calendar.DefaultBusinessDays(),
			StartHour:    9,
			EndHour:      17,
		},
		Logger: zap.NewNop(),
	})
	return svc, segmentRepo, aggregateRepo
}

func closedSegment(ticketID string, status domain.TicketStatus, enteredAt time.Time, duration time.Duration) *domain.StatusSegment {
	leftAt := enteredAt.Add(duration)
	return &domain.StatusSegment{
		ID:        ticketID + "-" + string(status),
		TicketID:  ticketID,
		Status:    status,
		EnteredAt: enteredAt,
		LeftAt:    &leftAt,
	}
}

func TestAggregateDaily_GroupsByStatus(t *testing.T) {
	svc, segmentRepo, aggregateRepo := newAggregationFixture()
	ctx := context.Background()
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	// Two OPEN segments ending on the day (1h, 3h) and one IN_PROGRESS (2h).
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-1", domain.TicketStatusOpen, day.Add(8*time.Hour), time.Hour)))
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-2", domain.TicketStatusOpen, day.Add(9*time.Hour), 3*time.Hour)))
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-3", domain.TicketStatusInProgress, day.Add(10*time.Hour), 2*time.Hour)))

	require.NoError(t, svc.AggregateDaily(ctx, day))

	rows := aggregateRepo.daily["2025-09-01"]
	require.Len(t, rows, 2)

	assert.Equal(t, domain.TicketStatusInProgress, rows[0].Status)
	assert.Equal(t, float64(2*3600), rows[0].AvgWallSeconds)
	assert.Equal(t, 1, rows[0].SegmentCount)

	assert.Equal(t, domain.TicketStatusOpen, rows[1].Status)
	assert.Equal(t, float64(2*3600), rows[1].AvgWallSeconds, "mean of 1h and 3h")
	assert.Equal(t, 2, rows[1].SegmentCount)
}

func TestAggregateDaily_BusinessVsWallAverages(t *testing.T) {
	svc, segmentRepo, aggregateRepo := newAggregationFixture()
	ctx := context.Background()
	// Friday 2025-09-05. Segment runs Friday 16:00 into Saturday 16:00,
	// closing Saturday: only 1h of Friday business time counts.
	friday := time.Date(2025, 9, 5, 16, 0, 0, 0, time.UTC)
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-1", domain.TicketStatusInProgress, friday, 24*time.Hour)))

	saturday := time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.AggregateDaily(ctx, saturday))

	rows := aggregateRepo.daily["2025-09-06"]
	require.Len(t, rows, 1)
	assert.Equal(t, float64(24*3600), rows[0].AvgWallSeconds)
	assert.Equal(t, float64(3600), rows[0].AvgBusinessSeconds)
}

func TestAggregateDaily_RerunYieldsIdenticalRows(t *testing.T) {
	svc, segmentRepo, aggregateRepo := newAggregationFixture()
	ctx := context.Background()
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-1", domain.TicketStatusOpen, day.Add(8*time.Hour), 90*time.Minute)))

	require.NoError(t, svc.AggregateDaily(ctx, day))
	first := aggregateRepo.daily["2025-09-01"]

	require.NoError(t, svc.AggregateDaily(ctx, day))
	second := aggregateRepo.daily["2025-09-01"]

	assert.Equal(t, first, second)
	assert.Equal(t, 2, aggregateRepo.replaces)
}

func TestAggregateDaily_EmptyBucketProducesNoRows(t *testing.T) {
	svc, _, aggregateRepo := newAggregationFixture()
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.AggregateDaily(context.Background(), day))

	assert.Empty(t, aggregateRepo.daily["2025-09-01"])
}

func TestAggregateDaily_RerunClearsStaleRows(t *testing.T) {
	svc, segmentRepo, aggregateRepo := newAggregationFixture()
	ctx := context.Background()
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	segment := closedSegment("t-1", domain.TicketStatusOpen, day.Add(8*time.Hour), time.Hour)
	require.NoError(t, segmentRepo.Upsert(ctx, segment))
	require.NoError(t, svc.AggregateDaily(ctx, day))
	require.Len(t, aggregateRepo.daily["2025-09-01"], 1)

	// The segment's close moves out of the bucket (late correction);
	// the rerun must drop the now-unsupported row.
	moved := *segment
	nextDay := day.Add(26 * time.Hour)
	moved.LeftAt = &nextDay
	require.NoError(t, segmentRepo.Upsert(ctx, &moved))

	require.NoError(t, svc.AggregateDaily(ctx, day))
	assert.Empty(t, aggregateRepo.daily["2025-09-01"])
}

func TestAggregateDaily_DiscardsNonPositiveDurations(t *testing.T) {
	svc, segmentRepo, aggregateRepo := newAggregationFixture()
	ctx := context.Background()
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	// Zero-length segment: a data error, excluded from averages.
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-1", domain.TicketStatusOpen, day.Add(8*time.Hour), 0)))
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-2", domain.TicketStatusOpen, day.Add(9*time.Hour), time.Hour)))

	require.NoError(t, svc.AggregateDaily(ctx, day))

	rows := aggregateRepo.daily["2025-09-01"]
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].SegmentCount)
	assert.Equal(t, float64(3600), rows[0].AvgWallSeconds)
}

func TestAggregateDaily_OpenSegmentsExcluded(t *testing.T) {
	svc, segmentRepo, aggregateRepo := newAggregationFixture()
	ctx := context.Background()
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, segmentRepo.Upsert(ctx, &domain.StatusSegment{
		ID:        "open-1",
		TicketID:  "t-1",
		Status:    domain.TicketStatusOpen,
		EnteredAt: day.Add(8 * time.Hour),
	}))

	require.NoError(t, svc.AggregateDaily(ctx, day))

	assert.Empty(t, aggregateRepo.daily["2025-09-01"])
}

func TestAggregateDaily_WestOfUTCBusinessTimezone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	segmentRepo := newFakeSegmentRepo()
	aggregateRepo := newFakeAggregateRepo()
	svc := NewAggregationService(AggregationDependencies{
		SegmentRepo:   segmentRepo,
		AggregateRepo: aggregateRepo,
		Calendar: calendar.Config{
			Location:     chicago,
			BusinessDays: calendar.DefaultBusinessDays(),
			StartHour:    9,
			EndHour:      17,
		},
		Logger: zap.NewNop(),
	})
	ctx := context.Background()

	// Closes 2025-09-02 15:00 in Chicago (20:00 UTC).
	enteredAt := time.Date(2025, 9, 2, 19, 0, 0, 0, time.UTC)
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-1", domain.TicketStatusOpen, enteredAt, time.Hour)))

	// The requested day arrives as a plain calendar date; it must select
	// the Chicago business day, not shift to the previous one.
	civilDay := time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.AggregateDaily(ctx, civilDay))

	rows := aggregateRepo.daily["2025-09-02"]
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].SegmentCount)
	assert.Empty(t, aggregateRepo.daily["2025-09-01"])
}

func TestAggregateWeekly(t *testing.T) {
	svc, segmentRepo, aggregateRepo := newAggregationFixture()
	ctx := context.Background()
	// ISO week 36 of 2025: Monday 2025-09-01 .. Sunday 2025-09-07.
	monday := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-1", domain.TicketStatusOpen, monday.Add(9*time.Hour), time.Hour)))
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-2", domain.TicketStatusOpen, monday.AddDate(0, 0, 4).Add(9*time.Hour), 3*time.Hour)))
	// Closes the following Monday: outside the week.
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-3", domain.TicketStatusOpen, monday.AddDate(0, 0, 7).Add(9*time.Hour), time.Hour)))

	require.NoError(t, svc.AggregateWeekly(ctx, 2025, 36))

	rows := aggregateRepo.weekly["2025-W36"]
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].SegmentCount)
	assert.Equal(t, float64(2*3600), rows[0].AvgWallSeconds)
}

func TestAggregateDailyRange_ComputesEachBucket(t *testing.T) {
	svc, segmentRepo, aggregateRepo := newAggregationFixture()
	ctx := context.Background()
	from := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-1", domain.TicketStatusOpen, from.Add(8*time.Hour), time.Hour)))
	require.NoError(t, segmentRepo.Upsert(ctx, closedSegment("t-2", domain.TicketStatusOpen, to.Add(8*time.Hour), time.Hour)))

	require.NoError(t, svc.AggregateDailyRange(ctx, from, to))

	assert.Len(t, aggregateRepo.daily["2025-09-01"], 1)
	assert.Empty(t, aggregateRepo.daily["2025-09-02"])
	assert.Len(t, aggregateRepo.daily["2025-09-03"], 1)
}
