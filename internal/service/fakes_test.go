package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-insights/internal/domain"
)

// fakeEventRepo is an in-memory EventRepository honoring the
// idempotency-key uniqueness of the real table.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []domain.StatusEvent
	seq    int64
}

func (f *fakeEventRepo) Append(ctx context.Context, event *domain.StatusEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.events {
		if existing.IdempotencyKey == event.IdempotencyKey {
			return false, nil
		}
	}
	f.seq++
	event.Seq = f.seq
	f.events = append(f.events, *event)
	return true, nil
}

func (f *fakeEventRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.StatusEvent
	for _, event := range f.events {
		if event.TicketID == ticketID {
			result = append(result, event)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].OccurredAt.Before(result[j].OccurredAt)
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// fakeSegmentRepo is an in-memory SegmentRepository keyed like the real
// table on (ticket_id, status, entered_at).
type fakeSegmentRepo struct {
	mu       sync.Mutex
	segments map[string]domain.StatusSegment
}

func newFakeSegmentRepo() *fakeSegmentRepo {
	return &fakeSegmentRepo{segments: make(map[string]domain.StatusSegment)}
}

func segmentKey(ticketID string, status domain.TicketStatus, enteredAt time.Time) string {
	return fmt.Sprintf("%s|%s|%d", ticketID, status, enteredAt.UnixNano())
}

func (f *fakeSegmentRepo) CloseOpen(ctx context.Context, ticketID string, leftAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, segment := range f.segments {
		if segment.TicketID == ticketID && segment.LeftAt == nil {
			closed := leftAt
			segment.LeftAt = &closed
			f.segments[key] = segment
		}
	}
	return nil
}

func (f *fakeSegmentRepo) Upsert(ctx context.Context, segment *domain.StatusSegment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := segmentKey(segment.TicketID, segment.Status, segment.EnteredAt)
	if existing, ok := f.segments[key]; ok {
		existing.LeftAt = segment.LeftAt
		f.segments[key] = existing
		segment.ID = existing.ID
		return nil
	}
	f.segments[key] = *segment
	return nil
}

func (f *fakeSegmentRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.StatusSegment
	for _, segment := range f.segments {
		if segment.TicketID == ticketID {
			result = append(result, segment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EnteredAt.Before(result[j].EnteredAt) })
	return result, nil
}

func (f *fakeSegmentRepo) ListClosedInRange(ctx context.Context, from, to time.Time) ([]domain.StatusSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.StatusSegment
	for _, segment := range f.segments {
		if segment.LeftAt == nil {
			continue
		}
		if !segment.LeftAt.Before(from) && segment.LeftAt.Before(to) {
			result = append(result, segment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LeftAt.Before(*result[j].LeftAt) })
	return result, nil
}

func (f *fakeSegmentRepo) DistinctStatuses(ctx context.Context) ([]domain.TicketStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[domain.TicketStatus]bool{}
	var result []domain.TicketStatus
	for _, segment := range f.segments {
		if !seen[segment.Status] {
			seen[segment.Status] = true
			result = append(result, segment.Status)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// fakeAggregateRepo records Replace calls per bucket.
type fakeAggregateRepo struct {
	mu       sync.Mutex
	daily    map[string][]domain.DailyAggregate
	weekly   map[string][]domain.WeeklyAggregate
	replaces int
}

func newFakeAggregateRepo() *fakeAggregateRepo {
	return &fakeAggregateRepo{
		daily:  make(map[string][]domain.DailyAggregate),
		weekly: make(map[string][]domain.WeeklyAggregate),
	}
}

func (f *fakeAggregateRepo) ReplaceDaily(ctx context.Context, bucketDate time.Time, rows []domain.DailyAggregate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	f.daily[bucketDate.Format("2006-01-02")] = append([]domain.DailyAggregate{}, rows...)
	return nil
}

func (f *fakeAggregateRepo) ReplaceWeekly(ctx context.Context, isoYear, isoWeek int, rows []domain.WeeklyAggregate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	f.weekly[fmt.Sprintf("%d-W%02d", isoYear, isoWeek)] = append([]domain.WeeklyAggregate{}, rows...)
	return nil
}

func (f *fakeAggregateRepo) ListDailyRange(ctx context.Context, from, to time.Time, statuses []domain.TicketStatus) ([]domain.DailyAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.DailyAggregate
	for _, rows := range f.daily {
		for _, row := range rows {
			if row.BucketDate.Before(from) || row.BucketDate.After(to) {
				continue
			}
			if len(statuses) > 0 && !containsStatus(statuses, row.Status) {
				continue
			}
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].BucketDate.Equal(result[j].BucketDate) {
			return result[i].BucketDate.Before(result[j].BucketDate)
		}
		return result[i].Status < result[j].Status
	})
	return result, nil
}

func (f *fakeAggregateRepo) ListWeeklyRange(ctx context.Context, fromYear, fromWeek, toYear, toWeek int, statuses []domain.TicketStatus) ([]domain.WeeklyAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lo := fromYear*100 + fromWeek
	hi := toYear*100 + toWeek
	var result []domain.WeeklyAggregate
	for _, rows := range f.weekly {
		for _, row := range rows {
			ord := row.ISOYear*100 + row.ISOWeek
			if ord < lo || ord > hi {
				continue
			}
			if len(statuses) > 0 && !containsStatus(statuses, row.Status) {
				continue
			}
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ISOYear*100+result[i].ISOWeek < result[j].ISOYear*100+result[j].ISOWeek
	})
	return result, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// fakeClosureRepo records every upsert so tests can assert write
// behavior, not just the final state.
type fakeClosureRepo struct {
	mu      sync.Mutex
	rows    map[string]domain.ClosureCount
	upserts []domain.ClosureCount
}

func newFakeClosureRepo() *fakeClosureRepo {
	return &fakeClosureRepo{rows: make(map[string]domain.ClosureCount)}
}

func closureKey(bucketDate time.Time, assigneeID string) string {
	return bucketDate.Format("2006-01-02") + "|" + assigneeID
}

func (f *fakeClosureRepo) ListByDate(ctx context.Context, bucketDate time.Time) ([]domain.ClosureCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.ClosureCount
	for _, row := range f.rows {
		if row.BucketDate.Equal(bucketDate) {
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AssigneeID < result[j].AssigneeID })
	return result, nil
}

func (f *fakeClosureRepo) ListRange(ctx context.Context, from, to time.Time) ([]domain.ClosureCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.ClosureCount
	for _, row := range f.rows {
		if row.BucketDate.Before(from) || row.BucketDate.After(to) {
			continue
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].BucketDate.Equal(result[j].BucketDate) {
			return result[i].BucketDate.Before(result[j].BucketDate)
		}
		return result[i].AssigneeID < result[j].AssigneeID
	})
	return result, nil
}

func (f *fakeClosureRepo) Upsert(ctx context.Context, count domain.ClosureCount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[closureKey(count.BucketDate, count.AssigneeID)] = count
	f.upserts = append(f.upserts, count)
	return nil
}

func (f *fakeClosureRepo) get(bucketDate time.Time, assigneeID string) (domain.ClosureCount, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[closureKey(bucketDate, assigneeID)]
	return row, ok
}

func (f *fakeClosureRepo) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

// stubUpstream answers upstream calls from canned functions.
type stubUpstream struct {
	usersFn  func(ctx context.Context) ([]domain.Assignee, error)
	closedFn func(ctx context.Context, from, to time.Time) ([]domain.ClosedTicket, error)
}

func (s *stubUpstream) ListClosedTickets(ctx context.Context, from, to time.Time) ([]domain.ClosedTicket, error) {
	return s.closedFn(ctx, from, to)
}

func (s *stubUpstream) ListUsers(ctx context.Context) ([]domain.Assignee, error) {
	if s.usersFn == nil {
		return nil, nil
	}
	return s.usersFn(ctx)
}

// stubGuard is a RunGuard with a controllable lock state.
type stubGuard struct {
	mu   sync.Mutex
	held bool
}

func (g *stubGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil, false, nil
	}
	g.held = true
	return func() {
		g.mu.Lock()
		g.held = false
		g.mu.Unlock()
	}, true, nil
}
