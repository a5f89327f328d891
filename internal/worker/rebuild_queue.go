package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// RebuildFunc rebuilds the segment set for one ticket.
type RebuildFunc func(ctx context.Context, ticketID string) error

// RebuildQueue serializes segment rebuilds per ticket. Rebuilds for
// different tickets run concurrently up to the configured limit, but a
// second request for a ticket already being rebuilt is coalesced into a
// single follow-up run instead of racing the one in flight.
type RebuildQueue struct {
	rebuild RebuildFunc
	logger  *zap.Logger
	sem     chan struct{}

	mu       sync.Mutex
	inflight map[string]bool
	pending  map[string]bool
	closed   bool
	wg       sync.WaitGroup
}

// NewRebuildQueue creates a queue running at most concurrency rebuilds
// at a time.
func NewRebuildQueue(rebuild RebuildFunc, concurrency int, logger *zap.Logger) *RebuildQueue {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &RebuildQueue{
		rebuild:  rebuild,
		logger:   logger,
		sem:      make(chan struct{}, concurrency),
		inflight: make(map[string]bool),
		pending:  make(map[string]bool),
	}
}

// Enqueue schedules a rebuild for the ticket. The rebuild runs detached
// from the caller's context so an ingestion request returning early does
// not cancel it.
func (q *RebuildQueue) Enqueue(ctx context.Context, ticketID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	if q.inflight[ticketID] {
		q.pending[ticketID] = true
		return
	}
	q.inflight[ticketID] = true
	q.wg.Add(1)
	go q.run(context.WithoutCancel(ctx), ticketID)
}

func (q *RebuildQueue) run(ctx context.Context, ticketID string) {
	defer q.wg.Done()

	q.sem <- struct{}{}
	err := q.rebuild(ctx, ticketID)
	<-q.sem

	if err != nil {
		// Rebuild is a pure function of stored events; the next event
		// for this ticket retries it.
		q.logger.Error("segment rebuild failed",
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
	}

	q.mu.Lock()
	// Pending work was accepted before any Drain, so it still runs;
	// Drain only stops new Enqueue calls.
	if q.pending[ticketID] {
		delete(q.pending, ticketID)
		q.wg.Add(1)
		go q.run(ctx, ticketID)
	} else {
		delete(q.inflight, ticketID)
	}
	q.mu.Unlock()
}

// Drain stops accepting work and waits for in-flight rebuilds,
// including coalesced follow-up runs already accepted.
func (q *RebuildQueue) Drain() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
