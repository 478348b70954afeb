// Package queue implements the priority work queue feeding the validation
// and resolution pipelines: liquidity-ranked ordering, at-most-one entry per
// market, bounded worker concurrency, and retry-with-backoff that converts
// exhausted entries into dead letters.
package queue

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verdictd/verdictd/internal/domain"
)

// Handler executes one queue entry. A nil return removes the entry; an error
// schedules a retry until the limit is reached.
type Handler func(ctx context.Context, entry domain.QueueEntry) error

// DeadLetterFunc is invoked exactly once per entry that exhausts its
// retries, after the entry has left the queue.
type DeadLetterFunc func(ctx context.Context, letter domain.DeadLetter)

// Config tunes the queue.
type Config struct {
	Workers    int
	RetryLimit int
	// RetryBackoff is the base delay; attempt n waits n times this.
	RetryBackoff time.Duration
	// RateLimit and RateWindow bound pipeline starts across replicas via the
	// shared limiter. Zero disables the cap.
	RateLimit  int
	RateWindow time.Duration
}

// Queue is the priority work queue. Entries are keyed by market ID: a market
// already pending or in flight cannot be enqueued again.
type Queue struct {
	cfg     Config
	handler Handler
	onDead  DeadLetterFunc
	limiter domain.RateLimiter
	log     *slog.Logger

	mu       sync.Mutex
	heap     entryHeap
	pending  map[string]bool // market id -> waiting in heap
	inflight map[string]bool // market id -> handler running or backing off
	wake     chan struct{}
	closed   bool
}

func New(cfg Config, handler Handler, onDead DeadLetterFunc, limiter domain.RateLimiter, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	return &Queue{
		cfg:      cfg,
		handler:  handler,
		onDead:   onDead,
		limiter:  limiter,
		log:      logger.With("component", "queue"),
		pending:  make(map[string]bool),
		inflight: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue adds a market to the queue. Enqueueing a market that is already
// pending or in flight is a no-op and returns false.
func (q *Queue) Enqueue(market domain.Market, kind domain.TaskKind) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.pending[market.ID] || q.inflight[market.ID] {
		return false
	}

	entry := domain.QueueEntry{
		Market:     market,
		Kind:       kind,
		Priority:   domain.PriorityFor(market.Liquidity),
		EnqueuedAt: time.Now().UTC(),
	}
	heap.Push(&q.heap, entry)
	q.pending[market.ID] = true

	q.log.Debug("enqueued market",
		"market_id", market.ID, "kind", string(kind), "priority", entry.Priority)
	q.notify()
	return true
}

// Depth returns how many entries are waiting (not counting in-flight work).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// InFlight returns how many markets are currently being processed.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Run processes entries with the configured worker pool until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			return q.worker(ctx)
		})
	}
	err := g.Wait()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return err
}

func (q *Queue) worker(ctx context.Context) error {
	for {
		entry, ok := q.take()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}

		if err := q.throttle(ctx); err != nil {
			// Shutdown while waiting for a rate slot: put the entry back so
			// a later poll can pick the market up again.
			q.release(entry.Market.ID)
			return err
		}

		q.process(ctx, entry)
	}
}

// take pops the highest-priority entry and marks its market in flight.
func (q *Queue) take() (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return domain.QueueEntry{}, false
	}
	entry := heap.Pop(&q.heap).(domain.QueueEntry)
	delete(q.pending, entry.Market.ID)
	q.inflight[entry.Market.ID] = true
	if q.heap.Len() > 0 {
		// Wake another idle worker; the wake channel holds one signal.
		q.notify()
	}
	return entry, true
}

func (q *Queue) release(marketID string) {
	q.mu.Lock()
	delete(q.inflight, marketID)
	q.mu.Unlock()
}

// throttle blocks until the shared rate limiter grants a pipeline slot.
func (q *Queue) throttle(ctx context.Context) error {
	if q.limiter == nil || q.cfg.RateLimit <= 0 {
		return nil
	}
	for {
		ok, err := q.limiter.Allow(ctx, "queue:pipeline", q.cfg.RateLimit, q.cfg.RateWindow)
		if err != nil {
			// A broken limiter must not halt the oracle; log and proceed.
			q.log.Warn("rate limiter unavailable", "error", err)
			return nil
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// process runs the handler with retry-with-backoff. The market stays marked
// in flight across backoff sleeps, so re-enqueues remain no-ops until the
// entry fully succeeds or dead-letters.
func (q *Queue) process(ctx context.Context, entry domain.QueueEntry) {
	defer q.release(entry.Market.ID)

	var lastErr error
	for attempt := 0; attempt <= q.cfg.RetryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * q.cfg.RetryBackoff):
			}
		}

		entry.Retries = attempt
		lastErr = q.handler(ctx, entry)
		if lastErr == nil {
			return
		}
		q.log.Warn("queue entry failed",
			"market_id", entry.Market.ID,
			"kind", string(entry.Kind),
			"attempt", attempt,
			"error", lastErr)

		if ctx.Err() != nil {
			return
		}
	}

	letter := domain.DeadLetter{
		MarketID:  entry.Market.ID,
		Kind:      entry.Kind,
		Retries:   entry.Retries,
		LastError: lastErr.Error(),
		At:        time.Now().UTC(),
	}
	q.log.Error("queue entry dead-lettered",
		"market_id", letter.MarketID, "kind", string(letter.Kind), "error", letter.LastError)
	if q.onDead != nil {
		q.onDead(ctx, letter)
	}
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// entryHeap orders by priority descending, then enqueue time ascending.
type entryHeap []domain.QueueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(domain.QueueEntry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
