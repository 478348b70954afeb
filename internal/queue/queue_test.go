package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func market(id string, liquidity float64) domain.Market {
	return domain.Market{ID: id, Question: "q", Liquidity: liquidity}
}

// runQueue starts the queue and returns a stop function that waits for
// shutdown.
func runQueue(t *testing.T, q *Queue) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("queue did not shut down")
		}
	}
}

func TestEnqueueIdempotent(t *testing.T) {
	q := New(Config{Workers: 1}, func(context.Context, domain.QueueEntry) error {
		return nil
	}, nil, nil, discard())

	if !q.Enqueue(market("m1", 100), domain.TaskKindValidate) {
		t.Fatal("first enqueue should succeed")
	}
	if q.Enqueue(market("m1", 100), domain.TaskKindValidate) {
		t.Fatal("second enqueue of a pending market must be a no-op")
	}
	if q.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", q.Depth())
	}
}

func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	started := make(chan struct{}, 8)

	q := New(Config{Workers: 1}, func(_ context.Context, e domain.QueueEntry) error {
		mu.Lock()
		order = append(order, e.Market.ID)
		mu.Unlock()
		started <- struct{}{}
		return nil
	}, nil, nil, discard())

	// Enqueue before starting workers so ordering is deterministic.
	q.Enqueue(market("low", 50), domain.TaskKindValidate)
	q.Enqueue(market("high", 2_000_000), domain.TaskKindValidate)
	q.Enqueue(market("mid", 60_000), domain.TaskKindValidate)

	stop := runQueue(t, q)
	defer stop()

	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for queue")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high", "mid", "low"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRetryThenSucceed(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	q := New(Config{Workers: 1, RetryLimit: 3, RetryBackoff: time.Millisecond},
		func(_ context.Context, e domain.QueueEntry) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		}, func(_ context.Context, l domain.DeadLetter) {
			t.Errorf("unexpected dead letter: %+v", l)
		}, nil, discard())

	q.Enqueue(market("m1", 100), domain.TaskKindResolve)
	stop := runQueue(t, q)
	defer stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("entry never succeeded")
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustionDeadLetters(t *testing.T) {
	letters := make(chan domain.DeadLetter, 8)

	q := New(Config{Workers: 1, RetryLimit: 3, RetryBackoff: time.Millisecond},
		func(context.Context, domain.QueueEntry) error {
			return errors.New("permanent failure")
		}, func(_ context.Context, l domain.DeadLetter) {
			letters <- l
		}, nil, discard())

	q.Enqueue(market("m1", 100), domain.TaskKindResolve)
	stop := runQueue(t, q)
	defer stop()

	select {
	case l := <-letters:
		if l.MarketID != "m1" || l.Retries != 3 || l.LastError != "permanent failure" {
			t.Fatalf("dead letter = %+v", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no dead letter produced")
	}

	// The market becomes processable again once the entry fully drains.
	deadline := time.After(2 * time.Second)
	for !q.Enqueue(market("m1", 100), domain.TaskKindResolve) {
		select {
		case <-deadline:
			t.Fatal("market should be enqueueable after dead-letter")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAtMostOneInFlight(t *testing.T) {
	block := make(chan struct{})
	running := make(chan struct{})

	q := New(Config{Workers: 2}, func(_ context.Context, e domain.QueueEntry) error {
		running <- struct{}{}
		<-block
		return nil
	}, nil, nil, discard())

	q.Enqueue(market("m1", 100), domain.TaskKindValidate)
	stop := runQueue(t, q)
	defer stop()

	select {
	case <-running:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	// The market is in flight: a second enqueue must be rejected even though
	// it is no longer in the pending heap.
	if q.Enqueue(market("m1", 100), domain.TaskKindValidate) {
		t.Fatal("enqueue of in-flight market must be a no-op")
	}
	if q.InFlight() != 1 {
		t.Fatalf("in flight = %d, want 1", q.InFlight())
	}
	close(block)
}
