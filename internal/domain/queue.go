package domain

import "time"

// TaskKind selects which pipeline a queue entry runs through.
type TaskKind string

const (
	TaskKindValidate TaskKind = "validate"
	TaskKindResolve  TaskKind = "resolve"
)

// QueueEntry wraps a market awaiting pipeline work. Entries exist only while
// pending or in flight; success removes them, retry exhaustion converts them
// to a DeadLetter.
type QueueEntry struct {
	Market     Market
	Kind       TaskKind
	Priority   int // 1 (lowest) to 10 (highest), derived from liquidity
	Retries    int
	EnqueuedAt time.Time
}

// DeadLetter records a queue entry that exhausted its retries. Dead letters
// are surfaced to humans (market status, event log, notification); they are
// never silently discarded.
type DeadLetter struct {
	MarketID  string
	Kind      TaskKind
	Retries   int
	LastError string
	At        time.Time
}

// PriorityFor maps a liquidity amount (USD) to a queue priority tier.
// Higher stake means more capital is exposed to a slow or wrong decision,
// so those markets go first. Ties break FIFO by enqueue time.
func PriorityFor(liquidity float64) int {
	switch {
	case liquidity >= 1_000_000:
		return 10
	case liquidity >= 500_000:
		return 9
	case liquidity >= 250_000:
		return 8
	case liquidity >= 100_000:
		return 7
	case liquidity >= 50_000:
		return 6
	case liquidity >= 10_000:
		return 5
	case liquidity >= 5_000:
		return 4
	case liquidity >= 1_000:
		return 3
	case liquidity >= 100:
		return 2
	default:
		return 1
	}
}
