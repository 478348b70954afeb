package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
	"github.com/verdictd/verdictd/internal/metrics"
	"github.com/verdictd/verdictd/internal/queue"
)

// HeartbeatLoop is the monitor's long-running side, driven alongside the
// queue.
type HeartbeatLoop interface {
	Reload(ctx context.Context) error
	Run(ctx context.Context) error
	Tracked() int
}

// OrchestratorConfig tunes the polling loop.
type OrchestratorConfig struct {
	PollInterval time.Duration
	// PollBatch caps how many markets one poll picks up per status.
	PollBatch int
}

// Orchestrator ties the oracle together: it polls for markets needing work,
// feeds the priority queue, dispatches entries to the right pipeline, and
// runs the heartbeat monitor.
type Orchestrator struct {
	cfg       OrchestratorConfig
	store     domain.Store
	queue     *queue.Queue
	validator *Validator
	resolver  *Resolver
	monitor   HeartbeatLoop
	locks     domain.LockManager // optional, for multi-replica deployments
	emitter   *events.Emitter
	metrics   *metrics.Recorder
	log       *slog.Logger
}

// OrchestratorDeps collects the orchestrator's collaborators. Locks may be
// nil on single-replica deployments.
type OrchestratorDeps struct {
	Store     domain.Store
	Validator *Validator
	Resolver  *Resolver
	Monitor   HeartbeatLoop
	Locks     domain.LockManager
	Limiter   domain.RateLimiter
	Emitter   *events.Emitter
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig, queueCfg queue.Config, deps OrchestratorDeps) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.PollBatch <= 0 {
		cfg.PollBatch = 100
	}

	o := &Orchestrator{
		cfg:       cfg,
		store:     deps.Store,
		validator: deps.Validator,
		resolver:  deps.Resolver,
		monitor:   deps.Monitor,
		locks:     deps.Locks,
		emitter:   deps.Emitter,
		metrics:   deps.Metrics,
		log:       deps.Logger.With("component", "orchestrator"),
	}
	o.queue = queue.New(queueCfg, o.handle, o.deadLetter, deps.Limiter, deps.Logger)
	return o
}

// Run starts the poll loop, the worker pool, and the heartbeat monitor, and
// blocks until ctx is done or a loop fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.monitor.Reload(ctx); err != nil {
		return fmt.Errorf("pipeline: resume heartbeats: %w", err)
	}

	o.log.Info("orchestrator starting", "poll_interval", o.cfg.PollInterval)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.pollLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("poll loop: %w", err)
	})

	g.Go(func() error {
		err := o.queue.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("work queue: %w", err)
	})

	g.Go(func() error {
		err := o.monitor.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("heartbeat monitor: %w", err)
	})

	if err := g.Wait(); err != nil {
		o.log.Error("orchestrator stopped with error", "error", err)
		return err
	}
	o.log.Info("orchestrator stopped cleanly")
	return nil
}

// Submit registers a newly created market and queues it for validation.
// Called by the webhook handler and the admin requeue path.
func (o *Orchestrator) Submit(ctx context.Context, market domain.Market) error {
	if market.Status == "" {
		market.Status = domain.StatusPendingValidation
	}
	if err := o.store.Markets().Upsert(ctx, market); err != nil {
		return fmt.Errorf("pipeline: submit market %s: %w", market.ID, err)
	}
	o.emitter.Emit(ctx, domain.EventMarketCreated, market.ID, map[string]any{
		"question": market.Question,
		"category": string(market.Category),
	})
	o.queue.Enqueue(market, domain.TaskKindValidate)
	return nil
}

// Requeue puts an existing market back on the queue, picking the task from
// its expiry. Used by the admin surface for review markets.
func (o *Orchestrator) Requeue(ctx context.Context, marketID string) error {
	market, err := o.store.Markets().GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("pipeline: requeue %s: %w", marketID, err)
	}

	kind := domain.TaskKindValidate
	status := domain.StatusPendingValidation
	if market.Expired(time.Now().UTC()) {
		kind = domain.TaskKindResolve
		status = domain.StatusPendingResolution
	}
	if err := o.store.Markets().UpdateStatus(ctx, marketID, status); err != nil {
		return fmt.Errorf("pipeline: requeue %s: %w", marketID, err)
	}
	market.Status = status

	o.queue.Enqueue(market, kind)
	return nil
}

// QueueStats reports queue depth and in-flight count for the health surface.
func (o *Orchestrator) QueueStats() (depth, inFlight int) {
	return o.queue.Depth(), o.queue.InFlight()
}

// pollLoop feeds the queue on a ticker: markets awaiting validation, active
// markets that have expired, and markets already awaiting resolution (picked
// up again after a restart).
func (o *Orchestrator) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.Poll(ctx)
		}
	}
}

// Poll runs one scheduling pass. Exposed so tests and the admin surface can
// trigger scheduling without waiting for the ticker.
func (o *Orchestrator) Poll(ctx context.Context) {
	opts := domain.ListOpts{Limit: o.cfg.PollBatch}
	now := time.Now().UTC()

	pending, err := o.store.Markets().ListByStatus(ctx, domain.StatusPendingValidation, opts)
	if err != nil {
		o.log.Error("poll pending validation", "error", err)
	} else {
		for _, m := range pending {
			o.queue.Enqueue(m, domain.TaskKindValidate)
		}
	}

	expired, err := o.store.Markets().ListExpired(ctx, now, opts)
	if err != nil {
		o.log.Error("poll expired", "error", err)
	} else {
		for _, m := range expired {
			if m.Status != domain.StatusActive && m.Status != domain.StatusFlagged {
				continue
			}
			if err := o.store.Markets().UpdateStatus(ctx, m.ID, domain.StatusPendingResolution); err != nil {
				o.log.Error("mark pending resolution", "market_id", m.ID, "error", err)
				continue
			}
			m.Status = domain.StatusPendingResolution
			o.emitter.Emit(ctx, domain.EventMarketExpired, m.ID, map[string]any{
				"expired_at": m.ExpiresAt,
			})
			o.queue.Enqueue(m, domain.TaskKindResolve)
		}
	}

	unfinished, err := o.store.Markets().ListByStatus(ctx, domain.StatusPendingResolution, opts)
	if err != nil {
		o.log.Error("poll pending resolution", "error", err)
	} else {
		for _, m := range unfinished {
			o.queue.Enqueue(m, domain.TaskKindResolve)
		}
	}

	o.metrics.QueueGauges(o.queue.Depth(), o.queue.InFlight())
	o.metrics.TrackedProposals(o.monitor.Tracked())
}

// handle dispatches one queue entry under the per-market distributed lock.
func (o *Orchestrator) handle(ctx context.Context, entry domain.QueueEntry) error {
	unlock, err := o.acquire(ctx, entry.Market.ID)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			// Another replica owns this market; not a failure.
			o.log.Debug("market locked elsewhere", "market_id", entry.Market.ID)
			return nil
		}
		return err
	}
	defer unlock()

	// Re-read the market: its status may have moved since enqueue.
	market, err := o.store.Markets().GetByID(ctx, entry.Market.ID)
	if err != nil {
		return fmt.Errorf("pipeline: load market %s: %w", entry.Market.ID, err)
	}
	if market.Status.Terminal() || market.Status == domain.StatusProposed {
		return nil
	}

	switch entry.Kind {
	case domain.TaskKindResolve:
		_, err = o.resolver.Run(ctx, market)
	default:
		_, err = o.validator.Run(ctx, market)
	}
	return err
}

func (o *Orchestrator) acquire(ctx context.Context, marketID string) (func(), error) {
	if o.locks == nil {
		return func() {}, nil
	}
	return o.locks.Acquire(ctx, "market:"+marketID, 10*time.Minute)
}

// deadLetter surfaces an exhausted entry to humans: review status, event
// log, metrics.
func (o *Orchestrator) deadLetter(ctx context.Context, letter domain.DeadLetter) {
	if err := o.store.Markets().UpdateStatus(ctx, letter.MarketID, domain.StatusReview); err != nil {
		o.log.Error("dead letter status update", "market_id", letter.MarketID, "error", err)
	}
	o.emitter.Emit(ctx, domain.EventQueueDeadLetter, letter.MarketID, map[string]any{
		"kind":       string(letter.Kind),
		"retries":    letter.Retries,
		"last_error": letter.LastError,
	})
	o.metrics.DeadLetter()
}
