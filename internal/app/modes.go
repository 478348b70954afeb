package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
	"github.com/verdictd/verdictd/internal/notify"
	"github.com/verdictd/verdictd/internal/server"
	"github.com/verdictd/verdictd/internal/server/handler"
	"github.com/verdictd/verdictd/internal/server/ws"
)

// archiveEvery is how often the event archiver sweeps, and archiveAge is how
// old an event must be before it is swept to the blob store.
const (
	archiveEvery = 24 * time.Hour
	archiveAge   = 24 * time.Hour
)

// FullMode runs everything in one process: the orchestrator with its work
// queue and heartbeat monitor, the notification watcher, the event archiver,
// and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Orchestrator.Run(ctx)
	})
	a.startWatcher(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, deps.Orchestrator, deps.Orchestrator)
	}

	return g.Wait()
}

// ServerMode runs only the HTTP API. Webhook submissions are persisted with
// a pending status so a worker replica's poll loop picks them up.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	intake := &storeIntake{store: deps.Store, emitter: deps.Emitter}
	a.startHTTPServer(ctx, g, deps, intake, intake)

	return g.Wait()
}

// WorkerMode runs the orchestrator, watcher, and archiver without the HTTP
// surface. Intended for scaled-out deployments behind server replicas.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Orchestrator.Run(ctx)
	})
	a.startWatcher(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer builds the handler set, the WebSocket hub, and the HTTP
// server, and registers their goroutines on g.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	submitter handler.MarketSubmitter,
	requeuer handler.Requeuer,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	admins := handler.NewAdminSet(a.cfg.Admin.Addresses)
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Oracle:  handler.NewOracleHandler(deps.Validator, deps.Resolver, deps.Rules, deps.Store, admins, a.logger),
		Markets: handler.NewMarketHandler(deps.Store, deps.MarketCache, a.logger),
		Admin:   handler.NewAdminHandler(deps.Store, admins, deps.Ledger, deps.Resolver, requeuer, deps.Emitter, a.logger),
		Webhook: handler.NewWebhookHandler(deps.WebhookVerifier, a.cfg.Webhook.Production, submitter, requeuer, deps.Store, a.logger),
		Events:  handler.NewEventsHandler(deps.SignalBus, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown", "error", err.Error())
		}
		return ctx.Err()
	})
}

// startWatcher bridges oracle events to the configured notification channels.
func (a *App) startWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
}

// startArchiver sweeps old events to the blob store once a day. A nil
// archiver (no bucket configured) disables the loop.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(archiveEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				n, err := deps.Archiver.ArchiveBefore(ctx, time.Now().UTC().Add(-archiveAge))
				if err != nil {
					a.logger.Error("event archive sweep", "error", err.Error())
					continue
				}
				a.logger.Info("event archive sweep", "archived", n)
			}
		}
	})
}

// storeIntake accepts webhook submissions in server mode, where no work
// queue is running. Markets are persisted with a pending status and a worker
// replica's poll loop picks them up.
type storeIntake struct {
	store   domain.Store
	emitter *events.Emitter
}

func (s *storeIntake) Submit(ctx context.Context, market domain.Market) error {
	if market.Status == "" {
		market.Status = domain.StatusPendingValidation
	}
	if err := s.store.Markets().Upsert(ctx, market); err != nil {
		return fmt.Errorf("app: submit market %s: %w", market.ID, err)
	}
	s.emitter.Emit(ctx, domain.EventMarketCreated, market.ID, map[string]any{
		"question": market.Question,
		"category": string(market.Category),
	})
	return nil
}

func (s *storeIntake) Requeue(ctx context.Context, marketID string) error {
	market, err := s.store.Markets().GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("app: requeue %s: %w", marketID, err)
	}
	status := domain.StatusPendingValidation
	if market.Expired(time.Now().UTC()) {
		status = domain.StatusPendingResolution
	}
	if err := s.store.Markets().UpdateStatus(ctx, marketID, status); err != nil {
		return fmt.Errorf("app: requeue %s: %w", marketID, err)
	}
	return nil
}
