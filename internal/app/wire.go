package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/verdictd/verdictd/internal/blob/s3"
	"github.com/verdictd/verdictd/internal/cache/redis"
	"github.com/verdictd/verdictd/internal/config"
	"github.com/verdictd/verdictd/internal/consensus"
	"github.com/verdictd/verdictd/internal/crypto"
	"github.com/verdictd/verdictd/internal/decision"
	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
	"github.com/verdictd/verdictd/internal/evidence"
	"github.com/verdictd/verdictd/internal/fetch"
	"github.com/verdictd/verdictd/internal/heartbeat"
	"github.com/verdictd/verdictd/internal/metrics"
	"github.com/verdictd/verdictd/internal/notify"
	"github.com/verdictd/verdictd/internal/pipeline"
	"github.com/verdictd/verdictd/internal/platform/chain"
	"github.com/verdictd/verdictd/internal/platform/mirror"
	"github.com/verdictd/verdictd/internal/platform/model"
	"github.com/verdictd/verdictd/internal/platform/search"
	"github.com/verdictd/verdictd/internal/queue"
	"github.com/verdictd/verdictd/internal/rules"
	"github.com/verdictd/verdictd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Persistence
	Store       domain.Store
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil when no bucket is configured)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.EventArchiver

	// External platforms
	Ledger     domain.Ledger
	Governance domain.GovernanceSource
	Mirror     domain.MirrorSource

	// Evaluation stages
	Rules     *rules.Engine
	Consensus *consensus.Engine
	Decide    *decision.Engine
	Evidence  *evidence.Gatherer

	// Oracle pipelines
	Validator    *pipeline.Validator
	Resolver     *pipeline.Resolver
	Monitor      *heartbeat.Monitor
	Orchestrator *pipeline.Orchestrator

	// Cross-cutting
	Emitter         *events.Emitter
	Metrics         *metrics.Recorder
	Notifier        *notify.Notifier
	WebhookVerifier *crypto.WebhookVerifier
}

// trackerHandle defers the heartbeat monitor reference so the resolver can be
// constructed before the monitor, which in turn needs the resolver as its
// sealer.
type trackerHandle struct {
	monitor *heartbeat.Monitor
}

func (t *trackerHandle) Track(ctx context.Context, marketID string, outcome domain.Outcome, confidence float64) error {
	if t.monitor == nil {
		return errors.New("app: heartbeat monitor not wired")
	}
	return t.monitor.Track(ctx, marketID, outcome, confidence)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode persists markets and results) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.Store = postgres.NewStore(pgClient)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 audit archive (optional; no bucket disables archival) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewEventArchiver(deps.BlobWriter, deps.Store.Events())
	}

	// --- Cross-cutting ---
	deps.Metrics = metrics.New()
	deps.Emitter = events.NewEmitter(deps.Store.Events(), deps.SignalBus, logger)
	deps.WebhookVerifier = crypto.NewWebhookVerifier(cfg.Webhook.Secret)

	// --- External platforms ---
	signer, err := crypto.NewOutcomeSigner(cfg.Chain.PrivateKey, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: outcome signer: %w", err)
	}
	deps.Ledger = chain.NewRelayClient(chain.RelayConfig{
		BaseURL: cfg.Chain.RelayURL,
	}, signer)
	if cfg.Chain.GovernanceURL != "" {
		deps.Governance = chain.NewGovernanceClient(cfg.Chain.GovernanceURL, 0)
	}
	if cfg.Mirror.BaseURL != "" {
		deps.Mirror = mirror.NewClient(mirror.Config{
			BaseURL:       cfg.Mirror.BaseURL,
			Timeout:       cfg.Mirror.Timeout.Duration,
			MinSimilarity: cfg.Mirror.MinSimilarity,
		})
	}

	// --- Evaluation stages ---
	backends := make([]domain.ModelBackend, 0, len(cfg.Models.Backends))
	for _, b := range cfg.Models.Backends {
		backends = append(backends, model.NewClient(model.Config{
			Name:    b.Name,
			BaseURL: b.BaseURL,
			APIKey:  b.APIKey,
			Model:   b.Model,
			Timeout: cfg.Models.Timeout.Duration,
		}))
	}
	var auditor domain.ModelBackend
	if cfg.Models.Auditor.BaseURL != "" {
		auditor = model.NewClient(model.Config{
			Name:    cfg.Models.Auditor.Name,
			BaseURL: cfg.Models.Auditor.BaseURL,
			APIKey:  cfg.Models.Auditor.APIKey,
			Model:   cfg.Models.Auditor.Model,
			Timeout: cfg.Models.Timeout.Duration,
		})
	}
	deps.Consensus = consensus.NewEngine(backends, auditor, consensus.Config{
		Timeout:             cfg.Models.Timeout.Duration,
		AgreementThreshold:  cfg.Oracle.AgreementThreshold,
		ConfidenceThreshold: cfg.Oracle.ValidationConfidenceThreshold,
	}, logger)

	deps.Rules = rules.NewEngine(rules.Config{
		MinExpiry: minExpiry(cfg),
		MaxExpiry: maxExpiry(cfg),
	})
	deps.Decide = decision.NewEngine(decision.Weights{
		URL:           cfg.Oracle.WeightURL,
		Content:       cfg.Oracle.WeightContent,
		Resolvability: cfg.Oracle.WeightResolvability,
		Consensus:     cfg.Oracle.WeightConsensus,
	}, decision.Thresholds{
		ValidationScore:      cfg.Oracle.ValidationScoreThreshold,
		ValidationConfidence: cfg.Oracle.ValidationConfidenceThreshold,
		Agreement:            cfg.Oracle.AgreementThreshold,
		ResolutionConfidence: cfg.Oracle.ResolutionConfidenceThreshold,
		EvidenceStrength:     cfg.Oracle.EvidenceStrengthThreshold,
	})

	fetcher := fetch.New(fetch.Config{
		Timeout:          cfg.Oracle.FetchTimeout.Duration,
		MaxRedirects:     cfg.Oracle.MaxRedirects,
		MaxContentLength: cfg.Oracle.MaxContentLength,
	}, logger)
	searchClient := search.NewClient(search.Config{
		BaseURL: cfg.Search.BaseURL,
		APIKey:  cfg.Search.APIKey,
		Timeout: cfg.Search.Timeout.Duration,
	})
	deps.Evidence = evidence.NewGatherer(fetcher, searchClient, cfg.Oracle.MaxNewsResults, logger)

	// --- Oracle pipelines ---
	deps.Validator = pipeline.NewValidator(
		deps.Evidence, deps.Rules, deps.Consensus, deps.Decide,
		deps.Store, deps.MarketCache, deps.Emitter, deps.Metrics, logger,
	)

	tracker := &trackerHandle{}
	deps.Resolver = pipeline.NewResolver(pipeline.ResolverDeps{
		Evidence:  deps.Evidence,
		Consensus: deps.Consensus,
		Decide:    deps.Decide,
		Store:     deps.Store,
		Ledger:    deps.Ledger,
		Mirror:    deps.Mirror,
		Tracker:   tracker,
		Cache:     deps.MarketCache,
		Emitter:   deps.Emitter,
		Archive:   deps.BlobWriter,
		Metrics:   deps.Metrics,
		Logger:    logger,
	})
	deps.Monitor = heartbeat.NewMonitor(heartbeat.Config{
		Interval: cfg.Oracle.HeartbeatInterval.Duration,
		Window:   cfg.Oracle.FinalizationWindow.Duration,
	}, deps.Store, deps.Ledger, deps.Governance, deps.Resolver, deps.Emitter, deps.BlobWriter, logger)
	tracker.monitor = deps.Monitor

	deps.Orchestrator = pipeline.NewOrchestrator(
		pipeline.OrchestratorConfig{
			PollInterval: cfg.Oracle.PollInterval.Duration,
		},
		queueConfig(cfg),
		pipeline.OrchestratorDeps{
			Store:     deps.Store,
			Validator: deps.Validator,
			Resolver:  deps.Resolver,
			Monitor:   deps.Monitor,
			Locks:     deps.LockManager,
			Limiter:   deps.RateLimiter,
			Emitter:   deps.Emitter,
			Metrics:   deps.Metrics,
			Logger:    logger,
		},
	)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

func minExpiry(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Oracle.MinExpiryHours) * time.Hour
}

func maxExpiry(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Oracle.MaxExpiryDays) * 24 * time.Hour
}

func queueConfig(cfg *config.Config) queue.Config {
	return queue.Config{
		Workers:      cfg.Oracle.WorkerCount,
		RetryLimit:   cfg.Oracle.RetryLimit,
		RetryBackoff: cfg.Oracle.RetryBackoff.Duration,
		RateLimit:    cfg.Oracle.WorkerRateLimit,
		RateWindow:   cfg.Oracle.WorkerRateWindow.Duration,
	}
}
