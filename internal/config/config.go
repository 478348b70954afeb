// Package config defines the top-level configuration for the verdictd oracle
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VERDICTD_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Search    SearchConfig    `toml:"search"`
	Models    ModelsConfig    `toml:"models"`
	Mirror    MirrorConfig    `toml:"mirror"`
	Chain     ChainConfig     `toml:"chain"`
	Oracle    OracleConfig    `toml:"oracle"`
	Server    ServerConfig    `toml:"server"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Admin     AdminConfig     `toml:"admin"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the audit
// archive (evidence bundles and escalation reports).
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SearchConfig holds parameters for the external search capability used by
// the evidence gatherer.
type SearchConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// ModelBackendConfig describes one independent reasoning backend. All
// backends speak the same chat-completions JSON contract; only endpoint,
// credentials, and model name differ.
type ModelBackendConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// ModelsConfig holds the reasoning backend set and consensus parameters.
type ModelsConfig struct {
	Backends []ModelBackendConfig `toml:"backends"`
	// Auditor is an optional separate backend for the hallucination check.
	// When unset the audit pass is skipped.
	Auditor ModelBackendConfig `toml:"auditor"`
	Timeout duration           `toml:"timeout"`
}

// MirrorConfig holds parameters for the optional mirror-market lookup used
// as a resolution prior. An empty base_url disables the lookup.
type MirrorConfig struct {
	BaseURL       string   `toml:"base_url"`
	Timeout       duration `toml:"timeout"`
	MinSimilarity float64  `toml:"min_similarity"`
}

// ChainConfig holds ledger submission parameters. The oracle signs outcome
// payloads locally and posts them to a resolver relay that constructs the
// on-chain transaction.
type ChainConfig struct {
	RelayURL      string `toml:"relay_url"`
	GovernanceURL string `toml:"governance_url"`
	PrivateKey    string `toml:"private_key"` // hex-encoded secp256k1 key
	ChainID       int    `toml:"chain_id"`
}

// OracleConfig holds the pipeline thresholds and scheduler intervals.
//
// The numeric thresholds below (66% agreement, 70/80 confidence, weight
// split) are operating defaults without a derivation from outcome data; they
// are configurable so operators can recalibrate once real accuracy numbers
// exist.
type OracleConfig struct {
	// Decision thresholds (0-100 scale unless noted).
	ValidationScoreThreshold      float64 `toml:"validation_score_threshold"`
	ValidationConfidenceThreshold float64 `toml:"validation_confidence_threshold"`
	AgreementThreshold            float64 `toml:"agreement_threshold"` // fraction, 0-1
	ResolutionConfidenceThreshold float64 `toml:"resolution_confidence_threshold"`
	EvidenceStrengthThreshold     float64 `toml:"evidence_strength_threshold"`

	// Combined validation score weights; must sum to 1.
	WeightURL           float64 `toml:"weight_url"`
	WeightContent       float64 `toml:"weight_content"`
	WeightResolvability float64 `toml:"weight_resolvability"`
	WeightConsensus     float64 `toml:"weight_consensus"`

	// Expiry window accepted by the rules engine.
	MinExpiryHours int `toml:"min_expiry_hours"`
	MaxExpiryDays  int `toml:"max_expiry_days"`

	// Scheduler.
	PollInterval       duration `toml:"poll_interval"`
	HeartbeatInterval  duration `toml:"heartbeat_interval"`
	FinalizationWindow duration `toml:"finalization_window"`
	WorkerCount        int      `toml:"worker_count"`
	WorkerRateLimit    int      `toml:"worker_rate_limit"` // pipeline runs per interval
	WorkerRateWindow   duration `toml:"worker_rate_window"`
	RetryLimit         int      `toml:"retry_limit"`
	RetryBackoff       duration `toml:"retry_backoff"`

	// Fetcher.
	FetchTimeout     duration `toml:"fetch_timeout"`
	MaxRedirects     int      `toml:"max_redirects"`
	MaxContentLength int      `toml:"max_content_length"`
	MaxNewsResults   int      `toml:"max_news_results"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps requests per client IP per minute; 0 disables.
	RateLimit int `toml:"rate_limit"`
}

// WebhookConfig holds inbound webhook verification parameters.
type WebhookConfig struct {
	Secret string `toml:"secret"`
	// Production enforces signature verification. When false (development),
	// unsigned webhooks are accepted with a warning.
	Production bool `toml:"production"`
}

// AdminConfig holds the authorized admin address set for forced resolutions
// and manual overrides.
type AdminConfig struct {
	Addresses []string `toml:"addresses"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "verdictd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "verdictd-audit",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Search: SearchConfig{
			BaseURL: "https://api.search.brave.com/res/v1",
			Timeout: duration{15 * time.Second},
		},
		Models: ModelsConfig{
			Timeout: duration{45 * time.Second},
		},
		Mirror: MirrorConfig{
			Timeout:       duration{15 * time.Second},
			MinSimilarity: 0.6,
		},
		Chain: ChainConfig{
			ChainID: 137,
		},
		Oracle: OracleConfig{
			ValidationScoreThreshold:      70,
			ValidationConfidenceThreshold: 70,
			AgreementThreshold:            0.66,
			ResolutionConfidenceThreshold: 80,
			EvidenceStrengthThreshold:     50,
			WeightURL:                     0.15,
			WeightContent:                 0.15,
			WeightResolvability:           0.20,
			WeightConsensus:               0.50,
			MinExpiryHours:                1,
			MaxExpiryDays:                 365,
			PollInterval:                  duration{time.Minute},
			HeartbeatInterval:             duration{15 * time.Minute},
			FinalizationWindow:            duration{2 * time.Hour},
			WorkerCount:                   5,
			WorkerRateLimit:               10,
			WorkerRateWindow:              duration{time.Minute},
			RetryLimit:                    3,
			RetryBackoff:                  duration{5 * time.Second},
			FetchTimeout:                  duration{10 * time.Second},
			MaxRedirects:                  5,
			MaxContentLength:              8000,
			MaxNewsResults:                10,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Webhook: WebhookConfig{
			Production: false,
		},
		Notify: NotifyConfig{
			Events: []string{"market_escalated", "queue_dead_letter", "market_finalized", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"server": true,
	"worker": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, server, worker)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Models: at least two independent backends are required for any
	// meaningful consensus; one backend would make agreement trivially 100%.
	if mode := strings.ToLower(c.Mode); mode == "full" || mode == "worker" {
		if len(c.Models.Backends) < 2 {
			errs = append(errs, fmt.Sprintf("models: at least 2 backends required for consensus, got %d", len(c.Models.Backends)))
		}
	}
	seen := map[string]bool{}
	for i, b := range c.Models.Backends {
		if b.Name == "" {
			errs = append(errs, fmt.Sprintf("models: backend %d has no name", i))
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Sprintf("models: duplicate backend name %q", b.Name))
		}
		seen[b.Name] = true
		if b.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("models: backend %q has no base_url", b.Name))
		}
	}

	// Chain: outcomes are signed locally before relay submission, so every
	// mode that can settle needs a key and a relay endpoint.
	if c.Chain.RelayURL == "" {
		errs = append(errs, "chain: relay_url must not be empty")
	}
	if c.Chain.PrivateKey == "" {
		errs = append(errs, "chain: private_key must not be empty")
	}

	// Oracle thresholds
	o := &c.Oracle
	if o.AgreementThreshold <= 0 || o.AgreementThreshold > 1 {
		errs = append(errs, fmt.Sprintf("oracle: agreement_threshold must be in (0,1], got %v", o.AgreementThreshold))
	}
	for name, v := range map[string]float64{
		"validation_score_threshold":      o.ValidationScoreThreshold,
		"validation_confidence_threshold": o.ValidationConfidenceThreshold,
		"resolution_confidence_threshold": o.ResolutionConfidenceThreshold,
		"evidence_strength_threshold":     o.EvidenceStrengthThreshold,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("oracle: %s must be 0-100, got %v", name, v))
		}
	}
	weightSum := o.WeightURL + o.WeightContent + o.WeightResolvability + o.WeightConsensus
	if weightSum < 0.999 || weightSum > 1.001 {
		errs = append(errs, fmt.Sprintf("oracle: score weights must sum to 1, got %v", weightSum))
	}
	if o.WorkerCount < 1 {
		errs = append(errs, "oracle: worker_count must be >= 1")
	}
	if o.RetryLimit < 0 {
		errs = append(errs, "oracle: retry_limit must be >= 0")
	}
	if o.PollInterval.Duration <= 0 {
		errs = append(errs, "oracle: poll_interval must be positive")
	}
	if o.HeartbeatInterval.Duration <= 0 {
		errs = append(errs, "oracle: heartbeat_interval must be positive")
	}
	if o.FinalizationWindow.Duration <= o.HeartbeatInterval.Duration {
		errs = append(errs, "oracle: finalization_window must exceed heartbeat_interval")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Webhook: production mode demands a shared secret.
	if c.Webhook.Production && c.Webhook.Secret == "" {
		errs = append(errs, "webhook: secret is required when production is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
