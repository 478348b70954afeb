package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VERDICTD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VERDICTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VERDICTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VERDICTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VERDICTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VERDICTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VERDICTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VERDICTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VERDICTD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VERDICTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VERDICTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VERDICTD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VERDICTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VERDICTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VERDICTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VERDICTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VERDICTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VERDICTD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VERDICTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VERDICTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "VERDICTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VERDICTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VERDICTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VERDICTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VERDICTD_S3_FORCE_PATH_STYLE")

	// ── Search ──
	setStr(&cfg.Search.BaseURL, "VERDICTD_SEARCH_BASE_URL")
	setStr(&cfg.Search.APIKey, "VERDICTD_SEARCH_API_KEY")
	setDuration(&cfg.Search.Timeout, "VERDICTD_SEARCH_TIMEOUT")

	// ── Models ──
	setDuration(&cfg.Models.Timeout, "VERDICTD_MODELS_TIMEOUT")
	setStr(&cfg.Models.Auditor.APIKey, "VERDICTD_MODELS_AUDITOR_API_KEY")
	// Backend API keys: VERDICTD_MODEL_API_KEY_<NAME> overrides the backend
	// whose name matches (upper-cased).
	for i := range cfg.Models.Backends {
		key := "VERDICTD_MODEL_API_KEY_" + strings.ToUpper(cfg.Models.Backends[i].Name)
		setStr(&cfg.Models.Backends[i].APIKey, key)
	}

	// ── Mirror ──
	setStr(&cfg.Mirror.BaseURL, "VERDICTD_MIRROR_BASE_URL")
	setDuration(&cfg.Mirror.Timeout, "VERDICTD_MIRROR_TIMEOUT")
	setFloat64(&cfg.Mirror.MinSimilarity, "VERDICTD_MIRROR_MIN_SIMILARITY")

	// ── Chain ──
	setStr(&cfg.Chain.RelayURL, "VERDICTD_CHAIN_RELAY_URL")
	setStr(&cfg.Chain.GovernanceURL, "VERDICTD_CHAIN_GOVERNANCE_URL")
	setStr(&cfg.Chain.PrivateKey, "VERDICTD_CHAIN_PRIVATE_KEY")
	setInt(&cfg.Chain.ChainID, "VERDICTD_CHAIN_ID")

	// ── Oracle ──
	setFloat64(&cfg.Oracle.ValidationScoreThreshold, "VERDICTD_ORACLE_VALIDATION_SCORE_THRESHOLD")
	setFloat64(&cfg.Oracle.ValidationConfidenceThreshold, "VERDICTD_ORACLE_VALIDATION_CONFIDENCE_THRESHOLD")
	setFloat64(&cfg.Oracle.AgreementThreshold, "VERDICTD_ORACLE_AGREEMENT_THRESHOLD")
	setFloat64(&cfg.Oracle.ResolutionConfidenceThreshold, "VERDICTD_ORACLE_RESOLUTION_CONFIDENCE_THRESHOLD")
	setFloat64(&cfg.Oracle.EvidenceStrengthThreshold, "VERDICTD_ORACLE_EVIDENCE_STRENGTH_THRESHOLD")
	setDuration(&cfg.Oracle.PollInterval, "VERDICTD_ORACLE_POLL_INTERVAL")
	setDuration(&cfg.Oracle.HeartbeatInterval, "VERDICTD_ORACLE_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Oracle.FinalizationWindow, "VERDICTD_ORACLE_FINALIZATION_WINDOW")
	setInt(&cfg.Oracle.WorkerCount, "VERDICTD_ORACLE_WORKER_COUNT")
	setInt(&cfg.Oracle.RetryLimit, "VERDICTD_ORACLE_RETRY_LIMIT")
	setDuration(&cfg.Oracle.RetryBackoff, "VERDICTD_ORACLE_RETRY_BACKOFF")
	setDuration(&cfg.Oracle.FetchTimeout, "VERDICTD_ORACLE_FETCH_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VERDICTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VERDICTD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "VERDICTD_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "VERDICTD_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "VERDICTD_SERVER_RATE_LIMIT")

	// ── Webhook ──
	setStr(&cfg.Webhook.Secret, "VERDICTD_WEBHOOK_SECRET")
	setBool(&cfg.Webhook.Production, "VERDICTD_WEBHOOK_PRODUCTION")

	// ── Admin ──
	setStringSlice(&cfg.Admin.Addresses, "VERDICTD_ADMIN_ADDRESSES")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VERDICTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VERDICTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VERDICTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VERDICTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VERDICTD_MODE")
	setStr(&cfg.LogLevel, "VERDICTD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
