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
// built-in defaults, applies PMAG_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus the environment. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PMAG_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setBool(&cfg.Polymarket.Enabled, "PMAG_POLYMARKET_ENABLED")
	setStr(&cfg.Polymarket.BaseURL, "PMAG_POLYMARKET_BASE_URL")

	// ── Kalshi ──
	setBool(&cfg.Kalshi.Enabled, "PMAG_KALSHI_ENABLED")
	setStr(&cfg.Kalshi.BaseURL, "PMAG_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKeyID, "PMAG_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKeyPEM, "PMAG_KALSHI_PRIVATE_KEY_PEM")
	setStr(&cfg.Kalshi.PrivateKeyPath, "PMAG_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.SealedKeyPath, "PMAG_KALSHI_SEALED_KEY_PATH")
	setStr(&cfg.Kalshi.SealedKeyPassword, "PMAG_KALSHI_SEALED_KEY_PASSWORD")

	// ── Gateway ──
	setDuration(&cfg.Gateway.Timeout, "PMAG_GATEWAY_TIMEOUT")
	setInt(&cfg.Gateway.MaxRetries, "PMAG_GATEWAY_MAX_RETRIES")
	setDuration(&cfg.Gateway.RetryBackoff, "PMAG_GATEWAY_RETRY_BACKOFF")
	setInt(&cfg.Gateway.MaxConcurrent, "PMAG_GATEWAY_MAX_CONCURRENT")

	// ── Cache ──
	setDuration(&cfg.Cache.TTL, "PMAG_CACHE_TTL")
	setDuration(&cfg.Cache.StaleWindow, "PMAG_CACHE_STALE_WINDOW")

	// ── Matching ──
	setFloat64(&cfg.Matching.MinSimilarity, "PMAG_MATCHING_MIN_SIMILARITY")
	setFloat64(&cfg.Matching.KeywordWeight, "PMAG_MATCHING_KEYWORD_WEIGHT")
	setFloat64(&cfg.Matching.TitleWeight, "PMAG_MATCHING_TITLE_WEIGHT")
	setFloat64(&cfg.Matching.ExpirationWeight, "PMAG_MATCHING_EXPIRATION_WEIGHT")

	// ── Limits ──
	setInt(&cfg.Limits.DefaultMarkets, "PMAG_LIMITS_DEFAULT_MARKETS")
	setInt(&cfg.Limits.MaxMarkets, "PMAG_LIMITS_MAX_MARKETS")

	// ── Alerts ──
	setBool(&cfg.Alerts.Enabled, "PMAG_ALERTS_ENABLED")
	setFloat64(&cfg.Alerts.MinEdge, "PMAG_ALERTS_MIN_EDGE")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.RefreshInterval, "PMAG_PIPELINE_REFRESH_INTERVAL")
	setBool(&cfg.Pipeline.LeaderLock, "PMAG_PIPELINE_LEADER_LOCK")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PMAG_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PMAG_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PMAG_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PMAG_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PMAG_SERVER_RATE_LIMIT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "PMAG_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "PMAG_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PMAG_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PMAG_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PMAG_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PMAG_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PMAG_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PMAG_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PMAG_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PMAG_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PMAG_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PMAG_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PMAG_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PMAG_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PMAG_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PMAG_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PMAG_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PMAG_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PMAG_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PMAG_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PMAG_S3_REGION")
	setStr(&cfg.S3.Bucket, "PMAG_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PMAG_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PMAG_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PMAG_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PMAG_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PMAG_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PMAG_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PMAG_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PMAG_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PMAG_MODE")
	setStr(&cfg.LogLevel, "PMAG_LOG_LEVEL")
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
