// Package config defines the top-level configuration for the aggregator and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PMAG_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Cache      CacheConfig      `toml:"cache"`
	Matching   MatchingConfig   `toml:"matching"`
	Limits     LimitsConfig     `toml:"limits"`
	Alerts     AlertsConfig     `toml:"alerts"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Server     ServerConfig     `toml:"server"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the Polymarket Gamma API endpoint.
type PolymarketConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

// KalshiConfig holds the Kalshi API endpoint and credentials. Market data is
// public; the request signer is only wired when an API key ID and a private
// key source are both configured.
type KalshiConfig struct {
	Enabled           bool   `toml:"enabled"`
	BaseURL           string `toml:"base_url"`
	ApiKeyID          string `toml:"api_key_id"`
	PrivateKeyPEM     string `toml:"private_key_pem"`
	PrivateKeyPath    string `toml:"private_key_path"`
	SealedKeyPath     string `toml:"sealed_key_path"`
	SealedKeyPassword string `toml:"sealed_key_password"`
}

// GatewayConfig bounds the upstream HTTP behavior shared by all venue
// adapters.
type GatewayConfig struct {
	Timeout       duration `toml:"timeout"`
	MaxRetries    int      `toml:"max_retries"`
	RetryBackoff  duration `toml:"retry_backoff"`
	MaxConcurrent int      `toml:"max_concurrent"`
}

// CacheConfig bounds snapshot freshness and stale serving.
type CacheConfig struct {
	TTL         duration `toml:"ttl"`
	StaleWindow duration `toml:"stale_window"`
}

// MatchingConfig holds the cross-venue similarity parameters.
type MatchingConfig struct {
	MinSimilarity    float64 `toml:"min_similarity"`
	KeywordWeight    float64 `toml:"keyword_weight"`
	TitleWeight      float64 `toml:"title_weight"`
	ExpirationWeight float64 `toml:"expiration_weight"`
}

// LimitsConfig bounds how many markets one aggregation cycle pulls per venue.
type LimitsConfig struct {
	DefaultMarkets int `toml:"default_markets"`
	MaxMarkets     int `toml:"max_markets"`
}

// AlertsConfig holds the edge alert parameters.
type AlertsConfig struct {
	Enabled bool    `toml:"enabled"`
	MinEdge float64 `toml:"min_edge"`
}

// PipelineConfig holds the refresh-loop parameters.
type PipelineConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
	LeaderLock      bool     `toml:"leader_lock"`
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

// ServerConfig holds HTTP server parameters. APIKey, when set, guards the
// mutating endpoints. RateLimit is per client per minute and needs Redis
// enabled to take effect.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			Enabled: true,
			BaseURL: "https://gamma-api.polymarket.com",
		},
		Kalshi: KalshiConfig{
			Enabled: true,
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Gateway: GatewayConfig{
			Timeout:       duration{7 * time.Second},
			MaxRetries:    2,
			RetryBackoff:  duration{500 * time.Millisecond},
			MaxConcurrent: 10,
		},
		Cache: CacheConfig{
			TTL:         duration{30 * time.Second},
			StaleWindow: duration{60 * time.Second},
		},
		Matching: MatchingConfig{
			MinSimilarity:    0.7,
			KeywordWeight:    0.6,
			TitleWeight:      0.3,
			ExpirationWeight: 0.1,
		},
		Limits: LimitsConfig{
			DefaultMarkets: 100,
			MaxMarkets:     500,
		},
		Alerts: AlertsConfig{
			Enabled: false,
			MinEdge: 0.02,
		},
		Pipeline: PipelineConfig{
			RefreshInterval: duration{30 * time.Second},
			LeaderLock:      false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "pmag",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pmag-snapshots",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"edge_alert", "venue_down"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"once":  true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, once)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !c.Polymarket.Enabled && !c.Kalshi.Enabled {
		errs = append(errs, "venues: at least one of polymarket or kalshi must be enabled")
	}
	if c.Polymarket.Enabled && c.Polymarket.BaseURL == "" {
		errs = append(errs, "polymarket: base_url must not be empty")
	}
	if c.Kalshi.Enabled && c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}

	// Kalshi signing credentials come as a pair: the key ID plus exactly one
	// private key source.
	keySources := 0
	if c.Kalshi.PrivateKeyPEM != "" {
		keySources++
	}
	if c.Kalshi.PrivateKeyPath != "" {
		keySources++
	}
	if c.Kalshi.SealedKeyPath != "" {
		keySources++
	}
	if c.Kalshi.ApiKeyID != "" || keySources > 0 {
		if c.Kalshi.ApiKeyID == "" {
			errs = append(errs, "kalshi: api_key_id is required when a private key is configured")
		}
		if keySources == 0 {
			errs = append(errs, "kalshi: a private key source is required when api_key_id is set")
		}
		if keySources > 1 {
			errs = append(errs, "kalshi: configure only one of private_key_pem, private_key_path, sealed_key_path")
		}
		if c.Kalshi.SealedKeyPath != "" && c.Kalshi.SealedKeyPassword == "" {
			errs = append(errs, "kalshi: sealed_key_password is required when sealed_key_path is set")
		}
	}

	if c.Gateway.Timeout.Duration <= 0 {
		errs = append(errs, "gateway: timeout must be > 0")
	}
	if c.Gateway.MaxRetries < 0 {
		errs = append(errs, "gateway: max_retries must be >= 0")
	}
	if c.Gateway.RetryBackoff.Duration <= 0 {
		errs = append(errs, "gateway: retry_backoff must be > 0")
	}
	if c.Gateway.MaxConcurrent < 1 {
		errs = append(errs, "gateway: max_concurrent must be >= 1")
	}

	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be > 0")
	}
	if c.Cache.StaleWindow.Duration < 0 {
		errs = append(errs, "cache: stale_window must be >= 0")
	}

	if c.Matching.MinSimilarity < 0 || c.Matching.MinSimilarity > 1 {
		errs = append(errs, fmt.Sprintf("matching: min_similarity must be in [0,1], got %g", c.Matching.MinSimilarity))
	}
	if c.Matching.KeywordWeight < 0 || c.Matching.TitleWeight < 0 || c.Matching.ExpirationWeight < 0 {
		errs = append(errs, "matching: weights must not be negative")
	}
	if c.Matching.KeywordWeight+c.Matching.TitleWeight+c.Matching.ExpirationWeight <= 0 {
		errs = append(errs, "matching: weights must not all be zero")
	}

	if c.Limits.DefaultMarkets < 1 {
		errs = append(errs, "limits: default_markets must be >= 1")
	}
	if c.Limits.MaxMarkets < c.Limits.DefaultMarkets {
		errs = append(errs, "limits: max_markets must be >= default_markets")
	}

	if c.Alerts.Enabled && c.Alerts.MinEdge <= 0 {
		errs = append(errs, "alerts: min_edge must be > 0 when enabled")
	}

	if c.Pipeline.RefreshInterval.Duration <= 0 {
		errs = append(errs, "pipeline: refresh_interval must be > 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("server: rate_limit must be >= 0, got %d", c.Server.RateLimit))
		}
	}

	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
