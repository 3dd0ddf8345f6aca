package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/aarontekluuu/pm.ag-sub000/internal/blob/s3"
	"github.com/aarontekluuu/pm.ag-sub000/internal/cache"
	"github.com/aarontekluuu/pm.ag-sub000/internal/cache/redis"
	"github.com/aarontekluuu/pm.ag-sub000/internal/config"
	"github.com/aarontekluuu/pm.ag-sub000/internal/crypto"
	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
	"github.com/aarontekluuu/pm.ag-sub000/internal/gateway"
	"github.com/aarontekluuu/pm.ag-sub000/internal/notify"
	"github.com/aarontekluuu/pm.ag-sub000/internal/platform/kalshi"
	"github.com/aarontekluuu/pm.ag-sub000/internal/platform/polymarket"
	"github.com/aarontekluuu/pm.ag-sub000/internal/service"
	"github.com/aarontekluuu/pm.ag-sub000/internal/similarity"
	"github.com/aarontekluuu/pm.ag-sub000/internal/store/postgres"
)

// upstreamRateBudget is the shared per-venue request budget applied when
// Redis is available: enough headroom for polling plus manual refreshes
// without tripping venue-side limits.
const (
	upstreamRateLimit  = 8
	upstreamRateWindow = time.Second
)

// Dependencies bundles everything the application modes need. Optional
// backends (Redis, Postgres, S3, alerting) stay nil when disabled; the
// modes wire around the gaps.
type Dependencies struct {
	Aggregator *service.Aggregator

	// Redis-backed, nil when redis is disabled.
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Postgres-backed, nil when postgres is disabled.
	MarketStore domain.MarketStore
	EdgeStore   domain.EdgeStore

	// S3-backed, nil when s3 is disabled.
	Exporter *s3blob.Exporter

	// Notifications. Notifier is always present (it no-ops without
	// senders); Alerter is nil unless alerts are enabled.
	Notifier *notify.Notifier
	Alerter  *notify.EdgeAlerter
}

// Wire constructs the concrete dependency implementations from the given
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
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

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, upstreamRateLimit, upstreamRateWindow)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- Postgres (optional) ---
	if cfg.Postgres.Enabled {
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

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.EdgeStore = postgres.NewEdgeStore(pool)
	}

	// --- S3 snapshot export (optional) ---
	if cfg.S3.Enabled {
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

		deps.Exporter = s3blob.NewExporter(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
	}

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
	if cfg.Alerts.Enabled {
		deps.Alerter = notify.NewEdgeAlerter(deps.Notifier, cfg.Alerts.MinEdge)
	}

	// --- Venue adapters ---
	venues, err := buildVenues(cfg, deps.RateLimiter, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Aggregation core ---
	coalescer := cache.New(cfg.Cache.TTL.Duration, cfg.Cache.StaleWindow.Duration, logger)
	deps.Aggregator = service.NewAggregator(venues, coalescer, deps.SnapshotCache, service.Config{
		MinSimilarity: cfg.Matching.MinSimilarity,
		Weights: similarity.Weights{
			Keyword:    cfg.Matching.KeywordWeight,
			Title:      cfg.Matching.TitleWeight,
			Expiration: cfg.Matching.ExpirationWeight,
		},
		DefaultLimit: cfg.Limits.DefaultMarkets,
		MaxLimit:     cfg.Limits.MaxMarkets,
	}, logger)

	return deps, cleanup, nil
}

// buildVenues constructs one adapter per enabled venue, each behind its own
// gateway client so failures and budgets stay isolated.
func buildVenues(cfg *config.Config, limiter domain.RateLimiter, logger *slog.Logger) ([]domain.Venue, error) {
	gatewayOpts := func(extra ...gateway.Option) []gateway.Option {
		opts := []gateway.Option{
			gateway.WithTimeout(cfg.Gateway.Timeout.Duration),
			gateway.WithRetries(cfg.Gateway.MaxRetries, cfg.Gateway.RetryBackoff.Duration),
			gateway.WithConcurrency(cfg.Gateway.MaxConcurrent),
			gateway.WithLogger(logger),
		}
		if limiter != nil {
			opts = append(opts, gateway.WithRateLimiter(limiter))
		}
		return append(opts, extra...)
	}

	var venues []domain.Venue

	if cfg.Polymarket.Enabled {
		client := gateway.NewClient("polymarket", cfg.Polymarket.BaseURL, gatewayOpts()...)
		venues = append(venues, polymarket.New(client, logger))
	}

	if cfg.Kalshi.Enabled {
		var extra []gateway.Option
		if cfg.Kalshi.ApiKeyID != "" {
			signer, err := buildKalshiSigner(cfg.Kalshi)
			if err != nil {
				// Market data is public; log and continue unsigned.
				logger.Warn("kalshi request signing disabled",
					slog.String("error", err.Error()),
				)
			} else {
				extra = append(extra, gateway.WithRequestSigner(signer.Sign))
			}
		}
		client := gateway.NewClient("kalshi", cfg.Kalshi.BaseURL, gatewayOpts(extra...)...)
		venues = append(venues, kalshi.New(client, logger))
	}

	if len(venues) == 0 {
		return nil, fmt.Errorf("wire: no venues enabled")
	}
	return venues, nil
}

// buildKalshiSigner resolves the configured private key material and
// constructs the RSA-PSS request signer.
func buildKalshiSigner(cfg config.KalshiConfig) (*kalshi.Signer, error) {
	pem, err := crypto.LoadCredential(crypto.CredentialConfig{
		Raw:        cfg.PrivateKeyPEM,
		Path:       cfg.PrivateKeyPath,
		SealedPath: cfg.SealedKeyPath,
		Password:   cfg.SealedKeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: kalshi credential: %w", err)
	}
	signer, err := kalshi.NewSigner(cfg.ApiKeyID, pem)
	if err != nil {
		return nil, fmt.Errorf("wire: kalshi signer: %w", err)
	}
	return signer, nil
}
