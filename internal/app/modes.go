package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aarontekluuu/pm.ag-sub000/internal/pipeline"
	"github.com/aarontekluuu/pm.ag-sub000/internal/server"
	"github.com/aarontekluuu/pm.ag-sub000/internal/server/handler"
	"github.com/aarontekluuu/pm.ag-sub000/internal/server/ws"
)

// ServeMode runs the long-lived service: the refresh loop plus the HTTP and
// WebSocket API when the server is enabled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	startedAt := time.Now().UTC()
	a.warmStart(ctx, deps)

	refresher := a.buildRefresher(deps, true)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := refresher.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, refresher, startedAt)
	}

	return g.Wait()
}

// OnceMode runs a single refresh cycle, fans the result out to the
// configured sinks, and prints the snapshot to stdout as JSON.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	// A manual run is an operator action; skip the leader lock so a running
	// serve instance cannot starve it.
	refresher := a.buildRefresher(deps, false)
	if err := refresher.RunOnce(ctx); err != nil {
		return fmt.Errorf("once mode: refresh: %w", err)
	}

	snap, err := deps.Aggregator.ComputeMarkets(ctx, deps.Aggregator.DefaultLimit())
	if err != nil {
		return fmt.Errorf("once mode: read snapshot: %w", err)
	}

	if deps.Exporter != nil {
		if info, err := deps.Exporter.LastExport(ctx); err == nil {
			a.logger.InfoContext(ctx, "snapshot exported",
				slog.String("key", info.Key),
				slog.Int64("bytes", info.Size),
			)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("once mode: encode snapshot: %w", err)
	}
	return nil
}

// warmStart seeds the in-memory cache from Redis or, failing that, from the
// last snapshot exported to object storage. The service works without
// either; it just starts cold.
func (a *App) warmStart(ctx context.Context, deps *Dependencies) {
	if deps.Aggregator.WarmStart(ctx) {
		return
	}
	if deps.Exporter == nil {
		return
	}

	switch ok, err := deps.Exporter.HasExport(ctx); {
	case err != nil:
		a.logger.WarnContext(ctx, "warm start: blob check failed",
			slog.String("error", err.Error()),
		)
		return
	case !ok:
		a.logger.DebugContext(ctx, "warm start: no blob snapshot yet")
		return
	}

	snap, err := deps.Exporter.Load(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "warm start: blob load failed",
			slog.String("error", err.Error()),
		)
		return
	}
	deps.Aggregator.Seed(snap)
	a.logger.InfoContext(ctx, "warm start: seeded from blob snapshot",
		slog.String("snapshot_id", snap.ID),
		slog.Int("markets", len(snap.Markets)),
	)
}

// buildRefresher assembles the refresh pipeline with every sink that was
// wired. withLock controls leader election; manual runs skip it.
func (a *App) buildRefresher(deps *Dependencies, withLock bool) *pipeline.Refresher {
	var opts []pipeline.Option
	if deps.MarketStore != nil {
		opts = append(opts, pipeline.WithMarketStore(deps.MarketStore))
	}
	if deps.EdgeStore != nil {
		opts = append(opts, pipeline.WithEdgeStore(deps.EdgeStore))
	}
	if deps.Exporter != nil {
		opts = append(opts, pipeline.WithExporter(deps.Exporter))
	}
	if deps.SignalBus != nil {
		opts = append(opts, pipeline.WithSignalBus(deps.SignalBus))
	}
	if deps.Alerter != nil {
		opts = append(opts, pipeline.WithAlerter(deps.Alerter))
	}
	opts = append(opts, pipeline.WithNotifier(deps.Notifier))
	if withLock && a.cfg.Pipeline.LeaderLock && deps.LockManager != nil {
		opts = append(opts, pipeline.WithLeaderLock(deps.LockManager))
	}

	return pipeline.NewRefresher(
		deps.Aggregator,
		a.cfg.Pipeline.RefreshInterval.Duration,
		deps.Aggregator.DefaultLimit(),
		a.logger,
		opts...,
	)
}

// startServer adds the HTTP server, and the WebSocket hub when a signal bus
// is wired, to the given errgroup. The server shuts down gracefully on
// context cancellation.
func (a *App) startServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	refresher *pipeline.Refresher,
	startedAt time.Time,
) {
	venues := deps.Aggregator.Venues()

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			Venues:    venues,
			StartedAt: startedAt,
		})
		g.Go(func() error {
			err := hub.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, venues, startedAt),
		Markets: handler.NewMarketsHandler(deps.Aggregator, a.logger),
		Edges:   handler.NewEdgesHandler(deps.Aggregator, a.logger),
		Matches: handler.NewMatchesHandler(deps.Aggregator, a.logger),
		Refresh: handler.NewRefreshHandler(refresher, a.logger),
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
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
