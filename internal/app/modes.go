package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/etherindex/basketd/internal/blob/s3"
	"github.com/etherindex/basketd/internal/server"
	"github.com/etherindex/basketd/internal/server/handler"
	"github.com/etherindex/basketd/internal/server/ws"
)

// shutdownGrace bounds how long the HTTP server may drain in-flight requests.
const shutdownGrace = 10 * time.Second

// ServerMode runs the HTTP + WebSocket API against the in-process simulated
// swap backend. Deposits and withdrawals move paper balances through the sim
// bank, which makes this mode safe for dashboards and integration testing.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// EngineMode runs the same API surface as ServerMode, but every swap executes
// against the configured on-chain router with the operator wallet.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// SnapshotMode runs only the NAV snapshot archiver. It is intended to be
// embedded alongside an engine deployment that shares the process; standalone
// it archives the funds created during its own lifetime.
func (a *App) SnapshotMode(ctx context.Context, deps *Dependencies) error {
	if deps.BlobWriter == nil {
		return fmt.Errorf("app: snapshot mode requires S3 blob storage")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the on-chain API plus the NAV snapshot archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the API server (and, when Redis is wired, the
// WebSocket hub) to the given errgroup. The server is shut down gracefully
// when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	// WebSocket hub requires the Redis signal bus.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Funds:  handler.NewFundHandler(deps.FundSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		Limiter:         deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startArchiver adds the periodic NAV snapshot archiver to the errgroup when
// blob storage is wired and snapshots are enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.BlobWriter == nil {
		return
	}

	archiver := s3blob.NewArchiver(
		deps.BlobWriter,
		deps.FundSvc,
		a.cfg.Snapshot.Interval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return archiver.Run(ctx)
	})
}
