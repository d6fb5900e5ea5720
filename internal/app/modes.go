package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/escrowlabs/escrowd/internal/escrow"
	"github.com/escrowlabs/escrowd/internal/notify"
	"github.com/escrowlabs/escrowd/internal/server"
	"github.com/escrowlabs/escrowd/internal/server/handler"
	"github.com/escrowlabs/escrowd/internal/server/ws"
	"github.com/escrowlabs/escrowd/internal/service"
)

// ServerMode runs the settlement API: the escrow service, the HTTP and
// WebSocket surface, and the notifier listener.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs only the periodic archival of settled wagers to cold
// storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiving is not enabled in config")
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs the settlement API and the archival loop together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g, deps)
	if deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	}

	return g.Wait()
}

// startServer builds the escrow service and HTTP surface and registers their
// goroutines on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	machine := escrow.New(deps.Ledger, a.cfg.Ledger.Namespace, a.logger)
	escrowSvc := service.NewEscrowService(
		deps.WagerStore,
		machine,
		deps.Ledger,
		deps.UoW,
		deps.LockManager,
		deps.WagerCache,
		deps.AuditStore,
		deps.SignalBus,
		a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	healthDeps := map[string]handler.Pinger{
		"postgres": handler.PingFunc(deps.PGClient.Ping),
		"redis":    handler.PingFunc(deps.RedisClient.Ping),
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(healthDeps, a.logger),
		Wagers: handler.NewWagerHandler(escrowSvc, a.logger),
		Audit:  handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return ctx.Err()
		case err := <-errCh:
			return err
		}
	})

	// Operator notifications on wager lifecycle events.
	g.Go(func() error {
		err := notify.Listen(ctx, deps.SignalBus, service.EventChannel, deps.Notifier, a.logger)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	})
}

// startArchiver registers the periodic settled-wager archival loop.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	pass := func() {
		cutoff := time.Now().UTC().Add(-retention)
		n, err := deps.Archiver.ArchiveSettled(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archival pass failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if n > 0 {
			a.logger.InfoContext(ctx, "archival pass complete",
				slog.Int64("archived", n),
				slog.Time("cutoff", cutoff),
			)
		}
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		pass()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				pass()
			}
		}
	})
}
