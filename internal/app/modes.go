package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/server"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/server/handler"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/server/ws"
)

const shutdownGrace = 10 * time.Second

// ServeMode runs the full settlement service: engine hydration from the
// store, the WebSocket hub, and the HTTP API server. It blocks until the
// context is cancelled or a component fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	if err := deps.Settlement.Hydrate(ctx); err != nil {
		return fmt.Errorf("app: hydrate engine: %w", err)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})

	probes := make(map[string]handler.Probe, len(deps.HealthProbes))
	for name, fn := range deps.HealthProbes {
		probes[name] = handler.Probe(fn)
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger, probes),
		Markets:     handler.NewMarketHandler(deps.Settlement, a.logger),
		Trades:      handler.NewTradeHandler(deps.Settlement, a.logger),
		Resolutions: handler.NewResolutionHandler(deps.Settlement, a.logger),
		Positions:   handler.NewPositionHandler(deps.Settlement, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: serve: %w", err)
	}
	return nil
}

// ArchiveMode performs a one-shot sweep over every terminal market and writes
// its settlement record to blob storage, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires blob storage")
	}

	states := []domain.MarketState{
		domain.MarketStateResolved,
		domain.MarketStateInvalid,
		domain.MarketStateCancelled,
	}

	var archived, failed int
	for _, state := range states {
		for offset := 0; ; offset += archiveBatchSize {
			markets, err := deps.MarketStore.ListByState(ctx, state, domain.ListOpts{
				Limit:  archiveBatchSize,
				Offset: offset,
			})
			if err != nil {
				return fmt.Errorf("app: list %s markets: %w", state, err)
			}
			if len(markets) == 0 {
				break
			}
			for _, m := range markets {
				path, err := deps.Archiver.ArchiveMarket(ctx, m.ID)
				if err != nil {
					failed++
					a.logger.Error("archive sweep: market failed",
						"market_id", m.ID,
						"error", err,
					)
					continue
				}
				archived++
				a.logger.Info("archive sweep: market archived",
					"market_id", m.ID,
					"path", path,
				)
			}
			if len(markets) < archiveBatchSize {
				break
			}
		}
	}

	a.logger.Info("archive sweep complete",
		"archived", archived,
		"failed", failed,
	)
	if failed > 0 {
		return fmt.Errorf("app: archive sweep: %d markets failed", failed)
	}
	return nil
}

const archiveBatchSize = 100
