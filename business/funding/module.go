// Package funding implements the funding-rate ingestion and cross-exchange
// arbitrage-signal bounded context: per-exchange websocket clients, the
// rates cache, pair builder, monitor, opportunity tracker, and broadcast
// layer.
package funding

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/app"
	fundingDI "github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/di"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/bingx"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/binance"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/broadcasthub"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/gateio"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/memrepo"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/mexc"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/okx"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/restfallback"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/config"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/di"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/monolith"
)

// Module implements the funding bounded context.
type Module struct{}

// RegisterServices wires the cache, per-exchange client factories, monitor,
// tracker, broadcaster, and pub/sub hub into the container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, fundingDI.RatesCache, func(sr di.ServiceRegistry) *app.RatesCache {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewRatesCache(cfg.Cache.StaleThreshold(), cfg.Cache.CleanupInterval(), log)
	})

	di.RegisterToken(c, fundingDI.Monitor, func(sr di.ServiceRegistry) *app.Monitor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		cache := fundingDI.GetRatesCache(sr)

		exchanges := parseExchanges(cfg.Funding.MonitoredExchanges)
		factories := buildClientFactories(exchanges, log)

		return app.NewMonitor(app.MonitorConfig{
			Exchanges:      exchanges,
			Symbols:        defaultSymbols,
			Basis:          domain.DefaultTimeBasis,
			UpdateInterval: cfg.Funding.CheckInterval(),
			CoalesceWindow: cfg.Funding.CoalesceWindow(),
			Fallbacks:      buildFallbacks(exchanges, log),
		}, cache, factories, log)
	})

	di.RegisterToken(c, fundingDI.Tracker, func(sr di.ServiceRegistry) *app.Tracker {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		t := app.NewTracker(memrepo.New(), log)
		t.SetThresholds(
			decimal.NewFromFloat(cfg.Tracker.EntryThresholdPercent),
			decimal.NewFromFloat(cfg.Tracker.ExitThresholdPercent),
		)
		t.Attach(fundingDI.GetMonitor(sr))
		return t
	})

	di.RegisterToken(c, fundingDI.Hub, func(sr di.ServiceRegistry) *broadcasthub.Hub {
		return broadcasthub.New()
	})

	di.RegisterToken(c, fundingDI.Broadcaster, func(sr di.ServiceRegistry) *app.Broadcaster {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		cache := fundingDI.GetRatesCache(sr)
		tracker := fundingDI.GetTracker(sr)
		hub := fundingDI.GetHub(sr)

		return app.NewBroadcaster(app.BroadcastConfig{
			Interval: cfg.Broadcast.Interval(),
			EntryAPY: decimal.NewFromFloat(cfg.Tracker.EntryThresholdPercent),
		}, cache, tracker, hub, log)
	})

	return nil
}

// Startup brings the monitor's exchange pools up and starts the broadcaster.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	sr := mono.Services()

	monitor := fundingDI.GetMonitor(sr)
	if err := monitor.Start(ctx); err != nil {
		return err
	}

	fundingDI.GetBroadcaster(sr).Start()

	log.Info(ctx, "funding module started")
	return nil
}

// defaultSymbols is the starter symbol set subscribed on every exchange at
// startup. A production deployment would source this from config or a
// discovery call; the engine's symbol set is otherwise exchange-agnostic.
var defaultSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

func parseExchanges(names []string) []domain.ExchangeId {
	out := make([]domain.ExchangeId, 0, len(names))
	for _, n := range names {
		id, err := domain.ParseExchangeId(strings.ToLower(n))
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func buildClientFactories(exchanges []domain.ExchangeId, log logger.LoggerInterface) map[domain.ExchangeId]app.ClientFactory {
	factories := make(map[domain.ExchangeId]app.ClientFactory, len(exchanges))
	for _, ex := range exchanges {
		switch ex {
		case domain.Binance:
			factories[ex] = func() (app.ExchangeClient, error) { return binance.NewClient(log), nil }
		case domain.OKX:
			factories[ex] = func() (app.ExchangeClient, error) { return okx.NewClient(log), nil }
		case domain.MEXC:
			factories[ex] = func() (app.ExchangeClient, error) { return mexc.NewClient(log), nil }
		case domain.GateIO:
			factories[ex] = func() (app.ExchangeClient, error) { return gateio.NewClient(log), nil }
		case domain.BingX:
			factories[ex] = func() (app.ExchangeClient, error) { return bingx.NewClient(log), nil }
		}
	}
	return factories
}

// buildFallbacks wires a REST mark-price fallback (spec §4.1 "Failure
// semantics") for every configured exchange that has one available;
// exchanges with no configured REST endpoint in infra/restfallback are
// simply left without a fallback poller.
func buildFallbacks(exchanges []domain.ExchangeId, log logger.LoggerInterface) map[domain.ExchangeId]app.MarkPriceFetcher {
	fallbacks := make(map[domain.ExchangeId]app.MarkPriceFetcher, len(exchanges))
	for _, ex := range exchanges {
		client, err := restfallback.New(ex, log)
		if err != nil {
			continue
		}
		fallbacks[ex] = client
	}
	return fallbacks
}
