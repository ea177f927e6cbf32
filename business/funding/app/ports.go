// Package app holds the funding-rate engine's orchestration logic: the
// connection pool, rates cache, pair builder, monitor, opportunity tracker,
// and broadcast layer. It depends only on the ports declared here and on
// business/funding/domain; exchange-specific wiring lives in infra.
package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

// FundingRateReceived is the normalised event an ExchangeClient emits once a
// native exchange message has been decoded (spec §4.1).
type FundingRateReceived struct {
	Exchange        domain.ExchangeId
	Symbol          string
	FundingRate     decimal.Decimal
	NextFundingTime time.Time
	NextFundingRate *decimal.Decimal
	MarkPrice       *decimal.Decimal
	Source          string
	ReceivedAt      time.Time
}

// ClientStats reports diagnostic counters for an exchange client, including
// the bounded latency-sample summary (spec §4.1).
type ClientStats struct {
	SubscribedSymbols int
	Reconnects        int
	Latency           LatencyStats
}

// LatencyStats summarises the bounded (1000-sample) server/receive latency
// window. Zero value (Count==0) means no samples yet.
type LatencyStats struct {
	Count              int
	AvgMs, P50, P95, P99, MinMs, MaxMs float64
}

// ExchangeClient owns one physical connection (or connection-with-retry
// loop) to a single exchange endpoint. Implementations live under infra/.
//
// Handlers registered via the OnXxx setters must be non-blocking: they
// parse, emit, and return without awaiting I/O, so the socket reader stays
// hot (spec §5).
type ExchangeClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	// Destroy performs idempotent, synchronous cleanup: clearing timers and
	// handler registrations even if called more than once.
	Destroy() error

	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error
	SubscribedSymbols() []string
	IsReady() bool
	Stats() ClientStats

	OnFundingRate(func(FundingRateReceived))
	OnMarkPrice(func(symbol string, price decimal.Decimal))
	OnConnected(func())
	OnDisconnected(func())
	OnError(func(error))
	OnReconnecting(func(attempt int))
	OnMaxRetriesReached(func())
}

// ClientFactory constructs a fresh, unconnected ExchangeClient. The pool
// calls this each time it needs a new socket for an exchange.
type ClientFactory func() (ExchangeClient, error)

// MarkPriceFetcher is the REST fallback port the Monitor polls for an
// exchange's mark price while that exchange's pool is not ready (spec §4.1
// "Failure semantics", supplemented feature "Per-exchange REST fallback").
// infra/restfallback provides the concrete implementation.
type MarkPriceFetcher interface {
	MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Repository is the injected persistence port for opportunity lifecycle
// events (spec §4.6, §6 "Persisted state"). No implementation lives in this
// core; infra/memrepo provides a default in-memory one for standalone runs.
type Repository interface {
	Upsert(ctx context.Context, opp domain.ActiveOpportunity) error
	MarkAsEnded(ctx context.Context, key domain.OpportunityKey, lastSpread, lastAPY decimal.Decimal) error
}

// RateUpdatedObserver receives the monitor's rate-updated stream. The
// tracker is the canonical observer; the broadcast layer reads via the cache
// on its own cadence rather than observing directly.
type RateUpdatedObserver interface {
	OnRateUpdated(pair domain.FundingRatePair)
}

// RateUpdatedFunc adapts a plain function to RateUpdatedObserver.
type RateUpdatedFunc func(pair domain.FundingRatePair)

func (f RateUpdatedFunc) OnRateUpdated(pair domain.FundingRatePair) { f(pair) }

// CacheNotifyHook is a fire-and-forget observer invoked by RatesCache.setAll
// (spec §4.3 "Notification hook"). Errors are logged by the cache, never
// propagated.
type CacheNotifyHook func(pairs []domain.FundingRatePair) error
