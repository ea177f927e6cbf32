package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

// DefaultUpdateInterval is the monitor's periodic full-cache stats log pass
// (spec §4.5).
const DefaultUpdateInterval = 300 * time.Second

// DefaultCoalesceWindow batches bursts of per-symbol funding-rate events
// (every exchange pushing mark-price updates around the same moment) into a
// single pair rebuild (spec §4.5 "Coalescing").
const DefaultCoalesceWindow = 100 * time.Millisecond

// DefaultFallbackInterval is how often the Monitor polls each degraded
// exchange's REST fallback for a mark price (spec §4.1 "Failure semantics").
const DefaultFallbackInterval = 30 * time.Second

// MonitorConfig configures the Monitor.
type MonitorConfig struct {
	Exchanges      []domain.ExchangeId
	Symbols        []string
	Basis          domain.TimeBasis
	UpdateInterval time.Duration
	CoalesceWindow time.Duration

	// Fallbacks supplies an optional REST mark-price poller per exchange,
	// consulted only while that exchange's pool is not ready.
	Fallbacks        map[domain.ExchangeId]MarkPriceFetcher
	FallbackInterval time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.CoalesceWindow <= 0 {
		c.CoalesceWindow = DefaultCoalesceWindow
	}
	if c.FallbackInterval <= 0 {
		c.FallbackInterval = DefaultFallbackInterval
	}
	if c.Basis == 0 {
		c.Basis = domain.DefaultTimeBasis
	}
	return c
}

// Monitor is the funding-rate engine's top-level orchestrator (spec §4.5):
// one ConnectionPool per configured exchange, all feeding a shared
// RatesCache through a coalescing window and the PairBuilder.
type Monitor struct {
	cfg     MonitorConfig
	cache   *RatesCache
	builder *PairBuilder
	log     logger.LoggerInterface

	poolsMu sync.RWMutex
	pools   map[domain.ExchangeId]*ConnectionPool

	observersMu sync.RWMutex
	observers   []RateUpdatedObserver

	pendingMu sync.Mutex
	pending   map[string]*time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor constructs a Monitor. factories supplies one ClientFactory per
// configured exchange; the caller (the DI module) is responsible for
// wiring each exchange's infra adapter into its factory.
func NewMonitor(cfg MonitorConfig, cache *RatesCache, factories map[domain.ExchangeId]ClientFactory, log logger.LoggerInterface) *Monitor {
	cfg = cfg.withDefaults()
	m := &Monitor{
		cfg:     cfg,
		cache:   cache,
		builder: NewPairBuilder(cfg.Basis, log),
		log:     log,
		pools:   make(map[domain.ExchangeId]*ConnectionPool),
		pending: make(map[string]*time.Timer),
		stopCh:  make(chan struct{}),
	}

	for _, ex := range cfg.Exchanges {
		factory, ok := factories[ex]
		if !ok {
			continue
		}
		m.pools[ex] = NewConnectionPool(ex, factory, true, log, PoolEventHandlers{
			OnFundingRate: func(exchange domain.ExchangeId) func(int, FundingRateReceived) {
				return func(_ int, event FundingRateReceived) { m.handleFundingRate(exchange, event) }
			}(ex),
			OnError: func(exchange domain.ExchangeId) func(int, error) {
				return func(_ int, err error) {
					if log != nil {
						log.Warn(context.Background(), "exchange client error", "exchange", exchange, "error", err)
					}
				}
			}(ex),
		})
	}

	return m
}

// Start brings up every configured exchange's pool in parallel and
// subscribes the full symbol set on each (spec §4.5 "Startup").
//
// A single exchange's pool failing to come up (e.g. a dial timeout on its
// first client) never aborts startup for the others: each pool's
// SubscribeAll error is logged and isolated, not propagated, so the monitor
// continues emitting rate-updated for symbols on every exchange that did
// come up (spec §8 scenario S5). The ticker always starts.
func (m *Monitor) Start(ctx context.Context) error {
	m.cache.MarkStart()
	m.cache.StartCleanup()

	var g errgroup.Group

	m.poolsMu.RLock()
	pools := make([]*ConnectionPool, 0, len(m.pools))
	exchanges := make([]domain.ExchangeId, 0, len(m.pools))
	for ex, p := range m.pools {
		pools = append(pools, p)
		exchanges = append(exchanges, ex)
	}
	m.poolsMu.RUnlock()

	for i, pool := range pools {
		pool, exchange := pool, exchanges[i]
		g.Go(func() error {
			if err := pool.SubscribeAll(ctx, m.cfg.Symbols); err != nil && m.log != nil {
				m.log.Warn(context.Background(), "exchange pool failed to subscribe all symbols",
					"exchange", exchange, "error", err)
			}
			return nil
		})
	}

	// g.Wait only waits for every pool's subscribe pass to finish; per-pool
	// errors were already absorbed above, so it never returns non-nil.
	_ = g.Wait()

	m.wg.Add(1)
	go m.runUpdateTicker()

	if len(m.cfg.Fallbacks) > 0 {
		m.wg.Add(1)
		go m.runFallbackPoller()
	}

	return nil
}

func (m *Monitor) runUpdateTicker() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			stats := m.cache.GetStats(nil, EntryThresholdAPY)
			if m.log != nil {
				m.log.Info(context.Background(), "funding rate snapshot",
					"symbols", stats.TotalSymbols,
					"opportunities", stats.OpportunityCount,
					"approaching", stats.ApproachingCount,
					"maxSpreadSymbol", stats.MaxSpreadSymbol)
			}
		}
	}
}

// runFallbackPoller periodically checks every configured fallback's pool
// readiness and, for any exchange that is not ready, polls its REST
// mark-price fallback for every configured symbol (spec §4.1 "Failure
// semantics"). Results only ever refresh a symbol/exchange pair the cache
// has already seen over the websocket; they never mint a new one.
func (m *Monitor) runFallbackPoller() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.FallbackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.pollFallbacks()
		}
	}
}

func (m *Monitor) pollFallbacks() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FallbackInterval)
	defer cancel()

	for exchange, fetcher := range m.cfg.Fallbacks {
		m.poolsMu.RLock()
		pool := m.pools[exchange]
		m.poolsMu.RUnlock()
		if pool == nil || pool.IsReady() {
			continue
		}

		for _, symbol := range m.cfg.Symbols {
			price, err := fetcher.MarkPrice(ctx, symbol)
			if err != nil {
				if m.log != nil {
					m.log.Debug(context.Background(), "REST fallback mark price failed",
						"exchange", exchange, "symbol", symbol, "error", err)
				}
				continue
			}
			m.cache.UpdateMarkPriceFallback(exchange, symbol, price)
		}
	}
}

// Subscribe registers an observer for the coalesced rate-updated stream.
func (m *Monitor) Subscribe(obs RateUpdatedObserver) {
	m.observersMu.Lock()
	defer m.observersMu.Unlock()
	m.observers = append(m.observers, obs)
}

// handleFundingRate applies one exchange event to the cache then schedules
// (or resets) that symbol's coalesced rebuild (spec §4.5 "Coalescing
// window"): bursts of events within CoalesceWindow collapse into one
// pair rebuild and one observer notification.
func (m *Monitor) handleFundingRate(exchange domain.ExchangeId, event FundingRateReceived) {
	event.Exchange = exchange
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	m.cache.UpdateFromWebSocket(event, domain.DefaultFundingInterval)

	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if t, ok := m.pending[event.Symbol]; ok {
		t.Reset(m.cfg.CoalesceWindow)
		return
	}
	symbol := event.Symbol
	m.pending[symbol] = time.AfterFunc(m.cfg.CoalesceWindow, func() {
		m.pendingMu.Lock()
		delete(m.pending, symbol)
		m.pendingMu.Unlock()
		m.rebuildAndNotify(symbol)
	})
}

func (m *Monitor) rebuildAndNotify(symbol string) {
	cached, ok := m.cache.Get(symbol)
	if !ok {
		return
	}

	pair, err := m.builder.Build(symbol, cached.Exchanges, time.Now())
	if err != nil {
		if m.log != nil {
			m.log.Warn(context.Background(), "pair build failed", "symbol", symbol, "error", err)
		}
		return
	}

	m.cache.Set(symbol, pair)

	m.observersMu.RLock()
	observers := make([]RateUpdatedObserver, len(m.observers))
	copy(observers, m.observers)
	m.observersMu.RUnlock()

	for _, obs := range observers {
		obs.OnRateUpdated(pair)
	}
}

// IsReady reports whether every configured exchange's pool is ready.
func (m *Monitor) IsReady() bool {
	m.poolsMu.RLock()
	defer m.poolsMu.RUnlock()
	for _, p := range m.pools {
		if !p.IsReady() {
			return false
		}
	}
	return true
}

// Shutdown stops the update ticker and disconnects every pool (spec §4.5
// "Graceful shutdown").
func (m *Monitor) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.cache.StopCleanup()

	m.pendingMu.Lock()
	for _, t := range m.pending {
		t.Stop()
	}
	m.pending = make(map[string]*time.Timer)
	m.pendingMu.Unlock()

	m.poolsMu.RLock()
	pools := make([]*ConnectionPool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.poolsMu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range pools {
		wg.Add(1)
		go func(p *ConnectionPool) {
			defer wg.Done()
			p.Destroy()
		}(p)
	}
	wg.Wait()
}
