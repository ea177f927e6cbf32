package app

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

// CacheStats mirrors spec §4.3's getStats shape.
type CacheStats struct {
	TotalSymbols     int
	OpportunityCount int
	ApproachingCount int
	MaxSpreadSymbol  string
	MaxSpreadPercent decimal.Decimal
	MaxSpreadAPY     decimal.Decimal
	UptimeSeconds    float64
	LastUpdate       time.Time
}

// RatesCache is the process-wide symbol -> CachedRatePair store. The DI
// container's token memoization (internal/di) is what gives it "at most one
// instance per process" (spec §4.3, "Singleton guarantee"); Destroy resets
// an instance for test teardown rather than tearing down a global.
type RatesCache struct {
	mu      sync.RWMutex
	entries map[string]domain.CachedRatePair

	staleThreshold  time.Duration
	cleanupInterval time.Duration

	hooksMu sync.RWMutex
	hooks   []CacheNotifyHook

	startedAt time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	log logger.LoggerInterface
	now func() time.Time
}

// NewRatesCache constructs a cache with the given staleness/cleanup
// parameters (defaults: 600s stale, 60s sweep, per spec §6).
func NewRatesCache(staleThreshold, cleanupInterval time.Duration, log logger.LoggerInterface) *RatesCache {
	return &RatesCache{
		entries:         make(map[string]domain.CachedRatePair),
		staleThreshold:  staleThreshold,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
		log:             log,
		now:             time.Now,
	}
}

// RegisterNotifyHook adds an observer invoked fire-and-forget by SetAll.
func (c *RatesCache) RegisterNotifyHook(h CacheNotifyHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, h)
}

// MarkStart records the cache's start time for uptime reporting.
func (c *RatesCache) MarkStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = c.now()
}

// Set writes pair for pair.Symbol, honouring the validated-coalescing rule:
// an incoming RecordedAt that is not strictly newer than the stored entry's
// is dropped (spec §9 Open Question — conservative interpretation).
func (c *RatesCache) Set(symbol string, pair domain.FundingRatePair) {
	c.mu.Lock()
	if existing, ok := c.entries[symbol]; ok && !pair.RecordedAt.After(existing.RecordedAt) {
		c.mu.Unlock()
		return
	}
	c.entries[symbol] = domain.CachedRatePair{FundingRatePair: pair, CachedAt: c.now()}
	c.mu.Unlock()
}

// SetAll writes every pair then fires the registered notification hooks
// fire-and-forget; hook errors are logged, never propagated (spec §4.3).
func (c *RatesCache) SetAll(pairs []domain.FundingRatePair) {
	for _, p := range pairs {
		c.Set(p.Symbol, p)
	}

	c.hooksMu.RLock()
	hooks := make([]CacheNotifyHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.RUnlock()

	for _, h := range hooks {
		go func(hook CacheNotifyHook) {
			if err := hook(pairs); err != nil && c.log != nil {
				c.log.Warn(context.Background(), "cache notify hook failed", "error", err)
			}
		}(h)
	}
}

// UpdateFromWebSocket applies one normalised exchange event to the cache
// (spec §4.3). It never recomputes BestPair — that is the builder's job.
func (c *RatesCache) UpdateFromWebSocket(event FundingRateReceived, defaultInterval domain.FundingInterval) {
	rate, err := domain.NewFundingRateRecord(event.Exchange, event.Symbol, event.FundingRate, event.NextFundingTime, event.ReceivedAt)
	if err != nil {
		return
	}
	rate.MarkPrice = event.MarkPrice

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[event.Symbol]
	var exchanges map[domain.ExchangeId]domain.ExchangeRateData
	if ok {
		exchanges = make(map[domain.ExchangeId]domain.ExchangeRateData, len(existing.Exchanges)+1)
		for k, v := range existing.Exchanges {
			exchanges[k] = v
		}
	} else {
		exchanges = make(map[domain.ExchangeId]domain.ExchangeRateData, 1)
	}

	interval := defaultInterval
	if prior, ok := exchanges[event.Exchange]; ok && prior.OriginalFundingInterval != nil {
		interval = *prior.OriginalFundingInterval
	}

	exchanges[event.Exchange] = domain.ExchangeRateData{
		Rate:                    rate,
		Price:                   event.MarkPrice,
		OriginalFundingInterval: &interval,
	}

	recordedAt := event.ReceivedAt
	if ok && !recordedAt.After(existing.RecordedAt) {
		recordedAt = existing.RecordedAt
	}

	pair := domain.FundingRatePair{
		Symbol:     event.Symbol,
		Exchanges:  exchanges,
		BestPair:   nil,
		RecordedAt: recordedAt,
	}
	if ok {
		pair.BestPair = existing.BestPair
	}

	c.entries[event.Symbol] = domain.CachedRatePair{FundingRatePair: pair, CachedAt: c.now()}
}

// UpdateMarkPriceFallback overwrites the cached mark price for an
// already-known exchange/symbol pair without touching its funding rate. The
// REST fallback poller calls this while a websocket client is degraded
// (spec §4.1 "Failure semantics"); it is a no-op for a symbol or exchange
// the cache has never seen over the websocket, since there is nothing to
// fall back for yet.
func (c *RatesCache) UpdateMarkPriceFallback(exchange domain.ExchangeId, symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[symbol]
	if !ok {
		return
	}
	data, ok := existing.Exchanges[exchange]
	if !ok {
		return
	}
	data.Price = &price
	existing.Exchanges[exchange] = data
	c.entries[symbol] = existing
}

// Get returns the entry for symbol, evicting it first if stale.
func (c *RatesCache) Get(symbol string) (domain.CachedRatePair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[symbol]
	if !ok {
		return domain.CachedRatePair{}, false
	}
	if entry.IsStale(c.now(), c.staleThreshold) {
		delete(c.entries, symbol)
		return domain.CachedRatePair{}, false
	}
	return entry, true
}

// GetAll returns every non-stale entry, evicting stale ones it encounters.
func (c *RatesCache) GetAll() []domain.CachedRatePair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictStaleLocked()
}

func (c *RatesCache) evictStaleLocked() []domain.CachedRatePair {
	now := c.now()
	out := make([]domain.CachedRatePair, 0, len(c.entries))
	evicted := 0
	for symbol, entry := range c.entries {
		if entry.IsStale(now, c.staleThreshold) {
			delete(c.entries, symbol)
			evicted++
			continue
		}
		out = append(out, entry)
	}
	if evicted > 0 && c.log != nil {
		c.log.Debug(context.Background(), "cache evicted stale entries", "count", evicted)
	}
	return out
}

// Size returns the number of live (non-evicted-on-read) entries.
func (c *RatesCache) Size() int {
	return len(c.GetAll())
}

// Clear removes every entry.
func (c *RatesCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]domain.CachedRatePair)
}

// Destroy stops the cleanup sweep and clears all state. Idempotent.
func (c *RatesCache) Destroy() {
	c.StopCleanup()
	c.Clear()
}

// StartCleanup launches the periodic staleness sweep (default 60s).
func (c *RatesCache) StartCleanup() {
	if c.cleanupInterval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.mu.Lock()
				c.evictStaleLocked()
				c.mu.Unlock()
			}
		}
	}()
}

// StopCleanup halts the periodic sweep. Idempotent.
func (c *RatesCache) StopCleanup() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// GetStats computes the snapshot summary (spec §4.3). When rates is nil, it
// performs its own GetAll pass; otherwise it reuses the caller's snapshot.
func (c *RatesCache) GetStats(rates []domain.CachedRatePair, opportunityThresholdAPY decimal.Decimal) CacheStats {
	if rates == nil {
		rates = c.GetAll()
	}

	approachingFloor := opportunityThresholdAPY.Mul(decimal.NewFromFloat(0.75))

	stats := CacheStats{TotalSymbols: len(rates)}
	var maxSpread decimal.Decimal
	var lastUpdate time.Time

	for _, r := range rates {
		if r.CachedAt.After(lastUpdate) {
			lastUpdate = r.CachedAt
		}
		if r.BestPair == nil {
			continue
		}
		if r.BestPair.SpreadAnnualized.GreaterThanOrEqual(opportunityThresholdAPY) {
			stats.OpportunityCount++
		} else if r.BestPair.SpreadAnnualized.GreaterThanOrEqual(approachingFloor) {
			stats.ApproachingCount++
		}
		if r.BestPair.SpreadPercent.GreaterThan(maxSpread) {
			maxSpread = r.BestPair.SpreadPercent
			stats.MaxSpreadSymbol = r.Symbol
			stats.MaxSpreadPercent = r.BestPair.SpreadPercent
			stats.MaxSpreadAPY = r.BestPair.SpreadAnnualized
		}
	}

	c.mu.RLock()
	started := c.startedAt
	c.mu.RUnlock()
	if !started.IsZero() {
		stats.UptimeSeconds = c.now().Sub(started).Seconds()
	}
	stats.LastUpdate = lastUpdate

	return stats
}
