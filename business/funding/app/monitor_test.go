package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

func newTestMonitor(t *testing.T, coalesce time.Duration) *Monitor {
	t.Helper()
	cache := NewRatesCache(time.Minute, 0, nil)
	cfg := MonitorConfig{
		Exchanges:      []domain.ExchangeId{domain.Binance, domain.OKX},
		Symbols:        []string{"BTCUSDT"},
		Basis:          domain.Basis8h,
		CoalesceWindow: coalesce,
	}
	return NewMonitor(cfg, cache, map[domain.ExchangeId]ClientFactory{}, nil)
}

// Spec §8 property: a burst of per-symbol events inside the coalesce window
// collapses into a single pair rebuild and a single observer notification.
func TestMonitor_CoalescesBurstIntoSingleNotify(t *testing.T) {
	m := newTestMonitor(t, 30*time.Millisecond)

	var notifyCount int32
	m.Subscribe(RateUpdatedFunc(func(pair domain.FundingRatePair) {
		atomic.AddInt32(&notifyCount, 1)
	}))

	m.handleFundingRate(domain.Binance, FundingRateReceived{
		Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(0.01), ReceivedAt: time.Now(),
	})
	m.handleFundingRate(domain.OKX, FundingRateReceived{
		Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(-0.02), ReceivedAt: time.Now(),
	})

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&notifyCount); got != 1 {
		t.Fatalf("notifyCount = %d, want 1", got)
	}

	cached, ok := m.cache.Get("BTCUSDT")
	if !ok {
		t.Fatal("expected cached pair after coalesced rebuild")
	}
	if cached.BestPair == nil {
		t.Fatal("expected BestPair computed from both exchanges")
	}
	if len(cached.Exchanges) != 2 {
		t.Errorf("exchanges tracked = %d, want 2", len(cached.Exchanges))
	}
}

func TestMonitor_IsReadyWithNoPools(t *testing.T) {
	m := newTestMonitor(t, DefaultCoalesceWindow)
	if !m.IsReady() {
		t.Error("IsReady with zero configured pools should be vacuously true")
	}
}

// Spec §8 scenario S5: a dial failure on one exchange must not prevent the
// other configured exchanges from reaching ready, and Start must still
// return successfully so the monitor keeps running.
func TestMonitor_StartIsolatesPerExchangeFailure(t *testing.T) {
	healthyFactory := func() (ExchangeClient, error) {
		return &fakeClient{}, nil
	}
	failingFactory := func() (ExchangeClient, error) {
		return nil, errors.New("dial refused")
	}

	cache := NewRatesCache(time.Minute, 0, nil)
	cfg := MonitorConfig{
		Exchanges: []domain.ExchangeId{domain.Binance, domain.OKX, domain.MEXC, domain.GateIO, domain.BingX},
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Basis:     domain.Basis8h,
	}
	m := NewMonitor(cfg, cache, map[domain.ExchangeId]ClientFactory{
		domain.Binance: healthyFactory,
		domain.OKX:     healthyFactory,
		domain.MEXC:    healthyFactory,
		domain.GateIO:  healthyFactory,
		domain.BingX:   failingFactory,
	}, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error, want nil (per-pool failures must be isolated): %v", err)
	}
	defer m.Shutdown(context.Background())

	m.poolsMu.RLock()
	bingxPool := m.pools[domain.BingX]
	otherReady := true
	for ex, p := range m.pools {
		if ex == domain.BingX {
			continue
		}
		if !p.IsReady() {
			otherReady = false
		}
	}
	m.poolsMu.RUnlock()

	if !otherReady {
		t.Error("expected the four healthy exchanges to be ready despite BingX's dial failure")
	}
	if bingxPool.IsReady() {
		t.Error("expected the BingX pool to remain not-ready after every client failed to dial")
	}
}

type fakeMarkPriceFetcher struct {
	price decimal.Decimal
	err   error
	calls atomic.Int32
}

func (f *fakeMarkPriceFetcher) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.calls.Add(1)
	return f.price, f.err
}

// Spec §4.1 "Failure semantics": while an exchange's pool is not ready, the
// REST fallback is polled and refreshes the mark price of a symbol/exchange
// pair the cache already knows about, without touching its funding rate.
func TestMonitor_FallbackPollerRefreshesMarkPriceWhenNotReady(t *testing.T) {
	cache := NewRatesCache(time.Minute, 0, nil)
	fetcher := &fakeMarkPriceFetcher{price: decimal.NewFromFloat(42.5)}

	cfg := MonitorConfig{
		Exchanges: []domain.ExchangeId{domain.Binance},
		Symbols:   []string{"BTCUSDT"},
		Basis:     domain.Basis8h,
		Fallbacks: map[domain.ExchangeId]MarkPriceFetcher{domain.Binance: fetcher},
	}
	failingFactory := func() (ExchangeClient, error) { return nil, errors.New("dial refused") }
	m := NewMonitor(cfg, cache, map[domain.ExchangeId]ClientFactory{domain.Binance: failingFactory}, nil)

	m.handleFundingRate(domain.Binance, FundingRateReceived{
		Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(0.01), ReceivedAt: time.Now(),
	})
	time.Sleep(20 * time.Millisecond) // the cache write above is synchronous; this only lets background work settle

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Shutdown(context.Background())

	m.pollFallbacks()

	if fetcher.calls.Load() == 0 {
		t.Fatal("expected the fallback fetcher to be polled while the pool is not ready")
	}

	cached, ok := cache.Get("BTCUSDT")
	if !ok {
		t.Fatal("expected the symbol to remain cached")
	}
	data, ok := cached.Exchanges[domain.Binance]
	if !ok || data.Price == nil {
		t.Fatal("expected the fallback poller to populate the mark price")
	}
	if !data.Price.Equal(fetcher.price) {
		t.Errorf("mark price = %s, want %s", data.Price, fetcher.price)
	}
}

func TestMonitor_ShutdownStopsPendingTimers(t *testing.T) {
	m := newTestMonitor(t, time.Hour)
	m.handleFundingRate(domain.Binance, FundingRateReceived{
		Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(0.01), ReceivedAt: time.Now(),
	})

	m.pendingMu.Lock()
	pendingBefore := len(m.pending)
	m.pendingMu.Unlock()
	if pendingBefore != 1 {
		t.Fatalf("pending timers = %d, want 1", pendingBefore)
	}

	m.Shutdown(context.Background())

	m.pendingMu.Lock()
	pendingAfter := len(m.pending)
	m.pendingMu.Unlock()
	if pendingAfter != 0 {
		t.Errorf("pending timers after shutdown = %d, want 0", pendingAfter)
	}
}
