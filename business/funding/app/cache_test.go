package app

import (
	"testing"
	"time"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

// Spec §8 property 1 "Staleness eviction": an entry older than the stale
// threshold is evicted on read.
func TestRatesCache_StalenessEviction(t *testing.T) {
	c := NewRatesCache(50*time.Millisecond, 0, nil)
	c.Set("BTCUSDT", domain.FundingRatePair{Symbol: "BTCUSDT", RecordedAt: time.Now()})

	if _, ok := c.Get("BTCUSDT"); !ok {
		t.Fatal("expected entry to be present immediately after Set")
	}

	time.Sleep(75 * time.Millisecond)

	if _, ok := c.Get("BTCUSDT"); ok {
		t.Error("expected entry to be evicted once past the stale threshold")
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d, want 0 after eviction", c.Size())
	}
}

// Spec §8 property 10 "Ordering per symbol" (validated coalescing): a
// strictly-older RecordedAt never overwrites a newer stored entry.
func TestRatesCache_Set_DropsOutOfOrderWrites(t *testing.T) {
	c := NewRatesCache(time.Minute, 0, nil)

	newer := time.Now()
	older := newer.Add(-time.Second)

	c.Set("ETHUSDT", domain.FundingRatePair{Symbol: "ETHUSDT", RecordedAt: newer, BestPair: &domain.BestArbitragePair{LongExchange: domain.OKX}})
	c.Set("ETHUSDT", domain.FundingRatePair{Symbol: "ETHUSDT", RecordedAt: older, BestPair: &domain.BestArbitragePair{LongExchange: domain.Binance}})

	entry, ok := c.Get("ETHUSDT")
	if !ok {
		t.Fatal("expected entry present")
	}
	if entry.BestPair.LongExchange != domain.OKX {
		t.Errorf("entry overwritten by an out-of-order write: longExchange = %v, want okx", entry.BestPair.LongExchange)
	}
}

func TestRatesCache_UpdateFromWebSocket_MergesExchanges(t *testing.T) {
	c := NewRatesCache(time.Minute, 0, nil)

	c.UpdateFromWebSocket(FundingRateReceived{
		Exchange: domain.Binance, Symbol: "BTCUSDT", ReceivedAt: time.Now(),
	}, domain.Interval8h)
	c.UpdateFromWebSocket(FundingRateReceived{
		Exchange: domain.OKX, Symbol: "BTCUSDT", ReceivedAt: time.Now().Add(time.Millisecond),
	}, domain.Interval8h)

	entry, ok := c.Get("BTCUSDT")
	if !ok {
		t.Fatal("expected entry present")
	}
	if len(entry.Exchanges) != 2 {
		t.Errorf("exchanges = %d, want 2", len(entry.Exchanges))
	}
}
