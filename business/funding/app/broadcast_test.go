package app

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

type fakePublisher struct {
	mu          sync.Mutex
	subscribers map[string]int
	published   map[string][][]byte
}

func newFakePublisher(subscribers map[string]int) *fakePublisher {
	return &fakePublisher{subscribers: subscribers, published: make(map[string][][]byte)}
}

func (p *fakePublisher) Publish(channel string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[channel] = append(p.published[channel], payload)
}

func (p *fakePublisher) SubscriberCount(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribers[channel]
}

func (p *fakePublisher) count(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published[channel])
}

// Spec §8 property 8 "Diff broadcast": an unchanged pair is published only
// once; a subsequent tick with identical hash inputs is suppressed.
func TestBroadcaster_SuppressesUnchangedUpdates(t *testing.T) {
	cache := NewRatesCache(time.Minute, 0, nil)
	cache.Set("BTCUSDT", domain.FundingRatePair{
		Symbol:     "BTCUSDT",
		RecordedAt: time.Now(),
		Exchanges:  map[domain.ExchangeId]domain.ExchangeRateData{domain.Binance: {}},
		BestPair: &domain.BestArbitragePair{
			LongExchange: domain.OKX, ShortExchange: domain.Binance,
			SpreadPercent: decimal.NewFromFloat(1.5), SpreadAnnualized: decimal.NewFromInt(900),
		},
	})

	pub := newFakePublisher(map[string]int{ChannelRatesUpdate: 1})
	b := NewBroadcaster(BroadcastConfig{}, cache, nil, pub, nil)

	b.broadcastUpdates()
	b.broadcastUpdates()

	if got := pub.count(ChannelRatesUpdate); got != 1 {
		t.Errorf("published %d times, want 1 (second tick should be suppressed by unchanged hash)", got)
	}
}

func TestBroadcaster_SkipsPublishWithZeroSubscribers(t *testing.T) {
	cache := NewRatesCache(time.Minute, 0, nil)
	cache.Set("BTCUSDT", domain.FundingRatePair{Symbol: "BTCUSDT", RecordedAt: time.Now()})

	pub := newFakePublisher(map[string]int{ChannelRatesUpdate: 0})
	b := NewBroadcaster(BroadcastConfig{}, cache, nil, pub, nil)

	b.broadcastUpdates()

	if got := pub.count(ChannelRatesUpdate); got != 0 {
		t.Errorf("published %d times with zero subscribers, want 0", got)
	}
}

func TestBroadcaster_RepublishesOnChange(t *testing.T) {
	cache := NewRatesCache(time.Minute, 0, nil)
	pub := newFakePublisher(map[string]int{ChannelRatesUpdate: 1})
	b := NewBroadcaster(BroadcastConfig{}, cache, nil, pub, nil)

	cache.Set("BTCUSDT", domain.FundingRatePair{
		Symbol: "BTCUSDT", RecordedAt: time.Now(),
		BestPair: &domain.BestArbitragePair{SpreadPercent: decimal.NewFromFloat(1.0), SpreadAnnualized: decimal.NewFromInt(500)},
	})
	b.broadcastUpdates()

	cache.Set("BTCUSDT", domain.FundingRatePair{
		Symbol: "BTCUSDT", RecordedAt: time.Now().Add(time.Second),
		BestPair: &domain.BestArbitragePair{SpreadPercent: decimal.NewFromFloat(2.0), SpreadAnnualized: decimal.NewFromInt(600)},
	})
	b.broadcastUpdates()

	if got := pub.count(ChannelRatesUpdate); got != 2 {
		t.Errorf("published %d times across two distinct states, want 2", got)
	}
}

// Spec §8 scenario S6: a burst of distinct symbol updates must still collapse
// to one rates:update message per tick, whose payload array length equals
// the number of distinct symbols.
func TestBroadcaster_OneMessagePerTickWithFullSymbolSet(t *testing.T) {
	cache := NewRatesCache(time.Minute, 0, nil)
	const symbolCount = 500
	for i := 0; i < symbolCount; i++ {
		symbol := fmt.Sprintf("SYM%dUSDT", i)
		cache.Set(symbol, domain.FundingRatePair{
			Symbol:     symbol,
			RecordedAt: time.Now(),
			BestPair: &domain.BestArbitragePair{
				LongExchange: domain.OKX, ShortExchange: domain.Binance,
				SpreadPercent: decimal.NewFromFloat(1.0), SpreadAnnualized: decimal.NewFromInt(500),
			},
		})
	}

	pub := newFakePublisher(map[string]int{ChannelRatesUpdate: 1})
	b := NewBroadcaster(BroadcastConfig{}, cache, nil, pub, nil)

	b.broadcastUpdates()

	if got := pub.count(ChannelRatesUpdate); got != 1 {
		t.Fatalf("published %d rates:update messages, want exactly 1", got)
	}

	var msg RatesUpdateMessage
	if err := json.Unmarshal(pub.published[ChannelRatesUpdate][0], &msg); err != nil {
		t.Fatalf("unmarshal rates:update payload: %v", err)
	}
	if len(msg.Rates) != symbolCount {
		t.Errorf("payload carries %d entries, want %d", len(msg.Rates), symbolCount)
	}
}

// Spec §6 status classification: spreadAnnualized at/above the entry
// threshold is "opportunity", in the 0.75x-to-entry band is "approaching",
// otherwise "normal".
func TestBroadcaster_EntryStatusClassification(t *testing.T) {
	cache := NewRatesCache(time.Minute, 0, nil)
	cache.Set("OPPORTUNITY", domain.FundingRatePair{
		Symbol: "OPPORTUNITY", RecordedAt: time.Now(),
		BestPair: &domain.BestArbitragePair{SpreadAnnualized: decimal.NewFromInt(900)},
	})
	cache.Set("APPROACHING", domain.FundingRatePair{
		Symbol: "APPROACHING", RecordedAt: time.Now(),
		BestPair: &domain.BestArbitragePair{SpreadAnnualized: decimal.NewFromInt(700)},
	})
	cache.Set("NORMAL", domain.FundingRatePair{
		Symbol: "NORMAL", RecordedAt: time.Now(),
		BestPair: &domain.BestArbitragePair{SpreadAnnualized: decimal.NewFromInt(100)},
	})

	pub := newFakePublisher(map[string]int{ChannelRatesUpdate: 1})
	b := NewBroadcaster(BroadcastConfig{EntryAPY: decimal.NewFromInt(800)}, cache, nil, pub, nil)
	b.broadcastUpdates()

	var msg RatesUpdateMessage
	if err := json.Unmarshal(pub.published[ChannelRatesUpdate][0], &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := map[string]string{}
	for _, e := range msg.Rates {
		got[e.Symbol] = e.Status
	}
	want := map[string]string{"OPPORTUNITY": StatusOpportunity, "APPROACHING": StatusApproaching, "NORMAL": StatusNormal}
	for symbol, status := range want {
		if got[symbol] != status {
			t.Errorf("status[%s] = %q, want %q", symbol, got[symbol], status)
		}
	}
}
