package memrepo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

func TestRepository_UpsertThenSnapshot(t *testing.T) {
	r := New()
	opp := domain.ActiveOpportunity{
		Symbol: "BTCUSDT", LongExchange: domain.OKX, ShortExchange: domain.Binance,
		LastSpread: decimal.NewFromFloat(1.5), LastAPY: decimal.NewFromInt(900), DetectedAt: time.Now(),
	}

	if err := r.Upsert(context.Background(), opp); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot length = %d, want 1", len(snap))
	}
	if snap[0].Symbol != "BTCUSDT" {
		t.Errorf("Snapshot[0].Symbol = %q, want BTCUSDT", snap[0].Symbol)
	}
}

func TestRepository_MarkAsEndedRemovesFromSnapshot(t *testing.T) {
	r := New()
	opp := domain.ActiveOpportunity{Symbol: "BTCUSDT", LongExchange: domain.OKX, ShortExchange: domain.Binance}
	_ = r.Upsert(context.Background(), opp)

	if err := r.MarkAsEnded(context.Background(), opp.Key(), decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("MarkAsEnded: %v", err)
	}

	if snap := r.Snapshot(); len(snap) != 0 {
		t.Errorf("Snapshot length = %d after MarkAsEnded, want 0", len(snap))
	}
}

func TestRepository_MarkAsEndedUnknownKeyIsNoop(t *testing.T) {
	r := New()
	key := domain.OpportunityKey{Symbol: "ETHUSDT", LongExchange: domain.MEXC, ShortExchange: domain.GateIO}
	if err := r.MarkAsEnded(context.Background(), key, decimal.Zero, decimal.Zero); err != nil {
		t.Errorf("MarkAsEnded on unknown key should be a no-op, got error: %v", err)
	}
}
