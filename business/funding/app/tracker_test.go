package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

type fakeRepo struct {
	upserts int
	ended   int
	lastOpp domain.ActiveOpportunity
}

func (f *fakeRepo) Upsert(ctx context.Context, opp domain.ActiveOpportunity) error {
	f.upserts++
	f.lastOpp = opp
	return nil
}

func (f *fakeRepo) MarkAsEnded(ctx context.Context, key domain.OpportunityKey, lastSpread, lastAPY decimal.Decimal) error {
	f.ended++
	return nil
}

func pairWithAPY(apy decimal.Decimal) domain.FundingRatePair {
	return domain.FundingRatePair{
		Symbol: "BTCUSDT",
		BestPair: &domain.BestArbitragePair{
			LongExchange:     domain.OKX,
			ShortExchange:    domain.Binance,
			SpreadPercent:    apy.Div(decimal.NewFromInt(3)),
			SpreadAnnualized: apy,
		},
		RecordedAt: time.Now(),
	}
}

// Spec §8 property 6 "Hysteresis": opens only at/above the entry threshold,
// stays open down to and including the (lower) exit threshold, and closes
// only strictly below it — values between the two thresholds neither open
// nor close.
func TestTracker_Hysteresis(t *testing.T) {
	repo := &fakeRepo{}
	tr := NewTracker(repo, nil)
	m := newTestMonitor(t, time.Hour)
	tr.Attach(m)

	// Below entry: no-op.
	tr.OnRateUpdated(pairWithAPY(decimal.NewFromInt(400)))
	if tr.GetActiveOpportunitiesCount() != 0 {
		t.Fatal("expected no active opportunity below entry threshold")
	}

	// At entry: opens.
	tr.OnRateUpdated(pairWithAPY(EntryThresholdAPY))
	if tr.GetActiveOpportunitiesCount() != 1 {
		t.Fatal("expected opportunity to open at entry threshold")
	}
	if repo.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", repo.upserts)
	}

	// Between thresholds: stays open, refreshes.
	tr.OnRateUpdated(pairWithAPY(decimal.NewFromInt(400)))
	if tr.GetActiveOpportunitiesCount() != 1 {
		t.Fatal("expected opportunity to remain open between thresholds")
	}
	if repo.upserts != 2 {
		t.Fatalf("upserts after refresh = %d, want 2", repo.upserts)
	}

	// Exactly at the exit threshold: spec's Active->Active clause covers
	// APY >= exitThreshold, so this must still refresh, not close.
	tr.OnRateUpdated(pairWithAPY(ExitThresholdAPY))
	if tr.GetActiveOpportunitiesCount() != 1 {
		t.Fatal("expected opportunity to remain open exactly at the exit threshold")
	}
	if repo.ended != 0 {
		t.Fatalf("ended = %d, want 0 at exit threshold boundary", repo.ended)
	}

	// Strictly below exit: closes.
	tr.OnRateUpdated(pairWithAPY(ExitThresholdAPY.Sub(decimal.NewFromInt(1))))
	if tr.GetActiveOpportunitiesCount() != 0 {
		t.Fatal("expected opportunity to close strictly below exit threshold")
	}
	if repo.ended != 1 {
		t.Fatalf("ended = %d, want 1", repo.ended)
	}
}

// Spec §8 property 9 "Tracker detach": once detached, further rate updates
// (even ones that still physically reach OnRateUpdated) are ignored.
func TestTracker_DetachStopsProcessing(t *testing.T) {
	repo := &fakeRepo{}
	tr := NewTracker(repo, nil)
	m := newTestMonitor(t, time.Hour)
	tr.Attach(m)

	tr.OnRateUpdated(pairWithAPY(EntryThresholdAPY))
	if tr.GetActiveOpportunitiesCount() != 1 {
		t.Fatal("expected opportunity to open before detach")
	}

	tr.Detach()
	tr.OnRateUpdated(pairWithAPY(ExitThresholdAPY))

	if tr.GetActiveOpportunitiesCount() != 1 {
		t.Fatal("expected detached tracker to ignore further updates, opportunity should remain open")
	}
	if repo.ended != 0 {
		t.Fatalf("ended = %d, want 0 after detach", repo.ended)
	}
}

func TestTracker_CloseSymbolEndsAllMatchingOpportunities(t *testing.T) {
	repo := &fakeRepo{}
	tr := NewTracker(repo, nil)
	m := newTestMonitor(t, time.Hour)
	tr.Attach(m)

	tr.OnRateUpdated(pairWithAPY(EntryThresholdAPY))
	if tr.GetActiveOpportunitiesCount() != 1 {
		t.Fatal("expected opportunity to open")
	}

	tr.CloseSymbol("BTCUSDT")

	if tr.GetActiveOpportunitiesCount() != 0 {
		t.Error("expected CloseSymbol to end the active opportunity")
	}
	if repo.ended != 1 {
		t.Errorf("ended = %d, want 1", repo.ended)
	}
}
