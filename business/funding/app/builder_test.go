package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

func mustRate(t *testing.T, ex domain.ExchangeId, symbol string, rate decimal.Decimal) domain.ExchangeRateData {
	t.Helper()
	rec, err := domain.NewFundingRateRecord(ex, symbol, rate, time.Now().Add(time.Hour), time.Now())
	if err != nil {
		t.Fatalf("NewFundingRateRecord: %v", err)
	}
	return domain.ExchangeRateData{Rate: rec}
}

func TestPairBuilder_LongShortAssignment(t *testing.T) {
	// Spec §8 property 5: rates {A: +0.01, B: -0.02} -> long=B, short=A, spreadPercent=3.0
	b := NewPairBuilder(domain.Basis8h, nil)

	exchanges := map[domain.ExchangeId]domain.ExchangeRateData{
		domain.Binance: mustRate(t, domain.Binance, "BTCUSDT", decimal.NewFromFloat(0.01)),
		domain.OKX:     mustRate(t, domain.OKX, "BTCUSDT", decimal.NewFromFloat(-0.02)),
	}
	// Force both to basis=8h native so normalization is a no-op.
	for k, v := range exchanges {
		iv := domain.Interval8h
		v.OriginalFundingInterval = &iv
		exchanges[k] = v
	}

	pair, err := b.Build("BTCUSDT", exchanges, time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if pair.BestPair == nil {
		t.Fatal("expected BestPair")
	}
	if pair.BestPair.LongExchange != domain.OKX {
		t.Errorf("longExchange = %v, want okx", pair.BestPair.LongExchange)
	}
	if pair.BestPair.ShortExchange != domain.Binance {
		t.Errorf("shortExchange = %v, want binance", pair.BestPair.ShortExchange)
	}
	if !pair.BestPair.SpreadPercent.Equal(decimal.NewFromFloat(3.0)) {
		t.Errorf("spreadPercent = %s, want 3.0", pair.BestPair.SpreadPercent)
	}
}

func TestPairBuilder_TimeBasisNormalisation(t *testing.T) {
	// Spec §8 property 7.
	iv4h := domain.Interval4h
	d := domain.ExchangeRateData{
		Rate:                    domain.FundingRateRecord{FundingRate: decimal.NewFromFloat(0.001)},
		OriginalFundingInterval: &iv4h,
	}

	rate, _ := d.NormalizedRate(domain.Basis8h)
	if !rate.Equal(decimal.NewFromFloat(0.002)) {
		t.Errorf("8h basis: got %s, want 0.002", rate)
	}

	rate, _ = d.NormalizedRate(domain.Basis4h)
	if !rate.Equal(decimal.NewFromFloat(0.001)) {
		t.Errorf("4h basis: got %s, want 0.001", rate)
	}

	d.Normalized = map[domain.TimeBasis]decimal.Decimal{domain.Basis1h: decimal.NewFromFloat(0.00025)}
	rate, _ = d.NormalizedRate(domain.Basis1h)
	if !rate.Equal(decimal.NewFromFloat(0.00025)) {
		t.Errorf("1h basis with precomputed value: got %s, want 0.00025", rate)
	}
}

func TestPairBuilder_SymbolMismatchGuard(t *testing.T) {
	b := NewPairBuilder(domain.Basis8h, nil)
	exchanges := map[domain.ExchangeId]domain.ExchangeRateData{
		domain.Binance: mustRate(t, domain.Binance, "ETHUSDT", decimal.Zero),
	}
	if _, err := b.Build("BTCUSDT", exchanges, time.Now()); err == nil {
		t.Fatal("expected symbol mismatch error")
	}
}

func TestPairBuilder_SinglePriceDataNoBestPair(t *testing.T) {
	b := NewPairBuilder(domain.Basis8h, nil)
	exchanges := map[domain.ExchangeId]domain.ExchangeRateData{
		domain.Binance: mustRate(t, domain.Binance, "BTCUSDT", decimal.NewFromFloat(0.01)),
	}
	pair, err := b.Build("BTCUSDT", exchanges, time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if pair.BestPair != nil {
		t.Error("expected nil BestPair with a single exchange")
	}
}

func BenchmarkPairBuilder_Build(b *testing.B) {
	builder := NewPairBuilder(domain.Basis8h, nil)
	exchanges := map[domain.ExchangeId]domain.ExchangeRateData{
		domain.Binance: {Rate: domain.FundingRateRecord{Exchange: domain.Binance, Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(0.01)}},
		domain.OKX:     {Rate: domain.FundingRateRecord{Exchange: domain.OKX, Symbol: "BTCUSDT", FundingRate: decimal.NewFromFloat(-0.02)}},
	}
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = builder.Build("BTCUSDT", exchanges, now)
	}
}
