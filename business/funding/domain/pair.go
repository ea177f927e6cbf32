package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/apperror"
)

// BestArbitragePair is the highest-spread exchange pair for a symbol under a
// given time basis. Invariant: LongExchange != ShortExchange; SpreadPercent
// is non-negative.
type BestArbitragePair struct {
	LongExchange            ExchangeId
	ShortExchange           ExchangeId
	SpreadPercent           decimal.Decimal
	SpreadAnnualized        decimal.Decimal
	PriceDiffPercent        *decimal.Decimal
	IsPriceDirectionCorrect *bool
}

// FundingRatePair is a symbol's cross-exchange view: every exchange's latest
// rate data plus the best pair computed across them.
// Invariant: every Exchanges[e].Rate.Symbol == Symbol.
type FundingRatePair struct {
	Symbol     string
	Exchanges  map[ExchangeId]ExchangeRateData
	BestPair   *BestArbitragePair
	RecordedAt time.Time
}

// Validate checks the symbol-mismatch guard (spec §4.4).
func (p FundingRatePair) Validate() error {
	for ex, data := range p.Exchanges {
		if data.Rate.Symbol != p.Symbol {
			return apperror.New(apperror.CodeSymbolMismatch,
				apperror.WithContext(string(ex)+": "+data.Rate.Symbol+" != "+p.Symbol))
		}
	}
	return nil
}

// CachedRatePair is a FundingRatePair plus the time it was last written to
// the cache, used for staleness eviction.
type CachedRatePair struct {
	FundingRatePair
	CachedAt time.Time
}

// IsStale reports whether the entry exceeds threshold as of now.
func (c CachedRatePair) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(c.CachedAt) > threshold
}

// OpportunityKey identifies an ActiveOpportunity by the triple the spec
// names: symbol, long exchange, short exchange.
type OpportunityKey struct {
	Symbol        string
	LongExchange  ExchangeId
	ShortExchange ExchangeId
}
