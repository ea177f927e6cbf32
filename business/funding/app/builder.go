package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

// adverseDiffThreshold bounds the magnitude of an acceptable adverse price
// difference (spec §4.4).
const adverseDiffThreshold = 0.0005

var hoursPerYear = decimal.NewFromInt(365 * 24)

// PairBuilder turns a symbol's per-exchange rate data into a FundingRatePair
// with a computed BestPair, under a configured time basis (default 8h).
type PairBuilder struct {
	basis domain.TimeBasis
	log   logger.LoggerInterface
}

// NewPairBuilder constructs a builder for the given time basis.
func NewPairBuilder(basis domain.TimeBasis, log logger.LoggerInterface) *PairBuilder {
	if basis == 0 {
		basis = domain.DefaultTimeBasis
	}
	return &PairBuilder{basis: basis, log: log}
}

// Build produces a FundingRatePair for symbol from exchanges, selecting the
// pair with maximum normalised spread (spec §4.4).
func (b *PairBuilder) Build(symbol string, exchanges map[domain.ExchangeId]domain.ExchangeRateData, recordedAt time.Time) (domain.FundingRatePair, error) {
	pair := domain.FundingRatePair{Symbol: symbol, Exchanges: exchanges, RecordedAt: recordedAt}
	if err := pair.Validate(); err != nil {
		return domain.FundingRatePair{}, err
	}

	pair.BestPair = b.bestPair(exchanges)
	return pair, nil
}

// bestPair iterates unordered pairs among present exchanges in the
// deterministic domain.AllExchanges order (spec's tie-break rule) and
// returns the one with maximum normalised spread.
func (b *PairBuilder) bestPair(exchanges map[domain.ExchangeId]domain.ExchangeRateData) *domain.BestArbitragePair {
	present := make([]domain.ExchangeId, 0, len(exchanges))
	for _, ex := range domain.AllExchanges {
		if _, ok := exchanges[ex]; ok {
			present = append(present, ex)
		}
	}
	if len(present) < 2 {
		return nil
	}

	var best *domain.BestArbitragePair
	var maxSpread decimal.Decimal

	for i := 0; i < len(present); i++ {
		for j := i + 1; j < len(present); j++ {
			e1, e2 := present[i], present[j]
			d1, d2 := exchanges[e1], exchanges[e2]

			r1, fallback1 := d1.NormalizedRate(b.basis)
			r2, fallback2 := d2.NormalizedRate(b.basis)
			if (fallback1 || fallback2) && b.log != nil {
				b.log.Warn(context.Background(), "normalized rate fallback to raw", "exchanges", []string{string(e1), string(e2)})
			}

			spread := r1.Sub(r2).Abs()
			if best != nil && spread.LessThanOrEqual(maxSpread) {
				continue
			}

			long, short := e1, e2
			if r2.LessThan(r1) {
				long, short = e2, e1
			}

			maxSpread = spread
			best = &domain.BestArbitragePair{
				LongExchange:     long,
				ShortExchange:    short,
				SpreadPercent:    spread.Mul(decimal.NewFromInt(100)),
				SpreadAnnualized: spreadAnnualized(spread, b.basis),
			}
			b.applyPriceFields(best, d1.Price, d2.Price, long, e1)
		}
	}

	return best
}

func spreadAnnualized(spread decimal.Decimal, basis domain.TimeBasis) decimal.Decimal {
	periodsPerYear := decimal.NewFromInt(24).Div(decimal.NewFromInt(int64(basis)))
	return spread.Mul(decimal.NewFromInt(365)).Mul(periodsPerYear).Mul(decimal.NewFromInt(100))
}

// applyPriceFields fills PriceDiffPercent/IsPriceDirectionCorrect when both
// legs carry a mark price. e1Price/e2Price are keyed by which of the pair's
// two exchanges (e1) they belong to, so the long/short assignment (which may
// have swapped e1/e2) can be resolved correctly.
func (b *PairBuilder) applyPriceFields(best *domain.BestArbitragePair, e1Price, e2Price *decimal.Decimal, long, e1 domain.ExchangeId) {
	var longPrice, shortPrice *decimal.Decimal
	if long == e1 {
		longPrice, shortPrice = e1Price, e2Price
	} else {
		longPrice, shortPrice = e2Price, e1Price
	}
	if longPrice == nil || shortPrice == nil {
		return
	}

	mid := longPrice.Add(*shortPrice).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return
	}
	diffPercent := shortPrice.Sub(*longPrice).Div(mid).Mul(decimal.NewFromInt(100))
	best.PriceDiffPercent = &diffPercent

	correct := true
	if !shortPrice.IsZero() {
		relDiff := shortPrice.Sub(*longPrice).Div(*shortPrice)
		if relDiff.LessThan(decimal.Zero) && relDiff.Abs().GreaterThan(decimal.NewFromFloat(adverseDiffThreshold)) {
			correct = false
		}
	}
	best.IsPriceDirectionCorrect = &correct
}
