package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/apperror"
)

// FundingRateRecord is one exchange's funding-rate observation for a symbol.
// Immutable after construction; derived values (annualised rate, percentage
// strings) are computed on demand rather than stored.
type FundingRateRecord struct {
	Exchange        ExchangeId
	Symbol          string
	FundingRate     decimal.Decimal
	NextFundingTime time.Time
	MarkPrice       *decimal.Decimal
	IndexPrice      *decimal.Decimal
	RecordedAt      time.Time
}

// NewFundingRateRecord validates and constructs a FundingRateRecord.
func NewFundingRateRecord(exchange ExchangeId, symbol string, fundingRate decimal.Decimal, nextFundingTime, recordedAt time.Time) (FundingRateRecord, error) {
	if symbol == "" {
		return FundingRateRecord{}, apperror.New(apperror.CodeEmptySymbol)
	}
	if !exchange.Valid() {
		return FundingRateRecord{}, apperror.New(apperror.CodeUnknownExchange, apperror.WithContext(string(exchange)))
	}
	return FundingRateRecord{
		Exchange:        exchange,
		Symbol:          symbol,
		FundingRate:     fundingRate,
		NextFundingTime: nextFundingTime,
		RecordedAt:      recordedAt,
	}, nil
}

// PercentString renders the raw funding rate as a percentage, e.g. "0.0100%".
func (r FundingRateRecord) PercentString() string {
	return r.FundingRate.Mul(decimal.NewFromInt(100)).StringFixed(4) + "%"
}

// FundingInterval is a native funding-settlement cadence in hours.
type FundingInterval int

const (
	Interval1h  FundingInterval = 1
	Interval2h  FundingInterval = 2
	Interval4h  FundingInterval = 4
	Interval8h  FundingInterval = 8
	Interval24h FundingInterval = 24
)

// DefaultFundingInterval is used when an exchange event omits its native
// interval (spec §4.3, updateFromWebSocket).
const DefaultFundingInterval = Interval8h

// TimeBasis is the normalisation target interval used to make rates
// comparable across exchanges with differing native funding intervals.
type TimeBasis int

const (
	Basis1h  TimeBasis = 1
	Basis4h  TimeBasis = 4
	Basis8h  TimeBasis = 8
	Basis24h TimeBasis = 24
)

// DefaultTimeBasis is the engine-wide default comparison basis.
const DefaultTimeBasis = Basis8h

// ExchangeRateData pairs a raw rate record with optional price and
// time-basis bookkeeping needed by the pair builder's normalisation rule.
type ExchangeRateData struct {
	Rate                    FundingRateRecord
	Price                   *decimal.Decimal
	OriginalFundingInterval *FundingInterval
	Normalized              map[TimeBasis]decimal.Decimal
}

// NormalizedRate implements the builder's normalisation rule (spec §4.4):
//  1. a precomputed value for B is used only when the native interval differs
//     from B (otherwise the raw rate already IS the B-basis value);
//  2. when the native interval equals B, the raw rate is returned unchanged;
//  3. when the native interval is known and differs, scale by B/native;
//  4. otherwise fall back to the raw rate, and the caller should log a warning.
func (d ExchangeRateData) NormalizedRate(basis TimeBasis) (rate decimal.Decimal, usedFallback bool) {
	native := d.OriginalFundingInterval

	if d.Normalized != nil {
		if v, ok := d.Normalized[basis]; ok && (native == nil || FundingInterval(basis) != *native) {
			return v, false
		}
	}

	if native == nil {
		return d.Rate.FundingRate, true
	}
	if FundingInterval(basis) == *native {
		return d.Rate.FundingRate, false
	}

	scale := decimal.NewFromInt(int64(basis)).Div(decimal.NewFromInt(int64(*native)))
	return d.Rate.FundingRate.Mul(scale), false
}
