package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActiveOpportunity is a currently-live arbitrage signal for a symbol/pair.
// Identified by the (Symbol, LongExchange, ShortExchange) triple.
type ActiveOpportunity struct {
	Symbol        string
	LongExchange  ExchangeId
	ShortExchange ExchangeId
	LastSpread    decimal.Decimal
	LastAPY       decimal.Decimal
	DetectedAt    time.Time
}

// Key returns the opportunity's identity triple.
func (o ActiveOpportunity) Key() OpportunityKey {
	return OpportunityKey{Symbol: o.Symbol, LongExchange: o.LongExchange, ShortExchange: o.ShortExchange}
}
