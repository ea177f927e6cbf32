// Package domain contains the core domain types for the funding-rate context.
package domain

import "github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/apperror"

// ExchangeId is the closed set of exchanges the engine ingests.
type ExchangeId string

const (
	Binance ExchangeId = "binance"
	OKX     ExchangeId = "okx"
	MEXC    ExchangeId = "mexc"
	GateIO  ExchangeId = "gateio"
	BingX   ExchangeId = "bingx"
)

// AllExchanges lists every known exchange in a fixed, deterministic order.
// Callers that iterate exchanges for tie-breaking (the pair builder) must use
// this order rather than ranging over a map.
var AllExchanges = []ExchangeId{Binance, OKX, MEXC, GateIO, BingX}

// Valid reports whether e is one of the recognised exchanges.
func (e ExchangeId) Valid() bool {
	switch e {
	case Binance, OKX, MEXC, GateIO, BingX:
		return true
	default:
		return false
	}
}

// MaxSymbolsPerConnection returns the per-exchange subscription-limit per
// socket (spec §4.2): 100 for OKX and unlisted exchanges, 20 for Gate.io, 50
// for BingX.
func (e ExchangeId) MaxSymbolsPerConnection() int {
	switch e {
	case GateIO:
		return 20
	case BingX:
		return 50
	default:
		return 100
	}
}

// ParseExchangeId validates a raw string against the known exchange set.
func ParseExchangeId(s string) (ExchangeId, error) {
	e := ExchangeId(s)
	if !e.Valid() {
		return "", apperror.New(apperror.CodeUnknownExchange, apperror.WithContext("exchange: "+s))
	}
	return e, nil
}
