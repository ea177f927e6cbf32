// Package wsclient is the shared base for every per-exchange ExchangeClient
// implementation (spec §4.1, §9 "dynamic dispatch across exchanges"). It
// owns the parts of the contract that do not vary by exchange — reconnect
// discipline (via internal/wsconn), health-check timing, the mark-price LRU,
// latency tracking, and gzip-magic detection — and delegates the
// exchange-native wire format to a per-exchange Adapter.
package wsclient

import (
	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/app"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

// Adapter supplies everything that genuinely differs between exchanges: the
// endpoint, the wire-level subscribe/unsubscribe frames, and message
// decoding. Adapter methods must not block; Decode in particular runs
// directly on the WebSocket read loop's callback (spec §5 "non-blocking").
type Adapter interface {
	// Exchange identifies which ExchangeId this adapter serves.
	Exchange() domain.ExchangeId

	// DialURL returns the WebSocket endpoint to connect to.
	DialURL() string

	// SubscribeFrames builds the wire messages needed to subscribe to
	// symbols. Most exchanges return a single frame; some batch.
	SubscribeFrames(symbols []string) ([][]byte, error)

	// UnsubscribeFrames builds the wire messages needed to unsubscribe.
	UnsubscribeFrames(symbols []string) ([][]byte, error)

	// Decode parses one raw (already gzip-decompressed, if applicable)
	// message and reports any funding-rate or mark-price events to emit.
	// Decode must not itself perform I/O.
	Decode(raw []byte, emit Emitter) error
}

// Emitter is handed to Adapter.Decode so it can report zero or more events
// from a single frame without allocating a result slice.
type Emitter interface {
	// FundingRate reports a decoded funding-rate event. serverTimestampMs is
	// the server-reported timestamp in epoch milliseconds, or 0 if the
	// exchange's message didn't carry one (latency is not sampled for that
	// event in that case).
	FundingRate(event app.FundingRateReceived, serverTimestampMs int64)
	// MarkPrice reports a standalone mark-price update (e.g. a dedicated
	// mark-price stream, distinct from the funding-rate stream).
	MarkPrice(symbol string, price decimal.Decimal)
	// ProtocolDrop reports a debug-level protocol drop (spec §7 "Protocol":
	// symbol-unavailable codes are dropped, not surfaced as errors).
	ProtocolDrop(reason string)
}
