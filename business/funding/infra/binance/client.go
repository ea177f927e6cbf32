// Package binance adapts Binance USDⓈ-M futures' combined-stream funding
// rate feed to wsclient.Adapter (spec §4.1, §9). Native symbol form is a
// lowercase concatenation ("btcusdt"), same as the teacher's spot client.
package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/app"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/infra/wsclient"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

const (
	// BaseWSURL is Binance USDⓈ-M futures' combined-stream endpoint.
	BaseWSURL = "wss://fstream.binance.com/stream"
)

// Adapter implements wsclient.Adapter for Binance USDⓈ-M futures.
type Adapter struct {
	baseURL string
	log     logger.LoggerInterface
}

// NewAdapter constructs a Binance Adapter with the production endpoint.
func NewAdapter(log logger.LoggerInterface) *Adapter {
	return &Adapter{baseURL: BaseWSURL, log: log}
}

// NewClient builds a ready-to-connect wsclient.Client for Binance.
func NewClient(log logger.LoggerInterface) *wsclient.Client {
	return wsclient.New(NewAdapter(log), log)
}

func (a *Adapter) Exchange() domain.ExchangeId { return domain.Binance }

// DialURL returns the base streams endpoint; symbol streams are appended via
// SUBSCRIBE frames rather than the URL (combined-stream mode).
func (a *Adapter) DialURL() string { return a.baseURL }

func nativeSymbol(symbol string) string {
	return strings.ToLower(symbol)
}

func markPriceStream(symbol string) string {
	return nativeSymbol(symbol) + "@markPrice@1s"
}

func (a *Adapter) SubscribeFrames(symbols []string) ([][]byte, error) {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, markPriceStream(s))
	}
	req := wsRequest{Method: "SUBSCRIBE", Params: streams, ID: time.Now().UnixNano()}
	frame, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (a *Adapter) UnsubscribeFrames(symbols []string) ([][]byte, error) {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, markPriceStream(s))
	}
	req := wsRequest{Method: "UNSUBSCRIBE", Params: streams, ID: time.Now().UnixNano()}
	frame, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// streamEnvelope wraps every combined-stream message.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// markPriceEvent is the markPrice@1s payload.
type markPriceEvent struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}

func (a *Adapter) Decode(raw []byte, emit wsclient.Emitter) error {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode binance frame: %w", err)
	}

	if env.Stream == "" {
		// Subscription ack frames ({"result":null,"id":n}) carry no "stream" key.
		var ack struct {
			ID *int64 `json:"id"`
		}
		if json.Unmarshal(raw, &ack) == nil && ack.ID != nil {
			return nil
		}
	}

	if !strings.HasSuffix(env.Stream, "@markPrice@1s") {
		emit.ProtocolDrop("unhandled stream: " + env.Stream)
		return nil
	}

	var mp markPriceEvent
	if err := json.Unmarshal(env.Data, &mp); err != nil {
		return fmt.Errorf("decode binance markPrice payload: %w", err)
	}

	rate, err := decimal.NewFromString(mp.FundingRate)
	if err != nil {
		return fmt.Errorf("parse funding rate %q: %w", mp.FundingRate, err)
	}
	price, err := decimal.NewFromString(mp.MarkPrice)
	if err != nil {
		return fmt.Errorf("parse mark price %q: %w", mp.MarkPrice, err)
	}

	emit.FundingRate(app.FundingRateReceived{
		Exchange:        domain.Binance,
		Symbol:          strings.ToUpper(mp.Symbol),
		FundingRate:     rate,
		NextFundingTime: time.UnixMilli(mp.NextFundingTime),
		MarkPrice:       &price,
	}, mp.EventTime)

	return nil
}

var _ wsclient.Adapter = (*Adapter)(nil)
