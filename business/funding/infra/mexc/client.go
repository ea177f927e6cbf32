// Package mexc adapts MEXC contract's "push.funding.rate"/"push.ticker" WS
// channels to wsclient.Adapter (spec §4.1, §9). Native symbol form is
// "BTC_USDT".
package mexc

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

// BaseWSURL is MEXC contract's public WebSocket endpoint.
const BaseWSURL = "wss://contract.mexc.com/edge"

type Adapter struct {
	baseURL string
	log     logger.LoggerInterface
}

func NewAdapter(log logger.LoggerInterface) *Adapter {
	return &Adapter{baseURL: BaseWSURL, log: log}
}

func NewClient(log logger.LoggerInterface) *wsclient.Client {
	return wsclient.New(NewAdapter(log), log)
}

func (a *Adapter) Exchange() domain.ExchangeId { return domain.MEXC }
func (a *Adapter) DialURL() string             { return a.baseURL }

func nativeSymbol(symbol string) (string, error) {
	base, quote, ok := domain.SplitSymbol(symbol)
	if !ok {
		return "", fmt.Errorf("mexc: cannot split symbol %q into base/quote", symbol)
	}
	return base + "_" + quote, nil
}

type subscribeFrame struct {
	Method string            `json:"method"`
	Param  map[string]string `json:"param"`
}

func (a *Adapter) SubscribeFrames(symbols []string) ([][]byte, error) {
	return a.buildFrames("sub.funding.rate", "sub.ticker", symbols)
}

func (a *Adapter) UnsubscribeFrames(symbols []string) ([][]byte, error) {
	return a.buildFrames("unsub.funding.rate", "unsub.ticker", symbols)
}

func (a *Adapter) buildFrames(fundingMethod, tickerMethod string, symbols []string) ([][]byte, error) {
	frames := make([][]byte, 0, len(symbols)*2)
	for _, s := range symbols {
		native, err := nativeSymbol(s)
		if err != nil {
			return nil, err
		}
		for _, method := range []string{fundingMethod, tickerMethod} {
			frame, err := json.Marshal(subscribeFrame{Method: method, Param: map[string]string{"symbol": native}})
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

type pushMessage struct {
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	Data    json.RawMessage `json:"data"`
	TS      int64           `json:"ts"`
}

type fundingRateData struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	NextSettle  int64  `json:"nextSettleTime"`
	CollectCycle int64 `json:"collectCycle"`
}

type tickerData struct {
	LastPrice   string `json:"lastPrice"`
	FairPrice   string `json:"fairPrice"`
}

func (a *Adapter) Decode(raw []byte, emit wsclient.Emitter) error {
	var msg pushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode mexc frame: %w", err)
	}

	switch {
	case strings.HasSuffix(msg.Channel, "funding.rate"):
		var d fundingRateData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return fmt.Errorf("decode mexc funding-rate data: %w", err)
		}
		rate, err := decimal.NewFromString(d.FundingRate)
		if err != nil {
			return fmt.Errorf("parse mexc funding rate %q: %w", d.FundingRate, err)
		}
		symbol := canonicalSymbol(valueOr(d.Symbol, msg.Symbol))
		emit.FundingRate(app.FundingRateReceived{
			Exchange:        domain.MEXC,
			Symbol:          symbol,
			FundingRate:     rate,
			NextFundingTime: time.UnixMilli(d.NextSettle),
		}, msg.TS)

	case strings.HasSuffix(msg.Channel, "ticker"):
		var d tickerData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return fmt.Errorf("decode mexc ticker data: %w", err)
		}
		priceStr := d.FairPrice
		if priceStr == "" {
			priceStr = d.LastPrice
		}
		if priceStr == "" {
			emit.ProtocolDrop("mexc ticker without price")
			return nil
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return fmt.Errorf("parse mexc price %q: %w", priceStr, err)
		}
		emit.MarkPrice(canonicalSymbol(msg.Symbol), price)

	case msg.Channel == "rs.error":
		emit.ProtocolDrop("mexc error: " + string(msg.Data))

	default:
		emit.ProtocolDrop("unhandled channel: " + msg.Channel)
	}

	return nil
}

func valueOr(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

// canonicalSymbol converts "BTC_USDT" back to "BTCUSDT".
func canonicalSymbol(native string) string {
	return strings.ReplaceAll(native, "_", "")
}

var _ wsclient.Adapter = (*Adapter)(nil)
