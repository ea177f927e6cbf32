// Package gateio adapts Gate.io's unified futures WS channels
// ("futures.funding_rate"/"futures.tickers") to wsclient.Adapter (spec §4.1,
// §9). Native symbol form is the ccxt-unified swap id, e.g. "BTC/USDT:USDT".
package gateio

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

// BaseWSURL is Gate.io's USDT-margined futures WebSocket endpoint.
const BaseWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

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

func (a *Adapter) Exchange() domain.ExchangeId { return domain.GateIO }
func (a *Adapter) DialURL() string             { return a.baseURL }

// nativeSymbol converts "BTCUSDT" to the ccxt-unified swap form
// "BTC/USDT:USDT" that this deployment's Gate.io gateway expects contract
// identifiers in.
func nativeSymbol(symbol string) (string, error) {
	base, quote, ok := domain.SplitSymbol(symbol)
	if !ok {
		return "", fmt.Errorf("gateio: cannot split symbol %q into base/quote", symbol)
	}
	return fmt.Sprintf("%s/%s:%s", base, quote, quote), nil
}

type wsFrame struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event"`
	Payload []string `json:"payload"`
}

func (a *Adapter) SubscribeFrames(symbols []string) ([][]byte, error) {
	return a.buildFrames("subscribe", symbols)
}

func (a *Adapter) UnsubscribeFrames(symbols []string) ([][]byte, error) {
	return a.buildFrames("unsubscribe", symbols)
}

func (a *Adapter) buildFrames(event string, symbols []string) ([][]byte, error) {
	natives := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n, err := nativeSymbol(s)
		if err != nil {
			return nil, err
		}
		natives = append(natives, n)
	}

	now := time.Now().Unix()
	frames := make([][]byte, 0, 2)
	for _, channel := range []string{"futures.funding_rate", "futures.tickers"} {
		frame, err := json.Marshal(wsFrame{Time: now, Channel: channel, Event: event, Payload: natives})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

type pushFrame struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *pushError      `json:"error"`
	Result  json.RawMessage `json:"result"`
}

type pushError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type fundingRateEntry struct {
	Contract string `json:"contract"`
	Rate     string `json:"r"`
	Time     int64  `json:"t"`
}

type tickerEntry struct {
	Contract string `json:"contract"`
	Last     string `json:"last"`
	MarkPrice string `json:"mark_price"`
}

func (a *Adapter) Decode(raw []byte, emit wsclient.Emitter) error {
	var frame pushFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("decode gateio frame: %w", err)
	}

	if frame.Error != nil {
		emit.ProtocolDrop(fmt.Sprintf("gateio error %d: %s", frame.Error.Code, frame.Error.Message))
		return nil
	}
	if frame.Event != "update" {
		return nil // subscribe/unsubscribe ack
	}

	switch frame.Channel {
	case "futures.funding_rate":
		var entries []fundingRateEntry
		if err := json.Unmarshal(frame.Result, &entries); err != nil {
			return fmt.Errorf("decode gateio funding-rate result: %w", err)
		}
		for _, e := range entries {
			rate, err := decimal.NewFromString(e.Rate)
			if err != nil {
				return fmt.Errorf("parse gateio funding rate %q: %w", e.Rate, err)
			}
			emit.FundingRate(app.FundingRateReceived{
				Exchange:    domain.GateIO,
				Symbol:      canonicalSymbol(e.Contract),
				FundingRate: rate,
			}, frame.Time*1000)
		}

	case "futures.tickers":
		var entries []tickerEntry
		if err := json.Unmarshal(frame.Result, &entries); err != nil {
			return fmt.Errorf("decode gateio tickers result: %w", err)
		}
		for _, e := range entries {
			priceStr := e.MarkPrice
			if priceStr == "" {
				priceStr = e.Last
			}
			if priceStr == "" {
				continue
			}
			price, err := decimal.NewFromString(priceStr)
			if err != nil {
				return fmt.Errorf("parse gateio price %q: %w", priceStr, err)
			}
			emit.MarkPrice(canonicalSymbol(e.Contract), price)
		}

	default:
		emit.ProtocolDrop("unhandled channel: " + frame.Channel)
	}

	return nil
}

// canonicalSymbol converts "BTC/USDT:USDT" back to "BTCUSDT".
func canonicalSymbol(contract string) string {
	base, rest, ok := strings.Cut(contract, "/")
	if !ok {
		return contract
	}
	quote, _, _ := strings.Cut(rest, ":")
	return base + quote
}

var _ wsclient.Adapter = (*Adapter)(nil)
