// Package okx adapts OKX's public "funding-rate" and "mark-price" WS
// channels to wsclient.Adapter (spec §4.1, §9). Native symbol form is
// "BTC-USDT-SWAP".
package okx

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

// BaseWSURL is OKX's public-data WebSocket endpoint.
const BaseWSURL = "wss://ws.okx.com:8443/ws/v5/public"

// Adapter implements wsclient.Adapter for OKX perpetual swaps.
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

func (a *Adapter) Exchange() domain.ExchangeId { return domain.OKX }
func (a *Adapter) DialURL() string             { return a.baseURL }

// nativeSymbol converts "BTCUSDT" to OKX's "BTC-USDT-SWAP" instId form.
func nativeSymbol(symbol string) (string, error) {
	base, quote, ok := domain.SplitSymbol(symbol)
	if !ok {
		return "", fmt.Errorf("okx: cannot split symbol %q into base/quote", symbol)
	}
	return fmt.Sprintf("%s-%s-SWAP", base, quote), nil
}

type channelArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subscribeFrame struct {
	Op   string       `json:"op"`
	Args []channelArg `json:"args"`
}

func (a *Adapter) SubscribeFrames(symbols []string) ([][]byte, error) {
	return a.buildFrame("subscribe", symbols)
}

func (a *Adapter) UnsubscribeFrames(symbols []string) ([][]byte, error) {
	return a.buildFrame("unsubscribe", symbols)
}

func (a *Adapter) buildFrame(op string, symbols []string) ([][]byte, error) {
	args := make([]channelArg, 0, len(symbols)*2)
	for _, s := range symbols {
		inst, err := nativeSymbol(s)
		if err != nil {
			return nil, err
		}
		args = append(args,
			channelArg{Channel: "funding-rate", InstID: inst},
			channelArg{Channel: "mark-price", InstID: inst},
		)
	}
	frame, err := json.Marshal(subscribeFrame{Op: op, Args: args})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

// pushEnvelope wraps OKX's channel push messages.
type pushEnvelope struct {
	Arg  channelArg        `json:"arg"`
	Data []json.RawMessage `json:"data"`
	Event string           `json:"event"`
	Code  string           `json:"code"`
	Msg   string           `json:"msg"`
}

type fundingRateData struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	NextFundingRate string `json:"nextFundingRate"`
	FundingTime     string `json:"fundingTime"`
	TS              string `json:"ts"`
}

type markPriceData struct {
	InstID    string `json:"instId"`
	MarkPx    string `json:"markPx"`
	TS        string `json:"ts"`
}

func (a *Adapter) Decode(raw []byte, emit wsclient.Emitter) error {
	var env pushEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode okx frame: %w", err)
	}

	if env.Event != "" {
		if env.Event == "error" {
			if strings.Contains(env.Msg, "doesn't exist") || strings.Contains(env.Code, "51001") {
				emit.ProtocolDrop(env.Msg)
				return nil
			}
			return fmt.Errorf("okx protocol error %s: %s", env.Code, env.Msg)
		}
		return nil // subscribe/unsubscribe ack
	}

	switch env.Arg.Channel {
	case "funding-rate":
		for _, raw := range env.Data {
			var d fundingRateData
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("decode okx funding-rate data: %w", err)
			}
			if err := a.emitFundingRate(d, emit); err != nil {
				return err
			}
		}
	case "mark-price":
		for _, raw := range env.Data {
			var d markPriceData
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("decode okx mark-price data: %w", err)
			}
			price, err := decimal.NewFromString(d.MarkPx)
			if err != nil {
				return fmt.Errorf("parse okx mark price %q: %w", d.MarkPx, err)
			}
			emit.MarkPrice(canonicalSymbol(d.InstID), price)
		}
	default:
		emit.ProtocolDrop("unhandled channel: " + env.Arg.Channel)
	}

	return nil
}

func (a *Adapter) emitFundingRate(d fundingRateData, emit wsclient.Emitter) error {
	rate, err := decimal.NewFromString(d.FundingRate)
	if err != nil {
		return fmt.Errorf("parse okx funding rate %q: %w", d.FundingRate, err)
	}

	var nextRate *decimal.Decimal
	if d.NextFundingRate != "" {
		if v, err := decimal.NewFromString(d.NextFundingRate); err == nil {
			nextRate = &v
		}
	}

	fundingTimeMs := parseMillis(d.FundingTime)
	serverTS := parseMillis(d.TS)

	emit.FundingRate(app.FundingRateReceived{
		Exchange:        domain.OKX,
		Symbol:          canonicalSymbol(d.InstID),
		FundingRate:     rate,
		NextFundingTime: time.UnixMilli(fundingTimeMs),
		NextFundingRate: nextRate,
	}, serverTS)

	return nil
}

// canonicalSymbol converts "BTC-USDT-SWAP" back to "BTCUSDT".
func canonicalSymbol(instID string) string {
	parts := strings.Split(instID, "-")
	if len(parts) < 2 {
		return instID
	}
	return parts[0] + parts[1]
}

func parseMillis(s string) int64 {
	var v int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		v = v*10 + int64(r-'0')
	}
	return v
}

var _ wsclient.Adapter = (*Adapter)(nil)
