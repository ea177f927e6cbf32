// Package bingx adapts BingX perpetual swap's gzip-framed WS channel to
// wsclient.Adapter (spec §4.1, §9). Native symbol form is "BTC-USDT". BingX
// gzip-compresses every frame; decompression is handled centrally by
// wsclient.Client before Decode ever sees the payload (spec §9), so Decode
// here only ever receives plain JSON.
package bingx

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

// BaseWSURL is BingX's perpetual swap market-data WebSocket endpoint.
const BaseWSURL = "wss://open-api-swap.bingx.com/swap-market"

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

func (a *Adapter) Exchange() domain.ExchangeId { return domain.BingX }
func (a *Adapter) DialURL() string             { return a.baseURL }

// nativeSymbol converts "BTCUSDT" to BingX's dashed contract form
// "BTC-USDT".
func nativeSymbol(symbol string) (string, error) {
	base, quote, ok := domain.SplitSymbol(symbol)
	if !ok {
		return "", fmt.Errorf("bingx: cannot split symbol %q into base/quote", symbol)
	}
	return base + "-" + quote, nil
}

func fundingChannelID(native string) string {
	return native + "@markPrice"
}

type subscribeFrame struct {
	ID       string `json:"id"`
	RefID    string `json:"reqType"`
	DataType string `json:"dataType"`
}

func (a *Adapter) SubscribeFrames(symbols []string) ([][]byte, error) {
	return a.buildFrames("sub", symbols)
}

func (a *Adapter) UnsubscribeFrames(symbols []string) ([][]byte, error) {
	return a.buildFrames("unsub", symbols)
}

func (a *Adapter) buildFrames(reqType string, symbols []string) ([][]byte, error) {
	frames := make([][]byte, 0, len(symbols))
	for i, s := range symbols {
		native, err := nativeSymbol(s)
		if err != nil {
			return nil, err
		}
		id := fmt.Sprintf("%s-%d-%d", reqType, time.Now().UnixNano(), i)
		frame, err := json.Marshal(subscribeFrame{ID: id, RefID: reqType, DataType: fundingChannelID(native)})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// pushMessage is BingX's decompressed push envelope. "ping" frames are
// plain text rather than JSON and are handled before unmarshalling.
type pushMessage struct {
	DataType string          `json:"dataType"`
	Data     json.RawMessage `json:"data"`
	Code     *int            `json:"code"`
	Msg      string          `json:"msg"`
}

type markPriceData struct {
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}

func (a *Adapter) Decode(raw []byte, emit wsclient.Emitter) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "Ping" {
		emit.ProtocolDrop("ping")
		return nil
	}

	var msg pushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode bingx frame: %w", err)
	}

	if msg.Code != nil && *msg.Code != 0 {
		emit.ProtocolDrop(fmt.Sprintf("bingx error %d: %s", *msg.Code, msg.Msg))
		return nil
	}

	if !strings.HasSuffix(msg.DataType, "@markPrice") {
		emit.ProtocolDrop("unhandled dataType: " + msg.DataType)
		return nil
	}

	var d markPriceData
	if err := json.Unmarshal(msg.Data, &d); err != nil {
		return fmt.Errorf("decode bingx markPrice data: %w", err)
	}

	rate, err := decimal.NewFromString(d.FundingRate)
	if err != nil {
		return fmt.Errorf("parse bingx funding rate %q: %w", d.FundingRate, err)
	}
	price, err := decimal.NewFromString(d.MarkPrice)
	if err != nil {
		return fmt.Errorf("parse bingx mark price %q: %w", d.MarkPrice, err)
	}

	emit.FundingRate(app.FundingRateReceived{
		Exchange:        domain.BingX,
		Symbol:          canonicalSymbol(d.Symbol),
		FundingRate:     rate,
		NextFundingTime: time.UnixMilli(d.NextFundingTime),
		MarkPrice:       &price,
	}, 0) // BingX markPrice payload carries no server-timestamp field to sample latency from.

	return nil
}

// canonicalSymbol converts "BTC-USDT" back to "BTCUSDT".
func canonicalSymbol(native string) string {
	return strings.ReplaceAll(native, "-", "")
}

var _ wsclient.Adapter = (*Adapter)(nil)
