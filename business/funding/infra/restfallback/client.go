// Package restfallback provides a per-exchange REST mark-price lookup used
// when a WS client's health check reports degraded (spec §4.1 "Failure
// semantics", supplemented feature "Per-exchange REST fallback"). Calls are
// gated by internal/breaker so a struggling REST endpoint cannot pile up
// blocked goroutines on top of an already-degraded exchange.
package restfallback

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/apperror"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/breaker"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/httpclient"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

// endpoints maps each exchange to its public mark-price REST route. Only
// Binance and OKX are wired today; the rest fall back to an error until a
// deployment needs them (spec's Non-goals exclude DEX legs, not exchange
// breadth, so this is left open rather than hard-coded closed).
var endpoints = map[domain.ExchangeId]endpoint{
	domain.Binance: {baseURL: "https://fapi.binance.com", path: "/fapi/v1/premiumIndex", symbolParam: "symbol", priceField: "markPrice"},
	domain.OKX:     {baseURL: "https://www.okx.com", path: "/api/v5/public/mark-price", symbolParam: "instId", priceField: "markPx"},
}

type endpoint struct {
	baseURL     string
	path        string
	symbolParam string
	priceField  string
}

const requestTimeout = 5 * time.Second

// Client fetches a single exchange's mark price over REST, circuit-breaker
// guarded.
type Client struct {
	exchange domain.ExchangeId
	ep       endpoint
	http     httpclient.Client
	breaker  *breaker.Breaker[decimal.Decimal]
	log      logger.LoggerInterface
}

// New builds a REST fallback client for exchange, or an error if the
// exchange has no configured REST mark-price endpoint.
func New(exchange domain.ExchangeId, log logger.LoggerInterface) (*Client, error) {
	ep, ok := endpoints[exchange]
	if !ok {
		return nil, apperror.New(apperror.CodeRestFallbackFailed,
			apperror.WithContext("no REST fallback endpoint configured for "+string(exchange)))
	}

	httpClient, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(string(exchange)+"-rest-fallback"),
		httpclient.WithBaseURL(ep.baseURL),
		httpclient.WithRequestTimeout(requestTimeout),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("build REST fallback client for %s: %w", exchange, err)
	}

	return &Client{
		exchange: exchange,
		ep:       ep,
		http:     httpClient,
		breaker: breaker.New[decimal.Decimal](breaker.Settings{
			Name:                "restfallback-" + string(exchange),
			ConsecutiveFailures: 3,
			Timeout:             30 * time.Second,
		}),
		log: log,
	}, nil
}

// MarkPrice fetches symbol's current mark price via REST, short-circuiting
// through the breaker if the endpoint has been failing.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	native, ok := translate(c.exchange, symbol)
	if !ok {
		return decimal.Decimal{}, apperror.New(apperror.CodeSymbolMismatch,
			apperror.WithContext("cannot translate "+symbol+" for "+string(c.exchange)))
	}

	price, err := c.breaker.Execute(ctx, func() (decimal.Decimal, error) {
		return c.fetch(ctx, native)
	})
	if err != nil {
		return decimal.Decimal{}, apperror.New(apperror.CodeRestFallbackFailed,
			apperror.WithCause(err), apperror.WithContext(string(c.exchange)+"/"+symbol))
	}
	return price, nil
}

func (c *Client) fetch(ctx context.Context, native string) (decimal.Decimal, error) {
	var result map[string]any
	resp, err := c.http.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", c.ep.path)),
	).
		SetQueryParam(c.ep.symbolParam, native).
		SetResult(&result).
		Get(ctx, c.ep.path)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if resp.IsError() {
		return decimal.Decimal{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.String())
	}

	raw, ok := result[c.ep.priceField]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("response missing field %q", c.ep.priceField)
	}

	str, ok := raw.(string)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("field %q is not a string: %v", c.ep.priceField, raw)
	}

	return decimal.NewFromString(str)
}

// translate maps a canonical symbol ("BTCUSDT") to exchange-native form.
func translate(exchange domain.ExchangeId, symbol string) (string, bool) {
	base, quote, ok := domain.SplitSymbol(symbol)
	if !ok {
		return "", false
	}
	switch exchange {
	case domain.Binance:
		return symbol, true
	case domain.OKX:
		return base + "-" + quote + "-SWAP", true
	default:
		return "", false
	}
}
