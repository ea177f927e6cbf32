package wsclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/app"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/apperror"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/ratelimit"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/wsconn"
)

const (
	priceLRUCapacity  = 500
	maxReconnects     = 10
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	healthCheckPeriod = 10 * time.Second
	healthSilence     = 60 * time.Second
	dialTimeout       = 10 * time.Second
	gzipMagic0        = 0x1f
	gzipMagic1        = 0x8b

	// outboundFrameRateLimit caps how many subscribe/unsubscribe frames a
	// single connection sends per second, keeping well under every
	// exchange's documented control-message rate limit.
	outboundFrameRateLimit = 10
)

// Client is the exchange-agnostic implementation of app.ExchangeClient. It
// satisfies the interface in full; every exchange package constructs one by
// supplying an Adapter.
type Client struct {
	adapter Adapter
	log     logger.LoggerInterface

	conn   *wsconn.Client
	connMu sync.RWMutex

	subsMu     sync.Mutex
	subscribed map[string]struct{}

	prices      *priceLRU
	latency     *latencyWindow
	outboundRPS *ratelimit.Limiter

	handlersMu           sync.RWMutex
	onFundingRate        func(app.FundingRateReceived)
	onMarkPrice          func(string, decimal.Decimal)
	onConnected          func()
	onDisconnected       func()
	onError              func(error)
	onReconnecting       func(int)
	onMaxRetriesReached  func()

	ready          atomic.Bool
	destroyed      atomic.Bool
	reconnectCount atomic.Int32
	lastMessageAt  atomic.Int64 // unix nanos

	healthDone chan struct{}
	healthOnce sync.Once
}

// New constructs a Client for the given adapter.
func New(adapter Adapter, log logger.LoggerInterface) *Client {
	return &Client{
		adapter:     adapter,
		log:         log,
		subscribed:  make(map[string]struct{}),
		prices:      newPriceLRU(priceLRUCapacity),
		latency:     newLatencyWindow(),
		outboundRPS: ratelimit.NewWithBurst(outboundFrameRateLimit, outboundFrameRateLimit),
		healthDone:  make(chan struct{}),
	}
}

// Connect dials the exchange endpoint under a 10s deadline (spec §4.1
// "Failure semantics"). Reconnection afterwards is handled by the underlying
// wsconn.Client's own backoff loop; Client merely translates its state
// transitions into the ExchangeClient event surface.
func (c *Client) Connect(ctx context.Context) error {
	if c.destroyed.Load() {
		return apperror.New(apperror.CodeUseOfDestroyedPool, apperror.WithContext(string(c.adapter.Exchange())))
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	wsCfg := wsconn.DefaultConfig(c.adapter.DialURL(), string(c.adapter.Exchange()))
	wsCfg.InitialBackoff = initialBackoff
	wsCfg.MaxBackoff = maxBackoff
	wsCfg.MaxReconnects = maxReconnects

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketConnectionError, apperror.WithCause(err))
	}

	conn.OnMessage(c.handleRaw)
	conn.OnStateChange(c.handleStateChange)

	if err := conn.Connect(dialCtx); err != nil {
		return apperror.New(apperror.CodeWebSocketDialTimeout, apperror.WithCause(err),
			apperror.WithContext(string(c.adapter.Exchange())))
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.touchHealth()
	c.startHealthCheck()

	return nil
}

// handleStateChange translates wsconn.State transitions into this client's
// event surface, including resubscribing the full tracked symbol set on
// reconnect (spec §4.1 "Reconnection").
func (c *Client) handleStateChange(state wsconn.State, err error) {
	switch state {
	case wsconn.StateConnected:
		c.ready.Store(true)
		if c.reconnectCount.Load() > 0 {
			c.resubscribeAll()
		}
		c.reconnectCount.Store(0)
		c.fireConnected()
	case wsconn.StateReconnecting:
		c.ready.Store(false)
		attempt := int(c.reconnectCount.Add(1))
		c.fireReconnecting(attempt)
	case wsconn.StateDisconnected:
		c.ready.Store(false)
		if err != nil && strings.Contains(err.Error(), "max reconnects") {
			c.fireMaxRetriesReached()
		}
		c.fireDisconnected()
	}
}

// resubscribeAll reissues SubscribeFrames for every symbol recorded in the
// subscription set, best-effort (spec §4.1: "must resubscribe the full set
// of symbols currently recorded... before emitting resubscribed").
func (c *Client) resubscribeAll() {
	c.subsMu.Lock()
	symbols := make([]string, 0, len(c.subscribed))
	for s := range c.subscribed {
		symbols = append(symbols, s)
	}
	c.subsMu.Unlock()

	if len(symbols) == 0 {
		return
	}

	if err := c.sendSubscribe(symbols); err != nil {
		c.fireError(fmt.Errorf("resubscribe after reconnect: %w", err))
		return
	}
	if c.log != nil {
		c.log.Info(context.Background(), "resubscribed after reconnect",
			"exchange", c.adapter.Exchange(), "count", len(symbols))
	}
}

// Disconnect closes the current connection without destroying the client.
func (c *Client) Disconnect(ctx context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.ready.Store(false)
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Destroy performs idempotent, synchronous cleanup (spec §4.1): it stops the
// health-check timer, closes the connection, and clears every handler.
func (c *Client) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	c.healthOnce.Do(func() { close(c.healthDone) })

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.handlersMu.Lock()
	c.onFundingRate = nil
	c.onMarkPrice = nil
	c.onConnected = nil
	c.onDisconnected = nil
	c.onError = nil
	c.onReconnecting = nil
	c.onMaxRetriesReached = nil
	c.handlersMu.Unlock()

	c.ready.Store(false)

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Subscribe fails synchronously if the client is not ready (spec §4.1
// "Failure semantics").
func (c *Client) Subscribe(ctx context.Context, symbols []string) error {
	if c.destroyed.Load() {
		return apperror.New(apperror.CodeUseOfDestroyedPool)
	}
	if !c.IsReady() {
		return apperror.New(apperror.CodeSubscribeNotReady, apperror.WithContext(string(c.adapter.Exchange())))
	}

	if err := c.sendSubscribe(symbols); err != nil {
		return err
	}

	c.subsMu.Lock()
	for _, s := range symbols {
		c.subscribed[s] = struct{}{}
	}
	c.subsMu.Unlock()
	return nil
}

func (c *Client) sendSubscribe(symbols []string) error {
	frames, err := c.adapter.SubscribeFrames(symbols)
	if err != nil {
		return apperror.New(apperror.CodeMalformedMessage, apperror.WithCause(err))
	}
	return c.sendFrames(frames)
}

// Unsubscribe is a no-op if the client is already destroyed (spec §5 "a
// destroyed pool/client silently drops subsequent subscription and
// disconnect requests except for subscribe"). On a client with no live
// connection it returns an error.
func (c *Client) Unsubscribe(ctx context.Context, symbols []string) error {
	if c.destroyed.Load() {
		return nil
	}

	frames, err := c.adapter.UnsubscribeFrames(symbols)
	if err != nil {
		return apperror.New(apperror.CodeMalformedMessage, apperror.WithCause(err))
	}
	if err := c.sendFrames(frames); err != nil {
		return err
	}

	c.subsMu.Lock()
	for _, s := range symbols {
		delete(c.subscribed, s)
	}
	c.subsMu.Unlock()
	return nil
}

func (c *Client) sendFrames(frames [][]byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return apperror.New(apperror.CodeSubscribeNotReady)
	}
	for _, frame := range frames {
		if err := c.outboundRPS.Wait(context.Background()); err != nil {
			return apperror.New(apperror.CodeWebSocketSendError, apperror.WithCause(err))
		}
		if err := conn.Send(context.Background(), frame); err != nil {
			return apperror.New(apperror.CodeWebSocketSendError, apperror.WithCause(err))
		}
	}
	return nil
}

// SubscribedSymbols returns the symbols this client currently tracks.
func (c *Client) SubscribedSymbols() []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	out := make([]string, 0, len(c.subscribed))
	for s := range c.subscribed {
		out = append(out, s)
	}
	return out
}

// IsReady reports whether the client currently holds a live connection.
func (c *Client) IsReady() bool {
	return c.ready.Load()
}

// Stats reports diagnostic counters including the latency summary.
func (c *Client) Stats() app.ClientStats {
	return app.ClientStats{
		SubscribedSymbols: len(c.SubscribedSymbols()),
		Reconnects:        int(c.reconnectCount.Load()),
		Latency:           c.latency.Stats(),
	}
}

func (c *Client) OnFundingRate(fn func(app.FundingRateReceived)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onFundingRate = fn
}

func (c *Client) OnMarkPrice(fn func(string, decimal.Decimal)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onMarkPrice = fn
}

func (c *Client) OnConnected(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onConnected = fn
}

func (c *Client) OnDisconnected(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onDisconnected = fn
}

func (c *Client) OnError(fn func(error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onError = fn
}

func (c *Client) OnReconnecting(fn func(int)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onReconnecting = fn
}

func (c *Client) OnMaxRetriesReached(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onMaxRetriesReached = fn
}

func (c *Client) fireConnected() {
	c.handlersMu.RLock()
	fn := c.onConnected
	c.handlersMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) fireDisconnected() {
	c.handlersMu.RLock()
	fn := c.onDisconnected
	c.handlersMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) fireError(err error) {
	c.handlersMu.RLock()
	fn := c.onError
	c.handlersMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) fireReconnecting(attempt int) {
	c.handlersMu.RLock()
	fn := c.onReconnecting
	c.handlersMu.RUnlock()
	if fn != nil {
		fn(attempt)
	}
}

func (c *Client) fireMaxRetriesReached() {
	c.handlersMu.RLock()
	fn := c.onMaxRetriesReached
	c.handlersMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) touchHealth() {
	c.lastMessageAt.Store(time.Now().UnixNano())
}

// startHealthCheck launches the 60s-silence watchdog (spec §4.1 "Health
// check"): on timeout it triggers a reconnect, not a disconnect, by closing
// the underlying connection and letting wsconn's own reconnect loop take
// over (it is already dialed with auto-reconnect semantics).
func (c *Client) startHealthCheck() {
	go func() {
		ticker := time.NewTicker(healthCheckPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-c.healthDone:
				return
			case <-ticker.C:
				last := time.Unix(0, c.lastMessageAt.Load())
				if time.Since(last) > healthSilence {
					c.connMu.RLock()
					conn := c.conn
					c.connMu.RUnlock()
					if conn != nil {
						if c.log != nil {
							c.log.Warn(context.Background(), "health check timeout, forcing reconnect",
								"exchange", c.adapter.Exchange())
						}
						_ = conn.Close()
					}
					c.touchHealth()
				}
			}
		}
	}()
}

// handleRaw is the wsconn message callback: it must parse, emit, and return
// without blocking (spec §5). Gzip-framed messages (magic 0x1f 0x8b) skip
// UTF-8 parsing and latency extraction (spec §4.1, §9).
func (c *Client) handleRaw(ctx context.Context, raw []byte) {
	c.touchHealth()

	isGzip := len(raw) >= 2 && raw[0] == gzipMagic0 && raw[1] == gzipMagic1
	payload := raw
	if isGzip {
		decompressed, err := gunzip(raw)
		if err != nil {
			c.fireError(apperror.New(apperror.CodeMalformedMessage, apperror.WithCause(err)))
			return
		}
		payload = decompressed
	}

	emitter := &frameEmitter{client: c, extractLatency: !isGzip, receivedAt: time.Now()}
	if err := c.adapter.Decode(payload, emitter); err != nil {
		c.fireError(apperror.New(apperror.CodeMalformedMessage, apperror.WithCause(err),
			apperror.WithContext(string(c.adapter.Exchange()))))
	}
}

func gunzip(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// frameEmitter adapts one decoded frame's events into the client's mark
// price LRU join (spec §4.1 "Message decoding") and latency sampling (spec
// §4.1 "Latency tracking"), then dispatches to the registered handlers.
type frameEmitter struct {
	client         *Client
	extractLatency bool
	receivedAt     time.Time
}

func (e *frameEmitter) FundingRate(event app.FundingRateReceived, serverTimestampMs int64) {
	c := e.client

	if event.MarkPrice == nil {
		if price, ok := c.prices.Get(event.Symbol); ok {
			event.MarkPrice = &price
		}
	} else {
		c.prices.Put(event.Symbol, *event.MarkPrice)
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = e.receivedAt
	}
	if event.Source == "" {
		event.Source = "websocket"
	}

	if e.extractLatency && serverTimestampMs > 0 {
		c.latency.recordServerTimestamp(e.receivedAt, serverTimestampMs)
	}

	c.handlersMu.RLock()
	fn := c.onFundingRate
	c.handlersMu.RUnlock()
	if fn != nil {
		fn(event)
	}
}

func (e *frameEmitter) MarkPrice(symbol string, price decimal.Decimal) {
	e.client.prices.Put(symbol, price)

	e.client.handlersMu.RLock()
	fn := e.client.onMarkPrice
	e.client.handlersMu.RUnlock()
	if fn != nil {
		fn(symbol, price)
	}
}

func (e *frameEmitter) ProtocolDrop(reason string) {
	if e.client.log != nil {
		e.client.log.Debug(context.Background(), "protocol drop",
			"exchange", e.client.adapter.Exchange(), "reason", reason)
	}
}

var _ app.ExchangeClient = (*Client)(nil)
