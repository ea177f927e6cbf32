package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

// fakeClient is a minimal app.ExchangeClient test double. connectErr, when
// set, makes Connect fail so pool_test can exercise the failed-connect
// listener-cleanup path.
type fakeClient struct {
	connectErr error
	ready      bool
	destroyed  bool

	onFundingRate       func(FundingRateReceived)
	onConnected         func()
	onDisconnected      func()
	onError             func(error)
	onReconnecting      func(int)
	onMaxRetriesReached func()
}

func (c *fakeClient) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.ready = true
	return nil
}
func (c *fakeClient) Disconnect(ctx context.Context) error { c.ready = false; return nil }
func (c *fakeClient) Destroy() error                        { c.destroyed = true; return nil }
func (c *fakeClient) Subscribe(ctx context.Context, symbols []string) error   { return nil }
func (c *fakeClient) Unsubscribe(ctx context.Context, symbols []string) error { return nil }
func (c *fakeClient) SubscribedSymbols() []string                            { return nil }
func (c *fakeClient) IsReady() bool                                          { return c.ready }
func (c *fakeClient) Stats() ClientStats                                     { return ClientStats{} }

func (c *fakeClient) OnFundingRate(fn func(FundingRateReceived))        { c.onFundingRate = fn }
func (c *fakeClient) OnMarkPrice(fn func(string, decimal.Decimal))      {}
func (c *fakeClient) OnConnected(fn func())                             { c.onConnected = fn }
func (c *fakeClient) OnDisconnected(fn func())                          { c.onDisconnected = fn }
func (c *fakeClient) OnError(fn func(error))                            { c.onError = fn }
func (c *fakeClient) OnReconnecting(fn func(int))                       { c.onReconnecting = fn }
func (c *fakeClient) OnMaxRetriesReached(fn func())                     { c.onMaxRetriesReached = fn }

func (c *fakeClient) hasAnyListener() bool {
	return c.onFundingRate != nil || c.onConnected != nil || c.onDisconnected != nil ||
		c.onError != nil || c.onReconnecting != nil || c.onMaxRetriesReached != nil
}

var _ ExchangeClient = (*fakeClient)(nil)

// Spec §8 property 3 "Pool capacity invariant": a pool never subscribes more
// than exchange.MaxSymbolsPerConnection() symbols on one client.
func TestConnectionPool_CapacityInvariant(t *testing.T) {
	var created []*fakeClient
	factory := func() (ExchangeClient, error) {
		c := &fakeClient{}
		created = append(created, c)
		return c, nil
	}

	// GateIO caps at 20 symbols per connection.
	pool := NewConnectionPool(domain.GateIO, factory, true, nil, PoolEventHandlers{})

	symbols := make([]string, 45)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%dUSDT", i)
	}
	if err := pool.SubscribeAll(context.Background(), symbols); err != nil {
		t.Fatalf("SubscribeAll: %v", err)
	}

	for idx, count := range pool.SubscriptionCounts() {
		if count > domain.GateIO.MaxSymbolsPerConnection() {
			t.Errorf("client %d holds %d symbols, exceeds cap %d", idx, count, domain.GateIO.MaxSymbolsPerConnection())
		}
	}
	if len(created) < 3 {
		t.Errorf("expected at least 3 clients for 45 symbols at cap 20, got %d", len(created))
	}
}

// Spec §8 property 4 "Listener cleanup on failed connect": a client that
// fails Connect must have every handler slot cleared before Destroy, so it
// holds no reference back into the pool.
func TestConnectionPool_ListenerCleanupOnFailedConnect(t *testing.T) {
	var failing *fakeClient
	factory := func() (ExchangeClient, error) {
		failing = &fakeClient{connectErr: errors.New("dial refused")}
		return failing, nil
	}

	pool := NewConnectionPool(domain.Binance, factory, true, nil, PoolEventHandlers{})

	err := pool.Subscribe(context.Background(), "BTCUSDT")
	if err == nil {
		t.Fatal("expected Subscribe to fail when Connect fails")
	}
	if failing == nil {
		t.Fatal("factory was never invoked")
	}
	if !failing.destroyed {
		t.Error("expected the failed client to be Destroy()ed")
	}
	if failing.hasAnyListener() {
		t.Error("expected every handler slot cleared on a client that failed to connect")
	}
	if pool.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0 after failed connect", pool.ClientCount())
	}
}
