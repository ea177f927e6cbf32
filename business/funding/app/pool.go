package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/apperror"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

// PoolEventHandlers are the callbacks the ConnectionPool fans client events
// up to, each annotated with the originating connectionIndex. Only the
// funding-rate, connected, disconnected and error events of a client are
// forwarded; its mark-price, reconnecting and max-retries events are not.
type PoolEventHandlers struct {
	OnFundingRate          func(index int, event FundingRateReceived)
	OnConnected            func(index int)
	OnDisconnected         func(index int)
	OnError                func(index int, err error)
	OnConnectionCountChanged func(count int)
}

// ConnectionPool partitions a set of symbols across K clients for a single
// exchange under a per-exchange subscription limit (spec §4.2).
type ConnectionPool struct {
	exchange       domain.ExchangeId
	maxPerConn     int
	factory        ClientFactory
	autoScale      bool
	log            logger.LoggerInterface
	handlers       PoolEventHandlers

	mu          sync.Mutex
	clients     map[int]ExchangeClient
	symbolIndex map[string]int
	nextIndex   int
	destroyed   bool
}

// NewConnectionPool constructs a pool for exchange. autoScale enables the
// shrink-on-unsubscribe behaviour (spec §4.2 "Shrink").
func NewConnectionPool(exchange domain.ExchangeId, factory ClientFactory, autoScale bool, log logger.LoggerInterface, handlers PoolEventHandlers) *ConnectionPool {
	return &ConnectionPool{
		exchange:    exchange,
		maxPerConn:  exchange.MaxSymbolsPerConnection(),
		factory:     factory,
		autoScale:   autoScale,
		log:         log,
		handlers:    handlers,
		clients:     make(map[int]ExchangeClient),
		symbolIndex: make(map[string]int),
	}
}

// Subscribe implements the single-symbol subscribe algorithm (spec §4.2).
func (p *ConnectionPool) Subscribe(ctx context.Context, symbol string) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return apperror.New(apperror.CodeUseOfDestroyedPool, apperror.WithContext(string(p.exchange)))
	}
	if _, already := p.symbolIndex[symbol]; already {
		p.mu.Unlock()
		return nil
	}

	index, client, err := p.findOrCreateClientLocked(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	if err := client.Subscribe(ctx, []string{symbol}); err != nil {
		return err
	}

	p.mu.Lock()
	p.symbolIndex[symbol] = index
	p.mu.Unlock()
	return nil
}

// SubscribeAll greedily fills connections to capacity (spec §4.2
// "subscribeAll").
func (p *ConnectionPool) SubscribeAll(ctx context.Context, symbols []string) error {
	for i, batch := range batchBySymbolCount(symbols, 50) {
		for _, sym := range batch {
			if err := p.Subscribe(ctx, sym); err != nil {
				return fmt.Errorf("subscribe %s: %w", sym, err)
			}
		}
		if p.log != nil {
			p.log.Info(ctx, "subscription batch complete", "exchange", p.exchange, "batch", i+1)
		}
	}
	return nil
}

func batchBySymbolCount(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[i:end])
	}
	return batches
}

// findOrCreateClientLocked returns the lowest-index client with spare
// capacity, creating (and installing listeners on) a new one when none
// exists. Caller holds p.mu.
func (p *ConnectionPool) findOrCreateClientLocked(ctx context.Context) (int, ExchangeClient, error) {
	counts := make(map[int]int)
	for _, idx := range p.symbolIndex {
		counts[idx]++
	}

	for idx := 0; idx < p.nextIndex; idx++ {
		if client, ok := p.clients[idx]; ok && counts[idx] < p.maxPerConn {
			return idx, client, nil
		}
	}

	client, err := p.factory()
	if err != nil {
		return 0, nil, err
	}

	index := p.nextIndex
	p.installListeners(index, client)

	if err := client.Connect(ctx); err != nil {
		p.detachListeners(client)
		_ = client.Destroy()
		return 0, nil, fmt.Errorf("connect client %d: %w", index, err)
	}

	p.clients[index] = client
	p.nextIndex++
	return index, client, nil
}

// installListeners wires four event names onto client: funding rate,
// connected, disconnected and error. No other client event is forwarded.
func (p *ConnectionPool) installListeners(index int, client ExchangeClient) {
	client.OnFundingRate(func(event FundingRateReceived) {
		if p.handlers.OnFundingRate != nil {
			p.handlers.OnFundingRate(index, event)
		}
	})
	client.OnConnected(func() {
		if p.handlers.OnConnected != nil {
			p.handlers.OnConnected(index)
		}
	})
	client.OnDisconnected(func() {
		if p.handlers.OnDisconnected != nil {
			p.handlers.OnDisconnected(index)
		}
	})
	client.OnError(func(err error) {
		if p.handlers.OnError != nil {
			p.handlers.OnError(index, err)
		}
	})
}

// detachListeners clears every handler slot on client so a client that never
// finished connecting holds zero references back into the pool (spec §8
// property 4).
func (p *ConnectionPool) detachListeners(client ExchangeClient) {
	client.OnFundingRate(nil)
	client.OnConnected(nil)
	client.OnDisconnected(nil)
	client.OnError(nil)
	client.OnReconnecting(nil)
	client.OnMaxRetriesReached(nil)
}

// Unsubscribe removes symbol's subscription and, if autoScale is enabled,
// prunes now-idle clients (always keeping at least one alive).
func (p *ConnectionPool) Unsubscribe(ctx context.Context, symbol string) error {
	p.mu.Lock()
	index, ok := p.symbolIndex[symbol]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	client := p.clients[index]
	delete(p.symbolIndex, symbol)
	p.mu.Unlock()

	if client != nil {
		if err := client.Unsubscribe(ctx, []string{symbol}); err != nil {
			return err
		}
	}

	if p.autoScale {
		p.pruneIdleClients(ctx)
	}
	return nil
}

func (p *ConnectionPool) pruneIdleClients(ctx context.Context) {
	p.mu.Lock()
	counts := make(map[int]int)
	for _, idx := range p.symbolIndex {
		counts[idx]++
	}

	var toPrune []int
	for idx := range p.clients {
		if counts[idx] == 0 && len(p.clients)-len(toPrune) > 1 {
			toPrune = append(toPrune, idx)
		}
	}
	for _, idx := range toPrune {
		delete(p.clients, idx)
	}
	remaining := len(p.clients)
	p.mu.Unlock()

	if len(toPrune) > 0 && p.handlers.OnConnectionCountChanged != nil {
		p.handlers.OnConnectionCountChanged(remaining)
	}
}

// IsReady is true iff the pool has >=1 client and every client reports
// ready.
func (p *ConnectionPool) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clients) == 0 {
		return false
	}
	for _, c := range p.clients {
		if !c.IsReady() {
			return false
		}
	}
	return true
}

// ClientCount returns the current number of live clients.
func (p *ConnectionPool) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// SubscriptionCounts returns, per connection index, the number of symbols
// subscribed (spec §8 property 3).
func (p *ConnectionPool) SubscriptionCounts() map[int]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[int]int)
	for _, idx := range p.symbolIndex {
		counts[idx]++
	}
	return counts
}

// Disconnect concurrently disconnects every client without destroying them.
func (p *ConnectionPool) Disconnect(ctx context.Context) {
	p.mu.Lock()
	clients := make([]ExchangeClient, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.clients = make(map[int]ExchangeClient)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c ExchangeClient) {
			defer wg.Done()
			p.detachListeners(c)
			_ = c.Disconnect(ctx)
		}(c)
	}
	wg.Wait()
}

// Destroy synchronously marks the pool destroyed and tears down every
// client (spec §4.2 "Shutdown").
func (p *ConnectionPool) Destroy() {
	p.mu.Lock()
	p.destroyed = true
	clients := make([]ExchangeClient, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.clients = make(map[int]ExchangeClient)
	p.symbolIndex = make(map[string]int)
	p.mu.Unlock()

	for _, c := range clients {
		p.detachListeners(c)
		_ = c.Destroy()
	}
}
