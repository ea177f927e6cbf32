package app

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

// Channel names the Broadcaster publishes on (spec §4.7).
const (
	ChannelRatesUpdate = "rates:update"
	ChannelRatesStats  = "rates:stats"
)

// DefaultBroadcastInterval is the fixed cadence at which the Broadcaster
// re-evaluates both streams (spec §4.7, §6).
const DefaultBroadcastInterval = 2000 * time.Millisecond

// formatCacheCapacity bounds the per-symbol diff-hash LRU (spec §4.7).
const formatCacheCapacity = 500

// Publisher is the injected pub/sub port the Broadcaster writes to. Infra
// wires a concrete transport (e.g. an in-process fan-out hub, or a
// WebSocket/SSE hub for a dashboard) behind this interface.
type Publisher interface {
	Publish(channel string, payload []byte)
	SubscriberCount(channel string) int
}

// RatesUpdateEntry is one symbol's entry within a rates:update message. It
// carries the symbol, timestamp, status and the number of exchanges with a
// rate (exchangeCount), with the best pair flattened into longExchange,
// shortExchange, spreadPercent and spreadAnnualized. It has no per-exchange
// rate list and no nested bestPair object.
type RatesUpdateEntry struct {
	Symbol           string    `json:"symbol"`
	RecordedAt       time.Time `json:"timestamp"`
	ExchangeCount    int       `json:"exchangeCount"`
	Status           string    `json:"status"`
	LongExchange     string    `json:"longExchange,omitempty"`
	ShortExchange    string    `json:"shortExchange,omitempty"`
	SpreadPercent    string    `json:"spreadPercent,omitempty"`
	SpreadAnnualized string    `json:"spreadAnnualized,omitempty"`
}

// RatesUpdateMessage is the single rates:update payload published per tick:
// one message carrying every symbol's current entry, not one message per
// symbol (spec §6, §8 property 8, scenario S6: "emits at most one
// rates:update... payload length equals N distinct symbols").
type RatesUpdateMessage struct {
	Rates     []RatesUpdateEntry `json:"rates"`
	Timestamp time.Time          `json:"timestamp"`
}

// Status values for RatesUpdateEntry.Status (spec §6).
const (
	StatusOpportunity = "opportunity"
	StatusApproaching = "approaching"
	StatusNormal      = "normal"
)

// RatesStatsPayload is the wire shape of the rates:stats message.
type RatesStatsPayload struct {
	CacheStats
	Tracker TrackerStats `json:"tracker"`
}

// BroadcastConfig configures the Broadcaster.
type BroadcastConfig struct {
	Interval time.Duration
	EntryAPY decimal.Decimal
}

func (c BroadcastConfig) withDefaults() BroadcastConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultBroadcastInterval
	}
	if c.EntryAPY.IsZero() {
		c.EntryAPY = EntryThresholdAPY
	}
	return c
}

// Broadcaster periodically diffs the cache and tracker state against the
// last published hash per stream and publishes only on change (spec §4.7).
//
// rates:update is a single message per tick carrying every live symbol's
// entry. Building each entry is the expensive step, so a bounded per-symbol
// LRU (formatCache) reuses the prior entry object whenever that symbol's
// own (recordedAt, spreadPercent, spreadAnnualized, exchangeCount) tuple is
// unchanged, and the whole batch is only published when its aggregate hash
// differs from the last publish (spec §4.7 "Per-symbol format cache", "Two
// diff streams").
type Broadcaster struct {
	cfg     BroadcastConfig
	cache   *RatesCache
	tracker *Tracker
	pub     Publisher
	log     logger.LoggerInterface

	formatCache *entryLRU

	batchHashMu   sync.Mutex
	lastBatchHash uint64
	haveBatchHash bool

	statsHashMu   sync.Mutex
	lastStatsHash uint64
	haveStatsHash bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(cfg BroadcastConfig, cache *RatesCache, tracker *Tracker, pub Publisher, log logger.LoggerInterface) *Broadcaster {
	return &Broadcaster{
		cfg:         cfg.withDefaults(),
		cache:       cache,
		tracker:     tracker,
		pub:         pub,
		log:         log,
		formatCache: newEntryLRU(formatCacheCapacity),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the periodic diff-broadcast loop.
func (b *Broadcaster) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stopCh:
				return
			case <-ticker.C:
				b.tick()
			}
		}
	}()
}

// Stop halts the loop. Idempotent.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

func (b *Broadcaster) tick() {
	b.broadcastUpdates()
	b.broadcastStats()
}

// broadcastUpdates builds the full rates:update array (reusing cached entry
// objects for symbols whose format hash hasn't changed, evicting symbols no
// longer present in the snapshot) and publishes exactly one message if the
// aggregate batch hash differs from the last published one.
func (b *Broadcaster) broadcastUpdates() {
	if b.pub.SubscriberCount(ChannelRatesUpdate) == 0 {
		return
	}

	cached := b.cache.GetAll()
	sort.Slice(cached, func(i, j int) bool { return cached[i].Symbol < cached[j].Symbol })

	live := make(map[string]struct{}, len(cached))
	entries := make([]RatesUpdateEntry, 0, len(cached))
	batchHash := fnv.New64a()

	for _, c := range cached {
		live[c.Symbol] = struct{}{}
		hash := pairHash(c.FundingRatePair)

		entry, ok := b.formatCache.Get(c.Symbol)
		if !ok || entry.hash != hash {
			entry = cachedEntry{hash: hash, value: buildEntry(c.FundingRatePair, b.cfg.EntryAPY)}
			b.formatCache.Put(c.Symbol, entry)
		}

		entries = append(entries, entry.value)
		fmt.Fprintf(batchHash, "%s:%d|", c.Symbol, hash)
	}

	b.formatCache.EvictExcept(live)

	hash := batchHash.Sum64()
	b.batchHashMu.Lock()
	unchanged := b.haveBatchHash && hash == b.lastBatchHash
	b.lastBatchHash = hash
	b.haveBatchHash = true
	b.batchHashMu.Unlock()
	if unchanged {
		return
	}

	msg := RatesUpdateMessage{Rates: entries, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		if b.log != nil {
			b.log.Warn(context.Background(), "broadcast marshal failed", "error", err)
		}
		return
	}
	b.pub.Publish(ChannelRatesUpdate, data)
}

func buildEntry(p domain.FundingRatePair, entryAPY decimal.Decimal) RatesUpdateEntry {
	entry := RatesUpdateEntry{
		Symbol:        p.Symbol,
		RecordedAt:    p.RecordedAt,
		ExchangeCount: len(p.Exchanges),
		Status:        StatusNormal,
	}
	if p.BestPair == nil {
		return entry
	}

	entry.LongExchange = string(p.BestPair.LongExchange)
	entry.ShortExchange = string(p.BestPair.ShortExchange)
	entry.SpreadPercent = p.BestPair.SpreadPercent.String()
	entry.SpreadAnnualized = p.BestPair.SpreadAnnualized.String()

	approachingFloor := entryAPY.Mul(decimal.NewFromFloat(0.75))
	switch {
	case p.BestPair.SpreadAnnualized.GreaterThanOrEqual(entryAPY):
		entry.Status = StatusOpportunity
	case p.BestPair.SpreadAnnualized.GreaterThanOrEqual(approachingFloor):
		entry.Status = StatusApproaching
	}
	return entry
}

func (b *Broadcaster) broadcastStats() {
	if b.pub.SubscriberCount(ChannelRatesStats) == 0 {
		return
	}

	payload := RatesStatsPayload{
		CacheStats: b.cache.GetStats(nil, b.cfg.EntryAPY),
	}
	if b.tracker != nil {
		payload.Tracker = b.tracker.Stats()
	}

	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%d|%s", payload.TotalSymbols, payload.OpportunityCount, payload.ApproachingCount, payload.MaxSpreadSymbol)
	hash := h.Sum64()

	b.statsHashMu.Lock()
	unchanged := b.haveStatsHash && hash == b.lastStatsHash
	b.lastStatsHash = hash
	b.haveStatsHash = true
	b.statsHashMu.Unlock()
	if unchanged {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		if b.log != nil {
			b.log.Warn(context.Background(), "broadcast stats marshal failed", "error", err)
		}
		return
	}
	b.pub.Publish(ChannelRatesStats, data)
}

// pairHash hashes the tuple (recordedAt, spreadPercent, spreadAnnualized,
// exchangeCount) per spec §4.7.
func pairHash(p domain.FundingRatePair) uint64 {
	h := fnv.New64a()
	var spread, apy string
	if p.BestPair != nil {
		spread = p.BestPair.SpreadPercent.String()
		apy = p.BestPair.SpreadAnnualized.String()
	}
	fmt.Fprintf(h, "%d|%s|%s|%d", p.RecordedAt.UnixNano(), spread, apy, len(p.Exchanges))
	return h.Sum64()
}

// cachedEntry pairs a formatted RatesUpdateEntry with the hash it was built
// from, so entryLRU can detect staleness without rebuilding.
type cachedEntry struct {
	hash  uint64
	value RatesUpdateEntry
}

// entryLRU is a bounded, insertion-order symbol->cachedEntry cache (spec
// §4.7 "Per-symbol format cache", capacity 500): the same delete-then-
// reinsert-on-update eviction policy as wsclient's price LRU.
type entryLRU struct {
	mu       sync.Mutex
	cap      int
	order    *list.List
	elements map[string]*list.Element
}

type entryListItem struct {
	symbol string
	entry  cachedEntry
}

func newEntryLRU(capacity int) *entryLRU {
	return &entryLRU{cap: capacity, order: list.New(), elements: make(map[string]*list.Element)}
}

func (l *entryLRU) Get(symbol string) (cachedEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.elements[symbol]
	if !ok {
		return cachedEntry{}, false
	}
	return el.Value.(entryListItem).entry, true
}

func (l *entryLRU) Put(symbol string, entry cachedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.elements[symbol]; ok {
		l.order.Remove(el)
		delete(l.elements, symbol)
	}
	el := l.order.PushBack(entryListItem{symbol: symbol, entry: entry})
	l.elements[symbol] = el
	for l.order.Len() > l.cap {
		oldest := l.order.Front()
		if oldest == nil {
			break
		}
		item := oldest.Value.(entryListItem)
		l.order.Remove(oldest)
		delete(l.elements, item.symbol)
	}
}

// EvictExcept removes every entry whose symbol is not in live (spec §4.7:
// "Evict symbols that no longer appear in the current snapshot").
func (l *entryLRU) EvictExcept(live map[string]struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var next *list.Element
	for el := l.order.Front(); el != nil; el = next {
		next = el.Next()
		item := el.Value.(entryListItem)
		if _, ok := live[item.symbol]; !ok {
			l.order.Remove(el)
			delete(l.elements, item.symbol)
		}
	}
}
