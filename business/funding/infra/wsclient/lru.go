package wsclient

import (
	"container/list"
	"sync"

	"github.com/shopspring/decimal"
)

// priceLRU is the per-client mark-price cache (spec §4.1): bounded
// insertion-order map, capacity 500. On overflow the oldest key (by
// first-iteration order) is evicted; updates delete-then-set to refresh
// recency, per spec §5 "Mark-price LRU" policy.
type priceLRU struct {
	mu       sync.Mutex
	cap      int
	order    *list.List
	elements map[string]*list.Element
}

type priceEntry struct {
	symbol string
	price  decimal.Decimal
}

func newPriceLRU(capacity int) *priceLRU {
	if capacity <= 0 {
		capacity = 500
	}
	return &priceLRU{
		cap:      capacity,
		order:    list.New(),
		elements: make(map[string]*list.Element),
	}
}

// Put inserts or refreshes symbol's price, evicting the oldest entry if the
// cache is at capacity.
func (l *priceLRU) Put(symbol string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.elements[symbol]; ok {
		l.order.Remove(el)
		delete(l.elements, symbol)
	}

	el := l.order.PushBack(priceEntry{symbol: symbol, price: price})
	l.elements[symbol] = el

	for l.order.Len() > l.cap {
		oldest := l.order.Front()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(priceEntry)
		l.order.Remove(oldest)
		delete(l.elements, entry.symbol)
	}
}

// Get returns symbol's cached price, if any.
func (l *priceLRU) Get(symbol string) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.elements[symbol]
	if !ok {
		return decimal.Decimal{}, false
	}
	return el.Value.(priceEntry).price, true
}
