// Package memmonitor periodically samples process memory and goroutine
// counts and reports them to a logger, giving operators an early signal of
// the leaks a long-lived WS-fanout process is prone to (stuck subscriptions,
// growing caches, leaked timers).
package memmonitor

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

// Sample is one memory/goroutine snapshot.
type Sample struct {
	Timestamp     time.Time
	RSSBytes      uint64
	HeapAllocBytes uint64
	Goroutines    int
}

// Monitor samples process vitals on a fixed interval and hands each Sample
// to every registered observer.
type Monitor struct {
	interval time.Duration
	log      logger.LoggerInterface

	mu        sync.Mutex
	observers []func(Sample)
	timer     *time.Timer
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a Monitor sampling at interval. A non-positive interval
// disables sampling; Run returns immediately in that case.
func New(interval time.Duration, log logger.LoggerInterface) *Monitor {
	return &Monitor{interval: interval, log: log, stopCh: make(chan struct{})}
}

// Observe registers fn to be called with every sample taken after this call.
func (m *Monitor) Observe(fn func(Sample)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Run blocks, sampling at m.interval until ctx is cancelled or Stop is
// called. Callers typically invoke this in its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sample(proc)
		}
	}
}

// RegisterTimer starts a one-shot timer that invokes fn after d. The timer
// handle is returned so callers can ClearTimer it, keeping long-lived timer
// registries from silently accumulating after cancellation.
func (m *Monitor) RegisterTimer(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, fn)
}

// ClearTimer stops a timer created by RegisterTimer. Safe to call more than
// once or on an already-fired timer.
func (m *Monitor) ClearTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// Stop halts sampling. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) sample(proc *process.Process) {
	var rss uint64
	if proc != nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			rss = info.RSS
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s := Sample{
		Timestamp:      time.Now(),
		RSSBytes:       rss,
		HeapAllocBytes: memStats.HeapAlloc,
		Goroutines:     runtime.NumGoroutine(),
	}

	if m.log != nil {
		m.log.Debug(context.Background(), "memory sample",
			"rss_bytes", s.RSSBytes,
			"heap_alloc_bytes", s.HeapAllocBytes,
			"goroutines", s.Goroutines,
		)
	}

	m.mu.Lock()
	observers := make([]func(Sample), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, obs := range observers {
		obs(s)
	}
}
