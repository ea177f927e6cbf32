package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/breaker"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
)

// EntryThresholdAPY and ExitThresholdAPY implement the hysteresis gate (spec
// §4.6 "Lifecycle"): a symbol pair must clear the (high) entry threshold to
// open an opportunity, then must drop below the (low) exit threshold to
// close it. The gap between them prevents rapid open/close flapping right at
// the boundary.
var (
	EntryThresholdAPY = decimal.NewFromInt(800) // percent APY
	ExitThresholdAPY  = decimal.NewFromInt(0)
)

// TrackerStats mirrors spec §4.6's getStats shape.
type TrackerStats struct {
	ActiveCount           int
	OpportunitiesRecorded int64
	OpportunitiesEnded    int64
	LastRecordedAt        time.Time
	Errors                int64
}

// Tracker maintains the hysteresis-gated lifecycle of cross-exchange
// arbitrage opportunities, persisting transitions through a breaker-guarded
// Repository (spec §4.6).
type Tracker struct {
	repo    Repository
	breaker *breaker.Breaker[struct{}]
	log     logger.LoggerInterface

	mu     sync.Mutex
	active map[domain.OpportunityKey]domain.ActiveOpportunity

	threshMu sync.RWMutex
	entryAPY decimal.Decimal
	exitAPY  decimal.Decimal

	recorded atomic.Int64
	ended    atomic.Int64
	errs     atomic.Int64
	lastAt   atomic.Int64 // unix nanos

	monitorMu sync.Mutex
	monitor   *Monitor
}

// NewTracker constructs a Tracker backed by repo.
func NewTracker(repo Repository, log logger.LoggerInterface) *Tracker {
	return &Tracker{
		repo: repo,
		breaker: breaker.New[struct{}](breaker.Settings{
			Name:                "tracker-repository",
			ConsecutiveFailures: 5,
			Timeout:             30 * time.Second,
		}),
		log:      log,
		active:   make(map[domain.OpportunityKey]domain.ActiveOpportunity),
		entryAPY: EntryThresholdAPY,
		exitAPY:  ExitThresholdAPY,
	}
}

// SetThresholds overrides the default entry/exit hysteresis thresholds
// (spec §6 "Tracker thresholds: entry 800 (%), exit 0 (%), both
// configurable"). Safe to call concurrently with OnRateUpdated.
func (t *Tracker) SetThresholds(entryAPY, exitAPY decimal.Decimal) {
	t.threshMu.Lock()
	defer t.threshMu.Unlock()
	t.entryAPY = entryAPY
	t.exitAPY = exitAPY
}

func (t *Tracker) thresholds() (entryAPY, exitAPY decimal.Decimal) {
	t.threshMu.RLock()
	defer t.threshMu.RUnlock()
	return t.entryAPY, t.exitAPY
}

// Attach registers the tracker as a Monitor observer. The registration is
// not removed by a later Detach: the monitor's observer list is append-only.
func (t *Tracker) Attach(m *Monitor) {
	t.monitorMu.Lock()
	t.monitor = m
	t.monitorMu.Unlock()
	m.Subscribe(RateUpdatedFunc(t.OnRateUpdated))
}

// Detach clears the tracker's reference to its monitor. The monitor itself
// does not support observer removal (append-only list, spec §4.5); Detach's
// contract is that the tracker stops acting on events it still receives.
func (t *Tracker) Detach() {
	t.monitorMu.Lock()
	t.monitor = nil
	t.monitorMu.Unlock()
}

func (t *Tracker) isAttached() bool {
	t.monitorMu.Lock()
	defer t.monitorMu.Unlock()
	return t.monitor != nil
}

// OnRateUpdated implements RateUpdatedObserver, applying the hysteresis gate
// to pair's best arbitrage spread.
func (t *Tracker) OnRateUpdated(pair domain.FundingRatePair) {
	if !t.isAttached() {
		return
	}
	if pair.BestPair == nil {
		return
	}

	key := domain.OpportunityKey{Symbol: pair.Symbol, LongExchange: pair.BestPair.LongExchange, ShortExchange: pair.BestPair.ShortExchange}

	t.mu.Lock()
	_, isActive := t.active[key]
	t.mu.Unlock()

	apy := pair.BestPair.SpreadAnnualized
	entryAPY, exitAPY := t.thresholds()

	switch {
	case !isActive && apy.GreaterThanOrEqual(entryAPY):
		t.open(key, pair)
	case isActive && apy.LessThan(exitAPY):
		t.close(key, pair.BestPair.SpreadPercent, apy)
	case isActive:
		t.refresh(key, pair)
	}
}

func (t *Tracker) open(key domain.OpportunityKey, pair domain.FundingRatePair) {
	opp := domain.ActiveOpportunity{
		Symbol:        key.Symbol,
		LongExchange:  key.LongExchange,
		ShortExchange: key.ShortExchange,
		LastSpread:    pair.BestPair.SpreadPercent,
		LastAPY:       pair.BestPair.SpreadAnnualized,
		DetectedAt:    time.Now(),
	}

	t.mu.Lock()
	t.active[key] = opp
	t.mu.Unlock()

	t.persist(func(ctx context.Context) error { return t.repo.Upsert(ctx, opp) })
	t.recorded.Add(1)
	t.lastAt.Store(time.Now().UnixNano())

	if t.log != nil {
		t.log.Info(context.Background(), "opportunity opened",
			"symbol", key.Symbol, "long", key.LongExchange, "short", key.ShortExchange, "apy", opp.LastAPY.String())
	}
}

func (t *Tracker) refresh(key domain.OpportunityKey, pair domain.FundingRatePair) {
	t.mu.Lock()
	opp, ok := t.active[key]
	if !ok {
		t.mu.Unlock()
		return
	}
	opp.LastSpread = pair.BestPair.SpreadPercent
	opp.LastAPY = pair.BestPair.SpreadAnnualized
	t.active[key] = opp
	t.mu.Unlock()

	t.persist(func(ctx context.Context) error { return t.repo.Upsert(ctx, opp) })
	t.lastAt.Store(time.Now().UnixNano())
}

func (t *Tracker) close(key domain.OpportunityKey, lastSpread, lastAPY decimal.Decimal) {
	t.mu.Lock()
	delete(t.active, key)
	t.mu.Unlock()

	t.persist(func(ctx context.Context) error { return t.repo.MarkAsEnded(ctx, key, lastSpread, lastAPY) })
	t.ended.Add(1)
	t.lastAt.Store(time.Now().UnixNano())

	if t.log != nil {
		t.log.Info(context.Background(), "opportunity closed",
			"symbol", key.Symbol, "long", key.LongExchange, "short", key.ShortExchange)
	}
}

func (t *Tracker) persist(fn func(ctx context.Context) error) {
	_, err := t.breaker.Execute(context.Background(), func() (struct{}, error) {
		return struct{}{}, fn(context.Background())
	})
	if err != nil {
		t.errs.Add(1)
		if t.log != nil {
			t.log.Warn(context.Background(), "tracker repository call failed", "error", err)
		}
	}
}

// CloseSymbol force-ends every active opportunity for symbol, e.g. when the
// monitor stops tracking it (spec §9 Open Question: no implicit
// disappearance handling — callers must close explicitly).
func (t *Tracker) CloseSymbol(symbol string) {
	t.mu.Lock()
	var keys []domain.OpportunityKey
	for k, opp := range t.active {
		if opp.Symbol == symbol {
			keys = append(keys, k)
		}
	}
	t.mu.Unlock()

	for _, k := range keys {
		t.mu.Lock()
		opp, ok := t.active[k]
		t.mu.Unlock()
		if !ok {
			continue
		}
		t.close(k, opp.LastSpread, opp.LastAPY)
	}
}

// GetActiveOpportunitiesCount returns the current number of open
// opportunities.
func (t *Tracker) GetActiveOpportunitiesCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// GetTopAPY returns the highest-APY active opportunity, if any.
func (t *Tracker) GetTopAPY() (domain.ActiveOpportunity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best domain.ActiveOpportunity
	found := false
	for _, opp := range t.active {
		if !found || opp.LastAPY.GreaterThan(best.LastAPY) {
			best = opp
			found = true
		}
	}
	return best, found
}

// Stats reports tracker diagnostics (spec §4.6).
func (t *Tracker) Stats() TrackerStats {
	var lastAt time.Time
	if ns := t.lastAt.Load(); ns != 0 {
		lastAt = time.Unix(0, ns)
	}
	return TrackerStats{
		ActiveCount:           t.GetActiveOpportunitiesCount(),
		OpportunitiesRecorded: t.recorded.Load(),
		OpportunitiesEnded:    t.ended.Load(),
		LastRecordedAt:        lastAt,
		Errors:                t.errs.Load(),
	}
}
