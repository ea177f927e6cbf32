// Package memrepo provides the default in-memory app.Repository
// implementation used for standalone runs with no external persistence
// configured (spec §4.6, §6 "Persisted state").
package memrepo

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/app"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/domain"
)

// record is a stored opportunity plus its terminal state, if ended.
type record struct {
	opp      domain.ActiveOpportunity
	ended    bool
	lastSpread, lastAPY decimal.Decimal
}

// Repository is a process-local, mutex-guarded app.Repository. It survives
// only for the lifetime of the process; nothing here is durable.
type Repository struct {
	mu      sync.Mutex
	records map[domain.OpportunityKey]record
}

// New constructs an empty in-memory Repository.
func New() *Repository {
	return &Repository{records: make(map[domain.OpportunityKey]record)}
}

func (r *Repository) Upsert(ctx context.Context, opp domain.ActiveOpportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[opp.Key()] = record{opp: opp}
	return nil
}

func (r *Repository) MarkAsEnded(ctx context.Context, key domain.OpportunityKey, lastSpread, lastAPY decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return nil
	}
	rec.ended = true
	rec.lastSpread = lastSpread
	rec.lastAPY = lastAPY
	r.records[key] = rec
	return nil
}

// Snapshot returns every currently-active (non-ended) opportunity, for
// diagnostics/health surfaces.
func (r *Repository) Snapshot() []domain.ActiveOpportunity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ActiveOpportunity, 0, len(r.records))
	for _, rec := range r.records {
		if !rec.ended {
			out = append(out, rec.opp)
		}
	}
	return out
}

var _ app.Repository = (*Repository)(nil)
