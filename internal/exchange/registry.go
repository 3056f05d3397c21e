package exchange

import (
	"sync"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

// Registry is the single source of truth for open positions (§3
// PositionRegistry), split logically into active and dust sets without
// maintaining two maps — dust status is a predicate over SizeUSD, not a
// separate store, so a position never needs to move between structures.
// Grounded on the teacher's portfolio.Portfolio (mutex-guarded
// map[string]*Position with a snapshot-returning reader API), generalized
// from read-only mark-to-market tracking to the full §3 enforcement set
// (per-symbol exposure, per-strategy count, global count, exposure
// fraction) since the router and exit manager both mutate this map.
type Registry struct {
	mu        sync.RWMutex
	positions map[string]model.Position
	dustUSD   decimal.Decimal
}

// NewRegistry creates an empty registry with the configured dust threshold.
func NewRegistry(dustUSD decimal.Decimal) *Registry {
	return &Registry{
		positions: make(map[string]model.Position),
		dustUSD:   dustUSD,
	}
}

// Get returns the position for symbol, if any.
func (r *Registry) Get(symbol string) (model.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.positions[symbol]
	return p, ok
}

// Has reports whether symbol currently has a tracked position (any state).
func (r *Registry) Has(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.positions[symbol]
	return ok
}

// Put inserts or replaces the position for its symbol.
func (r *Registry) Put(p model.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[p.Symbol] = p
}

// Remove deletes the tracked position for symbol (full close).
func (r *Registry) Remove(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.positions, symbol)
}

// Snapshot returns a copy of every tracked position, keyed by symbol.
func (r *Registry) Snapshot() map[string]model.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.Position, len(r.positions))
	for k, v := range r.positions {
		out[k] = v
	}
	return out
}

// Active returns only positions at or above the dust threshold — the set
// every count-based limit check (§4.4 limits, §4.5 gates) must use.
func (r *Registry) Active() map[string]model.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.Position, len(r.positions))
	for k, v := range r.positions {
		if v.SizeUSD.GreaterThanOrEqual(r.dustUSD) {
			out[k] = v
		}
	}
	return out
}

// Dust returns positions below the dust threshold — tracked but excluded
// from every count-based limit.
func (r *Registry) Dust() map[string]model.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.Position, len(r.positions))
	for k, v := range r.positions {
		if v.SizeUSD.LessThan(r.dustUSD) {
			out[k] = v
		}
	}
	return out
}

// Count returns the number of active (non-dust) positions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, v := range r.positions {
		if v.SizeUSD.GreaterThanOrEqual(r.dustUSD) {
			n++
		}
	}
	return n
}

// CountByStrategy returns the number of active positions opened by the
// given strategy id (§3 "per-strategy count").
func (r *Registry) CountByStrategy(strategyID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, v := range r.positions {
		if v.SizeUSD.GreaterThanOrEqual(r.dustUSD) && v.StrategyID == strategyID {
			n++
		}
	}
	return n
}

// TotalExposureUSD sums SizeUSD across active positions.
func (r *Registry) TotalExposureUSD() decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, v := range r.positions {
		if v.SizeUSD.GreaterThanOrEqual(r.dustUSD) {
			total = total.Add(v.SizeUSD)
		}
	}
	return total
}

// MarkToMarket updates the SizeUSD of an open position from a fresh price,
// moving it between the active/dust sets implicitly via the Active/Dust
// predicates above. No-op if symbol isn't tracked.
func (r *Registry) MarkToMarket(symbol string, price decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[symbol]
	if !ok {
		return
	}
	p.MarkToMarket(price)
	r.positions[symbol] = p
}

// ExposureFraction returns current total active exposure as a fraction of
// portfolioValue, used by the router's budget gate (§4.5 gate 14).
func (r *Registry) ExposureFraction(portfolioValue decimal.Decimal) decimal.Decimal {
	if portfolioValue.IsZero() {
		return decimal.Zero
	}
	return r.TotalExposureUSD().Div(portfolioValue)
}
