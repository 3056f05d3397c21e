package universe

import (
	"sync"

	"cryptomomentum-corev1/internal/model"
)

// Scheduler owns per-symbol tier assignment and warmth tracking (§4.2).
// Tier assignment itself is driven externally (by a hot-list ranker via
// SetUniverse); the scheduler owns warmth bookkeeping and promotion/
// demotion callbacks. Hot-swap on SetUniverse follows the teacher's
// tfbuilder.UpdateTFs pattern: keep state for symbols that persist, only
// rebuild what changed.
type Scheduler struct {
	mu    sync.RWMutex
	state map[string]*model.TierAssignment

	// OnPromoteToT1 fires when a symbol enters T1 — the caller should
	// enqueue a backfill job (§4.2: "promotion to T1 enqueues a backfill
	// job").
	OnPromoteToT1 func(symbol string)
	// OnTierChange fires on every tier transition, old may be "" for a
	// symbol's first assignment.
	OnTierChange func(symbol string, old, new model.Tier)
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{state: make(map[string]*model.TierAssignment)}
}

// SetUniverse applies a new tier assignment for the whole universe. Symbols
// not present in assignments are dropped; symbols whose tier is unchanged
// keep their accumulated warmth counts. Demotion from T1 does not clear
// warmth (§4.2).
func (s *Scheduler) SetUniverse(assignments map[string]model.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*model.TierAssignment, len(assignments))
	for symbol, tier := range assignments {
		existing, ok := s.state[symbol]
		if !ok {
			ta := &model.TierAssignment{Symbol: symbol, Tier: tier}
			next[symbol] = ta
			s.fireTierChange(symbol, "", tier)
			if tier == model.TierWS {
				s.firePromote(symbol)
			}
			continue
		}
		if existing.Tier != tier {
			old := existing.Tier
			existing.Tier = tier
			s.fireTierChange(symbol, old, tier)
			if tier == model.TierWS && old != model.TierWS {
				s.firePromote(symbol)
			}
		}
		next[symbol] = existing
	}
	s.state = next
}

func (s *Scheduler) fireTierChange(symbol string, old, new model.Tier) {
	if s.OnTierChange != nil {
		cb := s.OnTierChange
		s.mu.Unlock()
		cb(symbol, old, new)
		s.mu.Lock()
	}
}

func (s *Scheduler) firePromote(symbol string) {
	if s.OnPromoteToT1 != nil {
		cb := s.OnPromoteToT1
		s.mu.Unlock()
		cb(symbol)
		s.mu.Lock()
	}
}

// RecordCandle increments the warmth counters for symbol's TF1m/TF5m
// candles and recomputes warmth. Returns true if this call newly crossed
// the warmth threshold.
func (s *Scheduler) RecordCandle(symbol string, tf model.Timeframe) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ta, ok := s.state[symbol]
	if !ok {
		ta = &model.TierAssignment{Symbol: symbol, Tier: model.TierSlowREST}
		s.state[symbol] = ta
	}
	switch tf {
	case model.TF1m:
		ta.Count1m++
	case model.TF5m:
		ta.Count5m++
	default:
		return false
	}

	wasWarm := ta.Warm
	ta.Warm = ta.WarmNow()
	return ta.Warm && !wasWarm
}

// Tier returns the current tier for symbol, and whether it's tracked at all.
func (s *Scheduler) Tier(symbol string) (model.Tier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ta, ok := s.state[symbol]
	if !ok {
		return "", false
	}
	return ta.Tier, true
}

// Warm reports whether symbol has crossed the warmth threshold.
func (s *Scheduler) Warm(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ta, ok := s.state[symbol]
	return ok && ta.Warm
}

// SymbolsInTier returns all symbols currently assigned to tier.
func (s *Scheduler) SymbolsInTier(tier model.Tier) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for symbol, ta := range s.state {
		if ta.Tier == tier {
			out = append(out, symbol)
		}
	}
	return out
}

// Snapshot returns a copy of every tracked symbol's assignment.
func (s *Scheduler) Snapshot() []model.TierAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TierAssignment, 0, len(s.state))
	for _, ta := range s.state {
		out = append(out, *ta)
	}
	return out
}
