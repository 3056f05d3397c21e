// Package intelligence implements the regime detector, session-based size
// multiplier, position limits, and entry scorers of §4.4, composed into a
// single IntelligenceLayer (§9: explicit struct, no package-level
// singletons — every dependency is constructed and wired in cmd/bot).
package intelligence

import (
	"sync"
	"time"

	"cryptomomentum-corev1/internal/model"
)

// RegimeDetector tracks BTC's 1h trend (and an optional sentiment-extreme
// flag) and derives the coarse market regime via model.ClassifyRegime.
// Grounded on the teacher's markethours package shape: a small stateful
// tracker over a periodically-refreshed external signal, exposing a
// cheap read method the rest of the core polls.
type RegimeDetector struct {
	mu    sync.RWMutex
	state model.RegimeState
}

// NewRegimeDetector starts in the normal regime until the first update.
func NewRegimeDetector() *RegimeDetector {
	return &RegimeDetector{state: model.RegimeState{Regime: model.RegimeNormal}}
}

// Update feeds a fresh BTC 1h percent-change reading (and sentiment-extreme
// flag) and recomputes the regime.
func (r *RegimeDetector) Update(btc1hPct float64, sentimentExtreme bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = model.RegimeState{
		Regime:       model.ClassifyRegime(btc1hPct, sentimentExtreme),
		BTC1hPct:     btc1hPct,
		SentimentExt: sentimentExtreme,
		UpdatedAt:    now,
	}
}

// Current returns the latest regime state.
func (r *RegimeDetector) Current() model.RegimeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// ThresholdBump returns the additional score points required to enter
// under the current regime (§4.4: caution +5, risk_off +10).
func (r *RegimeDetector) ThresholdBump() float64 {
	switch r.Current().Regime {
	case model.RegimeCaution:
		return 5
	case model.RegimeRiskOff:
		return 10
	default:
		return 0
	}
}
