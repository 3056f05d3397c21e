package intelligence

import "cryptomomentum-corev1/internal/model"

// rankerMaxBoost is the ±25-point cap on the predictive ranker's MTF
// boost (§4.4).
const rankerMaxBoost = 25.0

// missedMoveThreshold is the recent 1m move beyond which an entry is
// considered "missed" and penalized rather than chased (§4.4).
const missedMoveThreshold = 0.03

// PredictiveRanker computes an optional multi-timeframe boost for the
// entry scorer: trend alignment across 1m/5m/1h/4h/1d, a readiness
// composite (alignment + volume + RSI-in-band + VWAP + acceleration),
// and a coiling/continuation prediction signal. New package, no direct
// teacher analog (the teacher trades single-timeframe NSE candles) —
// grounded on the LiveIndicators multi-TF fields the feature engine
// already produces.
type PredictiveRanker struct{}

// NewPredictiveRanker creates a stateless ranker.
func NewPredictiveRanker() *PredictiveRanker { return &PredictiveRanker{} }

// Boost returns the ±25-clamped MTF adjustment for a symbol's current
// indicator snapshot.
func (r *PredictiveRanker) Boost(li *model.LiveIndicators) float64 {
	if li == nil {
		return 0
	}

	total := r.alignment(li) + r.readiness(li) + r.prediction(li)
	if r.missedMove(li) {
		total -= 15
	}

	return clampf(total, -rankerMaxBoost, rankerMaxBoost)
}

// alignment scores how many timeframes agree with the 1h trend's sign.
func (r *PredictiveRanker) alignment(li *model.LiveIndicators) float64 {
	ref := sign(li.Trend1h)
	if ref == 0 {
		return 0
	}
	trends := []float64{li.Trend1m, li.Trend5m, li.Trend15m, li.Trend4h, li.Trend1d}
	agree := 0
	for _, t := range trends {
		if sign(t) == ref {
			agree++
		}
	}
	// up to +10 for full agreement across all five companion timeframes
	return float64(agree) / float64(len(trends)) * 10
}

// readiness rewards volume confirmation, RSI in a healthy momentum band,
// positive VWAP positioning, and a rising MACD histogram (acceleration).
func (r *PredictiveRanker) readiness(li *model.LiveIndicators) float64 {
	score := 0.0
	if li.VolumeRatio >= 1.5 {
		score += 3
	}
	if li.RSI14 >= 50 && li.RSI14 <= 75 {
		score += 3
	}
	if li.VWAPDistance > 0 {
		score += 2
	}
	if li.MACDHist > 0 {
		score += 2
	}
	return score
}

// prediction rewards two patterns: a coiling setup (quiet 1m, hot 1h) and
// a 4h uptrend pulling back on the 1h (continuation entry).
func (r *PredictiveRanker) prediction(li *model.LiveIndicators) float64 {
	score := 0.0
	coiling := absf(li.Trend1m) < 0.002 && absf(li.Trend1h) > 0.01
	if coiling {
		score += 5
	}
	pullback := li.Trend4h > 0.01 && li.Trend1h < 0
	if pullback {
		score += 5
	}
	return score
}

// missedMove reports whether 1m has already moved more than the
// configured threshold — chasing it this late is penalized.
func (r *PredictiveRanker) missedMove(li *model.LiveIndicators) bool {
	return absf(li.Trend1m) > missedMoveThreshold
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
