package intelligence

import (
	"math"
	"time"

	"cryptomomentum-corev1/internal/model"
)

// mlFeatureCount is the fixed feature-vector width the spec prescribes
// (§3 MLScore: "weighted-sum-then-tanh over a fixed 17-feature vector").
const mlFeatureCount = 17

// mlWeights is the fixed inference weight vector. This is deliberately
// not learned at runtime (§1 non-goal: no ML training) — it is hand-tuned
// once and baked in, the same way the teacher's indicator package bakes
// in its smoothing constants rather than fitting them.
var mlWeights = [mlFeatureCount]float64{
	0.9,  // RSI14 deviation from 50, normalized
	0.4,  // RSI7 deviation from 50, normalized
	0.8,  // MACD histogram sign*magnitude, normalized
	0.3,  // MACD line above/below signal
	0.6,  // EMA9 vs EMA21 stacking
	0.5,  // Bollinger %B centered
	0.4,  // Bollinger bandwidth (compression favors breakout continuation)
	0.5,  // volume ratio, log-scaled
	0.5,  // OBV slope sign*magnitude
	0.7,  // buy pressure
	0.6,  // VWAP distance
	0.4,  // chop score (inverted: low chop is bullish for continuation)
	0.5,  // trend 15m
	0.5,  // trend 1h
	0.3,  // trend 4h
	0.2,  // trend 1d
	0.3,  // daily range position centered
}

// MLScorer produces an inference-only MLScore from a LiveIndicators
// snapshot: build a fixed 17-feature vector, weighted-sum, squash with
// tanh into raw_score, and derive confidence from the squashed
// magnitude — mirroring the teacher's indicator.Engine's "compute once,
// cache" shape but with a fixed weight dot-product instead of a single
// recurrence.
type MLScorer struct{}

// NewMLScorer creates a stateless inference-only scorer.
func NewMLScorer() *MLScorer { return &MLScorer{} }

// Score builds the feature vector from a LiveIndicators snapshot and
// returns the resulting MLScore, timestamped now.
func (s *MLScorer) Score(li *model.LiveIndicators, now time.Time) model.MLScore {
	f := mlFeatures(li)
	var sum float64
	for i, w := range mlWeights {
		sum += w * f[i]
	}
	raw := math.Tanh(sum)
	confidence := math.Abs(raw)

	return model.MLScore{
		Symbol:     li.Symbol,
		RawScore:   raw,
		Confidence: confidence,
		TS:         now,
	}
}

func mlFeatures(li *model.LiveIndicators) [mlFeatureCount]float64 {
	ema9, _ := li.EMA9.Float64()
	ema21, _ := li.EMA21.Float64()
	bbWidth := li.BBWidth

	emaStack := 0.0
	if ema21 != 0 {
		emaStack = clampf((ema9-ema21)/ema21*100, -1, 1)
	}

	return [mlFeatureCount]float64{
		clampf((li.RSI14-50)/50, -1, 1),
		clampf((li.RSI7-50)/50, -1, 1),
		clampf(li.MACDHist*100, -1, 1),
		clampf(li.MACDLine-li.MACDSig, -1, 1),
		emaStack,
		clampf(li.BBPosition*2-1, -1, 1),
		clampf(1-bbWidth*10, -1, 1),
		clampf(math.Log(1+li.VolumeRatio)/math.Log(6), -1, 1),
		clampf(li.OBVSlope/1000, -1, 1),
		clampf(li.BuyPressure, -1, 1),
		clampf(li.VWAPDistance*20, -1, 1),
		clampf(1-li.ChopScore*2, -1, 1),
		clampf(li.Trend15m*20, -1, 1),
		clampf(li.Trend1h*10, -1, 1),
		clampf(li.Trend4h*5, -1, 1),
		clampf(li.Trend1d*3, -1, 1),
		clampf(li.DailyRangePosition*2-1, -1, 1),
	}
}

func clampf(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
