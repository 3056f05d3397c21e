package intelligence

import (
	"time"

	"cryptomomentum-corev1/internal/model"
)

// BurstMetrics is the burst-detection input for the no-confidence scoring
// path (§4.4 additive-bucket table): volume/range spikes, short-term
// trend, VWAP position, spread, cap tier and price, each bucketed
// independently then summed.
type BurstMetrics struct {
	Trend15mPct     float64
	VolumeRatio     float64
	VWAPDistancePct float64
	RangeSpike      float64
	CapTier         model.CapClass
	SpreadBps       float64
	Price           float64
}

// EntryScorerConfig is the configured scoring thresholds from §6.
type EntryScorerConfig struct {
	EntryScoreMin         float64
	BaseScoreStrictCutoff float64
	MLMinConfidence       float64
	MLBoostMin            float64
	MLBoostMax            float64
	MLBoostScale          float64
}

// EntryScore is the scorer's verdict for one signal.
type EntryScore struct {
	Total       float64
	Threshold   float64
	ShouldEnter bool
	BaseScore   float64
}

// EntryScorer implements the §4.4 two-path scoring model: confidence-
// carrying signals score from their strategy confidence plus an MTF
// ranker boost; confidence-less signals score from burst-metric buckets
// plus LiveIndicators quality adjustments. Both paths finish through the
// same regime-adjusted threshold and ML gate.
type EntryScorer struct {
	cfg    EntryScorerConfig
	ranker *PredictiveRanker
}

// NewEntryScorer creates a scorer with the given config and ranker.
func NewEntryScorer(cfg EntryScorerConfig, ranker *PredictiveRanker) *EntryScorer {
	return &EntryScorer{cfg: cfg, ranker: ranker}
}

// Score evaluates a signal against its indicator snapshot, the current
// regime, and an optional ML score (nil or stale skips the ML gate).
func (s *EntryScorer) Score(sig model.Signal, burst BurstMetrics, li *model.LiveIndicators, regime *RegimeDetector, ml *model.MLScore, now time.Time) EntryScore {
	var base, total float64

	if sig.HasConfidence {
		base = clampf(sig.Confidence, 0, 1) * 100
		total = base + s.ranker.Boost(li)
	} else {
		base = burstScore(burst)
		total = base + qualityAdjustments(li)
	}

	threshold := s.cfg.EntryScoreMin + regime.ThresholdBump()

	if ml != nil && !ml.Stale(now) {
		switch {
		case ml.Bullish() && ml.Confidence >= s.cfg.MLMinConfidence:
			boost := clampf(ml.Confidence*s.cfg.MLBoostScale, s.cfg.MLBoostMin, s.cfg.MLBoostMax)
			total += boost
		case ml.Bearish() && base < s.cfg.BaseScoreStrictCutoff:
			total -= 10
		}
	} else if ml != nil && ml.Stale(now) {
		total -= 3
	}

	return EntryScore{
		Total:       total,
		Threshold:   threshold,
		ShouldEnter: total >= threshold,
		BaseScore:   base,
	}
}

// burstScore implements the §4.4 additive-bucket table for signals with
// no strategy-supplied confidence.
func burstScore(b BurstMetrics) float64 {
	score := 0.0

	switch {
	case b.Trend15mPct >= 0.02:
		score += 20
	case b.Trend15mPct >= 0.01:
		score += 15
	case b.Trend15mPct >= 0.005:
		score += 10
	case b.Trend15mPct > 0:
		score += 5
	}

	switch {
	case b.VolumeRatio >= 5:
		score += 20
	case b.VolumeRatio >= 3:
		score += 15
	case b.VolumeRatio >= 2:
		score += 10
	case b.VolumeRatio >= 1.5:
		score += 5
	}

	switch {
	case b.VWAPDistancePct > 0.005:
		score += 20
	case b.VWAPDistancePct > 0:
		score += 15
	case b.VWAPDistancePct > -0.003:
		score += 10
	}

	switch {
	case b.RangeSpike >= 3:
		score += 15
	case b.RangeSpike >= 2:
		score += 10
	case b.RangeSpike >= 1.5:
		score += 5
	}

	switch b.CapTier {
	case model.CapMicro:
		score += 20
	case model.CapSmall:
		score += 15
	case model.CapMid:
		score += 8
	case model.CapLarge:
		score += 3
	}

	switch {
	case b.SpreadBps < 5:
		score += 15
	case b.SpreadBps < 10:
		score += 10
	case b.SpreadBps < 15:
		score += 5
	}

	switch {
	case b.Price > 0 && b.Price < 0.01:
		score += 15
	case b.Price > 1000:
		score -= 5
	}

	return score
}

// qualityAdjustments applies the §4.4 LiveIndicators-derived adjustments
// to the burst-metric base score. Each dimension contributes a small,
// independently-justifiable nudge; none dominates the total on its own.
func qualityAdjustments(li *model.LiveIndicators) float64 {
	if li == nil {
		return 0
	}
	adj := 0.0

	// RSI extremes: overbought/oversold both reduce conviction for a
	// fresh long entry.
	switch {
	case li.RSI14 >= 80 || li.RSI14 <= 20:
		adj -= 5
	case li.RSI14 >= 70:
		adj -= 2
	}

	if li.MACDHist > 0 {
		adj += 3
	} else if li.MACDHist < 0 {
		adj -= 3
	}

	ema9, _ := li.EMA9.Float64()
	ema21, _ := li.EMA21.Float64()
	if ema9 > 0 && ema21 > 0 && ema9 > ema21 {
		adj += 3
	}

	if li.BBPosition > 1 {
		adj -= 2 // already broke above the upper band
	} else if li.BBPosition > 0.5 {
		adj += 2
	}

	adj += (1 - li.ChopScore) * 3 // low chop favors trend continuation

	adj += clampf(li.BuyPressure*3, -3, 3)

	if li.OBVSlope > 0 && li.Trend15m > 0 {
		adj += 2 // OBV confirms price
	} else if li.OBVSlope < 0 && li.Trend15m > 0 {
		adj -= 3 // bearish divergence against a rising price
	}

	alignedTFs := 0
	for _, t := range []float64{li.Trend5m, li.Trend1h, li.Trend4h} {
		if t > 0 {
			alignedTFs++
		}
	}
	adj += float64(alignedTFs)

	adj += clampf(li.DailyRangePosition*2-1, -2, 2)
	adj += clampf(li.WeeklyRangePosition*2-1, -2, 2)

	if li.MACDHist > 0 && li.RSI14 > 50 {
		adj += 1 // acceleration proxy: momentum building in the same direction
	}

	return adj
}
