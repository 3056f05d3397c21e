package intelligence

import (
	"testing"
	"time"

	"cryptomomentum-corev1/internal/model"
)

func defaultScorerConfig() EntryScorerConfig {
	return EntryScorerConfig{
		EntryScoreMin:         60,
		BaseScoreStrictCutoff: 50,
		MLMinConfidence:       0.55,
		MLBoostMin:            0,
		MLBoostMax:            10,
		MLBoostScale:          10,
	}
}

func TestBurstScoreStrongSetupClearsThreshold(t *testing.T) {
	b := BurstMetrics{
		Trend15mPct:     0.025,
		VolumeRatio:     6,
		VWAPDistancePct: 0.01,
		RangeSpike:      3.5,
		CapTier:         model.CapMicro,
		SpreadBps:       3,
		Price:           0.005,
	}
	score := burstScore(b)
	// 20 + 20 + 20 + 15 + 20 + 15 + 15 = 125, well above any threshold
	if score < 100 {
		t.Fatalf("expected a high burst score for a maxed-out setup, got %v", score)
	}
}

func TestBurstScoreWeakSetupScoresLow(t *testing.T) {
	b := BurstMetrics{
		Trend15mPct:     0,
		VolumeRatio:     1,
		VWAPDistancePct: -0.01,
		RangeSpike:      1,
		CapTier:         model.CapLarge,
		SpreadBps:       30,
		Price:           50,
	}
	if score := burstScore(b); score > 10 {
		t.Fatalf("expected a low burst score for a weak setup, got %v", score)
	}
}

func TestEntryScorerShouldEnterOnStrongConfidenceSignal(t *testing.T) {
	cfg := defaultScorerConfig()
	scorer := NewEntryScorer(cfg, NewPredictiveRanker())
	regime := NewRegimeDetector()
	sig := model.Signal{Symbol: "BTC-USD", HasConfidence: true, Confidence: 0.9}

	result := scorer.Score(sig, BurstMetrics{}, nil, regime, nil, time.Now())
	if !result.ShouldEnter {
		t.Fatalf("expected should_enter true for a 0.9-confidence signal, got total=%v threshold=%v", result.Total, result.Threshold)
	}
}

func TestEntryScorerRegimeRaisesThreshold(t *testing.T) {
	cfg := defaultScorerConfig()
	scorer := NewEntryScorer(cfg, NewPredictiveRanker())
	regime := NewRegimeDetector()
	regime.Update(-4.0, false, time.Now()) // risk_off, +10 threshold

	sig := model.Signal{Symbol: "BTC-USD", HasConfidence: true, Confidence: 0.65}
	result := scorer.Score(sig, BurstMetrics{}, nil, regime, nil, time.Now())
	if result.Threshold != cfg.EntryScoreMin+10 {
		t.Fatalf("expected threshold bumped by 10 in risk_off, got %v", result.Threshold)
	}
}

func TestEntryScorerMLBearishPenaltyBelowStrictCutoff(t *testing.T) {
	cfg := defaultScorerConfig()
	scorer := NewEntryScorer(cfg, NewPredictiveRanker())
	regime := NewRegimeDetector()

	sig := model.Signal{Symbol: "BTC-USD"}
	burst := BurstMetrics{CapTier: model.CapLarge} // low base score, below strict cutoff
	ml := &model.MLScore{Symbol: "BTC-USD", RawScore: -0.5, Confidence: 0.8, TS: time.Now()}

	withML := scorer.Score(sig, burst, nil, regime, ml, time.Now())
	withoutML := scorer.Score(sig, burst, nil, regime, nil, time.Now())

	if withML.Total != withoutML.Total-10 {
		t.Fatalf("expected ML bearish penalty of -10 below strict cutoff, got with=%v without=%v", withML.Total, withoutML.Total)
	}
}

func TestEntryScorerMLBullishBoostWhenConfident(t *testing.T) {
	cfg := defaultScorerConfig()
	scorer := NewEntryScorer(cfg, NewPredictiveRanker())
	regime := NewRegimeDetector()

	sig := model.Signal{Symbol: "BTC-USD", HasConfidence: true, Confidence: 0.6}
	ml := &model.MLScore{Symbol: "BTC-USD", RawScore: 0.7, Confidence: 0.9, TS: time.Now()}

	withML := scorer.Score(sig, BurstMetrics{}, nil, regime, ml, time.Now())
	withoutML := scorer.Score(sig, BurstMetrics{}, nil, regime, nil, time.Now())

	if withML.Total <= withoutML.Total {
		t.Fatalf("expected ML bullish boost to raise the total, with=%v without=%v", withML.Total, withoutML.Total)
	}
	if withML.Total-withoutML.Total > cfg.MLBoostMax {
		t.Fatalf("expected boost clamped to MLBoostMax=%v, got delta=%v", cfg.MLBoostMax, withML.Total-withoutML.Total)
	}
}

func TestEntryScorerMLStalePenalty(t *testing.T) {
	cfg := defaultScorerConfig()
	scorer := NewEntryScorer(cfg, NewPredictiveRanker())
	regime := NewRegimeDetector()
	sig := model.Signal{Symbol: "BTC-USD", HasConfidence: true, Confidence: 0.7}

	stale := &model.MLScore{Symbol: "BTC-USD", RawScore: 0.5, Confidence: 0.9, TS: time.Now().Add(-10 * time.Minute)}
	withStale := scorer.Score(sig, BurstMetrics{}, nil, regime, stale, time.Now())
	withoutML := scorer.Score(sig, BurstMetrics{}, nil, regime, nil, time.Now())

	if withStale.Total != withoutML.Total-3 {
		t.Fatalf("expected -3 penalty for a stale ML score, got with=%v without=%v", withStale.Total, withoutML.Total)
	}
}
