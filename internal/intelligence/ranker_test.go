package intelligence

import (
	"testing"

	"cryptomomentum-corev1/internal/model"
)

func TestPredictiveRankerNilIndicatorsYieldsZero(t *testing.T) {
	r := NewPredictiveRanker()
	if boost := r.Boost(nil); boost != 0 {
		t.Fatalf("expected zero boost with nil indicators, got %v", boost)
	}
}

func TestPredictiveRankerAlignedUptrendIsPositive(t *testing.T) {
	r := NewPredictiveRanker()
	li := &model.LiveIndicators{
		Trend1m: 0.001, Trend5m: 0.01, Trend15m: 0.015,
		Trend1h: 0.02, Trend4h: 0.03, Trend1d: 0.04,
		VolumeRatio: 2, RSI14: 60, MACDHist: 0.001, VWAPDistance: 0.002,
	}
	if boost := r.Boost(li); boost <= 0 {
		t.Fatalf("expected positive boost for a fully aligned uptrend, got %v", boost)
	}
}

func TestPredictiveRankerPenalizesMissedMove(t *testing.T) {
	r := NewPredictiveRanker()
	aligned := &model.LiveIndicators{
		Trend1m: 0.001, Trend5m: 0.01, Trend1h: 0.02, Trend4h: 0.03, Trend1d: 0.04,
	}
	chased := &model.LiveIndicators{
		Trend1m: 0.05, Trend5m: 0.01, Trend1h: 0.02, Trend4h: 0.03, Trend1d: 0.04,
	}
	if r.Boost(chased) >= r.Boost(aligned) {
		t.Fatal("expected a chased (already-moved) setup to score lower than a fresh aligned one")
	}
}

func TestPredictiveRankerClampsToMaxBoost(t *testing.T) {
	r := NewPredictiveRanker()
	li := &model.LiveIndicators{
		Trend1m: 0.001, Trend5m: 0.01, Trend15m: 0.015,
		Trend1h: 0.02, Trend4h: 0.03, Trend1d: 0.04,
		VolumeRatio: 10, RSI14: 60, MACDHist: 0.01, VWAPDistance: 0.01,
	}
	if boost := r.Boost(li); boost > rankerMaxBoost {
		t.Fatalf("expected boost clamped to %v, got %v", rankerMaxBoost, boost)
	}
}
