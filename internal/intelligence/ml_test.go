package intelligence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

func TestMLScorerBullishOnStrongUpIndicators(t *testing.T) {
	s := NewMLScorer()
	li := &model.LiveIndicators{
		Symbol:      "BTC-USD",
		RSI14:       65, RSI7: 68,
		MACDLine: 2, MACDSig: 1, MACDHist: 1,
		EMA9: decimal.NewFromInt(105), EMA21: decimal.NewFromInt(100),
		BBPosition: 0.8, BBWidth: 0.02,
		VolumeRatio: 3, OBVSlope: 500, BuyPressure: 0.6,
		VWAPDistance: 0.01, ChopScore: 0.2,
		Trend15m: 0.02, Trend1h: 0.03, Trend4h: 0.02, Trend1d: 0.01,
		DailyRangePosition: 0.8,
	}
	score := s.Score(li, time.Now())
	if !score.Bullish() {
		t.Fatalf("expected a bullish raw score for strongly bullish indicators, got %v", score.RawScore)
	}
	if score.Confidence <= 0 || score.Confidence > 1 {
		t.Fatalf("expected confidence in (0,1], got %v", score.Confidence)
	}
}

func TestMLScorerBearishOnStrongDownIndicators(t *testing.T) {
	s := NewMLScorer()
	li := &model.LiveIndicators{
		Symbol:      "ETH-USD",
		RSI14:       20, RSI7: 15,
		MACDLine: -2, MACDSig: -1, MACDHist: -1,
		EMA9: decimal.NewFromInt(95), EMA21: decimal.NewFromInt(100),
		BBPosition: 0.1, BBWidth: 0.02,
		VolumeRatio: 0.5, OBVSlope: -500, BuyPressure: -0.6,
		VWAPDistance: -0.01, ChopScore: 0.2,
		Trend15m: -0.02, Trend1h: -0.03, Trend4h: -0.02, Trend1d: -0.01,
		DailyRangePosition: 0.1,
	}
	score := s.Score(li, time.Now())
	if !score.Bearish() {
		t.Fatalf("expected a bearish raw score for strongly bearish indicators, got %v", score.RawScore)
	}
}

func TestMLScorerStalenessBudget(t *testing.T) {
	fresh := model.MLScore{TS: time.Now()}
	if fresh.Stale(time.Now()) {
		t.Fatal("expected a fresh score to not be stale")
	}
	stale := model.MLScore{TS: time.Now().Add(-4 * time.Minute)}
	if !stale.Stale(time.Now()) {
		t.Fatal("expected a 4-minute-old score to be stale (budget is 180s)")
	}
}
