package intelligence

import (
	"testing"
	"time"

	"cryptomomentum-corev1/internal/model"
)

func TestNewLayerWiresAllComponents(t *testing.T) {
	l := NewLayer(Config{
		Limits: PositionLimits{MaxGlobalPositions: 10},
		Scorer: EntryScorerConfig{EntryScoreMin: 60},
	}, time.Now())

	if l.Regime == nil || l.Limits == nil || l.Daily == nil || l.Scorer == nil || l.Ranker == nil || l.ML == nil {
		t.Fatal("expected NewLayer to wire every sub-component")
	}
}

func TestLayerCachesMLScoresBySymbol(t *testing.T) {
	l := NewLayer(Config{}, time.Now())
	l.UpdateMLScore(model.MLScore{Symbol: "BTC-USD", RawScore: 0.4})

	got, ok := l.MLScoreFor("BTC-USD")
	if !ok || got.RawScore != 0.4 {
		t.Fatalf("expected cached ML score for BTC-USD, got %v ok=%v", got, ok)
	}
	if _, ok := l.MLScoreFor("ETH-USD"); ok {
		t.Fatal("expected no cached score for a symbol never updated")
	}
}
