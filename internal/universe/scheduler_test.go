package universe

import (
	"testing"

	"cryptomomentum-corev1/internal/model"
)

func TestRecordCandleCrossesWarmthThreshold(t *testing.T) {
	s := NewScheduler()
	s.SetUniverse(map[string]model.Tier{"BTC-USD": model.TierWS})

	for i := 0; i < 19; i++ {
		if crossed := s.RecordCandle("BTC-USD", model.TF1m); crossed {
			t.Fatalf("should not be warm after %d 1m candles", i+1)
		}
	}
	for i := 0; i < 9; i++ {
		s.RecordCandle("BTC-USD", model.TF5m)
	}
	if s.Warm("BTC-USD") {
		t.Fatal("should not be warm yet — only 19x1m, 9x5m")
	}

	s.RecordCandle("BTC-USD", model.TF1m) // 20th
	crossed := s.RecordCandle("BTC-USD", model.TF5m) // 10th
	if !crossed {
		t.Fatal("expected warmth to cross on the 20th 1m / 10th 5m candle")
	}
	if !s.Warm("BTC-USD") {
		t.Fatal("expected symbol to be warm")
	}
}

func TestDemotionFromT1DoesNotClearWarmth(t *testing.T) {
	s := NewScheduler()
	s.SetUniverse(map[string]model.Tier{"ETH-USD": model.TierWS})
	for i := 0; i < 20; i++ {
		s.RecordCandle("ETH-USD", model.TF1m)
	}
	for i := 0; i < 10; i++ {
		s.RecordCandle("ETH-USD", model.TF5m)
	}
	if !s.Warm("ETH-USD") {
		t.Fatal("expected symbol to be warm before demotion")
	}

	s.SetUniverse(map[string]model.Tier{"ETH-USD": model.TierFastREST})
	if !s.Warm("ETH-USD") {
		t.Fatal("demotion from T1 must not clear warmth")
	}
}

func TestPromotionToT1FiresCallback(t *testing.T) {
	s := NewScheduler()
	var promoted []string
	s.OnPromoteToT1 = func(symbol string) { promoted = append(promoted, symbol) }

	s.SetUniverse(map[string]model.Tier{"SOL-USD": model.TierFastREST})
	s.SetUniverse(map[string]model.Tier{"SOL-USD": model.TierWS})

	if len(promoted) != 1 || promoted[0] != "SOL-USD" {
		t.Fatalf("expected exactly one promotion of SOL-USD, got %v", promoted)
	}
}
