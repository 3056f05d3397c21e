package intelligence

import (
	"testing"
	"time"

	"cryptomomentum-corev1/internal/model"
)

func TestRegimeDetectorClassifiesRiskOff(t *testing.T) {
	r := NewRegimeDetector()
	r.Update(-4.0, false, time.Now())
	if r.Current().Regime != model.RegimeRiskOff {
		t.Fatalf("expected risk_off, got %s", r.Current().Regime)
	}
	if r.ThresholdBump() != 10 {
		t.Fatalf("expected +10 threshold bump for risk_off, got %v", r.ThresholdBump())
	}
}

func TestRegimeDetectorSentimentBumpsNormalToCaution(t *testing.T) {
	r := NewRegimeDetector()
	r.Update(0.5, true, time.Now())
	if r.Current().Regime != model.RegimeCaution {
		t.Fatalf("expected caution on extreme sentiment, got %s", r.Current().Regime)
	}
}

func TestRegimeDetectorDefaultsToNormal(t *testing.T) {
	r := NewRegimeDetector()
	if r.Current().Regime != model.RegimeNormal {
		t.Fatalf("expected normal before any update, got %s", r.Current().Regime)
	}
	if r.ThresholdBump() != 0 {
		t.Fatalf("expected zero threshold bump in normal regime, got %v", r.ThresholdBump())
	}
}
