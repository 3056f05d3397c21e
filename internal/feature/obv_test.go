package feature

import "testing"

func TestOBVAccumulatesOnUpCloses(t *testing.T) {
	o := NewOBV()
	o.Update(100, 10) // seed, no volume applied yet
	o.Update(101, 5)
	o.Update(102, 3)
	if o.Value() != 8 {
		t.Fatalf("expected OBV 8 after two up closes, got %v", o.Value())
	}
}

func TestOBVSubtractsOnDownCloses(t *testing.T) {
	o := NewOBV()
	o.Update(100, 10)
	o.Update(99, 5)
	if o.Value() != -5 {
		t.Fatalf("expected OBV -5 after a down close, got %v", o.Value())
	}
}

func TestOBVFlatCloseDoesNotChangeValue(t *testing.T) {
	o := NewOBV()
	o.Update(100, 10)
	o.Update(100, 7)
	if o.Value() != 0 {
		t.Fatalf("expected OBV unchanged on a flat close, got %v", o.Value())
	}
}
