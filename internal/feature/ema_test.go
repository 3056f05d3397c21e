package feature

import "testing"

func TestEMASeedsWithSimpleAverage(t *testing.T) {
	e := NewEMA(3)
	e.Update(10)
	e.Update(20)
	if e.Ready() {
		t.Fatal("should not be ready before `period` samples")
	}
	e.Update(30)
	if !e.Ready() {
		t.Fatal("expected ready after 3 samples")
	}
	if e.Value() != 20 {
		t.Fatalf("expected seed average 20, got %v", e.Value())
	}
}

func TestEMARecursesAfterSeed(t *testing.T) {
	e := NewEMA(3)
	e.Update(10)
	e.Update(20)
	e.Update(30)
	e.Update(40)
	// mult = 2/4 = 0.5, ema = 40*0.5 + 20*0.5 = 30
	if e.Value() != 30 {
		t.Fatalf("expected 30, got %v", e.Value())
	}
}

func TestEMAPeekDoesNotMutate(t *testing.T) {
	e := NewEMA(3)
	e.Update(10)
	e.Update(20)
	e.Update(30)
	before := e.Value()
	e.Peek(1000)
	if e.Value() != before {
		t.Fatal("Peek must not mutate state")
	}
}
