package feature

import "testing"

func TestMACDNotReadyBeforeSlowPeriod(t *testing.T) {
	m := NewMACD()
	for i := 0; i < 20; i++ {
		m.Update(100 + float64(i))
	}
	if m.Ready() {
		t.Fatal("should not be ready before the 26-period slow EMA seeds")
	}
}

func TestMACDReadyAndRisingOnUptrend(t *testing.T) {
	m := NewMACD()
	price := 100.0
	for i := 0; i < 60; i++ {
		price += 1
		m.Update(price)
	}
	if !m.Ready() {
		t.Fatal("expected ready after 60 updates")
	}
	if m.Line() <= 0 {
		t.Fatalf("expected positive MACD line on sustained uptrend, got %v", m.Line())
	}
}
