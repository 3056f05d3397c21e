package tfbuilder

import (
	"testing"
	"time"

	"cryptomomentum-corev1/internal/model"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func oneMinCandle(symbol string, ts time.Time, open, high, low, close_, vol string) model.Candle {
	return model.Candle{
		Symbol: symbol,
		TF:     model.TF1m,
		TS:     ts,
		Open:   d(open),
		High:   d(high),
		Low:    d(low),
		Close:  d(close_),
		Volume: d(vol),
	}
}

func TestBuilderAggregatesFiveMinutesIntoOneBucket(t *testing.T) {
	b := New([]model.Timeframe{model.TF5m})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(chan model.Candle, 10)

	for i := 0; i < 5; i++ {
		c := oneMinCandle("BTC-USD", base.Add(time.Duration(i)*time.Minute), "100", "101", "99", "100.5", "10")
		b.Process(c, out)
	}
	// Sixth 1m candle rolls the 5m bucket over — first bucket should emit.
	rollover := oneMinCandle("BTC-USD", base.Add(5*time.Minute), "100.5", "102", "100", "101", "10")
	b.Process(rollover, out)

	select {
	case finalized := <-out:
		if !finalized.Volume.Equal(d("50")) {
			t.Fatalf("expected volume 50 (5x10), got %s", finalized.Volume)
		}
		if !finalized.Open.Equal(d("100")) {
			t.Fatalf("expected open 100, got %s", finalized.Open)
		}
		if !finalized.High.Equal(d("101")) {
			t.Fatalf("expected high 101, got %s", finalized.High)
		}
	default:
		t.Fatal("expected a finalized 5m candle after bucket rollover")
	}
}

func TestBuilderDropsCandleBeyondStaleTolerance(t *testing.T) {
	b := New([]model.Timeframe{model.TF5m})
	b.StaleTolerance = 1 * time.Minute
	var staleCount int
	b.OnStaleCandle = func() { staleCount++ }

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(chan model.Candle, 10)

	// Advance the forming bucket to 00:10 (5m bucket starting at 00:10).
	b.Process(oneMinCandle("BTC-USD", base.Add(10*time.Minute), "100", "101", "99", "100", "1"), out)

	// A candle for 00:00 arrives 10 minutes late — well beyond the 1m tolerance.
	b.Process(oneMinCandle("BTC-USD", base, "90", "91", "89", "90", "1"), out)

	if staleCount == 0 {
		t.Fatal("expected the late candle to be rejected as stale")
	}
}
