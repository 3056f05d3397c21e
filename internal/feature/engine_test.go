package feature

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

func candle(symbol string, tf model.Timeframe, ts time.Time, o, h, l, c, v float64) model.Candle {
	return model.Candle{
		Symbol: symbol,
		TF:     tf,
		TS:     ts,
		Open:   decimal.NewFromFloat(o),
		High:   decimal.NewFromFloat(h),
		Low:    decimal.NewFromFloat(l),
		Close:  decimal.NewFromFloat(c),
		Volume: decimal.NewFromFloat(v),
	}
}

func TestProcessReturnsNilForNon1mCandles(t *testing.T) {
	fs := NewFeatureState("BTC-USD")
	buf := model.NewCandleBuffer("BTC-USD")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c5 := candle("BTC-USD", model.TF5m, start, 100, 101, 99, 100, 10)
	if snap := fs.Process(c5, buf); snap != nil {
		t.Fatal("expected nil snapshot for a 5m candle")
	}

	c1h := candle("BTC-USD", model.TF1h, start, 100, 101, 99, 100, 10)
	if snap := fs.Process(c1h, buf); snap != nil {
		t.Fatal("expected nil snapshot for a 1h candle (feeds hourly RSI only)")
	}
}

func TestProcessEmitsSnapshotOn1mCandle(t *testing.T) {
	fs := NewFeatureState("BTC-USD")
	buf := model.NewCandleBuffer("BTC-USD")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	price := 100.0
	var snap *model.LiveIndicators
	for i := 0; i < 40; i++ {
		price += 0.5
		ts := start.Add(time.Duration(i) * time.Minute)
		c := candle("BTC-USD", model.TF1m, ts, price-0.5, price+0.2, price-0.3, price, 100+float64(i))
		buf.Append(c)
		snap = fs.Process(c, buf)
	}

	if snap == nil {
		t.Fatal("expected a snapshot after 40 1m candles")
	}
	if snap.Symbol != "BTC-USD" {
		t.Fatalf("expected symbol BTC-USD, got %s", snap.Symbol)
	}
	if snap.RSI14 <= 50 {
		t.Fatalf("expected elevated RSI on a sustained uptrend, got %v", snap.RSI14)
	}
	if snap.BBUpper.IsZero() {
		t.Fatal("expected Bollinger bands to be populated once the window fills")
	}
	if snap.Trend1m <= 0 {
		t.Fatalf("expected positive 1m trend on an uptrend, got %v", snap.Trend1m)
	}
}

func TestHourlyRSIFedSeparatelyFromOneMinute(t *testing.T) {
	fs := NewFeatureState("BTC-USD")
	buf := model.NewCandleBuffer("BTC-USD")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	price := 100.0
	for i := 0; i < 20; i++ {
		price += 1
		ts := start.Add(time.Duration(i) * time.Hour)
		c := candle("BTC-USD", model.TF1h, ts, price-1, price+1, price-1, price, 50)
		fs.Process(c, buf)
	}

	snap := fs.Process(candle("BTC-USD", model.TF1m, start.Add(21*time.Hour), 120, 121, 119, 120, 10), buf)
	if snap == nil {
		t.Fatal("expected a snapshot on the 1m seal")
	}
	if snap.HourlyRSI14 <= 50 {
		t.Fatalf("expected elevated hourly RSI fed independently of 1m closes, got %v", snap.HourlyRSI14)
	}
}

func TestBuyPressurePositiveWhenCloseNearHigh(t *testing.T) {
	c := candle("BTC-USD", model.TF1m, time.Now(), 100, 110, 100, 109, 10)
	bp := buyPressure(c)
	if bp <= 0 {
		t.Fatalf("expected positive buy pressure when close is near the high, got %v", bp)
	}
}

func TestBuyPressureZeroOnFlatCandle(t *testing.T) {
	c := candle("BTC-USD", model.TF1m, time.Now(), 100, 100, 100, 100, 10)
	if bp := buyPressure(c); bp != 0 {
		t.Fatalf("expected zero buy pressure on a zero-range candle, got %v", bp)
	}
}
