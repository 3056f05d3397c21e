package model

import (
	"sync"

	"github.com/shopspring/decimal"
)

// bufferCaps gives the bounded capacity per timeframe per §3 CandleBuffer.
var bufferCaps = map[Timeframe]int{
	TF1m: 120,
	TF5m: 48,
	TF1h: 48,
	TF1d: 30,
}

// CandleBuffer holds bounded, strictly-increasing candle history for one
// symbol across all tracked timeframes. Owned by the single-writer main
// loop (§5); no cross-goroutine mutation is expected, but Append/Read take
// a mutex anyway since REST backfill and the live feed can both write it.
type CandleBuffer struct {
	mu     sync.RWMutex
	Symbol string
	series map[Timeframe][]Candle
}

// NewCandleBuffer creates an empty buffer for a symbol.
func NewCandleBuffer(symbol string) *CandleBuffer {
	return &CandleBuffer{
		Symbol: symbol,
		series: make(map[Timeframe][]Candle, 4),
	}
}

// Append adds a sealed candle to the buffer for its timeframe. Rejects
// duplicates and out-of-order timestamps per the §3 CandleBuffer invariant.
// Returns false if the candle was rejected.
func (b *CandleBuffer) Append(c Candle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.series[c.TF]
	if len(s) > 0 && !c.TS.After(s[len(s)-1].TS) {
		return false // duplicate or out-of-order
	}
	s = append(s, c)
	cap := bufferCaps[c.TF]
	if cap > 0 && len(s) > cap {
		s = s[len(s)-cap:]
	}
	b.series[c.TF] = s
	return true
}

// Len returns the number of candles held for a timeframe.
func (b *CandleBuffer) Len(tf Timeframe) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.series[tf])
}

// Last returns the most recent candle for a timeframe, or false if empty.
func (b *CandleBuffer) Last(tf Timeframe) (Candle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.series[tf]
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// Snapshot returns a copy of the candle slice for a timeframe, oldest first.
func (b *CandleBuffer) Snapshot(tf Timeframe) []Candle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.series[tf]
	out := make([]Candle, len(s))
	copy(out, s)
	return out
}

// Warm reports whether enough history exists to compute indicators:
// at least 20 1m candles AND at least 10 5m candles (§4.2 TierAssignment).
func (b *CandleBuffer) Warm() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.series[TF1m]) >= 20 && len(b.series[TF5m]) >= 10
}

// VWAP computes the volume-weighted average price over the last N candles
// of the given timeframe. Returns zero if there isn't enough history.
func (b *CandleBuffer) VWAP(n int, tf Timeframe) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.series[tf]
	if len(s) == 0 {
		return decimal.Zero
	}
	if n > len(s) {
		n = len(s)
	}
	window := s[len(s)-n:]

	pvSum := decimal.Zero
	vSum := decimal.Zero
	for _, c := range window {
		typical := c.High.Add(c.Low).Add(c.Close).Div(decimal.NewFromInt(3))
		pvSum = pvSum.Add(typical.Mul(c.Volume))
		vSum = vSum.Add(c.Volume)
	}
	if vSum.IsZero() {
		return decimal.Zero
	}
	return pvSum.Div(vSum)
}

// EMA computes a `period` exponential moving average over all held closes
// of the given timeframe, seeded with the simple average of the first
// `period` closes (teacher's EMA convention in internal/indicator/ema.go).
// Returns (value, ready).
func (b *CandleBuffer) EMA(period int, tf Timeframe) (decimal.Decimal, bool) {
	b.mu.RLock()
	closes := closesOf(b.series[tf])
	b.mu.RUnlock()
	if len(closes) < period {
		return decimal.Zero, false
	}
	mult := 2.0 / float64(period+1)
	seed := 0.0
	for _, c := range closes[:period] {
		seed += toFloat(c)
	}
	ema := seed / float64(period)
	for _, c := range closes[period:] {
		price := toFloat(c)
		ema = price*mult + ema*(1-mult)
	}
	return decimal.NewFromFloat(ema), true
}

// ATR computes the Average True Range over all held candles of the given
// timeframe (at least `period`+1 needed) using Wilder smoothing. Returns
// (value, ready).
func (b *CandleBuffer) ATR(period int, tf Timeframe) (decimal.Decimal, bool) {
	b.mu.RLock()
	s := append([]Candle(nil), b.series[tf]...)
	b.mu.RUnlock()
	if len(s) < period+1 {
		return decimal.Zero, false
	}

	trueRanges := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		hl := toFloat(s[i].High) - toFloat(s[i].Low)
		hc := abs(toFloat(s[i].High) - toFloat(s[i-1].Close))
		lc := abs(toFloat(s[i].Low) - toFloat(s[i-1].Close))
		tr := maxf(hl, maxf(hc, lc))
		trueRanges = append(trueRanges, tr)
	}
	if len(trueRanges) < period {
		return decimal.Zero, false
	}

	atr := 0.0
	for _, tr := range trueRanges[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trueRanges[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return decimal.NewFromFloat(atr), true
}

func closesOf(s []Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
