package feature

import (
	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

// volWindowLen is the trailing sample count used for the volume-ratio
// computation (current candle volume vs its own recent average).
const volWindowLen = 20

// FeatureState is the full incremental indicator set for one symbol,
// generalized from the teacher's one-indicator-per-goroutine model
// (internal/indicator/engine.go ran a single Engine per metric) into a
// single struct that owns every §3 LiveIndicators component and updates
// it in O(1) per sealed candle.
type FeatureState struct {
	Symbol string

	rsi14 *RSI
	rsi7  *RSI
	hrsi  *RSI // 14-period RSI fed by sealed 1h candles (HourlyRSI14)
	macd  *MACD
	bb    *Bollinger
	obv   *OBV

	volWindow []float64
	volPos    int
	volCount  int
}

// NewFeatureState creates an empty indicator set for a symbol.
func NewFeatureState(symbol string) *FeatureState {
	return &FeatureState{
		Symbol:    symbol,
		rsi14:     NewRSI(14),
		rsi7:      NewRSI(7),
		hrsi:      NewRSI(14),
		macd:      NewMACD(),
		bb:        NewBollinger(20),
		obv:       NewOBV(),
		volWindow: make([]float64, volWindowLen),
	}
}

// Process feeds a newly sealed candle into the indicator set. 1m candles
// drive RSI/MACD/Bollinger/OBV and the volume-ratio window; 1h candles
// additionally feed the separate hourly RSI. It returns a fresh
// LiveIndicators snapshot (only produced on 1m seals, per §3) paired with
// the candle buffer's bounded-window derived values (EMA, ATR, VWAP
// distance, multi-TF trend, range position).
func (f *FeatureState) Process(c model.Candle, buf *model.CandleBuffer) *model.LiveIndicators {
	closeF := toF(c.Close)
	volF := toF(c.Volume)

	switch c.TF {
	case model.TF1h:
		f.hrsi.Update(closeF)
		return nil
	case model.TF5m, model.TF1d:
		return nil
	case model.TF1m:
		// fall through to full update below
	default:
		return nil
	}

	f.rsi14.Update(closeF)
	f.rsi7.Update(closeF)
	f.macd.Update(closeF)
	f.bb.Update(closeF)
	f.obv.Update(closeF, volF)
	f.pushVolume(volF)

	snap := &model.LiveIndicators{
		Symbol: f.Symbol,
		TS:     c.TS,

		RSI14:    f.rsi14.Value(),
		RSI7:     f.rsi7.Value(),
		MACDLine: f.macd.Line(),
		MACDSig:  f.macd.Signal(),
		MACDHist: f.macd.Histogram(),

		OBV:      decimal.NewFromFloat(f.obv.Value()),
		OBVSlope: f.obv.Slope(),

		VolumeRatio: f.volumeRatio(volF),

		HourlyRSI14: f.hrsi.Value(),
	}

	if f.bb.Ready() {
		snap.BBUpper = decimal.NewFromFloat(f.bb.Upper())
		snap.BBMiddle = decimal.NewFromFloat(f.bb.Mid())
		snap.BBLower = decimal.NewFromFloat(f.bb.Lower())
		snap.BBWidth = f.bb.Bandwidth()
		snap.BBPosition = clamp01(f.bb.PercentB(closeF))
	}

	if ema9, ok := buf.EMA(9, model.TF1m); ok {
		snap.EMA9 = ema9
	}
	if ema21, ok := buf.EMA(21, model.TF1m); ok {
		snap.EMA21 = ema21
	}
	if atr, ok := buf.ATR(14, model.TF1m); ok {
		snap.ATR = atr
	}

	vwap := buf.VWAP(20, model.TF1m)
	if !vwap.IsZero() {
		snap.VWAPDistance = toF(c.Close.Sub(vwap).Div(vwap))
	}

	snap.BuyPressure = buyPressure(c)
	snap.ChopScore = chopScore(snap.BBWidth, f.obv.Slope())

	snap.Trend1m = trendPct(buf, model.TF1m, 1)
	snap.Trend5m = trendPct(buf, model.TF5m, 1)
	snap.Trend15m = trendPct(buf, model.TF5m, 3)
	snap.Trend1h = trendPct(buf, model.TF1h, 1)
	snap.Trend4h = trendPct(buf, model.TF1h, 4)
	snap.Trend1d = trendPct(buf, model.TF1d, 1)
	snap.Trend7d = trendPct(buf, model.TF1d, 7)

	snap.PriceChange1m = trendPct(buf, model.TF1m, 1)
	snap.PriceChange5m = trendPct(buf, model.TF1m, 5)
	snap.PriceChange15m = trendPct(buf, model.TF1m, 15)

	snap.DailyRangePosition = rangePosition(buf, model.TF1d, 1, closeF)
	snap.WeeklyRangePosition = rangePosition(buf, model.TF1d, 7, closeF)

	return snap
}

func (f *FeatureState) pushVolume(v float64) {
	f.volWindow[f.volPos] = v
	f.volPos = (f.volPos + 1) % len(f.volWindow)
	if f.volCount < len(f.volWindow) {
		f.volCount++
	}
}

// volumeRatio compares the just-sealed candle's volume against the
// trailing average (including the current sample, which pushVolume has
// already recorded — close enough for a live ratio, same tolerance the
// teacher's engine.go accepts for its own running averages).
func (f *FeatureState) volumeRatio(current float64) float64 {
	if f.volCount == 0 {
		return 1.0
	}
	sum := 0.0
	for i := 0; i < f.volCount; i++ {
		sum += f.volWindow[i]
	}
	avg := sum / float64(f.volCount)
	if avg == 0 {
		return 1.0
	}
	return current / avg
}

// buyPressure is the close-location-value of the candle: +1 when the
// close printed at the high, -1 at the low.
func buyPressure(c model.Candle) float64 {
	high, low, close := toF(c.High), toF(c.Low), toF(c.Close)
	rng := high - low
	if rng == 0 {
		return 0
	}
	return (2*(close-low)/rng - 1)
}

// chopScore blends band compression with OBV indecision into a single
// 0..1 "is this range-bound" measure: tight bands and a flat OBV slope
// both push the score toward 1 (choppy); wide bands or a strong OBV
// slope push it toward 0 (trending).
func chopScore(bbWidth, obvSlope float64) float64 {
	bandComponent := 1 - clamp01(bbWidth*10)
	slopeComponent := 1 - clamp01(absF(obvSlope)/1000)
	return clamp01((bandComponent + slopeComponent) / 2)
}

// trendPct returns the percent change between the latest sealed candle
// of tf and the one `back` candles earlier.
func trendPct(buf *model.CandleBuffer, tf model.Timeframe, back int) float64 {
	s := buf.Snapshot(tf)
	if len(s) <= back {
		return 0
	}
	latest := toF(s[len(s)-1].Close)
	prior := toF(s[len(s)-1-back].Close)
	if prior == 0 {
		return 0
	}
	return (latest - prior) / prior
}

// rangePosition locates the latest close within the high/low range of
// the trailing `n` candles of tf: 0 at the range low, 1 at the high.
func rangePosition(buf *model.CandleBuffer, tf model.Timeframe, n int, closeF float64) float64 {
	s := buf.Snapshot(tf)
	if len(s) == 0 {
		return 0.5
	}
	if n > len(s) {
		n = len(s)
	}
	window := s[len(s)-n:]
	hi, lo := toF(window[0].High), toF(window[0].Low)
	for _, c := range window[1:] {
		if h := toF(c.High); h > hi {
			hi = h
		}
		if l := toF(c.Low); l < lo {
			lo = l
		}
	}
	if hi == lo {
		return 0.5
	}
	return clamp01((closeF - lo) / (hi - lo))
}

func toF(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Ready reports whether the core indicator set (RSI/MACD) has seeded
// enough history to be meaningful — used by the intelligence layer to
// gate scoring on symbols still warming up.
func (f *FeatureState) Ready() bool {
	return f.rsi14.Ready() && f.macd.Ready()
}
