package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LiveIndicators is a timestamped snapshot of a symbol's full technical
// indicator set (§3). Produced once per new sealed 1m candle.
type LiveIndicators struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"`

	RSI14 float64 `json:"rsi_14"`
	RSI7  float64 `json:"rsi_7"`

	MACDLine float64 `json:"macd_line"`
	MACDSig  float64 `json:"macd_signal"`
	MACDHist float64 `json:"macd_hist"`

	EMA9  decimal.Decimal `json:"ema_9"`
	EMA21 decimal.Decimal `json:"ema_21"`

	ATR decimal.Decimal `json:"atr"`

	BBUpper  decimal.Decimal `json:"bb_upper"`
	BBMiddle decimal.Decimal `json:"bb_middle"`
	BBLower  decimal.Decimal `json:"bb_lower"`
	BBWidth  float64         `json:"bb_width"`
	// BBPosition is where price sits within the band: 0 = lower, 1 = upper.
	BBPosition float64 `json:"bb_position"`

	VolumeRatio float64 `json:"volume_ratio"`
	OBV         decimal.Decimal `json:"obv"`
	OBVSlope    float64         `json:"obv_slope"`

	BuyPressure  float64 `json:"buy_pressure"`
	VWAPDistance float64 `json:"vwap_distance"` // fraction, e.g. 0.01 = +1%
	ChopScore    float64 `json:"chop_score"`    // 0..1

	// Multi-timeframe trend percentages.
	Trend1m float64 `json:"trend_1m"`
	Trend5m float64 `json:"trend_5m"`
	Trend15m float64 `json:"trend_15m"`
	Trend1h float64 `json:"trend_1h"`
	Trend4h float64 `json:"trend_4h"`
	Trend1d float64 `json:"trend_1d"`
	Trend7d float64 `json:"trend_7d"`

	DailyRangePosition  float64 `json:"daily_range_position"`
	WeeklyRangePosition float64 `json:"weekly_range_position"`

	// PriceChangePct over trailing windows, computed from the 1m series.
	PriceChange1m  float64 `json:"price_change_1m"`
	PriceChange5m  float64 `json:"price_change_5m"`
	PriceChange15m float64 `json:"price_change_15m"`

	HourlyRSI14 float64 `json:"hourly_rsi_14"`
}

// IndicatorStaleAfter is the freshness budget from §3: stale if age > 120s.
const IndicatorStaleAfter = 120 * time.Second

// Stale reports whether this snapshot is older than its freshness budget.
func (li *LiveIndicators) Stale(now time.Time) bool {
	if li.TS.IsZero() {
		return true
	}
	return now.Sub(li.TS) > IndicatorStaleAfter
}

// MLScore is the inference-only ML scorer's output (§3). Derived by
// weighted-sum-then-tanh over a fixed 17-feature vector (§1 non-goal: no
// training, inference only).
type MLScore struct {
	Symbol     string    `json:"symbol"`
	RawScore   float64   `json:"raw_score"`  // [-1, +1]
	Confidence float64   `json:"confidence"` // [0, 1]
	TS         time.Time `json:"ts"`
}

// MLScoreStaleAfter is the freshness budget from §3: stale if age > 180s.
const MLScoreStaleAfter = 180 * time.Second

// Stale reports whether this score is older than its freshness budget.
func (s *MLScore) Stale(now time.Time) bool {
	if s.TS.IsZero() {
		return true
	}
	return now.Sub(s.TS) > MLScoreStaleAfter
}

// Bullish reports a positive raw score.
func (s *MLScore) Bullish() bool { return s.RawScore > 0 }

// Bearish reports a negative raw score.
func (s *MLScore) Bearish() bool { return s.RawScore < 0 }

// Regime is the coarse market-mood classification from §3.
type Regime string

const (
	RegimeNormal   Regime = "normal"
	RegimeCaution  Regime = "caution"
	RegimeRiskOff  Regime = "risk_off"
)

// RegimeState holds the current regime plus the BTC trend that drove it.
type RegimeState struct {
	Regime       Regime    `json:"regime"`
	BTC1hPct     float64   `json:"btc_1h_pct"`
	SentimentExt bool      `json:"sentiment_extreme"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClassifyRegime maps a BTC 1h percent change (and optional sentiment
// extreme flag) to a Regime per §3: risk_off <= -3%, caution <= -1.5%,
// else normal. An extreme sentiment reading bumps normal up to caution.
func ClassifyRegime(btc1hPct float64, sentimentExtreme bool) Regime {
	switch {
	case btc1hPct <= -3.0:
		return RegimeRiskOff
	case btc1hPct <= -1.5:
		return RegimeCaution
	case sentimentExtreme:
		return RegimeCaution
	default:
		return RegimeNormal
	}
}
