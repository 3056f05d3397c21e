package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies one of the fixed candle resolutions the core tracks.
// Values are seconds, matching the exchange's REST granularity enum.
type Timeframe int

const (
	TF1m Timeframe = 60
	TF5m Timeframe = 300
	TF1h Timeframe = 3600
	TF1d Timeframe = 86400
)

// String renders the timeframe the way log lines and stream keys expect.
func (tf Timeframe) String() string {
	switch tf {
	case TF1m:
		return "1m"
	case TF5m:
		return "5m"
	case TF1h:
		return "1h"
	case TF1d:
		return "1d"
	default:
		return "?"
	}
}

// Candle is an immutable OHLCV tuple keyed by (symbol, timeframe, timestamp).
// Invariant: Low <= min(Open,Close) <= max(Open,Close) <= High, Volume >= 0.
type Candle struct {
	Symbol string          `json:"symbol"`
	TF     Timeframe       `json:"tf"`
	TS     time.Time       `json:"ts"` // bucket start, UTC, TF-aligned
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Key returns "symbol:tf", a unique key for this candle's series.
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.TF.String()
}

// Valid reports whether the candle satisfies the OHLC invariant from §3.
func (c *Candle) Valid() bool {
	if c.Volume.IsNegative() {
		return false
	}
	lo := decimal.Min(c.Open, c.Close)
	hi := decimal.Max(c.Open, c.Close)
	return c.Low.LessThanOrEqual(lo) && lo.LessThanOrEqual(hi) && hi.LessThanOrEqual(c.High)
}

// JSON returns the JSON-encoded candle, ignoring errors for hot-path usage.
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// BucketStart aligns ts down to the start of the TF bucket it falls in.
func BucketStart(ts time.Time, tf Timeframe) time.Time {
	sec := ts.Unix()
	aligned := sec - sec%int64(tf)
	return time.Unix(aligned, 0).UTC()
}
