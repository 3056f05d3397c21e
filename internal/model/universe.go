package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapClass buckets a symbol by market-cap size (§3 UniverseEntry).
type CapClass string

const (
	CapLarge CapClass = "large"
	CapMid   CapClass = "mid"
	CapSmall CapClass = "small"
	CapMicro CapClass = "micro"
)

// UniverseEntry is per-symbol metadata mutated by the periodic universe
// refresh (§3).
type UniverseEntry struct {
	Symbol       string          `json:"symbol"`
	TierTag      string          `json:"tier_tag"` // major/L1/defi/meme/...
	CapClass     CapClass        `json:"cap_class"`
	AvgSpreadBps decimal.Decimal `json:"avg_spread_bps"`
	ATR24h       decimal.Decimal `json:"atr_24h"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Tier is the symbol's polling/streaming class (§4.2).
type Tier string

const (
	TierWS        Tier = "T1_WS"
	TierFastREST  Tier = "T2_FAST"
	TierSlowREST  Tier = "T3_SLOW"
)

// TierAssignment is the scheduler's per-symbol tier + warmth record (§3).
type TierAssignment struct {
	Symbol   string    `json:"symbol"`
	Tier     Tier      `json:"tier"`
	Warm     bool      `json:"warm"`
	Count1m  int       `json:"count_1m"`
	Count5m  int       `json:"count_5m"`
	UpdateAt time.Time `json:"update_at"`
}

// WarmNow reports warmth per §4.2: >=20 1m candles AND >=10 5m candles.
func (t *TierAssignment) WarmNow() bool {
	return t.Count1m >= 20 && t.Count5m >= 10
}
