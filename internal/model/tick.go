package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick represents a single market-data ticker update from the exchange
// WebSocket (§4.1). SpreadBps is optional — zero when the exchange didn't
// provide bid/ask alongside the ticker message.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	SpreadBps decimal.Decimal `json:"spread_bps,omitempty"`
	ArrivedAt time.Time       `json:"arrived_at"` // UTC local receive time
	EventTS   time.Time       `json:"event_ts,omitempty"`
}

// CanonicalTS returns the best available timestamp for this tick. Prefers
// the exchange-provided EventTS; falls back to the local arrival time.
func (t *Tick) CanonicalTS() time.Time {
	if !t.EventTS.IsZero() {
		return t.EventTS
	}
	return t.ArrivedAt
}

// Trade represents a single market_trades channel execution report used to
// accumulate traded size into the forming candle (§4.1).
type Trade struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	ArrivedAt time.Time       `json:"arrived_at"`
	EventTS   time.Time       `json:"event_ts,omitempty"`
}

// CanonicalTS mirrors Tick.CanonicalTS.
func (t *Trade) CanonicalTS() time.Time {
	if !t.EventTS.IsZero() {
		return t.EventTS
	}
	return t.ArrivedAt
}
