package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the lifecycle state of a tracked position (§3).
type PositionState string

const (
	StatePending PositionState = "pending"
	StateOpen    PositionState = "open"
	StateClosing PositionState = "closing"
)

// Position is a tracked long-only trading position. Invariants (§3, §8):
// EntryPrice > 0, StopPrice < EntryPrice < TP1Price < TP2Price, SizeQty > 0.
type Position struct {
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"` // always "long" (§1 non-goal: no shorts)
	EntryPrice   decimal.Decimal `json:"entry_price"`
	EntryTime    time.Time       `json:"entry_time"`
	EntryCostUSD decimal.Decimal `json:"entry_cost_usd"` // immutable
	SizeQty      decimal.Decimal `json:"size_qty"`
	SizeUSD      decimal.Decimal `json:"size_usd"` // marks to market
	StopPrice    decimal.Decimal `json:"stop_price"`
	TP1Price     decimal.Decimal `json:"tp1_price"`
	TP2Price     decimal.Decimal `json:"tp2_price"`
	TimeStopMin  int             `json:"time_stop_min"`
	State        PositionState   `json:"state"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	PartialClosed bool           `json:"partial_closed"` // TP1 flag

	StrategyID string `json:"strategy_id"`

	// Trailing metadata
	TrailArmed   bool            `json:"trail_armed"`
	BEArmed      bool            `json:"be_armed"`
	HighestPrice decimal.Decimal `json:"highest_price"`

	// Confidence tracking, updated each exit-manager cycle (§4.6).
	CurrentConfidence float64 `json:"current_confidence"`

	// Recovery metadata: true when this position was rebuilt from exchange
	// truth rather than opened by the router (§4.7 item 2, §8 scenario 4).
	Recovered bool `json:"recovered"`

	// Stop-order linkage maintained by the exchange synchronizer (§4.7 item 6).
	StopOrderID       string    `json:"stop_order_id,omitempty"`
	LastStopCheckedAt time.Time `json:"last_stop_checked_at,omitempty"`
}

// Valid reports whether the position satisfies the §3/§8 ordering invariant.
func (p *Position) Valid() bool {
	return p.EntryPrice.IsPositive() &&
		p.StopPrice.LessThan(p.EntryPrice) &&
		p.EntryPrice.LessThan(p.TP1Price) &&
		p.TP1Price.LessThan(p.TP2Price) &&
		p.SizeQty.IsPositive()
}

// MarkToMarket updates SizeUSD from the latest price. Does not mutate
// EntryCostUSD, which is immutable per §3.
func (p *Position) MarkToMarket(price decimal.Decimal) {
	p.SizeUSD = p.SizeQty.Mul(price)
}

// UnrealizedPnLPct returns the position's unrealized PnL as a fraction of
// entry price (e.g. 0.01 = +1%), given the current mark price.
func (p *Position) UnrealizedPnLPct(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Div(p.EntryPrice)
}

// Key returns the position registry key, which is simply the symbol
// (one open position per symbol, per §4.5 gate 4 duplicate/holding check).
func (p *Position) Key() string {
	return p.Symbol
}
