package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType mirrors the exchange's supported order types (§3).
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStopLimit OrderType = "stop_limit"
)

// OrderStatus is the managed order's lifecycle status (§3).
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
	OrderFailed    OrderStatus = "failed"
)

// Side is the order transaction direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is a managed broker order (§3).
type Order struct {
	ID       string      `json:"id"`
	ClientID string      `json:"client_id"`
	Symbol   string      `json:"symbol"`
	Side     Side        `json:"side"`
	Type     OrderType   `json:"type"`
	Status   OrderStatus `json:"status"`

	StopPrice  decimal.Decimal `json:"stop_price,omitempty"`
	LimitPrice decimal.Decimal `json:"limit_price,omitempty"`
	SizeQty    decimal.Decimal `json:"size_qty"`
	FilledQty  decimal.Decimal `json:"filled_qty"`
	FilledValue decimal.Decimal `json:"filled_value"`
	Fees       decimal.Decimal `json:"fees"`

	IsStop                bool   `json:"is_stop"`
	LinkedPositionSymbol string `json:"linked_position_symbol,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntryClientID builds the client order id for an entry order per §6:
// "ct_<symbol>_<unix>".
func NewEntryClientID(symbol string, now time.Time) string {
	return fmt.Sprintf("ct_%s_%d", symbol, now.Unix())
}

// NewStopClientID builds the client order id for a protective stop per §6:
// "stop_<symbol>_<unix>".
func NewStopClientID(symbol string, now time.Time) string {
	return fmt.Sprintf("stop_%s_%d", symbol, now.Unix())
}

// IsStopClientID reports whether a client id matches the stop-order naming
// convention used to link stop orders back to their symbol (§4.7 item 6).
func IsStopClientID(clientID string) bool {
	return len(clientID) > 5 && clientID[:5] == "stop_"
}

// FillPolicy captures the asymmetric partial-fill thresholds from §8:
// a market order reporting filled_value >= 95% of expected quote is full;
// a limit order reporting filled_qty >= 99% of expected qty is full.
type FillPolicy struct{}

// IsMarketFillFull reports whether a market order's filled value counts as
// a full fill.
func (FillPolicy) IsMarketFillFull(filledValue, expectedQuote decimal.Decimal) bool {
	if expectedQuote.IsZero() {
		return true
	}
	threshold := expectedQuote.Mul(decimal.NewFromFloat(0.95))
	return filledValue.GreaterThanOrEqual(threshold)
}

// IsLimitFillFull reports whether a limit order's filled size counts as a
// full fill.
func (FillPolicy) IsLimitFillFull(filledQty, expectedQty decimal.Decimal) bool {
	if expectedQty.IsZero() {
		return true
	}
	threshold := expectedQty.Mul(decimal.NewFromFloat(0.99))
	return filledQty.GreaterThanOrEqual(threshold)
}
