package model

import (
	"context"

	"github.com/shopspring/decimal"
)

// ── Mode-agnostic port interfaces (§9 design notes) ──
// These interfaces decouple the router/exit-manager business logic from the
// concrete paper/live implementations. Construction is via a factory keyed
// by trading_mode (internal/execution).

// Executor places, modifies and queries orders. The router and exit
// manager depend only on this interface, never on a concrete broker type.
type Executor interface {
	// OpenPosition submits an entry order for symbol at the given size and
	// returns the resulting Order once a terminal status is known.
	OpenPosition(ctx context.Context, symbol string, sizeUSD decimal.Decimal, limitPrice decimal.Decimal) (Order, error)

	// ClosePosition submits an exit order for qty of symbol.
	ClosePosition(ctx context.Context, symbol string, qty decimal.Decimal) (Order, error)

	// CanExecuteOrder reports whether the executor is currently able to
	// accept new orders (e.g. circuit breaker state in the live executor).
	CanExecuteOrder() bool
}

// PortfolioManager reports account-level balances (§9).
type PortfolioManager interface {
	GetAvailableBalance(ctx context.Context) (decimal.Decimal, error)
	GetTotalPortfolioValue(ctx context.Context) (decimal.Decimal, error)
}

// PositionPersistence persists the position registry to durable storage
// (§4.7 item 5, §8 atomic-persistence property).
type PositionPersistence interface {
	SavePositions(ctx context.Context, positions map[string]Position, force bool) error
	LoadPositions(ctx context.Context) (map[string]Position, error)
	ClearPosition(ctx context.Context, symbol string) error
}

// StopOrderManager places and maintains protective stop orders (§4.7 item 6).
type StopOrderManager interface {
	PlaceStopOrder(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal) (Order, error)
	UpdateStopPrice(ctx context.Context, symbol string, newStopPrice decimal.Decimal) error
	CancelStopOrder(ctx context.Context, symbol string) error
}

// PriceGetter resolves a symbol's current mark price. Passed as an explicit
// function parameter (not a sibling-component handle) to break the cyclic
// reference between router, exit manager, and exchange sync (§9).
type PriceGetter func(symbol string) (decimal.Decimal, bool)
