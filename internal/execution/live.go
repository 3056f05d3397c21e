package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/exchange"
	"cryptomomentum-corev1/internal/model"
	"cryptomomentum-corev1/internal/store/redis"
)

// LiveExecutor places real orders against the exchange through the shared
// RESTClient (§6/§9), recording every fill to the journal. Grounded on
// original_source's live_executor.py semantics: entries above the spread
// gate fill as a market buy sized in quote currency; a resting limit entry
// uses a GTC limit buy sized in base currency; exits are always a market
// sell. internal/exchange/restclient.go already encodes the wire shapes
// for each; this type is the thin adapter the router/exit-manager actually
// hold (via model.Executor), plus a circuit breaker so sustained REST
// failures degrade CanExecuteOrder rather than silently retry forever.
type LiveExecutor struct {
	rest    *exchange.RESTClient
	journal *Journal
	cb      *redis.CircuitBreaker
}

// NewLiveExecutor wraps rest with a circuit breaker tripping after
// maxFailures consecutive errors, re-probing after resetTimeout — same
// shape as the teacher's store/redis circuit breaker, reused here for the
// exchange's own REST dependency rather than the cache.
func NewLiveExecutor(rest *exchange.RESTClient, journal *Journal, maxFailures int, resetTimeout time.Duration) *LiveExecutor {
	return &LiveExecutor{
		rest:    rest,
		journal: journal,
		cb:      redis.NewCircuitBreaker(maxFailures, resetTimeout),
	}
}

// CanExecuteOrder implements model.Executor: false while the breaker is
// open, e.g. after repeated REST failures.
func (e *LiveExecutor) CanExecuteOrder() bool {
	return e.cb.CurrentState() != redis.StateOpen
}

// OpenPosition implements model.Executor: a market buy sized in quote
// currency when limitPrice is zero, otherwise a GTC limit buy sized in
// base currency at limitPrice.
func (e *LiveExecutor) OpenPosition(ctx context.Context, symbol string, sizeUSD decimal.Decimal, limitPrice decimal.Decimal) (model.Order, error) {
	now := time.Now().UTC()
	clientID := model.NewEntryClientID(symbol, now)

	var orderID string
	var err error
	cbErr := e.cb.Execute(func() error {
		if limitPrice.IsZero() {
			orderID, err = e.rest.MarketBuyQuote(ctx, symbol, sizeUSD, clientID)
		} else {
			baseQty := sizeUSD.Div(limitPrice)
			orderID, err = e.rest.LimitBuyGTC(ctx, symbol, baseQty, limitPrice, clientID)
		}
		return err
	})
	if cbErr != nil {
		return model.Order{}, fmt.Errorf("execution: opening %s: %w", symbol, cbErr)
	}

	orderType := model.OrderMarket
	if !limitPrice.IsZero() {
		orderType = model.OrderLimit
	}
	order := model.Order{
		ID: orderID, ClientID: clientID, Symbol: symbol, Side: model.SideBuy,
		Type: orderType, Status: model.OrderOpen, LimitPrice: limitPrice,
		CreatedAt: now, UpdatedAt: now,
	}
	return order, nil
}

// ClosePosition implements model.Executor: a market sell for qty base
// units of symbol.
func (e *LiveExecutor) ClosePosition(ctx context.Context, symbol string, qty decimal.Decimal) (model.Order, error) {
	now := time.Now().UTC()
	clientID := fmt.Sprintf("exit_%s_%d", symbol, now.Unix())

	var orderID string
	var err error
	cbErr := e.cb.Execute(func() error {
		orderID, err = e.rest.MarketSell(ctx, symbol, qty, clientID)
		return err
	})
	if cbErr != nil {
		return model.Order{}, fmt.Errorf("execution: closing %s: %w", symbol, cbErr)
	}

	return model.Order{
		ID: orderID, ClientID: clientID, Symbol: symbol, Side: model.SideSell,
		Type: model.OrderMarket, Status: model.OrderOpen, SizeQty: qty,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// RecordFill persists a confirmed fill to the shared journal, called by
// whichever component (router, exit manager, synchronizer) learns the
// order's terminal filled_qty/filled_value from the WS user channel or a
// REST poll.
func (e *LiveExecutor) RecordFill(f Fill) error {
	if e.journal == nil {
		return nil
	}
	return e.journal.RecordFill(f)
}
