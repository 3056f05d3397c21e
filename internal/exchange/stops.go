package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
	"cryptomomentum-corev1/internal/universe"
)

// ErrInsufficientFunds marks a stop-placement failure that must never be
// retried (§4.7 item 6: "never on insufficient-funds").
var ErrInsufficientFunds = errors.New("exchange: insufficient funds")

// priceIncrement is the smallest price step the exchange accepts for an
// order on a given symbol; stop replacement is a no-op when the new stop
// is within one increment of the current one.
type priceIncrement func(symbol string) decimal.Decimal

// BrokerStopPlacer is the narrow broker surface stops.go drives — the live
// executor implements it against the real exchange, the paper executor
// simulates it.
type BrokerStopPlacer interface {
	PlaceStop(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal, clientID string) (model.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// StopManager places and maintains protective stop orders (§4.7 item 6),
// grounded on the retry/backoff shape of internal/store/redis/circuitbreaker.go
// (bounded consecutive-failure accounting) applied here as a bounded retry
// loop rather than a trip/open state machine, since stop placement is a
// one-shot operation, not a sustained dependency.
type StopManager struct {
	broker   BrokerStopPlacer
	limiter  *universe.RateLimiter
	increment priceIncrement

	linked   map[string]string          // symbol -> active stop order id
	lastQty  map[string]decimal.Decimal // symbol -> qty covered by the linked stop
	lastStop map[string]decimal.Decimal // symbol -> price of the linked stop
}

// NewStopManager creates a manager sharing limiter with the rest of the
// market-data subsystem's REST budget.
func NewStopManager(broker BrokerStopPlacer, limiter *universe.RateLimiter, increment priceIncrement) *StopManager {
	return &StopManager{
		broker:    broker,
		limiter:   limiter,
		increment: increment,
		linked:    make(map[string]string),
		lastQty:   make(map[string]decimal.Decimal),
		lastStop:  make(map[string]decimal.Decimal),
	}
}

// PlaceStopOrder places a fresh protective stop for symbol, retrying
// transient errors up to 3 attempts, waiting 0.5s after the first failure
// and 1s after the second. Never retries ErrInsufficientFunds.
func (m *StopManager) PlaceStopOrder(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal) (model.Order, error) {
	clientID := model.NewStopClientID(symbol, time.Now().UTC())
	order, err := m.placeWithRetry(ctx, symbol, qty, stopPrice, clientID)
	if err != nil {
		return model.Order{}, err
	}
	m.linked[symbol] = order.ID
	m.lastQty[symbol] = qty
	m.lastStop[symbol] = stopPrice
	return order, nil
}

// UpdateStopPrice replaces symbol's active stop, per §4.7 item 6 always
// via cancel-then-place, reusing the qty from the last PlaceStopOrder
// call. A no-op when newStopPrice is within one price increment of the
// currently tracked stop (avoids needless churn on the exchange's order
// book).
func (m *StopManager) UpdateStopPrice(ctx context.Context, symbol string, newStopPrice decimal.Decimal) error {
	qty, haveQty := m.lastQty[symbol]
	if !haveQty {
		return fmt.Errorf("exchange: no tracked stop for %s to update", symbol)
	}

	if current, ok := m.lastStop[symbol]; ok && m.increment != nil {
		inc := m.increment(symbol)
		if inc.IsPositive() && current.Sub(newStopPrice).Abs().LessThanOrEqual(inc) {
			return nil // within one price increment of the current stop, skip
		}
	}

	if orderID, linked := m.linked[symbol]; linked {
		if err := m.broker.CancelOrder(ctx, orderID); err != nil {
			return fmt.Errorf("exchange: cancelling stop %s for %s: %w", orderID, symbol, err)
		}
		delete(m.linked, symbol)
	}

	clientID := model.NewStopClientID(symbol, time.Now().UTC())
	order, err := m.placeWithRetry(ctx, symbol, qty, newStopPrice, clientID)
	if err != nil {
		return err
	}
	m.linked[symbol] = order.ID
	m.lastStop[symbol] = newStopPrice
	return nil
}

// CancelStopOrder cancels symbol's tracked stop order, if any.
func (m *StopManager) CancelStopOrder(ctx context.Context, symbol string) error {
	orderID, ok := m.linked[symbol]
	if !ok {
		return nil
	}
	if err := m.broker.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("exchange: cancelling stop %s for %s: %w", orderID, symbol, err)
	}
	delete(m.linked, symbol)
	delete(m.lastQty, symbol)
	delete(m.lastStop, symbol)
	return nil
}

// LinkExistingStop associates an exchange-reported open order with symbol,
// used by the synchronizer's stop-order reconciliation (§4.7 item 6) when
// it finds an order whose client id matches the stop_<symbol>_<ts>
// convention, or whose server-reported type is "stop", that this process
// didn't place itself (e.g. after a restart).
func (m *StopManager) LinkExistingStop(symbol, orderID string) {
	m.linked[symbol] = orderID
}

// HasLinkedStop reports whether symbol currently has a tracked stop order.
func (m *StopManager) HasLinkedStop(symbol string) bool {
	_, ok := m.linked[symbol]
	return ok
}

func (m *StopManager) placeWithRetry(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal, clientID string) (model.Order, error) {
	backoffs := []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}
	var lastErr error
	for attempt := 0; attempt < len(backoffs); attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return model.Order{}, err
		}
		order, err := m.broker.PlaceStop(ctx, symbol, qty, stopPrice, clientID)
		if err == nil {
			return order, nil
		}
		if errors.Is(err, ErrInsufficientFunds) || isInsufficientFunds(err) {
			return model.Order{}, err
		}
		lastErr = err
		if attempt < len(backoffs)-1 {
			select {
			case <-ctx.Done():
				return model.Order{}, ctx.Err()
			case <-time.After(backoffs[attempt]):
			}
		}
	}
	return model.Order{}, fmt.Errorf("exchange: placing stop for %s after 3 attempts: %w", symbol, lastErr)
}

func isInsufficientFunds(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "insufficient")
}
