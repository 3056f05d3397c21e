package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
	"cryptomomentum-corev1/internal/universe"
)

type fakeBroker struct {
	failNTimes int
	calls      int
	cancelled  []string
	insufficientFunds bool
}

func (b *fakeBroker) PlaceStop(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal, clientID string) (model.Order, error) {
	b.calls++
	if b.insufficientFunds {
		return model.Order{}, ErrInsufficientFunds
	}
	if b.calls <= b.failNTimes {
		return model.Order{}, errors.New("transient timeout")
	}
	return model.Order{ID: "stop-" + symbol, ClientID: clientID, Symbol: symbol, IsStop: true}, nil
}

func (b *fakeBroker) CancelOrder(ctx context.Context, orderID string) error {
	b.cancelled = append(b.cancelled, orderID)
	return nil
}

func newTestLimiter() *universe.RateLimiter {
	return universe.NewRateLimiter(100, 1000) // generous, so retries in tests don't block on rate limiting
}

func TestPlaceStopOrderRetriesTransientFailures(t *testing.T) {
	broker := &fakeBroker{failNTimes: 2}
	mgr := NewStopManager(broker, newTestLimiter(), nil)

	order, err := mgr.PlaceStopOrder(context.Background(), "BTC-USD", decimal.NewFromInt(1), decimal.NewFromInt(49000))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if order.ID != "stop-BTC-USD" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if broker.calls != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", broker.calls)
	}
}

func TestPlaceStopOrderNeverRetriesInsufficientFunds(t *testing.T) {
	broker := &fakeBroker{insufficientFunds: true}
	mgr := NewStopManager(broker, newTestLimiter(), nil)

	_, err := mgr.PlaceStopOrder(context.Background(), "BTC-USD", decimal.NewFromInt(1), decimal.NewFromInt(49000))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if broker.calls != 1 {
		t.Fatalf("expected exactly 1 attempt, no retry, got %d calls", broker.calls)
	}
}

func TestPlaceStopOrderGivesUpAfterThreeAttempts(t *testing.T) {
	broker := &fakeBroker{failNTimes: 10}
	mgr := NewStopManager(broker, newTestLimiter(), nil)

	_, err := mgr.PlaceStopOrder(context.Background(), "BTC-USD", decimal.NewFromInt(1), decimal.NewFromInt(49000))
	if err == nil {
		t.Fatal("expected an error after exhausting all retries")
	}
	if broker.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", broker.calls)
	}
}

func TestUpdateStopPriceCancelsThenReplaces(t *testing.T) {
	broker := &fakeBroker{}
	mgr := NewStopManager(broker, newTestLimiter(), nil)

	if _, err := mgr.PlaceStopOrder(context.Background(), "BTC-USD", decimal.NewFromInt(1), decimal.NewFromInt(49000)); err != nil {
		t.Fatalf("initial place: %v", err)
	}
	if err := mgr.UpdateStopPrice(context.Background(), "BTC-USD", decimal.NewFromInt(49500)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(broker.cancelled) != 1 {
		t.Fatalf("expected exactly 1 cancellation, got %d", len(broker.cancelled))
	}
	if broker.calls != 2 {
		t.Fatalf("expected 2 PlaceStop calls (initial + replacement), got %d", broker.calls)
	}
}

func TestUpdateStopPriceSkipsWithinOnePriceIncrement(t *testing.T) {
	broker := &fakeBroker{}
	increment := func(symbol string) decimal.Decimal { return decimal.NewFromInt(10) }
	mgr := NewStopManager(broker, newTestLimiter(), increment)

	if _, err := mgr.PlaceStopOrder(context.Background(), "BTC-USD", decimal.NewFromInt(1), decimal.NewFromInt(49000)); err != nil {
		t.Fatalf("initial place: %v", err)
	}
	if err := mgr.UpdateStopPrice(context.Background(), "BTC-USD", decimal.NewFromInt(49005)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(broker.cancelled) != 0 {
		t.Fatal("expected no cancellation for a sub-increment price change")
	}
	if broker.calls != 1 {
		t.Fatalf("expected no replacement call, got %d total calls", broker.calls)
	}
}

func TestLinkExistingStopAndHasLinkedStop(t *testing.T) {
	mgr := NewStopManager(&fakeBroker{}, newTestLimiter(), nil)
	if mgr.HasLinkedStop("SOL-USD") {
		t.Fatal("expected no linked stop initially")
	}
	mgr.LinkExistingStop("SOL-USD", "order-123")
	if !mgr.HasLinkedStop("SOL-USD") {
		t.Fatal("expected HasLinkedStop to report true after linking")
	}
}
