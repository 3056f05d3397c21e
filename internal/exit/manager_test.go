package exit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/config"
	"cryptomomentum-corev1/internal/exchange"
	"cryptomomentum-corev1/internal/intelligence"
	"cryptomomentum-corev1/internal/model"
)

type fakeExecutor struct {
	closeErr   error
	closeCalls int
	lastQty    decimal.Decimal
}

func (f *fakeExecutor) OpenPosition(ctx context.Context, symbol string, sizeUSD, limitPrice decimal.Decimal) (model.Order, error) {
	return model.Order{}, nil
}
func (f *fakeExecutor) ClosePosition(ctx context.Context, symbol string, qty decimal.Decimal) (model.Order, error) {
	f.closeCalls++
	f.lastQty = qty
	if f.closeErr != nil {
		return model.Order{}, f.closeErr
	}
	return model.Order{ID: "close-" + symbol, Symbol: symbol}, nil
}
func (f *fakeExecutor) CanExecuteOrder() bool { return true }

type fakeStopMgr struct {
	placed   int
	updated  int
	canceled int
}

func (f *fakeStopMgr) PlaceStopOrder(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal) (model.Order, error) {
	f.placed++
	return model.Order{ID: "stop-" + symbol}, nil
}
func (f *fakeStopMgr) UpdateStopPrice(ctx context.Context, symbol string, newStopPrice decimal.Decimal) error {
	f.updated++
	return nil
}
func (f *fakeStopMgr) CancelStopOrder(ctx context.Context, symbol string) error {
	f.canceled++
	return nil
}

type fakePersistence struct{ saves int }

func (f *fakePersistence) SavePositions(ctx context.Context, positions map[string]model.Position, force bool) error {
	f.saves++
	return nil
}
func (f *fakePersistence) LoadPositions(ctx context.Context) (map[string]model.Position, error) {
	return nil, nil
}
func (f *fakePersistence) ClearPosition(ctx context.Context, symbol string) error { return nil }

func testConfig() config.Config {
	return config.Config{
		FixedStopPct:      0.02,
		TP1Pct:            0.015,
		TP2Pct:            0.035,
		TrailStartPct:     0.01,
		TrailLockPct:      0.5,
		TrailBETriggerPct: 0.005,
		TP1PartialPct:     0.5,
		MakerFeeRate:      0.006,
		TakerFeeRate:      0.012,
		TimeStopMin:       240,
		TimeStopExtendedMin: 245,
		ThesisInvalidTrendPct: -0.01,
		ThesisInvalidVWAPPct:  -0.015,
	}
}

func newTestManager(t *testing.T, exec *fakeExecutor, stopMgr *fakeStopMgr, persist *fakePersistence, reg *exchange.Registry, price decimal.Decimal) *Manager {
	t.Helper()
	daily := intelligence.NewDailyStats(time.Now())
	regime := intelligence.NewRegimeDetector()
	priceGetter := model.PriceGetter(func(symbol string) (decimal.Decimal, bool) { return price, true })
	return New(testConfig(), reg, exec, stopMgr, persist, daily, regime, nil, func(symbol string) (*model.LiveIndicators, bool) { return nil, false }, priceGetter, nil, func(symbol string, now time.Time) {}, func(e model.Event) {})
}

func openPosition(symbol string, entry float64) model.Position {
	e := decimal.NewFromFloat(entry)
	return model.Position{
		Symbol:     symbol,
		Side:       "long",
		EntryPrice: e,
		EntryTime:  time.Now().Add(-time.Minute),
		SizeQty:    decimal.NewFromFloat(1),
		SizeUSD:    e,
		StopPrice:  e.Mul(decimal.NewFromFloat(0.98)),
		TP1Price:   e.Mul(decimal.NewFromFloat(1.015)),
		TP2Price:   e.Mul(decimal.NewFromFloat(1.035)),
	}
}

func TestProcessNoOpWithoutTrackedPosition(t *testing.T) {
	reg := exchange.NewRegistry(decimal.NewFromInt(2))
	exec := &fakeExecutor{}
	mgr := newTestManager(t, exec, &fakeStopMgr{}, &fakePersistence{}, reg, decimal.NewFromInt(100))
	if err := mgr.Process(context.Background(), "BTC-USD", time.Now()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if exec.closeCalls != 0 {
		t.Fatal("expected no close calls for an untracked symbol")
	}
}

func TestProcessTriggersStopExit(t *testing.T) {
	reg := exchange.NewRegistry(decimal.NewFromInt(2))
	pos := openPosition("BTC-USD", 50000)
	reg.Put(pos)

	exec := &fakeExecutor{}
	stopMgr := &fakeStopMgr{}
	persist := &fakePersistence{}
	mgr := newTestManager(t, exec, stopMgr, persist, reg, pos.StopPrice.Sub(decimal.NewFromInt(1)))

	if err := mgr.Process(context.Background(), "BTC-USD", time.Now()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if exec.closeCalls != 1 {
		t.Fatalf("expected exactly one close call, got %d", exec.closeCalls)
	}
	if reg.Has("BTC-USD") {
		t.Fatal("expected position removed from registry after a full stop exit")
	}
	if stopMgr.canceled != 1 {
		t.Fatalf("expected the exchange-side stop to be cancelled before closing, got %d", stopMgr.canceled)
	}
}

func TestProcessTriggersPartialAtTP1(t *testing.T) {
	reg := exchange.NewRegistry(decimal.NewFromInt(2))
	pos := openPosition("ETH-USD", 3000)
	reg.Put(pos)

	exec := &fakeExecutor{}
	stopMgr := &fakeStopMgr{}
	persist := &fakePersistence{}
	mgr := newTestManager(t, exec, stopMgr, persist, reg, pos.TP1Price.Add(decimal.NewFromInt(1)))

	if err := mgr.Process(context.Background(), "ETH-USD", time.Now()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if exec.closeCalls != 1 {
		t.Fatalf("expected one partial close, got %d", exec.closeCalls)
	}
	if exec.lastQty.GreaterThanOrEqual(pos.SizeQty) {
		t.Fatal("expected only a fraction of the position to be closed at TP1")
	}
	updated, ok := reg.Get("ETH-USD")
	if !ok {
		t.Fatal("expected the remainder of the position to still be tracked after a partial close")
	}
	if !updated.PartialClosed {
		t.Fatal("expected PartialClosed to be set")
	}
	if stopMgr.updated == 0 {
		t.Fatal("expected the stop to be moved to breakeven after a partial close")
	}
}

func TestExecutePartialAppliesFeeDifferentiatedPnL(t *testing.T) {
	// Mirrors the §8 scenario: maker entry 0.6%, taker exit 1.2%.
	reg := exchange.NewRegistry(decimal.NewFromInt(2))
	entry := decimal.NewFromInt(100)
	pos := openPosition("SOL-USD", 100)
	pos.EntryPrice = entry
	pos.SizeQty = decimal.NewFromInt(10)
	pos.TP1Price = decimal.NewFromInt(110)
	reg.Put(pos)

	exec := &fakeExecutor{}
	stopMgr := &fakeStopMgr{}
	persist := &fakePersistence{}
	exitPrice := decimal.NewFromInt(110)
	mgr := newTestManager(t, exec, stopMgr, persist, reg, exitPrice)

	if err := mgr.executePartial(context.Background(), &pos, exitPrice, time.Now()); err != nil {
		t.Fatalf("executePartial: %v", err)
	}

	closeQty := decimal.NewFromInt(10).Mul(decimal.NewFromFloat(0.5))
	grossPnL := exitPrice.Sub(entry).Mul(closeQty)
	entryFee := entry.Mul(closeQty).Mul(decimal.NewFromFloat(0.006))
	exitFee := exitPrice.Mul(closeQty).Mul(decimal.NewFromFloat(0.012))
	wantNet := grossPnL.Sub(entryFee).Sub(exitFee)

	if !pos.RealizedPnL.Equal(wantNet) {
		t.Fatalf("expected realized PnL %v, got %v", wantNet, pos.RealizedPnL)
	}
}

func TestUpdateTrailingTightensInRiskOffRegime(t *testing.T) {
	reg := exchange.NewRegistry(decimal.NewFromInt(2))
	daily := intelligence.NewDailyStats(time.Now())
	regime := intelligence.NewRegimeDetector()
	regime.Update(-4.0, false, time.Now()) // risk_off

	priceGetter := model.PriceGetter(func(symbol string) (decimal.Decimal, bool) { return decimal.NewFromInt(101), true })
	mgr := New(testConfig(), reg, &fakeExecutor{}, &fakeStopMgr{}, &fakePersistence{}, daily, regime, nil,
		func(symbol string) (*model.LiveIndicators, bool) { return nil, false }, priceGetter, nil,
		func(symbol string, now time.Time) {}, func(e model.Event) {})

	pos := openPosition("BTC-USD", 100)
	price := decimal.NewFromInt(101) // +1% unrealized
	mgr.updateTrailing(&pos, price, time.Now())

	if !pos.BEArmed {
		t.Fatal("expected risk_off regime to move the stop to breakeven on any positive PnL")
	}
	if pos.StopPrice.LessThan(pos.EntryPrice) {
		t.Fatal("expected breakeven stop to be at or above entry")
	}
}

func TestEvaluateExitTimeStop(t *testing.T) {
	reg := exchange.NewRegistry(decimal.NewFromInt(2))
	mgr := newTestManager(t, &fakeExecutor{}, &fakeStopMgr{}, &fakePersistence{}, reg, decimal.NewFromInt(100))

	pos := openPosition("BTC-USD", 100)
	pos.EntryTime = time.Now().Add(-5 * time.Hour)
	pos.CurrentConfidence = 50
	price := decimal.NewFromFloat(100.05)

	kind := mgr.evaluateExit(&pos, price, time.Now())
	if kind != ExitTimeStop {
		t.Fatalf("expected ExitTimeStop after exceeding the hold limit with flat PnL, got %v", kind)
	}
}

func TestSelfHealResetsCorruptPosition(t *testing.T) {
	reg := exchange.NewRegistry(decimal.NewFromInt(2))
	mgr := newTestManager(t, &fakeExecutor{}, &fakeStopMgr{}, &fakePersistence{}, reg, decimal.NewFromInt(100))

	pos := model.Position{Symbol: "BTC-USD", SizeQty: decimal.NewFromInt(1)} // zero entry/stop: corrupt
	mgr.selfHeal(&pos, decimal.NewFromInt(100), time.Now())

	if !pos.Valid() {
		t.Fatalf("expected self-heal to restore a valid position, got %+v", pos)
	}
}
