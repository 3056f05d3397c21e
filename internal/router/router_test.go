package router

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/config"
	"cryptomomentum-corev1/internal/exchange"
	"cryptomomentum-corev1/internal/intelligence"
	"cryptomomentum-corev1/internal/model"
	storeredis "cryptomomentum-corev1/internal/store/redis"
	"cryptomomentum-corev1/internal/universe"
)

type fakeExecutor struct{ fail bool }

func (f *fakeExecutor) OpenPosition(ctx context.Context, symbol string, sizeUSD, limitPrice decimal.Decimal) (model.Order, error) {
	if f.fail {
		return model.Order{}, errTest
	}
	return model.Order{Symbol: symbol, Side: model.SideBuy, Status: model.OrderFilled, SizeQty: sizeUSD.Div(limitPrice)}, nil
}
func (f *fakeExecutor) ClosePosition(ctx context.Context, symbol string, qty decimal.Decimal) (model.Order, error) {
	return model.Order{}, nil
}
func (f *fakeExecutor) CanExecuteOrder() bool { return true }

type errString string

func (e errString) Error() string { return string(e) }

const errTest = errString("dispatch failed")

type fakePortfolio struct{ value float64 }

func (f *fakePortfolio) GetAvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromFloat(f.value), nil
}
func (f *fakePortfolio) GetTotalPortfolioValue(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromFloat(f.value), nil
}

type fakeStopMgr struct{}

func (fakeStopMgr) PlaceStopOrder(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal) (model.Order, error) {
	return model.Order{}, nil
}
func (fakeStopMgr) UpdateStopPrice(ctx context.Context, symbol string, newStopPrice decimal.Decimal) error {
	return nil
}
func (fakeStopMgr) CancelStopOrder(ctx context.Context, symbol string) error { return nil }

type fakePersistence struct{}

func (fakePersistence) SavePositions(ctx context.Context, positions map[string]model.Position, force bool) error {
	return nil
}
func (fakePersistence) LoadPositions(ctx context.Context) (map[string]model.Position, error) {
	return nil, nil
}
func (fakePersistence) ClearPosition(ctx context.Context, symbol string) error { return nil }

func testConfig() config.Config {
	return config.Config{
		MaxTradeUSD:             500,
		PortfolioMaxExposurePct: 0.6,
		FixedStopPct:            0.02,
		TP1Pct:                  0.015,
		TP2Pct:                  0.035,
		MinRRRatio:              1.5,
		SpreadMaxBps:            25,
		DailyMaxLossUSD:         300,
		OrderCooldownSeconds:    60,
		OrderCooldownMinSeconds: 10,
		PositionDustUSD:         2,
		PositionMinUSD:          10,
		MLMinConfidence:         0.55,
		MLBoostMin:              0,
		MLBoostMax:              10,
		MLBoostScale:            10,
		EntryScoreMin:           60,
		BaseScoreStrictCutoff:   50,
		WhaleTradeUSD:           1000,
		StrongTradeUSD:          400,
		NormalTradeUSD:          150,
		WhaleScoreMin:           85,
		WhaleConfluenceMin:      4,
		WhaleMaxCount:           2,
	}
}

func warmSymbol(sched *universe.Scheduler, symbol string) {
	for i := 0; i < 20; i++ {
		sched.RecordCandle(symbol, model.TF1m)
	}
	for i := 0; i < 10; i++ {
		sched.RecordCandle(symbol, model.TF5m)
	}
}

func newTestRouter(exec model.Executor, portfolio model.PortfolioManager) (*Router, *exchange.Registry, *intelligence.Layer, *universe.Scheduler) {
	cfg := testConfig()
	reg := exchange.NewRegistry(decimal.NewFromFloat(cfg.PositionDustUSD))
	intel := intelligence.NewLayer(intelligence.Config{
		Limits: intelligence.PositionLimits{MaxGlobalPositions: 10, MaxPerSector: 5, MaxPerCorrelationGroup: 5, MaxWeakPositions: 5},
		Scorer: intelligence.EntryScorerConfig{
			EntryScoreMin: cfg.EntryScoreMin, BaseScoreStrictCutoff: cfg.BaseScoreStrictCutoff,
			MLMinConfidence: cfg.MLMinConfidence, MLBoostMin: cfg.MLBoostMin, MLBoostMax: cfg.MLBoostMax, MLBoostScale: cfg.MLBoostScale,
		},
	}, time.Now())
	sched := universe.NewScheduler()
	sched.SetUniverse(map[string]model.Tier{"BTC-USD": model.TierWS})
	warmSymbol(sched, "BTC-USD")

	priceGetter := func(symbol string) (decimal.Decimal, bool) { return decimal.NewFromInt(50000), true }
	spreadGetter := func(symbol string) (float64, bool) { return 5, true }
	syncFresh := func() bool { return true }

	r := New(cfg, reg, intel, nil, sched, exec, fakeStopMgr{}, fakePersistence{}, portfolio, priceGetter, spreadGetter, syncFresh, nil, nil)
	return r, reg, intel, sched
}

func bullishSignal() model.Signal {
	return model.Signal{
		Symbol: "BTC-USD", StrategyID: "momentum",
		HasConfidence: true, Confidence: 0.9,
		Price: decimal.NewFromInt(50000),
		TS:    time.Now(),
	}
}

func bullishLI() *model.LiveIndicators {
	return &model.LiveIndicators{
		Symbol: "BTC-USD",
		RSI14:  60, RSI7: 62,
		MACDLine: 1, MACDSig: 0.5, MACDHist: 0.5,
		EMA9: decimal.NewFromInt(50100), EMA21: decimal.NewFromInt(49900),
		BBPosition: 0.6, BBWidth: 0.02,
		VolumeRatio: 2, OBVSlope: 100, BuyPressure: 0.3,
		Trend5m: 0.01, Trend1h: 0.02, Trend4h: 0.01,
		DailyRangePosition: 0.6, WeeklyRangePosition: 0.6,
	}
}

func TestSubmitOpensPositionOnFullPass(t *testing.T) {
	exec := &fakeExecutor{}
	r, reg, _, _ := newTestRouter(exec, &fakePortfolio{value: 10000})

	pos, reason, err := r.Submit(context.Background(), SubmitRequest{
		Signal: bullishSignal(), LI: bullishLI(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != RejectNone {
		t.Fatalf("expected acceptance, got reject reason %q", reason)
	}
	if !reg.Has("BTC-USD") {
		t.Fatal("expected position to be registered")
	}
	if !pos.StopPrice.LessThan(pos.EntryPrice) {
		t.Fatal("expected stop below entry")
	}
}

func TestSubmitRejectsDuplicateHolding(t *testing.T) {
	exec := &fakeExecutor{}
	r, reg, _, _ := newTestRouter(exec, &fakePortfolio{value: 10000})
	reg.Put(model.Position{Symbol: "BTC-USD", SizeUSD: decimal.NewFromInt(100)})

	_, reason, _ := r.Submit(context.Background(), SubmitRequest{Signal: bullishSignal(), LI: bullishLI()})
	if reason != RejectDuplicate {
		t.Fatalf("expected duplicate rejection, got %q", reason)
	}
}

func TestSubmitRejectsOnDailyStop(t *testing.T) {
	exec := &fakeExecutor{}
	r, _, intel, _ := newTestRouter(exec, &fakePortfolio{value: 10000})
	intel.Daily.RecordRealized(decimal.NewFromInt(-400), time.Now())

	_, reason, _ := r.Submit(context.Background(), SubmitRequest{Signal: bullishSignal(), LI: bullishLI()})
	if reason != RejectDailyStop {
		t.Fatalf("expected daily stop rejection, got %q", reason)
	}
}

func TestSubmitRejectsUnwarmSymbol(t *testing.T) {
	exec := &fakeExecutor{}
	r, _, _, sched := newTestRouter(exec, &fakePortfolio{value: 10000})
	sched.SetUniverse(map[string]model.Tier{"ETH-USD": model.TierWS})

	sig := bullishSignal()
	sig.Symbol = "ETH-USD"
	_, reason, _ := r.Submit(context.Background(), SubmitRequest{Signal: sig, LI: bullishLI()})
	if reason != RejectWarmth {
		t.Fatalf("expected warmth rejection for a never-seeded symbol, got %q", reason)
	}
}

func TestSubmitRejectsStablecoin(t *testing.T) {
	exec := &fakeExecutor{}
	r, _, _, sched := newTestRouter(exec, &fakePortfolio{value: 10000})
	sched.SetUniverse(map[string]model.Tier{"USDC-USD": model.TierWS})
	warmSymbol(sched, "USDC-USD")

	sig := bullishSignal()
	sig.Symbol = "USDC-USD"
	_, reason, _ := r.Submit(context.Background(), SubmitRequest{Signal: sig, LI: bullishLI()})
	if reason != RejectStablecoin {
		t.Fatalf("expected stablecoin rejection, got %q", reason)
	}
}

func TestSubmitRejectsLowScore(t *testing.T) {
	exec := &fakeExecutor{}
	r, _, _, _ := newTestRouter(exec, &fakePortfolio{value: 10000})

	sig := bullishSignal()
	sig.Confidence = 0.1
	li := bullishLI()
	li.RSI14, li.RSI7 = 45, 45
	li.MACDHist = -1
	_, reason, _ := r.Submit(context.Background(), SubmitRequest{Signal: sig, LI: li})
	if reason != RejectScore && reason != RejectRegime {
		t.Fatalf("expected a score-related rejection for a weak signal, got %q", reason)
	}
}

func TestSubmitRejectsPoorRiskReward(t *testing.T) {
	exec := &fakeExecutor{}
	r, _, _, _ := newTestRouter(exec, &fakePortfolio{value: 10000})
	r.cfg.TP1Pct = 0.001 // makes (tp1-entry)/(entry-stop) fall below min_rr_ratio

	_, reason, _ := r.Submit(context.Background(), SubmitRequest{Signal: bullishSignal(), LI: bullishLI()})
	if reason != RejectRR {
		t.Fatalf("expected R:R rejection, got %q", reason)
	}
}

func TestSubmitRejectsOnBudgetExhaustion(t *testing.T) {
	exec := &fakeExecutor{}
	r, reg, _, _ := newTestRouter(exec, &fakePortfolio{value: 1000})
	reg.Put(model.Position{Symbol: "ETH-USD", SizeUSD: decimal.NewFromInt(595)}) // consumes nearly all of the 60% cap

	_, reason, _ := r.Submit(context.Background(), SubmitRequest{Signal: bullishSignal(), LI: bullishLI()})
	if reason != RejectBudget {
		t.Fatalf("expected budget rejection, got %q", reason)
	}
}

func TestSubmitRejectsOnSecondConcurrentCallForSameSymbol(t *testing.T) {
	exec := &fakeExecutor{}
	r, _, _, _ := newTestRouter(exec, &fakePortfolio{value: 10000})
	r.mu.Lock()
	r.inFlight["BTC-USD"] = true
	r.mu.Unlock()

	_, reason, _ := r.Submit(context.Background(), SubmitRequest{Signal: bullishSignal(), LI: bullishLI()})
	if reason != RejectInFlight {
		t.Fatalf("expected in-flight rejection, got %q", reason)
	}
}

func TestSubmitEnforcesOrderCooldown(t *testing.T) {
	exec := &fakeExecutor{}
	r, reg, _, _ := newTestRouter(exec, &fakePortfolio{value: 10000})

	_, reason, err := r.Submit(context.Background(), SubmitRequest{Signal: bullishSignal(), LI: bullishLI()})
	if err != nil || reason != RejectNone {
		t.Fatalf("expected first submit to succeed, got reason=%q err=%v", reason, err)
	}
	reg.Remove("BTC-USD") // simulate the position closing immediately

	_, reason, _ = r.Submit(context.Background(), SubmitRequest{Signal: bullishSignal(), LI: bullishLI()})
	if reason != RejectCooldown {
		t.Fatalf("expected cooldown rejection on immediate re-entry, got %q", reason)
	}
}
