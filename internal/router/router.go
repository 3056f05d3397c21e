// Package router implements the single entry point through which every
// trading signal must pass before an order reaches the exchange (§4.5).
// Submit runs a canonical, ordered gate pipeline and stops at the first
// rejection — no gate has side effects on a signal it rejects.
//
// Grounded on the teacher's internal/strategy/engine.go Engine (which
// picked a Strategy and called Executor.PlaceOrder with no intermediate
// checks) generalized into the spec's 19-gate pipeline, and on
// original_source/execution/order_router.py for gate order and the
// WHALE/STRONG/NORMAL sizing tiers.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/config"
	"cryptomomentum-corev1/internal/exchange"
	"cryptomomentum-corev1/internal/intelligence"
	"cryptomomentum-corev1/internal/model"
	storeredis "cryptomomentum-corev1/internal/store/redis"
	"cryptomomentum-corev1/internal/universe"
)

// RejectReason tags why submit() refused a signal, one per gate (§4.5).
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectInFlight        RejectReason = "in_flight"
	RejectDailyStop       RejectReason = "daily_stop"
	RejectCircuitBreaker  RejectReason = "circuit_breaker"
	RejectDuplicate       RejectReason = "duplicate_holding"
	RejectCooldown        RejectReason = "cooldown"
	RejectWarmth          RejectReason = "warmth"
	RejectStablecoin      RejectReason = "stablecoin"
	RejectIntelLimits     RejectReason = "intelligence_limits"
	RejectSpread          RejectReason = "spread"
	RejectWhitelist       RejectReason = "whitelist"
	RejectRegime          RejectReason = "regime"
	RejectScore           RejectReason = "score"
	RejectBudget          RejectReason = "budget"
	RejectGeometry        RejectReason = "geometry"
	RejectRR              RejectReason = "rr"
	RejectTruth           RejectReason = "truth"
	RejectDispatchFailed  RejectReason = "dispatch_failed"
)

// SizeTier is the sizing tier assigned at gate 15 (§4.5).
type SizeTier string

const (
	TierWhale  SizeTier = "whale"
	TierStrong SizeTier = "strong"
	TierNormal SizeTier = "normal"
)

// SpreadGetter resolves a symbol's current bid/ask spread in basis points.
// Passed as an explicit function, not a sibling-component handle, to keep
// router decoupled from the market-data collector (§9 design notes).
type SpreadGetter func(symbol string) (bps float64, ok bool)

// SubmitRequest bundles a signal with the inputs its gates need that the
// router itself has no other way to obtain.
type SubmitRequest struct {
	Signal  model.Signal
	Burst   intelligence.BurstMetrics
	LI      *model.LiveIndicators
	ML      *model.MLScore
	Weak    bool // true if this is a low-confidence ("weak") strategy play
}

// Router is the single mutable owner of the submit() pipeline's
// order-level state (in-flight set, order cooldowns, whale count). All
// position-level state lives in the Registry; all limit/scoring state
// lives in the intelligence.Layer.
type Router struct {
	cfg config.Config

	registry *exchange.Registry
	intel    *intelligence.Layer
	breaker  *storeredis.CircuitBreaker
	sched    *universe.Scheduler

	executor    model.Executor
	stopMgr     model.StopOrderManager
	persistence model.PositionPersistence
	portfolio   model.PortfolioManager

	priceGetter  model.PriceGetter
	spreadGetter SpreadGetter
	syncFresh    func() bool // exchange synchronizer truth-freshness (§4.7 item 3)
	emit         func(model.Event)

	stablecoins map[string]bool
	whitelist   map[string]bool // nil disables the whitelist gate

	mu            sync.Mutex
	inFlight      map[string]bool
	lastOrderAt   map[string]time.Time
	whaleCount    int

	rejections *rejectionCounters
}

// New builds a Router wired against the given collaborators. whitelist
// may be nil to disable gate 10.
func New(
	cfg config.Config,
	registry *exchange.Registry,
	intel *intelligence.Layer,
	breaker *storeredis.CircuitBreaker,
	sched *universe.Scheduler,
	executor model.Executor,
	stopMgr model.StopOrderManager,
	persistence model.PositionPersistence,
	portfolio model.PortfolioManager,
	priceGetter model.PriceGetter,
	spreadGetter SpreadGetter,
	syncFresh func() bool,
	emit func(model.Event),
	whitelist map[string]bool,
) *Router {
	return &Router{
		cfg:          cfg,
		registry:     registry,
		intel:        intel,
		breaker:      breaker,
		sched:        sched,
		executor:     executor,
		stopMgr:      stopMgr,
		persistence:  persistence,
		portfolio:    portfolio,
		priceGetter:  priceGetter,
		spreadGetter: spreadGetter,
		syncFresh:    syncFresh,
		emit:         emit,
		stablecoins:  defaultStablecoins(),
		whitelist:    whitelist,
		inFlight:     make(map[string]bool),
		lastOrderAt:  make(map[string]time.Time),
		rejections:   newRejectionCounters(),
	}
}

func defaultStablecoins() map[string]bool {
	return map[string]bool{
		"USDT-USD": true, "USDC-USD": true, "DAI-USD": true,
		"USDT": true, "USDC": true, "DAI": true,
	}
}

// Submit runs req through the full gate pipeline, returning the opened
// position on success or the first RejectReason that failed it.
func (r *Router) Submit(ctx context.Context, req SubmitRequest) (model.Position, RejectReason, error) {
	symbol := req.Signal.Symbol
	now := time.Now().UTC()

	// Gate 1: in-flight guard.
	if !r.tryMarkInFlight(symbol) {
		r.rejections.inc(RejectInFlight)
		return model.Position{}, RejectInFlight, nil
	}
	defer r.clearInFlight(symbol)

	// Gate 2: daily stop.
	if r.intel.Daily.KillSwitchTripped(decimal.NewFromFloat(r.cfg.DailyMaxLossUSD), now) {
		r.rejections.inc(RejectDailyStop)
		return model.Position{}, RejectDailyStop, nil
	}

	// Gate 3: circuit breaker.
	if r.breaker != nil && r.breaker.CurrentState() == storeredis.StateOpen {
		r.rejections.inc(RejectCircuitBreaker)
		return model.Position{}, RejectCircuitBreaker, nil
	}

	// Gate 4: duplicate/holding.
	if r.registry.Has(symbol) {
		r.rejections.inc(RejectDuplicate)
		return model.Position{}, RejectDuplicate, nil
	}

	// Gate 5: cooldown (per-symbol order-level; distinct from the
	// global and per-symbol cooldowns intelligence enforces at gate 8).
	if reason := r.checkOrderCooldown(symbol, now); reason != "" {
		r.rejections.inc(RejectCooldown)
		return model.Position{}, RejectCooldown, nil
	}

	// Gate 6: warmth.
	if r.sched != nil && !r.sched.Warm(symbol) {
		r.rejections.inc(RejectWarmth)
		return model.Position{}, RejectWarmth, nil
	}

	// Gate 7: stablecoin filter.
	if r.stablecoins[symbol] {
		r.rejections.inc(RejectStablecoin)
		return model.Position{}, RejectStablecoin, nil
	}

	// Gate 8: intelligence limits (sector/correlation/global/weak caps,
	// global+per-symbol cooldown).
	active := r.registry.Active()
	if ok, _ := r.intel.Limits.CanEnter(symbol, req.Weak, active, now); !ok {
		r.rejections.inc(RejectIntelLimits)
		return model.Position{}, RejectIntelLimits, nil
	}

	// Gate 9: spread gate.
	spreadBps, haveSpread := r.spreadGetter(symbol)
	if haveSpread && spreadBps > r.cfg.SpreadMaxBps {
		r.rejections.inc(RejectSpread)
		return model.Position{}, RejectSpread, nil
	}
	wideSpread := haveSpread && spreadBps > 0.7*r.cfg.SpreadMaxBps

	// Gate 10: whitelist (optional).
	if r.whitelist != nil && !r.whitelist[symbol] {
		r.rejections.inc(RejectWhitelist)
		return model.Position{}, RejectWhitelist, nil
	}

	// Gate 11: scoring.
	entry := r.intel.Scorer.Score(req.Signal, req.Burst, req.LI, r.intel.Regime, req.ML, now)
	requiredScore := entry.Threshold
	if wideSpread {
		requiredScore += 10 // require a stronger signal when spread is already most of the cap
	}
	if !entry.ShouldEnter || entry.Total < requiredScore {
		reason := RejectScore
		if entry.Total >= entry.BaseScore && entry.Threshold > r.cfg.EntryScoreMin {
			reason = RejectRegime
		}
		r.rejections.inc(reason)
		return model.Position{}, reason, nil
	}

	// Gate 12: daily-halt re-check.
	if r.intel.Daily.KillSwitchTripped(decimal.NewFromFloat(r.cfg.DailyMaxLossUSD), now) {
		r.rejections.inc(RejectDailyStop)
		return model.Position{}, RejectDailyStop, nil
	}

	// Gate 13: registry pre-check against limits (re-verify right before
	// dispatch to catch any drift since gate 8).
	active = r.registry.Active()
	if ok, _ := r.intel.Limits.CanEnter(symbol, req.Weak, active, now); !ok {
		r.rejections.inc(RejectIntelLimits)
		return model.Position{}, RejectIntelLimits, nil
	}

	// Gate 14: budget.
	portfolioValue, err := r.portfolio.GetTotalPortfolioValue(ctx)
	if err != nil {
		r.rejections.inc(RejectBudget)
		return model.Position{}, RejectBudget, fmt.Errorf("router: fetching portfolio value: %w", err)
	}
	capUSD := portfolioValue.Mul(decimal.NewFromFloat(r.cfg.PortfolioMaxExposurePct))
	headroom := capUSD.Sub(r.registry.TotalExposureUSD())
	if headroom.LessThanOrEqual(decimal.NewFromFloat(r.cfg.PositionMinUSD)) {
		r.rejections.inc(RejectBudget)
		return model.Position{}, RejectBudget, nil
	}

	// Gate 15: sizing.
	sizeUSD := r.sizePosition(entry, req.LI, now, headroom)
	if sizeUSD.LessThan(decimal.NewFromFloat(r.cfg.PositionMinUSD)) {
		r.rejections.inc(RejectBudget)
		return model.Position{}, RejectBudget, nil
	}

	// Gate 16: stop/target geometry — always override signal-supplied
	// stops with configured fixed percentages.
	entryPrice := req.Signal.Price
	stopPrice := entryPrice.Mul(decimal.NewFromFloat(1 - r.cfg.FixedStopPct))
	tp1Price := entryPrice.Mul(decimal.NewFromFloat(1 + r.cfg.TP1Pct))
	tp2Price := entryPrice.Mul(decimal.NewFromFloat(1 + r.cfg.TP2Pct))
	if !entryPrice.IsPositive() || !stopPrice.LessThan(entryPrice) || !entryPrice.LessThan(tp1Price) || !tp1Price.LessThan(tp2Price) {
		r.rejections.inc(RejectGeometry)
		return model.Position{}, RejectGeometry, nil
	}

	// Gate 17: R:R enforcement.
	rr := tp1Price.Sub(entryPrice).Div(entryPrice.Sub(stopPrice))
	minRR := r.cfg.MinRRRatio
	if minRR <= 0 {
		minRR = 1.5
	}
	if rr.LessThan(decimal.NewFromFloat(minRR)) {
		r.rejections.inc(RejectRR)
		return model.Position{}, RejectRR, nil
	}

	// Gate 18: truth validation.
	if r.syncFresh != nil && !r.syncFresh() {
		r.rejections.inc(RejectTruth)
		return model.Position{}, RejectTruth, nil
	}

	// Gate 19: dispatch.
	order, err := r.executor.OpenPosition(ctx, symbol, sizeUSD, entryPrice)
	if err != nil {
		r.rejections.inc(RejectDispatchFailed)
		return model.Position{}, RejectDispatchFailed, fmt.Errorf("router: dispatching entry for %s: %w", symbol, err)
	}

	qty := decimal.Zero
	if entryPrice.IsPositive() {
		qty = sizeUSD.Div(entryPrice)
	}
	pos := model.Position{
		Symbol:       symbol,
		Side:         "long",
		EntryPrice:   entryPrice,
		EntryTime:    now,
		EntryCostUSD: sizeUSD,
		SizeQty:      qty,
		SizeUSD:      sizeUSD,
		StopPrice:    stopPrice,
		TP1Price:     tp1Price,
		TP2Price:     tp2Price,
		TimeStopMin:  0,
		State:        model.StateOpen,
		StrategyID:   req.Signal.StrategyID,
	}

	r.registry.Put(pos)
	r.intel.Limits.RecordEntry(symbol, now)
	r.markOrder(symbol, now)
	if entry.Total >= r.cfg.WhaleScoreMin {
		r.mu.Lock()
		r.whaleCount++
		r.mu.Unlock()
	}

	if r.stopMgr != nil {
		if _, stopErr := r.stopMgr.PlaceStopOrder(ctx, symbol, qty, stopPrice); stopErr != nil {
			// The position is open regardless; the exchange synchronizer's
			// stop-health check (§4.7 item 6) will re-arm it next cycle.
			_ = stopErr
		}
	}
	if r.persistence != nil {
		_ = r.persistence.SavePositions(ctx, r.registry.Snapshot(), false)
	}
	if r.emit != nil {
		r.emit(model.OrderOpenEvent(pos, order))
	}

	return pos, RejectNone, nil
}

func (r *Router) tryMarkInFlight(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[symbol] {
		return false
	}
	r.inFlight[symbol] = true
	return true
}

func (r *Router) clearInFlight(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, symbol)
}

// checkOrderCooldown enforces the order-level per-symbol cooldown (§4.5
// gate 5, original_source's order_cooldown_seconds/min_seconds pair):
// an order placed within OrderCooldownMinSeconds always blocks; within
// OrderCooldownSeconds blocks too, it is simply the softer threshold.
func (r *Router) checkOrderCooldown(symbol string, now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastOrderAt[symbol]
	if !ok {
		return ""
	}
	elapsed := now.Sub(last)
	cooldown := time.Duration(r.cfg.OrderCooldownSeconds) * time.Second
	minCooldown := time.Duration(r.cfg.OrderCooldownMinSeconds) * time.Second
	if elapsed < minCooldown {
		return "hard cooldown active"
	}
	if elapsed < cooldown {
		return "soft cooldown active"
	}
	return ""
}

func (r *Router) markOrder(symbol string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastOrderAt[symbol] = now
}

// sizePosition implements the §4.5 gate 15 WHALE/STRONG/NORMAL tiering:
// tier by score and confluence, apply the session dead-zone multiplier,
// then clamp to max_trade_usd and to the remaining exposure headroom. No
// percentage-of-portfolio floor or ceiling is applied; the caller rejects
// a size below position_min_usd.
func (r *Router) sizePosition(entry intelligence.EntryScore, li *model.LiveIndicators, now time.Time, headroom decimal.Decimal) decimal.Decimal {
	confluence := confluenceCount(li)

	var base float64
	tier := TierNormal
	switch {
	case entry.Total >= r.cfg.WhaleScoreMin && confluence >= r.cfg.WhaleConfluenceMin && r.currentWhaleCount() < r.cfg.WhaleMaxCount:
		base = r.cfg.WhaleTradeUSD
		tier = TierWhale
	case entry.Total >= r.cfg.EntryScoreMin+10:
		base = r.cfg.StrongTradeUSD
		tier = TierStrong
	default:
		base = r.cfg.NormalTradeUSD
	}
	_ = tier

	base *= intelligence.SessionMultiplier(now)

	size := decimal.NewFromFloat(base)
	maxUSD := decimal.NewFromFloat(r.cfg.MaxTradeUSD)
	if size.GreaterThan(maxUSD) {
		size = maxUSD
	}
	if size.GreaterThan(headroom) {
		size = headroom
	}
	return size
}

func (r *Router) currentWhaleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.whaleCount
}

// confluenceCount counts bullish confirmations across independent
// indicator families, used only to gate the WHALE sizing tier.
func confluenceCount(li *model.LiveIndicators) int {
	if li == nil {
		return 0
	}
	n := 0
	if li.MACDHist > 0 {
		n++
	}
	if li.RSI14 > 50 {
		n++
	}
	if li.OBVSlope > 0 {
		n++
	}
	if li.BuyPressure > 0 {
		n++
	}
	ema9, _ := li.EMA9.Float64()
	ema21, _ := li.EMA21.Float64()
	if ema9 > 0 && ema21 > 0 && ema9 > ema21 {
		n++
	}
	if li.VolumeRatio >= 1.5 {
		n++
	}
	return n
}
