// Package exit runs the per-position exit lifecycle of §4.6: self-heal,
// stop-order health, trailing/breakeven management, priority-ordered exit
// evaluation, and partial/full execution with fee-differentiated PnL.
//
// New relative to the teacher, which has no position-exit lifecycle at
// all (strategy.Engine fires entries only); grounded on the *structure*
// of teacher's internal/portfolio/pnl.go PnLTracker (cost-basis map,
// weighted-average entry, realized-PnL-on-reduce) for its fee/PnL math,
// and on internal/store/redis/circuitbreaker.go's explicit state machine
// for the self-heal / stop-health-check sequencing.
package exit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/config"
	"cryptomomentum-corev1/internal/exchange"
	"cryptomomentum-corev1/internal/intelligence"
	"cryptomomentum-corev1/internal/model"
)

// ExitKind tags why a position was exited (§4.6 item 4 priority list).
type ExitKind string

const (
	ExitNone                ExitKind = ""
	ExitStop                ExitKind = "stop"
	ExitTP1                 ExitKind = "tp1"
	ExitTP2                 ExitKind = "tp2"
	ExitThesisInvalid       ExitKind = "thesis_invalid"
	ExitWeakConfidence      ExitKind = "weak_confidence"
	ExitTimeStop            ExitKind = "time_stop"
	ExitTimeStopExtended    ExitKind = "time_stop_extended"
)

// LiveIndicatorsGetter resolves a symbol's latest indicator snapshot. An
// explicit function parameter rather than a sibling-component handle,
// matching the router's SpreadGetter/PriceGetter pattern (§9).
type LiveIndicatorsGetter func(symbol string) (*model.LiveIndicators, bool)

// StopHealthChecker reports whether symbol currently has an active stop
// order on the exchange (live mode only; paper mode has no exchange-side
// order to check).
type StopHealthChecker func(symbol string) bool

// Manager runs the §4.6 cycle for every open position.
type Manager struct {
	cfg config.Config

	registry    *exchange.Registry
	executor    model.Executor
	stopMgr     model.StopOrderManager
	persistence model.PositionPersistence
	daily       *intelligence.DailyStats
	regime      *intelligence.RegimeDetector

	mlFor       func(symbol string) (model.MLScore, bool)
	liFor       LiveIndicatorsGetter
	priceGetter model.PriceGetter
	stopHealth  StopHealthChecker // nil in paper mode
	markClosed  func(symbol string, now time.Time)
	emit        func(model.Event)

	lastStopCheck map[string]time.Time
}

// New builds an exit Manager. stopHealth may be nil (paper mode skips
// item 2 entirely).
func New(
	cfg config.Config,
	registry *exchange.Registry,
	executor model.Executor,
	stopMgr model.StopOrderManager,
	persistence model.PositionPersistence,
	daily *intelligence.DailyStats,
	regime *intelligence.RegimeDetector,
	mlFor func(symbol string) (model.MLScore, bool),
	liFor LiveIndicatorsGetter,
	priceGetter model.PriceGetter,
	stopHealth StopHealthChecker,
	markClosed func(symbol string, now time.Time),
	emit func(model.Event),
) *Manager {
	return &Manager{
		cfg: cfg, registry: registry, executor: executor, stopMgr: stopMgr,
		persistence: persistence, daily: daily, regime: regime,
		mlFor: mlFor, liFor: liFor, priceGetter: priceGetter,
		stopHealth: stopHealth, markClosed: markClosed, emit: emit,
		lastStopCheck: make(map[string]time.Time),
	}
}

// Process runs one full exit-lifecycle pass for symbol's open position.
// No-op if symbol has no tracked position.
func (m *Manager) Process(ctx context.Context, symbol string, now time.Time) error {
	pos, ok := m.registry.Get(symbol)
	if !ok {
		return nil
	}
	price, havePrice := m.priceGetter(symbol)
	if !havePrice || !price.IsPositive() {
		return nil
	}

	m.selfHeal(&pos, price, now)

	if m.stopHealth != nil {
		if err := m.checkStopHealth(ctx, &pos, now); err != nil {
			return fmt.Errorf("exit: stop health check for %s: %w", symbol, err)
		}
	}

	m.updateTrailing(&pos, price, now)
	m.registry.Put(pos)

	kind := m.evaluateExit(&pos, price, now)
	if kind == ExitNone {
		return nil
	}
	return m.execute(ctx, &pos, kind, price, now)
}

// selfHeal resets corrupt position state per §4.6 item 1.
func (m *Manager) selfHeal(pos *model.Position, price decimal.Decimal, now time.Time) {
	if pos.EntryPrice.IsPositive() && pos.StopPrice.IsPositive() && pos.StopPrice.LessThan(pos.EntryPrice) {
		return
	}
	entry := price
	pos.EntryPrice = entry
	pos.StopPrice = entry.Mul(decimal.NewFromFloat(1 - m.cfg.FixedStopPct))
	pos.TP1Price = entry.Mul(decimal.NewFromFloat(1 + m.cfg.TP1Pct))
	pos.TP2Price = entry.Mul(decimal.NewFromFloat(1 + m.cfg.TP2Pct))
}

// checkStopHealth re-arms a missing exchange-side stop order (§4.6 item 2,
// live mode only).
func (m *Manager) checkStopHealth(ctx context.Context, pos *model.Position, now time.Time) error {
	interval := time.Duration(m.cfg.StopHealthCheckInterval) * time.Second
	if interval <= 0 {
		return nil
	}
	last := m.lastStopCheck[pos.Symbol]
	if !last.IsZero() && now.Sub(last) < interval {
		return nil
	}
	m.lastStopCheck[pos.Symbol] = now
	pos.LastStopCheckedAt = now

	if m.stopHealth(pos.Symbol) {
		return nil
	}
	if m.stopMgr == nil {
		return nil
	}
	if _, err := m.stopMgr.PlaceStopOrder(ctx, pos.Symbol, pos.SizeQty, pos.StopPrice); err != nil {
		return fmt.Errorf("re-arming stop: %w", err)
	}
	return nil
}

// updateTrailing implements §4.6 item 3: ratchet the stop up as PnL
// grows, move to breakeven past the BE trigger, and tighten both in
// risk_off regime.
func (m *Manager) updateTrailing(pos *model.Position, price decimal.Decimal, now time.Time) {
	if !pos.EntryPrice.IsPositive() {
		return
	}
	pnlPct, _ := pos.UnrealizedPnLPct(price).Float64()

	riskOff := m.regime != nil && m.regime.Current().Regime == model.RegimeRiskOff
	lockFrac := m.cfg.TrailLockPct
	beTrigger := m.cfg.TrailBETriggerPct
	if riskOff {
		lockFrac = 0.7
		beTrigger = 0 // move to BE on any positive PnL in risk_off
	}

	if pnlPct >= m.cfg.TrailStartPct {
		newStop := pos.EntryPrice.Mul(decimal.NewFromFloat(1 + pnlPct*lockFrac))
		if newStop.GreaterThan(pos.StopPrice) {
			pos.StopPrice = newStop
			pos.TrailArmed = true
		}
	}
	if pnlPct >= beTrigger && pnlPct > 0 {
		be := pos.EntryPrice.Add(pos.EntryPrice.Mul(decimal.NewFromFloat(0.0005))) // breakeven + epsilon
		if be.GreaterThan(pos.StopPrice) {
			pos.StopPrice = be
		}
		pos.BEArmed = true // stop is now at or above breakeven + epsilon
	}
	if price.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = price
	}

	pos.CurrentConfidence = m.confidenceFor(pos, pnlPct, now)
}

// confidenceFor tracks per-position confidence from the latest ML score
// and PnL drift, bounded to [0,100] (§4.6 "Confidence tracking").
func (m *Manager) confidenceFor(pos *model.Position, pnlPct float64, now time.Time) float64 {
	base := pos.CurrentConfidence
	if base == 0 {
		base = 50
	}
	if m.mlFor != nil {
		if ml, ok := m.mlFor(pos.Symbol); ok && !ml.Stale(now) {
			base += ml.RawScore * 20
		}
	}
	base += pnlPct * 100 * 0.1
	if base < 0 {
		base = 0
	}
	if base > 100 {
		base = 100
	}
	return base
}

// evaluateExit walks the §4.6 item 4 priority list and returns the first
// triggered kind.
func (m *Manager) evaluateExit(pos *model.Position, price decimal.Decimal, now time.Time) ExitKind {
	if price.LessThanOrEqual(pos.StopPrice) {
		return ExitStop
	}
	if !pos.PartialClosed && price.GreaterThanOrEqual(pos.TP1Price) {
		return ExitTP1
	}
	if price.GreaterThanOrEqual(pos.TP2Price) {
		return ExitTP2
	}

	pnlPct, _ := pos.UnrealizedPnLPct(price).Float64()
	losing := pnlPct < 0

	if losing {
		if kind := m.thesisInvalid(pos, price, pnlPct, now); kind != ExitNone {
			return kind
		}
	}

	if pos.CurrentConfidence < 15 && pnlPct < 0.03 {
		return ExitWeakConfidence
	}

	if m.cfg.TimeStopMin > 0 {
		heldMin := now.Sub(pos.EntryTime).Minutes()
		if heldMin >= float64(m.cfg.TimeStopMin) {
			if pnlPct > -0.005 {
				return ExitTimeStop
			}
			if heldMin >= float64(m.cfg.TimeStopExtendedMin) {
				return ExitTimeStopExtended
			}
		}
	}

	return ExitNone
}

// thesisInvalid implements §4.6 item 4's thesis_invalid conditions.
// Recovered/synced positions get 2x tolerance and a floor loss of -2%
// before the thesis can trigger at all.
func (m *Manager) thesisInvalid(pos *model.Position, price decimal.Decimal, pnlPct float64, now time.Time) ExitKind {
	tolerance := 1.0
	floor := 0.0
	if pos.Recovered {
		tolerance = 2.0
		floor = -0.02
	}
	if pnlPct > floor {
		return ExitNone
	}

	li, haveLI := m.liFor(pos.Symbol)

	if haveLI && li.Trend5m <= m.cfg.ThesisInvalidTrendPct*tolerance {
		return ExitThesisInvalid
	}
	if haveLI && li.ChopScore > 0.6 && pnlPct < -0.01*tolerance {
		nearSupport := li.DailyRangePosition < 0.1 || li.WeeklyRangePosition < 0.1
		if !nearSupport {
			return ExitThesisInvalid
		}
	}
	if m.mlFor != nil {
		if ml, ok := m.mlFor(pos.Symbol); ok && !ml.Stale(now) {
			if ml.Bearish() && ml.Confidence > 0.6 && pnlPct < -0.005*tolerance {
				return ExitThesisInvalid
			}
		}
	}
	if haveLI && li.VWAPDistance <= m.cfg.ThesisInvalidVWAPPct*tolerance {
		return ExitThesisInvalid
	}
	return ExitNone
}

// execute runs the §4.6 item 5 partial/full close logic.
func (m *Manager) execute(ctx context.Context, pos *model.Position, kind ExitKind, price decimal.Decimal, now time.Time) error {
	if kind == ExitTP1 {
		return m.executePartial(ctx, pos, price, now)
	}
	return m.executeFull(ctx, pos, kind, price, now)
}

func (m *Manager) executePartial(ctx context.Context, pos *model.Position, price decimal.Decimal, now time.Time) error {
	closeQty := pos.SizeQty.Mul(decimal.NewFromFloat(m.tp1PartialPct()))

	order, err := m.executor.ClosePosition(ctx, pos.Symbol, closeQty)
	if err != nil {
		return fmt.Errorf("closing partial for %s: %w", pos.Symbol, err)
	}

	grossPnL := price.Sub(pos.EntryPrice).Mul(closeQty)
	entryFee := pos.EntryPrice.Mul(closeQty).Mul(decimal.NewFromFloat(m.cfg.MakerFeeRate))
	exitFee := price.Mul(closeQty).Mul(decimal.NewFromFloat(m.cfg.TakerFeeRate))
	netPnL := grossPnL.Sub(entryFee).Sub(exitFee)

	pos.SizeQty = pos.SizeQty.Sub(closeQty)
	pos.SizeUSD = pos.SizeQty.Mul(price)
	pos.PartialClosed = true
	pos.RealizedPnL = pos.RealizedPnL.Add(netPnL)

	be := pos.EntryPrice.Add(pos.EntryPrice.Mul(decimal.NewFromFloat(0.0005)))
	pos.StopPrice = be

	m.daily.RecordRealized(netPnL, now)
	m.registry.Put(*pos)

	if m.stopMgr != nil {
		_ = m.stopMgr.UpdateStopPrice(ctx, pos.Symbol, be)
	}
	if m.persistence != nil {
		_ = m.persistence.SavePositions(ctx, m.registry.Snapshot(), false)
	}
	if m.emit != nil {
		m.emit(model.OrderPartialCloseEvent(*pos, order, string(ExitTP1)))
	}
	return nil
}

func (m *Manager) tp1PartialPct() float64 {
	if m.cfg.TP1PartialPct <= 0 {
		return 0.5
	}
	return m.cfg.TP1PartialPct
}

func (m *Manager) executeFull(ctx context.Context, pos *model.Position, kind ExitKind, price decimal.Decimal, now time.Time) error {
	if m.stopMgr != nil {
		_ = m.stopMgr.CancelStopOrder(ctx, pos.Symbol)
	}

	order, err := m.executor.ClosePosition(ctx, pos.Symbol, pos.SizeQty)
	if err != nil {
		return fmt.Errorf("closing %s (%s): %w", pos.Symbol, kind, err)
	}

	grossPnL := price.Sub(pos.EntryPrice).Mul(pos.SizeQty)
	entryFee := pos.EntryPrice.Mul(pos.SizeQty).Mul(decimal.NewFromFloat(m.cfg.MakerFeeRate))
	exitFee := price.Mul(pos.SizeQty).Mul(decimal.NewFromFloat(m.cfg.TakerFeeRate))
	netPnL := grossPnL.Sub(entryFee).Sub(exitFee).Add(pos.RealizedPnL)

	m.daily.RecordRealized(netPnL.Sub(pos.RealizedPnL), now)
	m.registry.Remove(pos.Symbol)
	if m.markClosed != nil {
		m.markClosed(pos.Symbol, now)
	}
	if m.persistence != nil {
		_ = m.persistence.SavePositions(ctx, m.registry.Snapshot(), true)
	}
	if m.emit != nil {
		closed := *pos
		closed.RealizedPnL = netPnL
		m.emit(model.OrderCloseEvent(closed, order, string(kind)))
	}
	return nil
}
