package intelligence

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

// sectorOf and correlationGroupOf are the static mapping tables §4.4 calls
// for ("Sector and correlation-group mappings are static tables"). A
// symbol absent from the sector table falls back to the shared sector
// "other"; a symbol absent from the correlation table forms its own
// singleton group.
var sectorOf = map[string]string{
	"BTC-USD": "majors", "ETH-USD": "majors",
	"SOL-USD": "l1", "AVAX-USD": "l1", "ADA-USD": "l1", "NEAR-USD": "l1",
	"UNI-USD": "defi", "AAVE-USD": "defi", "MKR-USD": "defi", "LDO-USD": "defi",
	"DOGE-USD": "meme", "SHIB-USD": "meme", "PEPE-USD": "meme", "WIF-USD": "meme",
}

var correlationGroupOf = map[string]string{
	"BTC-USD": "btc-beta", "ETH-USD": "eth-beta",
	"SOL-USD": "sol-beta", "AVAX-USD": "sol-beta", "NEAR-USD": "sol-beta",
	"UNI-USD": "eth-beta", "AAVE-USD": "eth-beta", "MKR-USD": "eth-beta", "LDO-USD": "eth-beta",
	"DOGE-USD": "meme-beta", "SHIB-USD": "meme-beta", "PEPE-USD": "meme-beta", "WIF-USD": "meme-beta",
	"ADA-USD": "alt-beta",
}

// Sector returns the static sector tag for a symbol, "other" if unmapped.
func Sector(symbol string) string {
	if s, ok := sectorOf[symbol]; ok {
		return s
	}
	return "other"
}

// CorrelationGroup returns the static correlation-group tag for a symbol.
// Unmapped symbols are their own singleton group, so they never collide
// with an unrelated symbol's correlation cap.
func CorrelationGroup(symbol string) string {
	if g, ok := correlationGroupOf[symbol]; ok {
		return g
	}
	return "solo:" + symbol
}

// PositionLimits is the configured set of position-management caps (§4.4).
type PositionLimits struct {
	PerSymbolExposureCapUSD decimal.Decimal
	MaxPerSector            int
	MaxPerCorrelationGroup  int
	MaxGlobalPositions      int
	MaxWeakPositions        int
	GlobalCooldown          time.Duration
	PerSymbolCooldown       time.Duration
	DailyLossKillUSD        decimal.Decimal
}

// DailyStats tracks realized PnL and trade count for the current UTC day,
// reset at UTC midnight — the supplemented daily-stats feature from
// SPEC_FULL §C, generalized from the teacher's IST-session day boundary
// to a UTC calendar day (crypto markets never close).
type DailyStats struct {
	mu             sync.Mutex
	day            time.Time // UTC midnight of the tracked day
	realizedPnLUSD decimal.Decimal
	tradeCount     int
}

// NewDailyStats creates a tracker seeded to now's UTC day.
func NewDailyStats(now time.Time) *DailyStats {
	return &DailyStats{day: utcMidnight(now)}
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// rolloverIfNewDay resets counters when now has crossed into a new UTC day.
// Caller must hold d.mu.
func (d *DailyStats) rolloverIfNewDay(now time.Time) {
	today := utcMidnight(now)
	if today.After(d.day) {
		d.day = today
		d.realizedPnLUSD = decimal.Zero
		d.tradeCount = 0
	}
}

// RecordRealized adds a closed trade's realized PnL to today's total.
func (d *DailyStats) RecordRealized(pnl decimal.Decimal, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverIfNewDay(now)
	d.realizedPnLUSD = d.realizedPnLUSD.Add(pnl)
	d.tradeCount++
}

// RealizedPnL returns today's realized PnL so far.
func (d *DailyStats) RealizedPnL(now time.Time) decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverIfNewDay(now)
	return d.realizedPnLUSD
}

// KillSwitchTripped reports whether today's realized loss has breached
// the configured daily loss limit (§4.5 gate 2 daily stop).
func (d *DailyStats) KillSwitchTripped(limit decimal.Decimal, now time.Time) bool {
	return d.RealizedPnL(now).LessThanOrEqual(limit.Neg())
}

// LimitChecker enforces §4.4's position-limit set against the live
// registry, generalized from the teacher's portfolio.RiskManager (which
// checked only max-open-positions/size/daily-loss) into the full
// sector/correlation/global/weak/cooldown set the spec requires.
type LimitChecker struct {
	limits PositionLimits

	mu              sync.Mutex
	lastGlobalTrade time.Time
	lastSymbolTrade map[string]time.Time
}

// NewLimitChecker creates a checker with the given configured limits.
func NewLimitChecker(limits PositionLimits) *LimitChecker {
	return &LimitChecker{
		limits:          limits,
		lastSymbolTrade: make(map[string]time.Time),
	}
}

// CanEnter reports whether a new position in symbol would violate any
// configured limit, given the current open-position snapshot and whether
// this candidate is a "weak" play (low-confidence strategy signal).
func (lc *LimitChecker) CanEnter(symbol string, weak bool, positions map[string]model.Position, now time.Time) (bool, string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.limits.MaxGlobalPositions > 0 && len(positions) >= lc.limits.MaxGlobalPositions {
		return false, "max global positions reached"
	}

	sector := Sector(symbol)
	corrGroup := CorrelationGroup(symbol)
	sectorCount, corrCount, weakCount := 0, 0, 0
	for sym, p := range positions {
		if Sector(sym) == sector {
			sectorCount++
		}
		if CorrelationGroup(sym) == corrGroup {
			corrCount++
		}
		if p.CurrentConfidence > 0 && p.CurrentConfidence < 0.4 {
			weakCount++
		}
	}
	if lc.limits.MaxPerSector > 0 && sectorCount >= lc.limits.MaxPerSector {
		return false, fmt.Sprintf("max positions in sector %q reached", sector)
	}
	if lc.limits.MaxPerCorrelationGroup > 0 && corrCount >= lc.limits.MaxPerCorrelationGroup {
		return false, fmt.Sprintf("max positions in correlation group %q reached", corrGroup)
	}
	if weak && lc.limits.MaxWeakPositions > 0 && weakCount >= lc.limits.MaxWeakPositions {
		return false, "max weak-play positions reached"
	}

	if lc.limits.GlobalCooldown > 0 && !lc.lastGlobalTrade.IsZero() {
		if now.Sub(lc.lastGlobalTrade) < lc.limits.GlobalCooldown {
			return false, "global cooldown active"
		}
	}
	if lc.limits.PerSymbolCooldown > 0 {
		if last, ok := lc.lastSymbolTrade[symbol]; ok && now.Sub(last) < lc.limits.PerSymbolCooldown {
			return false, "symbol cooldown active"
		}
	}

	return true, ""
}

// RecordEntry marks symbol as just traded, for future cooldown checks.
func (lc *LimitChecker) RecordEntry(symbol string, now time.Time) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.lastGlobalTrade = now
	lc.lastSymbolTrade[symbol] = now
}
