package intelligence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

func TestDailyStatsResetsOnNewUTCDay(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 1, 0, 0, 0, time.UTC)

	d := NewDailyStats(day1)
	d.RecordRealized(decimal.NewFromInt(-100), day1)
	if pnl := d.RealizedPnL(day1); !pnl.Equal(decimal.NewFromInt(-100)) {
		t.Fatalf("expected -100 realized, got %v", pnl)
	}

	if pnl := d.RealizedPnL(day2); !pnl.IsZero() {
		t.Fatalf("expected reset to zero on new UTC day, got %v", pnl)
	}
}

func TestDailyStatsKillSwitch(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDailyStats(now)
	d.RecordRealized(decimal.NewFromInt(-350), now)

	limit := decimal.NewFromInt(300)
	if !d.KillSwitchTripped(limit, now) {
		t.Fatal("expected kill switch tripped after exceeding daily loss limit")
	}
}

func TestLimitCheckerEnforcesGlobalCap(t *testing.T) {
	lc := NewLimitChecker(PositionLimits{MaxGlobalPositions: 1})
	positions := map[string]model.Position{"BTC-USD": {}}
	ok, reason := lc.CanEnter("ETH-USD", false, positions, time.Now())
	if ok {
		t.Fatalf("expected rejection at global cap, got ok with reason %q", reason)
	}
}

func TestLimitCheckerEnforcesSectorCap(t *testing.T) {
	lc := NewLimitChecker(PositionLimits{MaxPerSector: 1, MaxGlobalPositions: 10})
	positions := map[string]model.Position{"BTC-USD": {}} // sector "majors"
	ok, _ := lc.CanEnter("ETH-USD", false, positions, time.Now())
	if ok {
		t.Fatal("expected rejection: ETH-USD shares the majors sector with BTC-USD")
	}
}

func TestLimitCheckerCooldowns(t *testing.T) {
	lc := NewLimitChecker(PositionLimits{
		MaxGlobalPositions: 10,
		GlobalCooldown:     time.Minute,
		PerSymbolCooldown:  time.Hour,
	})
	now := time.Now()
	lc.RecordEntry("SOL-USD", now)

	if ok, _ := lc.CanEnter("SOL-USD", false, nil, now.Add(time.Second)); ok {
		t.Fatal("expected per-symbol cooldown to block an immediate re-entry")
	}
	if ok, _ := lc.CanEnter("ADA-USD", false, nil, now.Add(time.Second)); ok {
		t.Fatal("expected global cooldown to block any trade right after another")
	}
	if ok, _ := lc.CanEnter("ADA-USD", false, nil, now.Add(2*time.Hour)); !ok {
		t.Fatal("expected entry to be allowed once both cooldowns have elapsed")
	}
}
