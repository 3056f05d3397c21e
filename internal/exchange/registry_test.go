package exchange

import (
	"testing"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

func TestRegistrySeparatesActiveFromDust(t *testing.T) {
	r := NewRegistry(decimal.NewFromInt(2))
	r.Put(model.Position{Symbol: "BTC-USD", SizeUSD: decimal.NewFromInt(100)})
	r.Put(model.Position{Symbol: "DOGE-USD", SizeUSD: decimal.NewFromFloat(1.5)})

	if r.Count() != 1 {
		t.Fatalf("expected 1 active position, got %d", r.Count())
	}
	if len(r.Dust()) != 1 {
		t.Fatalf("expected 1 dust position, got %d", len(r.Dust()))
	}
}

func TestRegistryTotalExposureExcludesDust(t *testing.T) {
	r := NewRegistry(decimal.NewFromInt(2))
	r.Put(model.Position{Symbol: "BTC-USD", SizeUSD: decimal.NewFromInt(100)})
	r.Put(model.Position{Symbol: "DOGE-USD", SizeUSD: decimal.NewFromFloat(1.5)})

	if exp := r.TotalExposureUSD(); !exp.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected exposure of 100 excluding dust, got %v", exp)
	}
}

func TestRegistryMarkToMarketMovesAcrossDustThreshold(t *testing.T) {
	r := NewRegistry(decimal.NewFromInt(10))
	r.Put(model.Position{Symbol: "SOL-USD", SizeQty: decimal.NewFromInt(1), SizeUSD: decimal.NewFromInt(100)})

	r.MarkToMarket("SOL-USD", decimal.NewFromInt(5))
	if r.Count() != 0 {
		t.Fatal("expected position to fall into dust after marking down below threshold")
	}
	if len(r.Dust()) != 1 {
		t.Fatal("expected the marked-down position to appear in Dust()")
	}
}

func TestRegistryCountByStrategy(t *testing.T) {
	r := NewRegistry(decimal.Zero)
	r.Put(model.Position{Symbol: "BTC-USD", StrategyID: "momentum", SizeUSD: decimal.NewFromInt(10)})
	r.Put(model.Position{Symbol: "ETH-USD", StrategyID: "momentum", SizeUSD: decimal.NewFromInt(10)})
	r.Put(model.Position{Symbol: "SOL-USD", StrategyID: "meanrev", SizeUSD: decimal.NewFromInt(10)})

	if n := r.CountByStrategy("momentum"); n != 2 {
		t.Fatalf("expected 2 momentum positions, got %d", n)
	}
}
