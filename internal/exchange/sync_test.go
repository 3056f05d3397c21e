package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

type fakeSnapshotFetcher struct {
	snap Snapshot
	err  error
}

func (f *fakeSnapshotFetcher) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	return f.snap, f.err
}

type fakeOpenOrdersFetcher struct {
	orders []OpenOrder
}

func (f *fakeOpenOrdersFetcher) FetchOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	return f.orders, nil
}

type noopPersistence struct{}

func (noopPersistence) SavePositions(ctx context.Context, positions map[string]model.Position, force bool) error {
	return nil
}
func (noopPersistence) LoadPositions(ctx context.Context) (map[string]model.Position, error) {
	return nil, nil
}
func (noopPersistence) ClearPosition(ctx context.Context, symbol string) error { return nil }

func TestSyncRecoversPositionMissingLocally(t *testing.T) {
	reg := NewRegistry(decimal.NewFromInt(2))
	fetcher := &fakeSnapshotFetcher{snap: Snapshot{
		CashUSD: decimal.NewFromInt(1000),
		Holdings: map[string]Holding{
			"BTC-USD": {Symbol: "BTC-USD", Qty: decimal.NewFromFloat(0.01), Price: decimal.NewFromInt(50000), CostBasisUSD: decimal.NewFromInt(480)},
		},
	}}
	sync := NewSynchronizer(reg, noopPersistence{}, nil, fetcher, nil, decimal.NewFromInt(2), decimal.NewFromInt(50), decimal.NewFromFloat(0.001))

	if err := sync.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("sync run: %v", err)
	}
	pos, ok := reg.Get("BTC-USD")
	if !ok {
		t.Fatal("expected BTC-USD to be recovered from the exchange snapshot")
	}
	if pos.StrategyID != "recovered" {
		t.Fatalf("expected strategy_id=recovered, got %q", pos.StrategyID)
	}
	if !pos.Recovered {
		t.Fatal("expected Recovered flag set")
	}
}

func TestSyncRemovesLocalPositionNoLongerOnExchange(t *testing.T) {
	reg := NewRegistry(decimal.NewFromInt(2))
	reg.Put(model.Position{Symbol: "ETH-USD", SizeQty: decimal.NewFromInt(1), SizeUSD: decimal.NewFromInt(2000)})

	fetcher := &fakeSnapshotFetcher{snap: Snapshot{CashUSD: decimal.NewFromInt(1000), Holdings: map[string]Holding{}}}
	sync := NewSynchronizer(reg, noopPersistence{}, nil, fetcher, nil, decimal.NewFromInt(2), decimal.NewFromInt(50), decimal.NewFromFloat(0.001))

	if err := sync.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("sync run: %v", err)
	}
	if reg.Has("ETH-USD") {
		t.Fatal("expected ETH-USD to be removed since the exchange no longer reports it")
	}
}

func TestSyncSetsDegradedOnImplausiblyLowBalance(t *testing.T) {
	reg := NewRegistry(decimal.NewFromInt(2))
	fetcher := &fakeSnapshotFetcher{snap: Snapshot{CashUSD: decimal.NewFromInt(10), Holdings: map[string]Holding{}}}
	sync := NewSynchronizer(reg, noopPersistence{}, nil, fetcher, nil, decimal.NewFromInt(2), decimal.NewFromInt(50), decimal.NewFromFloat(0.001))

	if err := sync.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("sync run: %v", err)
	}
	if !sync.Degraded() {
		t.Fatal("expected degraded mode when cash balance is below the floor")
	}
}

func TestSyncSkipsRecoveryDuringGraceWindow(t *testing.T) {
	reg := NewRegistry(decimal.NewFromInt(2))
	fetcher := &fakeSnapshotFetcher{snap: Snapshot{
		CashUSD: decimal.NewFromInt(1000),
		Holdings: map[string]Holding{
			"SOL-USD": {Symbol: "SOL-USD", Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100), CostBasisUSD: decimal.NewFromInt(100)},
		},
	}}
	sync := NewSynchronizer(reg, noopPersistence{}, nil, fetcher, nil, decimal.NewFromInt(2), decimal.NewFromInt(50), decimal.NewFromFloat(0.001))

	now := time.Now()
	sync.MarkRecentlyClosed("SOL-USD", now)
	if err := sync.Run(context.Background(), now.Add(time.Minute)); err != nil {
		t.Fatalf("sync run: %v", err)
	}
	if reg.Has("SOL-USD") {
		t.Fatal("expected recently-closed symbol to stay absent during its grace window")
	}
}

func TestReconcileStopOrdersLinksByClientIDConvention(t *testing.T) {
	reg := NewRegistry(decimal.NewFromInt(2))
	fetcher := &fakeSnapshotFetcher{snap: Snapshot{CashUSD: decimal.NewFromInt(1000)}}
	ordersFetcher := &fakeOpenOrdersFetcher{orders: []OpenOrder{
		{ID: "ord-1", ClientID: "stop_BTC-USD_1700000000", Symbol: "BTC-USD"},
	}}
	stops := NewStopManager(&fakeBroker{}, newTestLimiter(), nil)
	sync := NewSynchronizer(reg, noopPersistence{}, stops, fetcher, ordersFetcher, decimal.NewFromInt(2), decimal.NewFromInt(50), decimal.NewFromFloat(0.001))

	if err := sync.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("sync run: %v", err)
	}
	if !stops.HasLinkedStop("BTC-USD") {
		t.Fatal("expected BTC-USD's stop order to be linked by its client id convention")
	}
}
