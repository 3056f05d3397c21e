package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/exchange"
	"cryptomomentum-corev1/internal/model"
)

// PaperExecutor simulates order execution against an in-memory ledger
// instead of the live exchange, carried forward from the teacher's
// internal/execution/paper.go slippage-bps fill model but retargeted from
// int64-paise signals onto decimal Order/Position types, with its own
// cash ledger so it also satisfies model.PortfolioManager,
// exchange.SnapshotFetcher, exchange.OpenOrdersFetcher and
// exchange.BrokerStopPlacer — the full surface a live account would need,
// so the router/exit-manager/synchronizer never know which mode they run
// in (§9).
type PaperExecutor struct {
	mu sync.Mutex

	cashUSD     decimal.Decimal
	holdings    map[string]decimal.Decimal // symbol -> base qty
	openStops   map[string]model.Order     // symbol -> stop order
	orderSeq    int64

	slippageBps   decimal.Decimal
	makerFeeRate  decimal.Decimal
	takerFeeRate  decimal.Decimal
	priceGetter   model.PriceGetter

	journal *Journal
}

// NewPaperExecutor creates a paper trading executor seeded with
// startingCashUSD, simulating fills with slippageBps of adverse slippage
// and the given maker/taker fee rates (§8 scenario 1 fee path). priceGetter
// resolves a symbol's current mark price for simulated market fills.
func NewPaperExecutor(startingCashUSD decimal.Decimal, slippageBps, makerFeeRate, takerFeeRate float64, priceGetter model.PriceGetter, journal *Journal) *PaperExecutor {
	return &PaperExecutor{
		cashUSD:      startingCashUSD,
		holdings:     make(map[string]decimal.Decimal),
		openStops:    make(map[string]model.Order),
		slippageBps:  decimal.NewFromFloat(slippageBps),
		makerFeeRate: decimal.NewFromFloat(makerFeeRate),
		takerFeeRate: decimal.NewFromFloat(takerFeeRate),
		priceGetter:  priceGetter,
		journal:      journal,
	}
}

// CanExecuteOrder implements model.Executor: the paper ledger never
// degrades, so it always accepts orders.
func (p *PaperExecutor) CanExecuteOrder() bool { return true }

func (p *PaperExecutor) nextOrderID() string {
	p.orderSeq++
	return fmt.Sprintf("PAPER-%d", p.orderSeq)
}

// OpenPosition implements model.Executor: simulates a market buy (when
// limitPrice is zero) or a resting limit buy, marking the fill against the
// mark price with slippageBps of adverse slippage and the taker/maker fee
// respectively.
func (p *PaperExecutor) OpenPosition(ctx context.Context, symbol string, sizeUSD decimal.Decimal, limitPrice decimal.Decimal) (model.Order, error) {
	price, ok := p.priceGetter(symbol)
	if !ok || price.IsZero() {
		return model.Order{}, fmt.Errorf("execution: no mark price for %s", symbol)
	}

	isMarket := limitPrice.IsZero()
	fillPrice := price
	feeRate := p.makerFeeRate
	if isMarket {
		slip := fillPrice.Mul(p.slippageBps).Div(decimal.NewFromInt(10000))
		fillPrice = fillPrice.Add(slip) // buy fills worse (higher)
		feeRate = p.takerFeeRate
	} else {
		fillPrice = limitPrice
	}

	qty := sizeUSD.Div(fillPrice)
	fee := sizeUSD.Mul(feeRate)

	p.mu.Lock()
	if p.cashUSD.LessThan(sizeUSD.Add(fee)) {
		p.mu.Unlock()
		return model.Order{}, fmt.Errorf("execution: insufficient paper balance for %s", symbol)
	}
	p.cashUSD = p.cashUSD.Sub(sizeUSD).Sub(fee)
	p.holdings[symbol] = p.holdings[symbol].Add(qty)
	orderID := p.nextOrderID()
	p.mu.Unlock()

	orderType := model.OrderMarket
	if !isMarket {
		orderType = model.OrderLimit
	}
	now := time.Now().UTC()
	order := model.Order{
		ID: orderID, ClientID: model.NewEntryClientID(symbol, now), Symbol: symbol,
		Side: model.SideBuy, Type: orderType, Status: model.OrderFilled,
		LimitPrice: limitPrice, SizeQty: qty, FilledQty: qty, FilledValue: sizeUSD, Fees: fee,
		CreatedAt: now, UpdatedAt: now,
	}

	if p.journal != nil {
		p.journal.RecordFill(Fill{
			OrderID: orderID, ClientOrderID: order.ClientID, Symbol: symbol,
			Side: model.SideBuy, Qty: qty, Price: fillPrice, Fee: fee, FilledAt: now,
		})
	}
	return order, nil
}

// ClosePosition implements model.Executor: simulates a market sell against
// the mark price, with adverse slippage and the taker fee.
func (p *PaperExecutor) ClosePosition(ctx context.Context, symbol string, qty decimal.Decimal) (model.Order, error) {
	price, ok := p.priceGetter(symbol)
	if !ok || price.IsZero() {
		return model.Order{}, fmt.Errorf("execution: no mark price for %s", symbol)
	}

	slip := price.Mul(p.slippageBps).Div(decimal.NewFromInt(10000))
	fillPrice := price.Sub(slip) // sell fills worse (lower)
	proceeds := qty.Mul(fillPrice)
	fee := proceeds.Mul(p.takerFeeRate)

	p.mu.Lock()
	held := p.holdings[symbol]
	if held.LessThan(qty) {
		qty = held
		proceeds = qty.Mul(fillPrice)
		fee = proceeds.Mul(p.takerFeeRate)
	}
	p.holdings[symbol] = held.Sub(qty)
	p.cashUSD = p.cashUSD.Add(proceeds).Sub(fee)
	orderID := p.nextOrderID()
	p.mu.Unlock()

	now := time.Now().UTC()
	order := model.Order{
		ID: orderID, ClientID: fmt.Sprintf("exit_%s_%d", symbol, now.Unix()), Symbol: symbol,
		Side: model.SideSell, Type: model.OrderMarket, Status: model.OrderFilled,
		SizeQty: qty, FilledQty: qty, FilledValue: proceeds, Fees: fee,
		CreatedAt: now, UpdatedAt: now,
	}

	if p.journal != nil {
		p.journal.RecordFill(Fill{
			OrderID: orderID, ClientOrderID: order.ClientID, Symbol: symbol,
			Side: model.SideSell, Qty: qty, Price: fillPrice, Fee: fee, FilledAt: now,
		})
	}
	return order, nil
}

// GetAvailableBalance implements model.PortfolioManager.
func (p *PaperExecutor) GetAvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cashUSD, nil
}

// GetTotalPortfolioValue implements model.PortfolioManager: cash plus the
// mark-to-market value of every simulated holding.
func (p *PaperExecutor) GetTotalPortfolioValue(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.cashUSD
	for symbol, qty := range p.holdings {
		if qty.IsZero() {
			continue
		}
		if price, ok := p.priceGetter(symbol); ok {
			total = total.Add(qty.Mul(price))
		}
	}
	return total, nil
}

// FetchSnapshot implements exchange.SnapshotFetcher against the simulated
// ledger, so the synchronizer's truth-reconciliation loop (§4.7) runs
// identically in paper mode.
func (p *PaperExecutor) FetchSnapshot(ctx context.Context) (exchange.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := exchange.Snapshot{CashUSD: p.cashUSD, Holdings: make(map[string]exchange.Holding, len(p.holdings))}
	for symbol, qty := range p.holdings {
		if qty.IsZero() {
			continue
		}
		price, _ := p.priceGetter(symbol)
		snap.Holdings[symbol] = exchange.Holding{
			Symbol: symbol, Qty: qty, AvailableQty: qty, Price: price,
		}
	}
	return snap, nil
}

// FetchOpenOrders implements exchange.OpenOrdersFetcher.
func (p *PaperExecutor) FetchOpenOrders(ctx context.Context) ([]exchange.OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]exchange.OpenOrder, 0, len(p.openStops))
	for symbol, order := range p.openStops {
		out = append(out, exchange.OpenOrder{ID: order.ID, ClientID: order.ClientID, Symbol: symbol, IsStop: true})
	}
	return out, nil
}

// PlaceStop implements exchange.BrokerStopPlacer: records a resting stop
// in the simulated ledger without consuming holdings — the paper
// position's real exit happens through ClosePosition when the exit
// manager's own price-crossing check fires, same as the teacher's
// paper executor never round-tripped stops through a broker.
func (p *PaperExecutor) PlaceStop(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal, clientID string) (model.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	orderID := p.nextOrderID()
	order := model.Order{
		ID: orderID, ClientID: clientID, Symbol: symbol, Side: model.SideSell,
		Type: model.OrderStopLimit, Status: model.OrderOpen, StopPrice: stopPrice,
		SizeQty: qty, IsStop: true, LinkedPositionSymbol: symbol,
		CreatedAt: time.Now().UTC(),
	}
	p.openStops[symbol] = order
	return order, nil
}

// CancelOrder implements exchange.BrokerStopPlacer.
func (p *PaperExecutor) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for symbol, order := range p.openStops {
		if order.ID == orderID {
			delete(p.openStops, symbol)
			return nil
		}
	}
	return nil
}
