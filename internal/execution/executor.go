// Package execution builds the mode-agnostic executor (§9) the router,
// exit manager, and exchange synchronizer depend on through model.Executor/
// model.PortfolioManager/exchange.SnapshotFetcher/exchange.OpenOrdersFetcher/
// exchange.BrokerStopPlacer, without ever knowing whether trading_mode is
// "paper" or "live".
package execution

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/config"
	"cryptomomentum-corev1/internal/exchange"
	"cryptomomentum-corev1/internal/model"
)

// Bundle is everything cmd/bot wires from a constructed executor: the
// model.Executor itself, plus the narrower interfaces the synchronizer and
// stop manager need. In paper mode all five are the same *PaperExecutor;
// in live mode Executor is the *LiveExecutor and the other four are the
// REST client. The bundle exists so callers can depend on the interfaces directly
// rather than a concrete *LiveExecutor/*PaperExecutor type.
type Bundle struct {
	Executor   model.Executor
	Portfolio  model.PortfolioManager
	Snapshots  exchange.SnapshotFetcher
	OpenOrders exchange.OpenOrdersFetcher
	Stops      exchange.BrokerStopPlacer
}

// New builds the executor bundle for cfg.TradingMode ("paper" or "live"),
// per §9's factory-keyed-by-trading_mode design. priceGetter is required
// in paper mode to mark simulated fills; it is unused in live mode, where
// the exchange itself is the price authority.
func New(cfg *config.Config, rest *exchange.RESTClient, journal *Journal, priceGetter model.PriceGetter) (*Bundle, error) {
	switch cfg.TradingMode {
	case "live":
		live := NewLiveExecutor(rest, journal, 5, 30*time.Second)
		return &Bundle{
			Executor: live, Portfolio: rest, Snapshots: rest,
			OpenOrders: rest, Stops: rest,
		}, nil

	case "paper":
		startingCash := decimal.NewFromFloat(cfg.MaxTradeUSD * 20) // seed well above one max trade
		slippageBps := 5.0
		paper := NewPaperExecutor(startingCash, slippageBps, cfg.MakerFeeRate, cfg.TakerFeeRate, priceGetter, journal)
		return &Bundle{
			Executor: paper, Portfolio: paper, Snapshots: paper,
			OpenOrders: paper, Stops: paper,
		}, nil

	default:
		return nil, fmt.Errorf("execution: unknown trading_mode %q (want paper or live)", cfg.TradingMode)
	}
}
