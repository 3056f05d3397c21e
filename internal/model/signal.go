package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a candidate entry emitted by the strategy orchestrator (§2 data
// flow: "strategy signal"), consumed by the order router's submit gate
// pipeline (§4.5). A signal may optionally carry a strategy-supplied
// confidence; when absent, the entry scorer falls back to the burst-metric
// bucket path (§4.4).
type Signal struct {
	Symbol     string `json:"symbol"`
	StrategyID string `json:"strategy_id"`

	HasConfidence bool    `json:"has_confidence"`
	Confidence    float64 `json:"confidence,omitempty"` // [0,1], valid only if HasConfidence

	Price decimal.Decimal `json:"price"` // reference price at signal emission

	// Suggested stop/TP are always overridden by the router's fixed
	// geometry (§4.5 gate 16) — carried here only for audit/logging.
	SuggestedStopPrice decimal.Decimal `json:"suggested_stop_price,omitempty"`
	SuggestedTP1Price  decimal.Decimal `json:"suggested_tp1_price,omitempty"`

	TS time.Time `json:"ts"`
}
