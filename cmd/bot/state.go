package main

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/feature"
	"cryptomomentum-corev1/internal/intelligence"
	"cryptomomentum-corev1/internal/model"
)

// capTierOf is a static market-cap bucket table (§4.4 scoring bucket
// "Tier"), the same static-table approach the intelligence package uses
// for sector/correlation-group mapping. A symbol absent from the table
// defaults to micro, the most conservative (highest-scoring, smallest
// size) bucket.
var capTierOf = map[string]model.CapClass{
	"BTC-USD": model.CapLarge, "ETH-USD": model.CapLarge,
	"SOL-USD": model.CapMid, "AVAX-USD": model.CapMid, "ADA-USD": model.CapMid,
	"UNI-USD": model.CapMid, "NEAR-USD": model.CapMid,
	"AAVE-USD": model.CapSmall, "MKR-USD": model.CapSmall, "LDO-USD": model.CapSmall,
	"DOGE-USD": model.CapSmall,
}

func capTierFor(symbol string) model.CapClass {
	if c, ok := capTierOf[symbol]; ok {
		return c
	}
	return model.CapMicro
}

// marketState caches the latest per-symbol reads the router, exit manager
// and strategy orchestration loop all need but none of them owns outright
// (§9 design notes: explicit function parameters rather than sibling-
// component handles). One mutex-guarded struct replaces what the teacher
// spread across several package-level maps in internal/strategy/engine.go.
type marketState struct {
	mu      sync.RWMutex
	buffers map[string]*model.CandleBuffer
	feats   map[string]*feature.FeatureState
	li      map[string]*model.LiveIndicators
	spread  map[string]float64 // bps
	price   map[string]decimal.Decimal
}

func newMarketState() *marketState {
	return &marketState{
		buffers: make(map[string]*model.CandleBuffer),
		feats:   make(map[string]*feature.FeatureState),
		li:      make(map[string]*model.LiveIndicators),
		spread:  make(map[string]float64),
		price:   make(map[string]decimal.Decimal),
	}
}

func (s *marketState) bufferFor(symbol string) *model.CandleBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[symbol]
	if !ok {
		b = model.NewCandleBuffer(symbol)
		s.buffers[symbol] = b
	}
	return b
}

func (s *marketState) featureStateFor(symbol string) *feature.FeatureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feats[symbol]
	if !ok {
		f = feature.NewFeatureState(symbol)
		s.feats[symbol] = f
	}
	return f
}

func (s *marketState) recordTick(t model.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price[t.Symbol] = t.Price
	if !t.SpreadBps.IsZero() {
		bps, _ := t.SpreadBps.Float64()
		s.spread[t.Symbol] = bps
	}
}

func (s *marketState) recordTrade(t model.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price[t.Symbol] = t.Price
}

func (s *marketState) recordLI(li *model.LiveIndicators) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.li[li.Symbol] = li
}

func (s *marketState) priceGetter(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.price[symbol]
	return p, ok
}

func (s *marketState) spreadGetter(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bps, ok := s.spread[symbol]
	return bps, ok
}

func (s *marketState) liGetter(symbol string) (*model.LiveIndicators, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	li, ok := s.li[symbol]
	return li, ok
}

// burstMetricsFor builds the §4.4 no-confidence scoring path's input from
// the latest sealed-candle indicators and the symbol's candle buffer —
// this is the "strategy orchestrator" §2 refers to as producing a
// candidate signal from streaming ticks, generalized from the teacher's
// single EMA-crossover strategy.Engine into the burst-metric bucket model
// the spec actually prescribes.
func burstMetricsFor(symbol string, li *model.LiveIndicators, buf *model.CandleBuffer, spreadBps float64) intelligence.BurstMetrics {
	price := 0.0
	if last, ok := buf.Last(model.TF1m); ok {
		f, _ := last.Close.Float64()
		price = f
	}
	rangeSpike := 1.0
	if li != nil && li.ATR.IsPositive() {
		if last, ok := buf.Last(model.TF1m); ok {
			rng := last.High.Sub(last.Low)
			atr := li.ATR
			if atr.IsPositive() {
				f, _ := rng.Div(atr).Float64()
				rangeSpike = f
			}
		}
	}
	b := intelligence.BurstMetrics{
		CapTier:    capTierFor(symbol),
		SpreadBps:  spreadBps,
		Price:      price,
		RangeSpike: rangeSpike,
	}
	if li != nil {
		b.Trend15mPct = li.Trend15m
		b.VolumeRatio = li.VolumeRatio
		b.VWAPDistancePct = li.VWAPDistance
	}
	return b
}

// buildSignal constructs the router's input model.Signal for symbol from
// its current mark price (§4.5 gate 16 overrides any suggested geometry,
// so only Price/Symbol/StrategyID/TS matter here).
func buildSignal(symbol string, price decimal.Decimal, now time.Time) model.Signal {
	return model.Signal{
		Symbol:     symbol,
		StrategyID: "momentum_burst",
		Price:      price,
		TS:         now,
	}
}
