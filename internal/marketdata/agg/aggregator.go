// Package agg builds 1-minute OHLCV candles from ticks and trades, the way
// the teacher's aggregator builds 1-second candles from ticks — generalized
// to a wider bucket (§4.1) and to decimal prices, and extended to also fold
// in market_trades volume so Volume reflects executed size, not tick count.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"cryptomomentum-corev1/internal/model"

	"github.com/shopspring/decimal"
)

type candleState struct {
	bucket time.Time
	candle model.Candle
}

// Aggregator builds 1m candles from a stream of ticks/trades. It runs in a
// single goroutine and emits finalized candles when the minute rolls over.
//
// Event-time watermark: candles are finalized based on the event-time
// watermark (max event-time seen minus ReorderBuffer), not wall-clock time,
// so out-of-order ticks within the reorder window still land correctly.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*candleState // key = symbol

	flushInterval time.Duration

	// ReorderBuffer is how long to hold out-of-order events before treating
	// their bucket as finalized.
	ReorderBuffer time.Duration

	maxEventTS int64 // max canonical event timestamp seen (Unix seconds)
	watermark  int64

	OnDroppedTick func()
	OnLateTick    func()
}

// New creates an Aggregator with default settings.
func New() *Aggregator {
	return &Aggregator{
		states:        make(map[string]*candleState),
		flushInterval: 1 * time.Second,
		ReorderBuffer: 3 * time.Second,
	}
}

// WatermarkDelay returns the current lag between wall-clock time and the
// event-time watermark.
func (a *Aggregator) WatermarkDelay() time.Duration {
	a.mu.Lock()
	wm := a.watermark
	a.mu.Unlock()
	if wm == 0 {
		return 0
	}
	return time.Since(time.Unix(wm, 0))
}

// Run consumes ticks and trades, aggregates into 1m candles, and sends
// finalized candles to candleCh. Blocks until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, tradeCh <-chan model.Trade, candleCh chan<- model.Candle) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(candleCh)
			return

		case t, ok := <-tickCh:
			if !ok {
				tickCh = nil
				continue
			}
			a.processTick(t, candleCh)

		case tr, ok := <-tradeCh:
			if !ok {
				tradeCh = nil
				continue
			}
			a.processTrade(tr, candleCh)

		case <-ticker.C:
			a.flushOld(candleCh)
		}
	}
}

func (a *Aggregator) watermarkGate(canonicalTS time.Time) (bucket int64, late bool) {
	tsSec := canonicalTS.Unix()
	if tsSec > a.maxEventTS {
		a.maxEventTS = tsSec
		bufSec := int64(a.ReorderBuffer.Seconds())
		if bufSec < 1 {
			bufSec = 1
		}
		a.watermark = a.maxEventTS - bufSec
	}
	bucketStart := model.BucketStart(canonicalTS, model.TF1m).Unix()
	return bucketStart, a.watermark > 0 && bucketStart < a.watermark
}

// processTick incorporates a tick's price into the forming candle (OHLC
// only — ticks don't carry executed size).
func (a *Aggregator) processTick(t model.Tick, candleCh chan<- model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket, late := a.watermarkGate(t.CanonicalTS())
	if late {
		cb := a.OnLateTick
		a.mu.Unlock()
		if cb != nil {
			cb()
		}
		a.mu.Lock()
		return
	}

	st := a.ensureBucket(t.Symbol, bucket, t.Price, candleCh)
	c := &st.candle
	if t.Price.GreaterThan(c.High) {
		c.High = t.Price
	}
	if t.Price.LessThan(c.Low) {
		c.Low = t.Price
	}
	c.Close = t.Price
}

// processTrade folds an executed trade's size into the forming candle's
// volume and updates OHLC from its price.
func (a *Aggregator) processTrade(t model.Trade, candleCh chan<- model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket, late := a.watermarkGate(t.CanonicalTS())
	if late {
		cb := a.OnLateTick
		a.mu.Unlock()
		if cb != nil {
			cb()
		}
		a.mu.Lock()
		return
	}

	st := a.ensureBucket(t.Symbol, bucket, t.Price, candleCh)
	c := &st.candle
	if t.Price.GreaterThan(c.High) {
		c.High = t.Price
	}
	if t.Price.LessThan(c.Low) {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume = c.Volume.Add(t.Size)
}

// ensureBucket returns the forming candle for symbol at bucketSec, rolling
// over (and emitting) the previous bucket if one was open.
func (a *Aggregator) ensureBucket(symbol string, bucketSec int64, seedPrice decimal.Decimal, candleCh chan<- model.Candle) *candleState {
	st, exists := a.states[symbol]
	bucketTS := time.Unix(bucketSec, 0).UTC()

	if exists && bucketSec > st.bucket.Unix() {
		a.emit(st, candleCh)
		delete(a.states, symbol)
		exists = false
	}

	if !exists {
		st = &candleState{
			bucket: bucketTS,
			candle: model.Candle{
				Symbol: symbol,
				TF:     model.TF1m,
				TS:     bucketTS,
				Open:   seedPrice,
				High:   seedPrice,
				Low:    seedPrice,
				Close:  seedPrice,
				Volume: decimal.Zero,
			},
		}
		a.states[symbol] = st
	}
	return st
}

// flushOld emits candles whose bucket has fallen behind the watermark.
func (a *Aggregator) flushOld(candleCh chan<- model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.watermark == 0 {
		now := time.Now().Unix()
		for key, st := range a.states {
			if st.bucket.Unix() < now-int64(model.TF1m) {
				a.emit(st, candleCh)
				delete(a.states, key)
			}
		}
		return
	}

	for key, st := range a.states {
		if st.bucket.Unix() < a.watermark {
			a.emit(st, candleCh)
			delete(a.states, key)
		}
	}
}

// FlushSession finalizes and emits all in-progress candles immediately.
// Safe to call from any goroutine — guarded by the internal mutex.
func (a *Aggregator) FlushSession(candleCh chan<- model.Candle) {
	a.flushAll(candleCh)
	log.Println("[agg] session flushed — all forming candles finalized")
}

func (a *Aggregator) flushAll(candleCh chan<- model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, st := range a.states {
		a.emit(st, candleCh)
		delete(a.states, key)
	}
}

func (a *Aggregator) emit(st *candleState, candleCh chan<- model.Candle) {
	select {
	case candleCh <- st.candle:
	default:
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
		log.Printf("[agg] candleCh full, dropping candle %s ts=%v", st.candle.Key(), st.candle.TS)
	}
}
