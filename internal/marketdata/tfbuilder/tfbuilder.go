// Package tfbuilder resamples sealed 1-minute candles into the larger
// timeframes the feature engine and router consult (5m/1h/1d). It keeps the
// teacher's O(1)-per-candle incremental resampling shape — a forming-candle
// state per (symbol, TF) that is merged on each new 1m candle and finalized
// when the larger bucket rolls over — generalized from second-to-N-second
// resampling to minute-to-larger-TF resampling over decimal OHLCV.
package tfbuilder

import (
	"context"
	"log"
	"time"

	"cryptomomentum-corev1/internal/model"
)

type tfState struct {
	bucket  time.Time
	candle  model.Candle
	started bool
}

// Builder resamples 1m candles into the given set of larger timeframes.
// Designed to run in a single goroutine (single consumer, §5).
type Builder struct {
	tfs []model.Timeframe

	// states[i] holds the forming candle per symbol for tfs[i].
	states []map[string]*tfState

	// StaleTolerance rejects 1m candles whose bucket is more than this far
	// behind the current forming bucket for a TF, preventing late candles
	// from corrupting an already-advancing bucket.
	StaleTolerance time.Duration

	OnTFCandle    func(c model.Candle)
	OnStaleCandle func()
}

// New creates a Builder for the given larger timeframes (TF1m excluded —
// it is the input resolution, not an output).
func New(tfs []model.Timeframe) *Builder {
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 64)
	}
	return &Builder{
		tfs:            tfs,
		states:         states,
		StaleTolerance: 2 * time.Minute,
	}
}

// Run consumes 1m candles from candleCh, resamples into all configured
// TFs, and emits finalized candles to outCh. Blocks until ctx is cancelled.
func (b *Builder) Run(ctx context.Context, candleCh <-chan model.Candle, outCh chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			b.flushAll(outCh)
			return
		case c, ok := <-candleCh:
			if !ok {
				b.flushAll(outCh)
				return
			}
			if c.TF != model.TF1m {
				continue // only 1m candles drive resampling
			}
			b.Process(c, outCh)
		}
	}
}

// Process handles one 1m candle against every configured TF. Exported so
// the core can call it inline from the hot path without channel overhead
// when desired.
func (b *Builder) Process(c model.Candle, outCh chan<- model.Candle) {
	for i, tf := range b.tfs {
		bucketTS := model.BucketStart(c.TS, tf)
		st, exists := b.states[i][c.Symbol]

		if b.StaleTolerance > 0 && exists && bucketTS.Before(st.bucket) {
			lag := st.bucket.Sub(bucketTS)
			if lag > b.StaleTolerance {
				if b.OnStaleCandle != nil {
					b.OnStaleCandle()
				}
				continue
			}
		}

		if exists && bucketTS.After(st.bucket) {
			b.emit(st.candle, outCh)
			exists = false
		}

		if !exists {
			st = &tfState{
				bucket:  bucketTS,
				started: true,
				candle: model.Candle{
					Symbol: c.Symbol,
					TF:     tf,
					TS:     bucketTS,
					Open:   c.Open,
					High:   c.High,
					Low:    c.Low,
					Close:  c.Close,
					Volume: c.Volume,
				},
			}
			b.states[i][c.Symbol] = st
			continue
		}

		fc := &st.candle
		if c.High.GreaterThan(fc.High) {
			fc.High = c.High
		}
		if c.Low.LessThan(fc.Low) {
			fc.Low = c.Low
		}
		fc.Close = c.Close
		fc.Volume = fc.Volume.Add(c.Volume)
	}
}

func (b *Builder) flushAll(outCh chan<- model.Candle) {
	for i := range b.tfs {
		for key, st := range b.states[i] {
			if st.started {
				b.emit(st.candle, outCh)
			}
			delete(b.states[i], key)
		}
	}
}

func (b *Builder) emit(c model.Candle, outCh chan<- model.Candle) {
	if b.OnTFCandle != nil {
		b.OnTFCandle(c)
	}
	select {
	case outCh <- c:
	default:
		log.Printf("[tfbuilder] outCh full, dropping TF candle %s ts=%v", c.Key(), c.TS)
	}
}

// TFs returns the configured output timeframes.
func (b *Builder) TFs() []model.Timeframe {
	return b.tfs
}
