// Package replay provides a candle replayer that reads historical data from
// the SQLite journal and emits it at configurable speed for backtesting the
// feature engine and intelligence layer against recorded history.
package replay

import (
	"context"
	"log"
	"time"

	"cryptomomentum-corev1/internal/model"
	sqlitestore "cryptomomentum-corev1/internal/store/sqlite"
)

// Replayer reads historical candles from the SQLite journal and replays
// them at a configurable speed multiplier, grounded on the teacher's
// internal/marketdata/replay/replay.go (same sort-then-sleep-then-emit
// loop) retargeted from the int64-paise TFCandle onto the core's unified
// decimal model.Candle, across an arbitrary symbol set rather than a
// single NSE instrument feed.
type Replayer struct {
	reader *sqlitestore.Reader
}

// New creates a Replayer backed by a SQLite reader.
func New(reader *sqlitestore.Reader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all candles for the given symbols/timeframes, emitting them
// into outCh in timestamp order. speed controls playback rate: 1.0 =
// real-time, 10.0 = 10x, 0 = as fast as possible. fromTS filters candles
// to those after this Unix timestamp (0 = all).
func (r *Replayer) Run(ctx context.Context, symbols []string, tfs []model.Timeframe, fromTS int64, speed float64, outCh chan<- model.Candle) error {
	var all []model.Candle
	for _, symbol := range symbols {
		for _, tf := range tfs {
			candles, err := r.reader.ReadCandles(symbol, tf, fromTS)
			if err != nil {
				return err
			}
			all = append(all, candles...)
		}
	}

	if len(all) == 0 {
		log.Println("[replay] no candles found in the journal")
		return nil
	}

	sortCandles(all)
	log.Printf("[replay] loaded %d candles across %d symbols x %d TFs, speed=%.1fx", len(all), len(symbols), len(tfs), speed)

	var prevTS time.Time
	emitted := 0

	for _, c := range all {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return ctx.Err()
		default:
		}

		if speed > 0 && !prevTS.IsZero() {
			gap := c.TS.Sub(prevTS)
			if gap > 0 {
				scaledGap := time.Duration(float64(gap) / speed)
				if scaledGap > 5*time.Second {
					scaledGap = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = c.TS

		outCh <- c
		emitted++
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return nil
}

// sortCandles sorts candles by timestamp (insertion sort — stable and
// fine for replay sizes).
func sortCandles(candles []model.Candle) {
	for i := 1; i < len(candles); i++ {
		for j := i; j > 0 && candles[j].TS.Before(candles[j-1].TS); j-- {
			candles[j], candles[j-1] = candles[j-1], candles[j]
		}
	}
}
