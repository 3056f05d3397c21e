package universe

import (
	"context"
	"log"
	"time"

	"cryptomomentum-corev1/internal/model"
)

const (
	backfillMaxRetries   = 3
	backfillRetrySpacing = 5 * time.Second
)

// BackfillFetcher fetches historical candles for a symbol across the given
// timeframes, used to warm a newly promoted T1 symbol.
type BackfillFetcher func(ctx context.Context, symbol string, tfs []model.Timeframe) ([]model.Candle, error)

// BackfillWorker drains a queue of "warm this symbol" jobs fed by the
// scheduler's OnPromoteToT1 callback (§4.2), rate-limited through the
// shared RateLimiter and attempted up to backfillMaxRetries times in total,
// spaced backfillRetrySpacing apart.
type BackfillWorker struct {
	queue   chan string
	limiter *RateLimiter
	fetch   BackfillFetcher
	tfs     []model.Timeframe

	OnWarmed func(symbol string, n int)
	OnFailed func(symbol string, err error)
}

// NewBackfillWorker creates a worker with the given job-queue depth.
func NewBackfillWorker(queueDepth int, limiter *RateLimiter, fetch BackfillFetcher, tfs []model.Timeframe) *BackfillWorker {
	return &BackfillWorker{
		queue:   make(chan string, queueDepth),
		limiter: limiter,
		fetch:   fetch,
		tfs:     tfs,
	}
}

// Enqueue schedules symbol for warmup backfill. Non-blocking — if the
// queue is full, the job is dropped and logged (it will be re-enqueued on
// the next promotion if the symbol is promoted again).
func (w *BackfillWorker) Enqueue(symbol string) {
	select {
	case w.queue <- symbol:
	default:
		log.Printf("[universe/backfill] queue full, dropping backfill job for %s", symbol)
	}
}

// Run drains the queue, one job at a time, until ctx is cancelled.
func (w *BackfillWorker) Run(ctx context.Context, out chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case symbol, ok := <-w.queue:
			if !ok {
				return
			}
			w.process(ctx, symbol, out)
		}
	}
}

func (w *BackfillWorker) process(ctx context.Context, symbol string, out chan<- model.Candle) {
	var lastErr error
	for attempt := 0; attempt < backfillMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backfillRetrySpacing):
			}
		}
		if !w.limiter.Allow() {
			lastErr = ErrDegraded
			continue
		}

		candles, err := w.fetch(ctx, symbol, w.tfs)
		if err != nil {
			w.limiter.RecordRateLimited()
			lastErr = err
			continue
		}
		w.limiter.RecordSuccess()

		for _, c := range candles {
			select {
			case out <- c:
			default:
				log.Printf("[universe/backfill] outCh full, dropping backfilled candle %s", c.Key())
			}
		}
		if w.OnWarmed != nil {
			w.OnWarmed(symbol, len(candles))
		}
		return
	}

	log.Printf("[universe/backfill] symbol=%s failed after %d attempts: %v", symbol, backfillMaxRetries, lastErr)
	if w.OnFailed != nil {
		w.OnFailed(symbol, lastErr)
	}
}
