package universe

import (
	"context"
	"fmt"
	"log"
	"time"

	"cryptomomentum-corev1/internal/model"
)

const (
	fastPollInterval = 15 * time.Second
	slowPollInterval = 60 * time.Second
	fastBatchSize    = 5
	slowBatchSize    = 3
)

// CandleFetcher fetches the latest candle for a batch of symbols from the
// exchange REST API. Implemented by internal/exchange's REST client;
// injected here so the poller stays exchange-client agnostic.
type CandleFetcher func(ctx context.Context, symbols []string) ([]model.Candle, error)

// Poller drives the T2 (15s) and T3 (60s) REST polling loops (§4.2/§4.5),
// composed around the shared RateLimiter the way the teacher composes a
// BufferedWriter around a CircuitBreaker: the poller calls the limiter
// before every batch and backs off entirely when degraded.
type Poller struct {
	sched   *Scheduler
	limiter *RateLimiter
	fetch   CandleFetcher

	OnBatchFetched func(tier model.Tier, n int)
	OnBatchError   func(tier model.Tier, err error)
	OnRateLimited  func(tier model.Tier)
}

// NewPoller creates a Poller over the given scheduler, rate limiter and
// fetch function.
func NewPoller(sched *Scheduler, limiter *RateLimiter, fetch CandleFetcher) *Poller {
	return &Poller{sched: sched, limiter: limiter, fetch: fetch}
}

// Run starts both the fast (T2) and slow (T3) polling loops. Blocks until
// ctx is cancelled.
func (p *Poller) Run(ctx context.Context, out chan<- model.Candle) {
	go p.loop(ctx, model.TierFastREST, fastPollInterval, fastBatchSize, out)
	go p.loop(ctx, model.TierSlowREST, slowPollInterval, slowBatchSize, out)
	<-ctx.Done()
}

func (p *Poller) loop(ctx context.Context, tier model.Tier, interval time.Duration, batchSize int, out chan<- model.Candle) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// T3 is skipped entirely while the limiter is in degraded mode
			// (§4.2). T2 keeps its ticker and batch size, but Allow() refuses
			// every request while degraded, so T2 fetches nothing until the
			// backoff window ends.
			if tier == model.TierSlowREST && p.limiter.Degraded() {
				continue
			}
			p.pollOnce(ctx, tier, batchSize, out)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, tier model.Tier, batchSize int, out chan<- model.Candle) {
	symbols := p.sched.SymbolsInTier(tier)
	for i := 0; i < len(symbols); i += batchSize {
		end := i + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]
		if len(batch) == 0 {
			continue
		}
		if !p.limiter.Allow() {
			if p.OnRateLimited != nil {
				p.OnRateLimited(tier)
			}
			continue
		}

		candles, err := p.fetch(ctx, batch)
		if err != nil {
			p.limiter.RecordRateLimited()
			if p.OnBatchError != nil {
				p.OnBatchError(tier, err)
			} else {
				log.Printf("[universe/poller] tier=%s batch fetch error: %v", tier, err)
			}
			continue
		}
		p.limiter.RecordSuccess()

		for _, c := range candles {
			select {
			case out <- c:
			default:
				log.Printf("[universe/poller] outCh full, dropping polled candle %s", c.Key())
			}
			if promoted := p.sched.RecordCandle(c.Symbol, c.TF); promoted {
				log.Printf("[universe/poller] symbol=%s crossed warmth threshold", c.Symbol)
			}
		}
		if p.OnBatchFetched != nil {
			p.OnBatchFetched(tier, len(candles))
		}
	}
}

// ErrDegraded is returned by callers that want to short-circuit on a
// degraded-mode poll attempt.
var ErrDegraded = fmt.Errorf("universe: rate limiter degraded")
