package intelligence

import (
	"time"

	"cryptomomentum-corev1/internal/model"
)

// Layer is the single owned value for every intelligence component (§9:
// "restructure as a single IntelligenceLayer value owned by the bot, with
// components holding borrowed references. No process-wide singletons in
// the core."). cmd/bot constructs exactly one and passes it by pointer
// wherever the router or exit manager need intelligence reads.
type Layer struct {
	Regime *RegimeDetector
	Limits *LimitChecker
	Daily  *DailyStats
	Scorer *EntryScorer
	Ranker *PredictiveRanker
	ML     *MLScorer

	mlScores map[string]model.MLScore
}

// Config bundles the configured knobs for every sub-component so callers
// build a Layer from a single config.Config-derived value.
type Config struct {
	Limits PositionLimits
	Scorer EntryScorerConfig
}

// NewLayer wires every intelligence sub-component into one owned value.
func NewLayer(cfg Config, now time.Time) *Layer {
	ranker := NewPredictiveRanker()
	return &Layer{
		Regime:   NewRegimeDetector(),
		Limits:   NewLimitChecker(cfg.Limits),
		Daily:    NewDailyStats(now),
		Ranker:   ranker,
		Scorer:   NewEntryScorer(cfg.Scorer, ranker),
		ML:       NewMLScorer(),
		mlScores: make(map[string]model.MLScore),
	}
}

// UpdateMLScore caches a freshly computed ML score for a symbol, keyed so
// the router can look it up by symbol at scoring time without recomputing.
func (l *Layer) UpdateMLScore(score model.MLScore) {
	l.mlScores[score.Symbol] = score
}

// MLScoreFor returns the cached ML score for a symbol, if any.
func (l *Layer) MLScoreFor(symbol string) (model.MLScore, bool) {
	s, ok := l.mlScores[symbol]
	return s, ok
}
