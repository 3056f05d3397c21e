// Command bot runs the crypto momentum trading core end to end: market-
// data ingest, feature engine, intelligence scoring, the order router's
// gate pipeline, the exit manager, and the exchange synchronizer, all
// inside one cooperative event loop per §5. Wiring follows the teacher's
// cmd-level composition-root shape (one main assembling every
// collaborator explicitly, no DI container, graceful shutdown on SIGINT/
// SIGTERM) generalized from the single-exchange NSE pipeline onto the
// crypto core's own set of packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cryptomomentum-corev1/config"
	"cryptomomentum-corev1/internal/auth"
	"cryptomomentum-corev1/internal/control"
	"cryptomomentum-corev1/internal/exchange"
	"cryptomomentum-corev1/internal/execution"
	"cryptomomentum-corev1/internal/exit"
	"cryptomomentum-corev1/internal/intelligence"
	"cryptomomentum-corev1/internal/logger"
	"cryptomomentum-corev1/internal/marketdata/agg"
	"cryptomomentum-corev1/internal/marketdata/bus"
	"cryptomomentum-corev1/internal/marketdata/tfbuilder"
	"cryptomomentum-corev1/internal/marketdata/ws"
	"cryptomomentum-corev1/internal/marketdata/wssim"
	"cryptomomentum-corev1/internal/metrics"
	"cryptomomentum-corev1/internal/model"
	"cryptomomentum-corev1/internal/notification"
	"cryptomomentum-corev1/internal/router"
	storeredis "cryptomomentum-corev1/internal/store/redis"
	sqlitestore "cryptomomentum-corev1/internal/store/sqlite"
	"cryptomomentum-corev1/internal/universe"

	"github.com/shopspring/decimal"
)

const banner = `
+------------------------------------------------------+
|          cryptomomentum-corev1 trading core          |
+------------------------------------------------------+
`

func main() {
	fmt.Print(banner)

	cfg := config.Load()
	log := logger.Init("bot", slog.LevelInfo)
	log.Info("config loaded", "trading_mode", cfg.TradingMode, "symbols", cfg.SubscribeSymbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	b, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("build failed", "err", err)
		os.Exit(1)
	}
	defer b.closeStores()

	b.metricsSrv.Start()
	b.health.SetTradingMode(cfg.TradingMode)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		b.metricsSrv.Stop(shutdownCtx)
	}()

	b.run(ctx)

	// Force-save whatever is in the registry on exit. Positions are never
	// auto-closed on shutdown (§5: the core owns lifecycle management, an
	// operator-issued stop is not an order to liquidate).
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	if err := b.persistence.SavePositions(saveCtx, b.registry.Snapshot(), true); err != nil {
		log.Error("final position save failed", "err", err)
	}
	log.Info("shutdown complete")
}

// bot bundles every wired collaborator so run() can drive them without a
// second round of construction.
type bot struct {
	cfg *config.Config
	log *slog.Logger

	metricsSrv *metrics.Server
	health     *metrics.HealthStatus
	m          *metrics.Metrics

	rest    *exchange.RESTClient
	signer  *exchange.JWTSigner
	limiter *universe.RateLimiter

	sqlWriter *sqlitestore.Writer
	sqlReader *sqlitestore.Reader
	cacheW    *storeredis.BufferedWriter
	cacheR    *storeredis.Reader
	apiBreaker *storeredis.CircuitBreaker

	journal  *execution.Journal
	execBundle *execution.Bundle

	registry    *exchange.Registry
	persistence *exchange.FileStore
	stopMgr     *exchange.StopManager
	sync        *exchange.Synchronizer

	intel *intelligence.Layer
	sched *universe.Scheduler
	backfillWorker *universe.BackfillWorker

	rtr *router.Router
	xm  *exit.Manager

	state *marketState

	eventBus    *bus.EventBus
	notifyB     *notification.Bridge
	totpGate    *auth.Gate
	controlR    *control.Reader
	controlW    *control.Writer

	symbols []string
	tfs     []model.Timeframe
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*bot, error) {
	b := &bot{cfg: cfg, log: log}

	b.symbols = cfg.ParseSymbols()
	for _, sec := range cfg.ParseTFs() {
		b.tfs = append(b.tfs, model.Timeframe(sec))
	}
	if len(b.tfs) == 0 {
		b.tfs = []model.Timeframe{model.TF1m, model.TF5m, model.TF1h, model.TF1d}
	}

	b.m = metrics.NewMetrics()
	b.health = metrics.NewHealthStatus()
	b.metricsSrv = metrics.NewServer(cfg.MetricsAddr, b.health)

	b.signer = exchange.NewJWTSigner(cfg.ExchangeAPIKey, cfg.ExchangeAPISecret)
	b.limiter = universe.NewRateLimiter(cfg.RESTRateLimitCapacity, cfg.RESTRateLimitPerSec)
	b.rest = exchange.NewRESTClient(cfg.ExchangeRESTURL, b.signer, b.limiter)

	var err error
	b.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("bot: opening sqlite store: %w", err)
	}
	b.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("bot: opening sqlite reader: %w", err)
	}

	b.apiBreaker = storeredis.NewCircuitBreaker(5, 30*time.Second)
	b.apiBreaker.OnStateChange = func(from, to storeredis.State) {
		log.Warn("api circuit breaker state change", "from", from, "to", to)
	}

	cacheWriter, err := storeredis.New(storeredis.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		return nil, fmt.Errorf("bot: connecting to redis: %w", err)
	}
	b.cacheW = storeredis.NewBufferedWriter(ctx, cacheWriter, b.apiBreaker, 10000)
	b.cacheR, err = storeredis.NewReader(storeredis.ReaderConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		return nil, fmt.Errorf("bot: connecting redis reader: %w", err)
	}

	b.journal = execution.NewJournal(b.sqlWriter)

	b.state = newMarketState()

	b.execBundle, err = execution.New(cfg, b.rest, b.journal, b.state.priceGetter)
	if err != nil {
		return nil, fmt.Errorf("bot: building executor: %w", err)
	}

	b.registry = exchange.NewRegistry(decimal.NewFromFloat(cfg.PositionDustUSD))
	b.persistence = exchange.NewFileStore(cfg.PositionFile, 2*time.Second)

	b.stopMgr = exchange.NewStopManager(b.execBundle.Stops, b.limiter, func(symbol string) decimal.Decimal {
		return b.rest.ProductIncrement(context.Background(), symbol)
	})
	b.sync = exchange.NewSynchronizer(
		b.registry, b.persistence, b.stopMgr, b.execBundle.Snapshots, b.execBundle.OpenOrders,
		decimal.NewFromFloat(cfg.PositionDustUSD),
		decimal.NewFromInt(50), // degraded-mode balance floor ($50)
		decimal.NewFromFloat(0.02),
	)

	b.intel = intelligence.NewLayer(intelligence.Config{
		Limits: intelligence.PositionLimits{
			PerSymbolExposureCapUSD: decimal.NewFromFloat(cfg.PerSymbolExposureCapUSD),
			MaxPerSector:            cfg.MaxPerSector,
			MaxPerCorrelationGroup:  cfg.MaxPerCorrelationGroup,
			MaxGlobalPositions:      cfg.MaxGlobalPositions,
			MaxWeakPositions:        cfg.MaxWeakPositions,
			GlobalCooldown:          time.Duration(cfg.GlobalCooldownSeconds) * time.Second,
			PerSymbolCooldown:       time.Duration(cfg.PerSymbolCooldownSeconds) * time.Second,
			DailyLossKillUSD:        decimal.NewFromFloat(cfg.DailyMaxLossUSD),
		},
		Scorer: intelligence.EntryScorerConfig{
			EntryScoreMin:         cfg.EntryScoreMin,
			BaseScoreStrictCutoff: cfg.BaseScoreStrictCutoff,
			MLMinConfidence:       cfg.MLMinConfidence,
			MLBoostMin:            cfg.MLBoostMin,
			MLBoostMax:            cfg.MLBoostMax,
			MLBoostScale:          cfg.MLBoostScale,
		},
	}, time.Now().UTC())

	b.sched = universe.NewScheduler()
	b.backfillWorker = universe.NewBackfillWorker(cfg.BackfillQueueDepth, b.limiter, b.rest.BackfillSymbol, b.tfs)
	b.sched.OnPromoteToT1 = b.backfillWorker.Enqueue

	initial := make(map[string]model.Tier, len(b.symbols))
	for _, s := range b.symbols {
		initial[s] = model.TierWS
	}
	b.sched.SetUniverse(initial)

	b.eventBus = bus.New(256)
	emit := b.eventBus.Publish

	b.rtr = router.New(
		*cfg, b.registry, b.intel, b.apiBreaker, b.sched,
		b.execBundle.Executor, b.stopMgr, b.persistence, b.execBundle.Portfolio,
		b.state.priceGetter, b.state.spreadGetter,
		func() bool { return !b.sync.Degraded() },
		emit, nil,
	)

	b.xm = exit.New(
		*cfg, b.registry, b.execBundle.Executor, b.stopMgr, b.persistence,
		b.intel.Daily, b.intel.Regime,
		func(symbol string) (model.MLScore, bool) { return b.intel.MLScoreFor(symbol) },
		b.state.liGetter, b.state.priceGetter,
		stopHealthChecker(cfg, b.execBundle.OpenOrders),
		func(symbol string, now time.Time) { b.sync.MarkRecentlyClosed(symbol, now) },
		emit,
	)

	b.totpGate = auth.NewGate(cfg.BotTOTPSecret)
	b.controlR = control.NewReader(cfg.ControlFile)
	b.controlW = control.NewWriter(cfg.ControlFile)

	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.NotifyWebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.NotifyWebhookURL)
	} else if cfg.TelegramBotToken != "" {
		notifier = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	}
	b.notifyB = notification.NewBridge(notifier)

	return b, nil
}

// stopHealthChecker builds the exit manager's live-mode stop-order health
// probe (§4.6 item 2); nil in paper mode, where there is no exchange-side
// stop order to verify.
func stopHealthChecker(cfg *config.Config, orders exchange.OpenOrdersFetcher) exit.StopHealthChecker {
	if cfg.TradingMode != "live" {
		return nil
	}
	return func(symbol string) bool {
		open, err := orders.FetchOpenOrders(context.Background())
		if err != nil {
			return false
		}
		for _, o := range open {
			if o.Symbol == symbol && o.IsStop {
				return true
			}
		}
		return false
	}
}

func (b *bot) closeStores() {
	if b.sqlWriter != nil {
		b.sqlWriter.Close()
	}
	if b.sqlReader != nil {
		b.sqlReader.Close()
	}
	if b.cacheR != nil {
		b.cacheR.Close()
	}
}

// run drives the cooperative event loop (§5): market-data ingest feeds
// the aggregator and TF builder, sealed 1m candles drive the feature
// engine and strategy orchestration into the router, a periodic tick
// drives the exit manager / synchronizer / universe poller / control-file
// check. Everything lives in this one process; no cross-process queueing.
func (b *bot) run(ctx context.Context) {
	var wg sync.WaitGroup

	tickCh := make(chan model.Tick, 4096)
	tradeCh := make(chan model.Trade, 4096)
	candle1mCh := make(chan model.Candle, 1024)
	candleAllCh := make(chan model.Candle, 1024)
	restCandleCh := make(chan model.Candle, 1024)
	journalCandleCh := make(chan model.Candle, 1024)

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.runIngest(ctx, tickCh, tradeCh)
	}()

	aggregator := agg.New()
	wg.Add(1)
	go func() {
		defer wg.Done()
		aggregator.Run(ctx, tickCh, tradeCh, candle1mCh)
	}()

	builder := tfbuilder.New(b.tfs)
	wg.Add(1)
	go func() {
		defer wg.Done()
		builder.Run(ctx, candle1mCh, candleAllCh)
	}()

	poller := universe.NewPoller(b.sched, b.limiter, b.rest.PollLatestCandles)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx, restCandleCh)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.backfillWorker.Run(ctx, restCandleCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.sqlWriter.Run(ctx, journalCandleCh)
	}()

	notifyCh := b.eventBus.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.notifyB.Run(ctx, notifyCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.processCandles(ctx, candleAllCh, journalCandleCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.processCandles(ctx, restCandleCh, nil)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.controlLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.syncLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.exitLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
}

func (b *bot) runIngest(ctx context.Context, tickCh chan<- model.Tick, tradeCh chan<- model.Trade) {
	if b.cfg.MarketDataSource == "simulate" {
		ing, err := wssim.New(wssim.Config{URL: b.cfg.ExchangeWSURL})
		if err != nil {
			b.log.Error("wssim ingest: bad config", "err", err)
			return
		}
		ing.OnReconnect = func() { b.m.WSReconnects.Inc() }
		if err := ing.Start(ctx, tickCh, tradeCh); err != nil {
			b.log.Error("wssim ingest stopped", "err", err)
		}
		return
	}

	ing, err := ws.New(ws.Config{
		URL:        b.cfg.ExchangeWSURL,
		ProductIDs: b.symbols,
		Sign:       b.signer.SignSubscribe,
	})
	if err != nil {
		b.log.Error("ws ingest: bad config", "err", err)
		return
	}
	ing.OnReconnect = func() { b.m.WSReconnects.Inc() }
	ing.OnDroppedTick = func() {}
	if err := ing.Start(ctx, tickCh, tradeCh); err != nil {
		b.log.Error("ws ingest stopped", "err", err)
	}
}

// processCandles feeds sealed candles into the feature engine and cache,
// drives the strategy orchestration -> router submit path on every fresh
// 1m LiveIndicators snapshot, and forwards to journalCh for the SQLite
// backfill store when provided.
func (b *bot) processCandles(ctx context.Context, in <-chan model.Candle, journalCh chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-in:
			if !ok {
				return
			}
			b.handleCandle(ctx, c)
			if journalCh != nil {
				select {
				case journalCh <- c:
				default:
				}
			}
		}
	}
}

func (b *bot) handleCandle(ctx context.Context, c model.Candle) {
	b.m.CandlesSealed.WithLabelValues(c.TF.String()).Inc()
	b.state.recordTrade(model.Trade{Symbol: c.Symbol, Price: c.Close, EventTS: c.TS})
	b.cacheW.WriteCandle(c)
	b.sched.RecordCandle(c.Symbol, c.TF)

	buf := b.state.bufferFor(c.Symbol)
	buf.Append(c)

	start := time.Now()
	fs := b.state.featureStateFor(c.Symbol)
	li := fs.Process(c, buf)
	b.m.FeatureComputeDur.Observe(time.Since(start).Seconds())
	if li == nil {
		return
	}
	b.state.recordLI(li)
	b.cacheW.WriteIndicators(c.Symbol, li)

	ml := b.intel.ML.Score(li, c.TS)
	b.intel.UpdateMLScore(ml)

	if !fs.Ready() || !b.sched.Warm(c.Symbol) {
		return
	}

	spreadBps, _ := b.state.spreadGetter(c.Symbol)
	burst := burstMetricsFor(c.Symbol, li, buf, spreadBps)
	sig := buildSignal(c.Symbol, c.Close, c.TS)

	pos, reason, err := b.rtr.Submit(ctx, router.SubmitRequest{
		Signal: sig, Burst: burst, LI: li, ML: &ml,
	})
	if err != nil {
		b.m.OrdersFailedTotal.WithLabelValues(string(reason)).Inc()
		b.log.Warn("router submit error", "symbol", c.Symbol, "err", err)
		return
	}
	if reason != router.RejectNone {
		return
	}
	b.m.OrdersPlacedTotal.WithLabelValues("buy").Inc()
	b.log.Info("position opened", "symbol", pos.Symbol, "size_usd", pos.SizeUSD.String(), "entry", pos.EntryPrice.String())
}

func (b *bot) syncLoop(ctx context.Context) {
	interval := time.Duration(b.cfg.SyncIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.sync.Run(ctx, time.Now().UTC()); err != nil {
				b.log.Warn("synchronizer cycle failed", "err", err)
			}
			b.health.SetSyncOK(!b.sync.Degraded())
			b.m.SyncDegraded.Set(boolToFloat(b.sync.Degraded()))
			b.m.PositionsOpen.Set(float64(b.registry.Count()))
		}
	}
}

func (b *bot) exitLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			for symbol := range b.registry.Snapshot() {
				if err := b.xm.Process(ctx, symbol, now); err != nil {
					b.log.Warn("exit manager cycle failed", "symbol", symbol, "err", err)
				}
			}
			b.m.DailyRealizedPnLUSD.Set(toFloat(b.intel.Daily.RealizedPnL(now)))
		}
	}
}

// controlLoop polls the operator control file each second, gating any
// paper->live transition behind a valid TOTP code (§6, SPEC_FULL §B).
func (b *bot) controlLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	startedAt := time.Now().UTC()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, err := b.controlR.Read()
			if err != nil {
				b.log.Warn("control file read failed", "err", err)
				continue
			}
			status := control.StatusRunning
			if f.Mode != "" && f.Mode != b.cfg.TradingMode {
				if f.Mode == "live" {
					if err := b.totpGate.Validate(f.Error); err != nil {
						b.log.Warn("rejected live-mode transition: invalid totp", "err", err)
					} else {
						b.log.Warn("live-mode transition requested; restart required to re-key the executor")
					}
				}
			}
			_ = b.controlW.WriteStatus(control.File{
				Command: f.Command, Mode: b.cfg.TradingMode, Status: status,
				PID: os.Getpid(), StartedAt: startedAt,
			})
		}
	}
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
