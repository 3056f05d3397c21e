package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the core's Prometheus metrics, carried forward from the
// teacher's internal/metrics/metrics.go registration mechanism
// (prometheus.MustRegister over a struct of pre-built collectors) but
// retargeted from the mdengine pipeline's own gauges (fanout drops, TF
// build latency, market-session state) onto the bot's own surface: tier
// membership, regime state, exit reasons, sync health, and the universe
// rate limiter's degraded mode. Per-gate rejection counters live next to
// the router itself (internal/router/metrics.go) rather than here, since
// that package owns the reasons enum.
type Metrics struct {
	TicksTotal       prometheus.Counter
	CandlesSealed    *prometheus.CounterVec // labels: tf
	WSReconnects     prometheus.Counter
	FeatureComputeDur prometheus.Histogram

	TierMembership *prometheus.GaugeVec // labels: tier
	RegimeState    prometheus.Gauge     // 0=normal 1=caution 2=risk_off
	RateLimiterDegraded prometheus.Gauge

	PositionsOpen       prometheus.Gauge
	ExposureFraction    prometheus.Gauge
	ExitsTotal          *prometheus.CounterVec // labels: kind
	OrdersPlacedTotal   *prometheus.CounterVec // labels: side
	OrdersFailedTotal   *prometheus.CounterVec // labels: reason
	DailyRealizedPnLUSD prometheus.Gauge

	SyncDegraded  prometheus.Gauge
	SyncCycleDur  prometheus.Histogram
}

// NewMetrics registers and returns the core's Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Total ticks received from the exchange WS",
		}),
		CandlesSealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_candles_sealed_total",
			Help: "Total sealed candles, labeled by timeframe",
		}, []string{"tf"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		FeatureComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_feature_compute_duration_seconds",
			Help:    "Per-candle feature engine compute latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		TierMembership: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bot_tier_membership",
			Help: "Number of symbols currently assigned to each universe tier",
		}, []string{"tier"}),
		RegimeState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_regime_state",
			Help: "Current market regime (0=normal, 1=caution, 2=risk_off)",
		}),
		RateLimiterDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_rest_rate_limiter_degraded",
			Help: "1 when the shared REST rate limiter is in degraded mode",
		}),
		PositionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_positions_open",
			Help: "Current number of open positions",
		}),
		ExposureFraction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_exposure_fraction",
			Help: "Total position exposure as a fraction of portfolio value",
		}),
		ExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_exits_total",
			Help: "Total position exits, labeled by exit kind",
		}, []string{"kind"}),
		OrdersPlacedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_placed_total",
			Help: "Total orders placed, labeled by side",
		}, []string{"side"}),
		OrdersFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_failed_total",
			Help: "Total order placement failures, labeled by reason",
		}, []string{"reason"}),
		DailyRealizedPnLUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_daily_realized_pnl_usd",
			Help: "Realized PnL in USD for the current UTC trading day",
		}),
		SyncDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_sync_degraded",
			Help: "1 when the exchange synchronizer is in degraded mode",
		}),
		SyncCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_sync_cycle_duration_seconds",
			Help:    "Exchange synchronization cycle latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.TicksTotal, m.CandlesSealed, m.WSReconnects, m.FeatureComputeDur,
		m.TierMembership, m.RegimeState, m.RateLimiterDegraded,
		m.PositionsOpen, m.ExposureFraction, m.ExitsTotal,
		m.OrdersPlacedTotal, m.OrdersFailedTotal, m.DailyRealizedPnLUSD,
		m.SyncDegraded, m.SyncCycleDur,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				log.Printf("[metrics] register error: %v", err)
			}
		}
	}

	return m
}

// HealthStatus tracks the bot's liveness for the /healthz endpoint,
// carried forward from the teacher's internal/metrics/metrics.go
// HealthStatus shape (mutex-guarded flags + a periodic liveness checker)
// retargeted to the bot's own dependencies (WS, exchange sync, store).
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected   bool      `json:"ws_connected"`
	LastTickTime  time.Time `json:"last_tick_time"`
	SyncOK        bool      `json:"sync_ok"`
	StoreOK       bool      `json:"store_ok"`
	TradingMode   string    `json:"trading_mode"`
	StartedAt     time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSyncOK(v bool) {
	h.mu.Lock()
	h.SyncOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStoreOK(v bool) {
	h.mu.Lock()
	h.StoreOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetTradingMode(mode string) {
	h.mu.Lock()
	h.TradingMode = mode
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.WSConnected || !h.SyncOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	body := struct {
		Status       string `json:"status"`
		Uptime       string `json:"uptime"`
		WSConnected  bool   `json:"ws_connected"`
		TickAge      string `json:"tick_age"`
		SyncOK       bool   `json:"sync_ok"`
		StoreOK      bool   `json:"store_ok"`
		TradingMode  string `json:"trading_mode"`
	}{
		Status:      status,
		Uptime:      time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected: h.WSConnected,
		SyncOK:      h.SyncOK,
		StoreOK:     h.StoreOK,
		TradingMode: h.TradingMode,
	}
	if !h.LastTickTime.IsZero() {
		body.TickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
