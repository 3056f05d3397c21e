// Package config loads the core's runtime configuration from environment
// variables. The core treats configuration as read-only (§6): the control
// file, not this package, is how an operator flips trading_mode at runtime.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Exchange credentials
	ExchangeAPIKey    string
	ExchangeAPISecret string
	ExchangeWSURL     string
	ExchangeRESTURL   string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	PositionFile  string
	ControlFile   string

	// Operator 2FA gate for paper→live control-file transitions (§SPEC_FULL B).
	BotTOTPSecret string

	// Subscription universe
	SubscribeSymbols string

	// Dynamic timeframes (comma-separated seconds, e.g. "60,300,3600,86400")
	EnabledTFs string

	// Trading mode: "paper" or "live"
	TradingMode string

	// §6 configuration table
	MaxTradeUSD             float64
	PortfolioMaxExposurePct float64
	FixedStopPct            float64
	TP1Pct                  float64
	TP2Pct                  float64
	MinRRRatio              float64
	SpreadMaxBps            float64
	DailyMaxLossUSD         float64
	OrderCooldownSeconds    int
	OrderCooldownMinSeconds int
	TrailStartPct           float64
	TrailLockPct            float64
	TrailBETriggerPct       float64
	TP1PartialPct           float64
	StopHealthCheckInterval int // seconds
	PositionDustUSD         float64
	PositionMinUSD          float64
	MLMinConfidence         float64
	MLBoostMin              float64
	MLBoostMax              float64
	MLBoostScale            float64
	EntryScoreMin           float64
	BaseScoreStrictCutoff   float64

	WhaleTradeUSD      float64
	StrongTradeUSD     float64
	NormalTradeUSD     float64
	WhaleScoreMin      float64
	WhaleConfluenceMin int
	WhaleMaxCount      int

	// Fee rates (§8 scenario 1, §4.6 item 5): maker for limit entries,
	// taker for market exits.
	MakerFeeRate float64
	TakerFeeRate float64

	TimeStopMin          int
	TimeStopExtendedMin  int
	ThesisInvalidTrendPct float64
	ThesisInvalidVWAPPct  float64

	// Position-limit set (§4.4), enforced by internal/intelligence.LimitChecker.
	PerSymbolExposureCapUSD float64
	MaxPerSector            int
	MaxPerCorrelationGroup  int
	MaxGlobalPositions      int
	MaxWeakPositions        int
	GlobalCooldownSeconds   int
	PerSymbolCooldownSeconds int

	// Event bus / notification wiring.
	NotifyWebhookURL   string
	TelegramBotToken   string
	TelegramChatID     string

	// MarketDataSource selects the WS ingest implementation: "live" dials
	// the real exchange feed, "simulate" dials a plain-JSON replay server
	// at ExchangeWSURL (internal/marketdata/wssim) for local development
	// without exchange credentials.
	MarketDataSource string

	// Shared REST/WS rate limiter (§4.2/§9).
	RESTRateLimitCapacity float64
	RESTRateLimitPerSec   float64

	SyncIntervalSeconds     int
	UniverseRefreshSeconds  int
	BackfillQueueDepth      int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ExchangeAPIKey:    mustEnv("EXCHANGE_API_KEY"),
		ExchangeAPISecret: mustEnv("EXCHANGE_API_SECRET"),
		ExchangeWSURL:     getEnv("EXCHANGE_WS_URL", "wss://advanced-trade-ws.exchange.example/ws"),
		ExchangeRESTURL:   getEnv("EXCHANGE_REST_URL", "https://api.exchange.example"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		PositionFile:  getEnv("POSITION_FILE", "data/positions.json"),
		ControlFile:   getEnv("CONTROL_FILE", "data/control.json"),

		BotTOTPSecret: getEnv("BOT_TOTP_SECRET", ""),

		SubscribeSymbols: getEnv("SUBSCRIBE_SYMBOLS", "BTC-USD,ETH-USD,SOL-USD"),
		EnabledTFs:       getEnv("ENABLED_TFS", "60,300,3600,86400"),
		TradingMode:      getEnv("TRADING_MODE", "paper"),

		MaxTradeUSD:             getFloat("MAX_TRADE_USD", 500),
		PortfolioMaxExposurePct: getFloat("PORTFOLIO_MAX_EXPOSURE_PCT", 0.6),
		FixedStopPct:            getFloat("FIXED_STOP_PCT", 0.02),
		TP1Pct:                  getFloat("TP1_PCT", 0.015),
		TP2Pct:                  getFloat("TP2_PCT", 0.035),
		MinRRRatio:              getFloat("MIN_RR_RATIO", 1.5),
		SpreadMaxBps:            getFloat("SPREAD_MAX_BPS", 25),
		DailyMaxLossUSD:         getFloat("DAILY_MAX_LOSS_USD", 300),
		OrderCooldownSeconds:    getInt("ORDER_COOLDOWN_SECONDS", 60),
		OrderCooldownMinSeconds: getInt("ORDER_COOLDOWN_MIN_SECONDS", 10),
		TrailStartPct:           getFloat("TRAIL_START_PCT", 0.01),
		TrailLockPct:            getFloat("TRAIL_LOCK_PCT", 0.5),
		TrailBETriggerPct:       getFloat("TRAIL_BE_TRIGGER_PCT", 0.005),
		TP1PartialPct:           getFloat("TP1_PARTIAL_PCT", 0.5),
		StopHealthCheckInterval: getInt("STOP_HEALTH_CHECK_INTERVAL", 120),
		PositionDustUSD:         getFloat("POSITION_DUST_USD", 2),
		PositionMinUSD:          getFloat("POSITION_MIN_USD", 10),
		MLMinConfidence:         getFloat("ML_MIN_CONFIDENCE", 0.55),
		MLBoostMin:              getFloat("ML_BOOST_MIN", 0),
		MLBoostMax:              getFloat("ML_BOOST_MAX", 10),
		MLBoostScale:            getFloat("ML_BOOST_SCALE", 10),
		EntryScoreMin:           getFloat("ENTRY_SCORE_MIN", 60),
		BaseScoreStrictCutoff:   getFloat("BASE_SCORE_STRICT_CUTOFF", 50),

		WhaleTradeUSD:      getFloat("WHALE_TRADE_USD", 1000),
		StrongTradeUSD:     getFloat("STRONG_TRADE_USD", 400),
		NormalTradeUSD:     getFloat("NORMAL_TRADE_USD", 150),
		WhaleScoreMin:      getFloat("WHALE_SCORE_MIN", 85),
		WhaleConfluenceMin: getInt("WHALE_CONFLUENCE_MIN", 4),
		WhaleMaxCount:      getInt("WHALE_MAX_COUNT", 2),

		MakerFeeRate: getFloat("MAKER_FEE_RATE", 0.006),
		TakerFeeRate: getFloat("TAKER_FEE_RATE", 0.012),

		TimeStopMin:           getInt("TIME_STOP_MIN", 240),
		TimeStopExtendedMin:   getInt("TIME_STOP_EXTENDED_MIN", 245),
		ThesisInvalidTrendPct: getFloat("THESIS_INVALID_TREND_PCT", -0.01),
		ThesisInvalidVWAPPct:  getFloat("THESIS_INVALID_VWAP_PCT", -0.015),

		PerSymbolExposureCapUSD:  getFloat("PER_SYMBOL_EXPOSURE_CAP_USD", 2000),
		MaxPerSector:             getInt("MAX_PER_SECTOR", 3),
		MaxPerCorrelationGroup:   getInt("MAX_PER_CORRELATION_GROUP", 2),
		MaxGlobalPositions:       getInt("MAX_GLOBAL_POSITIONS", 12),
		MaxWeakPositions:         getInt("MAX_WEAK_POSITIONS", 3),
		GlobalCooldownSeconds:    getInt("GLOBAL_COOLDOWN_SECONDS", 20),
		PerSymbolCooldownSeconds: getInt("PER_SYMBOL_COOLDOWN_SECONDS", 900),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		MarketDataSource: getEnv("MARKET_DATA_SOURCE", "live"),

		RESTRateLimitCapacity: getFloat("REST_RATE_LIMIT_CAPACITY", 10),
		RESTRateLimitPerSec:   getFloat("REST_RATE_LIMIT_PER_SEC", 5),

		SyncIntervalSeconds:    getInt("SYNC_INTERVAL_SECONDS", 15),
		UniverseRefreshSeconds: getInt("UNIVERSE_REFRESH_SECONDS", 300),
		BackfillQueueDepth:     getInt("BACKFILL_QUEUE_DEPTH", 64),
	}
}

// ParseTFs parses the EnabledTFs string into a slice of timeframe durations
// in seconds, skipping invalid entries.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

// ParseSymbols splits SubscribeSymbols into a slice, trimming whitespace.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.SubscribeSymbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return f
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return n
}
