package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptomomentum-corev1/internal/model"
)

// WriterConfig configures the Redis writer connection.
type WriterConfig struct {
	Addr     string
	Password string
	DB       int
}

// Writer is the indicator/candle cache and dashboard pub/sub fanout
// (SPEC_FULL §B), grounded on the teacher's internal/store/redis/writer.go
// shape (a thin client wrapper with one method per write kind) but
// repurposed from a Streams producer into a cache-plus-fanout: candles and
// indicators are written to keyed Redis values so a warm-started process
// (or external dashboard) can read the latest state directly, and every
// write is additionally published on a per-symbol channel for live
// subscribers.
type Writer struct {
	client *goredis.Client
}

// New creates a Writer and pings the server once to fail fast on a bad
// connection string, same discipline as the teacher's NewReader/NewWriter.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	log.Printf("[store/redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

func candleKey(symbol string, tf model.Timeframe) string {
	return fmt.Sprintf("candle:%s:%s", symbol, tf.String())
}

func indicatorKey(symbol string) string {
	return "indicators:" + symbol
}

func candleChannel(symbol string) string {
	return "chan:candle:" + symbol
}

func indicatorChannel(symbol string) string {
	return "chan:indicators:" + symbol
}

// WriteCandle caches the latest sealed candle for (symbol, tf), appends it
// to a capped history sorted set, and publishes it on that symbol's
// candle channel for dashboard subscribers.
func (w *Writer) WriteCandle(ctx context.Context, c model.Candle) error {
	payload := c.JSON()
	if err := w.client.Set(ctx, candleKey(c.Symbol, c.TF), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: writing candle %s: %w", c.Key(), err)
	}
	historyKey := candleKey(c.Symbol, c.TF) + ":history"
	if err := w.client.ZAdd(ctx, historyKey, &goredis.Z{
		Score:  float64(c.TS.Unix()),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("redis: appending candle history %s: %w", c.Key(), err)
	}
	w.client.ZRemRangeByRank(ctx, historyKey, 0, -501) // keep the most recent 500
	w.client.Publish(ctx, candleChannel(c.Symbol), payload)
	return nil
}

// WriteIndicators caches the latest computed indicator set for symbol and
// publishes it on symbol's indicator channel.
func (w *Writer) WriteIndicators(ctx context.Context, symbol string, li *model.LiveIndicators) error {
	payload, err := json.Marshal(li)
	if err != nil {
		return fmt.Errorf("redis: encoding indicators for %s: %w", symbol, err)
	}
	if err := w.client.Set(ctx, indicatorKey(symbol), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: writing indicators for %s: %w", symbol, err)
	}
	w.client.Publish(ctx, indicatorChannel(symbol), payload)
	return nil
}

// PublishEvent fans a domain event out to the dashboard over a named
// channel, best-effort (errors are logged, never returned — observers
// must never affect the data path, per §3's Event model).
func (w *Writer) PublishEvent(ctx context.Context, channel string, payload []byte) {
	if err := w.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("[store/redis] publish to %s failed: %v", channel, err)
	}
}

// Close releases the underlying connection pool.
func (w *Writer) Close() error {
	return w.client.Close()
}
