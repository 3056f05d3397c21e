package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptomomentum-corev1/internal/model"
)

// ReaderConfig configures the Redis reader connection.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads the cached candle/indicator state written by Writer,
// grounded on the teacher's internal/store/redis/reader.go shape (a thin
// read-side wrapper alongside the write-side Writer) but repurposed from
// consumer-group stream reads into simple key lookups against the cache
// Writer maintains.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a Reader and pings the server once.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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
	return &Reader{client: client}, nil
}

// LatestCandle returns the most recently cached candle for (symbol, tf).
func (r *Reader) LatestCandle(ctx context.Context, symbol string, tf model.Timeframe) (model.Candle, bool, error) {
	raw, err := r.client.Get(ctx, candleKey(symbol, tf)).Bytes()
	if err == goredis.Nil {
		return model.Candle{}, false, nil
	}
	if err != nil {
		return model.Candle{}, false, fmt.Errorf("redis: reading candle %s:%s: %w", symbol, tf.String(), err)
	}
	var c model.Candle
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Candle{}, false, fmt.Errorf("redis: decoding candle %s:%s: %w", symbol, tf.String(), err)
	}
	return c, true, nil
}

// RecentCandles returns up to n of the most recent cached candles for
// (symbol, tf), oldest first, used to warm-start model.CandleBuffer after
// a restart without waiting on a fresh REST backfill.
func (r *Reader) RecentCandles(ctx context.Context, symbol string, tf model.Timeframe, n int) ([]model.Candle, error) {
	raw, err := r.client.ZRevRangeByScore(ctx, candleKey(symbol, tf)+":history", &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(n),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: reading candle history %s:%s: %w", symbol, tf.String(), err)
	}
	out := make([]model.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- { // ZRevRange is newest-first; flip to oldest-first
		var c model.Candle
		if err := json.Unmarshal([]byte(raw[i]), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// LatestIndicators returns the most recently cached LiveIndicators for symbol.
func (r *Reader) LatestIndicators(ctx context.Context, symbol string) (*model.LiveIndicators, bool, error) {
	raw, err := r.client.Get(ctx, indicatorKey(symbol)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: reading indicators for %s: %w", symbol, err)
	}
	var li model.LiveIndicators
	if err := json.Unmarshal(raw, &li); err != nil {
		return nil, false, fmt.Errorf("redis: decoding indicators for %s: %w", symbol, err)
	}
	return &li, true, nil
}

// Close releases the underlying connection pool.
func (r *Reader) Close() error {
	return r.client.Close()
}
