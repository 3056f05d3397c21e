// Package wssim provides a WebSocket ingest client that connects to a
// plain-JSON test/replay WebSocket server instead of the live exchange —
// a drop-in for internal/marketdata/ws.Ingest used to drive paper-mode
// integration tests and local development without exchange credentials.
//
// The wire message format matches model.Trade:
//
//	{"symbol":"BTC-USD","price":"65000.50","size":"0.01","event_ts":"..."}
package wssim

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"cryptomomentum-corev1/internal/model"
)

// Config holds configuration for the simulated WS ingest.
type Config struct {
	// URL of the replay WebSocket server, e.g. "ws://localhost:9001/ws".
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to a plain-JSON WebSocket trade server and pushes
// model.Trade values into tradeCh — the same external interface as
// internal/marketdata/ws.Ingest, so the collector's candle aggregator
// never knows which source fed it.
type Ingest struct {
	cfg Config

	// OnReconnect is called each time a reconnection happens.
	OnReconnect func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects to the replay WebSocket and streams trades into tradeCh
// (tickCh accepted only for interface parity with internal/marketdata/ws.
// Ingest.Start — the replay feed carries trades, not top-of-book ticks).
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick, tradeCh chan<- model.Trade) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, tradeCh)
		if err == nil {
			return nil
		}

		log.Printf("[wssim] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, tradeCh chan<- model.Trade) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[wssim] connected to %s", ing.cfg.URL)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var trade model.Trade
		if err := json.Unmarshal(raw, &trade); err != nil {
			log.Printf("[wssim] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if trade.Symbol == "" {
			log.Printf("[wssim] skipping trade with empty symbol")
			continue
		}
		if trade.ArrivedAt.IsZero() {
			trade.ArrivedAt = time.Now().UTC()
		}

		select {
		case tradeCh <- trade:
		default:
			log.Println("[wssim] tradeCh full, dropping trade")
		}
	}
}
