// Package ws connects to the exchange's public WebSocket feed (heartbeats,
// ticker and market_trades channels) and pushes normalized ticks/trades onto
// the caller's channels. Reconnection uses the exponential backoff from the
// teacher's wssim client; message framing and subscribe/resubscribe state
// follow the teacher's SmartWebSocketV3 shape, generalized from Angel One's
// binary protocol to the exchange's JSON one.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"cryptomomentum-corev1/internal/model"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	maxReconnectAttempts = 10
	initialBackoff       = 1 * time.Second
	maxBackoff           = 60 * time.Second
	staleConnTimeout     = 30 * time.Second // no message in this long ⇒ force reconnect
)

// AuthSigner produces the subscribe-message auth fields (JWT + channel) for
// a given channel/product set. Supplied by internal/exchange/auth.go so
// this package stays exchange-credential agnostic.
type AuthSigner func(channel string, productIDs []string) (map[string]interface{}, error)

// Config configures the ingest client.
type Config struct {
	URL        string
	ProductIDs []string
	Sign       AuthSigner
}

// Ingest maintains the exchange WebSocket connection and reconnects with
// exponential backoff on failure. Subscriptions survive reconnects via
// Resubscribe.
type Ingest struct {
	cfg Config

	mu           sync.Mutex
	subscribed   map[string][]string // channel -> product IDs
	lastMsgAt    time.Time
	connected    bool
	connectCount int

	// OnReconnect is called each time a reconnection happens (metrics hook).
	OnReconnect func()
	// OnDroppedTick is called when tickCh/tradeCh is full.
	OnDroppedTick func()
}

// New creates an Ingest for the given config.
func New(cfg Config) (*Ingest, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("ws ingest: bad url: %w", err)
	}
	return &Ingest{cfg: cfg, subscribed: make(map[string][]string)}, nil
}

// IsReceiving reports whether a message has arrived within staleConnTimeout.
func (ing *Ingest) IsReceiving() bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.connected && time.Since(ing.lastMsgAt) < staleConnTimeout
}

// LastMessageAge returns how long ago the last message was received.
func (ing *Ingest) LastMessageAge() time.Duration {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.lastMsgAt.IsZero() {
		return -1
	}
	return time.Since(ing.lastMsgAt)
}

// Subscribe adds a channel subscription, applied immediately if connected
// and replayed on every future reconnect (hot-swap support, §4.2 tiering).
func (ing *Ingest) Subscribe(conn *websocket.Conn, channel string, productIDs []string) error {
	ing.mu.Lock()
	ing.subscribed[channel] = mergeUnique(ing.subscribed[channel], productIDs)
	ing.mu.Unlock()

	if conn == nil {
		return nil // queued for the next connect
	}
	return ing.sendSubscribe(conn, channel, productIDs)
}

func (ing *Ingest) sendSubscribe(conn *websocket.Conn, channel string, productIDs []string) error {
	msg := map[string]interface{}{
		"type":        "subscribe",
		"channel":     channel,
		"product_ids": productIDs,
	}
	if ing.cfg.Sign != nil {
		signed, err := ing.cfg.Sign(channel, productIDs)
		if err != nil {
			return fmt.Errorf("ws ingest: sign subscribe: %w", err)
		}
		for k, v := range signed {
			msg[k] = v
		}
	}
	return conn.WriteJSON(msg)
}

// Start connects and streams ticks/trades until ctx is cancelled. Reconnects
// with exponential backoff (1s doubling to a 60s cap) for up to
// maxReconnectAttempts consecutive failures before giving up.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick, tradeCh chan<- model.Trade) error {
	backoff := initialBackoff
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ing.mu.Lock()
		connectsBefore := ing.connectCount
		ing.mu.Unlock()

		err := ing.runOnce(ctx, tickCh, tradeCh)
		if err == nil {
			return nil // clean shutdown via ctx
		}

		ing.mu.Lock()
		handshook := ing.connectCount > connectsBefore
		ing.mu.Unlock()
		if handshook {
			// The dial succeeded before this failure: start a fresh failure run.
			attempts = 0
			backoff = initialBackoff
		}

		attempts++
		if attempts > maxReconnectAttempts {
			return fmt.Errorf("ws ingest: giving up after %d attempts: %w", attempts, err)
		}

		log.Printf("[ws] disconnected (%v), reconnecting in %s (attempt %d/%d)", err, backoff, attempts, maxReconnectAttempts)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (ing *Ingest) runOnce(ctx context.Context, tickCh chan<- model.Tick, tradeCh chan<- model.Trade) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ing.mu.Lock()
	ing.connected = true
	ing.lastMsgAt = time.Now()
	ing.connectCount++
	subs := make(map[string][]string, len(ing.subscribed))
	for k, v := range ing.subscribed {
		subs[k] = v
	}
	ing.mu.Unlock()

	defer func() {
		ing.mu.Lock()
		ing.connected = false
		ing.mu.Unlock()
	}()

	for channel, productIDs := range subs {
		if err := ing.sendSubscribe(conn, channel, productIDs); err != nil {
			return fmt.Errorf("resubscribe %s: %w", channel, err)
		}
	}
	if len(subs) == 0 && len(ing.cfg.ProductIDs) > 0 {
		if err := ing.sendSubscribe(conn, "ticker", ing.cfg.ProductIDs); err != nil {
			return err
		}
		if err := ing.sendSubscribe(conn, "market_trades", ing.cfg.ProductIDs); err != nil {
			return err
		}
		if err := ing.sendSubscribe(conn, "heartbeats", nil); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
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

		ing.mu.Lock()
		ing.lastMsgAt = time.Now()
		ing.mu.Unlock()

		ing.handleMessage(raw, tickCh, tradeCh)
	}
}

// wireEnvelope is the common envelope shape for channel messages.
type wireEnvelope struct {
	Channel string          `json:"channel"`
	Events  []wireEvent     `json:"events"`
	Type    string          `json:"type"`
}

type wireEvent struct {
	Type    string      `json:"type"`
	Tickers []wireTick  `json:"tickers"`
	Trades  []wireTrade `json:"trades"`
}

type wireTick struct {
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
}

type wireTrade struct {
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Time      string `json:"time"`
}

func (ing *Ingest) handleMessage(raw []byte, tickCh chan<- model.Tick, tradeCh chan<- model.Trade) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[ws] parse error: %v", err)
		return
	}

	switch env.Channel {
	case "heartbeats":
		return // liveness only, no model event
	case "ticker":
		for _, ev := range env.Events {
			for _, wt := range ev.Tickers {
				tick, err := toTick(wt)
				if err != nil {
					log.Printf("[ws] tick parse error: %v", err)
					continue
				}
				ing.sendTick(tickCh, tick)
			}
		}
	case "market_trades":
		for _, ev := range env.Events {
			for _, wt := range ev.Trades {
				trade, err := toTrade(wt)
				if err != nil {
					log.Printf("[ws] trade parse error: %v", err)
					continue
				}
				ing.sendTrade(tradeCh, trade)
			}
		}
	}
}

func (ing *Ingest) sendTick(tickCh chan<- model.Tick, t model.Tick) {
	select {
	case tickCh <- t:
	default:
		if ing.OnDroppedTick != nil {
			ing.OnDroppedTick()
		}
		log.Println("[ws] tickCh full, dropping tick")
	}
}

func (ing *Ingest) sendTrade(tradeCh chan<- model.Trade, t model.Trade) {
	select {
	case tradeCh <- t:
	default:
		if ing.OnDroppedTick != nil {
			ing.OnDroppedTick()
		}
		log.Println("[ws] tradeCh full, dropping trade")
	}
}

func toTick(wt wireTick) (model.Tick, error) {
	if wt.ProductID == "" {
		return model.Tick{}, fmt.Errorf("missing product_id")
	}
	price, err := decimal.NewFromString(wt.Price)
	if err != nil {
		return model.Tick{}, fmt.Errorf("bad price %q: %w", wt.Price, err)
	}
	now := time.Now().UTC()
	tick := model.Tick{
		Symbol:    wt.ProductID,
		Price:     price,
		ArrivedAt: now,
		EventTS:   now,
	}
	if wt.BestBid != "" && wt.BestAsk != "" {
		bid, err1 := decimal.NewFromString(wt.BestBid)
		ask, err2 := decimal.NewFromString(wt.BestAsk)
		if err1 == nil && err2 == nil && bid.IsPositive() {
			spread := ask.Sub(bid)
			mid := bid.Add(ask).Div(decimal.NewFromInt(2))
			if mid.IsPositive() {
				tick.SpreadBps = spread.Div(mid).Mul(decimal.NewFromInt(10000))
			}
		}
	}
	return tick, nil
}

func toTrade(wt wireTrade) (model.Trade, error) {
	if wt.ProductID == "" {
		return model.Trade{}, fmt.Errorf("missing product_id")
	}
	price, err := decimal.NewFromString(wt.Price)
	if err != nil {
		return model.Trade{}, fmt.Errorf("bad price %q: %w", wt.Price, err)
	}
	size, err := decimal.NewFromString(wt.Size)
	if err != nil {
		return model.Trade{}, fmt.Errorf("bad size %q: %w", wt.Size, err)
	}
	eventTS, err := time.Parse(time.RFC3339, wt.Time)
	if err != nil {
		eventTS = time.Now().UTC()
	}
	return model.Trade{
		Symbol:    wt.ProductID,
		Price:     price,
		Size:      size,
		ArrivedAt: time.Now().UTC(),
		EventTS:   eventTS,
	}, nil
}

func mergeUnique(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string{}, existing...)
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	for _, a := range add {
		if _, ok := seen[a]; !ok {
			out = append(out, a)
			seen[a] = struct{}{}
		}
	}
	return out
}
