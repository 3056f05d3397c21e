package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
	"cryptomomentum-corev1/internal/universe"
)

// maxCandlesPerRequest is the exchange's chunked-fetch cap (§6).
const maxCandlesPerRequest = 300

// granularityEnum maps a Timeframe to the server's candle granularity
// enum (§6: 60s→ONE_MINUTE, 300→FIVE_MINUTE, 900→FIFTEEN_MINUTE,
// 3600→ONE_HOUR, 21600→SIX_HOUR, 86400→ONE_DAY).
var granularityEnum = map[model.Timeframe]string{
	model.TF1m:             "ONE_MINUTE",
	model.TF5m:             "FIVE_MINUTE",
	model.Timeframe(900):   "FIFTEEN_MINUTE",
	model.TF1h:             "ONE_HOUR",
	model.Timeframe(21600): "SIX_HOUR",
	model.TF1d:             "ONE_DAY",
}

// RESTClient is the single HTTP surface the core uses against the
// exchange's REST API (§6: public candles, product metadata, accounts,
// orders, portfolios). Every call acquires a token from the shared
// limiter before hitting the network, per §4.7/§5 ("a shared token
// bucket... stop placement always acquires a token").
type RESTClient struct {
	baseURL string
	signer  *JWTSigner
	limiter *universe.RateLimiter
	http    *http.Client

	productIncrements map[string]decimal.Decimal
}

// NewRESTClient builds a client against baseURL, signing requests with
// signer and throttling through the shared limiter.
func NewRESTClient(baseURL string, signer *JWTSigner, limiter *universe.RateLimiter) *RESTClient {
	return &RESTClient{
		baseURL:           baseURL,
		signer:            signer,
		limiter:           limiter,
		http:              &http.Client{Timeout: 10 * time.Second},
		productIncrements: make(map[string]decimal.Decimal),
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("exchange: encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("exchange: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.signer != nil {
		bearer, err := c.signer.SignRequest(method, path)
		if err != nil {
			return fmt.Errorf("exchange: signing request: %w", err)
		}
		req.Header.Set("Authorization", bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.limiter.RecordSuccess() // connection-level errors aren't rate-limit signals
		return fmt.Errorf("exchange: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordRateLimited()
		return fmt.Errorf("exchange: %s %s: rate limited (429)", method, path)
	}
	c.limiter.RecordSuccess()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("exchange: %s %s: status %d: %s", method, path, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type wireCandle struct {
	Start  string `json:"start"`
	Low    string `json:"low"`
	High   string `json:"high"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

type candleResponse struct {
	Candles []wireCandle `json:"candles"`
}

// FetchCandles fetches sealed candles for symbol/tf between from and to,
// chunking requests at the exchange's 300-candle-per-request cap (§6).
func (c *RESTClient) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Candle, error) {
	granularity, ok := granularityEnum[tf]
	if !ok {
		return nil, fmt.Errorf("exchange: unsupported timeframe %s for REST candles", tf)
	}

	chunkSpan := time.Duration(maxCandlesPerRequest) * time.Duration(tf) * time.Second
	var out []model.Candle
	for cursor := from; cursor.Before(to); cursor = cursor.Add(chunkSpan) {
		end := cursor.Add(chunkSpan)
		if end.After(to) {
			end = to
		}
		path := fmt.Sprintf("/api/v3/brokerage/products/%s/candles?start=%d&end=%d&granularity=%s",
			symbol, cursor.Unix(), end.Unix(), granularity)

		var resp candleResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return out, fmt.Errorf("exchange: fetching candles for %s: %w", symbol, err)
		}
		for _, wc := range resp.Candles {
			candle, err := toCandle(symbol, tf, wc)
			if err != nil {
				continue // malformed candle, skip rather than abort the backfill
			}
			out = append(out, candle)
		}
	}
	return out, nil
}

func toCandle(symbol string, tf model.Timeframe, wc wireCandle) (model.Candle, error) {
	sec, err := strconv.ParseInt(wc.Start, 10, 64)
	if err != nil {
		return model.Candle{}, err
	}
	open, _ := decimal.NewFromString(wc.Open)
	high, _ := decimal.NewFromString(wc.High)
	low, _ := decimal.NewFromString(wc.Low)
	closePx, _ := decimal.NewFromString(wc.Close)
	volume, _ := decimal.NewFromString(wc.Volume)
	return model.Candle{
		Symbol: symbol,
		TF:     tf,
		TS:     time.Unix(sec, 0).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: volume,
	}, nil
}

type accountsResponse struct {
	Accounts []struct {
		Currency    string `json:"currency"`
		Available   string `json:"available_balance"`
		Hold        string `json:"hold"`
		Type        string `json:"type"` // "ACCOUNT_TYPE_CRYPTO" / "ACCOUNT_TYPE_FIAT"
		CostBasis   string `json:"cost_basis"`
		UnrealPnL   string `json:"unrealized_pnl"`
		IsDelisted  bool   `json:"delisted"`
		IsStaked    bool   `json:"staked"`
		LatestPrice string `json:"latest_price"`
	} `json:"accounts"`
}

// FetchSnapshot implements exchange.SnapshotFetcher (§4.7 item 1): fetches
// cash balance, crypto holdings, cost basis, available-to-trade qty, and
// unrealized PnL per asset, excluding cash/delisted/staked from the
// tradeable set (filtering itself is applied by the synchronizer, not
// here — this returns the raw account list per §4.7's phrasing).
func (c *RESTClient) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	var resp accountsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/accounts", nil, &resp); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Holdings: make(map[string]Holding, len(resp.Accounts))}
	for _, a := range resp.Accounts {
		avail, _ := decimal.NewFromString(a.Available)
		hold, _ := decimal.NewFromString(a.Hold)
		qty := avail.Add(hold)

		if a.Type == "ACCOUNT_TYPE_FIAT" || a.Currency == "USD" {
			snap.CashUSD = snap.CashUSD.Add(avail)
			continue
		}
		costBasis, _ := decimal.NewFromString(a.CostBasis)
		unrealized, _ := decimal.NewFromString(a.UnrealPnL)
		price, _ := decimal.NewFromString(a.LatestPrice)

		symbol := a.Currency + "-USD"
		snap.Holdings[symbol] = Holding{
			Symbol:           symbol,
			Qty:              qty,
			AvailableQty:     avail,
			CostBasisUSD:     costBasis,
			Price:            price,
			UnrealizedPnLUSD: unrealized,
			Delisted:         a.IsDelisted,
			Staked:           a.IsStaked,
		}
	}
	return snap, nil
}

// GetAvailableBalance implements model.PortfolioManager.
func (c *RESTClient) GetAvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	snap, err := c.FetchSnapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.CashUSD, nil
}

// GetTotalPortfolioValue implements model.PortfolioManager: cash plus the
// mark-to-market value of every tradeable holding.
func (c *RESTClient) GetTotalPortfolioValue(ctx context.Context) (decimal.Decimal, error) {
	snap, err := c.FetchSnapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := snap.CashUSD
	for _, h := range snap.Holdings {
		if h.Delisted || h.Staked {
			continue
		}
		total = total.Add(h.Qty.Mul(h.Price))
	}
	return total, nil
}

type orderWire struct {
	OrderID  string `json:"order_id"`
	ClientID string `json:"client_order_id"`
	ProductID string `json:"product_id"`
	Side     string `json:"side"`
	Status   string `json:"status"`
	OrderConfiguration struct {
		StopLimitStopLimitGTC *struct{} `json:"stop_limit_stop_limit_gtc,omitempty"`
	} `json:"order_configuration"`
}

type openOrdersResponse struct {
	Orders []orderWire `json:"orders"`
}

// FetchOpenOrders implements exchange.OpenOrdersFetcher (§4.7 item 6).
func (c *RESTClient) FetchOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var resp openOrdersResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/orders/historical/batch?order_status=OPEN", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]OpenOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		out = append(out, OpenOrder{
			ID:       o.OrderID,
			ClientID: o.ClientID,
			Symbol:   o.ProductID,
			IsStop:   o.OrderConfiguration.StopLimitStopLimitGTC != nil,
		})
	}
	return out, nil
}

type placeOrderResponse struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"order_id"`
	FailureReason string `json:"failure_reason"`
	SuccessResponse struct {
		OrderID string `json:"order_id"`
	} `json:"success_response"`
}

// MarketBuyQuote places a market buy order sized in quote (USD) currency
// (§6: "market buy (quote size)"). Returns the raw order id.
func (c *RESTClient) MarketBuyQuote(ctx context.Context, symbol string, quoteUSD decimal.Decimal, clientID string) (string, error) {
	body := map[string]interface{}{
		"client_order_id": clientID,
		"product_id":      symbol,
		"side":            "BUY",
		"order_configuration": map[string]interface{}{
			"market_market_ioc": map[string]interface{}{
				"quote_size": quoteUSD.String(),
			},
		},
	}
	return c.placeOrder(ctx, body)
}

// LimitBuyGTC places a GTC limit buy order sized in base currency (§6).
func (c *RESTClient) LimitBuyGTC(ctx context.Context, symbol string, baseQty, limitPrice decimal.Decimal, clientID string) (string, error) {
	body := map[string]interface{}{
		"client_order_id": clientID,
		"product_id":      symbol,
		"side":            "BUY",
		"order_configuration": map[string]interface{}{
			"limit_limit_gtc": map[string]interface{}{
				"base_size":   baseQty.String(),
				"limit_price": limitPrice.String(),
			},
		},
	}
	return c.placeOrder(ctx, body)
}

// MarketSell places a market sell order sized in base currency (§6).
func (c *RESTClient) MarketSell(ctx context.Context, symbol string, baseQty decimal.Decimal, clientID string) (string, error) {
	body := map[string]interface{}{
		"client_order_id": clientID,
		"product_id":      symbol,
		"side":            "SELL",
		"order_configuration": map[string]interface{}{
			"market_market_ioc": map[string]interface{}{
				"base_size": baseQty.String(),
			},
		},
	}
	return c.placeOrder(ctx, body)
}

// PlaceStop implements exchange.BrokerStopPlacer: a stop-limit GTC sell
// with limit_price = stop * 0.98 and stop_direction = STOP_DOWN (§6).
func (c *RESTClient) PlaceStop(ctx context.Context, symbol string, qty, stopPrice decimal.Decimal, clientID string) (model.Order, error) {
	limitPrice := stopPrice.Mul(decimal.NewFromFloat(0.98))
	body := map[string]interface{}{
		"client_order_id": clientID,
		"product_id":      symbol,
		"side":            "SELL",
		"order_configuration": map[string]interface{}{
			"stop_limit_stop_limit_gtc": map[string]interface{}{
				"base_size":      qty.String(),
				"limit_price":    limitPrice.String(),
				"stop_price":     stopPrice.String(),
				"stop_direction": "STOP_DOWN",
			},
		},
	}
	orderID, err := c.placeOrder(ctx, body)
	if err != nil {
		return model.Order{}, err
	}
	return model.Order{
		ID: orderID, ClientID: clientID, Symbol: symbol,
		Side: model.SideSell, Type: model.OrderStopLimit, Status: model.OrderOpen,
		StopPrice: stopPrice, LimitPrice: limitPrice, SizeQty: qty,
		IsStop: true, LinkedPositionSymbol: symbol,
	}, nil
}

func (c *RESTClient) placeOrder(ctx context.Context, body map[string]interface{}) (string, error) {
	var resp placeOrderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/brokerage/orders", body, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		if isFatalOrderFailure(resp.FailureReason) {
			return "", fmt.Errorf("exchange: order rejected (%s): %w", resp.FailureReason, ErrInsufficientFunds)
		}
		return "", fmt.Errorf("exchange: order rejected: %s", resp.FailureReason)
	}
	if resp.OrderID != "" {
		return resp.OrderID, nil
	}
	return resp.SuccessResponse.OrderID, nil
}

func isFatalOrderFailure(reason string) bool {
	switch reason {
	case "INSUFFICIENT_FUND", "INSUFFICIENT_FUNDS":
		return true
	default:
		return false
	}
}

// CancelOrder implements exchange.BrokerStopPlacer.
func (c *RESTClient) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]interface{}{"order_ids": []string{orderID}}
	return c.do(ctx, http.MethodPost, "/api/v3/brokerage/orders/batch_cancel", body, nil)
}

type productWire struct {
	ProductID     string `json:"product_id"`
	PriceIncrement string `json:"quote_increment"`
	BaseIncrement  string `json:"base_increment"`
	QuoteMinSize   string `json:"quote_min_size"`
	BaseMinSize    string `json:"base_min_size"`
}

// PollLatestCandles implements universe.CandleFetcher (§4.2): fetches the
// most recently sealed 1m candle for each symbol in the batch, used by the
// T2/T3 REST pollers to keep tiers below T1 fed without a WS subscription.
func (c *RESTClient) PollLatestCandles(ctx context.Context, symbols []string) ([]model.Candle, error) {
	now := time.Now().UTC()
	from := now.Add(-2 * time.Minute)
	var out []model.Candle
	for _, symbol := range symbols {
		candles, err := c.FetchCandles(ctx, symbol, model.TF1m, from, now)
		if err != nil {
			return out, err
		}
		if len(candles) > 0 {
			out = append(out, candles[len(candles)-1])
		}
	}
	return out, nil
}

// BackfillSymbol implements universe.BackfillFetcher (§4.2): warms a newly
// promoted T1 symbol with enough history across tfs to satisfy
// model.TierAssignment.WarmNow (≥20 1m candles, ≥10 5m candles).
func (c *RESTClient) BackfillSymbol(ctx context.Context, symbol string, tfs []model.Timeframe) ([]model.Candle, error) {
	now := time.Now().UTC()
	var out []model.Candle
	for _, tf := range tfs {
		lookback := time.Duration(tf) * time.Second * 40
		candles, err := c.FetchCandles(ctx, symbol, tf, now.Add(-lookback), now)
		if err != nil {
			return out, err
		}
		out = append(out, candles...)
	}
	return out, nil
}

// ProductIncrement returns the cached price increment for symbol,
// refreshing from the exchange on first use (§4.7 item 1: "cache product
// metadata"). Returns zero if the product is unknown.
func (c *RESTClient) ProductIncrement(ctx context.Context, symbol string) decimal.Decimal {
	if inc, ok := c.productIncrements[symbol]; ok {
		return inc
	}
	var p productWire
	if err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/products/"+symbol, nil, &p); err != nil {
		return decimal.Zero
	}
	inc, _ := decimal.NewFromString(p.PriceIncrement)
	c.productIncrements[symbol] = inc
	return inc
}
