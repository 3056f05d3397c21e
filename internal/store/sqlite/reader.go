package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

// Reader provides read-only access to the candle backfill store and trade
// journal, used for warm-start and audit queries.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[store/sqlite] reader opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles reads journaled candles for (symbol, tf) after afterTS,
// ordered oldest-first, used to warm-start model.CandleBuffer after a
// restart without a fresh REST backfill.
func (r *Reader) ReadCandles(symbol string, tf model.Timeframe, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, int64(tf), afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var tsUnix int64
		var open, high, low, closePx, volume string
		if err := rows.Scan(&tsUnix, &open, &high, &low, &closePx, &volume); err != nil {
			return nil, fmt.Errorf("sqlite: scan candle: %w", err)
		}
		c := model.Candle{Symbol: symbol, TF: tf, TS: time.Unix(tsUnix, 0).UTC()}
		c.Open, _ = decimal.NewFromString(open)
		c.High, _ = decimal.NewFromString(high)
		c.Low, _ = decimal.NewFromString(low)
		c.Close, _ = decimal.NewFromString(closePx)
		c.Volume, _ = decimal.NewFromString(volume)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// FillRecord is a row from the fills table.
type FillRecord struct {
	ID             int64
	OrderID        string
	ClientOrderID  string
	Symbol         string
	Side           string
	StrategyID     string
	ExitKind       string
	Qty            decimal.Decimal
	Price          decimal.Decimal
	Fee            decimal.Decimal
	RealizedPnLUSD decimal.Decimal
	FilledAt       time.Time
}

// RecentFills returns the most recent limit fills, newest first, grounded
// on internal/execution/journal.go's GetTrades.
func (r *Reader) RecentFills(limit int) ([]FillRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, order_id, client_order_id, symbol, side, strategy_id, exit_kind, qty, price, fee, realized_pnl_usd, filled_at
		FROM fills ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query fills: %w", err)
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var f FillRecord
		var qty, price, fee, pnl, filledAt string
		if err := rows.Scan(&f.ID, &f.OrderID, &f.ClientOrderID, &f.Symbol, &f.Side, &f.StrategyID, &f.ExitKind, &qty, &price, &fee, &pnl, &filledAt); err != nil {
			continue
		}
		f.Qty, _ = decimal.NewFromString(qty)
		f.Price, _ = decimal.NewFromString(price)
		f.Fee, _ = decimal.NewFromString(fee)
		f.RealizedPnLUSD, _ = decimal.NewFromString(pnl)
		f.FilledAt, _ = time.Parse(time.RFC3339, filledAt)
		out = append(out, f)
	}
	return out, nil
}

// RealizedPnLSince sums realized_pnl_usd for fills recorded at or after
// since, used to reconcile DailyStats after a restart.
func (r *Reader) RealizedPnLSince(since time.Time) (decimal.Decimal, error) {
	rows, err := r.db.Query(`SELECT realized_pnl_usd FROM fills WHERE filled_at >= ?`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sqlite: query realized pnl: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var pnl string
		if err := rows.Scan(&pnl); err != nil {
			continue
		}
		d, _ := decimal.NewFromString(pnl)
		total = total.Add(d)
	}
	return total, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
