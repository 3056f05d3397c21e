package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"cryptomomentum-corev1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string
}

// Writer is the TF-candle backfill store and trade journal (SPEC_FULL §B),
// grounded on the teacher's internal/store/sqlite/writer.go batched-
// transaction discipline (single-connection writer, flush on batch-size or
// timer) retargeted from an int64-paise 1s/TF-candle pair onto the core's
// unified decimal model.Candle, plus a fills table adapted from
// internal/execution/journal.go's trades schema.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens (or creates) the SQLite database and applies the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	log.Printf("[store/sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT    NOT NULL,
			tf     INTEGER NOT NULL,
			ts     INTEGER NOT NULL,
			open   TEXT    NOT NULL,
			high   TEXT    NOT NULL,
			low    TEXT    NOT NULL,
			close  TEXT    NOT NULL,
			volume TEXT    NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS fills (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id         TEXT NOT NULL,
			client_order_id  TEXT NOT NULL,
			symbol           TEXT NOT NULL,
			side             TEXT NOT NULL,
			strategy_id      TEXT,
			exit_kind        TEXT,
			qty              TEXT NOT NULL,
			price            TEXT NOT NULL,
			fee              TEXT NOT NULL,
			realized_pnl_usd TEXT,
			filled_at        DATETIME NOT NULL,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
		CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`)
	return err
}

// Run reads sealed candles from candleCh and inserts them in batched
// transactions, flushing on batch size or a timer — same loop shape as
// the teacher's Writer.Run.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[store/sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[store/sqlite] committed %d candles in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertBatch(candles []model.Candle) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, int64(c.TF), c.TS.Unix(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Fill is one executed order leg recorded to the trade journal.
type Fill struct {
	OrderID        string
	ClientOrderID  string
	Symbol         string
	Side           model.Side
	StrategyID     string
	ExitKind       string
	Qty            decimal.Decimal
	Price          decimal.Decimal
	Fee            decimal.Decimal
	RealizedPnLUSD decimal.Decimal
	FilledAt       time.Time
}

// RecordFill persists a fill to the journal, grounded on
// internal/execution/journal.go's RecordFill.
func (w *Writer) RecordFill(f Fill) error {
	_, err := w.db.Exec(
		`INSERT INTO fills (order_id, client_order_id, symbol, side, strategy_id, exit_kind, qty, price, fee, realized_pnl_usd, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.ClientOrderID, f.Symbol, string(f.Side), f.StrategyID, f.ExitKind,
		f.Qty.String(), f.Price.String(), f.Fee.String(), f.RealizedPnLUSD.String(),
		f.FilledAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetLastCandleTimestamp returns the last stored candle timestamp for
// (symbol, tf), or 0 if none exist — used to resume a backfill without
// re-fetching already-journaled history.
func (w *Writer) GetLastCandleTimestamp(symbol string, tf model.Timeframe) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`, symbol, int64(tf),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
