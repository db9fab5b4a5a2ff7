// Package ledger persists orders, executions, snapshots, and derived
// summaries in an embedded SQLite database. It is the sole writer of
// on-disk state; everything else goes through the append/query
// contract.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gridbot/internal/core"
	apperrors "gridbot/pkg/errors"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	local_id     TEXT PRIMARY KEY,
	exchange_id  TEXT NOT NULL DEFAULT '',
	pair         TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        TEXT NOT NULL,
	size         TEXT NOT NULL,
	level        INTEGER NOT NULL,
	status       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	last_seen_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status_pair ON orders(status, pair);

CREATE TABLE IF NOT EXISTS executions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	order_local_id TEXT NOT NULL,
	trade_id       TEXT NOT NULL UNIQUE,
	pair           TEXT NOT NULL,
	side           TEXT NOT NULL,
	price          TEXT NOT NULL,
	size           TEXT NOT NULL,
	fee            TEXT NOT NULL,
	realized_pnl   TEXT,
	executed_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_pair_time ON executions(pair, executed_at);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at     INTEGER NOT NULL,
	balances     TEXT NOT NULL,
	equity       TEXT NOT NULL,
	equity_asset TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pnl_summary (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	period_start INTEGER NOT NULL,
	period_end   INTEGER NOT NULL,
	realized     TEXT NOT NULL,
	executions   INTEGER NOT NULL,
	wins         INTEGER NOT NULL,
	losses       INTEGER NOT NULL,
	volume       TEXT NOT NULL,
	best_trade   TEXT NOT NULL,
	worst_trade  TEXT NOT NULL,
	hourly_rate  TEXT NOT NULL,
	per_pair     TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
`

// SQLiteLedger implements core.Ledger on top of mattn/go-sqlite3.
type SQLiteLedger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at dbPath.
func Open(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) RecordOrder(ctx context.Context, o core.Order) error {
	query := `INSERT INTO orders
		(local_id, exchange_id, pair, side, price, size, level, status, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query,
		o.LocalID, o.ExchangeID, o.Pair.String(), string(o.Side),
		o.Price.String(), o.Size.String(), o.Level, string(o.Status),
		o.CreatedAt.UnixNano(), o.LastSeenAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) UpdateOrderStatus(ctx context.Context, localID string, status core.OrderStatus, exchangeID string, seenAt time.Time) error {
	query := `UPDATE orders SET status = ?, last_seen_at = ?,
		exchange_id = CASE WHEN ? != '' THEN ? ELSE exchange_id END
		WHERE local_id = ?`
	res, err := l.db.ExecContext(ctx, query, string(status), seenAt.UnixNano(), exchangeID, exchangeID, localID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrOrderNotFound
	}
	return nil
}

func (l *SQLiteLedger) OpenOrders(ctx context.Context, pair core.Pair) ([]core.Order, error) {
	query := `SELECT local_id, exchange_id, pair, side, price, size, level, status, created_at, last_seen_at
		FROM orders WHERE pair = ? AND status IN (?, ?, ?) ORDER BY created_at`
	rows, err := l.db.QueryContext(ctx, query, pair.String(),
		string(core.StatusPending), string(core.StatusOpen), string(core.StatusUnknown))
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (l *SQLiteLedger) OrdersByStatus(ctx context.Context, status core.OrderStatus, pairs ...core.Pair) ([]core.Order, error) {
	query := `SELECT local_id, exchange_id, pair, side, price, size, level, status, created_at, last_seen_at
		FROM orders WHERE status = ?`
	args := []interface{}{string(status)}
	if len(pairs) > 0 {
		placeholders := make([]string, len(pairs))
		for i, p := range pairs {
			placeholders[i] = "?"
			args = append(args, p.String())
		}
		query += " AND pair IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders by status: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]core.Order, error) {
	var orders []core.Order
	for rows.Next() {
		var (
			o                       core.Order
			pairStr, side, status   string
			priceStr, sizeStr       string
			createdNano, seenNano   int64
		)
		if err := rows.Scan(&o.LocalID, &o.ExchangeID, &pairStr, &side, &priceStr, &sizeStr,
			&o.Level, &status, &createdNano, &seenNano); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		pair, err := core.ParsePair(pairStr)
		if err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt price %q: %w", priceStr, err)
		}
		size, err := decimal.NewFromString(sizeStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt size %q: %w", sizeStr, err)
		}
		o.Pair = pair
		o.Side = core.Side(side)
		o.Status = core.OrderStatus(status)
		o.Price = price
		o.Size = size
		o.CreatedAt = time.Unix(0, createdNano)
		o.LastSeenAt = time.Unix(0, seenNano)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// RecordExecution appends one execution row. The UNIQUE constraint on
// trade_id makes replay after a crash idempotent; a second insert of
// the same trade returns apperrors.ErrDuplicateTrade.
func (l *SQLiteLedger) RecordExecution(ctx context.Context, e core.Execution) (int64, error) {
	var pnl sql.NullString
	if e.RealizedPnL.Valid {
		pnl = sql.NullString{String: e.RealizedPnL.Decimal.String(), Valid: true}
	}

	query := `INSERT INTO executions
		(order_local_id, trade_id, pair, side, price, size, fee, realized_pnl, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := l.db.ExecContext(ctx, query,
		e.OrderLocalID, e.TradeID, e.Pair.String(), string(e.Side),
		e.Price.String(), e.Size.String(), e.Fee.String(), pnl, e.Timestamp.UnixNano())
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, apperrors.ErrDuplicateTrade
		}
		return 0, fmt.Errorf("failed to record execution: %w", err)
	}
	return res.LastInsertId()
}

func (l *SQLiteLedger) HasExecutionForTrade(ctx context.Context, tradeID string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM executions WHERE trade_id = ?`, tradeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check trade id: %w", err)
	}
	return n > 0, nil
}

func (l *SQLiteLedger) ExecutionsInRange(ctx context.Context, from, to time.Time, pairs ...core.Pair) ([]core.Execution, error) {
	query := `SELECT id, order_local_id, trade_id, pair, side, price, size, fee, realized_pnl, executed_at
		FROM executions WHERE executed_at >= ? AND executed_at < ?`
	args := []interface{}{from.UnixNano(), to.UnixNano()}
	if len(pairs) > 0 {
		placeholders := make([]string, len(pairs))
		for i, p := range pairs {
			placeholders[i] = "?"
			args = append(args, p.String())
		}
		query += " AND pair IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY executed_at, id"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var execs []core.Execution
	for rows.Next() {
		var (
			e                     core.Execution
			pairStr, side         string
			priceStr, sizeStr     string
			feeStr                string
			pnl                   sql.NullString
			execNano              int64
		)
		if err := rows.Scan(&e.ID, &e.OrderLocalID, &e.TradeID, &pairStr, &side,
			&priceStr, &sizeStr, &feeStr, &pnl, &execNano); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		pair, err := core.ParsePair(pairStr)
		if err != nil {
			return nil, err
		}
		e.Pair = pair
		e.Side = core.Side(side)
		if e.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("corrupt price %q: %w", priceStr, err)
		}
		if e.Size, err = decimal.NewFromString(sizeStr); err != nil {
			return nil, fmt.Errorf("corrupt size %q: %w", sizeStr, err)
		}
		if e.Fee, err = decimal.NewFromString(feeStr); err != nil {
			return nil, fmt.Errorf("corrupt fee %q: %w", feeStr, err)
		}
		if pnl.Valid {
			d, err := decimal.NewFromString(pnl.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt realized pnl %q: %w", pnl.String, err)
			}
			e.RealizedPnL = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		e.Timestamp = time.Unix(0, execNano)
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

func (l *SQLiteLedger) RecordSnapshot(ctx context.Context, s core.PortfolioSnapshot) error {
	type jsonBalance struct {
		Total  string `json:"total"`
		Locked string `json:"locked"`
	}
	balances := make(map[string]jsonBalance, len(s.Balances))
	for asset, b := range s.Balances {
		balances[asset] = jsonBalance{Total: b.Total.String(), Locked: b.Locked.String()}
	}
	data, err := json.Marshal(balances)
	if err != nil {
		return fmt.Errorf("failed to marshal balances: %w", err)
	}

	query := `INSERT INTO portfolio_snapshots (taken_at, balances, equity, equity_asset) VALUES (?, ?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, query, s.Timestamp.UnixNano(), string(data), s.Equity.String(), s.EquityAsset); err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return nil
}

type jsonPairPnL struct {
	Pair       string `json:"pair"`
	Realized   string `json:"realized"`
	Executions int    `json:"executions"`
	Volume     string `json:"volume"`
}

func (l *SQLiteLedger) RecordSummary(ctx context.Context, s core.PnLSummary) error {
	perPair := make([]jsonPairPnL, 0, len(s.PerPair))
	for _, p := range s.PerPair {
		perPair = append(perPair, jsonPairPnL{
			Pair:       p.Pair.String(),
			Realized:   p.Realized.String(),
			Executions: p.Executions,
			Volume:     p.Volume.String(),
		})
	}
	data, err := json.Marshal(perPair)
	if err != nil {
		return fmt.Errorf("failed to marshal per-pair breakdown: %w", err)
	}

	query := `INSERT INTO pnl_summary
		(period_start, period_end, realized, executions, wins, losses, volume, best_trade, worst_trade, hourly_rate, per_pair, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = l.db.ExecContext(ctx, query,
		s.From.UnixNano(), s.To.UnixNano(), s.Realized.String(), s.Executions,
		s.Wins, s.Losses, s.Volume.String(), s.BestTrade.String(), s.WorstTrade.String(),
		s.HourlyRate.String(), string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record summary: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) LatestSummary(ctx context.Context) (*core.PnLSummary, error) {
	query := `SELECT period_start, period_end, realized, executions, wins, losses, volume, best_trade, worst_trade, hourly_rate, per_pair
		FROM pnl_summary ORDER BY created_at DESC LIMIT 1`

	var (
		s                                                 core.PnLSummary
		startNano, endNano                                int64
		realized, volume, best, worst, hourly, perPairRaw string
	)
	err := l.db.QueryRowContext(ctx, query).Scan(&startNano, &endNano, &realized, &s.Executions,
		&s.Wins, &s.Losses, &volume, &best, &worst, &hourly, &perPairRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest summary: %w", err)
	}

	s.From = time.Unix(0, startNano)
	s.To = time.Unix(0, endNano)
	if s.Realized, err = decimal.NewFromString(realized); err != nil {
		return nil, err
	}
	if s.Volume, err = decimal.NewFromString(volume); err != nil {
		return nil, err
	}
	if s.BestTrade, err = decimal.NewFromString(best); err != nil {
		return nil, err
	}
	if s.WorstTrade, err = decimal.NewFromString(worst); err != nil {
		return nil, err
	}
	if s.HourlyRate, err = decimal.NewFromString(hourly); err != nil {
		return nil, err
	}

	var perPair []jsonPairPnL
	if err := json.Unmarshal([]byte(perPairRaw), &perPair); err != nil {
		return nil, fmt.Errorf("corrupt per-pair breakdown: %w", err)
	}
	for _, p := range perPair {
		pair, err := core.ParsePair(p.Pair)
		if err != nil {
			return nil, err
		}
		realizedDec, err := decimal.NewFromString(p.Realized)
		if err != nil {
			return nil, err
		}
		volumeDec, err := decimal.NewFromString(p.Volume)
		if err != nil {
			return nil, err
		}
		s.PerPair = append(s.PerPair, core.PairPnL{
			Pair:       pair,
			Realized:   realizedDec,
			Executions: p.Executions,
			Volume:     volumeDec,
		})
	}

	return &s, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
