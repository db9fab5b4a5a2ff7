package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange is the venue-facing surface the engine consumes. The
// transport behind it (auth, HTTP/WS plumbing) lives outside this
// module; decorators in internal/exchange add rate limiting and
// resilience on top.
type Exchange interface {
	GetBalances(ctx context.Context) (map[string]Balance, error)
	GetTicker(ctx context.Context, pair Pair) (Ticker, error)
	GetOpenOrders(ctx context.Context, pair Pair) ([]Order, error)
	GetTradeHistory(ctx context.Context, pair Pair, since time.Time) ([]Trade, error)

	// PlaceOrder returns the exchange order id on success.
	PlaceOrder(ctx context.Context, pair Pair, side Side, price, size decimal.Decimal) (string, error)
	CancelOrder(ctx context.Context, pair Pair, exchangeOrderID string) error

	// MinOrderSize returns the smallest base-asset quantity the venue
	// accepts for the pair.
	MinOrderSize(pair Pair) decimal.Decimal
}

// Ledger is the durable append/query contract over the trading
// history. It is the sole writer of on-disk state.
type Ledger interface {
	RecordOrder(ctx context.Context, o Order) error
	UpdateOrderStatus(ctx context.Context, localID string, status OrderStatus, exchangeID string, seenAt time.Time) error
	OpenOrders(ctx context.Context, pair Pair) ([]Order, error)
	OrdersByStatus(ctx context.Context, status OrderStatus, pairs ...Pair) ([]Order, error)

	// RecordExecution returns apperrors.ErrDuplicateTrade when the
	// exchange trade id was recorded before.
	RecordExecution(ctx context.Context, e Execution) (int64, error)
	HasExecutionForTrade(ctx context.Context, tradeID string) (bool, error)
	ExecutionsInRange(ctx context.Context, from, to time.Time, pairs ...Pair) ([]Execution, error)

	RecordSnapshot(ctx context.Context, s PortfolioSnapshot) error
	RecordSummary(ctx context.Context, s PnLSummary) error
	LatestSummary(ctx context.Context) (*PnLSummary, error)

	Close() error
}

// ReplacementGuard decides whether a side of a pair may receive new
// orders given the recent price window.
type ReplacementGuard interface {
	PermitReplacement(cfg TradingPairConfig, side Side, window []PricePoint) bool
}

// CapitalSource yields the capital currently allocatable to a pair.
type CapitalSource interface {
	CapitalFor(pair Pair) (decimal.Decimal, error)
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
