// Package core defines the domain types and interfaces shared across the engine.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle state of a local order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
	StatusUnknown   OrderStatus = "unknown"
)

// Active reports whether the order counts as the occupant of its grid
// level. Unknown orders are not active but still hold their level
// until resolved.
func (s OrderStatus) Active() bool {
	return s == StatusPending || s == StatusOpen
}

// Terminal reports whether no further transitions are expected.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Pair identifies a trading pair by base and quote asset.
type Pair struct {
	Base  string
	Quote string
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// ParsePair parses "BASE/QUOTE" into a Pair.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, expected BASE/QUOTE", s)
	}
	return Pair{Base: strings.ToUpper(parts[0]), Quote: strings.ToUpper(parts[1])}, nil
}

// Balance is a raw per-asset balance as reported by the exchange.
type Balance struct {
	Total  decimal.Decimal
	Locked decimal.Decimal
}

// Available returns total minus locked, clamped at zero.
func (b Balance) Available() decimal.Decimal {
	avail := b.Total.Sub(b.Locked)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// LevelState marks whether a grid level currently wants an order.
type LevelState string

const (
	LevelActive       LevelState = "active"
	LevelSkipped      LevelState = "skipped"
	LevelSkippedRetry LevelState = "skipped_retry"
)

// GridLevel is one price rung of a planned grid.
type GridLevel struct {
	Side  Side
	Index int
	Price decimal.Decimal
	Size  decimal.Decimal
	State LevelState

	// Backoff state for SkippedRetry levels.
	RetryAt    time.Time
	RetryCount int
}

// Order mirrors an exchange order locally. ExchangeID stays empty
// until the exchange acknowledges the order. Level is -1 for adopted
// orders that match no planned level.
type Order struct {
	LocalID    string
	ExchangeID string
	Pair       Pair
	Side       Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	Level      int
	Status     OrderStatus
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Trade is one entry of the exchange's trade history.
type Trade struct {
	TradeID   string
	OrderID   string
	Pair      Pair
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

// Ticker is a point-in-time market quote.
type Ticker struct {
	Pair Pair
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Last decimal.Decimal
}

// Mid returns the bid/ask midpoint, falling back to the last trade
// price when either side of the book is empty.
func (t Ticker) Mid() decimal.Decimal {
	if t.Bid.IsPositive() && t.Ask.IsPositive() {
		return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
	}
	return t.Last
}

// Execution is an immutable fill record. RealizedPnL is set only for
// sells; a buy establishes cost basis without realizing anything.
type Execution struct {
	ID           int64
	OrderLocalID string
	TradeID      string
	Pair         Pair
	Side         Side
	Price        decimal.Decimal
	Size         decimal.Decimal
	Fee          decimal.Decimal
	RealizedPnL  decimal.NullDecimal
	Timestamp    time.Time
}

// PortfolioSnapshot is a periodic balance capture used for drift
// detection. It is never authoritative for PnL.
type PortfolioSnapshot struct {
	Timestamp   time.Time
	Balances    map[string]Balance
	Equity      decimal.Decimal
	EquityAsset string
}

// PairPnL is the per-pair slice of a summary.
type PairPnL struct {
	Pair       Pair
	Realized   decimal.Decimal
	Executions int
	Volume     decimal.Decimal
}

// PnLSummary is an aggregate view derived entirely from the execution
// log. It is a cache, never a source of truth.
type PnLSummary struct {
	From       time.Time
	To         time.Time
	Realized   decimal.Decimal
	Executions int
	Wins       int
	Losses     int
	Volume     decimal.Decimal
	BestTrade  decimal.Decimal
	WorstTrade decimal.Decimal
	HourlyRate decimal.Decimal
	PerPair    []PairPnL
}

// SessionPnL reports realized results since engine start.
type SessionPnL struct {
	Since      time.Time
	Realized   decimal.Decimal
	Executions int
	HourlyRate decimal.Decimal
}

// PricePoint is one sample of the rolling price window the trend
// guard evaluates.
type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}

// TradingPairConfig is the immutable per-pair policy.
type TradingPairConfig struct {
	Pair               Pair
	Spacing            decimal.Decimal
	LevelsPerSide      int
	AllocationFraction decimal.Decimal
	ReserveFraction    decimal.Decimal
	TrendProtection    bool
	TrendThreshold     decimal.Decimal
	TrendLookback      int
	ReplanThreshold    decimal.Decimal
	ReplanCooldown     time.Duration
	TreatMissingAsZero bool
}
