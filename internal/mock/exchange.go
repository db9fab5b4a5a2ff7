// Package mock provides a scriptable in-memory exchange for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridbot/internal/core"
	apperrors "gridbot/pkg/errors"

	"github.com/shopspring/decimal"
)

// Exchange implements core.Exchange against in-memory state. Tests
// seed balances and tickers, script placement failures, and drive
// fills explicitly via Fill.
type Exchange struct {
	mu sync.Mutex

	balances map[string]core.Balance
	tickers  map[core.Pair]core.Ticker
	minSizes map[core.Pair]decimal.Decimal

	open   map[string]core.Order
	trades []core.Trade

	orderSeq int
	tradeSeq int

	// Scripted failures, consumed in order by PlaceOrder.
	placeScript []placeOutcome

	placeCalls  int
	cancelCalls int

	cancelErr error
}

type placeOutcome struct {
	err error
	// The order still lands on the venue despite the returned error.
	landsAnyway bool
}

func NewExchange() *Exchange {
	return &Exchange{
		balances: make(map[string]core.Balance),
		tickers:  make(map[core.Pair]core.Ticker),
		minSizes: make(map[core.Pair]decimal.Decimal),
		open:     make(map[string]core.Order),
	}
}

func (m *Exchange) SetBalance(asset string, total, locked decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = core.Balance{Total: total, Locked: locked}
}

func (m *Exchange) SetTicker(t core.Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[t.Pair] = t
}

func (m *Exchange) SetMinOrderSize(pair core.Pair, size decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minSizes[pair] = size
}

// FailNextPlace scripts the next PlaceOrder call to return err with no
// order created.
func (m *Exchange) FailNextPlace(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeScript = append(m.placeScript, placeOutcome{err: err})
}

// LoseNextPlaceAck scripts the next PlaceOrder call to return err even
// though the order lands on the venue, simulating a lost acknowledgement.
func (m *Exchange) LoseNextPlaceAck(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeScript = append(m.placeScript, placeOutcome{err: err, landsAnyway: true})
}

// FailCancel makes every CancelOrder call return err until reset with nil.
func (m *Exchange) FailCancel(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr = err
}

// Inject places an order directly on the venue without a local record,
// as if another client created it.
func (m *Exchange) Inject(o core.Order) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderSeq++
	id := fmt.Sprintf("EX-%d", m.orderSeq)
	o.ExchangeID = id
	m.open[id] = o
	return id
}

// Fill marks an open order as fully executed: it leaves the open set
// and a matching trade enters the history. Balances are not adjusted;
// tests seed those explicitly.
func (m *Exchange) Fill(exchangeID string, at time.Time) (core.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.open[exchangeID]
	if !ok {
		return core.Trade{}, apperrors.ErrOrderNotFound
	}
	delete(m.open, exchangeID)

	m.tradeSeq++
	trade := core.Trade{
		TradeID:   fmt.Sprintf("T-%d", m.tradeSeq),
		OrderID:   exchangeID,
		Pair:      o.Pair,
		Side:      o.Side,
		Price:     o.Price,
		Size:      o.Size,
		Fee:       decimal.Zero,
		Timestamp: at,
	}
	m.trades = append(m.trades, trade)
	return trade, nil
}

// Drop removes an open order without recording a trade, simulating an
// order the venue lost track of.
func (m *Exchange) Drop(exchangeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, exchangeID)
}

func (m *Exchange) PlaceCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placeCalls
}

func (m *Exchange) CancelCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCalls
}

// OpenCount returns the number of live orders for pair.
func (m *Exchange) OpenCount(pair core.Pair) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.open {
		if o.Pair == pair {
			n++
		}
	}
	return n
}

func (m *Exchange) GetBalances(ctx context.Context) (map[string]core.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]core.Balance, len(m.balances))
	for asset, b := range m.balances {
		out[asset] = b
	}
	return out, nil
}

func (m *Exchange) GetTicker(ctx context.Context, pair core.Pair) (core.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickers[pair]
	if !ok {
		return core.Ticker{}, fmt.Errorf("no ticker for %s: %w", pair, apperrors.ErrExchangeUnavailable)
	}
	return t, nil
}

func (m *Exchange) GetOpenOrders(ctx context.Context, pair core.Pair) ([]core.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Order
	for _, o := range m.open {
		if o.Pair == pair {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Exchange) GetTradeHistory(ctx context.Context, pair core.Pair, since time.Time) ([]core.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Trade
	for _, t := range m.trades {
		if t.Pair == pair && !t.Timestamp.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Exchange) PlaceOrder(ctx context.Context, pair core.Pair, side core.Side, price, size decimal.Decimal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeCalls++

	var scripted *placeOutcome
	if len(m.placeScript) > 0 {
		scripted = &m.placeScript[0]
		m.placeScript = m.placeScript[1:]
	}
	if scripted != nil && !scripted.landsAnyway {
		return "", scripted.err
	}

	if min, ok := m.minSizes[pair]; ok && size.LessThan(min) {
		return "", fmt.Errorf("size %s below minimum %s: %w", size, min, apperrors.ErrInvalidOrder)
	}

	m.orderSeq++
	id := fmt.Sprintf("EX-%d", m.orderSeq)
	m.open[id] = core.Order{
		ExchangeID: id,
		Pair:       pair,
		Side:       side,
		Price:      price,
		Size:       size,
		Status:     core.StatusOpen,
		CreatedAt:  time.Now(),
	}

	if scripted != nil {
		return "", scripted.err
	}
	return id, nil
}

func (m *Exchange) CancelOrder(ctx context.Context, pair core.Pair, exchangeOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls++

	if m.cancelErr != nil {
		return m.cancelErr
	}
	if _, ok := m.open[exchangeOrderID]; !ok {
		return apperrors.ErrOrderNotFound
	}
	delete(m.open, exchangeOrderID)
	return nil
}

func (m *Exchange) MinOrderSize(pair core.Pair) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minSizes[pair]
}
