// Package exchange provides decorators layered over a core.Exchange:
// request throttling and a resilience pipeline. The venue client
// itself is constructed elsewhere and wrapped here before the engine
// sees it.
package exchange

import (
	"context"
	"time"

	"gridbot/internal/core"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Throttled enforces a global request budget across every call to the
// venue. All pairs share one limiter, matching how venues account
// request weight per API key rather than per symbol.
type Throttled struct {
	inner   core.Exchange
	limiter *rate.Limiter
}

func NewThrottled(inner core.Exchange, limit float64, burst int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
	}
}

func (t *Throttled) GetBalances(ctx context.Context) (map[string]core.Balance, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.GetBalances(ctx)
}

func (t *Throttled) GetTicker(ctx context.Context, pair core.Pair) (core.Ticker, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return core.Ticker{}, err
	}
	return t.inner.GetTicker(ctx, pair)
}

func (t *Throttled) GetOpenOrders(ctx context.Context, pair core.Pair) ([]core.Order, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.GetOpenOrders(ctx, pair)
}

func (t *Throttled) GetTradeHistory(ctx context.Context, pair core.Pair, since time.Time) ([]core.Trade, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.GetTradeHistory(ctx, pair, since)
}

func (t *Throttled) PlaceOrder(ctx context.Context, pair core.Pair, side core.Side, price, size decimal.Decimal) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.inner.PlaceOrder(ctx, pair, side, price, size)
}

func (t *Throttled) CancelOrder(ctx context.Context, pair core.Pair, exchangeOrderID string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.inner.CancelOrder(ctx, pair, exchangeOrderID)
}

// MinOrderSize is venue metadata cached client-side; it costs no
// request budget.
func (t *Throttled) MinOrderSize(pair core.Pair) decimal.Decimal {
	return t.inner.MinOrderSize(pair)
}
