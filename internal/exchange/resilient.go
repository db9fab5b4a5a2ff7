package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridbot/internal/core"
	apperrors "gridbot/pkg/errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
)

// Resilient wraps a core.Exchange in a failsafe pipeline. Read calls
// retry transient failures with backoff behind a circuit breaker.
// Order mutations go through the breaker only: a retried PlaceOrder
// whose first attempt actually landed would duplicate the order, so
// placement retries stay with the reconciler, which can mark an
// ambiguous outcome Unknown and resolve it against venue state.
type Resilient struct {
	inner   core.Exchange
	breaker circuitbreaker.CircuitBreaker[any]
	reads   failsafe.Executor[any]
	writes  failsafe.Executor[any]
}

func NewResilient(inner core.Exchange) *Resilient {
	retryPolicy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return apperrors.IsTransient(err)
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()

	breaker := circuitbreaker.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return apperrors.IsTransient(err)
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	return &Resilient{
		inner:   inner,
		breaker: breaker,
		reads:   failsafe.With[any](retryPolicy, breaker),
		writes:  failsafe.With[any](breaker),
	}
}

func (r *Resilient) GetBalances(ctx context.Context) (map[string]core.Balance, error) {
	return through(r.reads, func() (map[string]core.Balance, error) {
		return r.inner.GetBalances(ctx)
	})
}

func (r *Resilient) GetTicker(ctx context.Context, pair core.Pair) (core.Ticker, error) {
	return through(r.reads, func() (core.Ticker, error) {
		return r.inner.GetTicker(ctx, pair)
	})
}

func (r *Resilient) GetOpenOrders(ctx context.Context, pair core.Pair) ([]core.Order, error) {
	return through(r.reads, func() ([]core.Order, error) {
		return r.inner.GetOpenOrders(ctx, pair)
	})
}

func (r *Resilient) GetTradeHistory(ctx context.Context, pair core.Pair, since time.Time) ([]core.Trade, error) {
	return through(r.reads, func() ([]core.Trade, error) {
		return r.inner.GetTradeHistory(ctx, pair, since)
	})
}

func (r *Resilient) PlaceOrder(ctx context.Context, pair core.Pair, side core.Side, price, size decimal.Decimal) (string, error) {
	return through(r.writes, func() (string, error) {
		return r.inner.PlaceOrder(ctx, pair, side, price, size)
	})
}

func (r *Resilient) CancelOrder(ctx context.Context, pair core.Pair, exchangeOrderID string) error {
	_, err := through(r.writes, func() (struct{}, error) {
		return struct{}{}, r.inner.CancelOrder(ctx, pair, exchangeOrderID)
	})
	return err
}

func (r *Resilient) MinOrderSize(pair core.Pair) decimal.Decimal {
	return r.inner.MinOrderSize(pair)
}

// through runs fn inside the executor, mapping an open breaker onto
// ErrExchangeUnavailable so callers branch on the standard taxonomy.
func through[T any](exec failsafe.Executor[any], fn func() (T, error)) (T, error) {
	out, err := exec.Get(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return zero, fmt.Errorf("circuit open: %w", apperrors.ErrExchangeUnavailable)
		}
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
