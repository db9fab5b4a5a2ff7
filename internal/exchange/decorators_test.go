package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gridbot/internal/core"
	apperrors "gridbot/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExchange counts calls and pops scripted errors per method.
type stubExchange struct {
	mu sync.Mutex

	tickerErrs []error
	openErrs   []error
	placeErrs  []error

	tickerCalls int
	openCalls   int
	placeCalls  int
}

func (s *stubExchange) pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

func (s *stubExchange) GetBalances(ctx context.Context) (map[string]core.Balance, error) {
	return map[string]core.Balance{}, nil
}

func (s *stubExchange) GetTicker(ctx context.Context, pair core.Pair) (core.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickerCalls++
	if err := s.pop(&s.tickerErrs); err != nil {
		return core.Ticker{}, err
	}
	return core.Ticker{Pair: pair, Last: decimal.NewFromInt(1)}, nil
}

func (s *stubExchange) GetOpenOrders(ctx context.Context, pair core.Pair) ([]core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openCalls++
	if err := s.pop(&s.openErrs); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *stubExchange) GetTradeHistory(ctx context.Context, pair core.Pair, since time.Time) ([]core.Trade, error) {
	return nil, nil
}

func (s *stubExchange) PlaceOrder(ctx context.Context, pair core.Pair, side core.Side, price, size decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeCalls++
	if err := s.pop(&s.placeErrs); err != nil {
		return "", err
	}
	return "EX-1", nil
}

func (s *stubExchange) CancelOrder(ctx context.Context, pair core.Pair, exchangeOrderID string) error {
	return nil
}

func (s *stubExchange) MinOrderSize(pair core.Pair) decimal.Decimal {
	return decimal.Zero
}

func testPair(t *testing.T) core.Pair {
	t.Helper()
	p, err := core.ParsePair("XRP/BTC")
	require.NoError(t, err)
	return p
}

func TestThrottled_SpacesRequests(t *testing.T) {
	stub := &stubExchange{}
	th := NewThrottled(stub, 100, 1)
	pair := testPair(t)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := th.GetTicker(context.Background(), pair)
		require.NoError(t, err)
	}

	// Burst of 1 at 100/s forces ~10ms between the remaining calls.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Equal(t, 3, stub.tickerCalls)
}

func TestThrottled_HonorsCancelledContext(t *testing.T) {
	stub := &stubExchange{}
	th := NewThrottled(stub, 1, 1)
	pair := testPair(t)

	_, err := th.GetTicker(context.Background(), pair)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = th.GetTicker(ctx, pair)
	assert.Error(t, err)
	assert.Equal(t, 1, stub.tickerCalls)
}

func TestResilient_RetriesTransientReads(t *testing.T) {
	stub := &stubExchange{
		tickerErrs: []error{apperrors.ErrNetwork, apperrors.ErrNetwork},
	}
	r := NewResilient(stub)

	ticker, err := r.GetTicker(context.Background(), testPair(t))
	require.NoError(t, err)
	assert.True(t, ticker.Last.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 3, stub.tickerCalls)
}

func TestResilient_NonTransientReadFailsImmediately(t *testing.T) {
	stub := &stubExchange{
		openErrs: []error{apperrors.ErrAuthenticationFailed},
	}
	r := NewResilient(stub)

	_, err := r.GetOpenOrders(context.Background(), testPair(t))
	assert.True(t, errors.Is(err, apperrors.ErrAuthenticationFailed))
	assert.Equal(t, 1, stub.openCalls)
}

func TestResilient_NeverRetriesPlacement(t *testing.T) {
	stub := &stubExchange{
		placeErrs: []error{apperrors.ErrNetwork},
	}
	r := NewResilient(stub)

	_, err := r.PlaceOrder(context.Background(), testPair(t), core.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
	assert.Equal(t, 1, stub.placeCalls)
}

func TestResilient_BreakerOpensAfterSustainedFailures(t *testing.T) {
	errs := make([]error, 20)
	for i := range errs {
		errs[i] = apperrors.ErrExchangeUnavailable
	}
	stub := &stubExchange{tickerErrs: errs}
	r := NewResilient(stub)
	pair := testPair(t)

	// Burn through enough failing attempts to trip the 5-of-10 breaker.
	for i := 0; i < 3; i++ {
		_, err := r.GetTicker(context.Background(), pair)
		require.Error(t, err)
	}

	before := stub.tickerCalls
	_, err := r.GetTicker(context.Background(), pair)
	assert.True(t, errors.Is(err, apperrors.ErrExchangeUnavailable))
	assert.Equal(t, before, stub.tickerCalls, "open breaker must not reach the venue")
}
