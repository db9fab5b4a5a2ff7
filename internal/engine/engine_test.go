package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/ledger"
	"gridbot/internal/mock"
	apperrors "gridbot/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (l *noopLogger) Debug(msg string, fields ...interface{})               {}
func (l *noopLogger) Info(msg string, fields ...interface{})                {}
func (l *noopLogger) Warn(msg string, fields ...interface{})                {}
func (l *noopLogger) Error(msg string, fields ...interface{})               {}
func (l *noopLogger) Fatal(msg string, fields ...interface{})               {}
func (l *noopLogger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *noopLogger) WithFields(fields map[string]interface{}) core.ILogger { return l }

func testConfig() *config.Config {
	return &config.Config{
		System: config.SystemConfig{LogLevel: "INFO", EquityAsset: "BTC"},
		Engine: config.EngineConfig{
			TickInterval:       10 * time.Millisecond,
			SnapshotInterval:   20 * time.Millisecond,
			SummaryInterval:    25 * time.Millisecond,
			DrainTimeout:       time.Second,
			HistoryLookback:    time.Hour,
			UnknownRetryLimit:  3,
			MaxConcurrentTicks: 2,
		},
		Pairs: []config.PairConfig{{
			Pair:            "XRP/BTC",
			Spacing:         0.015,
			LevelsPerSide:   3,
			Allocation:      0.6,
			Reserve:         0.05,
			TrendThreshold:  0.03,
			TrendLookback:   5,
			ReplanThreshold: 0.05,
			ReplanCooldown:  time.Hour,
		}},
	}
}

func seededExchange(t *testing.T) (*mock.Exchange, core.Pair) {
	t.Helper()
	pair, err := core.ParsePair("XRP/BTC")
	require.NoError(t, err)

	ex := mock.NewExchange()
	ex.SetBalance("BTC", decimal.RequireFromString("0.01"), decimal.Zero)
	ex.SetBalance("XRP", decimal.NewFromInt(100), decimal.Zero)
	ex.SetTicker(core.Ticker{Pair: pair, Last: decimal.RequireFromString("0.0006")})
	return ex, pair
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestEngine_RunPlacesGridAndShutsDownCleanly(t *testing.T) {
	ex, pair := seededExchange(t)
	led, err := ledger.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	e, err := New(testConfig(), ex, led, nil, &noopLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return ex.OpenCount(pair) == 6 })

	// The summary loop writes periodic aggregates.
	waitFor(t, 2*time.Second, func() bool {
		s, lerr := led.LatestSummary(context.Background())
		return lerr == nil && s != nil
	})

	cancel()
	select {
	case runErr := <-errCh:
		assert.NoError(t, runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not shut down")
	}

	open, err := led.OpenOrders(context.Background(), pair)
	require.NoError(t, err)
	assert.Len(t, open, 6)
}

func TestEngine_CancelOrphansAtStartup(t *testing.T) {
	ex, pair := seededExchange(t)
	ex.Inject(core.Order{
		Pair:  pair,
		Side:  core.SideBuy,
		Price: decimal.RequireFromString("0.0005"),
		Size:  decimal.NewFromInt(1),
	})

	led, err := ledger.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	cfg := testConfig()
	cfg.Engine.CancelOrphans = true

	e, err := New(cfg, ex, led, nil, &noopLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	// The orphan is cancelled, then the six grid orders go out.
	waitFor(t, 2*time.Second, func() bool {
		return ex.CancelCalls() >= 1 && ex.OpenCount(pair) == 6
	})

	cancel()
	select {
	case runErr := <-errCh:
		assert.NoError(t, runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not shut down")
	}
}

// gatedExchange holds the first placement open until released and
// captures the context state the call observed.
type gatedExchange struct {
	*mock.Exchange
	gate     sync.Once
	inFlight chan struct{}
	release  chan struct{}

	mu     sync.Mutex
	ctxErr error
	gated  bool
}

func newGatedExchange(ex *mock.Exchange) *gatedExchange {
	return &gatedExchange{
		Exchange: ex,
		inFlight: make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedExchange) PlaceOrder(ctx context.Context, pair core.Pair, side core.Side, price, size decimal.Decimal) (string, error) {
	hold := false
	g.gate.Do(func() { hold = true })
	if hold {
		close(g.inFlight)
		<-g.release
		g.mu.Lock()
		g.ctxErr = ctx.Err()
		g.gated = true
		g.mu.Unlock()
	}
	return g.Exchange.PlaceOrder(ctx, pair, side, price, size)
}

func (g *gatedExchange) observedCtxErr(t *testing.T) error {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.True(t, g.gated, "gated placement never ran")
	return g.ctxErr
}

func TestEngine_ShutdownLetsInFlightPlacementFinish(t *testing.T) {
	ex, pair := seededExchange(t)
	gx := newGatedExchange(ex)

	led, err := ledger.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	e, err := New(testConfig(), gx, led, nil, &noopLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	select {
	case <-gx.inFlight:
	case <-time.After(2 * time.Second):
		t.Fatal("no placement reached the exchange")
	}

	// Shut down while the placement is on the wire, then let it land.
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(gx.release)

	select {
	case runErr := <-errCh:
		assert.NoError(t, runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not shut down")
	}

	assert.NoError(t, gx.observedCtxErr(t), "a placement in flight at shutdown must run to completion")
	assert.Equal(t, 6, ex.OpenCount(pair), "the interrupted tick finishes its grid during drain")
}

func TestEngine_StartupAbortsOnMissingAsset(t *testing.T) {
	pair, err := core.ParsePair("XRP/BTC")
	require.NoError(t, err)

	ex := mock.NewExchange()
	ex.SetBalance("BTC", decimal.RequireFromString("0.01"), decimal.Zero)
	ex.SetTicker(core.Ticker{Pair: pair, Last: decimal.RequireFromString("0.0006")})

	led, err := ledger.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	e, err := New(testConfig(), ex, led, nil, &noopLogger{})
	require.NoError(t, err)

	runErr := e.Run(context.Background())
	require.Error(t, runErr)

	var missing *apperrors.InsufficientDataError
	require.ErrorAs(t, runErr, &missing)
	assert.Equal(t, "XRP", missing.Asset)
}
