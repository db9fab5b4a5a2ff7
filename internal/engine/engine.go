// Package engine composes the per-pair reconcilers over the shared
// capital book and runs them on a worker pool, alongside the balance
// snapshot and PnL summary loops.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/trading/guard"
	"gridbot/internal/trading/pnl"
	"gridbot/internal/trading/portfolio"
	"gridbot/internal/trading/reconciler"
	"gridbot/pkg/concurrency"
	apperrors "gridbot/pkg/errors"
	"gridbot/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// Engine owns the trading lifecycle of every configured pair. It
// implements bootstrap.Runner.
type Engine struct {
	cfg      *config.Config
	pairCfgs []core.TradingPairConfig
	exchange core.Exchange
	ledger   core.Ledger
	logger   core.ILogger

	allocator *portfolio.Allocator
	book      *portfolio.CapitalBook
	recorder  *pnl.Recorder
	pool      *concurrency.WorkerPool
	recs      []*reconciler.Reconciler

	start time.Time

	snapMu   sync.RWMutex
	snapshot *portfolio.Snapshot
}

func New(cfg *config.Config, exchange core.Exchange, led core.Ledger, alerts reconciler.Notifier, logger core.ILogger) (*Engine, error) {
	pairCfgs, err := cfg.PairConfigs()
	if err != nil {
		return nil, fmt.Errorf("invalid pair configuration: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		pairCfgs:  pairCfgs,
		exchange:  exchange,
		ledger:    led,
		logger:    logger.WithField("component", "engine"),
		allocator: portfolio.NewAllocator(pairCfgs),
		book:      portfolio.NewCapitalBook(),
		recorder:  pnl.NewRecorder(led, logger),
		start:     time.Now(),
	}

	e.pool = concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "reconcile-ticks",
		MaxWorkers:  cfg.Engine.MaxConcurrentTicks,
		MaxCapacity: len(pairCfgs) * 2,
		NonBlocking: true,
	}, logger)

	trendGuard := guard.NewTrendGuard()
	for _, pc := range pairCfgs {
		e.recs = append(e.recs, reconciler.New(reconciler.Config{
			Pair:              pc,
			TickInterval:      cfg.Engine.TickInterval,
			HistoryLookback:   cfg.Engine.HistoryLookback,
			UnknownRetryLimit: cfg.Engine.UnknownRetryLimit,
		}, reconciler.Deps{
			Exchange: exchange,
			Ledger:   led,
			Recorder: e.recorder,
			Guard:    trendGuard,
			Capital:  e.book,
			Alerts:   alerts,
			Logger:   logger,
		}))
	}

	return e, nil
}

// Run drives the engine until ctx is cancelled, then drains in-flight
// ticks. Startup is strict: a balance response missing a configured
// asset aborts rather than trading on a wrong capital figure.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine starting", "pairs", len(e.recs))

	snap, err := e.refreshSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("initial balance snapshot failed: %w", err)
	}
	if asset, ok := snap.MissingAsset(); ok {
		return fmt.Errorf("initial balance snapshot failed: %w", &apperrors.InsufficientDataError{Asset: asset})
	}
	if e.cfg.Engine.CancelOrphans {
		e.cancelOrphans(ctx)
	}
	if err := e.recorder.Restore(ctx); err != nil {
		return err
	}
	for _, r := range e.recs {
		if err := r.Restore(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range e.recs {
		r := r
		g.Go(func() error {
			e.tickLoop(gctx, r)
			return nil
		})
	}
	g.Go(func() error {
		e.snapshotLoop(gctx)
		return nil
	})
	g.Go(func() error {
		e.summaryLoop(gctx)
		return nil
	})

	err = g.Wait()
	e.drain()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	e.logger.Info("Engine stopped")
	return nil
}

// tickLoop submits one reconciliation tick per interval. A tick that
// cannot be scheduled, or finds the previous one still running, counts
// as a stall rather than queueing up behind it.
func (e *Engine) tickLoop(ctx context.Context, r *reconciler.Reconciler) {
	submit := func() {
		err := e.pool.Submit(func() {
			snap := e.currentSnapshot()
			if snap == nil {
				return
			}
			// A shutdown signal must not cancel a venue call mid-flight
			// and strand an order in an unknown state. The tick runs
			// detached from the signal context, bounded instead by the
			// drain window the engine waits for on shutdown.
			tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
				e.cfg.Engine.TickInterval+e.cfg.Engine.DrainTimeout)
			defer cancel()

			rep, tickErr := r.Tick(tickCtx, snap)
			if errors.Is(tickErr, apperrors.ErrTickInProgress) {
				e.recordStall(tickCtx, r.Pair())
				return
			}
			if tickErr != nil {
				e.logger.Error("Tick failed", "pair", rep.Pair.String(), "error", tickErr)
			}
		})
		if err != nil {
			e.logger.Warn("Tick pool saturated, skipping interval", "error", err)
		}
	}

	submit()
	ticker := time.NewTicker(e.cfg.Engine.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			submit()
		}
	}
}

func (e *Engine) recordStall(ctx context.Context, pair core.Pair) {
	e.logger.Warn("Tick overlap, previous tick still running", "pair", pair.String())
	if m := telemetry.GetGlobalMetrics(); m.TickStallsTotal != nil {
		m.TickStallsTotal.Add(ctx, 1)
	}
}

func (e *Engine) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Engine.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.refreshSnapshot(ctx); err != nil {
				e.logger.Error("Balance snapshot failed", "error", err)
				continue
			}
			e.persistSnapshot(ctx)
		}
	}
}

// refreshSnapshot pulls balances, derives per-pair capital, and lifts
// the capital book ceilings. Funds locked on the venue back our own
// open orders and are already counted as committed, so the ceiling is
// available plus committed rather than available alone.
func (e *Engine) refreshSnapshot(ctx context.Context) (*portfolio.Snapshot, error) {
	raw, err := e.exchange.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	snap := e.allocator.Snapshot(raw)

	for asset := range snap.Missing {
		e.logger.Warn("Balance response missing asset, its pairs keep previous figures", "asset", asset)
	}
	for asset, avail := range snap.Available {
		e.book.SetCeiling(asset, avail.Add(e.book.Committed(asset)))
	}

	e.snapMu.Lock()
	e.snapshot = snap
	e.snapMu.Unlock()
	return snap, nil
}

func (e *Engine) currentSnapshot() *portfolio.Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapshot
}

// persistSnapshot writes a balance capture with an equity estimate in
// the configured equity asset. The estimate uses live mid prices and
// exists for drift inspection only.
func (e *Engine) persistSnapshot(ctx context.Context) {
	snap := e.currentSnapshot()
	if snap == nil {
		return
	}

	equityAsset := e.cfg.System.EquityAsset
	equity := snap.Balances[equityAsset].Total
	for _, pc := range e.pairCfgs {
		if pc.Pair.Quote != equityAsset {
			continue
		}
		base, ok := snap.Balances[pc.Pair.Base]
		if !ok || base.Total.IsZero() {
			continue
		}
		ticker, err := e.exchange.GetTicker(ctx, pc.Pair)
		if err != nil {
			e.logger.Warn("Equity estimate skipping pair", "pair", pc.Pair.String(), "error", err)
			continue
		}
		equity = equity.Add(base.Total.Mul(ticker.Mid()))
	}

	err := e.ledger.RecordSnapshot(ctx, core.PortfolioSnapshot{
		Timestamp:   time.Now(),
		Balances:    snap.Balances,
		Equity:      equity,
		EquityAsset: equityAsset,
	})
	if err != nil {
		e.logger.Error("Failed to persist snapshot", "error", err)
	}
}

func (e *Engine) summaryLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Engine.SummaryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := e.recorder.Summarize(ctx, e.start, time.Now())
			if err != nil {
				e.logger.Error("PnL summary failed", "error", err)
				continue
			}
			if err := e.ledger.RecordSummary(ctx, summary); err != nil {
				e.logger.Error("Failed to persist summary", "error", err)
			}
			e.logger.Info("Session PnL",
				"realized", summary.Realized.String(),
				"executions", summary.Executions,
				"wins", summary.Wins,
				"losses", summary.Losses,
				"hourly_rate", summary.HourlyRate.String())
		}
	}
}

// cancelOrphans removes live orders the ledger does not know about.
// Without this option such orders would be adopted on the first tick
// instead.
func (e *Engine) cancelOrphans(ctx context.Context) {
	for _, pc := range e.pairCfgs {
		live, err := e.exchange.GetOpenOrders(ctx, pc.Pair)
		if err != nil {
			e.logger.Error("Orphan scan failed", "pair", pc.Pair.String(), "error", err)
			continue
		}
		local, err := e.ledger.OpenOrders(ctx, pc.Pair)
		if err != nil {
			e.logger.Error("Orphan scan failed", "pair", pc.Pair.String(), "error", err)
			continue
		}
		known := make(map[string]bool, len(local))
		for _, o := range local {
			known[o.ExchangeID] = true
		}
		for _, o := range live {
			if known[o.ExchangeID] {
				continue
			}
			if err := e.exchange.CancelOrder(ctx, pc.Pair, o.ExchangeID); err != nil {
				e.logger.Error("Failed to cancel orphan order", "exchange_id", o.ExchangeID, "error", err)
				continue
			}
			e.logger.Warn("Cancelled orphan order",
				"pair", pc.Pair.String(),
				"exchange_id", o.ExchangeID,
				"price", o.Price.String())
		}
	}
}

// drain waits for in-flight ticks up to the configured timeout.
func (e *Engine) drain() {
	done := make(chan struct{})
	go func() {
		e.pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.cfg.Engine.DrainTimeout):
		e.logger.Warn("Drain timeout elapsed with ticks still running")
	}
}
