// Package pnl records executions with realized profit-and-loss and
// derives aggregate summaries from the execution log.
package pnl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gridbot/internal/core"
	apperrors "gridbot/pkg/errors"
	"gridbot/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Recorder is the only creator of Executions and the only writer of
// summaries. Realized PnL uses FIFO cost-basis matching: a sell
// consumes the oldest open buy lots of its pair; a buy opens a lot
// and realizes nothing.
type Recorder struct {
	ledger core.Ledger
	logger core.ILogger

	book *fifoBook

	sessionStart    time.Time
	sessionRealized decimal.Decimal
	sessionExecs    int
}

func NewRecorder(ledger core.Ledger, logger core.ILogger) *Recorder {
	return &Recorder{
		ledger:       ledger,
		logger:       logger.WithField("component", "pnl_recorder"),
		book:         newFifoBook(),
		sessionStart: time.Now(),
	}
}

// Restore rebuilds the FIFO book by replaying the execution log in
// timestamp order. Run before the first tick so restarts cannot
// double-count basis.
func (r *Recorder) Restore(ctx context.Context) error {
	execs, err := r.ledger.ExecutionsInRange(ctx, time.Unix(0, 0), time.Now().Add(time.Hour))
	if err != nil {
		return fmt.Errorf("failed to replay execution log: %w", err)
	}

	r.book.mu.Lock()
	defer r.book.mu.Unlock()
	for _, e := range execs {
		if e.Side == core.SideBuy {
			r.book.addLocked(e.Pair, e.Price, e.Size)
		} else {
			r.book.consumeLocked(e.Pair, e.Size)
		}
	}

	r.logger.Info("Rebuilt cost-basis book from execution log", "executions", len(execs))
	return nil
}

// RecordExecution writes the execution durably, then applies it to the
// in-memory book and session counters. The ledger write happens before
// any state mutation, so a crash between the two replays cleanly. A
// duplicate exchange trade id is a no-op returning ErrDuplicateTrade.
func (r *Recorder) RecordExecution(ctx context.Context, order core.Order, trade core.Trade) (core.Execution, error) {
	exec := core.Execution{
		OrderLocalID: order.LocalID,
		TradeID:      trade.TradeID,
		Pair:         order.Pair,
		Side:         trade.Side,
		Price:        trade.Price,
		Size:         trade.Size,
		Fee:          trade.Fee,
		Timestamp:    trade.Timestamp,
	}

	r.book.mu.Lock()
	defer r.book.mu.Unlock()

	if exec.Side == core.SideSell {
		realized := r.book.previewLocked(exec.Pair, exec.Price, exec.Size).Sub(exec.Fee)
		exec.RealizedPnL = decimal.NullDecimal{Decimal: realized, Valid: true}
	}

	id, err := r.ledger.RecordExecution(ctx, exec)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateTrade) {
			return exec, apperrors.ErrDuplicateTrade
		}
		return core.Execution{}, fmt.Errorf("failed to persist execution: %w", err)
	}
	exec.ID = id

	if exec.Side == core.SideBuy {
		r.book.addLocked(exec.Pair, exec.Price, exec.Size)
	} else {
		r.book.consumeLocked(exec.Pair, exec.Size)
		r.sessionRealized = r.sessionRealized.Add(exec.RealizedPnL.Decimal)
	}
	r.sessionExecs++

	metrics := telemetry.GetGlobalMetrics()
	if metrics.ExecutionsTotal != nil {
		metrics.ExecutionsTotal.Add(ctx, 1)
	}
	if exec.RealizedPnL.Valid && metrics.PnLRealizedTotal != nil {
		pnl, _ := exec.RealizedPnL.Decimal.Float64()
		metrics.PnLRealizedTotal.Add(ctx, pnl)
	}
	metrics.SetSessionPnL(sessionFloat(r.sessionRealized))

	r.logger.Info("Recorded execution",
		"pair", exec.Pair.String(),
		"side", exec.Side,
		"price", exec.Price.String(),
		"size", exec.Size.String(),
		"trade_id", exec.TradeID,
		"realized_pnl", nullDecimalString(exec.RealizedPnL))

	return exec, nil
}

// Summarize recomputes aggregates purely from execution rows. The
// unfiltered total always equals the sum of per-execution realized
// PnL; summaries are caches, never edited in place.
func (r *Recorder) Summarize(ctx context.Context, from, to time.Time, pairs ...core.Pair) (core.PnLSummary, error) {
	execs, err := r.ledger.ExecutionsInRange(ctx, from, to, pairs...)
	if err != nil {
		return core.PnLSummary{}, fmt.Errorf("failed to load executions: %w", err)
	}

	summary := core.PnLSummary{
		From:     from,
		To:       to,
		Realized: decimal.Zero,
		Volume:   decimal.Zero,
	}

	type pairAgg struct {
		realized decimal.Decimal
		execs    int
		volume   decimal.Decimal
	}
	perPair := make(map[core.Pair]*pairAgg)

	first := true
	for _, e := range execs {
		summary.Executions++
		summary.Volume = summary.Volume.Add(e.Size)

		agg := perPair[e.Pair]
		if agg == nil {
			agg = &pairAgg{realized: decimal.Zero, volume: decimal.Zero}
			perPair[e.Pair] = agg
		}
		agg.execs++
		agg.volume = agg.volume.Add(e.Size)

		if !e.RealizedPnL.Valid {
			continue
		}
		pnl := e.RealizedPnL.Decimal
		summary.Realized = summary.Realized.Add(pnl)
		agg.realized = agg.realized.Add(pnl)

		if pnl.IsPositive() {
			summary.Wins++
		} else if pnl.IsNegative() {
			summary.Losses++
		}
		if first {
			summary.BestTrade = pnl
			summary.WorstTrade = pnl
			first = false
			continue
		}
		if pnl.GreaterThan(summary.BestTrade) {
			summary.BestTrade = pnl
		}
		if pnl.LessThan(summary.WorstTrade) {
			summary.WorstTrade = pnl
		}
	}

	if hours := to.Sub(from).Hours(); hours > 0 {
		summary.HourlyRate = summary.Realized.Div(decimal.NewFromFloat(hours)).Round(12)
	}

	pairKeys := make([]core.Pair, 0, len(perPair))
	for p := range perPair {
		pairKeys = append(pairKeys, p)
	}
	sort.Slice(pairKeys, func(i, j int) bool { return pairKeys[i].String() < pairKeys[j].String() })
	for _, p := range pairKeys {
		agg := perPair[p]
		summary.PerPair = append(summary.PerPair, core.PairPnL{
			Pair:       p,
			Realized:   agg.realized,
			Executions: agg.execs,
			Volume:     agg.volume,
		})
	}

	return summary, nil
}

// CurrentSessionPnL reports realized results since the recorder was
// created, for live monitoring collaborators.
func (r *Recorder) CurrentSessionPnL() core.SessionPnL {
	r.book.mu.Lock()
	defer r.book.mu.Unlock()

	session := core.SessionPnL{
		Since:      r.sessionStart,
		Realized:   r.sessionRealized,
		Executions: r.sessionExecs,
	}
	if hours := time.Since(r.sessionStart).Hours(); hours > 0 {
		session.HourlyRate = r.sessionRealized.Div(decimal.NewFromFloat(hours)).Round(12)
	}
	return session
}

func sessionFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "deferred"
	}
	return d.Decimal.String()
}
