// Package reconciler drives the per-pair trading loop. Each tick
// observes venue state (ticker, open orders, recent trades), converges
// the local order book toward it, and places orders on vacant grid
// levels. The venue is the source of truth for order existence; the
// ledger is the source of truth for history.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gridbot/internal/alert"
	"gridbot/internal/core"
	"gridbot/internal/trading/grid"
	"gridbot/internal/trading/pnl"
	"gridbot/internal/trading/portfolio"
	apperrors "gridbot/pkg/errors"
	"gridbot/pkg/retry"
	"gridbot/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Notifier delivers operator alerts. *alert.AlertManager satisfies it;
// nil disables alerting.
type Notifier interface {
	Alert(ctx context.Context, title, message string, level alert.AlertLevel, fields map[string]string)
}

// Config is the per-pair reconciliation policy.
type Config struct {
	Pair              core.TradingPairConfig
	TickInterval      time.Duration
	HistoryLookback   time.Duration
	UnknownRetryLimit int

	// Cap on the per-level rejection backoff. Defaults to 16x the
	// tick interval.
	MaxLevelBackoff time.Duration
}

// Deps are the collaborators a reconciler works through.
type Deps struct {
	Exchange core.Exchange
	Ledger   core.Ledger
	Recorder *pnl.Recorder
	Guard    core.ReplacementGuard
	Capital  *portfolio.CapitalBook
	Alerts   Notifier
	Logger   core.ILogger
}

// Report summarizes what one tick did.
type Report struct {
	Pair          core.Pair
	Placed        int
	Filled        int
	Adopted       int
	Cancelled     int
	Rejected      int
	Unknown       int
	GuardVetoes   int
	CapitalSkips  int
	Replanned     bool
	SkippedLevels int
	Realized      decimal.Decimal
	Duration      time.Duration
}

type levelKey struct {
	side  core.Side
	index int
}

type reservation struct {
	asset  string
	amount decimal.Decimal
}

// Reconciler owns the grid and local order book of a single pair. All
// state is confined to the tick goroutine: Tick takes an exclusive
// lock and overlapping calls fail fast with ErrTickInProgress.
type Reconciler struct {
	cfg    Config
	deps   Deps
	logger core.ILogger

	tickMu sync.Mutex

	levels   []core.GridLevel
	lastPlan time.Time

	orders         map[string]core.Order
	reserved       map[string]reservation
	unknownRetries map[string]int
	authAlerted    bool

	// Fills observed during the current tick, awaiting their
	// opposite-side replacement.
	pendingRefills []core.Order

	prices []core.PricePoint
}

func New(cfg Config, deps Deps) *Reconciler {
	if cfg.MaxLevelBackoff <= 0 {
		cfg.MaxLevelBackoff = 16 * cfg.TickInterval
	}
	return &Reconciler{
		cfg:            cfg,
		deps:           deps,
		logger:         deps.Logger.WithField("pair", cfg.Pair.Pair.String()),
		orders:         make(map[string]core.Order),
		reserved:       make(map[string]reservation),
		unknownRetries: make(map[string]int),
	}
}

// Restore loads the pair's non-terminal orders from the ledger and
// re-reserves their capital. Run once before the first tick.
func (r *Reconciler) Restore(ctx context.Context) error {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	open, err := r.deps.Ledger.OpenOrders(ctx, r.cfg.Pair.Pair)
	if err != nil {
		return fmt.Errorf("failed to restore orders: %w", err)
	}

	for _, o := range open {
		r.orders[o.LocalID] = o
		res := r.reservationFor(o)
		if err := r.deps.Capital.Reserve(res.asset, res.amount); err != nil {
			r.logger.Warn("Could not re-reserve capital for restored order",
				"local_id", o.LocalID, "asset", res.asset, "amount", res.amount.String())
			continue
		}
		r.reserved[o.LocalID] = res
	}

	r.logger.Info("Restored order book", "orders", len(open))
	return nil
}

// Pair returns the trading pair this reconciler owns.
func (r *Reconciler) Pair() core.Pair {
	return r.cfg.Pair.Pair
}

// Tick runs one reconciliation pass. A tick still in flight makes the
// call return ErrTickInProgress immediately; the caller counts it as a
// stall and waits for the next interval.
func (r *Reconciler) Tick(ctx context.Context, capital core.CapitalSource) (Report, error) {
	if !r.tickMu.TryLock() {
		return Report{}, apperrors.ErrTickInProgress
	}
	defer r.tickMu.Unlock()

	start := time.Now()
	pair := r.cfg.Pair.Pair
	rep := Report{Pair: pair, Realized: decimal.Zero}

	// No capital figure means the balance data behind it is missing or
	// stale. The whole tick waits for the next snapshot rather than
	// trading on it.
	if _, err := capital.CapitalFor(pair); err != nil {
		return rep, fmt.Errorf("capital figure unavailable: %w", err)
	}

	ticker, err := r.deps.Exchange.GetTicker(ctx, pair)
	if err != nil {
		return rep, fmt.Errorf("ticker fetch failed: %w", err)
	}
	mid := ticker.Mid()
	if !mid.IsPositive() {
		return rep, fmt.Errorf("no usable price for %s", pair)
	}
	r.pushPrice(mid, start)

	live, err := r.deps.Exchange.GetOpenOrders(ctx, pair)
	if err != nil {
		return rep, fmt.Errorf("open orders fetch failed: %w", err)
	}
	trades, err := r.deps.Exchange.GetTradeHistory(ctx, pair, start.Add(-r.cfg.HistoryLookback))
	if err != nil {
		return rep, fmt.Errorf("trade history fetch failed: %w", err)
	}

	liveByID := make(map[string]core.Order, len(live))
	for _, o := range live {
		liveByID[o.ExchangeID] = o
	}
	tradesByOrder := make(map[string][]core.Trade)
	for _, t := range trades {
		tradesByOrder[t.OrderID] = append(tradesByOrder[t.OrderID], t)
	}

	r.syncOrders(ctx, liveByID, tradesByOrder, start, &rep)
	r.adoptOrders(ctx, liveByID, start, &rep)
	r.maybeReplan(ctx, capital, mid, start, &rep)
	r.placeRefills(ctx, start, &rep)
	r.placeVacantLevels(ctx, start, &rep)

	active := 0
	for _, o := range r.orders {
		if o.Status.Active() {
			active++
		}
	}
	metrics := telemetry.GetGlobalMetrics()
	metrics.SetActiveOrders(pair.String(), int64(active))
	if metrics.TickDuration != nil {
		metrics.TickDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
	}

	rep.Duration = time.Since(start)
	r.logger.Debug("Tick complete",
		"placed", rep.Placed,
		"filled", rep.Filled,
		"adopted", rep.Adopted,
		"unknown", rep.Unknown,
		"active", active,
		"duration", rep.Duration)
	return rep, nil
}

// syncOrders converges every tracked order toward venue state. Orders
// seen live stay (or become) Open; orders gone from the venue become
// Filled when the trade history explains the disappearance and Unknown
// when it does not.
func (r *Reconciler) syncOrders(ctx context.Context, liveByID map[string]core.Order, tradesByOrder map[string][]core.Trade, now time.Time, rep *Report) {
	for _, localID := range r.orderIDs() {
		o := r.orders[localID]

		if o.ExchangeID == "" {
			// Placement ack was lost. A live order matching the
			// submitted parameters is ours; claim it.
			if claimed, ok := r.claimMatch(o, liveByID); ok {
				delete(liveByID, claimed)
				o.ExchangeID = claimed
				r.transition(ctx, &o, core.StatusOpen, now)
				delete(r.unknownRetries, o.LocalID)
				r.orders[localID] = o
				continue
			}
			r.markUnknown(ctx, &o, now, rep)
			r.orders[localID] = o
			continue
		}

		fills := tradesByOrder[o.ExchangeID]

		if _, onVenue := liveByID[o.ExchangeID]; onVenue {
			delete(liveByID, o.ExchangeID)
			// Partial fills surface in the history while the order is
			// still live; the trade id dedupe makes recording them safe.
			for _, t := range fills {
				r.recordFill(ctx, o, t, rep)
			}
			if o.Status != core.StatusOpen {
				r.transition(ctx, &o, core.StatusOpen, now)
				delete(r.unknownRetries, o.LocalID)
			}
			o.LastSeenAt = now
			r.orders[localID] = o
			continue
		}

		if len(fills) > 0 {
			for _, t := range fills {
				r.recordFill(ctx, o, t, rep)
			}
			r.transition(ctx, &o, core.StatusFilled, now)
			r.release(localID)
			delete(r.orders, localID)
			delete(r.unknownRetries, localID)
			r.pendingRefills = append(r.pendingRefills, o)
			rep.Filled++
			if m := telemetry.GetGlobalMetrics(); m.OrdersFilledTotal != nil {
				m.OrdersFilledTotal.Add(ctx, 1)
			}
			continue
		}

		r.markUnknown(ctx, &o, now, rep)
		r.orders[localID] = o
	}
}

// adoptOrders takes ownership of live orders no local record explains,
// for example orders placed by a previous run whose database was lost.
// Adopted orders pin to the nearest vacant planned level of their side
// when one sits within half a grid spacing, otherwise they float
// unpinned at level -1. Their funds are already locked on the venue,
// so no capital is reserved for them.
func (r *Reconciler) adoptOrders(ctx context.Context, liveByID map[string]core.Order, now time.Time, rep *Report) {
	for id, lo := range liveByID {
		adopted := core.Order{
			LocalID:    uuid.NewString(),
			ExchangeID: id,
			Pair:       r.cfg.Pair.Pair,
			Side:       lo.Side,
			Price:      lo.Price,
			Size:       lo.Size,
			Level:      r.pinLevel(lo),
			Status:     core.StatusOpen,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		if err := r.deps.Ledger.RecordOrder(ctx, adopted); err != nil {
			r.logger.Error("Failed to record adopted order", "exchange_id", id, "error", err)
			continue
		}
		r.orders[adopted.LocalID] = adopted
		rep.Adopted++
		if m := telemetry.GetGlobalMetrics(); m.OrdersAdoptedTotal != nil {
			m.OrdersAdoptedTotal.Add(ctx, 1)
		}
		r.logger.Warn("Adopted untracked live order",
			"exchange_id", id,
			"side", lo.Side,
			"price", lo.Price.String(),
			"level", adopted.Level)
	}
}

// maybeReplan builds the initial grid and rebuilds it after the market
// drifts past the replan threshold, subject to the cooldown. A rebuild
// first cancels the orders of the old grid.
func (r *Reconciler) maybeReplan(ctx context.Context, capital core.CapitalSource, mid decimal.Decimal, now time.Time, rep *Report) {
	replan := len(r.levels) == 0
	if !replan {
		drift := grid.Drift(grid.Center(r.cfg.Pair, r.levels), mid)
		if drift.GreaterThanOrEqual(r.cfg.Pair.ReplanThreshold) && now.Sub(r.lastPlan) >= r.cfg.Pair.ReplanCooldown {
			r.logger.Info("Market drifted past replan threshold",
				"drift", drift.String(), "mid", mid.String())
			r.cancelGridOrders(ctx, now, rep)
			replan = true
		}
	}
	if !replan {
		return
	}

	amount, err := capital.CapitalFor(r.cfg.Pair.Pair)
	if err != nil {
		r.logger.Warn("No capital figure available, keeping previous grid", "error", err)
		return
	}

	levels, err := grid.Plan(r.cfg.Pair, mid, amount, r.deps.Exchange.MinOrderSize(r.cfg.Pair.Pair))
	if err != nil {
		r.logger.Error("Grid planning failed", "error", err)
		return
	}

	skipped := 0
	for _, lv := range levels {
		if lv.State == core.LevelSkipped {
			skipped++
		}
	}
	if skipped > 0 {
		r.logger.Warn("Grid has sub-minimum levels", "skipped", skipped, "capital", amount.String())
		if m := telemetry.GetGlobalMetrics(); m.LevelsSkippedTotal != nil {
			m.LevelsSkippedTotal.Add(ctx, int64(skipped))
		}
	}

	r.levels = levels
	r.lastPlan = now
	rep.Replanned = true
	rep.SkippedLevels = skipped
	r.logger.Info("Planned grid",
		"mid", mid.String(),
		"levels", len(levels),
		"capital", amount.String())
}

// cancelGridOrders cancels the open orders pinned to grid levels.
// Unpinned adopted orders and Unknown orders stay; the former are not
// part of the grid and the latter cannot be cancelled reliably.
func (r *Reconciler) cancelGridOrders(ctx context.Context, now time.Time, rep *Report) {
	for _, localID := range r.orderIDs() {
		o := r.orders[localID]
		if o.Status != core.StatusOpen || o.Level < 0 || o.ExchangeID == "" {
			continue
		}
		err := r.deps.Exchange.CancelOrder(ctx, o.Pair, o.ExchangeID)
		if err != nil && !errors.Is(err, apperrors.ErrOrderNotFound) {
			r.logger.Error("Failed to cancel order", "exchange_id", o.ExchangeID, "error", err)
			continue
		}
		r.transition(ctx, &o, core.StatusCancelled, now)
		r.release(localID)
		delete(r.orders, localID)
		rep.Cancelled++
	}
}

// placeRefills converts each fill seen this tick into a same-price,
// same-size order on the opposite side. A filled buy leaves base
// inventory the sell at the same rung disposes of, and a filled sell
// frees quote the buy re-deploys.
func (r *Reconciler) placeRefills(ctx context.Context, now time.Time, rep *Report) {
	pending := r.pendingRefills
	r.pendingRefills = nil

	for _, filled := range pending {
		side := filled.Side.Opposite()
		if !r.deps.Guard.PermitReplacement(r.cfg.Pair, side, r.prices) {
			rep.GuardVetoes++
			r.logger.Info("Trend guard vetoed refill",
				"side", side, "price", filled.Price.String())
			continue
		}
		r.submitOrder(ctx, core.Order{
			LocalID:   uuid.NewString(),
			Pair:      filled.Pair,
			Side:      side,
			Price:     filled.Price,
			Size:      filled.Size,
			Level:     -1,
			Status:    core.StatusPending,
			CreatedAt: now,
		}, now, rep)
	}
}

// placeVacantLevels submits one order per active level that has no
// occupant. Unknown orders count as occupants so a level is never
// double-placed while an outcome is unresolved, and a rung whose price
// is held by a resting refill on the opposite side stays vacant until
// that refill resolves.
func (r *Reconciler) placeVacantLevels(ctx context.Context, now time.Time, rep *Report) {
	occupied := make(map[levelKey]bool)
	heldPrices := make(map[string]bool)
	for _, o := range r.orders {
		if o.Status.Terminal() {
			continue
		}
		heldPrices[o.Price.String()] = true
		if o.Level >= 0 {
			occupied[levelKey{o.Side, o.Level}] = true
		}
	}

	for i := range r.levels {
		lv := &r.levels[i]
		if lv.State == core.LevelSkipped {
			continue
		}
		if lv.State == core.LevelSkippedRetry && now.Before(lv.RetryAt) {
			continue
		}
		if occupied[levelKey{lv.Side, lv.Index}] || heldPrices[lv.Price.String()] {
			continue
		}
		if !r.deps.Guard.PermitReplacement(r.cfg.Pair, lv.Side, r.prices) {
			rep.GuardVetoes++
			continue
		}
		r.placeLevel(ctx, lv, now, rep)
	}
}

func (r *Reconciler) placeLevel(ctx context.Context, lv *core.GridLevel, now time.Time, rep *Report) {
	order := core.Order{
		LocalID:   uuid.NewString(),
		Pair:      r.cfg.Pair.Pair,
		Side:      lv.Side,
		Price:     lv.Price,
		Size:      lv.Size,
		Level:     lv.Index,
		Status:    core.StatusPending,
		CreatedAt: now,
	}

	switch r.submitOrder(ctx, order, now, rep) {
	case submitOK:
		lv.State = core.LevelActive
		lv.RetryCount = 0
	case submitRejected:
		lv.RetryCount++
		lv.RetryAt = now.Add(r.levelBackoff(lv.RetryCount))
		lv.State = core.LevelSkippedRetry
		r.logger.Warn("Level backing off after rejection",
			"side", lv.Side, "index", lv.Index, "retry_at", lv.RetryAt)
	}
}

type submitResult int

const (
	submitOK submitResult = iota
	submitRejected
	submitSkipped
	submitUnknown
)

// submitOrder reserves capital, records the order Pending, then
// submits it. The Pending record precedes the network call so a crash
// between the two leaves a row the next run resolves instead of a
// silent orphan on the venue.
func (r *Reconciler) submitOrder(ctx context.Context, order core.Order, now time.Time, rep *Report) submitResult {
	pair := r.cfg.Pair.Pair

	res := r.reservationFor(order)
	if err := r.deps.Capital.Reserve(res.asset, res.amount); err != nil {
		rep.CapitalSkips++
		r.logger.Debug("Capital exhausted",
			"side", order.Side, "level", order.Level, "asset", res.asset)
		return submitSkipped
	}

	if err := r.deps.Ledger.RecordOrder(ctx, order); err != nil {
		r.deps.Capital.Release(res.asset, res.amount)
		r.logger.Error("Failed to record pending order", "error", err)
		return submitSkipped
	}
	r.reserved[order.LocalID] = res

	var exchangeID string
	err := retry.Do(ctx, retry.Placement, apperrors.IsTransient, func() error {
		id, placeErr := r.deps.Exchange.PlaceOrder(ctx, pair, order.Side, order.Price, order.Size)
		if placeErr != nil {
			return placeErr
		}
		exchangeID = id
		return nil
	})

	if err != nil {
		if apperrors.IsRejection(err) {
			r.transition(ctx, &order, core.StatusRejected, now)
			r.release(order.LocalID)
			rep.Rejected++
			r.logger.Warn("Order rejected",
				"side", order.Side,
				"price", order.Price.String(),
				"error", err)
			return submitRejected
		}
		if errors.Is(err, apperrors.ErrAuthenticationFailed) {
			// Auth is checked before order acceptance, so nothing
			// landed on the venue. Not retryable without operator
			// action.
			r.transition(ctx, &order, core.StatusRejected, now)
			r.release(order.LocalID)
			rep.Rejected++
			if !r.authAlerted && r.deps.Alerts != nil {
				r.authAlerted = true
				r.deps.Alerts.Alert(ctx, "Exchange authentication failed",
					fmt.Sprintf("Placement on %s rejected for bad credentials; trading is stalled until credentials are fixed", pair),
					alert.Critical, map[string]string{"pair": pair.String()})
			}
			r.logger.Error("Placement failed authentication", "error", err)
			return submitSkipped
		}

		// The venue may or may not have accepted the order. Keep it as
		// Unknown with its capital held; the next tick matches it
		// against live orders or the trade history.
		order.Status = core.StatusUnknown
		if uerr := r.deps.Ledger.UpdateOrderStatus(ctx, order.LocalID, core.StatusUnknown, "", now); uerr != nil {
			r.logger.Error("Failed to mark order unknown", "local_id", order.LocalID, "error", uerr)
		}
		r.orders[order.LocalID] = order
		rep.Unknown++
		r.logger.Warn("Placement outcome unknown",
			"side", order.Side, "price", order.Price.String(), "error", err)
		return submitUnknown
	}

	order.ExchangeID = exchangeID
	r.transition(ctx, &order, core.StatusOpen, now)
	r.orders[order.LocalID] = order
	r.authAlerted = false
	rep.Placed++
	if m := telemetry.GetGlobalMetrics(); m.OrdersPlacedTotal != nil {
		m.OrdersPlacedTotal.Add(ctx, 1)
	}
	r.logger.Info("Placed order",
		"side", order.Side,
		"price", order.Price.String(),
		"size", order.Size.String(),
		"level", order.Level,
		"exchange_id", exchangeID)
	return submitOK
}

func (r *Reconciler) recordFill(ctx context.Context, o core.Order, t core.Trade, rep *Report) {
	exec, err := r.deps.Recorder.RecordExecution(ctx, o, t)
	if errors.Is(err, apperrors.ErrDuplicateTrade) {
		return
	}
	if err != nil {
		r.logger.Error("Failed to record execution", "trade_id", t.TradeID, "error", err)
		return
	}
	if exec.RealizedPnL.Valid {
		rep.Realized = rep.Realized.Add(exec.RealizedPnL.Decimal)
	}
}

// markUnknown flags an order the venue cannot account for. The order
// keeps its level and capital until resolved; after UnknownRetryLimit
// consecutive ticks an operator alert goes out once.
func (r *Reconciler) markUnknown(ctx context.Context, o *core.Order, now time.Time, rep *Report) {
	if o.Status != core.StatusUnknown {
		o.Status = core.StatusUnknown
		if err := r.deps.Ledger.UpdateOrderStatus(ctx, o.LocalID, core.StatusUnknown, o.ExchangeID, now); err != nil {
			r.logger.Error("Failed to mark order unknown", "local_id", o.LocalID, "error", err)
		}
		r.logger.Warn("Order missing from venue with no matching trade",
			"local_id", o.LocalID, "exchange_id", o.ExchangeID)
	}

	r.unknownRetries[o.LocalID]++
	if r.unknownRetries[o.LocalID] == r.cfg.UnknownRetryLimit && r.deps.Alerts != nil {
		r.deps.Alerts.Alert(ctx, "Order stuck in unknown state",
			fmt.Sprintf("Order %s on %s has been unresolved for %d ticks", o.LocalID, o.Pair, r.cfg.UnknownRetryLimit),
			alert.Warning,
			map[string]string{
				"pair":        o.Pair.String(),
				"local_id":    o.LocalID,
				"exchange_id": o.ExchangeID,
			})
	}
	rep.Unknown++
}

func (r *Reconciler) transition(ctx context.Context, o *core.Order, status core.OrderStatus, now time.Time) {
	o.Status = status
	o.LastSeenAt = now
	if err := r.deps.Ledger.UpdateOrderStatus(ctx, o.LocalID, status, o.ExchangeID, now); err != nil {
		r.logger.Error("Failed to persist order status",
			"local_id", o.LocalID, "status", status, "error", err)
	}
}

// claimMatch finds a live order matching the side, price, and size of
// a local order whose placement ack was lost.
func (r *Reconciler) claimMatch(o core.Order, liveByID map[string]core.Order) (string, bool) {
	for id, lo := range liveByID {
		if lo.Side == o.Side && lo.Price.Equal(o.Price) && lo.Size.Equal(o.Size) {
			return id, true
		}
	}
	return "", false
}

// pinLevel returns the index of the nearest vacant planned level on
// the order's side within half a grid spacing, or -1. A rung with a
// non-terminal occupant is never doubled up; each (side, level) holds
// at most one working order.
func (r *Reconciler) pinLevel(o core.Order) int {
	occupied := make(map[levelKey]bool)
	for _, t := range r.orders {
		if t.Level >= 0 && !t.Status.Terminal() {
			occupied[levelKey{t.Side, t.Level}] = true
		}
	}

	halfSpacing := r.cfg.Pair.Spacing.Div(two)
	best := -1
	var bestDist decimal.Decimal
	for _, lv := range r.levels {
		if lv.Side != o.Side || !lv.Price.IsPositive() {
			continue
		}
		if occupied[levelKey{lv.Side, lv.Index}] {
			continue
		}
		dist := o.Price.Sub(lv.Price).Abs().Div(lv.Price)
		if dist.GreaterThan(halfSpacing) {
			continue
		}
		if best == -1 || dist.LessThan(bestDist) {
			best = lv.Index
			bestDist = dist
		}
	}
	return best
}

// reservationFor maps an order to the asset and amount it ties up: the
// quote cost for buys, the base quantity for sells.
func (r *Reconciler) reservationFor(o core.Order) reservation {
	if o.Side == core.SideBuy {
		return reservation{asset: o.Pair.Quote, amount: o.Price.Mul(o.Size)}
	}
	return reservation{asset: o.Pair.Base, amount: o.Size}
}

func (r *Reconciler) release(localID string) {
	res, ok := r.reserved[localID]
	if !ok {
		return
	}
	r.deps.Capital.Release(res.asset, res.amount)
	delete(r.reserved, localID)
}

func (r *Reconciler) levelBackoff(retries int) time.Duration {
	backoff := r.cfg.TickInterval
	for i := 1; i < retries; i++ {
		backoff *= 2
		if backoff >= r.cfg.MaxLevelBackoff {
			return r.cfg.MaxLevelBackoff
		}
	}
	if backoff > r.cfg.MaxLevelBackoff {
		backoff = r.cfg.MaxLevelBackoff
	}
	return backoff
}

func (r *Reconciler) orderIDs() []string {
	ids := make([]string, 0, len(r.orders))
	for id := range r.orders {
		ids = append(ids, id)
	}
	return ids
}

func (r *Reconciler) pushPrice(p decimal.Decimal, at time.Time) {
	r.prices = append(r.prices, core.PricePoint{Time: at, Price: p})
	limit := r.cfg.Pair.TrendLookback
	if limit < 16 {
		limit = 16
	}
	if len(r.prices) > limit {
		r.prices = r.prices[len(r.prices)-limit:]
	}
}
