package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersPlacedTotal  = "gridbot_orders_placed_total"
	MetricOrdersFilledTotal  = "gridbot_orders_filled_total"
	MetricOrdersAdoptedTotal = "gridbot_orders_adopted_total"
	MetricExecutionsTotal    = "gridbot_executions_total"
	MetricPnLRealizedTotal   = "gridbot_pnl_realized_total"
	MetricLevelsSkippedTotal = "gridbot_levels_skipped_total"
	MetricTickDuration       = "gridbot_tick_duration_ms"
	MetricTickStallsTotal    = "gridbot_tick_stalls_total"
	MetricOrdersActive       = "gridbot_orders_active"
	MetricSessionPnL         = "gridbot_session_pnl"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	OrdersPlacedTotal  metric.Int64Counter
	OrdersFilledTotal  metric.Int64Counter
	OrdersAdoptedTotal metric.Int64Counter
	ExecutionsTotal    metric.Int64Counter
	PnLRealizedTotal   metric.Float64Counter
	LevelsSkippedTotal metric.Int64Counter
	TickDuration       metric.Float64Histogram
	TickStallsTotal    metric.Int64Counter
	OrdersActive       metric.Int64ObservableGauge
	SessionPnL         metric.Float64ObservableGauge

	// State for observable gauges
	mu              sync.RWMutex
	activeOrdersMap map[string]int64
	sessionPnL      float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			activeOrdersMap: make(map[string]int64),
		}
		// Instruments are created in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed"))
	if err != nil {
		return err
	}

	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders detected filled"))
	if err != nil {
		return err
	}

	m.OrdersAdoptedTotal, err = meter.Int64Counter(MetricOrdersAdoptedTotal, metric.WithDescription("Live orders adopted without a local match"))
	if err != nil {
		return err
	}

	m.ExecutionsTotal, err = meter.Int64Counter(MetricExecutionsTotal, metric.WithDescription("Total executions recorded to the ledger"))
	if err != nil {
		return err
	}

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss"))
	if err != nil {
		return err
	}

	m.LevelsSkippedTotal, err = meter.Int64Counter(MetricLevelsSkippedTotal, metric.WithDescription("Grid levels skipped, by reason"))
	if err != nil {
		return err
	}

	m.TickDuration, err = meter.Float64Histogram(MetricTickDuration, metric.WithDescription("Duration of a reconciliation tick"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.TickStallsTotal, err = meter.Int64Counter(MetricTickStallsTotal, metric.WithDescription("Ticks skipped because the previous tick was still running"))
	if err != nil {
		return err
	}

	m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive, metric.WithDescription("Number of currently open orders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for pair, val := range m.activeOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("pair", pair)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.SessionPnL, err = meter.Float64ObservableGauge(MetricSessionPnL, metric.WithDescription("Realized PnL since engine start"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.sessionPnL)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetActiveOrders(pair string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[pair] = count
}

func (m *MetricsHolder) SetSessionPnL(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionPnL = value
}

func (m *MetricsHolder) GetActiveOrders() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.activeOrdersMap {
		res[k] = v
	}
	return res
}
