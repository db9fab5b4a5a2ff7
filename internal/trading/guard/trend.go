// Package guard holds the rebalance/trend policy that can veto order
// replacement. The guard is a pure function over the rolling price
// window; it keeps no state of its own.
package guard

import (
	"gridbot/internal/core"
)

// TrendGuard withholds replacement on a side while price moves
// monotonically against it beyond the configured threshold. It
// protects against repeatedly buying into a sustained downtrend or
// selling into a sustained uptrend.
type TrendGuard struct{}

func NewTrendGuard() *TrendGuard {
	return &TrendGuard{}
}

// PermitReplacement reports whether side may receive new orders given
// the recent price window. With trend protection disabled it always
// permits. The window is expected oldest-first; only the last
// TrendLookback samples are considered.
func (g *TrendGuard) PermitReplacement(cfg core.TradingPairConfig, side core.Side, window []core.PricePoint) bool {
	if !cfg.TrendProtection {
		return true
	}
	if cfg.TrendLookback < 2 || len(window) < cfg.TrendLookback {
		// Not enough samples to call a trend.
		return true
	}

	samples := window[len(window)-cfg.TrendLookback:]

	monotonic := true
	falling := side == core.SideBuy
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1].Price, samples[i].Price
		if falling {
			if !cur.LessThan(prev) {
				monotonic = false
				break
			}
		} else {
			if !cur.GreaterThan(prev) {
				monotonic = false
				break
			}
		}
	}
	if !monotonic {
		return true
	}

	first := samples[0].Price
	last := samples[len(samples)-1].Price
	if !first.IsPositive() {
		return true
	}

	move := last.Sub(first).Div(first).Abs()
	return move.LessThan(cfg.TrendThreshold)
}
