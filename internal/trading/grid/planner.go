// Package grid computes the price levels and order sizes of a grid.
// Planning is pure: identical inputs always yield an identical level
// sequence, including Skipped markings.
package grid

import (
	"fmt"

	"gridbot/internal/core"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Plan computes levelsPerSide buy and sell rungs around mid. Prices
// compound outward: each rung is the previous one scaled by
// (1 - spacing) on the buy side and (1 + spacing) on the sell side.
// Quote capital is split evenly across the buy rungs and converted to
// base quantity at each rung's price; sell rungs mirror the buy sizes
// so a round trip returns the grid to its starting inventory.
//
// A rung whose size falls below minOrderSize is marked Skipped rather
// than rounded up; callers log it as a visible condition.
func Plan(cfg core.TradingPairConfig, mid, capital, minOrderSize decimal.Decimal) ([]core.GridLevel, error) {
	if !mid.IsPositive() {
		return nil, fmt.Errorf("mid price must be positive, got %s", mid)
	}
	if cfg.LevelsPerSide < 1 {
		return nil, fmt.Errorf("levels per side must be at least 1, got %d", cfg.LevelsPerSide)
	}
	if capital.IsNegative() {
		capital = decimal.Zero
	}

	perLevelQuote := capital.Div(decimal.NewFromInt(int64(cfg.LevelsPerSide)))

	down := one.Sub(cfg.Spacing)
	up := one.Add(cfg.Spacing)

	levels := make([]core.GridLevel, 0, cfg.LevelsPerSide*2)

	buyPrice := mid
	sellPrice := mid
	for i := 0; i < cfg.LevelsPerSide; i++ {
		buyPrice = buyPrice.Mul(down)
		sellPrice = sellPrice.Mul(up)

		size := decimal.Zero
		if buyPrice.IsPositive() {
			size = perLevelQuote.Div(buyPrice)
		}

		buy := core.GridLevel{
			Side:  core.SideBuy,
			Index: i,
			Price: buyPrice,
			Size:  size,
			State: core.LevelActive,
		}
		sell := core.GridLevel{
			Side:  core.SideSell,
			Index: i,
			Price: sellPrice,
			Size:  size,
			State: core.LevelActive,
		}
		if size.LessThan(minOrderSize) {
			buy.State = core.LevelSkipped
			sell.State = core.LevelSkipped
		}

		levels = append(levels, buy, sell)
	}

	return levels, nil
}

// Center returns the mid-price a level set was planned around, derived
// from the innermost buy rung. Returns zero for an empty plan.
func Center(cfg core.TradingPairConfig, levels []core.GridLevel) decimal.Decimal {
	for _, lv := range levels {
		if lv.Side == core.SideBuy && lv.Index == 0 {
			down := one.Sub(cfg.Spacing)
			if down.IsZero() {
				return decimal.Zero
			}
			return lv.Price.Div(down)
		}
	}
	return decimal.Zero
}

// Drift returns |mid - center| / center, the fraction the market has
// moved away from the planned center.
func Drift(center, mid decimal.Decimal) decimal.Decimal {
	if !center.IsPositive() {
		return decimal.Zero
	}
	return mid.Sub(center).Abs().Div(center)
}
