package grid

import (
	"testing"

	"gridbot/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xrpConfig() core.TradingPairConfig {
	pair, _ := core.ParsePair("XRP/BTC")
	return core.TradingPairConfig{
		Pair:          pair,
		Spacing:       decimal.RequireFromString("0.015"),
		LevelsPerSide: 3,
	}
}

func levelsBySide(levels []core.GridLevel, side core.Side) []core.GridLevel {
	var out []core.GridLevel
	for _, lv := range levels {
		if lv.Side == side {
			out = append(out, lv)
		}
	}
	return out
}

func TestPlan_CompoundedPrices(t *testing.T) {
	cfg := xrpConfig()
	mid := decimal.RequireFromString("0.0006")
	capital := decimal.RequireFromString("0.00228")

	levels, err := Plan(cfg, mid, capital, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, levels, 6)

	buys := levelsBySide(levels, core.SideBuy)
	sells := levelsBySide(levels, core.SideSell)
	require.Len(t, buys, 3)
	require.Len(t, sells, 3)

	// Each rung compounds off the previous one: p_i = p_{i-1} * (1 -/+ s).
	wantBuys := []string{"0.000591", "0.000582135", "0.000573402975"}
	wantSells := []string{"0.000609", "0.000618135", "0.000627407025"}
	for i := range wantBuys {
		assert.Equal(t, wantBuys[i], buys[i].Price.String(), "buy level %d", i)
		assert.Equal(t, wantSells[i], sells[i].Price.String(), "sell level %d", i)
		assert.Equal(t, i, buys[i].Index)
		assert.Equal(t, i, sells[i].Index)
	}

	// Capital splits evenly across the buy side; sell sizes mirror it.
	perLevel := capital.Div(decimal.NewFromInt(3))
	for i := range buys {
		want := perLevel.Div(buys[i].Price)
		assert.True(t, buys[i].Size.Equal(want), "buy size %d = %s, want %s", i, buys[i].Size, want)
		assert.True(t, sells[i].Size.Equal(want), "sell size %d mirrors buy", i)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	cfg := xrpConfig()
	mid := decimal.RequireFromString("0.0006")
	capital := decimal.RequireFromString("0.00228")
	minSize := decimal.NewFromInt(1)

	first, err := Plan(cfg, mid, capital, minSize)
	require.NoError(t, err)
	second, err := Plan(cfg, mid, capital, minSize)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Side, second[i].Side)
		assert.Equal(t, first[i].Index, second[i].Index)
		assert.Equal(t, first[i].State, second[i].State)
		assert.Equal(t, first[i].Price.String(), second[i].Price.String())
		assert.Equal(t, first[i].Size.String(), second[i].Size.String())
	}
}

func TestPlan_SubMinimumSkipped(t *testing.T) {
	cfg := xrpConfig()
	mid := decimal.RequireFromString("0.0006")
	capital := decimal.RequireFromString("0.00228")

	// Per-level size is roughly 1.3 XRP; a 10 XRP minimum skips all.
	levels, err := Plan(cfg, mid, capital, decimal.NewFromInt(10))
	require.NoError(t, err)
	for _, lv := range levels {
		assert.Equal(t, core.LevelSkipped, lv.State)
	}

	// Sizes are never rounded up to meet the minimum.
	perLevel := capital.Div(decimal.NewFromInt(3))
	first := levelsBySide(levels, core.SideBuy)[0]
	assert.True(t, first.Size.Equal(perLevel.Div(first.Price)))
}

func TestPlan_ZeroCapital(t *testing.T) {
	cfg := xrpConfig()
	levels, err := Plan(cfg, decimal.RequireFromString("0.0006"), decimal.Zero, decimal.RequireFromString("0.001"))
	require.NoError(t, err)
	for _, lv := range levels {
		assert.Equal(t, core.LevelSkipped, lv.State)
		assert.True(t, lv.Size.IsZero())
	}
}

func TestPlan_InvalidInputs(t *testing.T) {
	cfg := xrpConfig()
	_, err := Plan(cfg, decimal.Zero, decimal.NewFromInt(1), decimal.Zero)
	assert.Error(t, err)

	bad := cfg
	bad.LevelsPerSide = 0
	_, err = Plan(bad, decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero)
	assert.Error(t, err)
}

func TestCenterAndDrift(t *testing.T) {
	cfg := xrpConfig()
	mid := decimal.RequireFromString("0.0006")

	levels, err := Plan(cfg, mid, decimal.RequireFromString("0.00228"), decimal.Zero)
	require.NoError(t, err)

	center := Center(cfg, levels)
	assert.True(t, center.Equal(mid), "center = %s, want %s", center, mid)

	assert.True(t, Drift(center, mid).IsZero())

	moved := decimal.RequireFromString("0.00063")
	// |0.00063 - 0.0006| / 0.0006 = 0.05
	assert.Equal(t, "0.05", Drift(center, moved).String())

	assert.True(t, Drift(decimal.Zero, moved).IsZero())
}
