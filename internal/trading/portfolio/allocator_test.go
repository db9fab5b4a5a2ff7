package portfolio

import (
	"errors"
	"testing"

	"gridbot/internal/core"
	apperrors "gridbot/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairConfig(pair string, alloc, reserve float64, missingAsZero bool) core.TradingPairConfig {
	p, _ := core.ParsePair(pair)
	return core.TradingPairConfig{
		Pair:               p,
		Spacing:            decimal.NewFromFloat(0.015),
		LevelsPerSide:      3,
		AllocationFraction: decimal.NewFromFloat(alloc),
		ReserveFraction:    decimal.NewFromFloat(reserve),
		TreatMissingAsZero: missingAsZero,
	}
}

func TestComputeAvailable(t *testing.T) {
	a := NewAllocator([]core.TradingPairConfig{pairConfig("XRP/BTC", 0.6, 0.05, false)})

	raw := map[string]core.Balance{
		"BTC": {Total: decimal.RequireFromString("0.01"), Locked: decimal.RequireFromString("0.006")},
		"XRP": {Total: decimal.NewFromInt(100), Locked: decimal.NewFromInt(120)},
	}

	available, missing := a.ComputeAvailable(raw)
	assert.Empty(t, missing)

	// 0.01 - 0.006 = 0.004
	assert.Equal(t, "0.004", available["BTC"].String())
	// Locked above total clamps to zero instead of going negative.
	assert.True(t, available["XRP"].IsZero())
}

func TestComputeAvailable_MissingAsset(t *testing.T) {
	a := NewAllocator([]core.TradingPairConfig{pairConfig("XRP/BTC", 0.6, 0.05, false)})

	available, missing := a.ComputeAvailable(map[string]core.Balance{
		"BTC": {Total: decimal.NewFromInt(1)},
	})
	assert.True(t, missing["XRP"])
	_, ok := available["XRP"]
	assert.False(t, ok, "a missing asset is flagged, never silently zeroed")
}

func TestComputeAvailable_MissingAsZeroOptIn(t *testing.T) {
	a := NewAllocator([]core.TradingPairConfig{pairConfig("XRP/BTC", 0.6, 0.05, true)})

	available, missing := a.ComputeAvailable(map[string]core.Balance{
		"BTC": {Total: decimal.NewFromInt(1)},
	})
	assert.Empty(t, missing)
	assert.True(t, available["XRP"].IsZero())
}

func TestAllocateCapital(t *testing.T) {
	a := NewAllocator([]core.TradingPairConfig{
		pairConfig("XRP/BTC", 0.6, 0.05, false),
		pairConfig("ADA/BTC", 0.3, 0.05, true),
	})

	available := map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("0.004"),
		"XRP": decimal.NewFromInt(100),
		"ADA": decimal.NewFromInt(50),
	}

	capital := a.AllocateCapital(available)

	// 0.004 * 0.6 * 0.95 = 0.00228
	xrp, _ := core.ParsePair("XRP/BTC")
	assert.Equal(t, "0.00228", capital[xrp].String())
	// 0.004 * 0.3 * 0.95 = 0.00114
	ada, _ := core.ParsePair("ADA/BTC")
	assert.Equal(t, "0.00114", capital[ada].String())
}

func TestSnapshot_CapitalFor(t *testing.T) {
	a := NewAllocator([]core.TradingPairConfig{pairConfig("XRP/BTC", 0.6, 0.05, true)})

	snap := a.Snapshot(map[string]core.Balance{
		"BTC": {Total: decimal.RequireFromString("0.01"), Locked: decimal.RequireFromString("0.006")},
	})

	xrp, _ := core.ParsePair("XRP/BTC")
	capital, err := snap.CapitalFor(xrp)
	require.NoError(t, err)
	assert.Equal(t, "0.00228", capital.String())

	eth, _ := core.ParsePair("ETH/BTC")
	_, err = snap.CapitalFor(eth)
	var dataErr *apperrors.InsufficientDataError
	assert.True(t, errors.As(err, &dataErr))
}

func TestSnapshot_MissingAssetStrandsOnlyItsPairs(t *testing.T) {
	a := NewAllocator([]core.TradingPairConfig{
		pairConfig("XRP/BTC", 0.6, 0.05, false),
		pairConfig("ADA/BTC", 0.3, 0.05, false),
	})

	// XRP is absent from the response; the ADA pair must keep trading
	// on its own figures.
	snap := a.Snapshot(map[string]core.Balance{
		"BTC": {Total: decimal.RequireFromString("0.004")},
		"ADA": {Total: decimal.NewFromInt(50)},
	})

	asset, ok := snap.MissingAsset()
	assert.True(t, ok)
	assert.Equal(t, "XRP", asset)

	ada, _ := core.ParsePair("ADA/BTC")
	capital, err := snap.CapitalFor(ada)
	require.NoError(t, err)
	assert.Equal(t, "0.00114", capital.String())

	xrp, _ := core.ParsePair("XRP/BTC")
	_, err = snap.CapitalFor(xrp)
	var dataErr *apperrors.InsufficientDataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, "XRP", dataErr.Asset)
}
