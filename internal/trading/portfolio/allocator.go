// Package portfolio converts raw exchange balances into per-pair
// deployable capital and serializes capital commitment across pairs
// that share a funding asset.
package portfolio

import (
	"gridbot/internal/core"
	apperrors "gridbot/pkg/errors"

	"github.com/shopspring/decimal"
)

// Allocator applies reserve and allocation-ratio policy to balances.
type Allocator struct {
	configs []core.TradingPairConfig
}

func NewAllocator(configs []core.TradingPairConfig) *Allocator {
	return &Allocator{configs: configs}
}

// ComputeAvailable returns available = total - locked (clamped at
// zero) for every asset in raw, plus the set of required assets the
// response omits. An omitted asset is never silently zeroed, that
// would over-size orders on the other side; a pair opts into zeroing
// per asset with treat_missing_as_zero.
func (a *Allocator) ComputeAvailable(raw map[string]core.Balance) (map[string]decimal.Decimal, map[string]bool) {
	available := make(map[string]decimal.Decimal, len(raw))
	for asset, b := range raw {
		available[asset] = b.Available()
	}

	missing := make(map[string]bool)
	for _, cfg := range a.configs {
		for _, asset := range []string{cfg.Pair.Base, cfg.Pair.Quote} {
			if _, ok := available[asset]; ok {
				continue
			}
			if cfg.TreatMissingAsZero {
				available[asset] = decimal.Zero
				continue
			}
			missing[asset] = true
		}
	}

	return available, missing
}

// AllocateCapital computes quote-asset capital per pair:
// available * allocation * (1 - reserve).
func (a *Allocator) AllocateCapital(available map[string]decimal.Decimal) map[core.Pair]decimal.Decimal {
	out := make(map[core.Pair]decimal.Decimal, len(a.configs))
	one := decimal.NewFromInt(1)
	for _, cfg := range a.configs {
		avail := available[cfg.Pair.Quote]
		out[cfg.Pair] = avail.Mul(cfg.AllocationFraction).Mul(one.Sub(cfg.ReserveFraction))
	}
	return out
}

// Snapshot is an immutable per-tick view of balances and the capital
// derived from them. Ticks read a snapshot; they never mutate one.
// Missing lists required assets the balance response omitted; pairs
// touching one carry no capital figure while the rest stay current.
type Snapshot struct {
	Balances  map[string]core.Balance
	Available map[string]decimal.Decimal
	Capital   map[core.Pair]decimal.Decimal
	Missing   map[string]bool
}

// Snapshot derives a capital snapshot from raw balances. A missing
// required asset strands only the pairs funded by it.
func (a *Allocator) Snapshot(raw map[string]core.Balance) *Snapshot {
	available, missing := a.ComputeAvailable(raw)

	capital := a.AllocateCapital(available)
	for _, cfg := range a.configs {
		if missing[cfg.Pair.Base] || missing[cfg.Pair.Quote] {
			delete(capital, cfg.Pair)
		}
	}

	balances := make(map[string]core.Balance, len(raw))
	for k, v := range raw {
		balances[k] = v
	}
	return &Snapshot{
		Balances:  balances,
		Available: available,
		Capital:   capital,
		Missing:   missing,
	}
}

// MissingAsset returns one required asset absent from the balance
// response, if any.
func (s *Snapshot) MissingAsset() (string, bool) {
	for asset := range s.Missing {
		return asset, true
	}
	return "", false
}

// CapitalFor implements core.CapitalSource over the snapshot.
func (s *Snapshot) CapitalFor(pair core.Pair) (decimal.Decimal, error) {
	capital, ok := s.Capital[pair]
	if !ok {
		asset := pair.Quote
		if s.Missing[pair.Base] {
			asset = pair.Base
		}
		return decimal.Zero, &apperrors.InsufficientDataError{Asset: asset}
	}
	return capital, nil
}
