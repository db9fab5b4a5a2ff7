package portfolio

import (
	"sync"

	apperrors "gridbot/pkg/errors"

	"github.com/shopspring/decimal"
)

// CapitalBook tracks capital committed per asset across all pairs.
// Pairs sharing a funding asset reserve through the same book, so two
// concurrent ticks can never over-commit it.
type CapitalBook struct {
	mu        sync.Mutex
	ceilings  map[string]decimal.Decimal
	committed map[string]decimal.Decimal
}

func NewCapitalBook() *CapitalBook {
	return &CapitalBook{
		ceilings:  make(map[string]decimal.Decimal),
		committed: make(map[string]decimal.Decimal),
	}
}

// SetCeiling updates the deployable ceiling for an asset. The engine
// refreshes ceilings from each balance snapshot.
func (b *CapitalBook) SetCeiling(asset string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ceilings[asset] = amount
}

// Reserve commits amount of asset, failing with ErrInsufficientFunds
// when commitment would exceed the ceiling.
func (b *CapitalBook) Reserve(asset string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ceiling, ok := b.ceilings[asset]
	if !ok {
		return apperrors.ErrInsufficientFunds
	}
	next := b.committed[asset].Add(amount)
	if next.GreaterThan(ceiling) {
		return apperrors.ErrInsufficientFunds
	}
	b.committed[asset] = next
	return nil
}

// Release returns previously reserved capital. Committed never drops
// below zero.
func (b *CapitalBook) Release(asset string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.committed[asset].Sub(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	b.committed[asset] = next
}

// Committed returns the amount currently committed for an asset.
func (b *CapitalBook) Committed(asset string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed[asset]
}
