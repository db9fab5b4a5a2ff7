package pnl

import (
	"sync"

	"gridbot/internal/core"

	"github.com/shopspring/decimal"
)

// lot is an open buy quantity at its purchase price.
type lot struct {
	price     decimal.Decimal
	remaining decimal.Decimal
}

// fifoBook holds the open buy lots per pair, oldest first. All methods
// suffixed Locked require book.mu held.
type fifoBook struct {
	mu   sync.Mutex
	lots map[core.Pair][]lot
}

func newFifoBook() *fifoBook {
	return &fifoBook{lots: make(map[core.Pair][]lot)}
}

func (b *fifoBook) addLocked(pair core.Pair, price, size decimal.Decimal) {
	b.lots[pair] = append(b.lots[pair], lot{price: price, remaining: size})
}

// previewLocked computes the gross realized PnL of selling size at
// price against the current lots without consuming them. Quantity
// beyond the recorded basis realizes nothing.
func (b *fifoBook) previewLocked(pair core.Pair, price, size decimal.Decimal) decimal.Decimal {
	realized := decimal.Zero
	remaining := size
	for _, l := range b.lots[pair] {
		if !remaining.IsPositive() {
			break
		}
		qty := decimal.Min(remaining, l.remaining)
		realized = realized.Add(price.Sub(l.price).Mul(qty))
		remaining = remaining.Sub(qty)
	}
	return realized
}

// consumeLocked removes size from the oldest lots of pair.
func (b *fifoBook) consumeLocked(pair core.Pair, size decimal.Decimal) {
	remaining := size
	lots := b.lots[pair]
	i := 0
	for i < len(lots) && remaining.IsPositive() {
		qty := decimal.Min(remaining, lots[i].remaining)
		lots[i].remaining = lots[i].remaining.Sub(qty)
		remaining = remaining.Sub(qty)
		if lots[i].remaining.IsPositive() {
			break
		}
		i++
	}
	b.lots[pair] = lots[i:]
}

// openQuantity returns the total open buy quantity for pair.
func (b *fifoBook) openQuantity(pair core.Pair) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := decimal.Zero
	for _, l := range b.lots[pair] {
		total = total.Add(l.remaining)
	}
	return total
}
