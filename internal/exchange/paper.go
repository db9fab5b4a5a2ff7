package exchange

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"gridbot/internal/core"
	"gridbot/internal/mock"

	"github.com/shopspring/decimal"
)

// Paper is a simulated venue for paper trading. It extends the
// in-memory exchange with a random-walk price per pair and fills limit
// orders the walk crosses. Balances are seeded generously and never
// debited; paper mode validates engine behavior, not solvency.
type Paper struct {
	*mock.Exchange

	mu    sync.Mutex
	mids  map[core.Pair]decimal.Decimal
	step  decimal.Decimal
	cycle time.Duration
	rng   *rand.Rand
}

// NewPaper seeds every pair at startMid and funds both assets of each
// pair.
func NewPaper(pairs []core.Pair, startMid decimal.Decimal, cycle time.Duration) *Paper {
	p := &Paper{
		Exchange: mock.NewExchange(),
		mids:     make(map[core.Pair]decimal.Decimal, len(pairs)),
		step:     decimal.RequireFromString("0.004"),
		cycle:    cycle,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	funding := decimal.NewFromInt(10000)
	for _, pair := range pairs {
		p.mids[pair] = startMid
		p.SetTicker(core.Ticker{Pair: pair, Last: startMid})
		p.SetBalance(pair.Base, funding, decimal.Zero)
		p.SetBalance(pair.Quote, funding, decimal.Zero)
	}
	return p
}

// Run implements bootstrap.Runner, advancing the walk until shutdown.
func (p *Paper) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Advance()
		}
	}
}

// Advance moves every pair's mid by a random fraction within ±step and
// fills the resting orders the new price crossed.
func (p *Paper) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()

	one := decimal.NewFromInt(1)
	two := decimal.NewFromInt(2)
	for pair, mid := range p.mids {
		move := p.step.Mul(decimal.NewFromFloat(p.rng.Float64()).Mul(two).Sub(one))
		next := mid.Mul(one.Add(move))
		p.mids[pair] = next
		p.SetTicker(core.Ticker{Pair: pair, Last: next})
		p.fillCrossed(pair, next)
	}
}

func (p *Paper) fillCrossed(pair core.Pair, mid decimal.Decimal) {
	open, err := p.GetOpenOrders(context.Background(), pair)
	if err != nil {
		return
	}
	now := time.Now()
	for _, o := range open {
		crossed := (o.Side == core.SideBuy && mid.LessThanOrEqual(o.Price)) ||
			(o.Side == core.SideSell && mid.GreaterThanOrEqual(o.Price))
		if crossed {
			_, _ = p.Fill(o.ExchangeID, now)
		}
	}
}
