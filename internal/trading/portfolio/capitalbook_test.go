package portfolio

import (
	"errors"
	"sync"
	"testing"

	apperrors "gridbot/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCapitalBook_ReserveRelease(t *testing.T) {
	book := NewCapitalBook()
	book.SetCeiling("BTC", decimal.RequireFromString("0.01"))

	assert.NoError(t, book.Reserve("BTC", decimal.RequireFromString("0.006")))
	assert.NoError(t, book.Reserve("BTC", decimal.RequireFromString("0.004")))

	err := book.Reserve("BTC", decimal.RequireFromString("0.000001"))
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))

	book.Release("BTC", decimal.RequireFromString("0.004"))
	assert.NoError(t, book.Reserve("BTC", decimal.RequireFromString("0.003")))
	assert.Equal(t, "0.009", book.Committed("BTC").String())
}

func TestCapitalBook_UnknownAsset(t *testing.T) {
	book := NewCapitalBook()
	err := book.Reserve("ETH", decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))
}

func TestCapitalBook_ReleaseNeverNegative(t *testing.T) {
	book := NewCapitalBook()
	book.SetCeiling("BTC", decimal.NewFromInt(1))
	book.Release("BTC", decimal.NewFromInt(5))
	assert.True(t, book.Committed("BTC").IsZero())
}

// Concurrent reservations from pairs sharing an asset must never
// exceed the ceiling in aggregate.
func TestCapitalBook_ConcurrentReservations(t *testing.T) {
	book := NewCapitalBook()
	book.SetCeiling("BTC", decimal.NewFromInt(100))

	var wg sync.WaitGroup
	granted := make(chan struct{}, 1000)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if book.Reserve("BTC", decimal.NewFromInt(1)) == nil {
					granted <- struct{}{}
				}
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	assert.Equal(t, 100, count)
	assert.Equal(t, "100", book.Committed("BTC").String())
}
