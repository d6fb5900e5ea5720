package memledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/internal/domain"
)

func TestTransfer(t *testing.T) {
	led := New(Config{SetupCost: 5})
	led.Fund("a", 100)

	ctx := context.Background()
	require.NoError(t, led.Transfer(ctx, "a", "b", 60))

	balA, err := led.Balance(ctx, "a")
	require.NoError(t, err)
	balB, err := led.Balance(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), balA)
	assert.Equal(t, uint64(60), balB)
}

func TestTransferInsufficientFunds(t *testing.T) {
	led := New(Config{})
	led.Fund("a", 10)

	ctx := context.Background()
	err := led.Transfer(ctx, "a", "b", 11)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// A failed transfer moves nothing.
	balA, _ := led.Balance(ctx, "a")
	balB, _ := led.Balance(ctx, "b")
	assert.Equal(t, uint64(10), balA)
	assert.Equal(t, uint64(0), balB)
}

func TestBalanceUnknownAccount(t *testing.T) {
	led := New(Config{})
	bal, err := led.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bal)
}

func TestSetupCostAndClock(t *testing.T) {
	fixed := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	led := New(Config{
		SetupCost: 7,
		Clock:     func() time.Time { return fixed },
	})

	assert.Equal(t, uint64(7), led.SetupCost())
	assert.Equal(t, fixed, led.Now())
}

func TestDeriveMatchesDomain(t *testing.T) {
	led := New(Config{})
	assert.Equal(t,
		domain.DeriveAccount("ns", "vault", "x", "y"),
		led.Derive("ns", "vault", "x", "y"),
	)
}

func TestDoRestoresBalancesOnError(t *testing.T) {
	led := New(Config{})
	led.Fund("a", 100)

	ctx := context.Background()
	err := led.Do(ctx, func(ctx context.Context) error {
		require.NoError(t, led.Transfer(ctx, "a", "b", 60))
		return errors.New("persist failed")
	})
	require.Error(t, err)

	balA, _ := led.Balance(ctx, "a")
	balB, _ := led.Balance(ctx, "b")
	assert.Equal(t, uint64(100), balA)
	assert.Equal(t, uint64(0), balB)
}

func TestDoCommitsOnSuccess(t *testing.T) {
	led := New(Config{})
	led.Fund("a", 100)

	ctx := context.Background()
	err := led.Do(ctx, func(ctx context.Context) error {
		return led.Transfer(ctx, "a", "b", 60)
	})
	require.NoError(t, err)

	balB, _ := led.Balance(ctx, "b")
	assert.Equal(t, uint64(60), balB)
}

func TestConcurrentTransfers(t *testing.T) {
	led := New(Config{})
	led.Fund("a", 1000)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = led.Transfer(ctx, "a", "b", 10)
			}
		}()
	}
	wg.Wait()

	balA, _ := led.Balance(ctx, "a")
	balB, _ := led.Balance(ctx, "b")
	assert.Equal(t, uint64(0), balA)
	assert.Equal(t, uint64(1000), balB)
}
