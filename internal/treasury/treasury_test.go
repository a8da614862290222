package treasury_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/treasury"
)

var acct = common.HexToAddress("0x0000000000000000000000000000000000000042")

func TestLedgerWithdrawDeposit(t *testing.T) {
	ctx := context.Background()
	l := treasury.NewLedger()
	l.Mint(acct, 100)

	require.NoError(t, l.Withdraw(ctx, acct, 60))
	assert.Equal(t, uint64(40), l.Balance(acct))
	assert.Equal(t, uint64(60), l.Escrowed())

	require.NoError(t, l.Deposit(ctx, acct, 60))
	assert.Equal(t, uint64(100), l.Balance(acct))
	assert.Equal(t, uint64(0), l.Escrowed())
}

func TestLedgerShortBalance(t *testing.T) {
	ctx := context.Background()
	l := treasury.NewLedger()
	l.Mint(acct, 10)

	err := l.Withdraw(ctx, acct, 11)
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, uint64(10), l.Balance(acct), "failed withdraw must not move funds")

	err = l.Deposit(ctx, acct, 1)
	require.ErrorIs(t, err, domain.ErrTransferFailed, "nothing escrowed to release")
}

func TestLedgerConcurrentConservation(t *testing.T) {
	ctx := context.Background()
	l := treasury.NewLedger()
	l.Mint(acct, 1_000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := l.Withdraw(ctx, acct, 1); err == nil {
					require.NoError(t, l.Deposit(ctx, acct, 1))
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1_000), l.Balance(acct)+l.Escrowed())
	assert.Equal(t, uint64(0), l.Escrowed())
}
