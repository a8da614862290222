// Package treasury provides the collateral payment capability consumed by
// the engine. The in-memory Ledger stands in for the external token service;
// deployments that settle against a real token back the same interface with
// an adapter over that service.
package treasury

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// Ledger is an in-memory domain.Treasury. Every call is atomic under one
// mutex; a Withdraw that cannot be covered fails without partial effect.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]uint64

	// escrowed tracks collateral held on behalf of open markets, so the
	// ledger's own conservation can be asserted in tests.
	escrowed uint64
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]uint64)}
}

// Mint credits an account with freshly issued collateral. Used by the
// faucet/dev surface and by tests; a production deployment funds balances
// through deposits from the external token service instead.
func (l *Ledger) Mint(account common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Withdraw implements domain.Treasury. It returns ErrTransferFailed when the
// account balance cannot cover the amount.
func (l *Ledger) Withdraw(_ context.Context, account common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[account]
	if bal < amount {
		return fmt.Errorf("treasury: account %s balance %d short of %d: %w",
			account, bal, amount, domain.ErrTransferFailed)
	}
	l.balances[account] = bal - amount
	l.escrowed += amount
	return nil
}

// Deposit implements domain.Treasury, releasing escrowed collateral back to
// an account.
func (l *Ledger) Deposit(_ context.Context, account common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.escrowed < amount {
		return fmt.Errorf("treasury: escrow %d short of %d: %w",
			l.escrowed, amount, domain.ErrTransferFailed)
	}
	l.escrowed -= amount
	l.balances[account] += amount
	return nil
}

// Balance returns the spendable balance of an account.
func (l *Ledger) Balance(account common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Escrowed returns the total collateral currently held for markets.
func (l *Ledger) Escrowed() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.escrowed
}

// Compile-time interface check.
var _ domain.Treasury = (*Ledger)(nil)
