package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrMarketExpired       = errors.New("market expired")
	ErrMarketNotOpen       = errors.New("market not open")
	ErrAlreadyResolved     = errors.New("market already resolved")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNoWinningShares     = errors.New("no winning shares")
	ErrTransferFailed      = errors.New("collateral transfer failed")
	ErrPoolExhausted       = errors.New("outcome pool exhausted")
	ErrAmountOverflow      = errors.New("amount overflows pool arithmetic")
	ErrMarketHasActivity   = errors.New("market has trade activity")
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrNotExpired          = errors.New("market not yet expired")
	ErrLockHeld            = errors.New("lock already held")
)
