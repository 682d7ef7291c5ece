// Package store persists the ledger state: the set of claimed vouchers, the
// treasury balance and the balances credited to recipients.
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

var (
	ErrAlreadyPaid       = errors.New("already paid")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// Store is the persisted state surface of a ledger.
//
// Settle, Deposit and InitTreasury are atomic: on error nothing is written.
type Store interface {
	// IsClaimed reports whether key has been paid. Absent means unclaimed.
	IsClaimed(ctx context.Context, key voucher.ClaimKey) (bool, error)
	Treasury(ctx context.Context) (*uint256.Int, error)
	BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error)

	// Settle marks key as claimed, debits amount from the treasury and
	// credits it to key.Recipient. It returns the treasury after the payout.
	Settle(ctx context.Context, key voucher.ClaimKey, amount *uint256.Int) (*uint256.Int, error)
	// Deposit credits the treasury and returns the new treasury balance.
	Deposit(ctx context.Context, amount *uint256.Int) (*uint256.Int, error)
	// InitTreasury deposits amount only the first time it is called against
	// a given store. It reports whether the deposit was applied.
	InitTreasury(ctx context.Context, amount *uint256.Int) (bool, error)

	Close() error
}

// payout computes the balances after moving amount from treasury to balance.
func payout(treasury, balance, amount *uint256.Int) (newTreasury, newBalance *uint256.Int, err error) {
	if treasury.Lt(amount) {
		return nil, nil, ErrInsufficientFunds
	}
	newTreasury = new(uint256.Int).Sub(treasury, amount)
	newBalance, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return nil, nil, ErrBalanceOverflow
	}
	return newTreasury, newBalance, nil
}

func credit(treasury, amount *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(treasury, amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return sum, nil
}
