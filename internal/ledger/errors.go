package ledger

import (
	"errors"

	"github.com/0gfoundation/0g-voucher-payments/internal/signature"
	"github.com/0gfoundation/0g-voucher-payments/internal/store"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// Errors returned by the ledger. Every claim failure is one of these; match
// with errors.Is.
var (
	ErrValueOverflow           = voucher.ErrValueOverflow
	ErrInvalidSignatureLength  = signature.ErrInvalidSignatureLength
	ErrInvalidSignatureVersion = signature.ErrInvalidSignatureVersion
	// ErrInvalidSignature covers both a failed recovery and a signer that is
	// not the issuer; callers cannot tell the two apart.
	ErrInvalidSignature  = signature.ErrInvalidSignature
	ErrAlreadyPaid       = store.ErrAlreadyPaid
	ErrInsufficientFunds = store.ErrInsufficientFunds
	ErrBalanceOverflow   = store.ErrBalanceOverflow
	ErrInvalidAmount     = errors.New("invalid amount")
)
