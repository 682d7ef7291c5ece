// Package ledger redeems issuer-signed vouchers against a treasury, paying
// each (recipient, nonce) at most once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-voucher-payments/internal/signature"
	"github.com/0gfoundation/0g-voucher-payments/internal/store"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// Ledger is the claim state machine. Each ClaimKey moves from unclaimed to
// claimed exactly once and never back.
//
// All mutations hold mu for their whole check-and-apply sequence, so two
// claims for the same key are ordered by lock acquisition: the first one to
// take the lock is paid, the rest get ErrAlreadyPaid. The store applies each
// payout atomically as well, which keeps several processes sharing one
// Redis store consistent.
type Ledger struct {
	mu     sync.Mutex
	store  store.Store
	issuer common.Address
	log    *zap.Logger
}

func New(st store.Store, issuer common.Address, log *zap.Logger) *Ledger {
	return &Ledger{store: st, issuer: issuer, log: log}
}

// Issuer returns the only address whose vouchers are honoured.
func (l *Ledger) Issuer() common.Address { return l.issuer }

// Receipt describes a successful claim.
type Receipt struct {
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
	Nonce     *big.Int       `json:"nonce"`
	Digest    common.Hash    `json:"digest"`
	Treasury  *big.Int       `json:"treasury"`
}

// Claim verifies that sig is the issuer's signature over v and pays
// v.Amount from the treasury to v.Recipient.
//
// On any error no state has changed.
func (l *Ledger) Claim(ctx context.Context, v voucher.Voucher, sig []byte) (*Receipt, error) {
	amount, err := voucher.ToUint256(v.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	digest, err := voucher.SigningDigest(&v)
	if err != nil {
		return nil, err
	}
	c, err := signature.Split(sig)
	if err != nil {
		return nil, err
	}
	signer, recoverErr := signature.Recover(digest, c)
	if errors.Is(recoverErr, signature.ErrInvalidSignatureVersion) {
		return nil, recoverErr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if recoverErr != nil || signer != l.issuer {
		l.log.Warn("claim rejected: invalid signature",
			zap.String("recipient", v.Recipient.Hex()),
			zap.String("nonce", v.Nonce.String()),
			zap.String("recovered", signer.Hex()),
			zap.NamedError("recover_error", recoverErr),
		)
		return nil, ErrInvalidSignature
	}

	after, err := l.store.Settle(ctx, v.Key(), amount)
	if err != nil {
		l.log.Warn("claim rejected",
			zap.String("recipient", v.Recipient.Hex()),
			zap.String("nonce", v.Nonce.String()),
			zap.Error(err),
		)
		return nil, err
	}

	l.log.Info("voucher claimed",
		zap.String("recipient", v.Recipient.Hex()),
		zap.String("amount", v.Amount.String()),
		zap.String("nonce", v.Nonce.String()),
		zap.String("treasury", after.Dec()),
	)
	return &Receipt{
		Recipient: v.Recipient,
		Amount:    new(big.Int).Set(v.Amount),
		Nonce:     new(big.Int).Set(v.Nonce),
		Digest:    digest,
		Treasury:  after.ToBig(),
	}, nil
}

// Deposit credits the treasury and returns its new balance. A zero deposit is
// a no-op.
func (l *Ledger) Deposit(ctx context.Context, amount *big.Int) (*big.Int, error) {
	u, err := voucher.ToUint256(amount)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	after, err := l.store.Deposit(ctx, u)
	if err != nil {
		return nil, err
	}
	l.log.Info("treasury funded", zap.String("amount", amount.String()), zap.String("treasury", after.Dec()))
	return after.ToBig(), nil
}

// Fund applies the initial treasury deposit if this store has never been
// funded this way before. It reports whether the deposit happened. amount
// must be positive.
func (l *Ledger) Fund(ctx context.Context, amount *big.Int) (bool, error) {
	u, err := voucher.ToUint256(amount)
	if err != nil {
		return false, err
	}
	if u.IsZero() {
		return false, fmt.Errorf("%w: zero initial deposit", ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.InitTreasury(ctx, u)
}

// IsClaimed reports whether (recipient, nonce) has been paid. It does not
// wait for in-flight claims.
func (l *Ledger) IsClaimed(ctx context.Context, recipient common.Address, nonce *big.Int) (bool, error) {
	return l.store.IsClaimed(ctx, voucher.ClaimKey{Recipient: recipient, Nonce: nonce})
}

func (l *Ledger) Treasury(ctx context.Context) (*big.Int, error) {
	t, err := l.store.Treasury(ctx)
	if err != nil {
		return nil, err
	}
	return t.ToBig(), nil
}

func (l *Ledger) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	b, err := l.store.BalanceOf(ctx, addr)
	if err != nil {
		return nil, err
	}
	return b.ToBig(), nil
}
