// Package issuer produces issuer-signed vouchers. The payments server never
// holds the issuer key; this package backs cmd/issue and the test fixtures.
package issuer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

var errNoNonceStore = errors.New("issuer has no nonce store")

// SignedVoucher is a voucher plus the issuer's 65-byte signature, in the JSON
// shape accepted by the claim endpoints.
type SignedVoucher struct {
	voucher.Voucher
	Signature hexutil.Bytes `json:"signature"`
}

// Signer signs vouchers with the issuer key and, when given a Redis client,
// allocates per-recipient nonces.
type Signer struct {
	privKey *ecdsa.PrivateKey
	rdb     *redis.Client
}

// NewSigner returns a Signer. rdb may be nil if nonces are supplied by the
// caller.
func NewSigner(privKey *ecdsa.PrivateKey, rdb *redis.Client) *Signer {
	return &Signer{privKey: privKey, rdb: rdb}
}

// Address is the issuer address a ledger must be configured with.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.privKey.PublicKey)
}

// Sign returns the r||s||v signature over v's EIP-191 digest, with v in
// {27, 28} as wallets produce it.
func (s *Signer) Sign(v *voucher.Voucher) ([]byte, error) {
	digest, err := voucher.SigningDigest(v)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest[:], s.privKey)
	if err != nil {
		return nil, fmt.Errorf("sign voucher: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Issue allocates the next nonce for recipient and signs a voucher for it.
func (s *Signer) Issue(ctx context.Context, recipient common.Address, amount *big.Int, message string) (*SignedVoucher, error) {
	nonce, err := s.NextNonce(ctx, recipient)
	if err != nil {
		return nil, err
	}
	v := voucher.Voucher{Recipient: recipient, Amount: amount, Message: message, Nonce: nonce}
	sig, err := s.Sign(&v)
	if err != nil {
		return nil, err
	}
	return &SignedVoucher{Voucher: v, Signature: sig}, nil
}

// NextNonce atomically increments and returns the nonce counter for recipient.
// The first nonce handed out is 1.
func (s *Signer) NextNonce(ctx context.Context, recipient common.Address) (*big.Int, error) {
	if s.rdb == nil {
		return nil, errNoNonceStore
	}
	key := fmt.Sprintf(voucher.IssuerNonceKeyFmt, strings.ToLower(recipient.Hex()))
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("incr nonce: %w", err)
	}
	return big.NewInt(n), nil
}
