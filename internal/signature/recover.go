package signature

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// normalizeV maps the two recovery-id conventions onto {0,1}: wallets and
// Solidity use 27/28, go-ethereum and raw secp256k1 use 0/1.
func normalizeV(v byte) (byte, error) {
	switch v {
	case 0, 1:
		return v, nil
	case 27, 28:
		return v - 27, nil
	default:
		return 0, fmt.Errorf("%w: v=%d", ErrInvalidSignatureVersion, v)
	}
}

// Recover returns the address whose key produced c over digest.
//
// r and s must lie in [1, N-1]. High-s values are accepted, matching the EVM
// ecrecover precompile.
func Recover(digest common.Hash, c Components) (common.Address, error) {
	v, err := normalizeV(c.V)
	if err != nil {
		return common.Address{}, err
	}
	r := new(big.Int).SetBytes(c.R[:])
	s := new(big.Int).SetBytes(c.S[:])
	if !crypto.ValidateSignatureValues(v, r, s, false) {
		return common.Address{}, fmt.Errorf("%w: r or s out of range", ErrInvalidSignature)
	}

	sig := c.Bytes()
	sig[64] = v
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: ecrecover: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverSigner splits sig and recovers its signer over digest.
func RecoverSigner(sig []byte, digest common.Hash) (common.Address, error) {
	c, err := Split(sig)
	if err != nil {
		return common.Address{}, err
	}
	return Recover(digest, c)
}
