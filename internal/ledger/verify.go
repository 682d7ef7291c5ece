package ledger

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-voucher-payments/internal/signature"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// Verify reports whether sig is signer's signature over v. Malformed input
// (bad field range, length or version) is an error; a well-formed signature
// from someone else, or one that fails to recover, is false.
func Verify(signer common.Address, v voucher.Voucher, sig []byte) (bool, error) {
	digest, err := voucher.SigningDigest(&v)
	if err != nil {
		return false, err
	}
	got, err := signature.RecoverSigner(sig, digest)
	if errors.Is(err, signature.ErrInvalidSignature) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got == signer, nil
}
