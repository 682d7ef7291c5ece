package auth

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-voucher-payments/internal/signature"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// HashMessage constructs the EIP-191 prefixed hash:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func HashMessage(msg []byte) common.Hash {
	return voucher.HashMessage(msg)
}

// Recover extracts the signer address from an EIP-191 signature.
// sig must be 65 bytes (R || S || V), with V in {0,1} or {27,28}.
func Recover(msg []byte, sig []byte) (common.Address, error) {
	return signature.RecoverSigner(sig, HashMessage(msg))
}
