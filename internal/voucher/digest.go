package voucher

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signedMessagePrefix = "\x19Ethereum Signed Message:\n"

// HashMessage constructs the EIP-191 prefixed hash:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func HashMessage(msg []byte) common.Hash {
	prefix := fmt.Sprintf("%s%d", signedMessagePrefix, len(msg))
	return crypto.Keccak256Hash([]byte(prefix), msg)
}

// MessageHash is keccak256 of the packed voucher encoding. It equals
// ethers.solidityPackedKeccak256(["address","uint256","string","uint256"], ...).
func MessageHash(v *Voucher) (common.Hash, error) {
	enc, err := Encode(v)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// ETHSignedMessageHash wraps a 32-byte message hash in the EIP-191 envelope,
// producing the digest that wallets sign for signMessage(bytes32).
func ETHSignedMessageHash(h common.Hash) common.Hash {
	return HashMessage(h[:])
}

// SigningDigest is ETHSignedMessageHash(MessageHash(v)).
func SigningDigest(v *Voucher) (common.Hash, error) {
	h, err := MessageHash(v)
	if err != nil {
		return common.Hash{}, err
	}
	return ETHSignedMessageHash(h), nil
}
