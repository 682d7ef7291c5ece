package voucher

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrValueOverflow is returned when a numeric field does not fit in a uint256.
var ErrValueOverflow = errors.New("value overflow")

// wordSize is the width of an encoded uint256.
const wordSize = 32

// Encode packs the voucher the way Solidity's
// abi.encodePacked(address, uint256, string, uint256) does:
//
//	recipient (20 bytes) || amount (32 bytes BE) || message (raw UTF-8) || nonce (32 bytes BE)
//
// The message carries no length prefix. It is the only variable-width field
// and is followed by a fixed-width word, so the total length pins it down.
// Changing this layout invalidates every signature already issued.
func Encode(v *Voucher) ([]byte, error) {
	amount, err := ToUint256(v.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	nonce, err := ToUint256(v.Nonce)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	out := make([]byte, 0, common.AddressLength+wordSize+len(v.Message)+wordSize)
	out = append(out, v.Recipient.Bytes()...)
	amountWord := amount.Bytes32()
	out = append(out, amountWord[:]...)
	out = append(out, v.Message...)
	nonceWord := nonce.Bytes32()
	out = append(out, nonceWord[:]...)
	return out, nil
}

// ToUint256 converts x into a uint256, rejecting nil, negative and
// out-of-range values with ErrValueOverflow.
func ToUint256(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return nil, fmt.Errorf("missing value: %w", ErrValueOverflow)
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s: %w", x, ErrValueOverflow)
	}
	u, overflow := uint256.FromBig(x)
	if overflow {
		return nil, fmt.Errorf("%d-bit value: %w", x.BitLen(), ErrValueOverflow)
	}
	return u, nil
}
