// Package signature splits 65-byte secp256k1 signatures and recovers the
// Ethereum address that produced them.
package signature

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Length is the size of an R || S || V signature.
const Length = 65

var (
	ErrInvalidSignatureLength  = errors.New("invalid signature length")
	ErrInvalidSignatureVersion = errors.New("invalid signature version")
	ErrInvalidSignature        = errors.New("invalid signature")
)

// Components is a signature split into its three fields. V is kept exactly
// as it appeared on the wire (0/1 or 27/28).
type Components struct {
	R [32]byte
	S [32]byte
	V byte
}

// Split decomposes sig as bytes[0:32] = R, bytes[32:64] = S, byte[64] = V.
func Split(sig []byte) (Components, error) {
	var c Components
	if len(sig) != Length {
		return c, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignatureLength, len(sig), Length)
	}
	copy(c.R[:], sig[0:32])
	copy(c.S[:], sig[32:64])
	c.V = sig[64]
	return c, nil
}

// Bytes reassembles the 65-byte signature.
func (c Components) Bytes() []byte {
	out := make([]byte, Length)
	copy(out[0:32], c.R[:])
	copy(out[32:64], c.S[:])
	out[64] = c.V
	return out
}

// ParseHex decodes a hex signature with or without the 0x prefix. The length
// is not checked here; Split does that.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode signature hex: %w", err)
	}
	return b, nil
}
