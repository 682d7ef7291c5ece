package voucher

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Voucher is an issuer-signed authorization to pay Amount to Recipient.
// Only the four hashed fields are part of the signed payload.
type Voucher struct {
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
	Message   string         `json:"message"`
	Nonce     *big.Int       `json:"nonce"`
}

// ClaimKey identifies a voucher for replay protection.
type ClaimKey struct {
	Recipient common.Address
	Nonce     *big.Int
}

// Key returns the claim key for v.
func (v *Voucher) Key() ClaimKey {
	return ClaimKey{Recipient: v.Recipient, Nonce: v.Nonce}
}

// String renders the key as "<lowercase address>:<decimal nonce>". This form
// is what the stores persist, so it must stay stable.
func (k ClaimKey) String() string {
	n := "0"
	if k.Nonce != nil {
		n = k.Nonce.String()
	}
	return strings.ToLower(k.Recipient.Hex()) + ":" + n
}

// ParseClaimKey is the inverse of ClaimKey.String.
func ParseClaimKey(s string) (ClaimKey, error) {
	addr, nonce, ok := strings.Cut(s, ":")
	if !ok || !common.IsHexAddress(addr) {
		return ClaimKey{}, fmt.Errorf("malformed claim key %q", s)
	}
	n, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return ClaimKey{}, fmt.Errorf("malformed claim key nonce %q", nonce)
	}
	return ClaimKey{Recipient: common.HexToAddress(addr), Nonce: n}, nil
}

// Redis key layout
const (
	TreasuryKey       = "payments:treasury"
	TreasuryInitKey   = "payments:treasury:init"
	ClaimedSetKey     = "payments:claimed"
	BalanceKeyFmt     = "payments:balance:%s"       // %s = lowercase recipient address
	IssuerNonceKeyFmt = "payments:issuer:nonce:%s"  // %s = lowercase recipient address
	ClaimQueueKey     = "payments:claims:queue"
	ClaimDLQKey       = "payments:claims:dlq"
	ClaimResultKeyFmt = "payments:claims:result:%s" // %s = request id
)
