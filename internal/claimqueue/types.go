package claimqueue

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// Request is one queued claim.
type Request struct {
	ID        string          `json:"id"`
	Voucher   voucher.Voucher `json:"voucher"`
	Signature hexutil.Bytes   `json:"signature"`
}

// Status is the outcome of a queued claim.
type Status string

const (
	StatusPending           Status = "pending"
	StatusPaid              Status = "paid"
	StatusAlreadyPaid       Status = "already_paid"
	StatusInvalidSignature  Status = "invalid_signature"
	StatusInsufficientFunds Status = "insufficient_funds"
	StatusRejected          Status = "rejected" // malformed amount, nonce or signature encoding
	StatusFailed            Status = "failed"   // store error; the item is requeued
)

// Result is what GET /api/claims/results/:id reports.
type Result struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Treasury string `json:"treasury,omitempty"`
}
