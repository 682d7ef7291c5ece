package claimqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-voucher-payments/internal/ledger"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// StatusOf classifies a Claim error.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusPaid
	case errors.Is(err, ledger.ErrAlreadyPaid):
		return StatusAlreadyPaid
	case errors.Is(err, ledger.ErrInvalidSignature):
		return StatusInvalidSignature
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return StatusInsufficientFunds
	case errors.Is(err, ledger.ErrValueOverflow),
		errors.Is(err, ledger.ErrInvalidSignatureLength),
		errors.Is(err, ledger.ErrInvalidSignatureVersion),
		errors.Is(err, ledger.ErrBalanceOverflow):
		return StatusRejected
	default:
		return StatusFailed
	}
}

// HandleOutcome records the result of applying req. Requests that can never
// succeed as submitted (bad signature or encoding) are also copied to the DLQ.
// A non-nil error means nothing was recorded.
func HandleOutcome(ctx context.Context, rdb *redis.Client, req Request, receipt *ledger.Receipt, claimErr error, log *zap.Logger) error {
	status := StatusOf(claimErr)
	fields := []any{"id", req.ID, "status", string(status)}
	if claimErr != nil {
		fields = append(fields, "error", claimErr.Error())
	}
	if receipt != nil {
		fields = append(fields, "digest", receipt.Digest.Hex(), "treasury", receipt.Treasury.String())
	}

	resultKey := fmt.Sprintf(voucher.ClaimResultKeyFmt, req.ID)
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, resultKey, fields...)
		pipe.Expire(ctx, resultKey, resultTTL)
		if status == StatusInvalidSignature || status == StatusRejected {
			raw, _ := json.Marshal(req)
			pipe.RPush(ctx, voucher.ClaimDLQKey, string(raw))
		}
		return nil
	})
	if err != nil {
		log.Error("claimqueue: write result", zap.String("id", req.ID), zap.Error(err))
		return err
	}

	switch status {
	case StatusPaid, StatusAlreadyPaid:
		log.Info("queued claim processed",
			zap.String("id", req.ID),
			zap.String("status", string(status)),
		)
	case StatusInvalidSignature, StatusRejected:
		log.Error("queued claim rejected",
			zap.String("id", req.ID),
			zap.String("status", string(status)),
			zap.String("recipient", req.Voucher.Recipient.Hex()),
			zap.Error(claimErr),
		)
	default:
		log.Warn("queued claim not paid",
			zap.String("id", req.ID),
			zap.String("status", string(status)),
			zap.Error(claimErr),
		)
	}
	return nil
}
