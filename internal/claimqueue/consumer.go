// Package claimqueue applies claims pushed onto a Redis list, one at a time
// and in list order.
package claimqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-voucher-payments/internal/ledger"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// retryBackoff is the pause after requeueing an item that failed on a store
// error.
const retryBackoff = 5 * time.Second

// Claimer is satisfied by *ledger.Ledger.
type Claimer interface {
	Claim(ctx context.Context, v voucher.Voucher, sig []byte) (*ledger.Receipt, error)
}

// Run is the consumer loop: BLPOP → claim → record outcome. It returns when
// ctx is cancelled.
func Run(ctx context.Context, rdb *redis.Client, claimer Claimer, blockTimeout time.Duration, log *zap.Logger) {
	log.Info("claim queue consumer started", zap.String("queue", voucher.ClaimQueueKey))

	for {
		if ctx.Err() != nil {
			log.Info("claim queue consumer stopped")
			return
		}

		// BLPOP blocks until an item appears or timeout
		results, err := rdb.BLPop(ctx, blockTimeout, voucher.ClaimQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Error("claimqueue: BLPOP error", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// results[0] = key, results[1] = value (already popped by BLPOP).
		// The item runs to completion even if ctx is cancelled meanwhile.
		itemCtx := context.WithoutCancel(ctx)
		if Process(itemCtx, rdb, claimer, results[1], log) {
			Requeue(itemCtx, rdb, results[1], log)
			select {
			case <-ctx.Done():
			case <-time.After(retryBackoff):
			}
		}
	}
}

// Process applies one raw queue item. It reports whether the item was left
// unapplied by a store or Redis failure and should be requeued.
func Process(ctx context.Context, rdb *redis.Client, claimer Claimer, raw string, log *zap.Logger) (retry bool) {
	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil || req.ID == "" {
		log.Error("claimqueue: malformed item", zap.String("raw", raw), zap.Error(err))
		if err := rdb.RPush(ctx, voucher.ClaimDLQKey, raw).Err(); err != nil {
			log.Error("claimqueue: DLQ push failed", zap.String("raw", raw), zap.Error(err))
		}
		return false
	}
	receipt, err := claimer.Claim(ctx, req.Voucher, req.Signature)
	if StatusOf(err) == StatusFailed {
		log.Warn("claimqueue: claim failed, will retry", zap.String("id", req.ID), zap.Error(err))
		return true
	}
	if err := HandleOutcome(ctx, rdb, req, receipt, err, log); err != nil {
		return true
	}
	return false
}

// Requeue pushes raw back onto the head of the queue so it is the next item
// consumed.
func Requeue(ctx context.Context, rdb *redis.Client, raw string, log *zap.Logger) {
	if err := rdb.LPush(ctx, voucher.ClaimQueueKey, raw).Err(); err != nil {
		log.Error("claimqueue: requeue failed, item dropped", zap.String("raw", raw), zap.Error(err))
	}
}
