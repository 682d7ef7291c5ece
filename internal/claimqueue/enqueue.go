package claimqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// resultTTL bounds how long outcomes stay queryable.
const resultTTL = 24 * time.Hour

var ErrUnknownRequest = errors.New("unknown claim request")

// Enqueue assigns req an ID, records it as pending and appends it to the
// claim queue. It returns the ID.
func Enqueue(ctx context.Context, rdb *redis.Client, req *Request) (string, error) {
	req.ID = uuid.NewString()
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal claim request: %w", err)
	}
	resultKey := fmt.Sprintf(voucher.ClaimResultKeyFmt, req.ID)
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, resultKey, "id", req.ID, "status", string(StatusPending))
		pipe.Expire(ctx, resultKey, resultTTL)
		pipe.RPush(ctx, voucher.ClaimQueueKey, string(raw))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue claim: %w", err)
	}
	return req.ID, nil
}

// GetResult returns the recorded outcome for id.
func GetResult(ctx context.Context, rdb *redis.Client, id string) (*Result, error) {
	fields, err := rdb.HGetAll(ctx, fmt.Sprintf(voucher.ClaimResultKeyFmt, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read claim result: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownRequest
	}
	return &Result{
		ID:       id,
		Status:   Status(fields["status"]),
		Error:    fields["error"],
		Digest:   fields["digest"],
		Treasury: fields["treasury"],
	}, nil
}
