package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// maxWatchRetries bounds optimistic-lock retries when another writer touches
// the watched keys between WATCH and EXEC.
const maxWatchRetries = 16

// Redis is a Store shared across processes. Mutations run as WATCH/MULTI/EXEC
// transactions, so concurrent writers on other hosts cannot interleave.
// Amounts are stored as decimal strings.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func balanceKey(addr common.Address) string {
	return fmt.Sprintf(voucher.BalanceKeyFmt, strings.ToLower(addr.Hex()))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getUint(ctx context.Context, g getter, key string) (*uint256.Int, error) {
	raw, err := g.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt value at %s: %w", key, err)
	}
	return v, nil
}

func (s *Redis) IsClaimed(ctx context.Context, key voucher.ClaimKey) (bool, error) {
	return s.rdb.SIsMember(ctx, voucher.ClaimedSetKey, key.String()).Result()
}

func (s *Redis) Treasury(ctx context.Context) (*uint256.Int, error) {
	return getUint(ctx, s.rdb, voucher.TreasuryKey)
}

func (s *Redis) BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return getUint(ctx, s.rdb, balanceKey(addr))
}

func (s *Redis) Settle(ctx context.Context, key voucher.ClaimKey, amount *uint256.Int) (*uint256.Int, error) {
	member := key.String()
	balKey := balanceKey(key.Recipient)

	var after *uint256.Int
	err := s.watch(ctx, func(tx *redis.Tx) error {
		claimed, err := tx.SIsMember(ctx, voucher.ClaimedSetKey, member).Result()
		if err != nil {
			return err
		}
		if claimed {
			return ErrAlreadyPaid
		}
		treasury, err := getUint(ctx, tx, voucher.TreasuryKey)
		if err != nil {
			return err
		}
		balance, err := getUint(ctx, tx, balKey)
		if err != nil {
			return err
		}
		newTreasury, newBalance, err := payout(treasury, balance, amount)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, voucher.ClaimedSetKey, member)
			pipe.Set(ctx, voucher.TreasuryKey, newTreasury.Dec(), 0)
			pipe.Set(ctx, balKey, newBalance.Dec(), 0)
			return nil
		})
		after = newTreasury
		return err
	}, voucher.ClaimedSetKey, voucher.TreasuryKey, balKey)
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *Redis) Deposit(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	var after *uint256.Int
	err := s.watch(ctx, func(tx *redis.Tx) error {
		treasury, err := getUint(ctx, tx, voucher.TreasuryKey)
		if err != nil {
			return err
		}
		sum, err := credit(treasury, amount)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, voucher.TreasuryKey, sum.Dec(), 0)
			return nil
		})
		after = sum
		return err
	}, voucher.TreasuryKey)
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *Redis) InitTreasury(ctx context.Context, amount *uint256.Int) (bool, error) {
	applied := false
	err := s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, voucher.TreasuryInitKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		treasury, err := getUint(ctx, tx, voucher.TreasuryKey)
		if err != nil {
			return err
		}
		sum, err := credit(treasury, amount)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, voucher.TreasuryKey, sum.Dec(), 0)
			pipe.Set(ctx, voucher.TreasuryInitKey, amount.Dec(), 0)
			return nil
		})
		applied = err == nil
		return err
	}, voucher.TreasuryKey, voucher.TreasuryInitKey)
	return applied, err
}

// Close is a no-op; the caller owns the Redis client.
func (s *Redis) Close() error { return nil }

func (s *Redis) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %v: gave up after %d conflicts", keys, maxWatchRetries)
}
