package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	bolt "go.etcd.io/bbolt"

	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

var (
	bucketClaims   = []byte("claims")
	bucketBalances = []byte("balances")
	bucketMeta     = []byte("meta")

	metaTreasury     = []byte("treasury")
	metaTreasuryInit = []byte("treasury_init")
)

// Bolt is a single-host persistent Store backed by a bbolt file. Every
// mutation is one read-write bolt transaction. Amounts are 32-byte big-endian.
type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketClaims, bucketBalances, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func readUint(b *bolt.Bucket, key []byte) *uint256.Int {
	v := b.Get(key)
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).SetBytes(v)
}

func writeUint(b *bolt.Bucket, key []byte, x *uint256.Int) error {
	w := x.Bytes32()
	return b.Put(key, w[:])
}

func (s *Bolt) IsClaimed(_ context.Context, key voucher.ClaimKey) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketClaims).Get([]byte(key.String())) != nil
		return nil
	})
	return ok, err
}

func (s *Bolt) Treasury(_ context.Context) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.db.View(func(tx *bolt.Tx) error {
		out = readUint(tx.Bucket(bucketMeta), metaTreasury)
		return nil
	})
	return out, err
}

func (s *Bolt) BalanceOf(_ context.Context, addr common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.db.View(func(tx *bolt.Tx) error {
		out = readUint(tx.Bucket(bucketBalances), addr.Bytes())
		return nil
	})
	return out, err
}

func (s *Bolt) Settle(_ context.Context, key voucher.ClaimKey, amount *uint256.Int) (*uint256.Int, error) {
	var after *uint256.Int
	err := s.db.Update(func(tx *bolt.Tx) error {
		claims := tx.Bucket(bucketClaims)
		balances := tx.Bucket(bucketBalances)
		meta := tx.Bucket(bucketMeta)

		id := []byte(key.String())
		if claims.Get(id) != nil {
			return ErrAlreadyPaid
		}
		newTreasury, newBalance, err := payout(
			readUint(meta, metaTreasury),
			readUint(balances, key.Recipient.Bytes()),
			amount,
		)
		if err != nil {
			return err
		}
		if err := claims.Put(id, []byte{1}); err != nil {
			return err
		}
		if err := writeUint(meta, metaTreasury, newTreasury); err != nil {
			return err
		}
		if err := writeUint(balances, key.Recipient.Bytes(), newBalance); err != nil {
			return err
		}
		after = newTreasury
		return nil
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *Bolt) Deposit(_ context.Context, amount *uint256.Int) (*uint256.Int, error) {
	var after *uint256.Int
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		sum, err := credit(readUint(meta, metaTreasury), amount)
		if err != nil {
			return err
		}
		after = sum
		return writeUint(meta, metaTreasury, sum)
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *Bolt) InitTreasury(_ context.Context, amount *uint256.Int) (bool, error) {
	applied := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta.Get(metaTreasuryInit) != nil {
			return nil
		}
		sum, err := credit(readUint(meta, metaTreasury), amount)
		if err != nil {
			return err
		}
		if err := writeUint(meta, metaTreasury, sum); err != nil {
			return err
		}
		if err := writeUint(meta, metaTreasuryInit, amount); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *Bolt) Close() error { return s.db.Close() }
