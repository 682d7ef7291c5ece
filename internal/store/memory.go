package store

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// Memory is a non-persistent Store for development and tests.
type Memory struct {
	mu          sync.RWMutex
	claimed     map[string]struct{}
	treasury    *uint256.Int
	balances    map[common.Address]*uint256.Int
	initialized bool
}

func NewMemory() *Memory {
	return &Memory{
		claimed:  make(map[string]struct{}),
		treasury: new(uint256.Int),
		balances: make(map[common.Address]*uint256.Int),
	}
}

func (m *Memory) IsClaimed(_ context.Context, key voucher.ClaimKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.claimed[key.String()]
	return ok, nil
}

func (m *Memory) Treasury(_ context.Context) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.treasury.Clone(), nil
}

func (m *Memory) BalanceOf(_ context.Context, addr common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.balances[addr]; ok {
		return b.Clone(), nil
	}
	return new(uint256.Int), nil
}

func (m *Memory) Settle(_ context.Context, key voucher.ClaimKey, amount *uint256.Int) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := key.String()
	if _, ok := m.claimed[id]; ok {
		return nil, ErrAlreadyPaid
	}
	balance, ok := m.balances[key.Recipient]
	if !ok {
		balance = new(uint256.Int)
	}
	newTreasury, newBalance, err := payout(m.treasury, balance, amount)
	if err != nil {
		return nil, err
	}
	m.claimed[id] = struct{}{}
	m.treasury = newTreasury
	m.balances[key.Recipient] = newBalance
	return newTreasury.Clone(), nil
}

func (m *Memory) Deposit(_ context.Context, amount *uint256.Int) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, err := credit(m.treasury, amount)
	if err != nil {
		return nil, err
	}
	m.treasury = sum
	return sum.Clone(), nil
}

func (m *Memory) InitTreasury(_ context.Context, amount *uint256.Int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return false, nil
	}
	sum, err := credit(m.treasury, amount)
	if err != nil {
		return false, err
	}
	m.treasury = sum
	m.initialized = true
	return true, nil
}

func (m *Memory) Close() error { return nil }
