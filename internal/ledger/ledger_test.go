package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-voucher-payments/internal/store"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	// Hardhat account #0; deterministic, never used outside tests.
	testIssuerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testRecipient    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	oneEther         = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func issuerKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.HexToECDSA(testIssuerKeyHex)
	if err != nil {
		t.Fatalf("load issuer key: %v", err)
	}
	return k
}

// sign produces a wallet-style signature (v in 27/28) over the voucher's
// EIP-191 digest.
func sign(t *testing.T, key *ecdsa.PrivateKey, v voucher.Voucher) []byte {
	t.Helper()
	digest, err := voucher.SigningDigest(&v)
	if err != nil {
		t.Fatalf("SigningDigest: %v", err)
	}
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[64] += 27
	return sig
}

func newVoucher(amount *big.Int, message string, nonce int64) voucher.Voucher {
	return voucher.Voucher{
		Recipient: testRecipient,
		Amount:    amount,
		Message:   message,
		Nonce:     big.NewInt(nonce),
	}
}

// newTestLedger returns a ledger over an in-memory store funded with 100 ether,
// mirroring the original deployment.
func newTestLedger(t *testing.T) (*Ledger, *ecdsa.PrivateKey) {
	t.Helper()
	key := issuerKey(t)
	l := New(store.NewMemory(), crypto.PubkeyToAddress(key.PublicKey), zap.NewNop())
	if _, err := l.Deposit(context.Background(), new(big.Int).Mul(big.NewInt(100), oneEther)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	return l, key
}

// ── The reference scenario ───────────────────────────────────────────────────

func TestClaim_PayThenReplayThenForgedMessage(t *testing.T) {
	l, key := newTestLedger(t)
	ctx := context.Background()

	v := newVoucher(oneEther, "Test", 1)
	sig := sign(t, key, v)

	before, _ := l.BalanceOf(ctx, testRecipient)
	receipt, err := l.Claim(ctx, v, sig)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	after, _ := l.BalanceOf(ctx, testRecipient)
	if diff := new(big.Int).Sub(after, before); diff.Cmp(oneEther) != 0 {
		t.Errorf("recipient balance changed by %s, want %s", diff, oneEther)
	}
	wantTreasury := new(big.Int).Mul(big.NewInt(99), oneEther)
	if receipt.Treasury.Cmp(wantTreasury) != 0 {
		t.Errorf("receipt treasury: got %s want %s", receipt.Treasury, wantTreasury)
	}

	// Identical call again
	if _, err := l.Claim(ctx, v, sig); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("replay: expected ErrAlreadyPaid, got %v", err)
	}

	// Original signature, different message
	forged := newVoucher(oneEther, "SecondTest", 1)
	if _, err := l.Claim(ctx, forged, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("forged message: expected ErrInvalidSignature, got %v", err)
	}
}

// ── Signature checks ─────────────────────────────────────────────────────────

func TestClaim_NotIssuer(t *testing.T) {
	l, _ := newTestLedger(t)
	stranger, _ := crypto.GenerateKey()

	v := newVoucher(oneEther, "Test", 1)
	_, err := l.Claim(context.Background(), v, sign(t, stranger, v))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if err != ErrInvalidSignature {
		t.Errorf("error should not carry detail, got %q", err)
	}
	claimed, _ := l.IsClaimed(context.Background(), testRecipient, big.NewInt(1))
	if claimed {
		t.Error("rejected claim must not mark the key")
	}
}

func TestClaim_TamperedFields(t *testing.T) {
	l, key := newTestLedger(t)
	v := newVoucher(oneEther, "Test", 1)
	sig := sign(t, key, v)

	muts := map[string]func(v *voucher.Voucher){
		"amount":    func(v *voucher.Voucher) { v.Amount = new(big.Int).Mul(oneEther, big.NewInt(2)) },
		"nonce":     func(v *voucher.Voucher) { v.Nonce = big.NewInt(2) },
		"recipient": func(v *voucher.Voucher) { v.Recipient = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC") },
		"message":   func(v *voucher.Voucher) { v.Message = "Test " },
	}
	for name, mut := range muts {
		t.Run(name, func(t *testing.T) {
			tampered := v
			mut(&tampered)
			if _, err := l.Claim(context.Background(), tampered, sig); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestClaim_RawRecoveryID(t *testing.T) {
	l, key := newTestLedger(t)
	v := newVoucher(oneEther, "Test", 1)
	sig := sign(t, key, v)
	sig[64] -= 27 // 0/1 encoding

	if _, err := l.Claim(context.Background(), v, sig); err != nil {
		t.Fatalf("v in {0,1} must be accepted: %v", err)
	}
}

func TestClaim_MalformedSignature(t *testing.T) {
	l, key := newTestLedger(t)
	v := newVoucher(oneEther, "Test", 1)

	if _, err := l.Claim(context.Background(), v, make([]byte, 64)); !errors.Is(err, ErrInvalidSignatureLength) {
		t.Errorf("64 bytes: expected ErrInvalidSignatureLength, got %v", err)
	}

	sig := sign(t, key, v)
	sig[64] = 29
	if _, err := l.Claim(context.Background(), v, sig); !errors.Is(err, ErrInvalidSignatureVersion) {
		t.Errorf("v=29: expected ErrInvalidSignatureVersion, got %v", err)
	}

	zero := make([]byte, 65)
	zero[64] = 27
	if _, err := l.Claim(context.Background(), v, zero); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("zero r/s: expected ErrInvalidSignature, got %v", err)
	}
}

func TestClaim_ValueOverflow(t *testing.T) {
	l, key := newTestLedger(t)
	v := newVoucher(oneEther, "Test", 1)
	sig := sign(t, key, v)

	v.Amount = new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := l.Claim(context.Background(), v, sig); !errors.Is(err, ErrValueOverflow) {
		t.Fatalf("expected ErrValueOverflow, got %v", err)
	}
}

// ── Replay domain ────────────────────────────────────────────────────────────

// TestClaim_ReplayWithDifferentVoucher: a second, validly signed voucher for
// an already-paid (recipient, nonce) is still rejected.
func TestClaim_ReplayWithDifferentVoucher(t *testing.T) {
	l, key := newTestLedger(t)
	ctx := context.Background()

	first := newVoucher(oneEther, "Test", 5)
	if _, err := l.Claim(ctx, first, sign(t, key, first)); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second := newVoucher(big.NewInt(7), "another memo", 5)
	if _, err := l.Claim(ctx, second, sign(t, key, second)); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
}

func TestClaim_DistinctNoncesBothPay(t *testing.T) {
	l, key := newTestLedger(t)
	ctx := context.Background()
	for _, n := range []int64{1, 2} {
		v := newVoucher(oneEther, "Test", n)
		if _, err := l.Claim(ctx, v, sign(t, key, v)); err != nil {
			t.Fatalf("nonce %d: %v", n, err)
		}
	}
	bal, _ := l.BalanceOf(ctx, testRecipient)
	if want := new(big.Int).Mul(oneEther, big.NewInt(2)); bal.Cmp(want) != 0 {
		t.Errorf("balance: got %s want %s", bal, want)
	}
}

// ── Funds ────────────────────────────────────────────────────────────────────

func TestClaim_InsufficientFunds_LeavesKeyUnclaimed(t *testing.T) {
	key := issuerKey(t)
	l := New(store.NewMemory(), crypto.PubkeyToAddress(key.PublicKey), zap.NewNop())
	ctx := context.Background()
	l.Deposit(ctx, big.NewInt(5)) //nolint:errcheck

	v := newVoucher(big.NewInt(6), "Test", 1)
	sig := sign(t, key, v)
	if _, err := l.Claim(ctx, v, sig); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	claimed, _ := l.IsClaimed(ctx, testRecipient, big.NewInt(1))
	if claimed {
		t.Fatal("key must stay unclaimed after a failed payout")
	}
	tr, _ := l.Treasury(ctx)
	if tr.Int64() != 5 {
		t.Errorf("treasury: got %s want 5", tr)
	}

	l.Deposit(ctx, big.NewInt(1)) //nolint:errcheck
	if _, err := l.Claim(ctx, v, sig); err != nil {
		t.Fatalf("claim after top-up: %v", err)
	}
}

func TestDeposit_Amounts(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	before, _ := l.Treasury(ctx)
	after, err := l.Deposit(ctx, big.NewInt(0))
	if err != nil || after.Cmp(before) != 0 {
		t.Errorf("zero: got %v, %v; want treasury unchanged", after, err)
	}
	if _, err := l.Deposit(ctx, big.NewInt(-1)); !errors.Is(err, ErrValueOverflow) {
		t.Errorf("negative: expected ErrValueOverflow, got %v", err)
	}
	maxWord := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if _, err := l.Deposit(ctx, maxWord); !errors.Is(err, ErrBalanceOverflow) {
		t.Errorf("overflow: expected ErrBalanceOverflow, got %v", err)
	}
}

func TestFund_OnlyOnce(t *testing.T) {
	key := issuerKey(t)
	l := New(store.NewMemory(), crypto.PubkeyToAddress(key.PublicKey), zap.NewNop())
	ctx := context.Background()

	if _, err := l.Fund(ctx, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero Fund: expected ErrInvalidAmount, got %v", err)
	}
	applied, err := l.Fund(ctx, big.NewInt(100))
	if err != nil || !applied {
		t.Fatalf("first Fund: %v %v", applied, err)
	}
	applied, err = l.Fund(ctx, big.NewInt(100))
	if err != nil || applied {
		t.Fatalf("second Fund: %v %v", applied, err)
	}
	tr, _ := l.Treasury(ctx)
	if tr.Int64() != 100 {
		t.Errorf("treasury: got %s want 100", tr)
	}
}

// TestTreasuryConservation runs a random mix of deposits and claims and checks
// sum(credits) == sum(deposits) - treasury after every step.
func TestTreasuryConservation(t *testing.T) {
	key := issuerKey(t)
	l := New(store.NewMemory(), crypto.PubkeyToAddress(key.PublicKey), zap.NewNop())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	recipients := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	deposits := new(big.Int)

	for i := 0; i < 200; i++ {
		if rng.Intn(3) == 0 {
			amt := big.NewInt(rng.Int63n(50) + 1)
			if _, err := l.Deposit(ctx, amt); err != nil {
				t.Fatalf("Deposit: %v", err)
			}
			deposits.Add(deposits, amt)
		} else {
			v := voucher.Voucher{
				Recipient: recipients[rng.Intn(len(recipients))],
				Amount:    big.NewInt(rng.Int63n(40)),
				Message:   "step",
				Nonce:     big.NewInt(rng.Int63n(30)),
			}
			_, err := l.Claim(ctx, v, sign(t, key, v))
			if err != nil && !errors.Is(err, ErrAlreadyPaid) && !errors.Is(err, ErrInsufficientFunds) {
				t.Fatalf("Claim: %v", err)
			}
		}

		credits := new(big.Int)
		for _, r := range recipients {
			b, _ := l.BalanceOf(ctx, r)
			credits.Add(credits, b)
		}
		tr, _ := l.Treasury(ctx)
		if tr.Sign() < 0 {
			t.Fatalf("step %d: negative treasury %s", i, tr)
		}
		if want := new(big.Int).Sub(deposits, tr); credits.Cmp(want) != 0 {
			t.Fatalf("step %d: credits %s != deposits %s - treasury %s", i, credits, deposits, tr)
		}
	}
}

// ── Concurrency ──────────────────────────────────────────────────────────────

func TestClaim_ConcurrentSameKey_ExactlyOnePaid(t *testing.T) {
	l, key := newTestLedger(t)
	ctx := context.Background()
	v := newVoucher(oneEther, "Test", 1)
	sig := sign(t, key, v)

	const workers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		paid    int
		replays int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Claim(ctx, v, sig)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				paid++
			case errors.Is(err, ErrAlreadyPaid):
				replays++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if paid != 1 || replays != workers-1 {
		t.Fatalf("paid=%d replays=%d, want 1 and %d", paid, replays, workers-1)
	}
	bal, _ := l.BalanceOf(ctx, testRecipient)
	if bal.Cmp(oneEther) != 0 {
		t.Errorf("balance: got %s want %s", bal, oneEther)
	}
}

// TestClaim_TwoLedgersSharedRedis models two processes over one Redis store;
// the store transaction alone must prevent a double payout.
func TestClaim_TwoLedgersSharedRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	key := issuerKey(t)
	issuer := crypto.PubkeyToAddress(key.PublicKey)
	ctx := context.Background()

	newLedger := func() *Ledger {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return New(store.NewRedis(rdb), issuer, zap.NewNop())
	}
	a, b := newLedger(), newLedger()
	if _, err := a.Deposit(ctx, big.NewInt(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	v := newVoucher(big.NewInt(10), "Test", 1)
	sig := sign(t, key, v)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := a
			if i%2 == 1 {
				l = b
			}
			_, errs[i] = l.Claim(ctx, v, sig)
		}(i)
	}
	wg.Wait()

	paid := 0
	for _, err := range errs {
		switch {
		case err == nil:
			paid++
		case !errors.Is(err, ErrAlreadyPaid):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if paid != 1 {
		t.Fatalf("paid %d times, want 1", paid)
	}
	tr, _ := b.Treasury(ctx)
	if tr.Int64() != 90 {
		t.Errorf("treasury: got %s want 90", tr)
	}
}

// ── Verify ───────────────────────────────────────────────────────────────────

func TestVerify(t *testing.T) {
	key := issuerKey(t)
	issuer := crypto.PubkeyToAddress(key.PublicKey)
	v := newVoucher(oneEther, "Test", 1)
	sig := sign(t, key, v)

	ok, err := Verify(issuer, v, sig)
	if err != nil || !ok {
		t.Fatalf("Verify issuer: ok=%v err=%v", ok, err)
	}

	ok, err = Verify(testRecipient, v, sig)
	if err != nil || ok {
		t.Errorf("Verify other signer: ok=%v err=%v", ok, err)
	}

	forged := newVoucher(oneEther, "SecondTest", 1)
	ok, err = Verify(issuer, forged, sig)
	if err != nil || ok {
		t.Errorf("Verify forged message: ok=%v err=%v", ok, err)
	}

	if _, err := Verify(issuer, v, sig[:10]); !errors.Is(err, ErrInvalidSignatureLength) {
		t.Errorf("short sig: expected ErrInvalidSignatureLength, got %v", err)
	}
}
