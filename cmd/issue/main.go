// cmd/issue/main.go — signs a payment voucher with the issuer key.
//
// Prints the packed message hash, the EIP-191 signed hash and the 65-byte
// signature (v = 27/28) for the voucher, or the claim body as JSON.
//
// Usage:
//   go run ./cmd/issue/ --key <hex> --recipient <addr> --amount <wei> --message <text> --nonce <n>
//   go run ./cmd/issue/ --key <hex> --recipient <addr> --amount <wei> --redis localhost:6379 --json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-voucher-payments/internal/issuer"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	keyHex := fs.String("key", "", "issuer private key (hex, with or without 0x)")
	recipient := fs.String("recipient", "", "voucher recipient address")
	amountStr := fs.String("amount", "", "amount in wei (decimal)")
	message := fs.String("message", "", "free-form memo bound into the signature")
	nonceStr := fs.String("nonce", "", "voucher nonce (decimal); allocated from Redis if empty")
	redisAddr := fs.String("redis", "", "Redis address for nonce allocation")
	asJSON := fs.Bool("json", false, "print the signed voucher as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *keyHex == "" {
		return errors.New("--key is required")
	}
	if !common.IsHexAddress(*recipient) {
		return fmt.Errorf("--recipient %q is not an address", *recipient)
	}
	amount, ok := new(big.Int).SetString(*amountStr, 10)
	if !ok {
		return fmt.Errorf("--amount %q is not a decimal integer", *amountStr)
	}

	// ── private key ───────────────────────────────────────────────────────────
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}

	var rdb *redis.Client
	if *redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
	}
	signer := issuer.NewSigner(privKey, rdb)

	// ── nonce ─────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	to := common.HexToAddress(*recipient)
	var nonce *big.Int
	if *nonceStr != "" {
		if nonce, ok = new(big.Int).SetString(*nonceStr, 10); !ok {
			return fmt.Errorf("--nonce %q is not a decimal integer", *nonceStr)
		}
	} else {
		if nonce, err = signer.NextNonce(ctx, to); err != nil {
			return fmt.Errorf("allocate nonce (pass --nonce or --redis): %w", err)
		}
	}

	// ── sign ──────────────────────────────────────────────────────────────────
	v := voucher.Voucher{Recipient: to, Amount: amount, Message: *message, Nonce: nonce}
	msgHash, err := voucher.MessageHash(&v)
	if err != nil {
		return err
	}
	sig, err := signer.Sign(&v)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(issuer.SignedVoucher{Voucher: v, Signature: sig})
	}
	fmt.Fprintf(out, "Issuer       : %s\n", signer.Address().Hex())
	fmt.Fprintf(out, "Recipient    : %s\n", to.Hex())
	fmt.Fprintf(out, "Amount       : %s\n", amount)
	fmt.Fprintf(out, "Message      : %q\n", *message)
	fmt.Fprintf(out, "Nonce        : %s\n", nonce)
	fmt.Fprintf(out, "Message hash : %s\n", msgHash.Hex())
	fmt.Fprintf(out, "Signed hash  : %s\n", voucher.ETHSignedMessageHash(msgHash).Hex())
	fmt.Fprintf(out, "Signature    : 0x%x\n", sig)
	return nil
}
