// Command sign-order is a developer utility: it generates a throwaway
// ECDSA keypair, builds an OrderPut signing payload, signs it, and
// prints a ready-to-POST JSON body plus a local verification check.
// Adapted from the teacher's cmd/sign-order tool, trimmed from its
// EIP-712 typed-data signer down to the core's plain Keccak256 payload
// hash (pkg/core/sig).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fluidex-clob/matchcore/pkg/core/sig"
)

func main() {
	market := flag.String("market", "ETH_USDT", "market name")
	side := flag.Uint("side", 1, "0=ASK 1=BID")
	typ := flag.Uint("type", 0, "0=LIMIT 1=MARKET")
	amount := flag.String("amount", "1", "order amount")
	price := flag.String("price", "100", "order price")
	postOnly := flag.Bool("post-only", false, "post-only flag")
	nonce := flag.Uint64("nonce", 1, "client nonce")
	userID := flag.Uint("user-id", 1, "registered user id")
	flag.Parse()

	key, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	payload := sig.Payload{
		Market: *market, Side: uint8(*side), Type: uint8(*typ),
		Amount: *amount, Price: *price, PostOnly: *postOnly, Nonce: *nonce,
	}
	hash := payload.Hash()
	signature, err := crypto.Sign(hash[:], key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}

	if !sig.Verify(address, hash, signature) {
		fmt.Fprintln(os.Stderr, "local verification failed — signer bug")
		os.Exit(1)
	}

	fmt.Printf("address: %s\n", address.Hex())
	fmt.Printf("private key (dev only, do not reuse): %x\n\n", crypto.FromECDSA(key))

	body := map[string]interface{}{
		"user_id":     uint32(*userID),
		"market":      *market,
		"side":        sideName(uint8(*side)),
		"type":        typeName(uint8(*typ)),
		"amount":      *amount,
		"price":       *price,
		"quote_limit": "0",
		"taker_fee":   "0",
		"maker_fee":   "0",
		"post_only":   *postOnly,
		"nonce":       *nonce,
		"signature":   fmt.Sprintf("0x%x", signature),
	}
	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("POST /api/v1/orders")
	fmt.Println(string(out))
}

func sideName(s uint8) string {
	if s == 0 {
		return "ASK"
	}
	return "BID"
}

func typeName(t uint8) string {
	if t == 0 {
		return "LIMIT"
	}
	return "MARKET"
}
