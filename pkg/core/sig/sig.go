// Package sig implements the order-signature verify hook spec.md §1
// calls out as the one signature concern in scope for the core ("...
// logging setup, and signature-scheme details beyond a verify hook").
// Grounded on the teacher's ECDSA/secp256k1 signer
// (pkg/crypto/signer.go: VerifySignature/RecoverAddress via
// go-ethereum/crypto), trimmed to the verify-only surface the
// Controller needs — key generation and EIP-712 struct hashing stay
// out of the core's scope.
package sig

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Payload is the canonical set of OrderPut fields that get signed,
// hashed with Keccak256 the same way the teacher hashes arbitrary
// messages (signer.go SignMessage).
type Payload struct {
	Market   string
	Side     uint8
	Type     uint8
	Amount   string
	Price    string
	PostOnly bool
	Nonce    uint64
}

// Hash returns the Keccak256 digest a client must sign over.
func (p Payload) Hash() [32]byte {
	msg := fmt.Sprintf("%s|%d|%d|%s|%s|%t|%d", p.Market, p.Side, p.Type, p.Amount, p.Price, p.PostOnly, p.Nonce)
	return crypto.Keccak256Hash([]byte(msg))
}

// Verify reports whether signature (65-byte [R||S||V]) was produced by
// address over hash.
func Verify(address common.Address, hash [32]byte, signature []byte) bool {
	if len(signature) != 65 {
		return false
	}
	publicKeyBytes, err := crypto.Ecrecover(hash[:], signature)
	if err != nil {
		return false
	}
	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*publicKey) == address
}

// VerifyOrder is the Controller's order_put verify hook: it recomputes
// the payload hash and checks the signature against the user's
// registered L1 address.
func VerifyOrder(address common.Address, p Payload, signature []byte) bool {
	return Verify(address, p.Hash(), signature)
}
