// Package solana provides the chain primitives the engine needs: key and
// signature handling, wallet signing, and the JSON-RPC provider client.
package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	// PubkeyLen is the byte length of an ed25519 public key.
	PubkeyLen = 32
	// SignatureLen is the byte length of an ed25519 signature.
	SignatureLen = 64
)

// DecodePubkey decodes a base58 public key and checks its length.
func DecodePubkey(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey: %w", err)
	}
	if len(raw) != PubkeyLen {
		return nil, fmt.Errorf("pubkey length %d, want %d", len(raw), PubkeyLen)
	}
	return raw, nil
}

// IsOnCurve reports whether a 32-byte public key is a valid ed25519 curve
// point. Program-derived addresses are intentionally off-curve.
func IsOnCurve(point []byte) bool {
	if len(point) != PubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// ValidatePubkey checks base58 shape and length; it does not require the
// key to be on-curve (ATAs and PDAs are not).
func ValidatePubkey(s string) error {
	if s == "" {
		return errors.New("empty pubkey")
	}
	_, err := DecodePubkey(s)
	return err
}
