package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"shredcopy/internal/txdecode"
)

// Wallet holds the copy wallet's ed25519 keypair and signs serialized
// transactions in place.
type Wallet struct {
	priv   ed25519.PrivateKey
	pubkey string
}

// NewWalletFromBase58 builds a wallet from a base58-encoded 64-byte secret
// key (seed ++ public key, the standard keypair export format).
func NewWalletFromBase58(secret string) (*Wallet, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key length %d, want %d", len(raw), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	return &Wallet{priv: priv, pubkey: base58.Encode(pub)}, nil
}

// Pubkey returns the wallet's base58 public key.
func (w *Wallet) Pubkey() string { return w.pubkey }

// SignTransaction signs the message portion of a serialized transaction and
// writes the signature into the first signature slot. Returns the signed
// bytes and the base58 signature. The input slice is not modified.
func (w *Wallet) SignTransaction(txBytes []byte) ([]byte, string, error) {
	sigCount, n, err := txdecode.ReadCompactU16(txBytes, 0)
	if err != nil {
		return nil, "", fmt.Errorf("read signature count: %w", err)
	}
	if sigCount == 0 {
		return nil, "", errors.New("transaction has no signature slots")
	}
	msgStart := n + sigCount*SignatureLen
	if msgStart >= len(txBytes) {
		return nil, "", errors.New("transaction truncated before message")
	}

	signed := append([]byte(nil), txBytes...)
	sig := ed25519.Sign(w.priv, signed[msgStart:])
	copy(signed[n:n+SignatureLen], sig)
	return signed, base58.Encode(sig), nil
}

// LeadingSignature extracts the base58 first signature of a signed
// transaction without re-parsing the message.
func LeadingSignature(txBytes []byte) (string, error) {
	sigCount, n, err := txdecode.ReadCompactU16(txBytes, 0)
	if err != nil {
		return "", err
	}
	if sigCount == 0 || n+SignatureLen > len(txBytes) {
		return "", errors.New("transaction has no leading signature")
	}
	return base58.Encode(txBytes[n : n+SignatureLen]), nil
}
