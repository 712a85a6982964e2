package solana

import (
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shredcopy/internal/txdecode"
)

func testWallet(t *testing.T) *Wallet {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	w, err := NewWalletFromBase58(base58.Encode(priv))
	require.NoError(t, err)
	return w
}

// unsignedTx builds a one-signature transaction with a zeroed signature
// slot, the shape the build API returns.
func unsignedTx() []byte {
	var msg []byte
	msg = append(msg, 1, 0, 1)
	msg = txdecode.AppendCompactU16(msg, 1)
	msg = append(msg, make([]byte, 32)...) // one key
	msg = append(msg, make([]byte, 32)...) // blockhash
	msg = txdecode.AppendCompactU16(msg, 0)

	var tx []byte
	tx = txdecode.AppendCompactU16(tx, 1)
	tx = append(tx, make([]byte, 64)...)
	return append(tx, msg...)
}

func TestWallet_SignTransaction(t *testing.T) {
	w := testWallet(t)
	tx := unsignedTx()

	signed, sigB58, err := w.SignTransaction(tx)
	require.NoError(t, err)
	assert.Len(t, signed, len(tx))

	// Original input untouched.
	assert.Equal(t, make([]byte, 64), tx[1:65])

	sig := signed[1:65]
	assert.Equal(t, base58.Encode(sig), sigB58)

	pub, err := base58.Decode(w.Pubkey())
	require.NoError(t, err)
	msg := signed[65:]
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), msg, sig))
}

func TestWallet_BadSecret(t *testing.T) {
	if _, err := NewWalletFromBase58("not-base58-!!!"); err == nil {
		t.Fatal("expected error for invalid base58")
	}
	if _, err := NewWalletFromBase58(base58.Encode([]byte{1, 2, 3})); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestLeadingSignature(t *testing.T) {
	w := testWallet(t)
	signed, sigB58, err := w.SignTransaction(unsignedTx())
	require.NoError(t, err)

	got, err := LeadingSignature(signed)
	require.NoError(t, err)
	assert.Equal(t, sigB58, got)

	if _, err := LeadingSignature([]byte{}); err == nil {
		t.Fatal("expected error on empty input")
	}
}

func TestIsOnCurve(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	assert.True(t, IsOnCurve(pub))

	// A PDA-style off-curve point: y = 2 has no matching x on the curve.
	bad := make([]byte, 32)
	bad[0] = 2
	assert.False(t, IsOnCurve(bad))
	assert.False(t, IsOnCurve([]byte{1, 2}))
}

func TestValidatePubkey(t *testing.T) {
	w := testWallet(t)
	assert.NoError(t, ValidatePubkey(w.Pubkey()))
	assert.Error(t, ValidatePubkey(""))
	assert.Error(t, ValidatePubkey("tooshort"))
}
