package jito

import (
	"crypto/ed25519"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shredcopy/internal/domain"
	"shredcopy/internal/solana"
	"shredcopy/internal/txdecode"
)

func testWallet(t *testing.T) *solana.Wallet {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	w, err := solana.NewWalletFromBase58(base58.Encode(priv))
	require.NoError(t, err)
	return w
}

func TestBuildTipTransaction(t *testing.T) {
	w := testWallet(t)
	tipAccount := base58.Encode(make([]byte, 32))
	blockhash := base58.Encode(append([]byte{7}, make([]byte, 31)...))

	raw, err := BuildTipTransaction(w, tipAccount, 1_000_000, blockhash)
	require.NoError(t, err)

	tx, err := txdecode.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, txdecode.VersionLegacy, tx.Version)
	require.Len(t, tx.AccountKeys, 3)
	assert.Equal(t, w.Pubkey(), tx.AccountKeys[0])
	assert.Equal(t, tipAccount, tx.AccountKeys[1])
	assert.Equal(t, domain.SystemProgram, tx.AccountKeys[2])
	assert.Equal(t, blockhash, tx.Blockhash)

	require.Len(t, tx.Instructions, 1)
	ix := tx.Instructions[0]
	assert.Equal(t, uint8(2), ix.ProgramIDIndex)
	assert.Equal(t, []uint8{0, 1}, ix.AccountIndexes)
	require.Len(t, ix.Data, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ix.Data[0:4]))
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(ix.Data[4:12]))

	// The leading signature verifies against the wallet key.
	sigB58, err := solana.LeadingSignature(raw)
	require.NoError(t, err)
	sig, err := base58.Decode(sigB58)
	require.NoError(t, err)
	pub, err := base58.Decode(w.Pubkey())
	require.NoError(t, err)
	msgStart := 1 + 64 // compact sig count + one signature
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), raw[msgStart:], sig))
}

func TestBuildTipTransaction_BadInputs(t *testing.T) {
	w := testWallet(t)
	good := base58.Encode(make([]byte, 32))

	_, err := BuildTipTransaction(w, "notakey", 1, good)
	assert.Error(t, err)

	_, err = BuildTipTransaction(w, good, 1, "shorthash")
	assert.Error(t, err)
}
