package entry

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTx assembles a minimal legacy wire transaction for payload tests.
func buildTx(rng *rand.Rand) []byte {
	var buf []byte
	buf = append(buf, 1) // signature count
	sig := make([]byte, 64)
	rng.Read(sig)
	buf = append(buf, sig...)

	keyCount := 1 + rng.Intn(4)
	buf = append(buf, 1, 0, 1) // header
	buf = append(buf, byte(keyCount))
	for i := 0; i < keyCount; i++ {
		key := make([]byte, 32)
		rng.Read(key)
		buf = append(buf, key...)
	}
	blockhash := make([]byte, 32)
	rng.Read(blockhash)
	buf = append(buf, blockhash...)

	ixCount := rng.Intn(3)
	buf = append(buf, byte(ixCount))
	for i := 0; i < ixCount; i++ {
		buf = append(buf, byte(rng.Intn(keyCount))) // program index
		buf = append(buf, 1, 0)                     // one account, index 0
		dataLen := rng.Intn(24)
		buf = append(buf, byte(dataLen))
		data := make([]byte, dataLen)
		rng.Read(data)
		buf = append(buf, data...)
	}
	return buf
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// buildPayload serializes entries the way the stream frames them.
func buildPayload(entries [][][]byte) []byte {
	var buf []byte
	buf = appendU64(buf, uint64(len(entries)))
	for i, txs := range entries {
		buf = appendU64(buf, uint64(i+10)) // hash count
		buf = append(buf, make([]byte, 32)...)
		buf = appendU64(buf, uint64(len(txs)))
		for _, tx := range txs {
			buf = append(buf, tx...)
		}
	}
	return buf
}

func TestDecodePayload_Empty(t *testing.T) {
	entries, err := DecodePayload(buildPayload(nil))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecodePayload_EntryWithoutTransactions(t *testing.T) {
	entries, err := DecodePayload(buildPayload([][][]byte{{}}))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(10), entries[0].HashCount)
	assert.Empty(t, entries[0].Transactions)
}

func TestDecodePayload_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 100; iter++ {
		var want [][][]byte
		for e := 0; e < rng.Intn(5); e++ {
			var txs [][]byte
			for x := 0; x < rng.Intn(6); x++ {
				txs = append(txs, buildTx(rng))
			}
			want = append(want, txs)
		}

		entries, err := DecodePayload(buildPayload(want))
		require.NoError(t, err, "iteration %d", iter)
		require.Len(t, entries, len(want), "iteration %d", iter)
		for e := range want {
			require.Len(t, entries[e].Transactions, len(want[e]))
			for x := range want[e] {
				assert.Equal(t, want[e][x], entries[e].Transactions[x])
			}
		}
	}
}

func TestDecodePayload_TruncatedPrefix(t *testing.T) {
	payload := buildPayload([][][]byte{{buildTx(rand.New(rand.NewSource(1)))}})

	for _, cut := range []int{4, 9, 20, len(payload) - 5} {
		_, err := DecodePayload(payload[:cut])
		assert.ErrorIs(t, err, ErrMalformedEntry, "cut %d", cut)
	}
}

func TestDecodePayload_UnmeasurableTransaction(t *testing.T) {
	var buf []byte
	buf = appendU64(buf, 1)
	buf = appendU64(buf, 1)
	buf = append(buf, make([]byte, 32)...)
	buf = appendU64(buf, 1)               // one transaction claimed
	buf = append(buf, 0xff, 0xff, 0xff)   // not a parseable transaction

	_, err := DecodePayload(buf)
	assert.ErrorIs(t, err, ErrMalformedEntry)
}

func TestDecodePayload_CountOverrunsBuffer(t *testing.T) {
	var buf []byte
	buf = appendU64(buf, 1<<40) // absurd entry count
	_, err := DecodePayload(buf)
	assert.ErrorIs(t, err, ErrMalformedEntry)
}
