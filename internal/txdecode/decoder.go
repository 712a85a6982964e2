// Package txdecode deserializes Solana transaction wire bytes, legacy and
// versioned, without executing or validating them.
package txdecode

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrDecode is returned when bytes parse as neither a versioned nor a
// legacy transaction.
var ErrDecode = errors.New("txdecode: not a valid transaction")

const (
	signatureLen = 64
	pubkeyLen    = 32
	blockhashLen = 32

	// versionPrefixMask marks a versioned message; the low bits carry the
	// version number (only v0 exists).
	versionPrefixMask = 0x80
)

// Version tags the message format of a decoded transaction.
type Version uint8

const (
	VersionLegacy Version = iota
	VersionV0
)

// CompiledInstruction is a top-level instruction as carried on the wire:
// indexes into the account-key vector plus opaque data.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// LookupRef references an address-lookup-table account and the indexes a
// versioned transaction loads from it.
type LookupRef struct {
	Table       string // base58 table account
	WritableIxs []uint8
	ReadonlyIxs []uint8
}

// Transaction is the decoded form of one wire transaction.
type Transaction struct {
	Signature    string   // base58 of the first 64-byte signature
	AccountKeys  []string // static keys only
	Version      Version
	Instructions []CompiledInstruction
	LookupRefs   []LookupRef
	Blockhash    string
}

// HasLookups reports whether full account-key resolution needs table fetches.
func (t *Transaction) HasLookups() bool {
	return t.Version == VersionV0 && len(t.LookupRefs) > 0
}

// Decode parses tx bytes into a Transaction. Versioned decode is attempted
// first; on structural failure the legacy layout is tried. ErrDecode wraps
// the underlying cause when both fail.
func Decode(buf []byte) (*Transaction, error) {
	tx, vErr := decodeMessage(buf, true)
	if vErr == nil {
		return tx, nil
	}
	tx, lErr := decodeMessage(buf, false)
	if lErr == nil {
		return tx, nil
	}
	return nil, fmt.Errorf("%w: versioned: %v, legacy: %v", ErrDecode, vErr, lErr)
}

func decodeMessage(buf []byte, versioned bool) (*Transaction, error) {
	pos := 0

	sigCount, n, err := ReadCompactU16(buf, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	if sigCount == 0 {
		return nil, errors.New("zero signatures")
	}
	if pos+sigCount*signatureLen > len(buf) {
		return nil, ErrShortBuffer
	}
	firstSig := buf[pos : pos+signatureLen]
	pos += sigCount * signatureLen

	tx := &Transaction{
		Signature: base58.Encode(firstSig),
		Version:   VersionLegacy,
	}

	if versioned {
		if pos >= len(buf) {
			return nil, ErrShortBuffer
		}
		prefix := buf[pos]
		if prefix&versionPrefixMask == 0 {
			return nil, errors.New("missing version prefix")
		}
		if prefix&0x7f != 0 {
			return nil, fmt.Errorf("unsupported message version %d", prefix&0x7f)
		}
		tx.Version = VersionV0
		pos++
	}

	// Header: required signatures, readonly signed, readonly unsigned.
	if pos+3 > len(buf) {
		return nil, ErrShortBuffer
	}
	pos += 3

	keyCount, n, err := ReadCompactU16(buf, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	if keyCount == 0 || pos+keyCount*pubkeyLen > len(buf) {
		return nil, ErrShortBuffer
	}
	tx.AccountKeys = make([]string, keyCount)
	for i := 0; i < keyCount; i++ {
		tx.AccountKeys[i] = base58.Encode(buf[pos : pos+pubkeyLen])
		pos += pubkeyLen
	}

	if pos+blockhashLen > len(buf) {
		return nil, ErrShortBuffer
	}
	tx.Blockhash = base58.Encode(buf[pos : pos+blockhashLen])
	pos += blockhashLen

	ixCount, n, err := ReadCompactU16(buf, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	tx.Instructions = make([]CompiledInstruction, 0, ixCount)
	for i := 0; i < ixCount; i++ {
		if pos >= len(buf) {
			return nil, ErrShortBuffer
		}
		ix := CompiledInstruction{ProgramIDIndex: buf[pos]}
		pos++

		acctCount, n, err := ReadCompactU16(buf, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if pos+acctCount > len(buf) {
			return nil, ErrShortBuffer
		}
		ix.AccountIndexes = append([]uint8(nil), buf[pos:pos+acctCount]...)
		pos += acctCount

		dataLen, n, err := ReadCompactU16(buf, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if pos+dataLen > len(buf) {
			return nil, ErrShortBuffer
		}
		ix.Data = append([]byte(nil), buf[pos:pos+dataLen]...)
		pos += dataLen

		tx.Instructions = append(tx.Instructions, ix)
	}

	if versioned {
		lookupCount, n, err := ReadCompactU16(buf, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		tx.LookupRefs = make([]LookupRef, 0, lookupCount)
		for i := 0; i < lookupCount; i++ {
			if pos+pubkeyLen > len(buf) {
				return nil, ErrShortBuffer
			}
			ref := LookupRef{Table: base58.Encode(buf[pos : pos+pubkeyLen])}
			pos += pubkeyLen

			wLen, n, err := ReadCompactU16(buf, pos)
			if err != nil {
				return nil, err
			}
			pos += n
			if pos+wLen > len(buf) {
				return nil, ErrShortBuffer
			}
			ref.WritableIxs = append([]uint8(nil), buf[pos:pos+wLen]...)
			pos += wLen

			rLen, n, err := ReadCompactU16(buf, pos)
			if err != nil {
				return nil, err
			}
			pos += n
			if pos+rLen > len(buf) {
				return nil, ErrShortBuffer
			}
			ref.ReadonlyIxs = append([]uint8(nil), buf[pos:pos+rLen]...)
			pos += rLen

			tx.LookupRefs = append(tx.LookupRefs, ref)
		}
	}

	return tx, nil
}

// Measure walks a transaction in place starting at buf[0] and returns its
// wire length without allocating. It never reads past the buffer; a result
// of 0 with a nil error cannot occur — malformed input returns an error.
func Measure(buf []byte) (int, error) {
	pos := 0

	sigCount, n, err := ReadCompactU16(buf, pos)
	if err != nil {
		return 0, err
	}
	pos += n
	if pos+sigCount*signatureLen > len(buf) {
		return 0, ErrShortBuffer
	}
	pos += sigCount * signatureLen

	if pos >= len(buf) {
		return 0, ErrShortBuffer
	}
	versioned := buf[pos]&versionPrefixMask != 0
	if versioned {
		pos++
	}

	if pos+3 > len(buf) {
		return 0, ErrShortBuffer
	}
	pos += 3

	keyCount, n, err := ReadCompactU16(buf, pos)
	if err != nil {
		return 0, err
	}
	pos += n + keyCount*pubkeyLen + blockhashLen
	if pos > len(buf) {
		return 0, ErrShortBuffer
	}

	ixCount, n, err := ReadCompactU16(buf, pos)
	if err != nil {
		return 0, err
	}
	pos += n
	for i := 0; i < ixCount; i++ {
		pos++ // program id index
		acctCount, n, err := ReadCompactU16(buf, pos)
		if err != nil {
			return 0, err
		}
		pos += n + acctCount
		dataLen, n, err := ReadCompactU16(buf, pos)
		if err != nil {
			return 0, err
		}
		pos += n + dataLen
		if pos > len(buf) {
			return 0, ErrShortBuffer
		}
	}

	if versioned {
		lookupCount, n, err := ReadCompactU16(buf, pos)
		if err != nil {
			return 0, err
		}
		pos += n
		for i := 0; i < lookupCount; i++ {
			pos += pubkeyLen
			wLen, n, err := ReadCompactU16(buf, pos)
			if err != nil {
				return 0, err
			}
			pos += n + wLen
			rLen, n, err := ReadCompactU16(buf, pos)
			if err != nil {
				return 0, err
			}
			pos += n + rLen
			if pos > len(buf) {
				return 0, ErrShortBuffer
			}
		}
	}

	return pos, nil
}
