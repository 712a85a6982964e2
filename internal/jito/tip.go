package jito

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"shredcopy/internal/domain"
	"shredcopy/internal/solana"
	"shredcopy/internal/txdecode"
)

// systemTransferIndex is the system program's transfer instruction tag.
const systemTransferIndex = 2

// BuildTipTransaction assembles and signs a single-instruction system
// transfer from the wallet to a tip account, against the given blockhash.
func BuildTipTransaction(wallet *solana.Wallet, tipAccount string, lamports uint64, blockhash string) ([]byte, error) {
	from, err := solana.DecodePubkey(wallet.Pubkey())
	if err != nil {
		return nil, fmt.Errorf("wallet pubkey: %w", err)
	}
	to, err := solana.DecodePubkey(tipAccount)
	if err != nil {
		return nil, fmt.Errorf("tip account: %w", err)
	}
	system, err := solana.DecodePubkey(domain.SystemProgram)
	if err != nil {
		return nil, err
	}
	hash, err := base58.Decode(blockhash)
	if err != nil || len(hash) != 32 {
		return nil, fmt.Errorf("blockhash %q invalid", blockhash)
	}

	// Instruction data: u32 transfer tag, u64 lamports, little-endian.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	// Legacy message: 1 required signature, 1 readonly unsigned (program).
	var msg []byte
	msg = append(msg, 1, 0, 1)
	msg = txdecode.AppendCompactU16(msg, 3)
	msg = append(msg, from...)
	msg = append(msg, to...)
	msg = append(msg, system...)
	msg = append(msg, hash...)
	msg = txdecode.AppendCompactU16(msg, 1)
	msg = append(msg, 2) // program id index
	msg = txdecode.AppendCompactU16(msg, 2)
	msg = append(msg, 0, 1)
	msg = txdecode.AppendCompactU16(msg, uint16(len(data)))
	msg = append(msg, data...)

	var tx []byte
	tx = txdecode.AppendCompactU16(tx, 1)
	tx = append(tx, make([]byte, solana.SignatureLen)...)
	tx = append(tx, msg...)

	signed, _, err := wallet.SignTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("sign tip transfer: %w", err)
	}
	return signed, nil
}
