package solana

import "context"

// RPCClient defines the chain JSON-RPC surface the engine consumes.
type RPCClient interface {
	// GetParsedTransaction retrieves executed-transaction metadata by
	// signature at confirmed commitment. Returns nil when not yet found.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetAddressLookupTable fetches a lookup-table account and returns its
	// address vector in table order.
	GetAddressLookupTable(ctx context.Context, table string) ([]string, error)

	// SendTransaction submits signed bytes with skip_preflight=true and
	// returns the signature echoed by the node.
	SendTransaction(ctx context.Context, signedTx []byte) (string, error)

	// ConfirmTransaction polls until the signature is confirmed or ctx ends.
	ConfirmTransaction(ctx context.Context, signature string) error

	// GetLatestBlockhash returns the current confirmed blockhash.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)
}
