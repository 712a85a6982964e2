package solana

// UITokenAmount carries a token amount as the RPC reports it: an exact
// integer string plus the mint's decimals.
type UITokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// TokenBalance is one pre/post token balance entry from executed-transaction
// metadata.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// ParsedTransaction is the slice of getParsedTransaction the engine consumes:
// execution-level balance data plus the error field.
type ParsedTransaction struct {
	Slot              uint64         `json:"slot"`
	Err               interface{}    `json:"err"`
	PreTokenBalances  []TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

// Blockhash is the result of getLatestBlockhash.
type Blockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}
