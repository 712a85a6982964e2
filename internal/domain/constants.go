package domain

// Well-known mainnet addresses used across the engine.
const (
	// USDCMint is the USDC token mint. All trade sizing and P&L are
	// denominated against it.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	// USDCDecimals is the decimal count of the USDC mint.
	USDCDecimals = 6

	// VoteProgram is the native vote program. Transactions referencing it
	// are consensus traffic and never carry swaps.
	VoteProgram = "Vote111111111111111111111111111111111111111"

	// SystemProgram is the native system program, used for tip transfers.
	SystemProgram = "11111111111111111111111111111111"
)
