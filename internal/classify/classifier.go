// Package classify tags transactions by the swap aggregator that routed
// them, using top-level instruction discriminators.
package classify

import (
	"shredcopy/internal/domain"
	"shredcopy/internal/txdecode"
)

// Recognized aggregator program IDs.
const (
	// JupiterV6 is the Jupiter v6 swap router.
	JupiterV6 = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	// OKXRouter is the OKX DEX aggregation router.
	OKXRouter = "6m2CDdhRgxpH4WjvdzxAYbGxwdGUz5MziiL5jek2kBma"
)

// DiscriminatorLen is the anchor instruction-prefix length.
const DiscriminatorLen = 8

// jupiterSwapPrefixes enumerates the router's swap entry points. Non-swap
// instructions (token ledger setup, account creation, fee claims) are
// deliberately absent.
var jupiterSwapPrefixes = map[[DiscriminatorLen]byte]string{
	{229, 23, 203, 151, 122, 227, 173, 42}:  "route",
	{150, 86, 71, 116, 167, 93, 14, 104}:    "route_with_token_ledger",
	{208, 51, 239, 151, 123, 43, 237, 92}:   "exact_out_route",
	{193, 32, 155, 51, 65, 214, 156, 129}:   "shared_accounts_route",
	{230, 121, 143, 80, 119, 159, 106, 170}: "shared_accounts_route_with_token_ledger",
	{176, 209, 105, 168, 154, 125, 69, 62}:  "shared_accounts_exact_out_route",
	{187, 35, 97, 44, 118, 174, 26, 11}:     "route_v2",
	{38, 173, 46, 9, 213, 116, 84, 202}:     "exact_out_route_v2",
	{94, 16, 212, 175, 134, 29, 71, 148}:    "shared_accounts_route_v2",
	{57, 202, 88, 141, 199, 23, 160, 75}:    "shared_accounts_exact_out_route_v2",
	{121, 66, 190, 28, 213, 147, 82, 35}:    "route_with_token_ledger_v2",
	{14, 225, 147, 99, 72, 184, 203, 56}:    "shared_accounts_route_with_token_ledger_v2",
}

// okxSwapPrefixes enumerates the OKX router's swap entry points.
var okxSwapPrefixes = map[[DiscriminatorLen]byte]string{
	{248, 198, 158, 145, 225, 117, 135, 200}: "swap",
	{65, 75, 63, 76, 235, 91, 91, 136}:       "swap2",
	{107, 31, 40, 215, 99, 164, 57, 188}:     "swap_tob_vault",
	{89, 18, 104, 23, 232, 48, 219, 141}:     "commission_spl_swap2",
	{112, 190, 45, 231, 122, 64, 37, 198}:    "commission_sol_swap2",
	{12, 207, 95, 134, 217, 78, 160, 21}:     "from_swap_log",
}

// Classify walks top-level instructions over the resolved account keys and
// returns the aggregator tag. Inner (CPI) instructions are not examined:
// router entry points are always top-level, and CPI inspection would
// misattribute venue hops to the router.
func Classify(tx *txdecode.Transaction, fullKeys []string) domain.AggregatorTag {
	for _, ix := range tx.Instructions {
		if int(ix.ProgramIDIndex) >= len(fullKeys) {
			continue
		}
		if len(ix.Data) < DiscriminatorLen {
			continue
		}
		var prefix [DiscriminatorLen]byte
		copy(prefix[:], ix.Data[:DiscriminatorLen])

		switch fullKeys[ix.ProgramIDIndex] {
		case JupiterV6:
			if _, ok := jupiterSwapPrefixes[prefix]; ok {
				return domain.AggregatorA
			}
		case OKXRouter:
			if _, ok := okxSwapPrefixes[prefix]; ok {
				return domain.AggregatorB
			}
		}
	}
	return domain.AggregatorNone
}

// SwapPrefixes returns the discriminator set for a tag. Test hook and
// metrics labeling.
func SwapPrefixes(tag domain.AggregatorTag) map[[DiscriminatorLen]byte]string {
	switch tag {
	case domain.AggregatorA:
		return jupiterSwapPrefixes
	case domain.AggregatorB:
		return okxSwapPrefixes
	default:
		return nil
	}
}
