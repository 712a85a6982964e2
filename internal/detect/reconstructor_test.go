package detect

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shredcopy/internal/domain"
	"shredcopy/internal/solana"
)

const (
	testUser = "8ZhZwhPnVbAjbvnyvTTtFNgFstcHqn1C79119CiUP7vt"
	moonMint = "9223LqkcwCPBzk9FHV1HUUqZ3eFSbqbaWJy6LFTFmoon"
)

type metaRPC struct {
	solana.RPCClient
	meta *solana.ParsedTransaction
	err  error
}

func (m *metaRPC) GetParsedTransaction(context.Context, string) (*solana.ParsedTransaction, error) {
	return m.meta, m.err
}

func balance(mint, owner, amount string, decimals uint8) solana.TokenBalance {
	return solana.TokenBalance{
		Mint:  mint,
		Owner: owner,
		UITokenAmount: solana.UITokenAmount{
			Amount:   amount,
			Decimals: decimals,
		},
	}
}

func TestUserDeltas(t *testing.T) {
	meta := &solana.ParsedTransaction{
		PreTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "5000000", 6),
			balance(moonMint, testUser, "0", 9),
			balance(domain.USDCMint, "someone-else", "999", 6),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "2950000", 6),
			balance(moonMint, testUser, "46672314888", 9),
		},
	}

	deltas := UserDeltas(meta, testUser)
	require.Len(t, deltas, 2)

	byMint := map[string]domain.TokenBalanceDelta{}
	for _, d := range deltas {
		byMint[d.Mint] = d
	}
	assert.True(t, byMint[domain.USDCMint].RawDelta.Equal(decimal.NewFromInt(-2050000)))
	assert.True(t, byMint[moonMint].RawDelta.Equal(decimal.NewFromInt(46672314888)))
	assert.Equal(t, uint8(9), byMint[moonMint].Decimals)
}

// Scenario: $2.05 USDC spent for 46 672 314 888 raw tokens through
// aggregator B.
func TestReconstruct_BuyDetection(t *testing.T) {
	rpc := &metaRPC{meta: &solana.ParsedTransaction{
		PreTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "5000000", 6),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "2950000", 6),
			balance(moonMint, testUser, "46672314888", 9),
		},
	}}

	r := NewReconstructor(rpc)
	trade, err := r.Reconstruct(context.Background(), "sig1", 42, domain.AggregatorB, testUser)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, domain.DirectionBuy, trade.Direction)
	assert.Equal(t, moonMint, trade.TokenMint)
	assert.True(t, trade.UsdcAmount.Equal(decimal.RequireFromString("2.05")),
		"usdc amount %s", trade.UsdcAmount)
	assert.Equal(t, uint64(46672314888), trade.TokenAmountRaw)
	assert.Equal(t, uint8(9), trade.TokenDecimals)
	assert.Equal(t, testUser, trade.User)
	assert.Equal(t, domain.AggregatorB, trade.Aggregator)
	assert.Equal(t, uint64(42), trade.Slot)
	assert.False(t, trade.DetectedAt.IsZero())

	// Emission invariants.
	assert.NotEqual(t, domain.USDCMint, trade.TokenMint)
	assert.True(t, trade.UsdcAmount.IsPositive())
}

// Scenario: fee-adjusted sell. The user receives less USDC than the trade
// notionally moved; direction is still Sell and the amount is net received.
func TestReconstruct_SellNetOfFee(t *testing.T) {
	rpc := &metaRPC{meta: &solana.ParsedTransaction{
		PreTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "1000000", 6),
			balance(moonMint, testUser, "89719395723", 9),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "2154294", 6),
			balance(moonMint, testUser, "0", 9),
		},
	}}

	r := NewReconstructor(rpc)
	trade, err := r.Reconstruct(context.Background(), "sig2", 43, domain.AggregatorB, testUser)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, domain.DirectionSell, trade.Direction)
	assert.True(t, trade.UsdcAmount.Equal(decimal.RequireFromString("1.154294")),
		"usdc amount %s", trade.UsdcAmount)
	assert.Equal(t, uint64(89719395723), trade.TokenAmountRaw)
}

func TestReconstruct_NoUSDCLeg(t *testing.T) {
	rpc := &metaRPC{meta: &solana.ParsedTransaction{
		PreTokenBalances: []solana.TokenBalance{
			balance(moonMint, testUser, "100", 9),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(moonMint, testUser, "900", 9),
		},
	}}

	trade, err := NewReconstructor(rpc).Reconstruct(context.Background(), "sig", 1, domain.AggregatorA, testUser)
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestReconstruct_TwoTokenLegs(t *testing.T) {
	rpc := &metaRPC{meta: &solana.ParsedTransaction{
		PreTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "9000000", 6),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "1000000", 6),
			balance(moonMint, testUser, "5", 9),
			balance("OtherMint11111111111111111111111111111111111", testUser, "7", 4),
		},
	}}

	trade, err := NewReconstructor(rpc).Reconstruct(context.Background(), "sig", 1, domain.AggregatorA, testUser)
	require.NoError(t, err)
	assert.Nil(t, trade, "token-to-token routes are not USDC trades")
}

func TestReconstruct_FailedTransaction(t *testing.T) {
	rpc := &metaRPC{meta: &solana.ParsedTransaction{
		Err: map[string]interface{}{"InstructionError": []interface{}{}},
	}}

	trade, err := NewReconstructor(rpc).Reconstruct(context.Background(), "sig", 1, domain.AggregatorA, testUser)
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestReconstruct_DustIgnored(t *testing.T) {
	rpc := &metaRPC{meta: &solana.ParsedTransaction{
		PreTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "1000000", 6),
		},
		PostTokenBalances: []solana.TokenBalance{
			balance(domain.USDCMint, testUser, "1000000", 6),
			balance(moonMint, testUser, "5", 9),
		},
	}}

	trade, err := NewReconstructor(rpc).Reconstruct(context.Background(), "sig", 1, domain.AggregatorA, testUser)
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestSeenSet(t *testing.T) {
	s := newSeenSet()
	now := time.Now()

	assert.False(t, s.markSeen("sig", "user", now))
	assert.True(t, s.markSeen("sig", "user", now.Add(time.Second)))
	assert.False(t, s.markSeen("sig", "other-user", now))
	assert.False(t, s.markSeen("sig2", "user", now))

	// Window expiry re-admits the pair.
	assert.False(t, s.markSeen("sig", "user", now.Add(seenWindow+time.Second)))
}

func TestUserDeltas_RandomizedDecimals(t *testing.T) {
	for _, decimals := range []uint8{0, 2, 5, 6, 9, 12} {
		meta := &solana.ParsedTransaction{
			PreTokenBalances: []solana.TokenBalance{
				balance("m", testUser, "1000", decimals),
			},
			PostTokenBalances: []solana.TokenBalance{
				balance("m", testUser, "250", decimals),
			},
		}
		deltas := UserDeltas(meta, testUser)
		require.Len(t, deltas, 1)
		assert.True(t, deltas[0].RawDelta.Equal(decimal.NewFromInt(-750)))
		assert.Equal(t, decimals, deltas[0].Decimals)
	}
}
