package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shredcopy/internal/domain"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, domain.USDCMint, q.Get("inputMint"))
		assert.Equal(t, "tokenMint", q.Get("outputMint"))
		assert.Equal(t, "2000000", q.Get("amount"))
		assert.Equal(t, "100", q.Get("slippageBps"))
		assert.Equal(t, "ExactIn", q.Get("swapMode"))
		assert.Equal(t, "key123", r.Header.Get("X-API-KEY"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"inputMint":            domain.USDCMint,
			"inAmount":             "2000000",
			"outputMint":           "tokenMint",
			"outAmount":            "46672314888",
			"otherAmountThreshold": "46205591739",
			"swapMode":             "ExactIn",
			"priceImpactPct":       "0.05",
			"routePlan":            []interface{}{},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key123", quietLogger())
	q, err := c.GetQuote(context.Background(), QuoteRequest{
		InputMint:   domain.USDCMint,
		OutputMint:  "tokenMint",
		AmountRaw:   2_000_000,
		SlippageBps: 100,
		Mode:        domain.SwapModeExactIn,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(2_000_000), q.InAmountRaw)
	assert.Equal(t, uint64(46_672_314_888), q.OutAmountRaw)
	assert.Equal(t, uint64(46_205_591_739), q.OtherAmountThreshold)
	assert.Equal(t, "0.05", q.PriceImpactPct.String())
	assert.Equal(t, domain.SwapModeExactIn, q.Mode)
	assert.NotEmpty(t, q.Raw, "the raw quote JSON is replayed into the build request")
	assert.False(t, q.FetchedAt.IsZero())
}

func TestGetQuote_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"unexpected": true}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", quietLogger()).GetQuote(context.Background(), QuoteRequest{})
	require.Error(t, err)

	var qErr *QuoteError
	assert.ErrorAs(t, err, &qErr)
}

func TestGetQuote_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", quietLogger()).GetQuote(context.Background(), QuoteRequest{})
	var qErr *QuoteError
	assert.ErrorAs(t, err, &qErr)
}

func TestBuildSwap(t *testing.T) {
	txBytes := []byte{1, 2, 3, 4, 5}
	quoteRaw := []byte(`{"inAmount":"2000000","outAmount":"5"}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, string(quoteRaw), string(body["quoteResponse"]))

		var user string
		require.NoError(t, json.Unmarshal(body["userPublicKey"], &user))
		assert.Equal(t, "walletPub", user)

		var wrap bool
		require.NoError(t, json.Unmarshal(body["wrapAndUnwrapSol"], &wrap))
		assert.True(t, wrap)

		var cu uint64
		require.NoError(t, json.Unmarshal(body["computeUnitPriceMicroLamports"], &cu))
		assert.Equal(t, uint64(200_000), cu)

		json.NewEncoder(w).Encode(map[string]string{
			"swapTransaction": base64.StdEncoding.EncodeToString(txBytes),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", quietLogger())
	got, err := c.BuildSwap(context.Background(), &domain.Quote{Raw: quoteRaw}, "walletPub", 200_000)
	require.NoError(t, err)
	assert.Equal(t, txBytes, got)
}

func TestBuildSwap_MissingTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", quietLogger()).
		BuildSwap(context.Background(), &domain.Quote{Raw: []byte(`{}`)}, "w", 1)
	var bErr *BuildError
	assert.ErrorAs(t, err, &bErr)
}

func TestWarmup_TouchesAllEndpoints(t *testing.T) {
	paths := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths[r.URL.Path]++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	NewClient(srv.URL, "", quietLogger()).Warmup(context.Background())

	assert.Equal(t, 1, paths["/tokens"])
	assert.Equal(t, 1, paths["/quote"])
	assert.Equal(t, 1, paths["/swap"])
}
