package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbv-labs/vault-depositor/internal/provider"
	"github.com/tbv-labs/vault-depositor/internal/state"
)

func newClient(url string) *provider.Client {
	return provider.NewClient(url, 5*time.Millisecond, 500*time.Millisecond)
}

func TestPollForPayoutTransactionsRetriesUntilReady(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pegins/abc/payout-transactions", r.URL.Path)
		assert.Equal(t, "pk", r.URL.Query().Get("depositor"))

		// not ready for the first two polls
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ready": true,
			"transactions": []provider.ClaimerTransactions{{
				ClaimPsbt:  "claim",
				PayoutPsbt: "payout",
			}},
		})
	}))
	defer server.Close()

	transactions, err := newClient(server.URL).PollForPayoutTransactions(context.Background(), "abc", "pk")
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "claim", transactions[0].ClaimPsbt)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestPollForPayoutTransactionsTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newClient(server.URL).PollForPayoutTransactions(context.Background(), "abc", "pk")
	assert.Error(t, err)
}

func TestPollForPayoutTransactionsHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newClient(server.URL).PollForPayoutTransactions(ctx, "abc", "pk")
	assert.Error(t, err)
}

func TestSubmitSignatures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pegins/abc/signatures", r.URL.Path)

		var req struct {
			BtcTxid         string                      `json:"btc_txid"`
			DepositorPubkey string                      `json:"depositor_pubkey"`
			Signatures      []provider.PayoutSignature  `json:"signatures"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abc", req.BtcTxid)
		assert.Len(t, req.Signatures, 2)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	err := newClient(server.URL).SubmitSignatures(context.Background(), "abc", "pk", []provider.PayoutSignature{
		{TxType: "claim", Signature: "sig1"},
		{TxType: "payout", Signature: "sig2"},
	})
	assert.NoError(t, err)
}

func TestSubmitSignaturesRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	err := newClient(server.URL).SubmitSignatures(context.Background(), "abc", "pk", nil)
	assert.Error(t, err)
}

func TestFetchMarketParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/params", r.URL.Path)
		json.NewEncoder(w).Encode(state.MarketParams{
			VaultProviderPubkey: "provider-key",
			VaultKeeperPubkeys:  []string{"k1", "k2"},
			MinDepositAmount:    10_000,
		})
	}))
	defer server.Close()

	params, err := newClient(server.URL).FetchMarketParams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "provider-key", params.VaultProviderPubkey)
	assert.Len(t, params.VaultKeeperPubkeys, 2)
	assert.Equal(t, uint64(10_000), params.MinDepositAmount)
}
