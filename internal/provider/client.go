package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/tbv-labs/vault-depositor/internal/state"
)

// ClaimerTransactions is the set of pre-signed payout paths the vault
// provider prepares for one peg-in: claim, assert, optimistic payout and
// payout. Each is a PSBT awaiting the depositor's signature.
type ClaimerTransactions struct {
	ClaimPsbt            string `json:"claim_psbt"`
	AssertPsbt           string `json:"assert_psbt"`
	OptimisticPayoutPsbt string `json:"optimistic_payout_psbt"`
	PayoutPsbt           string `json:"payout_psbt"`
}

// PayoutSignature is the depositor's signature over one payout path.
type PayoutSignature struct {
	TxType    string `json:"tx_type"` // "claim", "assert", "optimistic_payout", "payout"
	Signature string `json:"signature"`
}

// Client talks JSON over HTTP to a vault-provider daemon.
type Client struct {
	providerURL string
	httpClient  *http.Client

	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewClient(providerURL string, pollInterval, pollTimeout time.Duration) *Client {
	return &Client{
		providerURL:  providerURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

type payoutTransactionsResp struct {
	Ready        bool                  `json:"ready"`
	Transactions []ClaimerTransactions `json:"transactions"`
}

var errNotReady = fmt.Errorf("payout transactions not ready")

// PollForPayoutTransactions polls the provider until the payout transaction
// templates for btcTxid are ready or the bounded poll timeout elapses.
func (c *Client) PollForPayoutTransactions(ctx context.Context, btcTxid, depositorPubkey string) ([]ClaimerTransactions, error) {
	url := fmt.Sprintf("%s/v1/pegins/%s/payout-transactions?depositor=%s", c.providerURL, btcTxid, depositorPubkey)

	var transactions []ClaimerTransactions
	operation := func() error {
		resp, err := c.fetchPayoutTransactions(ctx, url)
		if err != nil {
			return err
		}
		if !resp.Ready {
			return errNotReady
		}
		transactions = resp.Transactions
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.pollInterval
	policy.MaxInterval = 4 * c.pollInterval
	policy.MaxElapsedTime = c.pollTimeout

	notify := func(err error, next time.Duration) {
		log.Debugf("Payout transactions for %s not available (%v), retrying in %v", btcTxid, err, next)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("polling payout transactions for %s: %w", btcTxid, err)
	}
	return transactions, nil
}

func (c *Client) fetchPayoutTransactions(ctx context.Context, url string) (*payoutTransactionsResp, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out payoutTransactionsResp
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return &out, nil
	case http.StatusNotFound, http.StatusAccepted:
		// provider knows the pegin but has not produced templates yet
		return &payoutTransactionsResp{Ready: false}, nil
	default:
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
}

// FetchMarketParams reads the current market parameters from the provider.
// The caller is expected to cache the result; every deposit validates against
// these.
func (c *Client) FetchMarketParams(ctx context.Context) (*state.MarketParams, error) {
	url := fmt.Sprintf("%s/v1/params", c.providerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market parameters: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d for market parameters", resp.StatusCode)
	}
	var params state.MarketParams
	if err := json.NewDecoder(resp.Body).Decode(&params); err != nil {
		return nil, fmt.Errorf("failed to decode market parameters: %w", err)
	}
	return &params, nil
}

type submitSignaturesReq struct {
	BtcTxid         string            `json:"btc_txid"`
	DepositorPubkey string            `json:"depositor_pubkey"`
	Signatures      []PayoutSignature `json:"signatures"`
}

// SubmitSignatures posts the depositor's payout signatures back to the
// provider.
func (c *Client) SubmitSignatures(ctx context.Context, btcTxid, depositorPubkey string, signatures []PayoutSignature) error {
	body, err := json.Marshal(submitSignaturesReq{
		BtcTxid:         btcTxid,
		DepositorPubkey: depositorPubkey,
		Signatures:      signatures,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/pegins/%s/signatures", c.providerURL, btcTxid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit signatures for %s: %w", btcTxid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("provider rejected signatures for %s with status %d", btcTxid, resp.StatusCode)
	}
	log.Infof("Submitted %d payout signatures for pegin %s", len(signatures), btcTxid)
	return nil
}
