package layer2

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
)

// DepositAdapter exposes the registry client through string-typed txids and
// hashes for the deposit orchestrator, and holds the depositor's transact
// options. The raw Client keeps the common.Hash surface for callers that
// already work in go-ethereum types.
type DepositAdapter struct {
	client *Client
	auth   *bind.TransactOpts
}

func NewDepositAdapter(client *Client, auth *bind.TransactOpts) *DepositAdapter {
	return &DepositAdapter{client: client, auth: auth}
}

// RegisterPegin submits the registration transaction for a peg-in txid and
// returns the Ethereum transaction hash.
func (a *DepositAdapter) RegisterPegin(ctx context.Context, peginTxid string, amount uint64, depositorPubkey []byte) (string, error) {
	if len(depositorPubkey) != 32 {
		return "", fmt.Errorf("depositor pubkey must be 32 bytes (x-only), got %d", len(depositorPubkey))
	}
	var pubkey [32]byte
	copy(pubkey[:], depositorPubkey)

	opts := *a.auth
	opts.Context = ctx
	hash, err := a.client.RegisterPegin(&opts, common.HexToHash(peginTxid), amount, pubkey)
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func (a *DepositAdapter) WaitForRegistration(ctx context.Context, txHash string, timeout time.Duration) error {
	return a.client.WaitForRegistration(ctx, common.HexToHash(txHash), timeout)
}

func (a *DepositAdapter) VaultStatus(peginTxid string) (pegin.ContractStatus, error) {
	return a.client.VaultStatus(common.HexToHash(peginTxid))
}
