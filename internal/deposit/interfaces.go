package deposit

import (
	"context"
	"time"

	"github.com/tbv-labs/vault-depositor/internal/pegin"
	"github.com/tbv-labs/vault-depositor/internal/plan"
	"github.com/tbv-labs/vault-depositor/internal/provider"
	"github.com/tbv-labs/vault-depositor/internal/state"
	"github.com/tbv-labs/vault-depositor/internal/types"
)

// PeginTx is the external transaction builder's output for one vault.
type PeginTx struct {
	Txid     string
	PsbtHex  string
	RawTxHex string // unsigned serialization, kept for reservation bookkeeping
}

// TransactionBuilder prepares funded peg-in transactions. The production
// implementation wraps the vault transaction-building SDK; the orchestrator
// only depends on this contract.
type TransactionBuilder interface {
	BuildPeginPsbt(alloc plan.VaultAllocation, splitTx *plan.SplitTransaction, params *state.MarketParams, depositorPubkey []byte, changeAddress string, feeRate uint64) (*PeginTx, error)
}

// ChainClient is the Ethereum-side collaborator: registration submission,
// receipt waiting and vault status reads.
type ChainClient interface {
	RegisterPegin(ctx context.Context, peginTxid string, amount uint64, depositorPubkey []byte) (string, error)
	WaitForRegistration(ctx context.Context, txHash string, timeout time.Duration) error
	VaultStatus(peginTxid string) (pegin.ContractStatus, error)
}

// ProviderClient is the vault-provider daemon boundary.
type ProviderClient interface {
	PollForPayoutTransactions(ctx context.Context, btcTxid, depositorPubkey string) ([]provider.ClaimerTransactions, error)
	SubmitSignatures(ctx context.Context, btcTxid, depositorPubkey string, signatures []provider.PayoutSignature) error
}

// Broadcaster pushes signed raw transactions to the Bitcoin network. The
// production implementation is the btc package's RPC broadcaster.
type Broadcaster interface {
	PushTx(signedTxHex string) (string, error)
}

// ParamsSource fetches the lending-protocol market parameters. Results are
// cached by the orchestrator's ParamsCache.
type ParamsSource interface {
	FetchMarketParams(ctx context.Context) (*state.MarketParams, error)
}

// UtxoSet is the wallet's reported spendable set plus the outcome of loading
// it; a load failure is a validation failure, not an empty wallet.
type UtxoSet struct {
	Utxos   []types.Utxo
	LoadErr error
}
