package deposit

import (
	"fmt"

	"github.com/tbv-labs/vault-depositor/internal/plan"
)

// VaultResult is the outcome of one vault's peg-in creation. Failures are
// values, not panics or aborts: a failed vault never blocks or rolls back a
// successful one.
type VaultResult struct {
	VaultIndex  int    `json:"vault_index"`
	Amount      uint64 `json:"amount"`
	PeginTxid   string `json:"pegin_txid,omitempty"`
	EthTxHash   string `json:"eth_tx_hash,omitempty"`
	FromSplit   bool   `json:"from_split"`
	SignedTxHex string `json:"-"`
	// UnsignedTxHex feeds the reservation tracker once persisted.
	UnsignedTxHex string `json:"-"`
	Error         string `json:"error,omitempty"`
}

func (r VaultResult) Failed() bool {
	return r.Error != ""
}

// BatchResult is the overall outcome of one orchestration run. Background
// failures surface as warnings; the pegins slice always has one entry per
// requested vault.
type BatchResult struct {
	Pegins    []VaultResult `json:"pegins"`
	BatchId   string        `json:"batch_id"`
	SplitTxid string        `json:"split_txid,omitempty"`
	Strategy  plan.Strategy `json:"strategy"`
	Warnings  []string      `json:"warnings,omitempty"`
}

// SucceededCount returns how many vaults completed peg-in creation.
func (r *BatchResult) SucceededCount() int {
	n := 0
	for _, p := range r.Pegins {
		if !p.Failed() {
			n++
		}
	}
	return n
}

// ValidationError reports a precondition failure. Always fatal, surfaced
// before any signature is requested, never retried automatically.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("deposit validation failed: %s", e.Reason)
}
