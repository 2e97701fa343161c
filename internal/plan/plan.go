package plan

import (
	"fmt"

	"github.com/tbv-labs/vault-depositor/internal/types"
)

// Strategy is the funding shape chosen for one deposit attempt.
type Strategy string

const (
	StrategySingle     Strategy = "SINGLE"
	StrategyMultiInput Strategy = "MULTI_INPUT"
	StrategySplit      Strategy = "SPLIT"
)

// FundingKind tags how a vault allocation is funded. Modeled as a variant so
// every consumption site has to handle both arms instead of branching on a
// bool plus optional fields.
type FundingKind string

const (
	FundingDirect FundingKind = "direct"
	FundingSplit  FundingKind = "split"
)

// VaultAllocation assigns a funding source to one requested vault amount.
// Exactly one of Utxos (FundingDirect) or SplitOutputIndex (FundingSplit)
// is meaningful, selected by Kind.
type VaultAllocation struct {
	VaultIndex       int          `json:"vault_index"`
	Kind             FundingKind  `json:"kind"`
	Utxos            []types.Utxo `json:"utxos,omitempty"`
	SplitOutputIndex int          `json:"split_output_index,omitempty"`
	Amount           uint64       `json:"amount"`
}

// SplitOutput is one output of a split transaction.
type SplitOutput struct {
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
	Vout    uint32 `json:"vout"`
}

// SplitTransaction carves one UTXO set into per-vault outputs plus change.
type SplitTransaction struct {
	Inputs  []types.Utxo  `json:"inputs"`
	Outputs []SplitOutput `json:"outputs"`
	TxHex   string        `json:"tx_hex"`
	PsbtHex string        `json:"psbt_hex"`
	Txid    string        `json:"txid"`
}

// AllocationPlan is the planner's output for one deposit attempt.
//
// Invariant: the allocation amounts sum to the requested vault amounts, and
// every allocation is either direct with a non-empty UTXO set or split with a
// valid output index, never both.
type AllocationPlan struct {
	Strategy   Strategy          `json:"strategy"`
	NeedsSplit bool              `json:"needs_split"`
	SplitTx    *SplitTransaction `json:"split_tx,omitempty"`
	Vaults     []VaultAllocation `json:"vaults"`
}

// InsufficientFundsError reports that no funding strategy covers the
// requested vault amounts. Callers must not silently proceed.
type InsufficientFundsError struct {
	Required  uint64
	Available uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d sat, available %d sat, short %d sat",
		e.Required, e.Available, e.Required-e.Available)
}

// Shortfall returns how many satoshis were missing.
func (e *InsufficientFundsError) Shortfall() uint64 {
	if e.Available >= e.Required {
		return 0
	}
	return e.Required - e.Available
}

// SplitTxBuilder constructs the actual split transaction once the planner has
// chosen inputs and amounts. The production implementation lives in the btc
// package; tests substitute a fake.
type SplitTxBuilder interface {
	BuildSplitTx(inputs []types.Utxo, vaultAmounts []uint64, destAddress, changeAddress string, feeRate uint64) (*SplitTransaction, error)
}
