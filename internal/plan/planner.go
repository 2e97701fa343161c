package plan

import (
	"fmt"
	"sort"

	"github.com/tbv-labs/vault-depositor/internal/types"
	log "github.com/sirupsen/logrus"
)

// Planner chooses how to carve a wallet's spendable UTXO set into one or two
// vault-funding amounts. Plan and CanSplit are deterministic, re-entrant and
// side-effect free; the only collaborator is the injected split builder.
type Planner struct {
	builder SplitTxBuilder
}

func NewPlanner(builder SplitTxBuilder) *Planner {
	return &Planner{builder: builder}
}

// Plan computes a funding strategy for the requested vault amounts.
//
// One amount always resolves to SINGLE. Two amounts first try MULTI_INPUT
// (two disjoint UTXO subsets, one per vault); when that is infeasible the
// planner falls back to SPLIT, carving one selection into per-vault outputs
// via an on-chain split transaction. When neither strategy covers the
// amounts, Plan fails with *InsufficientFundsError.
func (p *Planner) Plan(utxos []types.Utxo, vaultAmounts []uint64, feeRate uint64, changeAddress string) (*AllocationPlan, error) {
	if len(vaultAmounts) == 0 {
		return nil, fmt.Errorf("no vault amounts requested")
	}
	if len(vaultAmounts) > 2 {
		return nil, fmt.Errorf("at most 2 vaults per deposit, got %d", len(vaultAmounts))
	}
	for i, amount := range vaultAmounts {
		if amount == 0 {
			return nil, fmt.Errorf("vault %d amount is zero", i)
		}
	}

	if len(vaultAmounts) == 1 {
		selected, err := selectForAmount(utxos, vaultAmounts[0], feeRate)
		if err != nil {
			return nil, err
		}
		return &AllocationPlan{
			Strategy: StrategySingle,
			Vaults: []VaultAllocation{{
				VaultIndex: 0,
				Kind:       FundingDirect,
				Utxos:      selected,
				Amount:     vaultAmounts[0],
			}},
		}, nil
	}

	// Two vaults: prefer funding each independently from disjoint UTXOs, no
	// extra transaction needed.
	if allocations, ok := selectDisjoint(utxos, vaultAmounts, feeRate); ok {
		return &AllocationPlan{
			Strategy: StrategyMultiInput,
			Vaults:   allocations,
		}, nil
	}

	// Fall back to splitting one selection into per-vault outputs.
	inputs, err := selectForSplit(utxos, vaultAmounts, feeRate)
	if err != nil {
		return nil, err
	}
	log.Debugf("Multi-input infeasible for amounts %v, splitting %d inputs", vaultAmounts, len(inputs))

	splitTx, err := p.builder.BuildSplitTx(inputs, vaultAmounts, changeAddress, changeAddress, feeRate)
	if err != nil {
		return nil, fmt.Errorf("failed to build split transaction: %w", err)
	}

	allocations := make([]VaultAllocation, len(vaultAmounts))
	for i, amount := range vaultAmounts {
		allocations[i] = VaultAllocation{
			VaultIndex:       i,
			Kind:             FundingSplit,
			SplitOutputIndex: i,
			Amount:           amount,
		}
	}
	return &AllocationPlan{
		Strategy:   StrategySplit,
		NeedsSplit: true,
		SplitTx:    splitTx,
		Vaults:     allocations,
	}, nil
}

// CanSplit probes whether a SPLIT strategy could cover the given two-vault
// amounts. Same selection code path as Plan, reported as a boolean with no
// side effects; the UI uses it to enable the split checkbox.
func (p *Planner) CanSplit(utxos []types.Utxo, vaultAmounts []uint64, feeRate uint64) bool {
	if len(vaultAmounts) != 2 {
		return false
	}
	_, err := selectForSplit(utxos, vaultAmounts, feeRate)
	return err == nil
}

// selectForAmount greedily picks UTXOs by descending value until the target
// amount plus the conservative pegin fee is covered.
func selectForAmount(utxos []types.Utxo, amount uint64, feeRate uint64) ([]types.Utxo, error) {
	sorted := make([]types.Utxo, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	var selected []types.Utxo
	var total uint64
	// vault output plus change output
	target := amount + types.EstimateFee(1, 2, feeRate)
	for _, utxo := range sorted {
		if total >= target {
			break
		}
		selected = append(selected, utxo)
		total += utxo.Value
		// re-estimate with the actual input count
		target = amount + types.EstimateFee(len(selected), 2, feeRate)
	}
	if total < target {
		return nil, &InsufficientFundsError{Required: target, Available: types.SumValue(utxos)}
	}
	return selected, nil
}

// selectDisjoint attempts to satisfy each vault amount from distinct UTXO
// subsets without overlap. The larger amount picks first, it is the harder
// one to place.
func selectDisjoint(utxos []types.Utxo, vaultAmounts []uint64, feeRate uint64) ([]VaultAllocation, bool) {
	order := []int{0, 1}
	if vaultAmounts[1] > vaultAmounts[0] {
		order = []int{1, 0}
	}

	remaining := make([]types.Utxo, len(utxos))
	copy(remaining, utxos)

	allocations := make([]VaultAllocation, 2)
	for _, idx := range order {
		selected, err := selectForAmount(remaining, vaultAmounts[idx], feeRate)
		if err != nil {
			return nil, false
		}
		allocations[idx] = VaultAllocation{
			VaultIndex: idx,
			Kind:       FundingDirect,
			Utxos:      selected,
			Amount:     vaultAmounts[idx],
		}
		remaining = excludeUtxos(remaining, selected)
	}
	return allocations, true
}

// selectForSplit picks the inputs of a split transaction: one selection
// covering both vault amounts, the split fee and both follow-up pegin fees.
func selectForSplit(utxos []types.Utxo, vaultAmounts []uint64, feeRate uint64) ([]types.Utxo, error) {
	var amountTotal uint64
	for _, a := range vaultAmounts {
		amountTotal += a
	}
	// split tx: vault outputs plus change; each pegin spends one split output
	// into a vault output plus change
	peginFees := uint64(len(vaultAmounts)) * types.EstimateFee(1, 2, feeRate)

	sorted := make([]types.Utxo, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	var selected []types.Utxo
	var total uint64
	target := amountTotal + types.EstimateFee(1, len(vaultAmounts)+1, feeRate) + peginFees
	for _, utxo := range sorted {
		if total >= target {
			break
		}
		selected = append(selected, utxo)
		total += utxo.Value
		target = amountTotal + types.EstimateFee(len(selected), len(vaultAmounts)+1, feeRate) + peginFees
	}
	if total < target {
		return nil, &InsufficientFundsError{Required: target, Available: types.SumValue(utxos)}
	}
	return selected, nil
}

func excludeUtxos(utxos, exclude []types.Utxo) []types.Utxo {
	excluded := make(map[string]bool, len(exclude))
	for _, u := range exclude {
		excluded[u.Key()] = true
	}
	var out []types.Utxo
	for _, u := range utxos {
		if !excluded[u.Key()] {
			out = append(out, u)
		}
	}
	return out
}
