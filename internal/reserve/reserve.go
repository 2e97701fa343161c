package reserve

import (
	"github.com/tbv-labs/vault-depositor/internal/db"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
	"github.com/tbv-labs/vault-depositor/internal/types"
	log "github.com/sirupsen/logrus"
)

// CollectReserved derives the set of UTXOs currently committed to in-flight
// deposits, keyed by the canonical outpoint form.
//
// A UTXO is reserved when it funds a locally persisted pending peg-in (the
// recorded selection when present, otherwise the parsed inputs of its raw
// transaction) or any vault still PENDING or VERIFIED on chain. Vaults in a
// terminal or active state have already consumed their inputs and reserve
// nothing.
func CollectReserved(pendingRequests []*db.PendingPegin, vaults []*db.VaultSnapshot) map[string]types.UtxoRef {
	reserved := make(map[string]types.UtxoRef)

	for _, request := range pendingRequests {
		utxos := request.Utxos()
		if len(utxos) > 0 {
			for _, u := range utxos {
				reserved[u.Key()] = u.UtxoRef
			}
			continue
		}
		for _, ref := range types.ParseRawTxInputs(request.UnsignedTxHex) {
			reserved[ref.Key()] = ref
		}
	}

	for _, vault := range vaults {
		status := pegin.ContractStatus(vault.ContractStatus)
		if status != pegin.ContractPending && status != pegin.ContractVerified {
			continue
		}
		for _, ref := range types.ParseRawTxInputs(vault.RawTxHex) {
			reserved[ref.Key()] = ref
		}
	}

	return reserved
}

// SelectAvailable filters reserved outpoints out of the wallet's UTXO set.
//
// When the unreserved remainder still covers requiredAmount plus a
// conservative fee buffer, only the unreserved set is returned, avoiding a
// double-spend race against deposits already in flight. Otherwise the full
// set is returned: the user has no conflict-free alternative, and a real
// conflict failing on chain beats an artificial insufficient-funds failure.
// The fallback is logged so it stays auditable.
func SelectAvailable(allUtxos []types.Utxo, reserved map[string]types.UtxoRef, requiredAmount uint64, feeRate uint64) []types.Utxo {
	if len(reserved) == 0 {
		return allUtxos
	}

	var unreserved []types.Utxo
	for _, utxo := range allUtxos {
		if _, ok := reserved[utxo.Key()]; !ok {
			unreserved = append(unreserved, utxo)
		}
	}

	feeBuffer := types.EstimateFee(len(unreserved), 2, feeRate)
	if types.SumValue(unreserved) >= requiredAmount+feeBuffer {
		return unreserved
	}

	log.Warnf("Unreserved UTXOs cover %d of required %d sat (+%d fee buffer), falling back to full set with %d reserved outpoints in play",
		types.SumValue(unreserved), requiredAmount, feeBuffer, len(reserved))
	return allUtxos
}
