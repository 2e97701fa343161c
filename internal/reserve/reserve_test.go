package reserve_test

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbv-labs/vault-depositor/internal/db"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
	"github.com/tbv-labs/vault-depositor/internal/reserve"
	"github.com/tbv-labs/vault-depositor/internal/types"
)

func utxo(t *testing.T, n int, value uint64) types.Utxo {
	t.Helper()
	return types.Utxo{
		UtxoRef: types.UtxoRef{Txid: fmt.Sprintf("%064x", n), Vout: 0},
		Value:   value,
	}
}

// rawTxSpending builds a transaction hex whose inputs are the given utxos.
func rawTxSpending(t *testing.T, utxos ...types.Utxo) string {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range utxos {
		hash, err := chainhash.NewHashFromStr(u.Txid)
		require.NoError(t, err)
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	raw, err := types.SerializeTransaction(tx)
	require.NoError(t, err)
	return hex.EncodeToString(raw)
}

func TestCollectReservedFromPendingRecords(t *testing.T) {
	u1 := utxo(t, 1, 50000)
	u2 := utxo(t, 2, 75000)
	u3 := utxo(t, 3, 90000)

	withSelection := &db.PendingPegin{PeginTxid: "aa"}
	require.NoError(t, withSelection.SetUtxos([]types.Utxo{u1}))

	// no recorded selection, inputs recovered from the raw transaction
	withRawOnly := &db.PendingPegin{
		PeginTxid:     "bb",
		UnsignedTxHex: rawTxSpending(t, u2, u3),
	}

	reserved := reserve.CollectReserved([]*db.PendingPegin{withSelection, withRawOnly}, nil)
	assert.Len(t, reserved, 3)
	assert.Contains(t, reserved, u1.Key())
	assert.Contains(t, reserved, u2.Key())
	assert.Contains(t, reserved, u3.Key())
}

func TestCollectReservedFromVaultSnapshots(t *testing.T) {
	u1 := utxo(t, 1, 50000)
	u2 := utxo(t, 2, 75000)
	u3 := utxo(t, 3, 90000)

	vaults := []*db.VaultSnapshot{
		{PeginTxid: "aa", ContractStatus: string(pegin.ContractPending), RawTxHex: rawTxSpending(t, u1)},
		{PeginTxid: "bb", ContractStatus: string(pegin.ContractVerified), RawTxHex: rawTxSpending(t, u2)},
		// active vaults already consumed their inputs, nothing to reserve
		{PeginTxid: "cc", ContractStatus: string(pegin.ContractActive), RawTxHex: rawTxSpending(t, u3)},
	}

	reserved := reserve.CollectReserved(nil, vaults)
	assert.Len(t, reserved, 2)
	assert.Contains(t, reserved, u1.Key())
	assert.Contains(t, reserved, u2.Key())
	assert.NotContains(t, reserved, u3.Key())
}

func TestCollectReservedToleratesMalformedHex(t *testing.T) {
	records := []*db.PendingPegin{{PeginTxid: "aa", UnsignedTxHex: "not-hex"}}
	reserved := reserve.CollectReserved(records, nil)
	assert.Empty(t, reserved)
}

func TestSelectAvailableFiltersReserved(t *testing.T) {
	u1 := utxo(t, 1, 500000)
	u2 := utxo(t, 2, 400000)
	u3 := utxo(t, 3, 300000)
	all := []types.Utxo{u1, u2, u3}
	reserved := map[string]types.UtxoRef{u1.Key(): u1.UtxoRef}

	// the unreserved remainder covers the requirement, reserved stays out
	available := reserve.SelectAvailable(all, reserved, 300000, 10)
	assert.Len(t, available, 2)
	for _, u := range available {
		assert.NotEqual(t, u1.Key(), u.Key())
	}
}

func TestSelectAvailableFallsBackToFullSet(t *testing.T) {
	u1 := utxo(t, 1, 500000)
	u2 := utxo(t, 2, 50000)
	all := []types.Utxo{u1, u2}
	reserved := map[string]types.UtxoRef{u1.Key(): u1.UtxoRef}

	// unreserved 50000 cannot cover 300000, the full set comes back
	available := reserve.SelectAvailable(all, reserved, 300000, 10)
	assert.Equal(t, all, available)
}

func TestSelectAvailableNoReservations(t *testing.T) {
	all := []types.Utxo{utxo(t, 1, 500000)}
	available := reserve.SelectAvailable(all, nil, 100000, 10)
	assert.Equal(t, all, available)
}
