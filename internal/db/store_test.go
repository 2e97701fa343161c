package db_test

import (
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbv-labs/vault-depositor/internal/db"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
	"github.com/tbv-labs/vault-depositor/internal/types"
)

func newStore(t *testing.T) *db.PeginStore {
	t.Helper()
	// optional local overrides
	_ = godotenv.Load()
	return db.NewPeginStore(db.NewDatabaseManager(t.TempDir()))
}

func TestUpsertPendingPeginIsIdempotent(t *testing.T) {
	store := newStore(t)

	record := &db.PendingPegin{
		PeginTxid: "aa",
		Status:    string(pegin.LocalPending),
		Timestamp: time.Now().Unix(),
	}
	require.NoError(t, record.SetUtxos([]types.Utxo{
		{UtxoRef: types.UtxoRef{Txid: "ff", Vout: 1}, Value: 5000},
	}))
	require.NoError(t, store.UpsertPendingPegin("0xABCD", record))

	// re-writing the same pegin must update in place, not duplicate
	record.Status = string(pegin.LocalPayoutSigned)
	require.NoError(t, store.UpsertPendingPegin("0xABCD", record))

	records, err := store.GetPendingPegins("0xabcd")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(pegin.LocalPayoutSigned), records[0].Status)
	// addresses are stored lowercased
	assert.Equal(t, "0xabcd", records[0].EthAddress)
	require.Len(t, records[0].Utxos(), 1)
	assert.Equal(t, uint64(5000), records[0].Utxos()[0].Value)
}

func TestGetPendingPeginsOrderedByTimestamp(t *testing.T) {
	store := newStore(t)

	for i, ts := range []int64{300, 100, 200} {
		record := &db.PendingPegin{
			PeginTxid: string(rune('a' + i)),
			Status:    string(pegin.LocalPending),
			Timestamp: ts,
		}
		require.NoError(t, store.UpsertPendingPegin("0xabcd", record))
	}

	records, err := store.GetPendingPegins("0xabcd")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(100), records[0].Timestamp)
	assert.Equal(t, int64(200), records[1].Timestamp)
	assert.Equal(t, int64(300), records[2].Timestamp)
}

func TestUpdatePeginStatus(t *testing.T) {
	store := newStore(t)

	record := &db.PendingPegin{PeginTxid: "aa", Status: string(pegin.LocalPending), Timestamp: 1}
	require.NoError(t, store.UpsertPendingPegin("0xabcd", record))

	require.NoError(t, store.UpdatePeginStatus("0xABCD", "aa", string(pegin.LocalConfirming)))

	records, err := store.GetPendingPegins("0xabcd")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(pegin.LocalConfirming), records[0].Status)
}

func TestDeletePendingPegin(t *testing.T) {
	store := newStore(t)

	record := &db.PendingPegin{PeginTxid: "aa", Status: string(pegin.LocalPending), Timestamp: 1}
	require.NoError(t, store.UpsertPendingPegin("0xabcd", record))

	require.NoError(t, store.DeletePendingPegin("0xabcd", "aa"))
	// deleting a missing record is not an error
	require.NoError(t, store.DeletePendingPegin("0xabcd", "aa"))

	records, err := store.GetPendingPegins("0xabcd")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEvictRedundantRecords(t *testing.T) {
	store := newStore(t)

	for _, txid := range []string{"keep", "evict"} {
		record := &db.PendingPegin{PeginTxid: txid, Status: string(pegin.LocalPending), Timestamp: 1}
		require.NoError(t, store.UpsertPendingPegin("0xabcd", record))
	}

	store.EvictRedundantRecords("0xabcd", func(peginTxid, localStatus string) bool {
		return peginTxid == "evict"
	})

	records, err := store.GetPendingPegins("0xabcd")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "keep", records[0].PeginTxid)
}

func TestVaultSnapshots(t *testing.T) {
	store := newStore(t)

	snapshot := &db.VaultSnapshot{
		PeginTxid:      "aa",
		ContractStatus: string(pegin.ContractPending),
	}
	require.NoError(t, store.SaveVaultSnapshot(snapshot))

	// saving the same pegin again replaces the row
	snapshot2 := &db.VaultSnapshot{
		PeginTxid:      "aa",
		ContractStatus: string(pegin.ContractVerified),
		IsInUse:        true,
	}
	require.NoError(t, store.SaveVaultSnapshot(snapshot2))

	snapshots, err := store.GetVaultSnapshots()
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, string(pegin.ContractVerified), snapshots[0].ContractStatus)
	assert.True(t, snapshots[0].IsInUse)
}
