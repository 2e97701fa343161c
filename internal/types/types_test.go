package types_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbv-labs/vault-depositor/internal/types"
)

func TestUtxoRefKeyIsCaseInsensitive(t *testing.T) {
	upper := types.UtxoRef{Txid: "ABCDEF", Vout: 1}
	lower := types.UtxoRef{Txid: "abcdef", Vout: 1}

	assert.Equal(t, lower.Key(), upper.Key())
	assert.True(t, upper.Equal(lower))
	assert.False(t, upper.Equal(types.UtxoRef{Txid: "abcdef", Vout: 2}))
}

func TestSumValue(t *testing.T) {
	utxos := []types.Utxo{{Value: 100}, {Value: 250}, {Value: 0}}
	assert.Equal(t, uint64(350), types.SumValue(utxos))
	assert.Equal(t, uint64(0), types.SumValue(nil))
}

func TestParseRawTxInputsRoundTrip(t *testing.T) {
	hash, err := chainhash.NewHashFromStr("00000000000000000000000000000000000000000000000000000000000000aa")
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 3), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	raw, err := types.SerializeTransaction(tx)
	require.NoError(t, err)

	refs := types.ParseRawTxInputs(hex.EncodeToString(raw))
	require.Len(t, refs, 1)
	assert.Equal(t, hash.String(), refs[0].Txid)
	assert.Equal(t, uint32(3), refs[0].Vout)
}

func TestParseRawTxInputsToleratesGarbage(t *testing.T) {
	assert.Nil(t, types.ParseRawTxInputs(""))
	assert.Nil(t, types.ParseRawTxInputs("zz-not-hex"))
	assert.Nil(t, types.ParseRawTxInputs("deadbeef"))
}

func TestEstimateFee(t *testing.T) {
	// 1 input, 2 outputs: 58 + 86 + 11 = 155 vB, at 10 sat/vB plus 10% margin
	assert.Equal(t, uint64(1705), types.EstimateFee(1, 2, 10))
	// fee scales linearly with the rate
	assert.Equal(t, types.EstimateFee(1, 2, 10)*2, types.EstimateFee(1, 2, 20))
	// more inputs cost more
	assert.Greater(t, types.EstimateFee(3, 2, 10), types.EstimateFee(1, 2, 10))
}

func TestGetDustAmount(t *testing.T) {
	// low fee rates clamp to the standard 546 sat floor
	assert.Equal(t, uint64(546), types.GetDustAmount(1))
	assert.Equal(t, uint64(546), types.GetDustAmount(8))
	// high fee rates scale with the marginal spend cost
	assert.Equal(t, uint64(294+100*31), types.GetDustAmount(100))
}
