package signer_test

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbv-labs/vault-depositor/internal/signer"
	"github.com/tbv-labs/vault-depositor/internal/types"
)

func newSigner(t *testing.T) (*signer.LocalSigner, *btcec.PrivateKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return signer.NewLocalSignerFromKey(priv), priv
}

// keyspendPsbt builds a PSBT spending one keyspend-only taproot output owned
// by priv.
func keyspendPsbt(t *testing.T, priv *btcec.PrivateKey, value int64) string {
	t.Helper()
	outputKey := txscript.ComputeTaprootKeyNoScript(priv.PubKey())
	pkScript, err := txscript.PayToTaprootScript(outputKey)
	require.NoError(t, err)

	hash, err := chainhash.NewHashFromStr(fmt.Sprintf("%064x", 0xcc))
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(value-1000, pkScript))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(value, pkScript)

	var buf bytes.Buffer
	require.NoError(t, packet.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

func TestGetPublicKeyIsXOnly(t *testing.T) {
	s, priv := newSigner(t)

	pubkey, err := s.GetPublicKey()
	require.NoError(t, err)
	assert.Len(t, pubkey, 32)
	assert.Equal(t, schnorr.SerializePubKey(priv.PubKey()), pubkey)
}

func TestSignPsbtFinalizesKeyspend(t *testing.T) {
	s, priv := newSigner(t)
	psbtHex := keyspendPsbt(t, priv, 100_000)

	signedHex, err := s.SignPsbt(psbtHex, nil)
	require.NoError(t, err)

	// fully signed single-party packet comes back as a broadcastable raw tx
	tx, err := types.DecodeRawTransaction(signedHex)
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxIn[0].Witness, 1)
	// SigHashDefault keyspend signature is 64 bytes
	assert.Len(t, tx.TxIn[0].Witness[0], 64)
}

func TestSignPsbtHonorsInputSelection(t *testing.T) {
	s, priv := newSigner(t)
	psbtHex := keyspendPsbt(t, priv, 100_000)

	// selecting only a non-existent input signs nothing; the packet stays a psbt
	signedHex, err := s.SignPsbt(psbtHex, &signer.SignPsbtOptions{InputIndexes: []int{5}})
	require.NoError(t, err)

	raw, err := hex.DecodeString(signedHex)
	require.NoError(t, err)
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	require.NoError(t, err)
	assert.Empty(t, packet.Inputs[0].TaprootKeySpendSig)
}

func TestSignPsbtRejectsGarbage(t *testing.T) {
	s, _ := newSigner(t)

	_, err := s.SignPsbt("zz-not-hex", nil)
	assert.Error(t, err)

	_, err = s.SignPsbt("deadbeef", nil)
	assert.Error(t, err)
}

func TestSignMessage(t *testing.T) {
	s, _ := newSigner(t)
	msg := []byte("pegin attestation")

	sig, err := s.SignMessage(msg, signer.SchemeSchnorr)
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	sig, err = s.SignMessage(msg, signer.SchemeECDSA)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	_, err = s.SignMessage(msg, "bls")
	var unknownErr *signer.ErrUnknownScheme
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "bls", unknownErr.Scheme)
}
