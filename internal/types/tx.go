package types

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

// DecodeRawTransaction deserializes a raw transaction hex into a wire.MsgTx.
func DecodeRawTransaction(rawTxHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}

// ParseRawTxInputs extracts the input outpoints of a raw transaction hex.
// Reservation is a best-effort optimization, so malformed or truncated hex
// yields an empty list instead of an error; the blockchain is the real
// double-spend arbiter.
func ParseRawTxInputs(rawTxHex string) []UtxoRef {
	if rawTxHex == "" {
		return nil
	}
	tx, err := DecodeRawTransaction(rawTxHex)
	if err != nil {
		log.Debugf("Cannot parse raw tx for input extraction: %v", err)
		return nil
	}
	refs := make([]UtxoRef, 0, len(tx.TxIn))
	for _, in := range tx.TxIn {
		refs = append(refs, UtxoRef{
			Txid: in.PreviousOutPoint.Hash.String(),
			Vout: in.PreviousOutPoint.Index,
		})
	}
	return refs
}

// SerializeTransaction returns the full serialization of tx, witness included.
func SerializeTransaction(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
