package types

import (
	"fmt"
	"strings"
)

// UtxoRef identifies a spendable Bitcoin output. Txid comparison is
// case-insensitive, wallets and explorers disagree on hex casing.
type UtxoRef struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

// Key returns the canonical "txid:vout" form used for set membership.
func (r UtxoRef) Key() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(r.Txid), r.Vout)
}

func (r UtxoRef) Equal(other UtxoRef) bool {
	return r.Vout == other.Vout && strings.EqualFold(r.Txid, other.Txid)
}

func (r UtxoRef) String() string {
	return r.Key()
}

// Utxo is an outpoint plus the observed value and locking script. Immutable
// once observed; it stops existing the moment it is spent on chain.
type Utxo struct {
	UtxoRef

	Value    uint64 `json:"value"` // satoshis
	PkScript []byte `json:"pk_script"`
}

// SumValue returns the total satoshi value of the given set.
func SumValue(utxos []Utxo) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
