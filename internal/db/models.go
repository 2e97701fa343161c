package db

import (
	"encoding/json"
	"time"

	"github.com/tbv-labs/vault-depositor/internal/types"
)

// PendingPegin is the locally persisted record of a peg-in the depositor has
// submitted but the chain has not finished with. Created when the peg-in is
// first submitted, mutated only by status-advancing writes, deleted once the
// contract status makes it redundant.
//
// The batch linkage fields are additive and optional so single-vault records
// written before batching existed still load.
type PendingPegin struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EthAddress    string    `gorm:"not null;index:unique_addr_txid,unique" json:"eth_address"`
	PeginTxid     string    `gorm:"not null;index:unique_addr_txid,unique" json:"pegin_txid"`
	Status        string    `gorm:"not null" json:"status"` // "pending", "payout_signed", "confirming", "confirmed"
	SelectedUtxos string    `json:"selected_utxos"`         // JSON-encoded []types.Utxo
	UnsignedTxHex string    `json:"unsigned_tx_hex"`
	BatchId       string    `gorm:"index" json:"batch_id,omitempty"`
	BatchIndex    int       `json:"batch_index,omitempty"` // 1-based
	BatchTotal    int       `json:"batch_total,omitempty"`
	SplitTxid     string    `json:"split_txid,omitempty"`
	Timestamp     int64     `gorm:"not null" json:"timestamp"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

// Utxos decodes the recorded UTXO selection. Missing or corrupt detail
// decodes to nil; callers fall back to parsing the raw transaction.
func (p *PendingPegin) Utxos() []types.Utxo {
	if p.SelectedUtxos == "" {
		return nil
	}
	var utxos []types.Utxo
	if err := json.Unmarshal([]byte(p.SelectedUtxos), &utxos); err != nil {
		return nil
	}
	return utxos
}

// SetUtxos records the UTXO selection as JSON.
func (p *PendingPegin) SetUtxos(utxos []types.Utxo) error {
	raw, err := json.Marshal(utxos)
	if err != nil {
		return err
	}
	p.SelectedUtxos = string(raw)
	return nil
}

// VaultSnapshot caches the last observed on-chain state of one vault so the
// reservation tracker can run without a round trip per call.
type VaultSnapshot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PeginTxid      string    `gorm:"not null;uniqueIndex" json:"pegin_txid"`
	ContractStatus string    `gorm:"not null" json:"contract_status"` // pegin.ContractStatus values
	IsInUse        bool      `gorm:"not null" json:"is_in_use"`
	RawTxHex       string    `json:"raw_tx_hex"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}
