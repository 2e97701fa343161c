package db

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PeginStore is the keyed record store for pending peg-ins. Single writer per
// peg-in id; re-writing the same id with the same data is a no-op.
type PeginStore struct {
	dbm *DatabaseManager
}

func NewPeginStore(dbm *DatabaseManager) *PeginStore {
	return &PeginStore{dbm: dbm}
}

// GetPendingPegins returns all pending records for a depositor address.
func (s *PeginStore) GetPendingPegins(ethAddress string) ([]*PendingPegin, error) {
	var records []*PendingPegin
	result := s.dbm.GetPeginDB().
		Where("eth_address = ?", strings.ToLower(ethAddress)).
		Order("timestamp asc").
		Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

// UpsertPendingPegin writes a record keyed by (address, peg-in txid). The
// write is idempotent: an existing row is updated in place, an identical
// re-write changes nothing observable.
func (s *PeginStore) UpsertPendingPegin(ethAddress string, record *PendingPegin) error {
	record.EthAddress = strings.ToLower(ethAddress)
	record.UpdatedAt = time.Now()

	var existing PendingPegin
	result := s.dbm.GetPeginDB().
		Where("eth_address = ? AND pegin_txid = ?", record.EthAddress, record.PeginTxid).
		First(&existing)
	if result.Error != nil {
		if result.Error != gorm.ErrRecordNotFound {
			return result.Error
		}
		return s.dbm.GetPeginDB().Create(record).Error
	}

	record.ID = existing.ID
	return s.dbm.GetPeginDB().Save(record).Error
}

// UpdatePeginStatus advances the local status of one record.
func (s *PeginStore) UpdatePeginStatus(ethAddress, peginTxid, status string) error {
	return s.dbm.GetPeginDB().
		Model(&PendingPegin{}).
		Where("eth_address = ? AND pegin_txid = ?", strings.ToLower(ethAddress), peginTxid).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

// DeletePendingPegin removes a record once the chain state makes it
// redundant. Deleting a missing record is not an error.
func (s *PeginStore) DeletePendingPegin(ethAddress, peginTxid string) error {
	return s.dbm.GetPeginDB().
		Where("eth_address = ? AND pegin_txid = ?", strings.ToLower(ethAddress), peginTxid).
		Delete(&PendingPegin{}).Error
}

// SaveVaultSnapshot caches the observed on-chain state of one vault.
func (s *PeginStore) SaveVaultSnapshot(snapshot *VaultSnapshot) error {
	snapshot.UpdatedAt = time.Now()

	var existing VaultSnapshot
	result := s.dbm.GetCacheDB().
		Where("pegin_txid = ?", snapshot.PeginTxid).
		First(&existing)
	if result.Error != nil {
		if result.Error != gorm.ErrRecordNotFound {
			return result.Error
		}
		return s.dbm.GetCacheDB().Create(snapshot).Error
	}

	snapshot.ID = existing.ID
	return s.dbm.GetCacheDB().Save(snapshot).Error
}

// GetVaultSnapshots returns every cached vault state.
func (s *PeginStore) GetVaultSnapshots() ([]*VaultSnapshot, error) {
	var snapshots []*VaultSnapshot
	result := s.dbm.GetCacheDB().Find(&snapshots)
	if result.Error != nil {
		return nil, result.Error
	}
	return snapshots, nil
}

// EvictRedundantRecords deletes pending records whose (contract, local)
// status pair no longer carries information, per the state machine's
// eviction rule. Best effort, failures are logged and skipped.
func (s *PeginStore) EvictRedundantRecords(ethAddress string, shouldEvict func(peginTxid, localStatus string) bool) {
	records, err := s.GetPendingPegins(ethAddress)
	if err != nil {
		log.Warnf("Failed to load pending pegins for eviction: %v", err)
		return
	}
	for _, record := range records {
		if !shouldEvict(record.PeginTxid, record.Status) {
			continue
		}
		if err := s.DeletePendingPegin(ethAddress, record.PeginTxid); err != nil {
			log.Warnf("Failed to evict pegin record %s: %v", record.PeginTxid, err)
		}
	}
}
