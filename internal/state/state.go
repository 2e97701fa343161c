package state

import (
	"sync"

	"github.com/tbv-labs/vault-depositor/internal/db"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
	log "github.com/sirupsen/logrus"
)

// DepositProgress is the externally visible snapshot of a running deposit
// batch: which step is executing, which vault it concerns and whether the
// orchestrator is parked on an external confirmation rather than a user
// signature.
type DepositProgress struct {
	BatchId           string `json:"batch_id"`
	CurrentStep       string `json:"current_step"`
	CurrentVaultIndex int    `json:"current_vault_index"` // -1 between/after vaults
	IsWaiting         bool   `json:"is_waiting"`
}

// State aggregates the depositor's runtime view: the record store, cached
// vault snapshots and the progress of the deposit in flight.
type State struct {
	EventBus *EventBus

	store *db.PeginStore

	progressMu sync.RWMutex
	progress   DepositProgress

	vaultMu sync.RWMutex
	vaults  map[string]*db.VaultSnapshot // keyed by pegin txid
}

func InitializeState(store *db.PeginStore) *State {
	s := &State{
		EventBus: NewEventBus(),
		store:    store,
		progress: DepositProgress{CurrentVaultIndex: -1},
		vaults:   make(map[string]*db.VaultSnapshot),
	}

	snapshots, err := store.GetVaultSnapshots()
	if err != nil {
		log.Warnf("Failed to load vault snapshots: %v", err)
		return s
	}
	for _, snapshot := range snapshots {
		s.vaults[snapshot.PeginTxid] = snapshot
	}
	log.Debugf("Loaded %d vault snapshots", len(snapshots))
	return s
}

func (s *State) Store() *db.PeginStore {
	return s.store
}

// SetProgress replaces the progress snapshot and publishes a step event.
func (s *State) SetProgress(progress DepositProgress) {
	s.progressMu.Lock()
	s.progress = progress
	s.progressMu.Unlock()

	s.EventBus.Publish(DepositStepStarted, progress)
}

func (s *State) GetProgress() DepositProgress {
	s.progressMu.RLock()
	defer s.progressMu.RUnlock()
	return s.progress
}

// UpdateVaultSnapshot stores a newly observed on-chain vault state, in memory
// and in the cache db. The contract status only moves forward; a stale read
// never regresses a vault.
func (s *State) UpdateVaultSnapshot(snapshot *db.VaultSnapshot) error {
	s.vaultMu.Lock()
	defer s.vaultMu.Unlock()

	if existing, ok := s.vaults[snapshot.PeginTxid]; ok {
		if statusRank(existing.ContractStatus) > statusRank(snapshot.ContractStatus) {
			log.Warnf("Ignoring regressive vault status %s -> %s for %s",
				existing.ContractStatus, snapshot.ContractStatus, snapshot.PeginTxid)
			return nil
		}
	}
	s.vaults[snapshot.PeginTxid] = snapshot

	if err := s.store.SaveVaultSnapshot(snapshot); err != nil {
		return err
	}
	s.EventBus.Publish(PeginStatusChanged, snapshot)
	return nil
}

// GetVaultSnapshots returns the in-memory vault snapshots.
func (s *State) GetVaultSnapshots() []*db.VaultSnapshot {
	s.vaultMu.RLock()
	defer s.vaultMu.RUnlock()

	out := make([]*db.VaultSnapshot, 0, len(s.vaults))
	for _, snapshot := range s.vaults {
		out = append(out, snapshot)
	}
	return out
}

// statusRank orders contract statuses for the forward-only write rule.
// Terminal statuses share the top rank, they never change again.
func statusRank(status string) int {
	switch pegin.ContractStatus(status) {
	case pegin.ContractPending:
		return 0
	case pegin.ContractVerified:
		return 1
	case pegin.ContractActive, pegin.ContractRedeemed, pegin.ContractLiquidated,
		pegin.ContractInvalid, pegin.ContractDepositorWithdrawn:
		return 2
	default:
		return -1
	}
}
