package layer2

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/tbv-labs/vault-depositor/internal/db"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
	"github.com/tbv-labs/vault-depositor/internal/state"
)

// VaultWatcher periodically refreshes the cached on-chain state of every
// tracked vault and evicts local records the chain has made redundant. It is
// the only writer of vault snapshots at runtime.
type VaultWatcher struct {
	client     *Client
	st         *state.State
	ethAddress string
	interval   time.Duration
}

func NewVaultWatcher(client *Client, st *state.State, ethAddress string, interval time.Duration) *VaultWatcher {
	return &VaultWatcher{
		client:     client,
		st:         st,
		ethAddress: ethAddress,
		interval:   interval,
	}
}

func (w *VaultWatcher) Start(ctx context.Context) {
	log.Infof("Vault watcher started, interval %v", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Vault watcher stopping")
			return
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *VaultWatcher) refresh() {
	records, err := w.st.Store().GetPendingPegins(w.ethAddress)
	if err != nil {
		log.Warnf("Vault watcher cannot load pending pegins: %v", err)
		return
	}

	statuses := make(map[string]pegin.ContractStatus, len(records))
	for _, record := range records {
		status, err := w.client.VaultStatus(common.HexToHash(record.PeginTxid))
		if err != nil {
			log.Debugf("Vault status read failed for %s: %v", record.PeginTxid, err)
			continue
		}
		statuses[record.PeginTxid] = status

		inUse := false
		if status == pegin.ContractActive {
			if inUse, err = w.client.IsInUse(common.HexToHash(record.PeginTxid)); err != nil {
				log.Debugf("Vault usage read failed for %s: %v", record.PeginTxid, err)
			}
		}

		snapshot := &db.VaultSnapshot{
			PeginTxid:      record.PeginTxid,
			ContractStatus: string(status),
			IsInUse:        inUse,
			RawTxHex:       record.UnsignedTxHex,
		}
		if err := w.st.UpdateVaultSnapshot(snapshot); err != nil {
			log.Warnf("Failed to update vault snapshot for %s: %v", record.PeginTxid, err)
		}
	}

	w.st.Store().EvictRedundantRecords(w.ethAddress, func(peginTxid, localStatus string) bool {
		status, ok := statuses[peginTxid]
		if !ok {
			return false
		}
		return pegin.ShouldEvictLocalRecord(status, pegin.LocalStatus(localStatus))
	})
}
