package deposit

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
	"github.com/tbv-labs/vault-depositor/internal/provider"
	"github.com/tbv-labs/vault-depositor/internal/state"
)

// runBackground runs payout signing and verify+broadcast for every vault that
// survived peg-in creation. Vaults progress concurrently; within one vault
// the broadcast never starts before its payout-signing attempt has finished.
// Failures become warnings, never batch errors: the vault's persisted record
// keeps it recoverable.
func (o *Orchestrator) runBackground(ctx context.Context, batchId, ethAddress string, results []VaultResult) []string {
	var mu sync.Mutex
	var warnings []string
	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		log.Warn(msg)
		mu.Lock()
		warnings = append(warnings, msg)
		mu.Unlock()
		o.st.EventBus.Publish(state.DepositWarning, msg)
	}

	var wg sync.WaitGroup
	for i := range results {
		if results[i].Failed() {
			continue
		}
		wg.Add(1)
		go func(r *VaultResult) {
			defer wg.Done()
			o.finalizeVault(ctx, batchId, ethAddress, r, warn)
		}(&results[i])
	}
	wg.Wait()
	return warnings
}

func (o *Orchestrator) finalizeVault(ctx context.Context, batchId, ethAddress string, r *VaultResult, warn func(string, ...interface{})) {
	if err := o.signPayouts(ctx, ethAddress, r); err != nil {
		warn("Vault %d: Payout signing failed: %v", r.VaultIndex+1, err)
	}
	// Broadcast proceeds even after a payout-signing warning: the signatures
	// can be re-submitted later from the persisted record, the on-chain
	// funding cannot.
	o.setProgress(batchId, StepVerifyBroadcast, r.VaultIndex, true)
	if err := o.verifyAndBroadcast(ctx, ethAddress, r); err != nil {
		warn("Vault %d: Bitcoin broadcast failed: %v", r.VaultIndex+1, err)
	}
}

// signPayouts pulls the payout transaction templates from the vault provider,
// signs every non-empty path and submits the signatures back.
func (o *Orchestrator) signPayouts(ctx context.Context, ethAddress string, r *VaultResult) error {
	pubkey, err := o.wallet.GetPublicKey()
	if err != nil {
		return err
	}
	pubkeyHex := hex.EncodeToString(pubkey)

	transactions, err := o.provider.PollForPayoutTransactions(ctx, r.PeginTxid, pubkeyHex)
	if err != nil {
		return err
	}

	var signatures []provider.PayoutSignature
	for _, set := range transactions {
		paths := []struct {
			txType string
			psbt   string
		}{
			{"claim", set.ClaimPsbt},
			{"assert", set.AssertPsbt},
			{"optimistic_payout", set.OptimisticPayoutPsbt},
			{"payout", set.PayoutPsbt},
		}
		for _, path := range paths {
			if path.psbt == "" {
				continue
			}
			signed, err := o.wallet.SignPsbt(path.psbt, nil)
			if err != nil {
				return fmt.Errorf("signing %s transaction: %w", path.txType, err)
			}
			signatures = append(signatures, provider.PayoutSignature{TxType: path.txType, Signature: signed})
		}
	}
	if len(signatures) == 0 {
		return fmt.Errorf("provider returned no payout transactions to sign")
	}

	if err := o.provider.SubmitSignatures(ctx, r.PeginTxid, pubkeyHex, signatures); err != nil {
		return err
	}
	if err := o.st.Store().UpdatePeginStatus(ethAddress, r.PeginTxid, string(pegin.LocalPayoutSigned)); err != nil {
		log.Warnf("Failed to record payout_signed for %s: %v", r.PeginTxid, err)
	}
	log.Infof("Vault %d: payout transactions signed for pegin %s", r.VaultIndex+1, r.PeginTxid)
	return nil
}

// verifyAndBroadcast waits for the contract to verify the vault, then pushes
// the signed funding transaction to Bitcoin and marks the record confirming.
func (o *Orchestrator) verifyAndBroadcast(ctx context.Context, ethAddress string, r *VaultResult) error {
	if err := o.waitForVerified(ctx, r.PeginTxid); err != nil {
		return err
	}

	if r.FromSplit {
		// The funding inputs come from the split transaction broadcast in an
		// earlier step; the signed peg-in spends its outputs directly.
		log.Debugf("Vault %d: broadcasting split-funded pegin %s", r.VaultIndex+1, r.PeginTxid)
	}
	txid, err := o.caster.PushTx(r.SignedTxHex)
	if err != nil {
		return err
	}
	if txid != r.PeginTxid {
		log.Warnf("Broadcast txid %s differs from registered pegin txid %s", txid, r.PeginTxid)
	}

	if err := o.st.Store().UpdatePeginStatus(ethAddress, r.PeginTxid, string(pegin.LocalConfirming)); err != nil {
		log.Warnf("Failed to record confirming for %s: %v", r.PeginTxid, err)
	}
	log.Infof("Vault %d: funding transaction %s broadcast to bitcoin", r.VaultIndex+1, txid)
	return nil
}

// waitForVerified polls the contract until the vault leaves PENDING or the
// verify timeout elapses. Any status past PENDING releases the wait: a
// terminal status will surface through the state machine, not here.
func (o *Orchestrator) waitForVerified(ctx context.Context, peginTxid string) error {
	deadline := time.Now().Add(o.cfg.VerifyTimeout)
	ticker := time.NewTicker(o.cfg.StatusPollInterval)
	defer ticker.Stop()

	for {
		status, err := o.chain.VaultStatus(peginTxid)
		if err != nil {
			log.Debugf("Vault status read failed for %s: %v", peginTxid, err)
		} else if status != pegin.ContractPending {
			if status != pegin.ContractVerified {
				return fmt.Errorf("vault %s reached status %s before verification", peginTxid, status)
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("vault %s not verified after %v", peginTxid, o.cfg.VerifyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
