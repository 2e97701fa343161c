package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tbv-labs/vault-depositor/internal/db"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
	"github.com/tbv-labs/vault-depositor/internal/plan"
	"github.com/tbv-labs/vault-depositor/internal/reserve"
	"github.com/tbv-labs/vault-depositor/internal/signer"
	"github.com/tbv-labs/vault-depositor/internal/state"
	"github.com/tbv-labs/vault-depositor/internal/types"
)

// Config bounds the orchestrator's waits on external systems.
type Config struct {
	RegistrationTimeout time.Duration // Ethereum receipt wait per vault
	VerifyTimeout       time.Duration // contract VERIFIED wait per vault
	StatusPollInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RegistrationTimeout: 3 * time.Minute,
		VerifyTimeout:       10 * time.Minute,
		StatusPollInterval:  5 * time.Second,
	}
}

// Orchestrator drives a multi-vault deposit batch end to end: validation,
// allocation planning, the optional split transaction, per-vault peg-in
// creation and registration, persistence, payout signing and the final
// broadcast. Collaborators are injected as interfaces; the orchestrator owns
// the sequencing, not the mechanics.
type Orchestrator struct {
	planner  *plan.Planner
	builder  TransactionBuilder
	chain    ChainClient
	provider ProviderClient
	caster   Broadcaster
	wallet   signer.Signer
	params   ParamsSource

	st          *state.State
	paramsCache *state.ParamsCache
	cfg         Config
}

func NewOrchestrator(
	planner *plan.Planner,
	builder TransactionBuilder,
	chain ChainClient,
	providerClient ProviderClient,
	caster Broadcaster,
	wallet signer.Signer,
	params ParamsSource,
	st *state.State,
	paramsCache *state.ParamsCache,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		planner:     planner,
		builder:     builder,
		chain:       chain,
		provider:    providerClient,
		caster:      caster,
		wallet:      wallet,
		params:      params,
		st:          st,
		paramsCache: paramsCache,
		cfg:         cfg,
	}
}

// ExecuteParams is one deposit batch request: up to two vault amounts funded
// from the given wallet UTXO set.
type ExecuteParams struct {
	EthAddress    string
	VaultAmounts  []uint64
	FeeRate       uint64
	ChangeAddress string
	Utxos         UtxoSet
}

// Execute runs the deposit batch. It returns nil only when validation or
// planning aborts the whole batch, the split transaction fails, or the
// context is cancelled; once per-vault processing starts, every outcome is
// reported through the BatchResult, with per-vault failures recorded as
// values and background failures collected as warnings.
func (o *Orchestrator) Execute(ctx context.Context, params ExecuteParams) (*BatchResult, error) {
	batchId := uuid.New().String()

	// Step 0: validation. Fatal, nothing has been signed yet.
	o.setProgress(batchId, StepValidate, -1, false)
	marketParams, err := o.validate(ctx, params)
	if err != nil {
		return nil, err
	}

	// Step 1: allocation planning on the reservation-filtered UTXO set.
	o.setProgress(batchId, StepPlan, -1, false)
	allocationPlan, err := o.planBatch(params)
	if err != nil {
		return nil, err
	}
	log.Infof("Deposit batch %s: strategy %s across %d vaults", batchId, allocationPlan.Strategy, len(allocationPlan.Vaults))

	// Step 2: split transaction, only for the SPLIT strategy. A split failure
	// is fatal; no vault can be funded from outputs that never existed.
	splitTxid := ""
	if allocationPlan.NeedsSplit {
		o.setProgress(batchId, StepSplit, -1, false)
		splitTxid, err = o.broadcastSplit(allocationPlan.SplitTx)
		if err != nil {
			return nil, err
		}
		o.st.EventBus.Publish(state.SplitBroadcasted, splitTxid)
	}

	// Step 3: per-vault peg-in creation. Sequential by design: each vault
	// needs its own wallet signature, and failures stay isolated per vault.
	results := make([]VaultResult, len(allocationPlan.Vaults))
	for i, alloc := range allocationPlan.Vaults {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.setProgress(batchId, StepCreatePegins, i, false)
		results[i] = o.createPegin(ctx, batchId, alloc, allocationPlan.SplitTx, marketParams, params)
		o.st.EventBus.Publish(state.DepositVaultProcessed, results[i])
		if results[i].Failed() {
			log.Warnf("Deposit batch %s: vault %d failed: %s", batchId, i+1, results[i].Error)
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Step 4: persist successful vaults so the reservation tracker and the
	// recovery path survive a restart.
	o.setProgress(batchId, StepPersist, -1, false)
	var warnings []string
	for i := range results {
		if results[i].Failed() {
			continue
		}
		if err := o.persistResult(params.EthAddress, batchId, splitTxid, i+1, len(results), &results[i], allocationPlan); err != nil {
			warnings = append(warnings, fmt.Sprintf("Vault %d: failed to persist pegin record: %v", i+1, err))
			log.Errorf("Deposit batch %s: persist failed for vault %d: %v", batchId, i+1, err)
		}
	}

	// Steps 5-6: payout signing and verify+broadcast, concurrent across
	// vaults, ordered within each vault. Failures here degrade to warnings,
	// the vault remains recoverable from its persisted record.
	o.setProgress(batchId, StepPayoutSigning, -1, true)
	warnings = append(warnings, o.runBackground(ctx, batchId, params.EthAddress, results)...)

	o.setProgress(batchId, StepCompleted, -1, false)
	result := &BatchResult{
		Pegins:    results,
		BatchId:   batchId,
		SplitTxid: splitTxid,
		Strategy:  allocationPlan.Strategy,
		Warnings:  warnings,
	}
	o.st.EventBus.Publish(state.DepositBatchFinished, result)
	log.Infof("Deposit batch %s finished: %d/%d vaults succeeded, %d warnings",
		batchId, result.SucceededCount(), len(results), len(warnings))
	return result, nil
}

func (o *Orchestrator) validate(ctx context.Context, params ExecuteParams) (*state.MarketParams, error) {
	if o.wallet == nil {
		return nil, &ValidationError{Reason: "no bitcoin wallet connected"}
	}
	if params.EthAddress == "" {
		return nil, &ValidationError{Reason: "no ethereum address provided"}
	}
	if len(params.VaultAmounts) == 0 {
		return nil, &ValidationError{Reason: "no vault amounts requested"}
	}
	if len(params.VaultAmounts) > 2 {
		return nil, &ValidationError{Reason: fmt.Sprintf("at most 2 vaults per deposit, got %d", len(params.VaultAmounts))}
	}
	if params.FeeRate == 0 {
		return nil, &ValidationError{Reason: "fee rate is zero"}
	}
	if params.Utxos.LoadErr != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("failed to load wallet UTXOs: %v", params.Utxos.LoadErr)}
	}
	if len(params.Utxos.Utxos) == 0 {
		return nil, &ValidationError{Reason: "no confirmed UTXOs available"}
	}

	marketParams, err := o.marketParams(ctx)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("cannot fetch market parameters: %v", err)}
	}
	if marketParams.VaultProviderPubkey == "" {
		return nil, &ValidationError{Reason: "market parameters missing vault provider public key"}
	}
	if len(marketParams.VaultKeeperPubkeys) == 0 {
		return nil, &ValidationError{Reason: "market parameters missing vault keeper public keys"}
	}
	for i, amount := range params.VaultAmounts {
		if amount == 0 {
			return nil, &ValidationError{Reason: fmt.Sprintf("vault %d amount is zero", i+1)}
		}
		if marketParams.MinDepositAmount > 0 && amount < marketParams.MinDepositAmount {
			return nil, &ValidationError{Reason: fmt.Sprintf("vault %d amount %d below minimum %d", i+1, amount, marketParams.MinDepositAmount)}
		}
		if marketParams.MaxDepositAmount > 0 && amount > marketParams.MaxDepositAmount {
			return nil, &ValidationError{Reason: fmt.Sprintf("vault %d amount %d above maximum %d", i+1, amount, marketParams.MaxDepositAmount)}
		}
	}
	return marketParams, nil
}

func (o *Orchestrator) marketParams(ctx context.Context) (*state.MarketParams, error) {
	if cached, ok := o.paramsCache.Get(); ok {
		return cached, nil
	}
	fetched, err := o.params.FetchMarketParams(ctx)
	if err != nil {
		return nil, err
	}
	o.paramsCache.Set(fetched)
	return fetched, nil
}

// planBatch runs the allocation planner on the wallet set minus every UTXO
// reserved by an in-flight deposit.
func (o *Orchestrator) planBatch(params ExecuteParams) (*plan.AllocationPlan, error) {
	available := o.availableUtxos(params)
	return o.planner.Plan(available, params.VaultAmounts, params.FeeRate, params.ChangeAddress)
}

func (o *Orchestrator) availableUtxos(params ExecuteParams) []types.Utxo {
	pendingRecords, err := o.st.Store().GetPendingPegins(params.EthAddress)
	if err != nil {
		// best effort: an unreadable reservation store must not block the
		// deposit, the chain rejects a real double spend anyway
		log.Warnf("Failed to load pending pegins for reservation: %v", err)
	}
	reserved := reserve.CollectReserved(pendingRecords, o.st.GetVaultSnapshots())

	var required uint64
	for _, amount := range params.VaultAmounts {
		required += amount
	}
	return reserve.SelectAvailable(params.Utxos.Utxos, reserved, required, params.FeeRate)
}

// broadcastSplit signs and pushes the split transaction. The returned txid is
// the broadcast one, which supersedes the planner's pre-signing estimate.
func (o *Orchestrator) broadcastSplit(splitTx *plan.SplitTransaction) (string, error) {
	signedHex, err := o.wallet.SignPsbt(splitTx.PsbtHex, nil)
	if err != nil {
		return "", fmt.Errorf("failed to sign split transaction: %w", err)
	}
	txid, err := o.caster.PushTx(signedHex)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast split transaction: %w", err)
	}
	if splitTx.Txid != "" && splitTx.Txid != txid {
		log.Debugf("Split txid changed after signing: planned %s, broadcast %s", splitTx.Txid, txid)
	}
	splitTx.Txid = txid
	log.Infof("Split transaction %s broadcast with %d outputs", txid, len(splitTx.Outputs))
	return txid, nil
}

// createPegin runs one vault through build, sign, register and the receipt
// wait. Any failure is captured verbatim on the result; the caller decides
// what a partial batch means.
func (o *Orchestrator) createPegin(ctx context.Context, batchId string, alloc plan.VaultAllocation, splitTx *plan.SplitTransaction, marketParams *state.MarketParams, params ExecuteParams) VaultResult {
	result := VaultResult{
		VaultIndex: alloc.VaultIndex,
		Amount:     alloc.Amount,
		FromSplit:  alloc.Kind == plan.FundingSplit,
	}
	fail := func(err error) VaultResult {
		result.Error = err.Error()
		return result
	}

	pubkey, err := o.wallet.GetPublicKey()
	if err != nil {
		return fail(err)
	}

	peginTx, err := o.builder.BuildPeginPsbt(alloc, splitTx, marketParams, pubkey, params.ChangeAddress, params.FeeRate)
	if err != nil {
		return fail(err)
	}
	result.PeginTxid = peginTx.Txid
	result.UnsignedTxHex = peginTx.RawTxHex

	signedHex, err := o.wallet.SignPsbt(peginTx.PsbtHex, nil)
	if err != nil {
		return fail(err)
	}
	result.SignedTxHex = signedHex

	ethTxHash, err := o.chain.RegisterPegin(ctx, peginTx.Txid, alloc.Amount, pubkey)
	if err != nil {
		return fail(err)
	}
	result.EthTxHash = ethTxHash

	o.setProgress(batchId, StepCreatePegins, alloc.VaultIndex, true)
	if err := o.chain.WaitForRegistration(ctx, ethTxHash, o.cfg.RegistrationTimeout); err != nil {
		return fail(err)
	}
	log.Infof("Vault %d registered: pegin %s, eth tx %s", alloc.VaultIndex+1, peginTx.Txid, ethTxHash)
	return result
}

func (o *Orchestrator) persistResult(ethAddress, batchId, splitTxid string, batchIndex, batchTotal int, result *VaultResult, allocationPlan *plan.AllocationPlan) error {
	record := &db.PendingPegin{
		PeginTxid:     result.PeginTxid,
		Status:        string(pegin.LocalPending),
		UnsignedTxHex: result.UnsignedTxHex,
		BatchId:       batchId,
		BatchIndex:    batchIndex,
		BatchTotal:    batchTotal,
		SplitTxid:     splitTxid,
		Timestamp:     time.Now().Unix(),
	}
	alloc := allocationPlan.Vaults[result.VaultIndex]
	if alloc.Kind == plan.FundingDirect {
		if err := record.SetUtxos(alloc.Utxos); err != nil {
			return err
		}
	}
	return o.st.Store().UpsertPendingPegin(ethAddress, record)
}

func (o *Orchestrator) setProgress(batchId string, step Step, vaultIndex int, waiting bool) {
	o.st.SetProgress(state.DepositProgress{
		BatchId:           batchId,
		CurrentStep:       step.String(),
		CurrentVaultIndex: vaultIndex,
		IsWaiting:         waiting,
	})
}
