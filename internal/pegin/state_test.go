package pegin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
)

func TestGetStateUtxoUnavailableWinsOverEverything(t *testing.T) {
	statuses := []pegin.ContractStatus{
		pegin.ContractPending, pegin.ContractVerified, pegin.ContractActive,
		pegin.ContractRedeemed, pegin.ContractLiquidated, pegin.ContractInvalid,
		pegin.ContractDepositorWithdrawn,
	}
	for _, status := range statuses {
		state := pegin.GetState(status, pegin.StateOptions{
			UtxoUnavailable:   true,
			TransactionsReady: true,
			IsInUse:           true,
		})
		assert.Equal(t, "Invalid", state.Label, "status %s", status)
		assert.Equal(t, pegin.VariantWarning, state.Variant)
		assert.Equal(t, []pegin.Action{pegin.ActionNone}, state.Actions)
	}
}

func TestGetStatePendingPriorityOrder(t *testing.T) {
	// local payout_signed outranks provider readiness and the lamport key
	state := pegin.GetState(pegin.ContractPending, pegin.StateOptions{
		LocalStatus:       pegin.LocalPayoutSigned,
		TransactionsReady: true,
		NeedsLamportKey:   true,
	})
	assert.Equal(t, "Processing", state.Label)
	assert.Equal(t, []pegin.Action{pegin.ActionNone}, state.Actions)

	// lamport key outranks transaction readiness
	state = pegin.GetState(pegin.ContractPending, pegin.StateOptions{
		TransactionsReady: true,
		NeedsLamportKey:   true,
	})
	assert.Equal(t, "Signing Required", state.Label)
	assert.Equal(t, []pegin.Action{pegin.ActionSubmitLamportKey}, state.Actions)

	// templates not ready yet
	state = pegin.GetState(pegin.ContractPending, pegin.StateOptions{})
	assert.Equal(t, "Pending", state.Label)
	assert.Equal(t, []pegin.Action{pegin.ActionNone}, state.Actions)

	// templates ready, signatures owed
	state = pegin.GetState(pegin.ContractPending, pegin.StateOptions{TransactionsReady: true})
	assert.Equal(t, "Signing Required", state.Label)
	assert.Equal(t, []pegin.Action{pegin.ActionSignPayoutTransactions}, state.Actions)
}

func TestGetStateVerified(t *testing.T) {
	state := pegin.GetState(pegin.ContractVerified, pegin.StateOptions{})
	assert.Equal(t, "Verified", state.Label)
	assert.Equal(t, []pegin.Action{pegin.ActionSignAndBroadcast}, state.Actions)

	state = pegin.GetState(pegin.ContractVerified, pegin.StateOptions{LocalStatus: pegin.LocalConfirming})
	assert.Equal(t, "Pending Bitcoin Confirmations", state.Label)
	assert.Equal(t, []pegin.Action{pegin.ActionNone}, state.Actions)
}

func TestGetStateActive(t *testing.T) {
	state := pegin.GetState(pegin.ContractActive, pegin.StateOptions{IsInUse: true})
	assert.Equal(t, "In Use", state.Label)
	assert.Equal(t, pegin.VariantActive, state.Variant)
	assert.Equal(t, []pegin.Action{pegin.ActionNone}, state.Actions)

	state = pegin.GetState(pegin.ContractActive, pegin.StateOptions{})
	assert.Equal(t, "Available", state.Label)
	assert.Equal(t, []pegin.Action{pegin.ActionRedeem}, state.Actions)
}

func TestGetStateTerminalStatuses(t *testing.T) {
	cases := []struct {
		status  pegin.ContractStatus
		label   string
		variant pegin.Variant
	}{
		{pegin.ContractRedeemed, "Redeem In Progress", pegin.VariantPending},
		{pegin.ContractLiquidated, "Liquidated", pegin.VariantWarning},
		{pegin.ContractInvalid, "Invalid", pegin.VariantWarning},
		{pegin.ContractDepositorWithdrawn, "Redeemed", pegin.VariantInactive},
	}
	for _, tc := range cases {
		state := pegin.GetState(tc.status, pegin.StateOptions{})
		assert.Equal(t, tc.label, state.Label)
		assert.Equal(t, tc.variant, state.Variant)
		assert.Equal(t, []pegin.Action{pegin.ActionNone}, state.Actions)
	}
}

func TestGetStateUnknownStatusIsTotal(t *testing.T) {
	state := pegin.GetState(pegin.ContractStatus("SOMETHING_NEW"), pegin.StateOptions{})
	assert.Equal(t, "Unknown", state.Label)
	assert.Equal(t, pegin.VariantInactive, state.Variant)
}

func TestGetStateIsDeterministic(t *testing.T) {
	opts := pegin.StateOptions{TransactionsReady: true}
	first := pegin.GetState(pegin.ContractPending, opts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, pegin.GetState(pegin.ContractPending, opts))
	}
}

func TestNextLocalStatus(t *testing.T) {
	assert.Equal(t, pegin.LocalPayoutSigned, pegin.NextLocalStatus(pegin.ActionSignPayoutTransactions))
	assert.Equal(t, pegin.LocalConfirming, pegin.NextLocalStatus(pegin.ActionSignAndBroadcast))
	assert.Equal(t, pegin.LocalNone, pegin.NextLocalStatus(pegin.ActionSubmitLamportKey))
	assert.Equal(t, pegin.LocalNone, pegin.NextLocalStatus(pegin.ActionRedeem))
	assert.Equal(t, pegin.LocalNone, pegin.NextLocalStatus(pegin.ActionNone))
}

func TestShouldEvictLocalRecord(t *testing.T) {
	terminal := []pegin.ContractStatus{
		pegin.ContractActive, pegin.ContractRedeemed, pegin.ContractLiquidated,
		pegin.ContractInvalid, pegin.ContractDepositorWithdrawn,
	}
	for _, status := range terminal {
		assert.True(t, pegin.ShouldEvictLocalRecord(status, pegin.LocalPending), "status %s", status)
		assert.True(t, pegin.ShouldEvictLocalRecord(status, pegin.LocalConfirming), "status %s", status)
	}

	// VERIFIED evicts only the optimistic pending mark
	assert.True(t, pegin.ShouldEvictLocalRecord(pegin.ContractVerified, pegin.LocalPending))
	assert.False(t, pegin.ShouldEvictLocalRecord(pegin.ContractVerified, pegin.LocalPayoutSigned))
	assert.False(t, pegin.ShouldEvictLocalRecord(pegin.ContractVerified, pegin.LocalConfirming))

	assert.False(t, pegin.ShouldEvictLocalRecord(pegin.ContractPending, pegin.LocalPending))
	assert.False(t, pegin.ShouldEvictLocalRecord(pegin.ContractPending, pegin.LocalPayoutSigned))
}
