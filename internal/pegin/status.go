package pegin

// ContractStatus is the authoritative on-chain lifecycle of a vault. It only
// ever advances forward; no component may write it backwards.
type ContractStatus string

const (
	ContractPending            ContractStatus = "PENDING"
	ContractVerified           ContractStatus = "VERIFIED"
	ContractActive             ContractStatus = "ACTIVE"
	ContractRedeemed           ContractStatus = "REDEEMED"
	ContractLiquidated         ContractStatus = "LIQUIDATED"
	ContractInvalid            ContractStatus = "INVALID"
	ContractDepositorWithdrawn ContractStatus = "DEPOSITOR_WITHDRAWN"
)

// LocalStatus is the ephemeral client-side view written by the orchestrator
// after each user action. It is deleted once the contract status makes it
// redundant.
type LocalStatus string

const (
	LocalNone         LocalStatus = ""
	LocalPending      LocalStatus = "pending"
	LocalPayoutSigned LocalStatus = "payout_signed"
	LocalConfirming   LocalStatus = "confirming"
	LocalConfirmed    LocalStatus = "confirmed"
)

// Action is a user-facing operation available on a peg-in in its current state.
type Action string

const (
	ActionNone                   Action = "NONE"
	ActionSubmitLamportKey       Action = "SUBMIT_LAMPORT_KEY"
	ActionSignPayoutTransactions Action = "SIGN_PAYOUT_TRANSACTIONS"
	ActionSignAndBroadcast       Action = "SIGN_AND_BROADCAST_TO_BITCOIN"
	ActionRedeem                 Action = "REDEEM"
)

// NextLocalStatus returns the local status the orchestrator records after the
// given action completes, or LocalNone when the action leaves no local mark.
func NextLocalStatus(action Action) LocalStatus {
	switch action {
	case ActionSignPayoutTransactions:
		return LocalPayoutSigned
	case ActionSignAndBroadcast:
		return LocalConfirming
	default:
		return LocalNone
	}
}

// ShouldEvictLocalRecord reports whether the persisted local record for a
// peg-in carries no information beyond what the chain already knows.
func ShouldEvictLocalRecord(contractStatus ContractStatus, localStatus LocalStatus) bool {
	switch contractStatus {
	case ContractActive, ContractRedeemed, ContractLiquidated, ContractInvalid, ContractDepositorWithdrawn:
		return true
	case ContractVerified:
		// the chain caught up with the optimistic "pending" mark
		return localStatus == LocalPending
	default:
		return false
	}
}
