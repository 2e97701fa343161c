package pegin

// Variant classifies how a state is rendered.
type Variant string

const (
	VariantPending  Variant = "pending"
	VariantActive   Variant = "active"
	VariantInactive Variant = "inactive"
	VariantWarning  Variant = "warning"
)

// State is the unified lifecycle view of one peg-in, derived on demand from
// the on-chain status, the local optimistic status and the provider flags.
// It is never stored.
type State struct {
	Label   string   `json:"label"`
	Variant Variant  `json:"variant"`
	Actions []Action `json:"actions"`
}

// StateOptions carries the auxiliary inputs GetState combines with the
// contract status.
type StateOptions struct {
	LocalStatus       LocalStatus
	TransactionsReady bool
	IsInUse           bool
	UtxoUnavailable   bool
	NeedsLamportKey   bool
}

func noAction(label string, variant Variant) State {
	return State{Label: label, Variant: variant, Actions: []Action{ActionNone}}
}

func withAction(label string, variant Variant, action Action) State {
	return State{Label: label, Variant: variant, Actions: []Action{action}}
}

// GetState derives the display state and available actions for one peg-in.
// Total over all inputs: an unmapped contract status resolves to an Unknown
// terminal-looking state rather than failing. First match wins.
func GetState(contractStatus ContractStatus, opts StateOptions) State {
	// A spent-elsewhere funding output is the strongest distrust signal and
	// overrides everything else.
	if opts.UtxoUnavailable {
		return noAction("Invalid", VariantWarning)
	}

	switch contractStatus {
	case ContractPending:
		if opts.LocalStatus == LocalPayoutSigned {
			// signatures submitted, waiting for the chain to acknowledge
			return noAction("Processing", VariantPending)
		}
		if opts.NeedsLamportKey {
			return withAction("Signing Required", VariantPending, ActionSubmitLamportKey)
		}
		if !opts.TransactionsReady {
			// vault provider has not produced the payout templates yet
			return noAction("Pending", VariantPending)
		}
		return withAction("Signing Required", VariantPending, ActionSignPayoutTransactions)

	case ContractVerified:
		if opts.LocalStatus == LocalConfirming {
			return noAction("Pending Bitcoin Confirmations", VariantPending)
		}
		return withAction("Verified", VariantPending, ActionSignAndBroadcast)

	case ContractActive:
		if opts.IsInUse {
			// collateral backs an open position, debt must be repaid first
			return noAction("In Use", VariantActive)
		}
		return withAction("Available", VariantActive, ActionRedeem)

	case ContractRedeemed:
		return noAction("Redeem In Progress", VariantPending)

	case ContractLiquidated:
		return noAction("Liquidated", VariantWarning)

	case ContractInvalid:
		return noAction("Invalid", VariantWarning)

	case ContractDepositorWithdrawn:
		return noAction("Redeemed", VariantInactive)

	default:
		return noAction("Unknown", VariantInactive)
	}
}
