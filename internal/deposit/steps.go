package deposit

// Step identifies where a deposit batch currently is in the 7-step sequence.
type Step int

const (
	StepValidate Step = iota
	StepPlan
	StepSplit
	StepCreatePegins
	StepPersist
	StepPayoutSigning
	StepVerifyBroadcast
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepValidate:
		return "validate"
	case StepPlan:
		return "plan"
	case StepSplit:
		return "split"
	case StepCreatePegins:
		return "create_pegins"
	case StepPersist:
		return "persist"
	case StepPayoutSigning:
		return "payout_signing"
	case StepVerifyBroadcast:
		return "verify_broadcast"
	case StepCompleted:
		return "completed"
	default:
		return "unknown"
	}
}
