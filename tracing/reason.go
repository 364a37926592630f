package tracing

// BalanceChangeReason is a description of the reason why a balance was changed.
type BalanceChangeReason int

const (
	BalanceChangeUnspecified BalanceChangeReason = iota
	BalanceChangeCallValue                       // value attached to a payable call
	BalanceChangeDeployValue                     // value attached to a deployment
	BalanceChangeRevert                          // journal rollback of a failed frame
	BalanceChangeHarnessSet                      // direct harness configuration
)

// String returns a human-readable string for the reason.
func (r BalanceChangeReason) String() string {
	switch r {
	case BalanceChangeUnspecified:
		return "unspecified"
	case BalanceChangeCallValue:
		return "call_value"
	case BalanceChangeDeployValue:
		return "deploy_value"
	case BalanceChangeRevert:
		return "revert"
	case BalanceChangeHarnessSet:
		return "harness_set"
	}
	return "unknown"
}
