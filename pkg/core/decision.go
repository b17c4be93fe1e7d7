package core

// DecisionStatus is the tri-state outcome of an enforcement evaluation.
type DecisionStatus string

const (
	// DecisionAllow permits the action.
	DecisionAllow DecisionStatus = "allow"

	// DecisionDeny rejects the action. Denial is a normal outcome, not an
	// error; the caller may change the request and retry.
	DecisionDeny DecisionStatus = "deny"

	// DecisionRequireApproval suspends the action until an explicit user
	// decision.
	DecisionRequireApproval DecisionStatus = "require_approval"
)

// Decision is the enforcer's verdict on one action. RuleID names the rule
// that produced the outcome so audits and tests can pin behavior to rules.
type Decision struct {
	Status     DecisionStatus
	Reason     string
	RuleID     string
	ApprovalID string
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Status: DecisionAllow}
}

// Deny returns a denying decision with the rule that fired and the reason.
func Deny(ruleID, reason string) Decision {
	return Decision{Status: DecisionDeny, RuleID: ruleID, Reason: reason}
}

// RequireApproval returns a suspending decision.
func RequireApproval(ruleID, reason string) Decision {
	return Decision{Status: DecisionRequireApproval, RuleID: ruleID, Reason: reason}
}

// IsAllowed reports whether the decision permits the action.
func (d Decision) IsAllowed() bool {
	return d.Status == DecisionAllow
}

// IsDenied reports whether the decision rejects the action.
func (d Decision) IsDenied() bool {
	return d.Status == DecisionDeny
}

// IsPending reports whether the decision awaits user approval.
func (d Decision) IsPending() bool {
	return d.Status == DecisionRequireApproval
}
