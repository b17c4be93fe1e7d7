package core

// Mode is the process-wide runtime mode. Exactly one mode is active at any
// instant; the mode controller owns the value and all transitions.
type Mode string

const (
	// ModeNormal is the default interactive mode.
	ModeNormal Mode = "normal"

	// ModeApprovalPending is active while at least one action awaits an
	// explicit user decision.
	ModeApprovalPending Mode = "approval_pending"

	// ModeSandbox is the offline Captain's Log mode: internet forced off,
	// audit writes suspended, sandbox journal available.
	ModeSandbox Mode = "sandbox"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeNormal, ModeApprovalPending, ModeSandbox:
		return true
	}
	return false
}
