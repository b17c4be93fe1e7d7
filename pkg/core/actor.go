package core

// ActorKind identifies one of the four actor kinds the policy core knows
// about. The set is closed: every capability and enforcement rule is
// defined exhaustively over these four values.
type ActorKind string

const (
	// KindPrimus is the primary assistant, the top-level actor owned by
	// the user.
	KindPrimus ActorKind = "primus"

	// KindAgent is a specialized agent spawned by Primus.
	KindAgent ActorKind = "agent"

	// KindSubChat is a derived conversational context. It inherits its
	// persona from its parent by reference and can never own one.
	KindSubChat ActorKind = "subchat"

	// KindSandbox is the offline Captain's Log actor, created on sandbox
	// entry.
	KindSandbox ActorKind = "sandbox"
)

// Valid reports whether k is one of the four known actor kinds.
func (k ActorKind) Valid() bool {
	switch k {
	case KindPrimus, KindAgent, KindSubChat, KindSandbox:
		return true
	}
	return false
}

// PersonaRef points an actor at its persona document. Inherited refs are
// read-only aliases to the parent's document and are never rebindable.
type PersonaRef struct {
	DocID     string
	Inherited bool
}
