package core

// ActionKind names one externally observable operation. Like actor kinds
// the set is closed; the enforcer's rule table covers every kind.
type ActionKind string

const (
	// ActionChatTurn is a user or actor chat turn headed for the inference
	// boundary.
	ActionChatTurn ActionKind = "chat.turn"

	// ActionPartitionRead reads bytes from a memory partition.
	ActionPartitionRead ActionKind = "partition.read"

	// ActionPartitionWrite writes bytes to a memory partition.
	ActionPartitionWrite ActionKind = "partition.write"

	// ActionPersonaEdit modifies a persona document.
	ActionPersonaEdit ActionKind = "persona.edit"

	// ActionAgentMessage sends a message to a collaboration partner.
	ActionAgentMessage ActionKind = "agent.message"

	// ActionAgentShare exposes an explicit subset of the sender's private
	// partition to a collaboration partner. Distinct from ActionAgentMessage
	// so sharing is enforced and audited in its own right.
	ActionAgentShare ActionKind = "agent.share"

	// ActionNetCall is an outbound internet call.
	ActionNetCall ActionKind = "net.call"

	// ActionSandboxEnter requests the Normal→Sandbox transition.
	ActionSandboxEnter ActionKind = "sandbox.enter"

	// ActionSandboxExit requests the Sandbox→Normal transition.
	ActionSandboxExit ActionKind = "sandbox.exit"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionChatTurn, ActionPartitionRead, ActionPartitionWrite,
		ActionPersonaEdit, ActionAgentMessage, ActionAgentShare,
		ActionNetCall, ActionSandboxEnter, ActionSandboxExit:
		return true
	}
	return false
}

// Action is the unit every guard decision is made about. Front ends and
// agent runtimes construct Actions; nothing reaches the partition store or
// the inference boundary without one passing the guard first.
type Action struct {
	// ID is unique per submitted action and binds issued store tokens.
	ID string

	// Kind is the operation being attempted.
	Kind ActionKind

	// ActorID is the requesting actor.
	ActorID string

	// Target is the partition the action touches, when it touches one.
	Target PartitionID

	// Partner is the receiving actor for agent.message / agent.share.
	Partner string

	// Payload is opaque to the policy core (message bytes, persona diff,
	// snippet to share). The core governs access, not content.
	Payload []byte

	// Confirmed is set when the action is replayed after an explicit user
	// approval. It is never set on first submission.
	Confirmed bool

	// Meta carries free-form annotations for logging.
	Meta map[string]string
}

// NewAction builds an Action with a fresh ID.
func NewAction(kind ActionKind, actorID string) Action {
	return Action{ID: newActionID(), Kind: kind, ActorID: actorID}
}

// TargetsPartition reports whether the action addresses a partition.
func (a Action) TargetsPartition() bool {
	return !a.Target.IsZero()
}
