package actor

import (
	"time"

	"github.com/primus-os/primus/pkg/capability"
	"github.com/primus-os/primus/pkg/core"
)

// Actor is one policy subject: Primus, an agent, a subchat, or the sandbox
// actor. Registry methods return snapshots; all mutation goes through the
// registry under its lock.
type Actor struct {
	ID        string
	Kind      core.ActorKind
	Name      string
	ParentID  string
	Persona   core.PersonaRef
	Grant     capability.Grant
	CreatedAt time.Time
}

// Option configures a spawned actor.
type Option func(*Actor) error

// WithName sets a human-readable actor name.
func WithName(name string) Option {
	return func(a *Actor) error {
		a.Name = name
		return nil
	}
}

// WithNarrowedGrant narrows the actor's grant at spawn time. The result is
// the intersection with the kind template, so the option can only remove
// capability.
func WithNarrowedGrant(g capability.Grant) Option {
	return func(a *Actor) error {
		a.Grant = capability.Narrow(a.Grant, g)
		return nil
	}
}

// OwnPartition returns the actor's own partition id for its kind.
func (a Actor) OwnPartition() core.PartitionID {
	switch a.Kind {
	case core.KindPrimus:
		return core.PartitionID{Owner: a.ID, Class: core.PartitionGlobal}
	case core.KindAgent:
		return core.PartitionID{Owner: a.ID, Class: core.PartitionAgent}
	case core.KindSubChat:
		return core.PartitionID{Owner: a.ID, Class: core.PartitionSubChat}
	case core.KindSandbox:
		return core.PartitionID{Owner: a.ID, Class: core.PartitionSandbox}
	}
	return core.PartitionID{}
}
