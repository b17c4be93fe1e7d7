package core

import "strings"

// PartitionClass scopes a memory partition to one isolation domain.
type PartitionClass string

const (
	// PartitionGlobal is the shared knowledge partition. Readable by every
	// actor, writable only by Primus.
	PartitionGlobal PartitionClass = "global"

	// PartitionAgent is an agent's private partition.
	PartitionAgent PartitionClass = "agent"

	// PartitionSubChat is a subchat's session partition.
	PartitionSubChat PartitionClass = "subchat"

	// PartitionSandbox is sandbox-private storage. Never readable outside
	// sandbox mode and excluded from the audit log.
	PartitionSandbox PartitionClass = "sandbox"
)

// Valid reports whether c is a known partition class.
func (c PartitionClass) Valid() bool {
	switch c {
	case PartitionGlobal, PartitionAgent, PartitionSubChat, PartitionSandbox:
		return true
	}
	return false
}

// PartitionID addresses one memory partition: the owning actor plus the
// isolation class.
type PartitionID struct {
	Owner string
	Class PartitionClass
}

// Key returns the canonical "class/owner" form used by stores and logs.
func (p PartitionID) Key() string {
	return string(p.Class) + "/" + p.Owner
}

// IsZero reports whether p addresses nothing.
func (p PartitionID) IsZero() bool {
	return p.Owner == "" && p.Class == ""
}

// ParsePartitionKey parses the canonical "class/owner" form.
func ParsePartitionKey(key string) (PartitionID, bool) {
	class, owner, found := strings.Cut(key, "/")
	if !found || owner == "" {
		return PartitionID{}, false
	}
	id := PartitionID{Owner: owner, Class: PartitionClass(class)}
	if !id.Class.Valid() {
		return PartitionID{}, false
	}
	return id, true
}
