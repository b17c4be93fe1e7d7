// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability holds the static grant templates per actor kind and
// the narrowing logic that bounds every runtime grant. The table is closed
// and exhaustive over the four actor kinds; grants can be narrowed at
// runtime but never widened past the template.
package capability

import (
	"fmt"

	"github.com/primus-os/primus/pkg/core"
)

// InternetAccess is the outbound-network grant level.
type InternetAccess string

const (
	// InternetOff denies all outbound calls.
	InternetOff InternetAccess = "off"

	// InternetPerCall requires an explicit confirmation for every call.
	InternetPerCall InternetAccess = "per-call"

	// InternetSession requires one confirmation per session; later calls
	// in the same session proceed without another prompt.
	InternetSession InternetAccess = "session"
)

// RAGScope is the partition-write grant level.
type RAGScope string

const (
	// RAGWriteNone denies all partition writes.
	RAGWriteNone RAGScope = "none"

	// RAGWriteOwn permits writes to the actor's own partition only. No
	// grant level permits writing someone else's partition.
	RAGWriteOwn RAGScope = "own"
)

// Grant is the permission set attached to an actor. The zero value grants
// nothing.
type Grant struct {
	Internet     InternetAccess
	AgentToAgent bool
	SubChatCross bool
	PersonaWrite bool
	RAGWrite     RAGScope
}

// TemplateFor returns the grant template for an actor kind. The table is
// closed over the four kinds; an unknown kind is a programmer error and
// panics.
func TemplateFor(kind core.ActorKind) Grant {
	switch kind {
	case core.KindPrimus:
		return Grant{
			Internet:     InternetSession,
			AgentToAgent: true,
			SubChatCross: true,
			PersonaWrite: true,
			RAGWrite:     RAGWriteOwn,
		}
	case core.KindAgent:
		return Grant{
			Internet:     InternetPerCall,
			AgentToAgent: true,
			SubChatCross: false,
			PersonaWrite: false,
			RAGWrite:     RAGWriteOwn,
		}
	case core.KindSubChat:
		// PersonaWrite stays false on every path: the template is false
		// and narrowing can only clear bits, never set them.
		return Grant{
			Internet:     InternetOff,
			AgentToAgent: false,
			SubChatCross: false,
			PersonaWrite: false,
			RAGWrite:     RAGWriteOwn,
		}
	case core.KindSandbox:
		// Sandbox persona writes are held as pending diffs at exit; the
		// grant only opens the in-sandbox edit path.
		return Grant{
			Internet:     InternetOff,
			AgentToAgent: false,
			SubChatCross: false,
			PersonaWrite: true,
			RAGWrite:     RAGWriteOwn,
		}
	}
	panic(fmt.Sprintf("capability: unknown actor kind %q", kind))
}

// Narrow intersects two grants field-wise. The result never exceeds either
// input, so narrowing against the kind template can only remove capability.
func Narrow(a, b Grant) Grant {
	return Grant{
		Internet:     minInternet(a.Internet, b.Internet),
		AgentToAgent: a.AgentToAgent && b.AgentToAgent,
		SubChatCross: a.SubChatCross && b.SubChatCross,
		PersonaWrite: a.PersonaWrite && b.PersonaWrite,
		RAGWrite:     minRAG(a.RAGWrite, b.RAGWrite),
	}
}

// SubsetOf reports whether g grants no more than other in every field
// except RAGWrite, which is owner-scoped for every actor and therefore
// excluded from the subset relation.
func (g Grant) SubsetOf(other Grant) bool {
	if internetRank(g.Internet) > internetRank(other.Internet) {
		return false
	}
	if g.AgentToAgent && !other.AgentToAgent {
		return false
	}
	if g.SubChatCross && !other.SubChatCross {
		return false
	}
	if g.PersonaWrite && !other.PersonaWrite {
		return false
	}
	return true
}

func minInternet(a, b InternetAccess) InternetAccess {
	if internetRank(a) <= internetRank(b) {
		return a
	}
	return b
}

func minRAG(a, b RAGScope) RAGScope {
	if ragRank(a) <= ragRank(b) {
		return a
	}
	return b
}

func internetRank(a InternetAccess) int {
	switch a {
	case InternetPerCall:
		return 1
	case InternetSession:
		return 2
	default:
		return 0
	}
}

func ragRank(s RAGScope) int {
	if s == RAGWriteOwn {
		return 1
	}
	return 0
}
