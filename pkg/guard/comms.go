// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// Snippet is one explicitly shared subset of a sender's private
// partition. Snippets are copies living in the collaboration; the
// partner's partition is never opened.
type Snippet struct {
	From     string
	Data     []byte
	SharedAt time.Time
}

// Collaboration is an active two-agent exchange. The member pair is
// fixed at open; there is no join operation.
type Collaboration struct {
	ID        string
	Members   [2]string
	Snippets  []Snippet
	StartedAt time.Time
}

type pairGrant struct {
	expiresAt time.Time
}

// CommsGuard authorizes agent-to-agent communication. Authorization
// comes from a persistent pair allowlist or an expiring single-grant
// approval; an authorized exchange opens a collaboration of exactly two
// members, and anyone else knocking on a busy member is refused.
type CommsGuard struct {
	mu sync.Mutex

	allowlist map[string]bool      // "sender->receiver"
	grants    map[string]pairGrant // single-use, expiring

	collabs  map[string]*Collaboration
	memberOf map[string]string // actor ID -> collaboration ID

	now func() time.Time
}

// NewCommsGuard creates an empty comms guard.
func NewCommsGuard() *CommsGuard {
	return &CommsGuard{
		allowlist: make(map[string]bool),
		grants:    make(map[string]pairGrant),
		collabs:   make(map[string]*Collaboration),
		memberOf:  make(map[string]string),
		now:       time.Now,
	}
}

func pairKey(sender, receiver string) string {
	return sender + "->" + receiver
}

// Allow adds a persistent sender->receiver pair. Only the user
// authorizes this; the guard just records it.
func (g *CommsGuard) Allow(sender, receiver string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowlist[pairKey(sender, receiver)] = true
}

// GrantOnce records a single-grant pair approval that expires after ttl
// and is consumed by the first authorized exchange.
func (g *CommsGuard) GrantOnce(sender, receiver string, ttl time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[pairKey(sender, receiver)] = pairGrant{expiresAt: g.now().Add(ttl)}
}

// Revoke removes both the persistent pair and any unconsumed grant.
func (g *CommsGuard) Revoke(sender, receiver string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := pairKey(sender, receiver)
	delete(g.allowlist, key)
	delete(g.grants, key)
}

// AuthorizePair is the enforcer's communication hook: group size first,
// then pair authorization. An authorized exchange opens or reuses the
// pair's collaboration.
func (g *CommsGuard) AuthorizePair(_ context.Context, senderID, partnerID string, _ core.ActionKind) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Group size: a collaboration holds exactly two members. A third
	// actor knocking on a busy member is refused, and a busy member
	// cannot open a second collaboration.
	senderCollab, senderBusy := g.memberOf[senderID]
	partnerCollab, partnerBusy := g.memberOf[partnerID]
	if senderBusy && partnerBusy && senderCollab != partnerCollab {
		return false, "both actors are in other collaborations"
	}
	if senderBusy && !partnerBusy {
		return false, "sender is already in an active collaboration"
	}
	if partnerBusy && !senderBusy {
		return false, "partner's collaboration is full"
	}

	// Same collaboration: already authorized when it opened.
	if senderBusy && partnerBusy && senderCollab == partnerCollab {
		return true, ""
	}

	key := pairKey(senderID, partnerID)
	if g.allowlist[key] {
		g.openCollabLocked(senderID, partnerID)
		return true, ""
	}
	if grant, ok := g.grants[key]; ok {
		delete(g.grants, key) // single grant, consumed win or lose
		if g.now().Before(grant.expiresAt) {
			g.openCollabLocked(senderID, partnerID)
			return true, ""
		}
		return false, "pair approval expired"
	}
	return false, "pair is not authorized"
}

func (g *CommsGuard) openCollabLocked(a, b string) *Collaboration {
	c := &Collaboration{
		ID:        uuid.NewString(),
		Members:   [2]string{a, b},
		StartedAt: g.now(),
	}
	g.collabs[c.ID] = c
	g.memberOf[a] = c.ID
	g.memberOf[b] = c.ID
	return c
}

// ShareSnippet copies shared bytes into the pair's collaboration. The
// caller has already passed the enforcer's agent.share evaluation.
func (g *CommsGuard) ShareSnippet(senderID, partnerID string, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	collabID, ok := g.memberOf[senderID]
	if !ok || g.memberOf[partnerID] != collabID {
		return errors.New(errors.CodeInvalidInput, "no active collaboration between the pair", nil).
			WithContext("sender", senderID).
			WithContext("partner", partnerID)
	}
	c := g.collabs[collabID]
	c.Snippets = append(c.Snippets, Snippet{
		From:     senderID,
		Data:     append([]byte(nil), data...),
		SharedAt: g.now(),
	})
	return nil
}

// SharedWith returns copies of the snippets the actor's partner has
// shared into their collaboration.
func (g *CommsGuard) SharedWith(actorID string) []Snippet {
	g.mu.Lock()
	defer g.mu.Unlock()

	collabID, ok := g.memberOf[actorID]
	if !ok {
		return nil
	}
	var out []Snippet
	for _, s := range g.collabs[collabID].Snippets {
		if s.From == actorID {
			continue
		}
		out = append(out, Snippet{
			From:     s.From,
			Data:     append([]byte(nil), s.Data...),
			SharedAt: s.SharedAt,
		})
	}
	return out
}

// EndCollaboration closes the actor's collaboration and frees both
// members. Shared snippets go with it.
func (g *CommsGuard) EndCollaboration(actorID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	collabID, ok := g.memberOf[actorID]
	if !ok {
		return
	}
	c := g.collabs[collabID]
	delete(g.memberOf, c.Members[0])
	delete(g.memberOf, c.Members[1])
	delete(g.collabs, collabID)
}

// ActiveCollaborations returns snapshots of the open collaborations.
func (g *CommsGuard) ActiveCollaborations() []Collaboration {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Collaboration, 0, len(g.collabs))
	for _, c := range g.collabs {
		snap := *c
		snap.Snippets = append([]Snippet(nil), c.Snippets...)
		out = append(out, snap)
	}
	return out
}
