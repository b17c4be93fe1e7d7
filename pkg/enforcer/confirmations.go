// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package enforcer

import (
	"sync"

	"github.com/primus-os/primus/pkg/core"
)

// Confirmations is the per-session confirmed capability set. A session
// grant (internet under a session-scope grant, the sandbox actor's
// in-sandbox persona flag) is confirmed once and then holds until the
// session boundary clears it. Per-call grants never enter this set.
type Confirmations struct {
	mu  sync.RWMutex
	set map[string]map[core.ActionKind]bool
}

// NewConfirmations creates an empty confirmation set.
func NewConfirmations() *Confirmations {
	return &Confirmations{set: make(map[string]map[core.ActionKind]bool)}
}

// Confirm marks the actor's capability for the action kind as confirmed
// for the rest of the session.
func (c *Confirmations) Confirm(actorID string, kind core.ActionKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds, ok := c.set[actorID]
	if !ok {
		kinds = make(map[core.ActionKind]bool)
		c.set[actorID] = kinds
	}
	kinds[kind] = true
}

// IsConfirmed reports whether the actor holds a session confirmation for
// the action kind.
func (c *Confirmations) IsConfirmed(actorID string, kind core.ActionKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set[actorID][kind]
}

// ResetActor clears every confirmation the actor holds. Sandbox exit and
// actor retirement call this.
func (c *Confirmations) ResetActor(actorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.set, actorID)
}

// Reset clears the whole set. A new session starts unconfirmed.
func (c *Confirmations) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set = make(map[string]map[core.ActionKind]bool)
}
