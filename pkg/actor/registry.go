// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package actor tracks every live policy subject. The registry owns actor
// lifecycle: the Primus singleton, agents and subchats with parent links,
// and the sandbox actor created on first sandbox entry. Persona aliasing
// for subchats is fixed here at spawn time and has no rebind path.
package actor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primus-os/primus/pkg/capability"
	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// Registry is the in-memory actor table.
type Registry struct {
	mu        sync.RWMutex
	actors    map[string]Actor
	primusID  string
	sandboxID string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actors: make(map[string]Actor)}
}

// CreatePrimus creates the primary assistant. There is exactly one; a
// second call returns the existing actor.
func (r *Registry) CreatePrimus(name string) (Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.primusID != "" {
		return r.actors[r.primusID], nil
	}

	a := Actor{
		ID:        uuid.NewString(),
		Kind:      core.KindPrimus,
		Name:      name,
		Persona:   core.PersonaRef{DocID: uuid.NewString()},
		Grant:     capability.TemplateFor(core.KindPrimus),
		CreatedAt: time.Now().UTC(),
	}
	r.actors[a.ID] = a
	r.primusID = a.ID
	return a, nil
}

// SpawnAgent creates a specialized agent owned by Primus.
func (r *Registry) SpawnAgent(parentID string, opts ...Option) (Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.actors[parentID]
	if !ok {
		return Actor{}, errors.New(errors.CodeActorNotFound, "parent actor not found", nil).
			WithContext("parent_id", parentID)
	}
	if parent.Kind != core.KindPrimus {
		return Actor{}, errors.New(errors.CodeInvalidInput, "agents are spawned by primus only", nil).
			WithContext("parent_kind", string(parent.Kind))
	}

	a := Actor{
		ID:        uuid.NewString(),
		Kind:      core.KindAgent,
		ParentID:  parent.ID,
		Persona:   core.PersonaRef{DocID: uuid.NewString()},
		Grant:     capability.TemplateFor(core.KindAgent),
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		if err := opt(&a); err != nil {
			return Actor{}, err
		}
	}
	r.actors[a.ID] = a
	return a, nil
}

// SpawnSubChat derives a subchat from a parent conversation. The persona
// reference aliases the parent's document and is marked inherited; there
// is no API that rebinds it.
func (r *Registry) SpawnSubChat(parentID string, opts ...Option) (Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.actors[parentID]
	if !ok {
		return Actor{}, errors.New(errors.CodeActorNotFound, "parent actor not found", nil).
			WithContext("parent_id", parentID)
	}
	if parent.Kind == core.KindSandbox {
		return Actor{}, errors.New(errors.CodeInvalidInput, "sandbox cannot spawn subchats", nil)
	}

	a := Actor{
		ID:       uuid.NewString(),
		Kind:     core.KindSubChat,
		ParentID: parent.ID,
		// Alias the parent's document, not a copy. A subchat derived from
		// another subchat still points at the original document.
		Persona:   core.PersonaRef{DocID: parent.Persona.DocID, Inherited: true},
		Grant:     capability.TemplateFor(core.KindSubChat),
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		if err := opt(&a); err != nil {
			return Actor{}, err
		}
	}
	// Whatever the options did, the persona stays an inherited alias and
	// PersonaWrite stays cleared.
	a.Persona = core.PersonaRef{DocID: parent.Persona.DocID, Inherited: true}
	a.Grant = capability.Narrow(a.Grant, capability.TemplateFor(core.KindSubChat))
	r.actors[a.ID] = a
	return a, nil
}

// EnsureSandbox returns the sandbox actor, creating it on first use.
func (r *Registry) EnsureSandbox() (Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sandboxID != "" {
		return r.actors[r.sandboxID], nil
	}

	a := Actor{
		ID:        uuid.NewString(),
		Kind:      core.KindSandbox,
		Name:      "captains-log",
		Persona:   core.PersonaRef{DocID: uuid.NewString()},
		Grant:     capability.TemplateFor(core.KindSandbox),
		CreatedAt: time.Now().UTC(),
	}
	r.actors[a.ID] = a
	r.sandboxID = a.ID
	return a, nil
}

// Get returns a snapshot of the actor.
func (r *Registry) Get(id string) (Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actors[id]
	if !ok {
		return Actor{}, errors.New(errors.CodeActorNotFound, "actor not found", nil).
			WithContext("actor_id", id)
	}
	return a, nil
}

// Exists reports whether the actor id is live.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actors[id]
	return ok
}

// Primus returns the primary assistant.
func (r *Registry) Primus() (Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.primusID == "" {
		return Actor{}, errors.New(errors.CodeActorNotFound, "primus not created", nil)
	}
	return r.actors[r.primusID], nil
}

// Sandbox returns the sandbox actor if it has been created.
func (r *Registry) Sandbox() (Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sandboxID == "" {
		return Actor{}, false
	}
	return r.actors[r.sandboxID], true
}

// SandboxID returns the sandbox actor id, or "" before first sandbox entry.
func (r *Registry) SandboxID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sandboxID
}

// List returns a snapshot of all live actors.
func (r *Registry) List() []Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Actor, 0, len(r.actors))
	for _, a := range r.actors {
		out = append(out, a)
	}
	return out
}

// NarrowGrant intersects the actor's grant with g. Widening is impossible
// by construction.
func (r *Registry) NarrowGrant(id string, g capability.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actors[id]
	if !ok {
		return errors.New(errors.CodeActorNotFound, "actor not found", nil).
			WithContext("actor_id", id)
	}
	a.Grant = capability.Narrow(a.Grant, g)
	r.actors[id] = a
	return nil
}

// Retire removes an actor (a closed subchat, a finished agent). Primus
// cannot be retired; the sandbox actor survives so its partition stays
// addressable across sandbox sessions.
func (r *Registry) Retire(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actors[id]
	if !ok {
		return errors.New(errors.CodeActorNotFound, "actor not found", nil).
			WithContext("actor_id", id)
	}
	if a.Kind == core.KindPrimus {
		return errors.New(errors.CodeInvalidInput, "primus cannot be retired", nil)
	}
	if a.Kind == core.KindSandbox {
		return errors.New(errors.CodeInvalidInput, "the sandbox actor cannot be retired", nil)
	}
	delete(r.actors, id)
	return nil
}
