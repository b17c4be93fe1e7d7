// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package mode owns the runtime mode state machine and the pending
// approval queue behind it. The observable transition graph is exactly
// Normal<->ApprovalPending and Normal<->Sandbox; every other edge is
// rejected. All transitions serialize on one lock, so the loser of a
// race observes the resulting state and re-runs its own decision logic.
package mode

import (
	"context"
	"sync"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// Controller serializes mode transitions and keeps the pending approval
// queue consistent with the mode: the mode is ApprovalPending exactly
// while at least one approval is pending.
type Controller struct {
	mu        sync.RWMutex
	mode      core.Mode
	approvals ApprovalStore
}

// NewController creates a controller in Normal mode. A nil store gets
// an in-memory approval store.
func NewController(store ApprovalStore) *Controller {
	if store == nil {
		store = NewMemoryApprovalStore()
	}
	return &Controller{mode: core.ModeNormal, approvals: store}
}

// Current returns the mode.
func (c *Controller) Current() core.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Hold pins the mode for one evaluation and returns it together with a
// release func. Transitions block until every hold is released, so a
// caller that samples, decides and records under one hold can never
// straddle a mode change. The release func must always be called.
func (c *Controller) Hold() (core.Mode, func()) {
	c.mu.RLock()
	return c.mode, c.mu.RUnlock
}

// AuditSuppressed reports whether audit writes are suspended. This is
// true exactly while the mode is Sandbox.
func (c *Controller) AuditSuppressed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode == core.ModeSandbox
}

// RequestApproval parks an action for user confirmation and moves the
// mode to ApprovalPending. A pending approval for the same actor and
// action kind is returned as-is instead of queueing a duplicate.
func (c *Controller) RequestApproval(ctx context.Context, action core.Action) (Approval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == core.ModeSandbox {
		return Approval{}, errors.New(errors.CodeTransitionRejected, "approvals are unavailable in sandbox mode", nil).
			WithContext("mode", string(c.mode))
	}

	existing, err := c.approvals.List(ctx, ApprovalFilter{
		ActorID: action.ActorID,
		Kind:    action.Kind,
		Status:  ApprovalStatusPending,
		Limit:   1,
	})
	if err != nil {
		return Approval{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	a, err := c.approvals.Create(ctx, Approval{
		ActorID: action.ActorID,
		Kind:    action.Kind,
		Action:  action,
	})
	if err != nil {
		return Approval{}, err
	}
	c.mode = core.ModeApprovalPending
	return a, nil
}

// HasPendingFor reports the pending approval for an actor and action
// kind, if one exists.
func (c *Controller) HasPendingFor(ctx context.Context, actorID string, kind core.ActionKind) (Approval, bool, error) {
	list, err := c.approvals.List(ctx, ApprovalFilter{
		ActorID: actorID,
		Kind:    kind,
		Status:  ApprovalStatusPending,
		Limit:   1,
	})
	if err != nil {
		return Approval{}, false, err
	}
	if len(list) == 0 {
		return Approval{}, false, nil
	}
	return list[0], true, nil
}

// Pending returns all pending approvals, oldest first.
func (c *Controller) Pending(ctx context.Context) ([]Approval, error) {
	return c.approvals.List(ctx, ApprovalFilter{Status: ApprovalStatusPending})
}

// Get returns one approval by id, resolved or not.
func (c *Controller) Get(ctx context.Context, id string) (Approval, error) {
	return c.approvals.Get(ctx, id)
}

// Resolve settles a pending approval. When the last pending approval is
// settled the mode returns to Normal. The returned approval carries the
// original action so an approved request can be replayed confirmed.
// Resolving an already settled approval fails with ApprovalNotFound.
func (c *Controller) Resolve(ctx context.Context, id string, approved bool, reason string) (Approval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, err := c.approvals.Get(ctx, id)
	if err != nil {
		return Approval{}, err
	}
	if a.Status != ApprovalStatusPending {
		return Approval{}, errors.New(errors.CodeApprovalNotFound, "approval already resolved", nil).
			WithContext("approval_id", id).
			WithContext("status", string(a.Status))
	}

	status := ApprovalStatusRejected
	if approved {
		status = ApprovalStatusApproved
	}
	a, err = c.approvals.UpdateStatus(ctx, id, status, reason)
	if err != nil {
		return Approval{}, err
	}

	remaining, err := c.approvals.List(ctx, ApprovalFilter{Status: ApprovalStatusPending, Limit: 1})
	if err != nil {
		return Approval{}, err
	}
	if len(remaining) == 0 && c.mode == core.ModeApprovalPending {
		c.mode = core.ModeNormal
	}
	return a, nil
}

// EnterSandbox moves Normal to Sandbox. Entry is refused while any
// approval is pending; the caller resolves the queue first.
func (c *Controller) EnterSandbox(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != core.ModeNormal {
		return errors.New(errors.CodeTransitionRejected, "sandbox entry requires normal mode", nil).
			WithContext("mode", string(c.mode))
	}
	pending, err := c.approvals.List(ctx, ApprovalFilter{Status: ApprovalStatusPending, Limit: 1})
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return errors.New(errors.CodeTransitionRejected, "sandbox entry blocked by pending approval", nil).
			WithContext("approval_id", pending[0].ID)
	}
	c.mode = core.ModeSandbox
	return nil
}

// ExitSandbox moves Sandbox back to Normal.
func (c *Controller) ExitSandbox(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != core.ModeSandbox {
		return errors.New(errors.CodeTransitionRejected, "not in sandbox mode", nil).
			WithContext("mode", string(c.mode))
	}
	c.mode = core.ModeNormal
	return nil
}
