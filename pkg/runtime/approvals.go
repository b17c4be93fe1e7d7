// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"log/slog"

	"github.com/primus-os/primus/pkg/capability"
	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/mode"
)

// Approve settles a pending approval in the actor's favor. The original
// action is replayed through the guard with the confirmed flag, which
// appends exactly one allowing audit record, and the effect is applied:
// persona changes land in the document, session internet grants enter
// the confirmation set. The replayed decision is returned; if grants
// changed since the request it can come back a denial, and nothing is
// applied.
func (r *Runtime) Approve(ctx context.Context, id string) (core.Decision, error) {
	a, err := r.modes.Resolve(ctx, id, true, "approved by user")
	if err != nil {
		return core.Decision{}, err
	}

	replay := a.Action
	replay.Confirmed = true
	res, err := r.authorize(ctx, replay)
	if err != nil {
		return core.Decision{}, err
	}
	if !res.Decision.IsAllowed() {
		r.discardAttachedDiff(a)
		r.log.Warn("runtime.approval.replay_refused",
			slog.String("approval_id", a.ID),
			slog.String("decision", string(res.Decision.Status)),
			slog.String("reason", res.Decision.Reason),
		)
		return res.Decision, nil
	}

	if err := r.applyApproved(a); err != nil {
		return res.Decision, err
	}
	r.log.Info("runtime.approval.approved",
		slog.String("approval_id", a.ID),
		slog.String("actor_id", a.ActorID),
		slog.String("action_kind", string(a.Kind)),
	)
	return res.Decision, nil
}

// Reject settles a pending approval against the actor. The parked
// action is discarded with its attached persona diff, no audit record
// is written, and the mode returns to Normal when the queue empties.
func (r *Runtime) Reject(ctx context.Context, id string) error {
	a, err := r.modes.Resolve(ctx, id, false, "rejected by user")
	if err != nil {
		return err
	}
	r.discardAttachedDiff(a)
	r.observeMode(ctx)
	r.log.Info("runtime.approval.rejected",
		slog.String("approval_id", a.ID),
		slog.String("actor_id", a.ActorID),
		slog.String("action_kind", string(a.Kind)),
	)
	return nil
}

// applyApproved runs the side effect of an approved action.
func (r *Runtime) applyApproved(a mode.Approval) error {
	switch a.Action.Kind {
	case core.ActionPersonaEdit:
		if diffID := a.Action.Meta["diff"]; diffID != "" {
			// Sandbox-exit submissions park the diff up front.
			if err := r.personas.Apply(diffID); err != nil {
				return err
			}
			r.log.Info("runtime.persona.applied",
				slog.String("diff_id", diffID),
				slog.String("origin", a.Action.Meta["origin"]),
			)
			return nil
		}
		act, err := r.registry.Get(a.ActorID)
		if err != nil {
			return err
		}
		return r.applyPersonaChange(act.Persona.DocID, a.ActorID, a.Action.Payload, a.Action.Meta["reason"])

	case core.ActionNetCall:
		act, err := r.registry.Get(a.ActorID)
		if err != nil {
			return err
		}
		// A session-scope grant is confirmed once and holds for the
		// session; a per-call grant covers this call only.
		if r.enforcer.EffectiveGrant(act).Internet == capability.InternetSession {
			r.enforcer.Confirmations().Confirm(act.ID, core.ActionNetCall)
		}
	}
	return nil
}

// discardAttachedDiff drops the persona diff a parked action carries,
// if any. Used on rejection and on refused replays so no diff dangles.
func (r *Runtime) discardAttachedDiff(a mode.Approval) {
	if diffID := a.Action.Meta["diff"]; diffID != "" {
		r.discardDiffByID(diffID)
	}
}
