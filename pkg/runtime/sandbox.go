// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"log/slog"

	"github.com/primus-os/primus/pkg/actor"
	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/mode"
	"github.com/primus-os/primus/pkg/persona"
)

// EnterSandbox switches the system into sandbox mode. The command is
// enforced and audited while still in Normal mode, then the controller
// flips the mode, the sandbox actor is ensured and its persona session
// flag is granted. Entry is refused while approvals are pending.
func (r *Runtime) EnterSandbox(ctx context.Context, actorID string) (actor.Actor, error) {
	action := core.NewAction(core.ActionSandboxEnter, actorID)
	res, err := r.authorize(ctx, action)
	if err != nil {
		return actor.Actor{}, err
	}
	if !res.Decision.IsAllowed() {
		return actor.Actor{}, errors.New(errors.CodeTransitionRejected, res.Decision.Reason, nil).
			WithContext("rule_id", res.Decision.RuleID)
	}

	if err := r.modes.EnterSandbox(ctx); err != nil {
		return actor.Actor{}, err
	}

	sb, err := r.registry.EnsureSandbox()
	if err != nil {
		return actor.Actor{}, err
	}
	// In-sandbox persona edits run under this session flag; exit clears
	// it. The edits themselves become drafts, never direct writes.
	r.enforcer.Confirmations().Confirm(sb.ID, core.ActionPersonaEdit)

	r.observeMode(ctx)
	r.log.Info("mode.transition",
		slog.String("from", string(core.ModeNormal)),
		slog.String("to", string(core.ModeSandbox)),
		slog.String("actor_id", actorID),
		slog.String("sandbox_actor", sb.ID),
	)
	return sb, nil
}

// ExitSandbox returns the system to Normal mode. Changes drafted during
// the session are merged into one pending persona diff and pushed
// through the same approval path as any other persona edit; nothing is
// applied silently. The returned approval is nil when the session
// drafted nothing.
func (r *Runtime) ExitSandbox(ctx context.Context, actorID string) (*mode.Approval, error) {
	// Evaluated while still in sandbox mode, so the exit command itself
	// is not audited; the audit resumes with the draft submission.
	action := core.NewAction(core.ActionSandboxExit, actorID)
	res, err := r.authorize(ctx, action)
	if err != nil {
		return nil, err
	}
	if !res.Decision.IsAllowed() {
		return nil, errors.New(errors.CodeTransitionRejected, res.Decision.Reason, nil).
			WithContext("rule_id", res.Decision.RuleID)
	}

	if err := r.modes.ExitSandbox(ctx); err != nil {
		return nil, err
	}
	if sbID := r.registry.SandboxID(); sbID != "" {
		r.enforcer.Confirmations().ResetActor(sbID)
	}

	r.observeMode(ctx)
	r.log.Info("mode.transition",
		slog.String("from", string(core.ModeSandbox)),
		slog.String("to", string(core.ModeNormal)),
		slog.String("actor_id", actorID),
	)
	return r.submitSandboxDrafts(ctx)
}

// submitSandboxDrafts merges the session's drafted changes, parks them
// as one pending persona diff on the primary document and submits the
// confirmation request. One approval per exit: the controller holds a
// single pending entry per actor and kind, so drafts are merged rather
// than queued one by one.
func (r *Runtime) submitSandboxDrafts(ctx context.Context) (*mode.Approval, error) {
	if r.journal == nil {
		return nil, nil
	}
	drafts, err := r.journal.Drafts()
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, nil
	}

	changes := make([][]byte, 0, len(drafts))
	for _, d := range drafts {
		changes = append(changes, d.Note)
	}
	merged, err := persona.MergeChanges(changes...)
	if err != nil {
		return nil, err
	}

	primus, err := r.registry.Primus()
	if err != nil {
		return nil, err
	}
	diff, err := r.personas.Propose(primus.Persona.DocID, r.registry.SandboxID(), merged, "sandbox session drafts")
	if err != nil {
		return nil, err
	}

	action := core.NewAction(core.ActionPersonaEdit, primus.ID)
	action.Payload = merged
	action.Meta = map[string]string{"diff": diff.ID, "origin": "sandbox"}
	res, err := r.authorize(ctx, action)
	if err != nil {
		r.discardDiffByID(diff.ID)
		return nil, err
	}
	if !res.Decision.IsPending() {
		r.discardDiffByID(diff.ID)
		return nil, errors.New(errors.CodeInternal, "sandbox drafts did not enter the approval queue", nil).
			WithContext("decision", string(res.Decision.Status))
	}

	// Drafts are consumed only once the approval holds them.
	if _, err := r.journal.ConsumeDrafts(); err != nil {
		return nil, err
	}
	a, err := r.modes.Get(ctx, res.Decision.ApprovalID)
	if err != nil {
		return nil, err
	}
	r.log.Info("runtime.sandbox.drafts_submitted",
		slog.Int("drafts", len(drafts)),
		slog.String("approval_id", a.ID),
		slog.String("diff_id", diff.ID),
	)
	return &a, nil
}

func (r *Runtime) discardDiffByID(diffID string) {
	if err := r.personas.Discard(diffID); err != nil {
		r.log.Warn("runtime.persona.diff_discard_failed",
			slog.String("diff_id", diffID),
			slog.String("error", err.Error()),
		)
	}
}
