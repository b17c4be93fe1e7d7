// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package guard is the single gate every action passes through. It
// resolves the acting identity, asks the enforcer for a decision,
// converts pending decisions into approval requests, writes the audit
// record, and mints partition tokens for allowed storage operations.
package guard

import (
	"context"

	"github.com/primus-os/primus/pkg/actor"
	"github.com/primus-os/primus/pkg/audit"
	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/enforcer"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/mode"
	"github.com/primus-os/primus/pkg/partition"
)

// Result is the outcome of one authorization. Token is set only for
// allowed partition operations and is the sole way to reach a store.
type Result struct {
	Decision core.Decision
	Token    *partition.Token
}

// Guard wires the registry, enforcer, mode controller, audit log and
// token vault into one Authorize call.
type Guard struct {
	registry *actor.Registry
	enforcer *enforcer.Enforcer
	modes    *mode.Controller
	log      audit.Log
	vault    *partition.Vault
}

// New builds a guard. All dependencies are required.
func New(reg *actor.Registry, enf *enforcer.Enforcer, modes *mode.Controller, log audit.Log, vault *partition.Vault) *Guard {
	return &Guard{
		registry: reg,
		enforcer: enf,
		modes:    modes,
		log:      log,
		vault:    vault,
	}
}

// Authorize runs one action through the full gate. The mode is pinned
// across the evaluate-and-append span: transitions wait for the pin to
// release, so the audit log cannot grow after a sandbox entry commits
// and a record never claims a different mode than the one the decision
// was made under. A failed audit append fails the action: an unrecorded
// decision must not take effect.
func (g *Guard) Authorize(ctx context.Context, action core.Action) (Result, error) {
	act, err := g.registry.Get(action.ActorID)
	if err != nil {
		return Result{}, err
	}

	modeAtEval, release := g.modes.Hold()
	d := g.enforcer.EvaluateInMode(ctx, act, action, modeAtEval)

	if modeAtEval != core.ModeSandbox {
		if _, err := g.log.Append(ctx, audit.Record{
			ActorID:    act.ID,
			ActorKind:  act.Kind,
			ActionKind: action.Kind,
			Decision:   d.Status,
			Mode:       modeAtEval,
			RuleID:     d.RuleID,
			Reason:     d.Reason,
		}); err != nil {
			release()
			return Result{}, errors.New(errors.CodeInternal, "audit append failed", err).
				WithContext("action_id", action.ID)
		}
	}
	release()

	if d.IsPending() {
		approval, err := g.modes.RequestApproval(ctx, action)
		if err != nil {
			return Result{}, err
		}
		d.ApprovalID = approval.ID
	}

	res := Result{Decision: d}
	if d.IsAllowed() {
		switch action.Kind {
		case core.ActionPartitionRead:
			tok := g.vault.Issue(action.ID, action.Target, partition.OpRead)
			res.Token = &tok
		case core.ActionPartitionWrite:
			tok := g.vault.Issue(action.ID, action.Target, partition.OpWrite)
			res.Token = &tok
		}
	}
	return res, nil
}
