// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package enforcer holds the permission decision function. Evaluate is a
// pure rule table over (actor, action, mode, confirmations): it mutates
// nothing and returns a Decision, never an error. Rules run deny-first;
// an action denied by an earlier rule never reaches a later, looser one,
// and in sandbox mode every outcome that would need an approval collapses
// to Deny because ApprovalPending is unreachable from Sandbox.
//
// Evaluations for independent actors run concurrently; the only shared
// state is the read-locked confirmation set and the mode value.
package enforcer

import (
	"context"

	"github.com/primus-os/primus/pkg/actor"
	"github.com/primus-os/primus/pkg/capability"
	"github.com/primus-os/primus/pkg/core"
)

// ModeSource reports the current runtime mode.
type ModeSource interface {
	Current() core.Mode
}

// CommsAuthorizer is the agent communication guard's check: group size
// and partner authorization for one sender/partner pair. A false result
// carries the reason the pair was refused.
type CommsAuthorizer interface {
	AuthorizePair(ctx context.Context, senderID, partnerID string, kind core.ActionKind) (bool, string)
}

// Enforcer evaluates actions against the capability rules.
type Enforcer struct {
	modes    ModeSource
	comms    CommsAuthorizer
	confirms *Confirmations
}

// New creates an enforcer. The mode source is required; a nil comms
// authorizer denies all agent communication.
func New(modes ModeSource, comms CommsAuthorizer, confirms *Confirmations) *Enforcer {
	if confirms == nil {
		confirms = NewConfirmations()
	}
	return &Enforcer{modes: modes, comms: comms, confirms: confirms}
}

// Confirmations exposes the session confirmation set shared with the
// runtime (which records confirmations after approved replays).
func (e *Enforcer) Confirmations() *Confirmations {
	return e.confirms
}

// EffectiveGrant is the intersection of the kind template and the actor's
// runtime grant. Narrowing can only remove capability, so the result is
// a subset of the template on every field.
func (e *Enforcer) EffectiveGrant(act actor.Actor) capability.Grant {
	return capability.Narrow(capability.TemplateFor(act.Kind), act.Grant)
}

// Evaluate samples the current mode and runs the fixed rule order.
// Callers that pinned the mode themselves use EvaluateInMode so the
// decision cannot be made under a different mode than the pin.
func (e *Enforcer) Evaluate(ctx context.Context, act actor.Actor, action core.Action) core.Decision {
	return e.EvaluateInMode(ctx, act, action, e.modes.Current())
}

// EvaluateInMode runs the fixed rule order under the given mode and
// returns the verdict.
func (e *Enforcer) EvaluateInMode(ctx context.Context, act actor.Actor, action core.Action, mode core.Mode) core.Decision {
	if !action.Kind.Valid() {
		return core.Deny("action.kind", "unknown action kind")
	}
	if !act.Kind.Valid() {
		return core.Deny("action.actor", "unknown actor kind")
	}
	if action.ActorID != act.ID {
		return core.Deny("action.actor", "action actor does not match the evaluated actor")
	}

	eff := e.EffectiveGrant(act)

	// Sandbox-class partitions are reachable only by the sandbox actor on
	// its own partition while the mode is Sandbox. Everyone else, Primus
	// included, is denied in every mode.
	if action.TargetsPartition() && action.Target.Class == core.PartitionSandbox {
		if mode != core.ModeSandbox || act.Kind != core.KindSandbox || action.Target.Owner != act.ID {
			return core.Deny("sandbox.partition", "sandbox partitions are sealed outside a sandbox session")
		}
	}

	switch action.Kind {
	case core.ActionPersonaEdit:
		return e.evaluatePersonaEdit(act, action, mode, eff)
	case core.ActionNetCall:
		return e.evaluateNetCall(act, action, mode, eff)
	case core.ActionAgentMessage, core.ActionAgentShare:
		return e.evaluateComms(ctx, act, action, mode, eff)
	case core.ActionPartitionRead:
		return e.evaluatePartitionRead(act, action, eff)
	case core.ActionPartitionWrite:
		return e.evaluatePartitionWrite(act, action, eff)
	case core.ActionSandboxEnter, core.ActionSandboxExit:
		if act.Kind != core.KindPrimus {
			return core.Deny("mode.command", "only the primary assistant switches modes")
		}
		return core.Allow()
	case core.ActionChatTurn:
		return core.Allow()
	}
	return core.Deny("action.kind", "unhandled action kind")
}

// evaluatePersonaEdit implements the personality modification rule:
// agents and subchats are denied on every path; the sandbox actor needs
// the per-session confirmed flag; Primus needs the replayed, confirmed
// action or an approval.
func (e *Enforcer) evaluatePersonaEdit(act actor.Actor, action core.Action, mode core.Mode, eff capability.Grant) core.Decision {
	switch act.Kind {
	case core.KindAgent, core.KindSubChat:
		return core.Deny("persona.role", "agent and subchat personas are managed by their owner, never self-edited")
	case core.KindSandbox:
		if mode == core.ModeSandbox && e.confirms.IsConfirmed(act.ID, core.ActionPersonaEdit) {
			return core.Allow()
		}
		return core.Deny("persona.sandbox", "sandbox persona edits need the session confirmation granted at entry")
	}

	// Primus from here on.
	if !eff.PersonaWrite {
		return core.Deny("persona.grant", "persona write capability was narrowed away")
	}
	if action.Confirmed {
		return core.Allow()
	}
	return e.requireApproval(mode, "persona.confirm", "personality changes need explicit user confirmation")
}

func (e *Enforcer) evaluateNetCall(_ actor.Actor, action core.Action, mode core.Mode, eff capability.Grant) core.Decision {
	// Sandbox mode forces the internet off for every actor, whatever the
	// grant says.
	if mode == core.ModeSandbox {
		return core.Deny("sandbox.mode", "internet is forced off in sandbox mode")
	}

	switch eff.Internet {
	case capability.InternetOff:
		return core.Deny("net.grant", "internet access is off for this actor")
	case capability.InternetPerCall:
		if action.Confirmed {
			return core.Allow()
		}
		return e.requireApproval(mode, "net.percall", "per-call internet access needs a confirmation for every call")
	case capability.InternetSession:
		if action.Confirmed || e.confirms.IsConfirmed(action.ActorID, core.ActionNetCall) {
			return core.Allow()
		}
		return e.requireApproval(mode, "net.session", "session internet access needs one confirmation per session")
	}
	return core.Deny("net.grant", "unknown internet grant level")
}

func (e *Enforcer) evaluateComms(ctx context.Context, act actor.Actor, action core.Action, mode core.Mode, eff capability.Grant) core.Decision {
	if mode == core.ModeSandbox {
		return core.Deny("sandbox.mode", "agent communication is suspended in sandbox mode")
	}
	if !eff.AgentToAgent {
		return core.Deny("comms.grant", "agent-to-agent communication is not granted")
	}
	if action.Partner == "" {
		return core.Deny("comms.partner", "agent communication needs a partner")
	}
	if action.Partner == act.ID {
		return core.Deny("comms.partner", "an actor cannot collaborate with itself")
	}
	if e.comms == nil {
		return core.Deny("comms.guard", "no communication guard is configured")
	}
	if ok, reason := e.comms.AuthorizePair(ctx, act.ID, action.Partner, action.Kind); !ok {
		return core.Deny("comms.guard", reason)
	}
	return core.Allow()
}

// evaluatePartitionRead applies the cross-partition read matrix.
func (e *Enforcer) evaluatePartitionRead(act actor.Actor, action core.Action, eff capability.Grant) core.Decision {
	if !action.TargetsPartition() {
		return core.Deny("action.target", "partition read without a target partition")
	}
	target := action.Target

	// Own partition reads and the shared global partition are always
	// readable. Sandbox-class targets were settled before the dispatch.
	if target.Owner == act.ID {
		return core.Allow()
	}
	switch target.Class {
	case core.PartitionGlobal:
		return core.Allow()
	case core.PartitionSubChat:
		if eff.SubChatCross {
			return core.Allow()
		}
		return core.Deny("partition.subchat", "cross-subchat reads need the subchat_cross_access grant")
	case core.PartitionAgent:
		return core.Deny("partition.agent", "agent partitions are private; partners receive shared snippets, never the partition")
	case core.PartitionSandbox:
		// unreachable: settled before the dispatch
		return core.Deny("sandbox.partition", "sandbox partitions are sealed outside a sandbox session")
	}
	return core.Deny("partition.class", "unknown partition class")
}

func (e *Enforcer) evaluatePartitionWrite(act actor.Actor, action core.Action, eff capability.Grant) core.Decision {
	if !action.TargetsPartition() {
		return core.Deny("action.target", "partition write without a target partition")
	}
	if eff.RAGWrite != capability.RAGWriteOwn {
		return core.Deny("partition.ragwrite", "partition writes are not granted")
	}
	target := action.Target

	if target.Class == core.PartitionGlobal {
		if act.Kind == core.KindPrimus {
			return core.Allow()
		}
		return core.Deny("partition.global", "the global partition is writable only by the primary assistant")
	}
	if target.Owner != act.ID {
		return core.Deny("partition.owner", "partitions are writable only by their owner")
	}
	return core.Allow()
}

// requireApproval suspends the action for user confirmation, except in
// sandbox mode where ApprovalPending is unreachable and the action is
// denied instead.
func (e *Enforcer) requireApproval(mode core.Mode, ruleID, reason string) core.Decision {
	if mode == core.ModeSandbox {
		return core.Deny("sandbox.mode", "approvals are unavailable in sandbox mode")
	}
	return core.RequireApproval(ruleID, reason)
}
