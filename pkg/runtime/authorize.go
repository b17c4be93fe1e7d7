// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/guard"
	"github.com/primus-os/primus/pkg/journal"
	"github.com/primus-os/primus/pkg/persona"
	"github.com/primus-os/primus/pkg/ragindex"
	"github.com/primus-os/primus/pkg/telemetry"
)

// Authorize is the primary policy entry point. The confirmed flag is
// stripped at this boundary: only the approval replay path may set it,
// never a caller.
func (r *Runtime) Authorize(ctx context.Context, action core.Action) (core.Decision, error) {
	action.Confirmed = false
	res, err := r.authorize(ctx, action)
	return res.Decision, err
}

// authorize runs the guard with tracing, metrics and the decision log
// event around it. Internal operations call this directly so they can
// use the minted token.
func (r *Runtime) authorize(ctx context.Context, action core.Action) (guard.Result, error) {
	if action.ID == "" {
		ctx, action.ID = core.EnsureActionID(ctx)
	} else {
		ctx = core.WithActionID(ctx, action.ID)
	}

	attrs := telemetry.ActionAttributes(action.ID, string(action.Kind), action.ActorID)
	if action.TargetsPartition() {
		attrs = append(attrs, telemetry.PartitionAttributes(action.Target.Owner, string(action.Target.Class))...)
	}
	ctx, span := r.tracer.Start(ctx, "Runtime.Authorize", trace.WithAttributes(attrs...))
	defer span.End()
	traceID, spanID := traceIDs(span)

	r.log.Debug("runtime.authorize.start",
		slog.String("action_id", action.ID),
		slog.String("action_kind", string(action.Kind)),
		slog.String("actor_id", action.ActorID),
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
	)

	res, err := r.guard.Authorize(ctx, action)
	if err != nil {
		span.RecordError(err)
		r.metrics.RecordError(ctx, err, "guard")
		r.log.Error("runtime.authorize.error",
			slog.String("action_id", action.ID),
			slog.String("action_kind", string(action.Kind)),
			slog.String("actor_id", action.ActorID),
			slog.String("trace_id", traceID),
			slog.String("span_id", spanID),
			slog.String("error", err.Error()),
		)
		return guard.Result{}, err
	}

	d := res.Decision
	span.SetAttributes(telemetry.DecisionAttributes(string(d.Status), d.RuleID, d.ApprovalID)...)
	r.metrics.RecordDecision(ctx, string(action.Kind), string(d.Status), d.RuleID)
	r.observeMode(ctx)
	r.log.Info("runtime.authorize.decision",
		slog.String("action_id", action.ID),
		slog.String("action_kind", string(action.Kind)),
		slog.String("actor_id", action.ActorID),
		slog.String("decision", string(d.Status)),
		slog.String("rule_id", d.RuleID),
		slog.String("reason", d.Reason),
		slog.String("approval_id", d.ApprovalID),
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
	)
	return res, nil
}

// observeMode refreshes the mode and pending approval gauges.
func (r *Runtime) observeMode(ctx context.Context) {
	m := r.modes.Current()
	r.metrics.RecordMode(ctx, string(m))
	if pending, err := r.modes.Pending(ctx); err == nil {
		r.metrics.RecordPendingApprovals(ctx, int64(len(pending)))
	}
}

// ReadPartition reads partition bytes through the guard. A denial comes
// back as the decision, not an error; a partition that was never
// written reads as empty.
func (r *Runtime) ReadPartition(ctx context.Context, actorID string, target core.PartitionID) ([]byte, core.Decision, error) {
	action := core.NewAction(core.ActionPartitionRead, actorID)
	action.Target = target
	res, err := r.authorize(ctx, action)
	if err != nil {
		return nil, core.Decision{}, err
	}
	if !res.Decision.IsAllowed() || res.Token == nil {
		return nil, res.Decision, nil
	}
	data, err := r.store.Read(ctx, target, *res.Token)
	if err != nil {
		if errors.HasCode(err, errors.CodePartitionNotFound) {
			return nil, res.Decision, nil
		}
		return nil, res.Decision, err
	}
	return data, res.Decision, nil
}

// WritePartition writes partition bytes through the guard.
func (r *Runtime) WritePartition(ctx context.Context, actorID string, target core.PartitionID, data []byte) (core.Decision, error) {
	action := core.NewAction(core.ActionPartitionWrite, actorID)
	action.Target = target
	res, err := r.authorize(ctx, action)
	if err != nil {
		return core.Decision{}, err
	}
	if !res.Decision.IsAllowed() || res.Token == nil {
		return res.Decision, nil
	}
	if err := r.store.Write(ctx, target, *res.Token, data); err != nil {
		return res.Decision, err
	}
	return res.Decision, nil
}

// Remember stores one retrievable memory in the actor's own partition
// index. The write is authorized like a partition write; the minted
// token expires unused because the index, not the byte store, receives
// the text.
func (r *Runtime) Remember(ctx context.Context, actorID, text string) (core.Decision, string, error) {
	if r.index == nil {
		return core.Decision{}, "", errors.New(errors.CodeInvalidInput, "no vector index configured", nil)
	}
	act, err := r.registry.Get(actorID)
	if err != nil {
		return core.Decision{}, "", err
	}
	target := act.OwnPartition()

	action := core.NewAction(core.ActionPartitionWrite, actorID)
	action.Target = target
	res, err := r.authorize(ctx, action)
	if err != nil {
		return core.Decision{}, "", err
	}
	if !res.Decision.IsAllowed() {
		return res.Decision, "", nil
	}
	id, err := r.index.Upsert(ctx, target, "", text, map[string]interface{}{"actor_id": actorID})
	if err != nil {
		return res.Decision, "", err
	}
	return res.Decision, id, nil
}

// Recall searches the actor's own partition index. The search is
// authorized like a partition read.
func (r *Runtime) Recall(ctx context.Context, actorID, query string, limit int) ([]ragindex.SearchResult, core.Decision, error) {
	if r.index == nil {
		return nil, core.Decision{}, errors.New(errors.CodeInvalidInput, "no vector index configured", nil)
	}
	act, err := r.registry.Get(actorID)
	if err != nil {
		return nil, core.Decision{}, err
	}
	target := act.OwnPartition()

	action := core.NewAction(core.ActionPartitionRead, actorID)
	action.Target = target
	res, err := r.authorize(ctx, action)
	if err != nil {
		return nil, core.Decision{}, err
	}
	if !res.Decision.IsAllowed() {
		return nil, res.Decision, nil
	}
	results, err := r.index.Search(ctx, target, query, limit)
	if err != nil {
		return nil, res.Decision, err
	}
	return results, res.Decision, nil
}

// EditPersona submits a persona change for the actor. Primus edits park
// an approval; sandbox edits under the session flag are drafted in the
// journal and confirmed at exit; agents and subchats are denied.
func (r *Runtime) EditPersona(ctx context.Context, actorID string, changes []byte, reason string) (core.Decision, error) {
	action := core.NewAction(core.ActionPersonaEdit, actorID)
	action.Payload = changes
	if reason != "" {
		action.Meta = map[string]string{"reason": reason}
	}
	res, err := r.authorize(ctx, action)
	if err != nil {
		return core.Decision{}, err
	}
	if !res.Decision.IsAllowed() {
		return res.Decision, nil
	}

	// An allowed first submission happens only for the sandbox actor
	// holding the session flag. The change is drafted, never applied
	// here; the confirmation happens at sandbox exit.
	act, err := r.registry.Get(actorID)
	if err != nil {
		return res.Decision, err
	}
	if act.Kind == core.KindSandbox {
		if r.journal == nil {
			return res.Decision, errors.New(errors.CodeInvalidInput, "no journal configured for sandbox drafts", nil)
		}
		if err := persona.ValidateChange(changes); err != nil {
			return res.Decision, err
		}
		if _, err := r.journal.Append(journal.KindDraft, changes); err != nil {
			return res.Decision, err
		}
		r.log.Info("runtime.persona.drafted",
			slog.String("actor_id", actorID),
			slog.Int("bytes", len(changes)),
		)
		return res.Decision, nil
	}
	return res.Decision, r.applyPersonaChange(act.Persona.DocID, actorID, changes, reason)
}

// applyPersonaChange proposes and immediately applies a change. Reached
// only with an allowing decision in hand.
func (r *Runtime) applyPersonaChange(docID, proposer string, changes []byte, reason string) error {
	diff, err := r.personas.Propose(docID, proposer, changes, reason)
	if err != nil {
		return err
	}
	if err := r.personas.Apply(diff.ID); err != nil {
		return err
	}
	r.log.Info("runtime.persona.applied",
		slog.String("doc_id", docID),
		slog.String("proposed_by", proposer),
		slog.String("diff_id", diff.ID),
	)
	return nil
}

// SendAgentMessage authorizes one agent-to-agent message. Delivery is
// the transport's job; the core decides and records.
func (r *Runtime) SendAgentMessage(ctx context.Context, senderID, partnerID string, payload []byte) (core.Decision, error) {
	action := core.NewAction(core.ActionAgentMessage, senderID)
	action.Partner = partnerID
	action.Payload = payload
	res, err := r.authorize(ctx, action)
	return res.Decision, err
}

// ShareSnippets exposes an explicit subset of the sender's partition to
// the collaboration. The snippet is copied into the collaboration on
// Allow; the partner never touches the sender's partition.
func (r *Runtime) ShareSnippets(ctx context.Context, senderID, partnerID string, data []byte) (core.Decision, error) {
	action := core.NewAction(core.ActionAgentShare, senderID)
	action.Partner = partnerID
	action.Payload = data
	res, err := r.authorize(ctx, action)
	if err != nil || !res.Decision.IsAllowed() {
		return res.Decision, err
	}
	if err := r.comms.ShareSnippet(senderID, partnerID, data); err != nil {
		return res.Decision, err
	}
	return res.Decision, nil
}

// SharedSnippets returns the snippets partners shared with the actor.
func (r *Runtime) SharedSnippets(actorID string) []guard.Snippet {
	return r.comms.SharedWith(actorID)
}

// JournalNote appends a private note to the Captain's Log. The journal
// is available only in sandbox mode and only to the sandbox actor.
func (r *Runtime) JournalNote(ctx context.Context, actorID string, note []byte) (journal.Entry, error) {
	if err := r.journalAccess(actorID); err != nil {
		return journal.Entry{}, err
	}
	return r.journal.Append(journal.KindNote, note)
}

// JournalEntries lists journal metadata for the sandbox actor.
func (r *Runtime) JournalEntries(actorID string, limit int) ([]journal.EntryMeta, error) {
	if err := r.journalAccess(actorID); err != nil {
		return nil, err
	}
	return r.journal.List(limit)
}

// JournalRead returns one full journal entry for the sandbox actor.
func (r *Runtime) JournalRead(actorID, entryID string) (journal.Entry, error) {
	if err := r.journalAccess(actorID); err != nil {
		return journal.Entry{}, err
	}
	return r.journal.Read(entryID)
}

func (r *Runtime) journalAccess(actorID string) error {
	if r.journal == nil {
		return errors.New(errors.CodeInvalidInput, "no journal configured", nil)
	}
	if r.modes.Current() != core.ModeSandbox {
		return errors.New(errors.CodeTransitionRejected, "the journal is available only in sandbox mode", nil).
			WithContext("mode", string(r.modes.Current()))
	}
	act, err := r.registry.Get(actorID)
	if err != nil {
		return err
	}
	if act.Kind != core.KindSandbox {
		return errors.New(errors.CodeInvalidInput, "only the sandbox actor uses the journal", nil).
			WithContext("actor_kind", string(act.Kind))
	}
	return nil
}
