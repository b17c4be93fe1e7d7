// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/primus-os/primus/pkg/actor"
	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/inference"
	"github.com/primus-os/primus/pkg/telemetry"
)

// TurnResult is one completed chat turn. Partitions lists what actually
// entered the context bundle, which tests and the audit trail can check
// against the decisions taken.
type TurnResult struct {
	Decision   core.Decision
	Reply      string
	Usage      inference.Usage
	Partitions []core.PartitionID
}

// ChatTurn runs one turn for the actor: the turn is authorized, the
// context bundle is assembled from permitted partitions only, and the
// bundle goes to the inference backend. A denied partition never enters
// the bundle; a denied turn returns the decision without touching the
// backend.
func (r *Runtime) ChatTurn(ctx context.Context, actorID, prompt string) (*TurnResult, error) {
	if r.provider == nil {
		return nil, errors.New(errors.CodeInvalidInput, "no inference provider configured", nil)
	}
	act, err := r.registry.Get(actorID)
	if err != nil {
		return nil, err
	}

	action := core.NewAction(core.ActionChatTurn, actorID)
	res, err := r.authorize(ctx, action)
	if err != nil {
		return nil, err
	}
	if !res.Decision.IsAllowed() {
		return &TurnResult{Decision: res.Decision}, nil
	}

	bundle, err := r.assembleBundle(ctx, act, prompt)
	if err != nil {
		return nil, err
	}
	messages := bundle.Messages()

	ctx, span := r.tracer.Start(ctx, "Runtime.ChatTurn",
		trace.WithAttributes(telemetry.LLMAttributes(r.model, "", len(messages))...))
	defer span.End()
	traceID, spanID := traceIDs(span)

	resp, err := r.provider.Chat(ctx, inference.ChatRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: r.temperature,
	})
	if err != nil {
		span.RecordError(err)
		r.metrics.RecordError(ctx, err, "inference")
		r.log.Error("runtime.chat.error",
			slog.String("actor_id", actorID),
			slog.String("trace_id", traceID),
			slog.String("span_id", spanID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)

	r.log.Info("runtime.chat.complete",
		slog.String("actor_id", actorID),
		slog.Int("snippets", len(bundle.Snippets())),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
	)
	return &TurnResult{
		Decision:   res.Decision,
		Reply:      resp.Content,
		Usage:      resp.Usage,
		Partitions: bundle.Partitions(),
	}, nil
}

// assembleBundle gathers the context the actor is permitted to see.
// Every candidate partition passes the guard as its own read action, so
// each inclusion and exclusion lands in the audit trail.
func (r *Runtime) assembleBundle(ctx context.Context, act actor.Actor, prompt string) (*inference.Bundle, error) {
	bundle := inference.NewBundle(act.ID, prompt)

	candidates := []core.PartitionID{act.OwnPartition()}
	if act.Kind != core.KindPrimus {
		// The shared global partition is Primus's own partition.
		if primus, err := r.registry.Primus(); err == nil {
			candidates = append(candidates, primus.OwnPartition())
		}
	}

	for _, p := range candidates {
		action := core.NewAction(core.ActionPartitionRead, act.ID)
		action.Target = p
		res, err := r.authorize(ctx, action)
		if err != nil {
			return nil, err
		}
		if !res.Decision.IsAllowed() || res.Token == nil {
			continue
		}

		data, err := r.store.Read(ctx, p, *res.Token)
		switch {
		case err == nil && len(data) > 0:
			bundle.Add(inference.Snippet{Partition: p, Source: "partition", Data: data})
		case err != nil && !errors.HasCode(err, errors.CodePartitionNotFound):
			return nil, err
		}

		// Index lookups ride on the same read authorization. Sandbox
		// partitions are never indexed, so there is nothing to search.
		if r.index == nil || p.Class == core.PartitionSandbox {
			continue
		}
		results, err := r.index.Search(ctx, p, prompt, 0)
		if err != nil {
			r.log.Warn("runtime.chat.index_search_failed",
				slog.String("partition", p.Key()),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, sr := range results {
			text, _ := sr.Point.Payload["text"].(string)
			if text == "" {
				continue
			}
			bundle.Add(inference.Snippet{Partition: p, Source: "ragindex", Data: []byte(text)})
		}
	}
	return bundle, nil
}
