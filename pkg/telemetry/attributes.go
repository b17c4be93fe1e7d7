// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for runtime telemetry. gen_ai.* names follow
// the OpenTelemetry conventions; the rest are primus-specific.
const (
	// Actor attributes
	AttrActorID   = "primus.actor.id"
	AttrActorKind = "primus.actor.kind"

	// Action / decision attributes
	AttrActionID   = "primus.action.id"
	AttrActionKind = "primus.action.kind"
	AttrDecision   = "primus.decision.status"
	AttrRuleID     = "primus.decision.rule"
	AttrApprovalID = "primus.approval.id"

	// Mode attributes
	AttrMode = "primus.mode"

	// Partition attributes
	AttrPartitionOwner = "primus.partition.owner"
	AttrPartitionClass = "primus.partition.class"

	// Persona / journal attributes
	AttrPersonaDoc  = "primus.persona.doc"
	AttrJournalKind = "primus.journal.kind"

	// Inference attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
)

// ActionAttributes returns common attributes for authorize spans.
func ActionAttributes(actionID, kind, actorID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrActionKind, kind),
		attribute.String(AttrActorID, actorID),
	}
	if actionID != "" {
		attrs = append(attrs, attribute.String(AttrActionID, actionID))
	}
	return attrs
}

// DecisionAttributes returns attributes describing a guard decision.
func DecisionAttributes(status, ruleID, approvalID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrDecision, status),
	}
	if ruleID != "" {
		attrs = append(attrs, attribute.String(AttrRuleID, ruleID))
	}
	if approvalID != "" {
		attrs = append(attrs, attribute.String(AttrApprovalID, approvalID))
	}
	return attrs
}

// PartitionAttributes returns attributes for partition operations.
func PartitionAttributes(owner, class string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrPartitionOwner, owner),
		attribute.String(AttrPartitionClass, class),
	}
}

// ModeAttribute returns the active mode attribute.
func ModeAttribute(mode string) attribute.KeyValue {
	return attribute.String(AttrMode, mode)
}

// LLMAttributes returns attributes for inference spans.
func LLMAttributes(model, provider string, msgCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if msgCount > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.request.messages", msgCount))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	return attrs
}
