// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestActionAttributes(t *testing.T) {
	got := attrMap(ActionAttributes("act-1", "partition.read", "agent-1"))
	if got[AttrActionID].AsString() != "act-1" {
		t.Errorf("action id = %v", got[AttrActionID])
	}
	if got[AttrActionKind].AsString() != "partition.read" {
		t.Errorf("action kind = %v", got[AttrActionKind])
	}
	if got[AttrActorID].AsString() != "agent-1" {
		t.Errorf("actor id = %v", got[AttrActorID])
	}

	// Empty action ID is omitted, not emitted blank.
	got = attrMap(ActionAttributes("", "chat.turn", "agent-1"))
	if _, ok := got[AttrActionID]; ok {
		t.Error("empty action id emitted")
	}
}

func TestDecisionAttributes(t *testing.T) {
	got := attrMap(DecisionAttributes("require_approval", "net.percall", "appr-9"))
	if got[AttrDecision].AsString() != "require_approval" {
		t.Errorf("decision = %v", got[AttrDecision])
	}
	if got[AttrRuleID].AsString() != "net.percall" {
		t.Errorf("rule = %v", got[AttrRuleID])
	}
	if got[AttrApprovalID].AsString() != "appr-9" {
		t.Errorf("approval = %v", got[AttrApprovalID])
	}

	got = attrMap(DecisionAttributes("allow", "", ""))
	if len(got) != 1 {
		t.Errorf("allow decision carries %d attrs, want 1", len(got))
	}
}

func TestPartitionAndModeAttributes(t *testing.T) {
	got := attrMap(PartitionAttributes("agent-1", "agent"))
	if got[AttrPartitionOwner].AsString() != "agent-1" || got[AttrPartitionClass].AsString() != "agent" {
		t.Errorf("partition attrs = %v", got)
	}

	kv := ModeAttribute("sandbox")
	if kv.Key != AttrMode || kv.Value.AsString() != "sandbox" {
		t.Errorf("mode attr = %v", kv)
	}
}

func TestLLMUsageAttributes(t *testing.T) {
	got := attrMap(LLMUsageAttributes(100, 40))
	if got[AttrLLMTokensInput].AsInt64() != 100 {
		t.Errorf("input tokens = %v", got[AttrLLMTokensInput])
	}
	if got[AttrLLMTokensTotal].AsInt64() != 140 {
		t.Errorf("total tokens = %v", got[AttrLLMTokensTotal])
	}

	if got := LLMUsageAttributes(0, 0); len(got) != 0 {
		t.Errorf("zero usage emitted %d attrs", len(got))
	}
}

func TestLLMAttributes(t *testing.T) {
	got := attrMap(LLMAttributes("qwen2.5", "ollama", 3))
	if got[AttrLLMModel].AsString() != "qwen2.5" {
		t.Errorf("model = %v", got[AttrLLMModel])
	}
	if got[AttrLLMProvider].AsString() != "ollama" {
		t.Errorf("provider = %v", got[AttrLLMProvider])
	}
}
