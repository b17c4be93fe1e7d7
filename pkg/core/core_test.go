package core

import (
	"context"
	"strings"
	"testing"
)

func TestActorKindValid(t *testing.T) {
	tests := []struct {
		kind ActorKind
		want bool
	}{
		{KindPrimus, true},
		{KindAgent, true},
		{KindSubChat, true},
		{KindSandbox, true},
		{ActorKind("daemon"), false},
		{ActorKind(""), false},
	}

	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestPartitionKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   PartitionID
	}{
		{"global", PartitionID{Owner: "primus-1", Class: PartitionGlobal}},
		{"agent", PartitionID{Owner: "agent-7", Class: PartitionAgent}},
		{"subchat", PartitionID{Owner: "sub-2", Class: PartitionSubChat}},
		{"sandbox", PartitionID{Owner: "box-1", Class: PartitionSandbox}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := tt.id.Key()
			parsed, ok := ParsePartitionKey(key)
			if !ok {
				t.Fatalf("ParsePartitionKey(%q) failed", key)
			}
			if parsed != tt.id {
				t.Errorf("round trip: got %+v, want %+v", parsed, tt.id)
			}
		})
	}
}

func TestParsePartitionKeyRejectsGarbage(t *testing.T) {
	for _, key := range []string{"", "global", "global/", "attic/a-1", "/owner"} {
		if _, ok := ParsePartitionKey(key); ok {
			t.Errorf("ParsePartitionKey(%q) accepted invalid key", key)
		}
	}
}

func TestDecisionHelpers(t *testing.T) {
	allow := Allow()
	if !allow.IsAllowed() || allow.IsDenied() || allow.IsPending() {
		t.Errorf("Allow() inconsistent: %+v", allow)
	}

	deny := Deny("sandbox-private-isolation", "partition is sandbox-private")
	if !deny.IsDenied() || deny.IsAllowed() {
		t.Errorf("Deny() inconsistent: %+v", deny)
	}
	if deny.RuleID != "sandbox-private-isolation" {
		t.Errorf("Deny() lost rule id: %+v", deny)
	}

	pend := RequireApproval("confirm-persona-edit", "persona edits need confirmation")
	if !pend.IsPending() || pend.IsAllowed() || pend.IsDenied() {
		t.Errorf("RequireApproval() inconsistent: %+v", pend)
	}
}

func TestNewActionAssignsID(t *testing.T) {
	a := NewAction(ActionChatTurn, "primus-1")
	b := NewAction(ActionChatTurn, "primus-1")

	if a.ID == "" || b.ID == "" {
		t.Fatal("NewAction produced empty id")
	}
	if a.ID == b.ID {
		t.Errorf("NewAction produced duplicate ids: %s", a.ID)
	}
	if !strings.HasPrefix(a.ID, "act-") {
		t.Errorf("action id %q missing act- prefix", a.ID)
	}
}

func TestEnsureActionID(t *testing.T) {
	ctx := context.Background()

	ctx, id := EnsureActionID(ctx)
	if id == "" {
		t.Fatal("EnsureActionID returned empty id")
	}

	_, again := EnsureActionID(ctx)
	if again != id {
		t.Errorf("EnsureActionID replaced existing id: %s != %s", again, id)
	}
}

func TestTargetsPartition(t *testing.T) {
	a := NewAction(ActionPartitionRead, "agent-1")
	if a.TargetsPartition() {
		t.Error("zero target reported as partition-targeting")
	}
	a.Target = PartitionID{Owner: "agent-1", Class: PartitionAgent}
	if !a.TargetsPartition() {
		t.Error("non-zero target not reported")
	}
}
