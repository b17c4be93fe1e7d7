// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/primus-os/primus/pkg/inference"
	"github.com/primus-os/primus/pkg/runtime"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	rt, err := runtime.New(
		runtime.WithProvider(&inference.MockProvider{Response: "mock reply"}),
		runtime.WithModel("test-model", 0),
		runtime.WithSweepInterval(0),
	)
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	p, err := rt.CreatePrimus("primus")
	if err != nil {
		t.Fatalf("create primus: %v", err)
	}
	return New(rt, "test"), p.ID
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	text := resultText(t, result)
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	return out
}

func TestCurrentModeTool(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleCurrentMode(context.Background(), nil)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := resultJSON(t, result)["mode"]; got != "normal" {
		t.Fatalf("mode = %v, want normal", got)
	}
}

func TestAuthorizeToolDecision(t *testing.T) {
	s, primusID := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleAuthorize(ctx, map[string]interface{}{
		"actor_id": primusID,
		"kind":     "chat.turn",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := resultJSON(t, result)["status"]; got != "allow" {
		t.Fatalf("status = %v, want allow", got)
	}

	result, err = s.handleAuthorize(ctx, map[string]interface{}{
		"actor_id": primusID,
		"kind":     "persona.edit",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	out := resultJSON(t, result)
	if out["status"] != "require_approval" {
		t.Fatalf("status = %v, want require_approval", out["status"])
	}
	if out["approval_id"] == "" {
		t.Fatal("missing approval id on require_approval")
	}
}

func TestAuthorizeToolValidation(t *testing.T) {
	s, primusID := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleAuthorize(ctx, map[string]interface{}{"kind": "chat.turn"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing actor_id")
	}

	result, err = s.handleAuthorize(ctx, map[string]interface{}{
		"actor_id": primusID,
		"kind":     "no.such",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown kind")
	}
}

func TestApprovalToolsRoundTrip(t *testing.T) {
	s, primusID := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleAuthorize(ctx, map[string]interface{}{
		"actor_id": primusID,
		"kind":     "persona.edit",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	approvalID := resultJSON(t, result)["approval_id"].(string)

	result, err = s.handleApprovalsList(ctx, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(resultText(t, result), approvalID) {
		t.Fatalf("pending list missing %s: %s", approvalID, resultText(t, result))
	}

	result, err = s.handleReject(ctx, map[string]interface{}{"id": approvalID})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if result.IsError {
		t.Fatalf("reject failed: %s", resultText(t, result))
	}

	result, err = s.handleCurrentMode(ctx, nil)
	if err != nil {
		t.Fatalf("mode: %v", err)
	}
	if got := resultJSON(t, result)["mode"]; got != "normal" {
		t.Fatalf("mode after reject = %v, want normal", got)
	}
}

func TestChatTool(t *testing.T) {
	s, primusID := newTestServer(t)

	result, err := s.handleChat(context.Background(), map[string]interface{}{
		"actor_id": primusID,
		"prompt":   "hello",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got := resultText(t, result); got != "mock reply" {
		t.Fatalf("reply = %q, want mock reply", got)
	}
}

func TestSandboxToolsRejectDuringPending(t *testing.T) {
	s, primusID := newTestServer(t)
	ctx := context.Background()

	if _, err := s.handleAuthorize(ctx, map[string]interface{}{
		"actor_id": primusID,
		"kind":     "persona.edit",
	}); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	result, err := s.handleSandboxEnter(ctx, map[string]interface{}{"actor_id": primusID})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !result.IsError {
		t.Fatal("sandbox entry during pending approval must fail")
	}
}
