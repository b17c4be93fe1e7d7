// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcpserver exposes the policy core over the Model Context
// Protocol so external agent runtimes submit actions through the same
// authorize entry point as every other front end. Decisions come back
// verbatim; a deny is a result, not a protocol error.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/runtime"
)

// Server wraps the mcp-go stdio server around one runtime.
type Server struct {
	rt  *runtime.Runtime
	mcp *server.MCPServer
}

// New builds the server with every tool registered.
func New(rt *runtime.Runtime, version string) *Server {
	s := &Server{
		rt:  rt,
		mcp: server.NewMCPServer("primus", version),
	}
	s.register()
	return s
}

// ServeStdio serves the tools on stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type handlerFunc func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

func (s *Server) addTool(tool mcp.Tool, h handlerFunc) {
	s.mcp.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		return h(ctx, args)
	})
}

func (s *Server) register() {
	s.addTool(mcp.NewTool("primus_current_mode",
		mcp.WithDescription("Report the process-wide runtime mode (normal, approval_pending or sandbox)."),
	), s.handleCurrentMode)

	s.addTool(mcp.NewTool("primus_authorize",
		mcp.WithDescription("Submit an action to the policy core and return the decision."),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("Requesting actor id")),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Action kind, e.g. chat.turn, partition.read, persona.edit")),
		mcp.WithString("owner", mcp.Description("Target partition owner actor id")),
		mcp.WithString("class", mcp.Description("Target partition class: global, agent, subchat, sandbox")),
		mcp.WithString("partner", mcp.Description("Partner actor id for agent.message / agent.share")),
	), s.handleAuthorize)

	s.addTool(mcp.NewTool("primus_audit_tail",
		mcp.WithDescription("Return the n most recent audit records. Sandbox sessions write nothing here."),
		mcp.WithNumber("n", mcp.Description("How many records, default 20")),
	), s.handleAuditTail)

	s.addTool(mcp.NewTool("primus_approvals_list",
		mcp.WithDescription("List actions parked for explicit user confirmation, oldest first."),
	), s.handleApprovalsList)

	s.addTool(mcp.NewTool("primus_approve",
		mcp.WithDescription("Approve a pending action. The action replays confirmed and its effect is applied."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Approval id")),
	), s.handleApprove)

	s.addTool(mcp.NewTool("primus_reject",
		mcp.WithDescription("Reject a pending action. The parked action is discarded."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Approval id")),
	), s.handleReject)

	s.addTool(mcp.NewTool("primus_chat",
		mcp.WithDescription("Run one chat turn for an actor. The context bundle holds permitted partitions only."),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("Speaking actor id")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("User prompt")),
	), s.handleChat)

	s.addTool(mcp.NewTool("primus_sandbox_enter",
		mcp.WithDescription("Enter the offline sandbox (Captain's Log) mode. Refused while approvals are pending."),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("Requesting actor id, normally Primus")),
	), s.handleSandboxEnter)

	s.addTool(mcp.NewTool("primus_sandbox_exit",
		mcp.WithDescription("Exit sandbox mode. Drafted persona changes are held for confirmation, never applied silently."),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("Requesting actor id, normally Primus")),
	), s.handleSandboxExit)
}

func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v := argString(args, key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func jsonResult(value any) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleCurrentMode(_ context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]string{"mode": string(s.rt.CurrentMode())})
}

func (s *Server) handleAuthorize(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	actorID, err := requireString(args, "actor_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind := core.ActionKind(argString(args, "kind"))
	if !kind.Valid() {
		return mcp.NewToolResultError("unknown action kind " + argString(args, "kind")), nil
	}

	action := core.NewAction(kind, actorID)
	action.Partner = argString(args, "partner")
	if owner, class := argString(args, "owner"), argString(args, "class"); owner != "" || class != "" {
		pc := core.PartitionClass(class)
		if !pc.Valid() {
			return mcp.NewToolResultError("unknown partition class " + class), nil
		}
		action.Target = core.PartitionID{Owner: owner, Class: pc}
	}

	d, err := s.rt.Authorize(ctx, action)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"action_id":   action.ID,
		"status":      string(d.Status),
		"reason":      d.Reason,
		"rule_id":     d.RuleID,
		"approval_id": d.ApprovalID,
	})
}

func (s *Server) handleAuditTail(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	n := 20
	if raw, ok := args["n"].(float64); ok && raw >= 0 {
		n = int(raw)
	}
	records, err := s.rt.AuditTail(ctx, n)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, map[string]any{
			"seq":         r.Seq,
			"time":        r.Time,
			"actor_id":    r.ActorID,
			"action_kind": string(r.ActionKind),
			"decision":    string(r.Decision),
			"mode":        string(r.Mode),
			"rule_id":     r.RuleID,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleApprovalsList(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	approvals, err := s.rt.PendingApprovals(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(approvals)
}

func (s *Server) handleApprove(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.rt.Approve(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]string{"status": string(d.Status), "reason": d.Reason})
}

func (s *Server) handleReject(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.rt.Reject(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]string{"status": "rejected"})
}

func (s *Server) handleChat(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	actorID, err := requireString(args, "actor_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := requireString(args, "prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	turn, err := s.rt.ChatTurn(ctx, actorID, prompt)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !turn.Decision.IsAllowed() {
		return jsonResult(map[string]string{
			"status": string(turn.Decision.Status),
			"reason": turn.Decision.Reason,
		})
	}
	return mcp.NewToolResultText(turn.Reply), nil
}

func (s *Server) handleSandboxEnter(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	actorID, err := requireString(args, "actor_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sb, err := s.rt.EnterSandbox(ctx, actorID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]string{
		"mode":          string(s.rt.CurrentMode()),
		"sandbox_actor": sb.ID,
	})
}

func (s *Server) handleSandboxExit(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	actorID, err := requireString(args, "actor_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	approval, err := s.rt.ExitSandbox(ctx, actorID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := map[string]any{"mode": string(s.rt.CurrentMode())}
	if approval != nil {
		out["approval_id"] = approval.ID
	}
	return jsonResult(out)
}
