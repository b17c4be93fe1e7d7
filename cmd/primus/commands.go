// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type decisionView struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	RuleID     string `json:"rule_id,omitempty"`
	ApprovalID string `json:"approval_id,omitempty"`
}

func (d decisionView) String() string {
	out := d.Status
	if d.Reason != "" {
		out += ": " + d.Reason
	}
	if d.ApprovalID != "" {
		out += " (approval " + d.ApprovalID + ")"
	}
	return out
}

type decisionEnvelope struct {
	Decision decisionView `json:"decision"`
}

func printDecision(global globalFlags, d decisionView) {
	if global.JSON {
		printJSON(d)
		return
	}
	fmt.Println(d.String())
	if d.Status == "require_approval" && d.ApprovalID != "" {
		fmt.Printf("confirm with: primus approvals approve %s\n", d.ApprovalID)
	}
}

func runStatus(ctx context.Context, client *apiClient, global globalFlags) {
	var modeResp struct {
		Mode string `json:"mode"`
	}
	modeErr := client.get(ctx, "/api/mode", &modeResp)

	var health struct {
		Status     string `json:"status"`
		Components []struct {
			Component string `json:"component"`
			Status    string `json:"status"`
			Message   string `json:"message"`
		} `json:"components"`
	}
	healthErr := client.get(ctx, "/api/health", &health)

	if global.JSON {
		out := map[string]any{
			"version":   version,
			"http_url":  client.baseURL,
			"reachable": modeErr == nil,
		}
		if modeErr == nil {
			out["mode"] = modeResp.Mode
		}
		if healthErr == nil {
			out["health"] = health
		}
		printJSON(out)
		return
	}

	fmt.Printf("primus CLI: %s\n", version)
	fmt.Printf("daemon: %s (reachable=%t)\n", client.baseURL, modeErr == nil)
	if modeErr != nil {
		return
	}
	fmt.Printf("mode: %s\n", modeResp.Mode)
	if healthErr == nil {
		fmt.Printf("health: %s\n", health.Status)
		for _, c := range health.Components {
			fmt.Printf("  %s: %s %s\n", c.Component, c.Status, c.Message)
		}
	}
}

func runMode(ctx context.Context, client *apiClient, global globalFlags) {
	var resp struct {
		Mode string `json:"mode"`
	}
	if err := client.get(ctx, "/api/mode", &resp); err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(resp)
		return
	}
	fmt.Println(resp.Mode)
}

func runAudit(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	n := cmd.Int("n", 20, "How many records")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	var records []struct {
		Seq        uint64 `json:"seq"`
		Time       string `json:"time"`
		ActorID    string `json:"actor_id"`
		ActorKind  string `json:"actor_kind"`
		ActionKind string `json:"action_kind"`
		Decision   string `json:"decision"`
		Mode       string `json:"mode"`
		RuleID     string `json:"rule_id"`
		Reason     string `json:"reason"`
	}
	if err := client.get(ctx, "/api/audit?n="+strconv.Itoa(*n), &records); err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(records)
		return
	}
	writer := newTabWriter()
	writeRow(writer, "SEQ", "TIME", "ACTOR", "ACTION", "DECISION", "MODE", "RULE")
	for _, r := range records {
		writeRow(writer, strconv.FormatUint(r.Seq, 10), r.Time, shortID(r.ActorID), r.ActionKind, r.Decision, r.Mode, r.RuleID)
	}
	_ = writer.Flush()
}

func runActors(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(errors.New("usage: primus actors <list|spawn|retire>"))
	}
	switch args[0] {
	case "list":
		var actors []struct {
			ID        string `json:"id"`
			Kind      string `json:"kind"`
			Name      string `json:"name"`
			ParentID  string `json:"parent_id"`
			CreatedAt string `json:"created_at"`
		}
		if err := client.get(ctx, "/api/actors", &actors); err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(actors)
			return
		}
		writer := newTabWriter()
		writeRow(writer, "ID", "KIND", "NAME", "PARENT", "CREATED")
		for _, a := range actors {
			writeRow(writer, a.ID, a.Kind, a.Name, shortID(a.ParentID), a.CreatedAt)
		}
		_ = writer.Flush()

	case "spawn":
		cmd := flag.NewFlagSet("actors spawn", flag.ContinueOnError)
		kind := cmd.String("kind", "", "Actor kind: primus, agent or subchat")
		name := cmd.String("name", "", "Actor name")
		parent := cmd.String("parent", "", "Parent actor id (agents and subchats)")
		if err := cmd.Parse(args[1:]); err != nil {
			fatal(err)
		}
		if *kind == "" {
			fatal(errors.New("--kind is required"))
		}
		var out map[string]any
		err := client.post(ctx, "/api/actors", map[string]string{
			"kind": *kind, "name": *name, "parent_id": *parent,
		}, &out)
		if err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(out)
			return
		}
		fmt.Printf("%s %v\n", *kind, out["id"])

	case "retire":
		if len(args) < 2 {
			fatal(errors.New("usage: primus actors retire <id>"))
		}
		if err := client.delete(ctx, "/api/actors/"+url.PathEscape(args[1])); err != nil {
			fatal(err)
		}
		fmt.Println("retired")

	default:
		fatal(fmt.Errorf("unknown actors subcommand %q", args[0]))
	}
}

func runPersona(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	if len(args) < 2 {
		fatal(errors.New("usage: primus persona <show|edit> <actor-id>"))
	}
	actorID := url.PathEscape(args[1])

	switch args[0] {
	case "show":
		var raw []byte
		if err := client.get(ctx, "/api/actors/"+actorID+"/persona", &raw); err != nil {
			fatal(err)
		}
		os.Stdout.Write(raw)

	case "edit":
		cmd := flag.NewFlagSet("persona edit", flag.ContinueOnError)
		file := cmd.String("file", "", "YAML file with the changes")
		changes := cmd.String("changes", "", "Inline YAML changes")
		reason := cmd.String("reason", "", "Why the change is wanted")
		if err := cmd.Parse(args[2:]); err != nil {
			fatal(err)
		}
		body := *changes
		if *file != "" {
			data, err := os.ReadFile(*file)
			if err != nil {
				fatal(err)
			}
			body = string(data)
		}
		if body == "" {
			fatal(errors.New("provide --file or --changes"))
		}
		var resp decisionEnvelope
		err := client.post(ctx, "/api/actors/"+actorID+"/persona", map[string]string{
			"changes": body, "reason": *reason,
		}, &resp)
		if err != nil {
			fatal(err)
		}
		printDecision(global, resp.Decision)

	default:
		fatal(fmt.Errorf("unknown persona subcommand %q", args[0]))
	}
}

func runChat(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	if len(args) < 2 {
		fatal(errors.New("usage: primus chat <actor-id> <prompt...>"))
	}
	prompt := strings.Join(args[1:], " ")

	var resp struct {
		Decision   decisionView `json:"decision"`
		Reply      string       `json:"reply"`
		Partitions []string     `json:"partitions"`
	}
	err := client.post(ctx, "/api/actors/"+url.PathEscape(args[0])+"/chat",
		map[string]string{"prompt": prompt}, &resp)
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(resp)
		return
	}
	if resp.Decision.Status != "allow" {
		printDecision(global, resp.Decision)
		return
	}
	fmt.Println(resp.Reply)
}

func runApprovals(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(errors.New("usage: primus approvals <list|approve|reject>"))
	}
	switch args[0] {
	case "list":
		var approvals []struct {
			ID        string `json:"id"`
			ActorID   string `json:"actor_id"`
			Kind      string `json:"kind"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		if err := client.get(ctx, "/api/approvals", &approvals); err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(approvals)
			return
		}
		writer := newTabWriter()
		writeRow(writer, "APPROVAL_ID", "ACTOR", "ACTION", "STATUS", "CREATED")
		for _, a := range approvals {
			writeRow(writer, a.ID, shortID(a.ActorID), a.Kind, a.Status, a.CreatedAt)
		}
		_ = writer.Flush()

	case "approve":
		if len(args) < 2 {
			fatal(errors.New("usage: primus approvals approve <id>"))
		}
		var resp decisionEnvelope
		if err := client.post(ctx, "/api/approvals/"+url.PathEscape(args[1])+"/approve", struct{}{}, &resp); err != nil {
			fatal(err)
		}
		printDecision(global, resp.Decision)

	case "reject":
		if len(args) < 2 {
			fatal(errors.New("usage: primus approvals reject <id>"))
		}
		if err := client.post(ctx, "/api/approvals/"+url.PathEscape(args[1])+"/reject", struct{}{}, nil); err != nil {
			fatal(err)
		}
		fmt.Println("rejected")

	default:
		fatal(fmt.Errorf("unknown approvals subcommand %q", args[0]))
	}
}

func runSandbox(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(errors.New("usage: primus sandbox <enter|exit> --actor <id>"))
	}
	cmd := flag.NewFlagSet("sandbox "+args[0], flag.ContinueOnError)
	actorID := cmd.String("actor", "", "Requesting actor id")
	if err := cmd.Parse(args[1:]); err != nil {
		fatal(err)
	}
	if *actorID == "" {
		fatal(errors.New("--actor is required"))
	}

	switch args[0] {
	case "enter":
		var resp struct {
			Mode         string         `json:"mode"`
			SandboxActor map[string]any `json:"sandbox_actor"`
		}
		if err := client.post(ctx, "/api/sandbox/enter", map[string]string{"actor_id": *actorID}, &resp); err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(resp)
			return
		}
		fmt.Printf("mode: %s\nsandbox actor: %v\n", resp.Mode, resp.SandboxActor["id"])

	case "exit":
		var resp struct {
			Mode     string `json:"mode"`
			Approval *struct {
				ID string `json:"id"`
			} `json:"approval"`
		}
		if err := client.post(ctx, "/api/sandbox/exit", map[string]string{"actor_id": *actorID}, &resp); err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(resp)
			return
		}
		fmt.Printf("mode: %s\n", resp.Mode)
		if resp.Approval != nil {
			fmt.Printf("sandbox drafts held for confirmation: primus approvals approve %s\n", resp.Approval.ID)
		}

	default:
		fatal(fmt.Errorf("unknown sandbox subcommand %q", args[0]))
	}
}

func runJournal(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(errors.New("usage: primus journal <list|note> --actor <id>"))
	}
	cmd := flag.NewFlagSet("journal "+args[0], flag.ContinueOnError)
	actorID := cmd.String("actor", "", "Sandbox actor id")
	text := cmd.String("text", "", "Note text (journal note)")
	if err := cmd.Parse(args[1:]); err != nil {
		fatal(err)
	}
	if *actorID == "" {
		fatal(errors.New("--actor is required"))
	}

	switch args[0] {
	case "list":
		var entries []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
			Time string `json:"time"`
		}
		if err := client.get(ctx, "/api/journal?actor="+url.QueryEscape(*actorID), &entries); err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(entries)
			return
		}
		writer := newTabWriter()
		writeRow(writer, "ENTRY_ID", "KIND", "TIME")
		for _, e := range entries {
			writeRow(writer, e.ID, e.Kind, e.Time)
		}
		_ = writer.Flush()

	case "note":
		if *text == "" {
			fatal(errors.New("--text is required"))
		}
		var resp map[string]any
		err := client.post(ctx, "/api/journal/notes", map[string]string{
			"actor_id": *actorID, "note": *text,
		}, &resp)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("noted %v\n", resp["id"])

	default:
		fatal(fmt.Errorf("unknown journal subcommand %q", args[0]))
	}
}

func runComms(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(errors.New("usage: primus comms <allow|revoke|grant|collabs>"))
	}

	switch args[0] {
	case "collabs":
		var collabs []struct {
			ID       string    `json:"id"`
			Members  [2]string `json:"members"`
			Started  string    `json:"started"`
			Snippets int       `json:"snippets"`
		}
		if err := client.get(ctx, "/api/comms/collaborations", &collabs); err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(collabs)
			return
		}
		writer := newTabWriter()
		writeRow(writer, "MEMBERS", "STARTED", "SNIPPETS")
		for _, c := range collabs {
			writeRow(writer, c.Members[0]+" <> "+c.Members[1], c.Started, strconv.Itoa(c.Snippets))
		}
		_ = writer.Flush()

	case "allow", "revoke", "grant":
		cmd := flag.NewFlagSet("comms "+args[0], flag.ContinueOnError)
		sender := cmd.String("sender", "", "Sending agent id")
		receiver := cmd.String("receiver", "", "Receiving agent id")
		ttl := cmd.String("ttl", "", "Grant lifetime (comms grant)")
		if err := cmd.Parse(args[1:]); err != nil {
			fatal(err)
		}
		if *sender == "" || *receiver == "" {
			fatal(errors.New("--sender and --receiver are required"))
		}
		switch args[0] {
		case "allow":
			if err := client.post(ctx, "/api/comms/pairs", map[string]string{
				"sender": *sender, "receiver": *receiver,
			}, nil); err != nil {
				fatal(err)
			}
			fmt.Println("allowed")
		case "revoke":
			path := "/api/comms/pairs?sender=" + url.QueryEscape(*sender) + "&receiver=" + url.QueryEscape(*receiver)
			if err := client.delete(ctx, path); err != nil {
				fatal(err)
			}
			fmt.Println("revoked")
		case "grant":
			body := map[string]string{"sender": *sender, "receiver": *receiver}
			if *ttl != "" {
				body["ttl"] = *ttl
			}
			var resp map[string]any
			if err := client.post(ctx, "/api/comms/grants", body, &resp); err != nil {
				fatal(err)
			}
			fmt.Printf("granted for %v\n", resp["ttl"])
		}

	default:
		fatal(fmt.Errorf("unknown comms subcommand %q", args[0]))
	}
}

func runPartition(ctx context.Context, client *apiClient, global globalFlags, args []string) {
	if len(args) < 3 {
		fatal(errors.New("usage: primus partition <read|write> <class> <owner> --actor <id> [--data <text>]"))
	}
	class, owner := url.PathEscape(args[1]), url.PathEscape(args[2])
	cmd := flag.NewFlagSet("partition "+args[0], flag.ContinueOnError)
	actorID := cmd.String("actor", "", "Requesting actor id")
	data := cmd.String("data", "", "Bytes to write (partition write)")
	if err := cmd.Parse(args[3:]); err != nil {
		fatal(err)
	}
	if *actorID == "" {
		fatal(errors.New("--actor is required"))
	}
	path := "/api/partitions/" + class + "/" + owner + "?actor=" + url.QueryEscape(*actorID)

	switch args[0] {
	case "read":
		var resp struct {
			Decision decisionView `json:"decision"`
			Data     string       `json:"data"`
		}
		if err := client.get(ctx, path, &resp); err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(resp)
			return
		}
		if resp.Decision.Status != "allow" {
			printDecision(global, resp.Decision)
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(resp.Data)
		if err != nil {
			fatal(err)
		}
		os.Stdout.Write(decoded)

	case "write":
		var resp decisionEnvelope
		if err := client.put(ctx, path, []byte(*data), &resp); err != nil {
			fatal(err)
		}
		printDecision(global, resp.Decision)

	default:
		fatal(fmt.Errorf("unknown partition subcommand %q", args[0]))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
