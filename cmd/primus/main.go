// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Command primus is the CLI front end for the policy core daemon. It
// submits actions and mode commands over the local control API and
// prints decisions verbatim, approval prompts included.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
)

const (
	version        = "0.1.0"
	defaultHTTPURL = "http://127.0.0.1:8787"
)

type globalFlags struct {
	HTTPURL string
	Timeout time.Duration
	JSON    bool
	Help    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	client := newAPIClient(global.HTTPURL, global.Timeout)

	switch args[0] {
	case "status":
		runStatus(ctx, client, global)
	case "mode":
		runMode(ctx, client, global)
	case "audit":
		runAudit(ctx, client, global, args[1:])
	case "actors":
		runActors(ctx, client, global, args[1:])
	case "persona":
		runPersona(ctx, client, global, args[1:])
	case "chat":
		runChat(ctx, client, global, args[1:])
	case "approvals":
		runApprovals(ctx, client, global, args[1:])
	case "sandbox":
		runSandbox(ctx, client, global, args[1:])
	case "journal":
		runJournal(ctx, client, global, args[1:])
	case "partition":
		runPartition(ctx, client, global, args[1:])
	case "comms":
		runComms(ctx, client, global, args[1:])
	case "help":
		printUsage()
	case "version":
		fmt.Println(version)
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		HTTPURL: getenv("PRIMUS_HTTP_URL", defaultHTTPURL),
		Timeout: 30 * time.Second,
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--http":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --http")
			}
			flags.HTTPURL = args[i+1]
			i++
		case strings.HasPrefix(arg, "--http="):
			flags.HTTPURL = strings.TrimPrefix(arg, "--http=")
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func printUsage() {
	fmt.Println(`primus - policy core CLI

Usage:
  primus [global flags] <command> [args]

Global flags:
  --http <url>         primusd control API base URL (default http://127.0.0.1:8787)
  --timeout <dur>      Request timeout (default 30s)
  --json               JSON output

Commands:
  status
  mode
  audit [--n N]
  actors list
  actors spawn --kind <primus|agent|subchat> [--name <name>] [--parent <id>]
  actors retire <id>
  persona show <actor-id>
  persona edit <actor-id> [--file <path>] [--changes <yaml>] [--reason <text>]
  chat <actor-id> <prompt...>
  approvals list
  approvals approve <id>
  approvals reject <id>
  sandbox enter --actor <id>
  sandbox exit --actor <id>
  journal list --actor <id>
  journal note --actor <id> --text <note>
  partition read <class> <owner> --actor <id>
  partition write <class> <owner> --actor <id> --data <text>
  comms allow --sender <id> --receiver <id>
  comms revoke --sender <id> --receiver <id>
  comms grant --sender <id> --receiver <id> [--ttl 5m]
  comms collabs
  version`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
