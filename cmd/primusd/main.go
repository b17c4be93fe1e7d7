// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Command primusd runs the policy core as a long-lived daemon. Front
// ends reach it over the local HTTP control API; with --mcp it serves
// the Model Context Protocol on stdin/stdout instead, for agent
// runtimes that speak MCP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/primus-os/primus/pkg/config"
	"github.com/primus-os/primus/pkg/httpapi"
	"github.com/primus-os/primus/pkg/mcpserver"
	"github.com/primus-os/primus/pkg/runtime"
	"github.com/primus-os/primus/pkg/telemetry"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	serveMCP := false
	for _, arg := range args {
		switch arg {
		case "--mcp":
			serveMCP = true
		case "--version":
			fmt.Println(version)
			return
		case "-h", "--help":
			printUsage()
			return
		}
	}

	cfg, err := config.LoadWithCLI(args)
	if err != nil {
		fatal(err)
	}

	// MCP rides on stdout, so logs must not.
	logOut := os.Stdout
	if serveMCP {
		logOut = os.Stderr
	}
	log := telemetry.ConfigureSlog(logOut, cfg.Log.Level, cfg.Log.Format)

	if cfg.Telemetry.Enabled {
		exporter := "stdout"
		if cfg.Telemetry.Endpoint != "" {
			exporter = "otlp"
		}
		shutdown, err := telemetry.InitWithConfig("primusd", version, telemetry.Config{
			Exporter: exporter,
			Endpoint: cfg.Telemetry.Endpoint,
			Insecure: true,
		})
		if err != nil {
			fatal(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn("telemetry.shutdown.failed", slog.String("error", err.Error()))
			}
		}()
	}

	rt, err := runtime.NewFromConfig(cfg)
	if err != nil {
		fatal(err)
	}
	if _, err := rt.CreatePrimus("Primus"); err != nil {
		fatal(err)
	}
	if err := rt.Start(ctx); err != nil {
		fatal(err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Stop(stopCtx); err != nil {
			log.Error("runtime.stop.failed", slog.String("error", err.Error()))
		}
	}()

	startWatcher(ctx, args, log)

	if serveMCP {
		log.Info("primusd.mcp.serving", slog.String("transport", "stdio"))
		if err := mcpserver.New(rt, version).ServeStdio(); err != nil {
			fatal(err)
		}
		return
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.New(rt, log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("primusd.http.listening", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		fatal(err)
	case <-ctx.Done():
	}

	log.Info("primusd.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("primusd.http.shutdown_failed", slog.String("error", err.Error()))
	}
}

// startWatcher hot-reloads the log level when the config file changes.
// Without a --config flag there is nothing to watch.
func startWatcher(ctx context.Context, args []string, log *slog.Logger) {
	path := configPath(args)
	if path == "" {
		return
	}
	w, err := config.NewWatcher(path, config.WithWatchLogger(log))
	if err != nil {
		log.Warn("primusd.config.watch_unavailable", slog.String("error", err.Error()))
		return
	}
	w.OnChange(func(cfg *config.Config) {
		telemetry.SetLogLevel(cfg.Log.Level)
		log.Info("primusd.config.reloaded", slog.String("log_level", cfg.Log.Level))
	})
	w.Start(ctx)
}

func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func printUsage() {
	fmt.Println(`primusd - PRIMUS policy core daemon

Usage:
  primusd [flags]

Flags:
  --config <path>      Path to YAML config
  --set key=value      Override config (repeatable)
  --mcp                Serve MCP on stdio instead of the HTTP API
  --version            Print version and exit`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
