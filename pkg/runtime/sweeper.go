// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SweepOrphans discards pending approvals whose requesting actor no
// longer exists. Discarding is a rejection with no side effects; the
// sweeper never approves anything. Returns how many were discarded.
func (r *Runtime) SweepOrphans(ctx context.Context) (int, error) {
	pending, err := r.modes.Pending(ctx)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, a := range pending {
		if r.registry.Exists(a.ActorID) {
			continue
		}
		resolved, err := r.modes.Resolve(ctx, a.ID, false, "requesting actor no longer exists")
		if err != nil {
			// Raced with a user decision; the queue moved on without us.
			continue
		}
		r.discardAttachedDiff(resolved)
		swept++
		r.log.Info("runtime.sweep.orphan_discarded",
			slog.String("approval_id", a.ID),
			slog.String("actor_id", a.ActorID),
			slog.String("action_kind", string(a.Kind)),
		)
	}
	if swept > 0 {
		r.observeMode(ctx)
	}
	return swept, nil
}

// startSweeper launches the ticker goroutine. Caller holds r.mu.
func (r *Runtime) startSweeper() {
	if r.sweepInterval <= 0 {
		r.log.Info("runtime.sweep.disabled", slog.Duration("interval", r.sweepInterval))
		return
	}
	if r.sweepCancel != nil {
		r.stopSweeper()
	}
	initSweepMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.sweepCancel = cancel
	r.sweepDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		r.log.Info("runtime.sweep.start", slog.Duration("interval", r.sweepInterval))
		for {
			select {
			case <-ctx.Done():
				r.log.Info("runtime.sweep.stop")
				return
			case <-ticker.C:
				r.sweepOnce(ctx)
			}
		}
	}()
}

// sweepOnce runs one pass with its own span, timeout and metrics.
func (r *Runtime) sweepOnce(ctx context.Context) {
	var cancel context.CancelFunc
	if r.sweepTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.sweepTimeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("primus/runtime").Start(ctx, "runtime.approval.sweep")
	defer span.End()
	traceID, spanID := traceIDs(span)

	start := time.Now()
	swept, err := r.SweepOrphans(ctx)
	durationMs := float64(time.Since(start).Seconds() * 1000)

	sweepCounter.Add(ctx, 1)
	sweepLatencyMs.Record(ctx, durationMs)
	if err != nil {
		sweepErrorCounter.Add(ctx, 1)
		span.RecordError(err)
		r.log.Warn("runtime.sweep.error",
			slog.Float64("duration_ms", durationMs),
			slog.String("trace_id", traceID),
			slog.String("span_id", spanID),
			slog.String("error", err.Error()),
		)
		return
	}
	if swept > 0 {
		orphanCounter.Add(ctx, int64(swept))
	}
	span.SetAttributes(
		attribute.Int("swept", swept),
		attribute.Float64("duration_ms", durationMs),
	)
	r.log.Debug("runtime.sweep.complete",
		slog.Int("swept", swept),
		slog.Float64("duration_ms", durationMs),
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
	)
}

// stopSweeper cancels the goroutine and waits for it. Caller holds r.mu.
func (r *Runtime) stopSweeper() {
	if r.sweepCancel == nil {
		return
	}
	r.sweepCancel()
	if r.sweepDone != nil {
		<-r.sweepDone
	}
	r.sweepCancel = nil
	r.sweepDone = nil
}

var (
	sweepMetricsOnce  sync.Once
	sweepCounter      metric.Int64Counter
	sweepErrorCounter metric.Int64Counter
	orphanCounter     metric.Int64Counter
	sweepLatencyMs    metric.Float64Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		meter := otel.Meter("primus/runtime")
		sweepCounter, _ = meter.Int64Counter("primus.runtime.sweep.count")
		sweepErrorCounter, _ = meter.Int64Counter("primus.runtime.sweep.error.count")
		orphanCounter, _ = meter.Int64Counter("primus.runtime.sweep.orphans.count")
		sweepLatencyMs, _ = meter.Float64Histogram("primus.runtime.sweep.latency_ms")
	})
}
