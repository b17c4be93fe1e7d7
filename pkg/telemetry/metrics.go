// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/primus-os/primus/pkg/errors"
)

// Metrics holds the runtime's instruments: decision counts, pending
// approvals, the active mode and error counts.
type Metrics struct {
	decisionCounter metric.Int64Counter
	errorCounter    metric.Int64Counter
	pendingGauge    metric.Int64Gauge
	modeGauge       metric.Int64Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
	metricsErr  error
)

// Instruments returns the process-wide metrics, created once against
// the global meter provider.
func Instruments() (*Metrics, error) {
	metricsOnce.Do(func() {
		metricsInst, metricsErr = newMetrics()
	})
	return metricsInst, metricsErr
}

func newMetrics() (*Metrics, error) {
	meter := otel.Meter("primus/runtime")

	decisionCounter, err := meter.Int64Counter(
		"primus.decisions.total",
		metric.WithDescription("Guard decisions by action kind, status and rule"),
	)
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter(
		"primus.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	pendingGauge, err := meter.Int64Gauge(
		"primus.approvals.pending",
		metric.WithDescription("Approvals currently awaiting the user"),
	)
	if err != nil {
		return nil, err
	}
	modeGauge, err := meter.Int64Gauge(
		"primus.mode.state",
		metric.WithDescription("Active mode (0=normal, 1=approval_pending, 2=sandbox)"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		decisionCounter: decisionCounter,
		errorCounter:    errorCounter,
		pendingGauge:    pendingGauge,
		modeGauge:       modeGauge,
	}, nil
}

// RecordDecision counts one guard decision.
func (m *Metrics) RecordDecision(ctx context.Context, actionKind, status, ruleID string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("action.kind", actionKind),
		attribute.String("decision.status", status),
	}
	if ruleID != "" {
		attrs = append(attrs, attribute.String("decision.rule", ruleID))
	}
	m.decisionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordError counts one error by code, component and recoverability.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	pe := errors.AsPrimusError(err)
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(pe.Code)),
		attribute.String("component", component),
		attribute.String("recoverable", pe.RecoverableString()),
	))
}

// RecordPendingApprovals records the current pending approval count.
func (m *Metrics) RecordPendingApprovals(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.pendingGauge.Record(ctx, n)
}

// RecordMode records the active mode.
func (m *Metrics) RecordMode(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.modeGauge.Record(ctx, modeOrdinal(mode), metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

func modeOrdinal(mode string) int64 {
	switch mode {
	case "approval_pending":
		return 1
	case "sandbox":
		return 2
	default:
		return 0
	}
}
