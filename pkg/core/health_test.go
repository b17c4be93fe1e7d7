// SPDX-License-Identifier: Apache-2.0
package core

import (
	"context"
	"testing"
)

func TestHealthCheckProviderCheckAll(t *testing.T) {
	p := NewHealthCheckProvider()
	p.RegisterChecker("partition-store", NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		return HealthResult{Status: HealthHealthy}
	}))
	p.RegisterChecker("vector-index", NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		return HealthResult{Status: HealthDegraded, Message: "qdrant unreachable, retrying"}
	}))

	results, overall := p.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if overall != HealthDegraded {
		t.Errorf("overall = %s, want %s", overall, HealthDegraded)
	}

	if _, err := p.Check(context.Background(), "audit-log"); err == nil {
		t.Error("expected error for unregistered checker")
	}
}

func TestHealthCheckProviderUnhealthyWins(t *testing.T) {
	p := NewHealthCheckProvider()
	p.RegisterChecker("a", NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		return HealthResult{Status: HealthDegraded}
	}))
	p.RegisterChecker("b", NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		return HealthResult{Status: HealthUnhealthy}
	}))

	_, overall := p.CheckAll(context.Background())
	if overall != HealthUnhealthy {
		t.Errorf("overall = %s, want %s", overall, HealthUnhealthy)
	}
}
