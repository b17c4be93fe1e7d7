// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"strconv"

	"github.com/primus-os/primus/pkg/core"
)

// Health returns the runtime's health provider. Checkers cover the
// pieces whose failure would make decisions unverifiable: the audit
// log, the approval store and, when configured, the sandbox journal.
func (r *Runtime) Health() *core.HealthCheckProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.health == nil {
		r.health = r.buildHealthProvider()
	}
	return r.health
}

func (r *Runtime) buildHealthProvider() *core.HealthCheckProvider {
	p := core.NewHealthCheckProvider()

	p.RegisterChecker("audit", core.NewFunctionHealthChecker(func(ctx context.Context) core.HealthResult {
		n, err := r.auditLog.Len(ctx)
		if err != nil {
			return core.HealthResult{Status: core.HealthUnhealthy, Message: "audit log unreadable", Error: err}
		}
		return core.HealthResult{Status: core.HealthHealthy, Message: strconv.Itoa(n) + " records"}
	}))

	p.RegisterChecker("approvals", core.NewFunctionHealthChecker(func(ctx context.Context) core.HealthResult {
		pending, err := r.modes.Pending(ctx)
		if err != nil {
			return core.HealthResult{Status: core.HealthUnhealthy, Message: "approval store unreadable", Error: err}
		}
		return core.HealthResult{Status: core.HealthHealthy, Message: strconv.Itoa(len(pending)) + " pending"}
	}))

	if r.journal != nil {
		p.RegisterChecker("journal", core.NewFunctionHealthChecker(func(_ context.Context) core.HealthResult {
			if _, err := r.journal.List(1); err != nil {
				return core.HealthResult{Status: core.HealthDegraded, Message: "journal unreadable", Error: err}
			}
			return core.HealthResult{Status: core.HealthHealthy}
		}))
	}

	return p
}
