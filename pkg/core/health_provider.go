// SPDX-License-Identifier: Apache-2.0
package core

import (
	"context"
	"fmt"
	"sync"
)

// HealthCheckProvider aggregates health checks over the core's components.
type HealthCheckProvider struct {
	checkers map[string]HealthChecker
	mu       sync.RWMutex
}

// NewHealthCheckProvider creates an empty health check provider.
func NewHealthCheckProvider() *HealthCheckProvider {
	return &HealthCheckProvider{checkers: make(map[string]HealthChecker)}
}

// RegisterChecker registers a health checker for a component.
func (p *HealthCheckProvider) RegisterChecker(name string, checker HealthChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkers[name] = checker
}

// Check checks the health of a specific component.
func (p *HealthCheckProvider) Check(ctx context.Context, name string) (HealthResult, error) {
	p.mu.RLock()
	checker, exists := p.checkers[name]
	p.mu.RUnlock()

	if !exists {
		return HealthResult{}, fmt.Errorf("checker not registered: %s", name)
	}

	return checker.Check(ctx), nil
}

// CheckAll checks the health of all registered components.
// Returns individual results and overall status (Healthy only if all Healthy).
func (p *HealthCheckProvider) CheckAll(ctx context.Context) ([]HealthResult, HealthStatus) {
	p.mu.RLock()
	checkers := make(map[string]HealthChecker, len(p.checkers))
	for name, checker := range p.checkers {
		checkers[name] = checker
	}
	p.mu.RUnlock()

	results := make([]HealthResult, 0, len(checkers))
	degraded, unhealthy := 0, 0

	for name, checker := range checkers {
		result := checker.Check(ctx)
		result.Component = name
		results = append(results, result)

		switch result.Status {
		case HealthDegraded:
			degraded++
		case HealthUnhealthy:
			unhealthy++
		}
	}

	overall := HealthHealthy
	if unhealthy > 0 {
		overall = HealthUnhealthy
	} else if degraded > 0 {
		overall = HealthDegraded
	}

	return results, overall
}
