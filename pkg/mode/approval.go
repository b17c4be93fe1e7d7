// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package mode

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// ApprovalStatus captures the lifecycle of a user confirmation.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Approval is one action parked for explicit user confirmation. Action
// holds the original request so an approval can be replayed confirmed.
type Approval struct {
	ID        string          `json:"id"`
	ActorID   string          `json:"actor_id"`
	Kind      core.ActionKind `json:"kind"`
	Action    core.Action     `json:"action"`
	Status    ApprovalStatus  `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ApprovalFilter limits approval queries.
type ApprovalFilter struct {
	ActorID string
	Kind    core.ActionKind
	Status  ApprovalStatus
	Limit   int
}

// ApprovalStore persists approvals.
type ApprovalStore interface {
	Create(ctx context.Context, a Approval) (Approval, error)
	Get(ctx context.Context, id string) (Approval, error)
	List(ctx context.Context, filter ApprovalFilter) ([]Approval, error)
	UpdateStatus(ctx context.Context, id string, status ApprovalStatus, reason string) (Approval, error)
}

// MemoryApprovalStore keeps approvals in memory.
type MemoryApprovalStore struct {
	mu        sync.RWMutex
	approvals map[string]Approval
}

// NewMemoryApprovalStore creates an in-memory approval store.
func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{approvals: make(map[string]Approval)}
}

// Create inserts a new approval.
func (s *MemoryApprovalStore) Create(_ context.Context, a Approval) (Approval, error) {
	if a.ActorID == "" {
		return Approval{}, errors.New(errors.CodeInvalidInput, "actor_id is required", nil)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = ApprovalStatusPending
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	s.mu.Lock()
	s.approvals[a.ID] = a
	s.mu.Unlock()
	return a, nil
}

// Get returns an approval by id.
func (s *MemoryApprovalStore) Get(_ context.Context, id string) (Approval, error) {
	s.mu.RLock()
	a, ok := s.approvals[id]
	s.mu.RUnlock()
	if !ok {
		return Approval{}, errors.New(errors.CodeApprovalNotFound, "approval not found", nil).
			WithContext("approval_id", id)
	}
	return a, nil
}

// List returns approvals matching the filter, oldest first. The limit
// applies after ordering, so it always keeps the oldest entries.
func (s *MemoryApprovalStore) List(_ context.Context, filter ApprovalFilter) ([]Approval, error) {
	s.mu.RLock()
	out := make([]Approval, 0)
	for _, a := range s.approvals {
		if filter.ActorID != "" && a.ActorID != filter.ActorID {
			continue
		}
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateStatus updates the approval status and reason.
func (s *MemoryApprovalStore) UpdateStatus(_ context.Context, id string, status ApprovalStatus, reason string) (Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return Approval{}, errors.New(errors.CodeApprovalNotFound, "approval not found", nil).
			WithContext("approval_id", id)
	}
	a.Status = status
	a.Reason = reason
	a.UpdatedAt = time.Now().UTC()
	s.approvals[id] = a
	return a, nil
}
