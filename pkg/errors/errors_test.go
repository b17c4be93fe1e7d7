// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("disk full")
	pe := New(CodeStorage, "partition write failed", cause)

	if pe.Code != CodeStorage {
		t.Errorf("expected CodeStorage, got %v", pe.Code)
	}
	if pe.Message != "partition write failed" {
		t.Errorf("expected message 'partition write failed', got %q", pe.Message)
	}
	if pe.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(pe, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	pe := New(CodeTokenInvalid, "token already consumed", nil)
	pe.WithContext("partition", "agent:a-1").
		WithContext("op", map[string]interface{}{"kind": "read"})

	if pe.Context["partition"] != "agent:a-1" {
		t.Errorf("expected context partition to be 'agent:a-1'")
	}
	if pe.Context["op"] == nil {
		t.Errorf("expected context op to be set")
	}
}

func TestWithAttribute(t *testing.T) {
	pe := New(CodeStorage, "store failed", nil)
	pe.WithAttribute("backend", "sqlite").
		WithAttribute("retry_count", "3")

	if pe.Attributes["backend"] != "sqlite" {
		t.Errorf("expected attribute backend")
	}
	if pe.Attributes["retry_count"] != "3" {
		t.Errorf("expected attribute retry_count")
	}
}

func TestWithRecoverable(t *testing.T) {
	pe := New(CodeStorage, "write error", nil)
	if pe.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}

	pe.WithRecoverable(true)
	if !pe.Recoverable {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		pe       *PrimusError
		expected string
	}{
		{
			name:     "with cause",
			pe:       New(CodeSeal, "journal unlock failed", errors.New("bad passphrase")),
			expected: "[SEAL_ERROR] journal unlock failed: bad passphrase",
		},
		{
			name:     "without cause",
			pe:       New(CodeActorNotFound, "actor not found", nil),
			expected: "[ACTOR_NOT_FOUND] actor not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.pe.Error()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAsPrimusError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "already PrimusError",
			err:      New(CodeTransitionRejected, "approval pending", nil),
			expected: CodeTransitionRejected,
		},
		{
			name:     "generic error",
			err:      errors.New("generic error"),
			expected: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := AsPrimusError(tt.err)
			if tt.expected == "" {
				if pe != nil {
					t.Errorf("expected nil for nil error")
				}
			} else {
				if pe == nil {
					t.Errorf("expected non-nil PrimusError")
				} else if pe.Code != tt.expected {
					t.Errorf("expected %v, got %v", tt.expected, pe.Code)
				}
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	pe := New(CodeApprovalNotFound, "no such approval", nil)
	if !HasCode(pe, CodeApprovalNotFound) {
		t.Errorf("expected HasCode to match")
	}
	if HasCode(pe, CodeStorage) {
		t.Errorf("expected HasCode mismatch for different code")
	}
	if HasCode(errors.New("plain"), CodeStorage) {
		t.Errorf("expected HasCode false for non-PrimusError")
	}
	if HasCode(nil, CodeStorage) {
		t.Errorf("expected HasCode false for nil")
	}
}

func TestMarshalJSON(t *testing.T) {
	pe := New(CodeStorage, "store failed", errors.New("io error"))
	pe.WithContext("partition", "global").
		WithAttribute("retry_count", "1").
		WithRecoverable(true)

	data, err := json.Marshal(pe)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if result["code"] != "STORAGE_ERROR" {
		t.Errorf("expected code 'STORAGE_ERROR', got %v", result["code"])
	}
	if result["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeActorNotFound, 404},
		{CodePartitionNotFound, 404},
		{CodeApprovalNotFound, 404},
		{CodeTokenInvalid, 401},
		{CodeInvalidInput, 400},
		{CodeTransitionRejected, 409},
		{CodeProtectedTrait, 403},
		{CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			pe := New(tt.code, "test", nil)
			if pe.StatusCode != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, pe.StatusCode)
			}
		})
	}
}
