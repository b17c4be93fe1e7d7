// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package partition

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// Op is the store operation a token authorizes.
type Op string

const (
	// OpRead authorizes one read.
	OpRead Op = "read"

	// OpWrite authorizes one write.
	OpWrite Op = "write"
)

// Token is a single-use capability bound to one authorized action, one
// partition, and one operation. Only guards issue tokens; the store
// consumes them on first use, so a token can never be replayed to bypass a
// later check.
type Token struct {
	ID        string
	ActionID  string
	Partition core.PartitionID
	Op        Op
	IssuedAt  time.Time
}

// Vault issues and consumes tokens. Stores trust tokens, not callers: a
// store accepts any operation carrying a token the vault validates, and
// nothing else.
type Vault struct {
	mu     sync.Mutex
	tokens map[string]Token
	ttl    time.Duration
	now    func() time.Time
}

// NewVault creates a vault. Unconsumed tokens expire after one minute;
// they authorize exactly one action, so anything older is a leak.
func NewVault() *Vault {
	return &Vault{
		tokens: make(map[string]Token),
		ttl:    time.Minute,
		now:    time.Now,
	}
}

// Issue mints a token for one operation on one partition.
func (v *Vault) Issue(actionID string, p core.PartitionID, op Op) Token {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.sweepLocked()

	tok := Token{
		ID:        uuid.NewString(),
		ActionID:  actionID,
		Partition: p,
		Op:        op,
		IssuedAt:  v.now(),
	}
	v.tokens[tok.ID] = tok
	return tok
}

// Consume validates the token against the requested partition and
// operation and burns it. Every failure is TOKEN_INVALID; the caller
// learns nothing about which check failed beyond the context fields.
func (v *Vault) Consume(tok Token, p core.PartitionID, op Op) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	stored, ok := v.tokens[tok.ID]
	if !ok {
		return errors.New(errors.CodeTokenInvalid, "token unknown or already used", nil).
			WithContext("token_id", tok.ID)
	}
	delete(v.tokens, tok.ID)

	if stored.Partition != p || stored.Op != op {
		return errors.New(errors.CodeTokenInvalid, "token bound to a different partition or operation", nil).
			WithContext("token_id", tok.ID).
			WithContext("partition", p.Key())
	}
	if v.now().Sub(stored.IssuedAt) > v.ttl {
		return errors.New(errors.CodeTokenInvalid, "token expired", nil).
			WithContext("token_id", tok.ID)
	}
	return nil
}

func (v *Vault) sweepLocked() {
	cutoff := v.now().Add(-v.ttl)
	for id, tok := range v.tokens {
		if tok.IssuedAt.Before(cutoff) {
			delete(v.tokens, id)
		}
	}
}
