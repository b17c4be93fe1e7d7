// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit is the append-only record of enforcement decisions. Every
// decision made outside sandbox mode lands here; the mode controller owns
// the suppression switch, this package never drops a record on its own.
// Records are hash-chained so tampering with history is detectable.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// Record is one enforcement decision. Never mutated, never deleted by the
// core.
type Record struct {
	Seq        uint64
	Time       time.Time
	ActorID    string
	ActorKind  core.ActorKind
	ActionKind core.ActionKind
	Decision   core.DecisionStatus
	Mode       core.Mode
	RuleID     string
	Reason     string
	Digest     []byte
}

// Log stores records in append order. Append assigns Seq and Digest and
// returns the completed record.
type Log interface {
	Append(ctx context.Context, r Record) (Record, error)
	Tail(ctx context.Context, n int) ([]Record, error)
	Len(ctx context.Context) (int, error)
}

// chainBody is the canonical byte layout hashed into the chain. Field
// order and CBOR canonical encoding keep digests stable across backends.
type chainBody struct {
	Seq        uint64 `cbor:"1,keyasint"`
	TimeMilli  int64  `cbor:"2,keyasint"`
	ActorID    string `cbor:"3,keyasint"`
	ActorKind  string `cbor:"4,keyasint"`
	ActionKind string `cbor:"5,keyasint"`
	Decision   string `cbor:"6,keyasint"`
	Mode       string `cbor:"7,keyasint"`
	RuleID     string `cbor:"8,keyasint"`
	Reason     string `cbor:"9,keyasint"`
}

var chainEnc cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	chainEnc = em
}

// chainDigest computes blake3(prev || canonical-cbor(record)).
func chainDigest(prev []byte, r Record) ([]byte, error) {
	body, err := chainEnc.Marshal(chainBody{
		Seq:        r.Seq,
		TimeMilli:  r.Time.UnixMilli(),
		ActorID:    r.ActorID,
		ActorKind:  string(r.ActorKind),
		ActionKind: string(r.ActionKind),
		Decision:   string(r.Decision),
		Mode:       string(r.Mode),
		RuleID:     r.RuleID,
		Reason:     r.Reason,
	})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "encoding audit chain body", err)
	}

	h := blake3.New()
	h.Write(prev)
	h.Write(body)
	return h.Sum(nil), nil
}

// MemoryLog keeps records in process memory.
type MemoryLog struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append assigns Seq and Digest and stores the record.
func (l *MemoryLog) Append(_ context.Context, r Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var prev []byte
	if n := len(l.records); n > 0 {
		prev = l.records[n-1].Digest
		r.Seq = l.records[n-1].Seq + 1
	} else {
		r.Seq = 1
	}
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}

	digest, err := chainDigest(prev, r)
	if err != nil {
		return Record{}, err
	}
	r.Digest = digest
	l.records = append(l.records, r)
	return r, nil
}

// Tail returns the last n records in append order. n <= 0 returns nothing.
func (l *MemoryLog) Tail(_ context.Context, n int) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return nil, nil
	}
	if n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, n)
	copy(out, l.records[len(l.records)-n:])
	return out, nil
}

// Len returns the number of records.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// Verify walks the chain and reports the first break.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev []byte
	for i, r := range l.records {
		want, err := chainDigest(prev, r)
		if err != nil {
			return err
		}
		if !bytesEqual(want, r.Digest) {
			return errors.New(errors.CodeInternal, "audit chain broken", nil).
				WithContext("seq", r.Seq).
				WithContext("index", i)
		}
		prev = r.Digest
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
