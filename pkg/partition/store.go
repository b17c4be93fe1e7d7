// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package partition is the memory partition store: key-scoped opaque
// bytes, one partition per (owner, class). The store is a pure data layer
// with no policy knowledge; every mutating path requires a single-use
// token issued by a guard, which keeps the isolation guarantee in the
// enforcer rather than duplicated at call sites.
package partition

import (
	"context"
	"sync"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// Store reads and writes partition bytes. Reads of a never-written
// partition fail with PARTITION_NOT_FOUND; writes create the partition.
// Writes to the same partition are serialized; different partitions
// proceed in parallel.
type Store interface {
	Read(ctx context.Context, id core.PartitionID, tok Token) ([]byte, error)
	Write(ctx context.Context, id core.PartitionID, tok Token, data []byte) error
}

// keyLocks hands out one mutex per partition key so writes serialize
// per-partition instead of globally.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *keyLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// MemoryStore is the in-process backend, used by tests and ephemeral runs.
type MemoryStore struct {
	vault *Vault
	locks *keyLocks

	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory partition store.
func NewMemoryStore(vault *Vault) *MemoryStore {
	return &MemoryStore{
		vault: vault,
		locks: newKeyLocks(),
		data:  make(map[string][]byte),
	}
}

// Read returns the partition bytes.
func (m *MemoryStore) Read(_ context.Context, id core.PartitionID, tok Token) ([]byte, error) {
	if err := m.vault.Consume(tok, id, OpRead); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[id.Key()]
	if !ok {
		return nil, errors.New(errors.CodePartitionNotFound, "partition not found", nil).
			WithContext("partition", id.Key())
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write replaces the partition bytes, creating the partition on first use.
func (m *MemoryStore) Write(_ context.Context, id core.PartitionID, tok Token, data []byte) error {
	if err := m.vault.Consume(tok, id, OpWrite); err != nil {
		return err
	}

	lock := m.locks.get(id.Key())
	lock.Lock()
	defer lock.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	m.data[id.Key()] = stored
	m.mu.Unlock()
	return nil
}
