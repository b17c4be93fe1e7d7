// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package persona manages personality documents. Documents are opaque
// YAML mappings keyed by document ID; the core governs who may change
// them, not what they say. The one content rule lives here: protected
// traits cannot be touched by any edit, approved or not.
//
// Edits flow through a propose/apply cycle. Propose validates a change
// and parks it as a pending diff; the approval path (or sandbox exit
// confirmation) later applies or discards it. Nothing mutates a document
// directly.
package persona

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/primus-os/primus/pkg/errors"
)

// protectedTraits are top-level or nested keys no diff may set, clear,
// or overwrite. Keeping identity and safety out of reach means even a
// fully approved edit cannot hollow out the assistant.
var protectedTraits = map[string]struct{}{
	"identity":    {},
	"core_values": {},
	"safety":      {},
}

// Diff is a proposed change to one document. Changes is a YAML mapping
// deep-merged over the document when the diff is applied.
type Diff struct {
	ID         string
	DocID      string
	ProposedBy string
	Changes    []byte
	Reason     string
	CreatedAt  time.Time
}

// Manager holds persona documents and their pending diffs.
type Manager struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	diffs map[string]Diff

	snapshotPath string
}

// Option configures a Manager.
type Option func(*Manager) error

// WithSnapshotPath persists documents to a YAML file on every mutation
// and loads them back on construction.
func WithSnapshotPath(path string) Option {
	return func(m *Manager) error {
		m.snapshotPath = path
		return nil
	}
}

// NewManager creates a manager, loading a snapshot if one is configured
// and present.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		docs:  make(map[string][]byte),
		diffs: make(map[string]Diff),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.snapshotPath != "" {
		if err := m.loadSnapshot(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DefaultTemplate is the document new actors start from.
func DefaultTemplate(name string) []byte {
	doc := map[string]any{
		"name":        name,
		"description": "",
		"tone":        "neutral",
		"verbosity":   "balanced",
		"traits":      map[string]any{},
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		// static input, cannot fail
		panic(err)
	}
	return raw
}

// Create registers a new document. The raw bytes must be a YAML mapping.
func (m *Manager) Create(docID string, raw []byte) error {
	if docID == "" {
		return errors.New(errors.CodeInvalidInput, "document ID must not be empty", nil)
	}
	if _, err := parseMapping(raw); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[docID]; exists {
		return errors.New(errors.CodeInvalidInput, "document already exists", nil).
			WithContext("doc_id", docID)
	}
	m.docs[docID] = append([]byte(nil), raw...)
	return m.saveSnapshotLocked()
}

// Get returns a copy of the document bytes.
func (m *Manager) Get(docID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.docs[docID]
	if !ok {
		return nil, errors.New(errors.CodePersonaNotFound, "persona document not found", nil).
			WithContext("doc_id", docID)
	}
	return append([]byte(nil), raw...), nil
}

// Exists reports whether the document is registered.
func (m *Manager) Exists(docID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.docs[docID]
	return ok
}

// Propose validates a change and parks it as a pending diff. The change
// must be a YAML mapping and must not touch protected traits; a change
// that does is rejected here, not silently filtered.
func (m *Manager) Propose(docID, proposer string, changes []byte, reason string) (Diff, error) {
	parsed, err := parseMapping(changes)
	if err != nil {
		return Diff{}, err
	}
	if hit := touchesProtected(parsed); hit != "" {
		return Diff{}, errors.New(errors.CodeProtectedTrait, "change touches protected trait", nil).
			WithContext("trait", hit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[docID]; !ok {
		return Diff{}, errors.New(errors.CodePersonaNotFound, "persona document not found", nil).
			WithContext("doc_id", docID)
	}
	d := Diff{
		ID:         uuid.NewString(),
		DocID:      docID,
		ProposedBy: proposer,
		Changes:    append([]byte(nil), changes...),
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
	m.diffs[d.ID] = d
	return d, nil
}

// GetDiff returns a pending diff.
func (m *Manager) GetDiff(diffID string) (Diff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.diffs[diffID]
	if !ok {
		return Diff{}, errors.New(errors.CodeDiffNotFound, "persona diff not found", nil).
			WithContext("diff_id", diffID)
	}
	return d, nil
}

// Pending returns the pending diffs for one document, oldest first.
func (m *Manager) Pending(docID string) []Diff {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Diff
	for _, d := range m.diffs {
		if d.DocID == docID {
			out = append(out, d)
		}
	}
	sortDiffs(out)
	return out
}

// Apply deep-merges a pending diff into its document and discards the
// diff. Protected traits are re-checked so a diff cannot sneak past via
// a stale manager state.
func (m *Manager) Apply(diffID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.diffs[diffID]
	if !ok {
		return errors.New(errors.CodeDiffNotFound, "persona diff not found", nil).
			WithContext("diff_id", diffID)
	}
	raw, ok := m.docs[d.DocID]
	if !ok {
		return errors.New(errors.CodePersonaNotFound, "persona document not found", nil).
			WithContext("doc_id", d.DocID)
	}

	base, err := parseMapping(raw)
	if err != nil {
		return err
	}
	changes, err := parseMapping(d.Changes)
	if err != nil {
		return err
	}
	if hit := touchesProtected(changes); hit != "" {
		return errors.New(errors.CodeProtectedTrait, "change touches protected trait", nil).
			WithContext("trait", hit)
	}

	deepMerge(base, changes)
	merged, err := yaml.Marshal(base)
	if err != nil {
		return errors.New(errors.CodeInternal, "encoding merged document", err)
	}
	m.docs[d.DocID] = merged
	delete(m.diffs, diffID)
	return m.saveSnapshotLocked()
}

// Discard drops a pending diff without applying it.
func (m *Manager) Discard(diffID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.diffs[diffID]; !ok {
		return errors.New(errors.CodeDiffNotFound, "persona diff not found", nil).
			WithContext("diff_id", diffID)
	}
	delete(m.diffs, diffID)
	return nil
}

// ValidateChange checks a change the way Propose would: a YAML mapping
// that leaves protected traits alone. Draft paths call this so a bad
// change is rejected when it is written, not when it is confirmed.
func ValidateChange(changes []byte) error {
	parsed, err := parseMapping(changes)
	if err != nil {
		return err
	}
	if hit := touchesProtected(parsed); hit != "" {
		return errors.New(errors.CodeProtectedTrait, "change touches protected trait", nil).
			WithContext("trait", hit)
	}
	return nil
}

// MergeChanges deep-merges change documents in order into one mapping.
// Later documents win on conflicting scalar keys, matching how the
// diffs would have landed if applied one by one.
func MergeChanges(changes ...[]byte) ([]byte, error) {
	merged := make(map[string]any)
	for _, raw := range changes {
		parsed, err := parseMapping(raw)
		if err != nil {
			return nil, err
		}
		deepMerge(merged, parsed)
	}
	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "encoding merged changes", err)
	}
	return out, nil
}

// parseMapping unmarshals raw YAML and requires a mapping at the top.
func parseMapping(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "document must not be empty", nil)
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "document is not valid YAML", err)
	}
	if m == nil {
		return nil, errors.New(errors.CodeInvalidInput, "document is not a YAML mapping", nil)
	}
	return m, nil
}

// touchesProtected returns the first protected key found at any depth.
func touchesProtected(m map[string]any) string {
	for k, v := range m {
		if _, bad := protectedTraits[k]; bad {
			return k
		}
		if nested, ok := v.(map[string]any); ok {
			if hit := touchesProtected(nested); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// deepMerge merges nested mappings instead of replacing them.
func deepMerge(base, updates map[string]any) {
	for k, v := range updates {
		if vm, ok := v.(map[string]any); ok {
			if bm, ok := base[k].(map[string]any); ok {
				deepMerge(bm, vm)
				continue
			}
		}
		base[k] = v
	}
}

func sortDiffs(diffs []Diff) {
	for i := 1; i < len(diffs); i++ {
		for j := i; j > 0 && diffs[j].CreatedAt.Before(diffs[j-1].CreatedAt); j-- {
			diffs[j], diffs[j-1] = diffs[j-1], diffs[j]
		}
	}
}

// saveSnapshotLocked writes all documents to the snapshot path using a
// temp file and rename. Caller holds m.mu.
func (m *Manager) saveSnapshotLocked() error {
	if m.snapshotPath == "" {
		return nil
	}
	snap := make(map[string]string, len(m.docs))
	for id, raw := range m.docs {
		snap[id] = string(raw)
	}
	raw, err := yaml.Marshal(snap)
	if err != nil {
		return errors.New(errors.CodeInternal, "encoding persona snapshot", err)
	}
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.New(errors.CodeStorage, "writing persona snapshot", err)
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		return errors.New(errors.CodeStorage, "replacing persona snapshot", err)
	}
	return nil
}

func (m *Manager) loadSnapshot() error {
	raw, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0o700); err != nil {
				return errors.New(errors.CodeStorage, "creating persona snapshot dir", err)
			}
			return nil
		}
		return errors.New(errors.CodeStorage, "reading persona snapshot", err)
	}
	var snap map[string]string
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return errors.New(errors.CodeStorage, "decoding persona snapshot", err)
	}
	for id, doc := range snap {
		m.docs[id] = []byte(doc)
	}
	return nil
}
