// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal implements the Captain's Log private journal. Entries
// live in a local append-only file, one sealed CBOR entry per line, and
// never touch the audit trail. Nothing in here is readable without the
// sandbox passphrase.
package journal

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/sealed"
)

// EntryKind classifies a journal entry.
type EntryKind string

const (
	// KindNote is a free-form private note.
	KindNote EntryKind = "note"

	// KindDraft is a persona or setting change drafted during a sandbox
	// session, held for confirmation at exit.
	KindDraft EntryKind = "draft"
)

// Valid reports whether the kind is one the journal accepts.
func (k EntryKind) Valid() bool {
	return k == KindNote || k == KindDraft
}

// Entry is one journal record.
type Entry struct {
	ID   string
	Time time.Time
	Kind EntryKind
	Note []byte
}

// EntryMeta is the listing view of an entry. Note bytes stay sealed.
type EntryMeta struct {
	ID   string
	Time time.Time
	Kind EntryKind
}

// entryBody is the CBOR layout written to disk.
type entryBody struct {
	ID        string `cbor:"1,keyasint"`
	TimeMilli int64  `cbor:"2,keyasint"`
	Kind      string `cbor:"3,keyasint"`
	Note      []byte `cbor:"4,keyasint"`
}

const journalFile = "journal.sealed"

// Journal is the Captain's Log entry store. It is self-contained: mode
// gating happens in the runtime, not here.
type Journal struct {
	mu     sync.Mutex
	path   string
	cipher sealed.Cipher
}

// New creates a journal rooted at dir. The cipher seals every entry;
// it must not be nil.
func New(dir string, cipher sealed.Cipher) (*Journal, error) {
	if cipher == nil {
		return nil, errors.New(errors.CodeSeal, "journal requires a cipher", nil)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.New(errors.CodeStorage, "creating journal dir", err).
			WithContext("dir", dir)
	}
	return &Journal{
		path:   filepath.Join(dir, journalFile),
		cipher: cipher,
	}, nil
}

// Append seals and appends one entry, returning it with ID and time set.
func (j *Journal) Append(kind EntryKind, note []byte) (Entry, error) {
	if !kind.Valid() {
		return Entry{}, errors.New(errors.CodeInvalidInput, "unknown entry kind", nil).
			WithContext("kind", string(kind))
	}

	e := Entry{
		ID:   uuid.NewString(),
		Time: time.Now().UTC(),
		Kind: kind,
		Note: note,
	}
	raw, err := cbor.Marshal(entryBody{
		ID:        e.ID,
		TimeMilli: e.Time.UnixMilli(),
		Kind:      string(e.Kind),
		Note:      e.Note,
	})
	if err != nil {
		return Entry{}, errors.New(errors.CodeInternal, "encoding journal entry", err)
	}
	line, err := j.cipher.Seal(raw)
	if err != nil {
		return Entry{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Entry{}, errors.New(errors.CodeStorage, "opening journal", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return Entry{}, errors.New(errors.CodeStorage, "appending journal entry", err)
	}
	return e, nil
}

// List returns entry metadata in append order. A positive limit keeps
// only the most recent entries.
func (j *Journal) List(limit int) ([]EntryMeta, error) {
	entries, err := j.load()
	if err != nil {
		return nil, err
	}
	metas := make([]EntryMeta, 0, len(entries))
	for _, e := range entries {
		metas = append(metas, EntryMeta{ID: e.ID, Time: e.Time, Kind: e.Kind})
	}
	if limit > 0 && len(metas) > limit {
		metas = metas[len(metas)-limit:]
	}
	return metas, nil
}

// Read returns the full entry for the given ID, note bytes included.
func (j *Journal) Read(entryID string) (Entry, error) {
	entries, err := j.load()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == entryID {
			return e, nil
		}
	}
	return Entry{}, errors.New(errors.CodeEntryNotFound, "journal entry not found", nil).
		WithContext("entry_id", entryID)
}

// Drafts returns the full entries of kind draft, oldest first. Sandbox
// exit consumes these to build the confirmation queue.
func (j *Journal) Drafts() ([]Entry, error) {
	entries, err := j.load()
	if err != nil {
		return nil, err
	}
	var drafts []Entry
	for _, e := range entries {
		if e.Kind == KindDraft {
			drafts = append(drafts, e)
		}
	}
	return drafts, nil
}

// ConsumeDrafts removes every draft entry and returns them, oldest
// first. Notes stay. Sandbox exit calls this once to move drafted
// changes into the confirmation queue; a draft is either consumed here
// or still in the file, never both.
func (j *Journal) ConsumeDrafts() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.loadLocked()
	if err != nil {
		return nil, err
	}
	var drafts, keep []Entry
	for _, e := range entries {
		if e.Kind == KindDraft {
			drafts = append(drafts, e)
			continue
		}
		keep = append(keep, e)
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	if err := j.rewriteLocked(keep); err != nil {
		return nil, err
	}
	return drafts, nil
}

// rewriteLocked replaces the journal file with the given entries,
// re-sealing each one. Temp file and rename so a crash leaves the old
// file intact. Caller holds j.mu.
func (j *Journal) rewriteLocked(entries []Entry) error {
	tmp := j.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.New(errors.CodeStorage, "opening journal temp file", err)
	}
	for _, e := range entries {
		raw, err := cbor.Marshal(entryBody{
			ID:        e.ID,
			TimeMilli: e.Time.UnixMilli(),
			Kind:      string(e.Kind),
			Note:      e.Note,
		})
		if err != nil {
			f.Close()
			return errors.New(errors.CodeInternal, "encoding journal entry", err)
		}
		line, err := j.cipher.Seal(raw)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.WriteString(line + "\n"); err != nil {
			f.Close()
			return errors.New(errors.CodeStorage, "rewriting journal", err)
		}
	}
	if err := f.Close(); err != nil {
		return errors.New(errors.CodeStorage, "closing journal temp file", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return errors.New(errors.CodeStorage, "replacing journal", err)
	}
	return nil
}

// Clear truncates the journal. Callers gate this on sandbox mode; the
// journal itself never refuses its owner.
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := os.Stat(j.path); os.IsNotExist(err) {
		return nil
	}
	if err := os.Truncate(j.path, 0); err != nil {
		return errors.New(errors.CodeStorage, "clearing journal", err)
	}
	return nil
}

// load decrypts every line. A line that fails to open means the wrong
// passphrase or a corrupted file, and either way the caller must know.
func (j *Journal) load() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.loadLocked()
}

func (j *Journal) loadLocked() ([]Entry, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.CodeStorage, "opening journal", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		raw, err := j.cipher.Open(line)
		if err != nil {
			return nil, errors.New(errors.CodeSeal, "opening journal entry", err).
				WithContext("line", lineNo)
		}
		var body entryBody
		if err := cbor.Unmarshal(raw, &body); err != nil {
			return nil, errors.New(errors.CodeSeal, "decoding journal entry", err).
				WithContext("line", lineNo)
		}
		entries = append(entries, Entry{
			ID:   body.ID,
			Time: time.UnixMilli(body.TimeMilli).UTC(),
			Kind: EntryKind(body.Kind),
			Note: body.Note,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "reading journal", err)
	}
	return entries, nil
}
