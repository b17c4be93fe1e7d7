// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package partition

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/sealed"
)

// roundTrip exercises the Store contract shared by every backend.
func roundTrip(t *testing.T, v *Vault, s Store) {
	t.Helper()
	ctx := context.Background()
	p := core.PartitionID{Owner: "agent-1", Class: core.PartitionAgent}

	// Reading a never-written partition fails.
	tok := v.Issue("act-0", p, OpRead)
	if _, err := s.Read(ctx, p, tok); !errors.HasCode(err, errors.CodePartitionNotFound) {
		t.Fatalf("read of missing partition: got %v, want PARTITION_NOT_FOUND", err)
	}

	// Write creates, read returns the bytes.
	tok = v.Issue("act-1", p, OpWrite)
	if err := s.Write(ctx, p, tok, []byte("session history")); err != nil {
		t.Fatalf("write: %v", err)
	}
	tok = v.Issue("act-2", p, OpRead)
	got, err := s.Read(ctx, p, tok)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "session history" {
		t.Errorf("read = %q", got)
	}

	// A consumed token cannot be replayed.
	if _, err := s.Read(ctx, p, tok); !errors.HasCode(err, errors.CodeTokenInvalid) {
		t.Errorf("token replay: got %v, want TOKEN_INVALID", err)
	}

	// A read token cannot write.
	tok = v.Issue("act-3", p, OpRead)
	if err := s.Write(ctx, p, tok, []byte("x")); !errors.HasCode(err, errors.CodeTokenInvalid) {
		t.Errorf("read token used for write: got %v, want TOKEN_INVALID", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	v := NewVault()
	roundTrip(t, v, NewMemoryStore(v))
}

func TestFileStoreContract(t *testing.T) {
	v := NewVault()
	s, err := NewFileStore(t.TempDir(), v)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	roundTrip(t, v, s)
}

func TestSQLiteStoreContract(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	v := NewVault()
	s, err := NewSQLiteStore(db, v)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	roundTrip(t, v, s)
}

func TestFileStoreSandboxRequiresCipher(t *testing.T) {
	v := NewVault()
	s, err := NewFileStore(t.TempDir(), v)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	p := core.PartitionID{Owner: "box-1", Class: core.PartitionSandbox}
	tok := v.Issue("act-1", p, OpWrite)
	if err := s.Write(context.Background(), p, tok, []byte("secret")); !errors.HasCode(err, errors.CodeSeal) {
		t.Errorf("sandbox write without cipher: got %v, want SEAL_ERROR", err)
	}
}

func TestFileStoreSealsSandboxBytes(t *testing.T) {
	cipher, err := sealed.NewPassphraseCipher("log-entry-one")
	if err != nil {
		t.Fatalf("NewPassphraseCipher: %v", err)
	}
	cipher.SetWorkFactor(10)

	dir := t.TempDir()
	v := NewVault()
	s, err := NewFileStore(dir, v, WithCipher(core.PartitionSandbox, cipher))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	p := core.PartitionID{Owner: "box-1", Class: core.PartitionSandbox}
	plaintext := "what happened out there stays here"

	tok := v.Issue("act-1", p, OpWrite)
	if err := s.Write(ctx, p, tok, []byte(plaintext)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Disk bytes must not contain the plaintext.
	raw, err := os.ReadFile(filepath.Join(dir, "sandbox", "box-1"))
	if err != nil {
		t.Fatalf("reading raw file: %v", err)
	}
	if strings.Contains(string(raw), plaintext) {
		t.Error("sandbox partition stored in the clear")
	}

	tok = v.Issue("act-2", p, OpRead)
	got, err := s.Read(ctx, p, tok)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != plaintext {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestFileStoreSanitizesOwner(t *testing.T) {
	dir := t.TempDir()
	v := NewVault()
	s, err := NewFileStore(dir, v)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	p := core.PartitionID{Owner: "../../etc/passwd", Class: core.PartitionAgent}
	tok := v.Issue("act-1", p, OpWrite)
	if err := s.Write(context.Background(), p, tok, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "agent", "passwd")); err != nil {
		t.Errorf("sanitized file missing: %v", err)
	}
}
