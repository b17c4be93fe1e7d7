// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package partition

import (
	"context"
	"os"
	"path/filepath"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/sealed"
)

// FileStore persists each partition as one file under
// <baseDir>/<class>/<owner>. Bytes are passed through the class cipher
// before hitting disk; the sandbox class refuses to operate without a real
// cipher so sandbox-private bytes never land in the clear.
type FileStore struct {
	vault   *Vault
	locks   *keyLocks
	baseDir string
	ciphers map[core.PartitionClass]sealed.Cipher
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithCipher seals one partition class with the given cipher at rest.
func WithCipher(class core.PartitionClass, c sealed.Cipher) FileOption {
	return func(f *FileStore) {
		f.ciphers[class] = c
	}
}

// NewFileStore creates the directory layout and returns the store.
func NewFileStore(baseDir string, vault *Vault, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, errors.New(errors.CodeStorage, "creating partition directory", err)
	}

	f := &FileStore{
		vault:   vault,
		locks:   newKeyLocks(),
		baseDir: baseDir,
		ciphers: make(map[core.PartitionClass]sealed.Cipher),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileStore) path(id core.PartitionID) string {
	// filepath.Base on both parts prevents path traversal via crafted ids.
	return filepath.Join(f.baseDir, filepath.Base(string(id.Class)), filepath.Base(id.Owner))
}

func (f *FileStore) cipherFor(class core.PartitionClass) (sealed.Cipher, error) {
	if c, ok := f.ciphers[class]; ok {
		return c, nil
	}
	if class == core.PartitionSandbox {
		return nil, errors.New(errors.CodeSeal, "sandbox partitions require a configured cipher", nil)
	}
	return sealed.NoopCipher{}, nil
}

// Read returns the partition bytes.
func (f *FileStore) Read(_ context.Context, id core.PartitionID, tok Token) ([]byte, error) {
	if err := f.vault.Consume(tok, id, OpRead); err != nil {
		return nil, err
	}
	cipher, err := f.cipherFor(id.Class)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodePartitionNotFound, "partition not found", nil).
				WithContext("partition", id.Key())
		}
		return nil, errors.New(errors.CodeStorage, "reading partition file", err).
			WithContext("partition", id.Key())
	}
	return cipher.Open(string(raw))
}

// Write replaces the partition bytes, creating the partition on first use.
func (f *FileStore) Write(_ context.Context, id core.PartitionID, tok Token, data []byte) error {
	if err := f.vault.Consume(tok, id, OpWrite); err != nil {
		return err
	}
	cipher, err := f.cipherFor(id.Class)
	if err != nil {
		return err
	}

	lock := f.locks.get(id.Key())
	lock.Lock()
	defer lock.Unlock()

	sealedData, err := cipher.Seal(data)
	if err != nil {
		return err
	}

	path := f.path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.New(errors.CodeStorage, "creating class directory", err)
	}

	// Write-then-rename keeps a crashed write from truncating history.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealedData), 0o600); err != nil {
		return errors.New(errors.CodeStorage, "writing partition file", err).
			WithContext("partition", id.Key())
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.New(errors.CodeStorage, "replacing partition file", err).
			WithContext("partition", id.Key())
	}
	return nil
}
