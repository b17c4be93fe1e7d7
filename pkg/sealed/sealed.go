// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for the two places the core encrypts
// at rest: sandbox-class partition bytes and the Captain's Log journal.
// Both are sealed to a passphrase-derived key (age scrypt), so sandbox
// bytes are never retrievable without the sandbox passphrase.
//
// Ciphertext is base64-encoded; callers pass plaintext []byte in and get
// base64 strings out, and vice versa for opening.
package sealed

import (
	"bytes"
	"encoding/base64"
	"io"

	"filippo.io/age"

	"github.com/primus-os/primus/pkg/errors"
)

// Cipher seals and opens byte blobs. The core is agnostic to the concrete
// cipher; it only requires that sealed bytes are unreadable without the key.
type Cipher interface {
	Seal(plaintext []byte) (string, error)
	Open(ciphertext string) ([]byte, error)
}

// PassphraseCipher seals to an age scrypt recipient derived from a
// passphrase.
type PassphraseCipher struct {
	recipient *age.ScryptRecipient
	identity  *age.ScryptIdentity
}

// NewPassphraseCipher derives a cipher from the sandbox passphrase.
func NewPassphraseCipher(passphrase string) (*PassphraseCipher, error) {
	if passphrase == "" {
		return nil, errors.New(errors.CodeSeal, "passphrase must not be empty", nil)
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, errors.New(errors.CodeSeal, "deriving scrypt recipient", err)
	}
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, errors.New(errors.CodeSeal, "deriving scrypt identity", err)
	}
	return &PassphraseCipher{recipient: recipient, identity: identity}, nil
}

// SetWorkFactor lowers or raises the scrypt work factor (log2 of N).
// Tests use a low factor; the default is age's production setting.
func (c *PassphraseCipher) SetWorkFactor(logN int) {
	c.recipient.SetWorkFactor(logN)
}

// Seal encrypts plaintext and returns standard base64 ciphertext.
func (c *PassphraseCipher) Seal(plaintext []byte) (string, error) {
	var ciphertext bytes.Buffer
	w, err := age.Encrypt(&ciphertext, c.recipient)
	if err != nil {
		return "", errors.New(errors.CodeSeal, "creating age encryptor", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", errors.New(errors.CodeSeal, "writing plaintext", err)
	}
	if err := w.Close(); err != nil {
		return "", errors.New(errors.CodeSeal, "finalizing encryption", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Open decrypts base64 ciphertext produced by Seal.
func (c *PassphraseCipher) Open(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, errors.New(errors.CodeSeal, "decoding base64 ciphertext", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), c.identity)
	if err != nil {
		return nil, errors.New(errors.CodeSeal, "decrypting", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New(errors.CodeSeal, "reading decrypted plaintext", err)
	}
	return plaintext, nil
}

// NoopCipher passes bytes through unchanged. Non-sandbox partition classes
// use it when no at-rest encryption is configured.
type NoopCipher struct{}

// Seal returns the plaintext base64-encoded so both ciphers share a
// storage representation.
func (NoopCipher) Seal(plaintext []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(plaintext), nil
}

// Open reverses Seal.
func (NoopCipher) Open(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, errors.New(errors.CodeSeal, "decoding base64", err)
	}
	return raw, nil
}
