package partition

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/sealed"
)

const partitionTable = "partitions"

// SQLiteStore persists partitions in a SQLite database. Bytes pass through
// the class cipher before insertion, same contract as FileStore.
type SQLiteStore struct {
	vault   *Vault
	locks   *keyLocks
	db      *sql.DB
	ciphers map[core.PartitionClass]sealed.Cipher
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteCipher seals one partition class with the given cipher at rest.
func WithSQLiteCipher(class core.PartitionClass, c sealed.Cipher) SQLiteOption {
	return func(s *SQLiteStore) {
		s.ciphers[class] = c
	}
}

// NewSQLiteStore creates a SQLite-backed partition store and ensures schema.
func NewSQLiteStore(db *sql.DB, vault *Vault, opts ...SQLiteOption) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensurePartitionSchema(db); err != nil {
		return nil, errors.New(errors.CodeStorage, "ensuring partition schema", err)
	}

	s := &SQLiteStore{
		vault:   vault,
		locks:   newKeyLocks(),
		db:      db,
		ciphers: make(map[core.PartitionClass]sealed.Cipher),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ensurePartitionSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + partitionTable + ` (
			key TEXT PRIMARY KEY,
			class TEXT NOT NULL,
			owner TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + partitionTable + `_class ON ` + partitionTable + `(class);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) cipherFor(class core.PartitionClass) (sealed.Cipher, error) {
	if c, ok := s.ciphers[class]; ok {
		return c, nil
	}
	if class == core.PartitionSandbox {
		return nil, errors.New(errors.CodeSeal, "sandbox partitions require a configured cipher", nil)
	}
	return sealed.NoopCipher{}, nil
}

// Read returns the partition bytes.
func (s *SQLiteStore) Read(ctx context.Context, id core.PartitionID, tok Token) ([]byte, error) {
	if err := s.vault.Consume(tok, id, OpRead); err != nil {
		return nil, err
	}
	cipher, err := s.cipherFor(id.Class)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM `+partitionTable+` WHERE key = ?`, id.Key())
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.CodePartitionNotFound, "partition not found", nil).
				WithContext("partition", id.Key())
		}
		return nil, errors.New(errors.CodeStorage, "reading partition row", err).
			WithContext("partition", id.Key())
	}
	return cipher.Open(data)
}

// Write replaces the partition bytes, creating the partition on first use.
func (s *SQLiteStore) Write(ctx context.Context, id core.PartitionID, tok Token, data []byte) error {
	if err := s.vault.Consume(tok, id, OpWrite); err != nil {
		return err
	}
	cipher, err := s.cipherFor(id.Class)
	if err != nil {
		return err
	}

	lock := s.locks.get(id.Key())
	lock.Lock()
	defer lock.Unlock()

	sealedData, err := cipher.Seal(data)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+partitionTable+` (key, class, owner, data, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id.Key(), string(id.Class), id.Owner, sealedData, time.Now().UnixMilli())
	if err != nil {
		return errors.New(errors.CodeStorage, "upserting partition row", err).
			WithContext("partition", id.Key())
	}
	return nil
}
