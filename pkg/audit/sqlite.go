package audit

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

const auditTable = "audit_records"

// SQLiteLog persists audit records in a SQLite database. Appends serialize
// on one mutex because each digest depends on the previous record.
type SQLiteLog struct {
	db *sql.DB

	mu         sync.Mutex
	lastSeq    uint64
	lastDigest []byte
}

// NewSQLiteLog creates a SQLite-backed audit log and ensures schema. The
// chain head is loaded from the existing table so appends continue a prior
// run's chain.
func NewSQLiteLog(db *sql.DB) (*SQLiteLog, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureAuditSchema(db); err != nil {
		return nil, errors.New(errors.CodeStorage, "ensuring audit schema", err)
	}

	l := &SQLiteLog{db: db}
	row := db.QueryRow(`SELECT seq, digest FROM ` + auditTable + ` ORDER BY seq DESC LIMIT 1`)
	var seq uint64
	var digest []byte
	switch err := row.Scan(&seq, &digest); err {
	case nil:
		l.lastSeq = seq
		l.lastDigest = digest
	case sql.ErrNoRows:
		// empty log
	default:
		return nil, errors.New(errors.CodeStorage, "loading audit chain head", err)
	}
	return l, nil
}

func ensureAuditSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + auditTable + ` (
			seq INTEGER PRIMARY KEY,
			ts INTEGER NOT NULL,
			actor_id TEXT NOT NULL,
			actor_kind TEXT NOT NULL,
			action_kind TEXT NOT NULL,
			decision TEXT NOT NULL,
			mode TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			digest BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + auditTable + `_actor ON ` + auditTable + `(actor_id);`,
		`CREATE INDEX IF NOT EXISTS idx_` + auditTable + `_ts ON ` + auditTable + `(ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append assigns Seq and Digest and inserts the record.
func (l *SQLiteLog) Append(ctx context.Context, r Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r.Seq = l.lastSeq + 1
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}

	digest, err := chainDigest(l.lastDigest, r)
	if err != nil {
		return Record{}, err
	}
	r.Digest = digest

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO `+auditTable+` (seq, ts, actor_id, actor_kind, action_kind, decision, mode, rule_id, reason, digest)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Seq, r.Time.UnixMilli(), r.ActorID, string(r.ActorKind), string(r.ActionKind),
		string(r.Decision), string(r.Mode), r.RuleID, r.Reason, r.Digest)
	if err != nil {
		return Record{}, errors.New(errors.CodeStorage, "inserting audit record", err)
	}

	l.lastSeq = r.Seq
	l.lastDigest = r.Digest
	return r, nil
}

// Tail returns the last n records in append order.
func (l *SQLiteLog) Tail(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, ts, actor_id, actor_kind, action_kind, decision, mode, rule_id, reason, digest
		 FROM `+auditTable+` ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "querying audit tail", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ts int64
		var actorKind, actionKind, decision, mode string
		if err := rows.Scan(&r.Seq, &ts, &r.ActorID, &actorKind, &actionKind, &decision, &mode, &r.RuleID, &r.Reason, &r.Digest); err != nil {
			return nil, errors.New(errors.CodeStorage, "scanning audit record", err)
		}
		r.Time = time.UnixMilli(ts).UTC()
		r.ActorKind = core.ActorKind(actorKind)
		r.ActionKind = core.ActionKind(actionKind)
		r.Decision = core.DecisionStatus(decision)
		r.Mode = core.Mode(mode)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "iterating audit records", err)
	}

	// rows arrive newest-first; flip to append order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Len returns the number of records.
func (l *SQLiteLog) Len(ctx context.Context) (int, error) {
	row := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+auditTable)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, errors.New(errors.CodeStorage, "counting audit records", err)
	}
	return n, nil
}

// Verify walks the persisted chain and reports the first break.
func (l *SQLiteLog) Verify(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, ts, actor_id, actor_kind, action_kind, decision, mode, rule_id, reason, digest
		 FROM `+auditTable+` ORDER BY seq ASC`)
	if err != nil {
		return errors.New(errors.CodeStorage, "querying audit records", err)
	}
	defer rows.Close()

	var prev []byte
	for rows.Next() {
		var r Record
		var ts int64
		var actorKind, actionKind, decision, mode string
		if err := rows.Scan(&r.Seq, &ts, &r.ActorID, &actorKind, &actionKind, &decision, &mode, &r.RuleID, &r.Reason, &r.Digest); err != nil {
			return errors.New(errors.CodeStorage, "scanning audit record", err)
		}
		r.Time = time.UnixMilli(ts).UTC()
		r.ActorKind = core.ActorKind(actorKind)
		r.ActionKind = core.ActionKind(actionKind)
		r.Decision = core.DecisionStatus(decision)
		r.Mode = core.Mode(mode)

		want, err := chainDigest(prev, r)
		if err != nil {
			return err
		}
		if !bytesEqual(want, r.Digest) {
			return errors.New(errors.CodeInternal, "audit chain broken", nil).
				WithContext("seq", r.Seq)
		}
		prev = r.Digest
	}
	return rows.Err()
}
