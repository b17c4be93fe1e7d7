package mode

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

const approvalTable = "approvals"

// SQLiteApprovalStore persists approvals in a SQLite database.
type SQLiteApprovalStore struct {
	db *sql.DB
}

// NewSQLiteApprovalStore creates a SQLite-backed approval store and
// ensures schema.
func NewSQLiteApprovalStore(db *sql.DB) (*SQLiteApprovalStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureApprovalSchema(db); err != nil {
		return nil, errors.New(errors.CodeStorage, "ensuring approval schema", err)
	}
	return &SQLiteApprovalStore{db: db}, nil
}

func ensureApprovalSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			action_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`, approvalTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_actor_status ON %s(actor_id, status);`, approvalTable, approvalTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts an approval.
func (s *SQLiteApprovalStore) Create(ctx context.Context, a Approval) (Approval, error) {
	if a.ActorID == "" {
		return Approval{}, errors.New(errors.CodeInvalidInput, "actor_id is required", nil)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = ApprovalStatusPending
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	payload, err := json.Marshal(a.Action)
	if err != nil {
		return Approval{}, errors.New(errors.CodeInternal, "encoding approval action", err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, actor_id, kind, status, reason, action_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", approvalTable),
		a.ID, a.ActorID, string(a.Kind), string(a.Status), a.Reason, payload, a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli())
	if err != nil {
		return Approval{}, errors.New(errors.CodeStorage, "inserting approval", err)
	}
	return s.Get(ctx, a.ID)
}

// Get returns an approval by id.
func (s *SQLiteApprovalStore) Get(ctx context.Context, id string) (Approval, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, actor_id, kind, status, reason, action_json, created_at, updated_at FROM %s WHERE id = ?", approvalTable),
		id,
	)
	a, err := scanApproval(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return Approval{}, errors.New(errors.CodeApprovalNotFound, "approval not found", nil).
				WithContext("approval_id", id)
		}
		return Approval{}, err
	}
	return a, nil
}

// List returns approvals matching the filter.
func (s *SQLiteApprovalStore) List(ctx context.Context, filter ApprovalFilter) ([]Approval, error) {
	where := "1=1"
	args := make([]any, 0)
	if filter.ActorID != "" {
		where += " AND actor_id = ?"
		args = append(args, filter.ActorID)
	}
	if filter.Kind != "" {
		where += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	limit := ""
	if filter.Limit > 0 {
		limit = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	query := fmt.Sprintf("SELECT id, actor_id, kind, status, reason, action_json, created_at, updated_at FROM %s WHERE %s ORDER BY created_at ASC%s", approvalTable, where, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "querying approvals", err)
	}
	defer rows.Close()

	out := make([]Approval, 0)
	for rows.Next() {
		a, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus updates approval status and reason.
func (s *SQLiteApprovalStore) UpdateStatus(ctx context.Context, id string, status ApprovalStatus, reason string) (Approval, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET status = ?, reason = ?, updated_at = ? WHERE id = ?", approvalTable),
		string(status), reason, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return Approval{}, errors.New(errors.CodeStorage, "updating approval", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Approval{}, errors.New(errors.CodeApprovalNotFound, "approval not found", nil).
			WithContext("approval_id", id)
	}
	return s.Get(ctx, id)
}

func scanApproval(scan func(dest ...any) error) (Approval, error) {
	var (
		a           Approval
		kind        string
		status      string
		reason      sql.NullString
		actionJSON  []byte
		createdAtMs int64
		updatedAtMs int64
	)
	if err := scan(&a.ID, &a.ActorID, &kind, &status, &reason, &actionJSON, &createdAtMs, &updatedAtMs); err != nil {
		if err == sql.ErrNoRows {
			return Approval{}, err
		}
		return Approval{}, errors.New(errors.CodeStorage, "scanning approval", err)
	}
	a.Kind = core.ActionKind(kind)
	a.Status = ApprovalStatus(status)
	a.Reason = reason.String
	a.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	a.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	if len(actionJSON) > 0 {
		if err := json.Unmarshal(actionJSON, &a.Action); err != nil {
			return Approval{}, errors.New(errors.CodeStorage, "decoding approval action", err)
		}
	}
	return a, nil
}
