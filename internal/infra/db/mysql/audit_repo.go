package mysql

import (
	"context"
	"database/sql"

	domain "github.com/bryanwahyu/evidence-triage/internal/domain/audit"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append satu baris audit; log ini append-only.
func (r *AuditRepository) Append(ctx context.Context, e *domain.Entry) error {
	const q = `
INSERT INTO audit_log (action, target_id, actor, details_json, created_at)
VALUES (?,?,?,?,?);
`
	res, err := r.db.ExecContext(ctx, q,
		e.Action, e.TargetID, stringOrDash(e.Actor), e.Details, e.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// Latest audit entries, newest first.
func (r *AuditRepository) Latest(ctx context.Context, limit int) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, action, target_id, actor, details_json, created_at
FROM audit_log ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.TargetID, &e.Actor, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = details.String
		out = append(out, &e)
	}
	return out, rows.Err()
}
