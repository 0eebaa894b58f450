package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/evidence-triage/internal/domain/alerts"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
	"github.com/bryanwahyu/evidence-triage/internal/domain/watchlist"
)

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, fingerprint, severity, category, title, message, source,
       watchlist_hit, status, created_at, updated_at`

// Create insert alert baru plus baris evidence pertamanya, satu transaksi.
func (r *AlertRepository) Create(ctx context.Context, a *domain.Alert) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
INSERT INTO alerts
(id, fingerprint, severity, category, title, message, source, watchlist_hit, status, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?);
`
	if _, err := tx.ExecContext(ctx, q,
		a.ID, a.Fingerprint, a.Severity, a.Category, a.Title, a.Message, a.Source,
		nullString(string(a.WatchlistHit)), a.Status, a.CreatedAt, a.UpdatedAt,
	); err != nil {
		return err
	}
	for _, eid := range a.EvidenceIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alert_evidence (alert_id, evidence_id) VALUES (?,?);`, a.ID, eid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get by ID, termasuk evidence set
func (r *AlertRepository) Get(ctx context.Context, id domain.AlertID) (*domain.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts WHERE id=? LIMIT 1;`
	a, err := scanAlert(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadEvidence(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// FindOpenByFingerprint returns the unresolved alert holding the
// fingerprint, or nil when none exists.
func (r *AlertRepository) FindOpenByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts WHERE fingerprint=? AND status<>'resolved' LIMIT 1;`
	a, err := scanAlert(r.db.QueryRowContext(ctx, q, fp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadEvidence(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AppendEvidence dedup-merge: tambah evidence id dan naikkan severity/updated_at.
func (r *AlertRepository) AppendEvidence(ctx context.Context, id domain.AlertID, evidenceID evidence.ID, severity domain.Severity, updatedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO alert_evidence (alert_id, evidence_id) VALUES (?,?);`, id, evidenceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE alerts SET severity=?, updated_at=? WHERE id=?;`, severity, updatedAt, id); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateStatus hanya update kolom status
func (r *AlertRepository) UpdateStatus(ctx context.Context, id domain.AlertID, status domain.Status, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status=?, updated_at=? WHERE id=?;`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete is the audited purge path; evidence rows cascade.
func (r *AlertRepository) Delete(ctx context.Context, id domain.AlertID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_evidence WHERE alert_id=?;`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM alerts WHERE id=?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

// List alerts matching the filter, newest first.
func (r *AlertRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []interface{}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		q += " AND severity = ?"
		args = append(args, f.Severity)
	}
	q += " ORDER BY created_at DESC;"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, a := range out {
		if err := r.loadEvidence(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *AlertRepository) loadEvidence(ctx context.Context, a *domain.Alert) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT evidence_id FROM alert_evidence WHERE alert_id=? ORDER BY evidence_id;`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var eid evidence.ID
		if err := rows.Scan(&eid); err != nil {
			return err
		}
		a.EvidenceIDs = append(a.EvidenceIDs, eid)
	}
	return rows.Err()
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var hit sql.NullString
	if err := row.Scan(
		&a.ID, &a.Fingerprint, &a.Severity, &a.Category, &a.Title, &a.Message, &a.Source,
		&hit, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if hit.Valid {
		a.WatchlistHit = watchlist.EntryID(hit.String)
	}
	return &a, nil
}
