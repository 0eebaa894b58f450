package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/evidence-triage/internal/domain/alerts"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
	"github.com/bryanwahyu/evidence-triage/internal/domain/watchlist"
)

// AlertRepository is the Postgres variant of the alert store.
type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, fingerprint, severity, category, title, message, source,
       watchlist_hit, status, created_at, updated_at`

func (r *AlertRepository) Create(ctx context.Context, a *domain.Alert) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
INSERT INTO alerts
(id, fingerprint, severity, category, title, message, source, watchlist_hit, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	var hit sql.NullString
	if a.WatchlistHit != "" {
		hit = sql.NullString{String: string(a.WatchlistHit), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, q,
		a.ID, a.Fingerprint, a.Severity, a.Category, a.Title, a.Message, a.Source,
		hit, a.Status, a.CreatedAt, a.UpdatedAt,
	); err != nil {
		return err
	}
	for _, eid := range a.EvidenceIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alert_evidence (alert_id, evidence_id) VALUES ($1,$2);`, a.ID, eid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *AlertRepository) Get(ctx context.Context, id domain.AlertID) (*domain.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts WHERE id=$1 LIMIT 1;`
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

func (r *AlertRepository) FindOpenByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts WHERE fingerprint=$1 AND status<>'resolved' LIMIT 1;`
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

func (r *AlertRepository) AppendEvidence(ctx context.Context, id domain.AlertID, evidenceID evidence.ID, severity domain.Severity, updatedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO alert_evidence (alert_id, evidence_id) VALUES ($1,$2)
ON CONFLICT DO NOTHING;`, id, evidenceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE alerts SET severity=$1, updated_at=$2 WHERE id=$3;`, severity, updatedAt, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *AlertRepository) UpdateStatus(ctx context.Context, id domain.AlertID, status domain.Status, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status=$1, updated_at=$2 WHERE id=$3;`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AlertRepository) Delete(ctx context.Context, id domain.AlertID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_evidence WHERE alert_id=$1;`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM alerts WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

func (r *AlertRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []interface{}
	if f.Status != "" {
		args = append(args, f.Status)
		q += ` AND status = $1`
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		if len(args) == 1 {
			q += ` AND severity = $1`
		} else {
			q += ` AND severity = $2`
		}
	}
	q += ` ORDER BY created_at DESC;`

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
		`SELECT evidence_id FROM alert_evidence WHERE alert_id=$1 ORDER BY evidence_id;`, a.ID)
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
