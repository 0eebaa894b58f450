package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	domain "github.com/bryanwahyu/evidence-triage/internal/domain/cases"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

type CaseLedger struct {
	db *sql.DB
}

func NewCaseLedger(db *sql.DB) *CaseLedger {
	return &CaseLedger{db: db}
}

const caseColumns = `id, title, description, category, priority, status, assigned_officer, created_at, updated_at`

// Create allocates the next human-readable id (CASE-<year>-<seq>) and
// inserts the case, one transaction. The per-year counter row uses the
// LAST_INSERT_ID upsert trick so two concurrent creates never collide.
func (l *CaseLedger) Create(ctx context.Context, c *domain.Case) (domain.CaseID, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	year := c.CreatedAt.Year()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO case_counters (year, seq) VALUES (?, LAST_INSERT_ID(1))
ON DUPLICATE KEY UPDATE seq = LAST_INSERT_ID(seq + 1);`, year); err != nil {
		return "", err
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT LAST_INSERT_ID();`).Scan(&seq); err != nil {
		return "", err
	}
	id := domain.CaseID(fmt.Sprintf("CASE-%d-%04d", year, seq))

	const q = `
INSERT INTO cases
(id, title, description, category, priority, status, assigned_officer, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?);
`
	if _, err := tx.ExecContext(ctx, q,
		id, c.Title, c.Description, c.Category, c.Priority, c.Status,
		stringOrDash(c.AssignedOfficer), c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	c.ID = id
	return id, nil
}

// Get by ID, termasuk evidence links
func (l *CaseLedger) Get(ctx context.Context, id domain.CaseID) (*domain.Case, error) {
	const q = `SELECT ` + caseColumns + ` FROM cases WHERE id=? LIMIT 1;`
	c, err := scanCase(l.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	links, err := l.links(ctx, id)
	if err != nil {
		return nil, err
	}
	c.EvidenceLinks = links
	return c, nil
}

// List cases, optionally by status, newest first.
func (l *CaseLedger) List(ctx context.Context, status domain.Status) ([]*domain.Case, error) {
	q := `SELECT ` + caseColumns + ` FROM cases`
	var args []interface{}
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	q += " ORDER BY created_at DESC;"

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateStatus hanya update kolom status; validasi state machine terjadi di
// application layer.
func (l *CaseLedger) UpdateStatus(ctx context.Context, id domain.CaseID, status domain.Status, updatedAt time.Time) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE cases SET status=?, updated_at=? WHERE id=?;`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AttachEvidence links the whole batch or nothing. Inside one serializable
// transaction it locks the link rows of the requested evidence, rejects any
// id held by a different open/investigating case, then inserts.
func (l *CaseLedger) AttachEvidence(ctx context.Context, id domain.CaseID, links []domain.EvidenceLink) error {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids := make([]interface{}, 0, len(links))
	for _, ln := range links {
		ids = append(ids, ln.EvidenceID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `
SELECT l.evidence_id, l.case_id
FROM case_evidence_links l
JOIN cases c ON c.id = l.case_id
WHERE l.evidence_id IN (` + placeholders + `)
  AND c.status IN ('open','investigating')
FOR UPDATE;`

	rows, err := tx.QueryContext(ctx, q, ids...)
	if err != nil {
		return conflictErr(err)
	}
	for rows.Next() {
		var eid evidence.ID
		var holder domain.CaseID
		if err := rows.Scan(&eid, &holder); err != nil {
			rows.Close()
			return err
		}
		if holder != id {
			rows.Close()
			return &domain.EvidenceAlreadyLinkedError{EvidenceID: eid, HeldBy: holder}
		}
	}
	if err := rows.Close(); err != nil {
		return conflictErr(err)
	}

	for _, ln := range links {
		if _, err := tx.ExecContext(ctx, `
INSERT IGNORE INTO case_evidence_links (case_id, evidence_id, linked_at, linked_by)
VALUES (?,?,?,?);`, ln.CaseID, ln.EvidenceID, ln.LinkedAt, stringOrDash(ln.LinkedBy)); err != nil {
			return conflictErr(err)
		}
	}
	return conflictErr(tx.Commit())
}

// conflictErr maps MySQL deadlock (1213) and lock wait timeout (1205) onto
// ErrConflict so the application layer can retry the attach. The server
// reports both on the losing statement, not on COMMIT.
func conflictErr(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == 1213 || myErr.Number == 1205) {
		return domain.ErrConflict
	}
	return err
}

// ActiveLinkHolder reports which open/investigating case currently holds the
// evidence, if any.
func (l *CaseLedger) ActiveLinkHolder(ctx context.Context, evidenceID evidence.ID) (domain.CaseID, bool, error) {
	const q = `
SELECT l.case_id
FROM case_evidence_links l
JOIN cases c ON c.id = l.case_id
WHERE l.evidence_id=? AND c.status IN ('open','investigating')
LIMIT 1;`
	var holder domain.CaseID
	err := l.db.QueryRowContext(ctx, q, evidenceID).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return holder, true, nil
}

func (l *CaseLedger) links(ctx context.Context, id domain.CaseID) ([]domain.EvidenceLink, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT case_id, evidence_id, linked_at, linked_by
FROM case_evidence_links
WHERE case_id=? ORDER BY linked_at;`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EvidenceLink
	for rows.Next() {
		var ln domain.EvidenceLink
		if err := rows.Scan(&ln.CaseID, &ln.EvidenceID, &ln.LinkedAt, &ln.LinkedBy); err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, rows.Err()
}

func scanCase(row rowScanner) (*domain.Case, error) {
	var c domain.Case
	if err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Category, &c.Priority, &c.Status,
		&c.AssignedOfficer, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
