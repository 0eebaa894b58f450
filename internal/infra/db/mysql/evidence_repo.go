package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

type EvidenceRepository struct {
	db *sql.DB
}

func NewEvidenceRepository(db *sql.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// Append insert satu evidence record; log ini append-only, tidak ada UPDATE.
func (r *EvidenceRepository) Append(ctx context.Context, item *domain.Item) error {
	const q = `
INSERT INTO evidence_items
(id, source_batch_id, payload_ref, category, confidence, extracted_fields, ingested_at)
VALUES (?,?,?,?,?,?,?);
`
	fields, err := json.Marshal(item.ExtractedFields)
	if err != nil {
		return fmt.Errorf("encoding extracted fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q,
		item.ID, item.SourceBatchID, item.PayloadRef,
		item.Category, item.Confidence, string(fields), item.IngestedAt,
	)
	return err
}

// Get by ID
func (r *EvidenceRepository) Get(ctx context.Context, id domain.ID) (*domain.Item, error) {
	const q = `
SELECT id, source_batch_id, payload_ref, category, confidence, extracted_fields, ingested_at
FROM evidence_items
WHERE id=? LIMIT 1;
`
	return scanEvidence(r.db.QueryRowContext(ctx, q, id))
}

// GetMany loads a set of items in one query.
func (r *EvidenceRepository) GetMany(ctx context.Context, ids []domain.ID) ([]*domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `
SELECT id, source_batch_id, payload_ref, category, confidence, extracted_fields, ingested_at
FROM evidence_items
WHERE id IN (` + placeholders + `);`

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvidence(rows)
}

// ByBatch lists everything a batch produced, failures included.
func (r *EvidenceRepository) ByBatch(ctx context.Context, batch domain.BatchID) ([]*domain.Item, error) {
	const q = `
SELECT id, source_batch_id, payload_ref, category, confidence, extracted_fields, ingested_at
FROM evidence_items
WHERE source_batch_id=? ORDER BY ingested_at;
`
	rows, err := r.db.QueryContext(ctx, q, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvidence(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvidence(row rowScanner) (*domain.Item, error) {
	var it domain.Item
	var fields string
	if err := row.Scan(
		&it.ID, &it.SourceBatchID, &it.PayloadRef,
		&it.Category, &it.Confidence, &fields, &it.IngestedAt,
	); err != nil {
		return nil, err
	}
	if fields != "" && fields != "null" {
		if err := json.Unmarshal([]byte(fields), &it.ExtractedFields); err != nil {
			return nil, fmt.Errorf("decoding extracted fields: %w", err)
		}
	}
	return &it, nil
}

func collectEvidence(rows *sql.Rows) ([]*domain.Item, error) {
	var out []*domain.Item
	for rows.Next() {
		it, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
