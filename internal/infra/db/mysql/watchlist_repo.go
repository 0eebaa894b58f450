package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	domain "github.com/bryanwahyu/evidence-triage/internal/domain/watchlist"
)

type WatchlistRepository struct {
	db    *sql.DB
	clock func() time.Time
}

func NewWatchlistRepository(db *sql.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db, clock: time.Now}
}

// Save insert entry baru. Unique key (kind, value) menjaga invariant.
func (r *WatchlistRepository) Save(ctx context.Context, e *domain.Entry) error {
	const q = `
INSERT INTO watchlist_entries (id, kind, value, status, added_at, last_activity)
VALUES (?,?,?,?,?,?);
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.Kind, e.Value, e.Status, e.AddedAt, nullTime(e.LastActivity))
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return domain.ErrDuplicateEntry
	}
	return err
}

func (r *WatchlistRepository) Delete(ctx context.Context, id domain.EntryID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watchlist_entries WHERE id=?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *WatchlistRepository) UpdateStatus(ctx context.Context, id domain.EntryID, status domain.Status) error {
	res, err := r.db.ExecContext(ctx, `UPDATE watchlist_entries SET status=? WHERE id=?;`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TouchActivity stempel waktu hit terakhir
func (r *WatchlistRepository) TouchActivity(ctx context.Context, id domain.EntryID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE watchlist_entries SET last_activity=? WHERE id=?;`, r.clock(), id)
	return err
}

// List entries of one kind, or everything when kind is empty.
func (r *WatchlistRepository) List(ctx context.Context, kind domain.Kind) ([]*domain.Entry, error) {
	q := `SELECT id, kind, value, status, added_at, last_activity FROM watchlist_entries`
	var args []interface{}
	if kind != "" {
		q += " WHERE kind = ?"
		args = append(args, kind)
	}
	q += " ORDER BY added_at DESC;"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		var last sql.NullTime
		if err := rows.Scan(&e.ID, &e.Kind, &e.Value, &e.Status, &e.AddedAt, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			e.LastActivity = last.Time
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
