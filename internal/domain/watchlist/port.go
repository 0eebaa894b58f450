package watchlist

import (
	"context"
	"errors"
)

// ErrDuplicateEntry indicates (kind, value) is already tracked.
var ErrDuplicateEntry = errors.New("watchlist entry already exists")

// ErrNotFound indicates the entry id is unknown.
var ErrNotFound = errors.New("watchlist entry not found")

// ErrValidation wraps rejected input (bad kind, empty value).
var ErrValidation = errors.New("validation failed")

// Repository port (interface untuk persistence). The in-memory index in the
// application layer is rebuilt from List at startup.
type Repository interface {
	Save(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id EntryID) error
	UpdateStatus(ctx context.Context, id EntryID, status Status) error
	TouchActivity(ctx context.Context, id EntryID) error
	List(ctx context.Context, kind Kind) ([]*Entry, error)
}
