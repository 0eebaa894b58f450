package audit

import "context"

// Repository port for the audit log
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	Latest(ctx context.Context, limit int) ([]*Entry, error)
}
