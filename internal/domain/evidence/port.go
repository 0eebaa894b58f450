package evidence

import "context"

// Repository port (append-only evidence log). Items are written exactly once
// per payload, success or failure, and never updated afterwards.
type Repository interface {
	Append(ctx context.Context, item *Item) error
	Get(ctx context.Context, id ID) (*Item, error)
	GetMany(ctx context.Context, ids []ID) ([]*Item, error)
	ByBatch(ctx context.Context, batch BatchID) ([]*Item, error)
}
