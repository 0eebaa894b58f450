package audit

import "time"

// Entry represents a persisted audit record for user-visible destructive
// operations (alert purge, watchlist removal). Append-only.
type Entry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"` // alert_purge | watchlist_remove
	TargetID  string    `json:"target_id"`
	Actor     string    `json:"actor,omitempty"`
	Details   string    `json:"details,omitempty"` // raw JSON string
	CreatedAt time.Time `json:"created_at"`
}

const (
	ActionAlertPurge      = "alert_purge"
	ActionWatchlistRemove = "watchlist_remove"
)
