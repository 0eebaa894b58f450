package watchlist

import "time"

// EntryID tipe untuk WatchlistEntry
type EntryID string

// Kind enum
type Kind string

const (
	KindAccount Kind = "account"
	KindURL     Kind = "url"
	KindKeyword Kind = "keyword"
)

// Status enum
type Status string

const (
	StatusActive       Status = "active"
	StatusFlagged      Status = "flagged"
	StatusInvestigated Status = "investigated"
)

// Entry is a tracked account, URL or keyword. Value is unique within its Kind.
type Entry struct {
	ID           EntryID   `json:"id"`
	Kind         Kind      `json:"kind"`
	Value        string    `json:"value"`
	Status       Status    `json:"status"`
	AddedAt      time.Time `json:"added_at"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// Hot reports whether a hit on this entry should escalate severity.
// Investigated entries still match but no longer escalate.
func (e *Entry) Hot() bool {
	return e.Status == StatusActive || e.Status == StatusFlagged
}

func ValidKind(k Kind) bool {
	switch k {
	case KindAccount, KindURL, KindKeyword:
		return true
	}
	return false
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusFlagged, StatusInvestigated:
		return true
	}
	return false
}
