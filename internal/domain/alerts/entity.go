package alerts

import (
	"time"

	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
	"github.com/bryanwahyu/evidence-triage/internal/domain/watchlist"
)

// AlertID tipe untuk Alert
type AlertID string

// Fingerprint is a stable key for the real-world entity behind an alert.
// Items sharing a fingerprint dedup-merge into one alert.
type Fingerprint string

// Severity enum
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Status enum
type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusResolved Status = "resolved"
)

// Source of the evidence that raised the alert
const (
	SourceOCR       = "ocr"
	SourceCrawler   = "crawler"
	SourceWatchlist = "watchlist"
)

// Aggregate Root: Alert. Created by correlation, grown by dedup merges,
// resolved (never deleted) in the normal lifecycle; purge is a separate
// audited operation.
type Alert struct {
	ID           AlertID             `json:"id"`
	Fingerprint  Fingerprint         `json:"fingerprint"`
	Severity     Severity            `json:"severity"`
	Category     evidence.Category   `json:"category"`
	Title        string              `json:"title"`
	Message      string              `json:"message"`
	Source       string              `json:"source"`
	EvidenceIDs  []evidence.ID       `json:"evidence_ids"`
	WatchlistHit watchlist.EntryID   `json:"watchlist_hit,omitempty"`
	Status       Status              `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// severityRank untuk max-merge saat dedup
var severityRank = map[Severity]int{
	SeverityLow:    0,
	SeverityMedium: 1,
	SeverityHigh:   2,
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// HasEvidence reports whether id is already in the evidence set.
func (a *Alert) HasEvidence(id evidence.ID) bool {
	for _, e := range a.EvidenceIDs {
		if e == id {
			return true
		}
	}
	return false
}
