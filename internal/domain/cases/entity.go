package cases

import (
	"time"

	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

// CaseID tipe untuk Case. Sequential, human-readable: CASE-<year>-<seq>.
type CaseID string

// Category enum
type Category string

const (
	CategoryCybercrime Category = "cybercrime"
	CategoryFinancial  Category = "financial"
	CategoryGambling   Category = "gambling"
	CategoryFraud      Category = "fraud"
	CategoryOther      Category = "other"
)

// Priority enum
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Status enum
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusClosed        Status = "closed"
	StatusSuspended     Status = "suspended"
)

// EvidenceLink records one evidence item formally attached to a case.
type EvidenceLink struct {
	CaseID     CaseID      `json:"case_id"`
	EvidenceID evidence.ID `json:"evidence_id"`
	LinkedAt   time.Time   `json:"linked_at"`
	LinkedBy   string      `json:"linked_by"`
}

// Aggregate Root: Case
type Case struct {
	ID              CaseID         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Category        Category       `json:"category"`
	Priority        Priority       `json:"priority"`
	Status          Status         `json:"status"`
	AssignedOfficer string         `json:"assigned_officer,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	EvidenceLinks   []EvidenceLink `json:"evidence_links,omitempty"`
}

// Active reports whether the case still claims its linked evidence.
// Evidence may be re-linked elsewhere only once its case leaves this set.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusInvestigating
}

// transitions is the full state machine. Closed is terminal; the only way
// back from suspended is resume to investigating.
var transitions = map[Status][]Status{
	StatusOpen:          {StatusInvestigating, StatusSuspended},
	StatusInvestigating: {StatusClosed, StatusSuspended},
	StatusSuspended:     {StatusInvestigating},
	StatusClosed:        {},
}

// CanTransition reports whether from → to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidCategory(c Category) bool {
	switch c {
	case CategoryCybercrime, CategoryFinancial, CategoryGambling, CategoryFraud, CategoryOther:
		return true
	}
	return false
}

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusClosed, StatusSuspended:
		return true
	}
	return false
}
