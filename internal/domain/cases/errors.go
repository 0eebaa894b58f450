package cases

import (
	"errors"
	"fmt"

	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

var (
	// ErrNotFound indicates the case id is unknown.
	ErrNotFound = errors.New("case not found")
	// ErrCaseClosed rejects evidence attachment to a closed case.
	ErrCaseClosed = errors.New("case is closed")
	// ErrEmptySelection rejects attach/create calls with no evidence ids.
	ErrEmptySelection = errors.New("empty evidence selection")
	// ErrValidation wraps rejected input (bad category, unknown evidence id).
	ErrValidation = errors.New("validation failed")
	// ErrConflict surfaces after an internal retry of a concurrent attach race.
	ErrConflict = errors.New("concurrent modification conflict")
)

// InvalidTransitionError names the rejected edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid case transition: %s -> %s", e.From, e.To)
}

// EvidenceAlreadyLinkedError rejects a batch attach when any id is held by
// another open/investigating case. The whole batch fails.
type EvidenceAlreadyLinkedError struct {
	EvidenceID evidence.ID
	HeldBy     CaseID
}

func (e *EvidenceAlreadyLinkedError) Error() string {
	return fmt.Sprintf("evidence %s already linked to active case %s", e.EvidenceID, e.HeldBy)
}
