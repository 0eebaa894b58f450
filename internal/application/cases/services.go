package cases

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	"github.com/bryanwahyu/evidence-triage/internal/domain/alerts"
	"github.com/bryanwahyu/evidence-triage/internal/domain/cases"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

// Service implements the case ledger use-cases.
// Service is designed to be used concurrently and is thread-safe.
type Service struct {
	Ledger   cases.Ledger
	Evidence evidence.Repository
	Alerts   alerts.Repository
	Clock    application.Clock
}

// CreateCaseCommand untuk buka kasus baru
type CreateCaseCommand struct {
	Title           string
	Description     string
	Category        cases.Category
	Priority        cases.Priority
	AssignedOfficer string
}

// Create opens a new case in status open.
func (s *Service) Create(ctx context.Context, cmd CreateCaseCommand) (cases.CaseID, error) {
	if cmd.Title == "" {
		return "", fmt.Errorf("%w: case title is required", cases.ErrValidation)
	}
	if !cases.ValidCategory(cmd.Category) {
		return "", fmt.Errorf("%w: invalid case category %q", cases.ErrValidation, cmd.Category)
	}
	if !cases.ValidPriority(cmd.Priority) {
		return "", fmt.Errorf("%w: invalid case priority %q", cases.ErrValidation, cmd.Priority)
	}
	now := s.Clock.Now()
	c := &cases.Case{
		Title:           cmd.Title,
		Description:     cmd.Description,
		Category:        cmd.Category,
		Priority:        cmd.Priority,
		Status:          cases.StatusOpen,
		AssignedOfficer: cmd.AssignedOfficer,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return s.Ledger.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id cases.CaseID) (*cases.Case, error) {
	return s.Ledger.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status cases.Status) ([]*cases.Case, error) {
	return s.Ledger.List(ctx, status)
}

// Transition moves the case along the state machine; anything not in the
// table is rejected with InvalidTransitionError naming both states.
func (s *Service) Transition(ctx context.Context, id cases.CaseID, to cases.Status) error {
	if !cases.ValidStatus(to) {
		return fmt.Errorf("%w: invalid case status %q", cases.ErrValidation, to)
	}
	c, err := s.Ledger.Get(ctx, id)
	if err != nil {
		return err
	}
	if !cases.CanTransition(c.Status, to) {
		return &cases.InvalidTransitionError{From: c.Status, To: to}
	}
	return s.Ledger.UpdateStatus(ctx, id, to, s.Clock.Now())
}

// AttachEvidence links evidence to a case all-or-nothing. Every id must
// reference an existing, classified item that no other open/investigating
// case currently holds. A lost concurrent race is retried once internally
// before surfacing as a conflict.
func (s *Service) AttachEvidence(ctx context.Context, id cases.CaseID, evidenceIDs []evidence.ID, linkedBy string) error {
	if len(evidenceIDs) == 0 {
		return cases.ErrEmptySelection
	}
	c, err := s.Ledger.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == cases.StatusClosed {
		return cases.ErrCaseClosed
	}

	ids := dedupe(evidenceIDs)
	items, err := s.Evidence.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[evidence.ID]*evidence.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	now := s.Clock.Now()
	links := make([]cases.EvidenceLink, 0, len(ids))
	for _, eid := range ids {
		it, ok := byID[eid]
		if !ok {
			return fmt.Errorf("%w: unknown evidence %s", cases.ErrValidation, eid)
		}
		if it.Failed() {
			return fmt.Errorf("%w: evidence %s is unclassified", cases.ErrValidation, eid)
		}
		links = append(links, cases.EvidenceLink{
			CaseID:     id,
			EvidenceID: eid,
			LinkedAt:   now,
			LinkedBy:   linkedBy,
		})
	}

	err = s.Ledger.AttachEvidence(ctx, id, links)
	if errors.Is(err, cases.ErrConflict) {
		err = s.Ledger.AttachEvidence(ctx, id, links)
	}
	return err
}

// CreateFromAlertsCommand membuat kasus dari alert yang dipilih
type CreateFromAlertsCommand struct {
	CreateCaseCommand
	AlertIDs []alerts.AlertID
	LinkedBy string
}

// CreateFromAlerts is the convenience path from the alert screen: open a
// case, then attach the union of the selected alerts' evidence sets.
func (s *Service) CreateFromAlerts(ctx context.Context, cmd CreateFromAlertsCommand) (cases.CaseID, error) {
	if len(cmd.AlertIDs) == 0 {
		return "", cases.ErrEmptySelection
	}
	var evidenceIDs []evidence.ID
	seen := make(map[evidence.ID]bool)
	for _, aid := range cmd.AlertIDs {
		a, err := s.Alerts.Get(ctx, aid)
		if err != nil {
			return "", err
		}
		for _, eid := range a.EvidenceIDs {
			if !seen[eid] {
				seen[eid] = true
				evidenceIDs = append(evidenceIDs, eid)
			}
		}
	}
	if len(evidenceIDs) == 0 {
		return "", cases.ErrEmptySelection
	}

	id, err := s.Create(ctx, cmd.CreateCaseCommand)
	if err != nil {
		return "", err
	}
	if err := s.AttachEvidence(ctx, id, evidenceIDs, cmd.LinkedBy); err != nil {
		return id, err
	}
	return id, nil
}

func dedupe(ids []evidence.ID) []evidence.ID {
	seen := make(map[evidence.ID]bool, len(ids))
	out := make([]evidence.ID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
