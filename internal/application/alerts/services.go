package alerts

import (
	"context"
	"encoding/json"
	"log"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	"github.com/bryanwahyu/evidence-triage/internal/domain/alerts"
	"github.com/bryanwahyu/evidence-triage/internal/domain/audit"
)

// Service implements investigator-facing alert use-cases.
type Service struct {
	Repo  alerts.Repository
	Audit audit.Repository
	Clock application.Clock
}

// List alerts matching the filter. Empty filter fields match everything.
func (s *Service) List(ctx context.Context, f alerts.Filter) ([]*alerts.Alert, error) {
	return s.Repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id alerts.AlertID) (*alerts.Alert, error) {
	return s.Repo.Get(ctx, id)
}

// MarkRead is idempotent: unread goes to read, read and resolved stay put.
func (s *Service) MarkRead(ctx context.Context, id alerts.AlertID) error {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != alerts.StatusUnread {
		return nil
	}
	return s.Repo.UpdateStatus(ctx, id, alerts.StatusRead, s.Clock.Now())
}

// Resolve is idempotent on already-resolved alerts.
func (s *Service) Resolve(ctx context.Context, id alerts.AlertID) error {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == alerts.StatusResolved {
		return nil
	}
	return s.Repo.UpdateStatus(ctx, id, alerts.StatusResolved, s.Clock.Now())
}

// Purge deletes an alert permanently and writes an audit entry. The normal
// lifecycle ends at resolved; purge is the explicit, audited exception.
func (s *Service) Purge(ctx context.Context, id alerts.AlertID, actor string) error {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	details, _ := json.Marshal(map[string]any{
		"fingerprint":  a.Fingerprint,
		"severity":     a.Severity,
		"evidence_ids": a.EvidenceIDs,
	})
	entry := &audit.Entry{
		Action:    audit.ActionAlertPurge,
		TargetID:  string(id),
		Actor:     actor,
		Details:   string(details),
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Audit.Append(ctx, entry); err != nil {
		// purge sudah terjadi; audit failure hanya dilog
		log.Printf("audit append error: action=%s target=%s err=%v", entry.Action, id, err)
	}
	return nil
}
