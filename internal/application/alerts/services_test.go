package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	"github.com/bryanwahyu/evidence-triage/internal/domain/alerts"
	"github.com/bryanwahyu/evidence-triage/internal/domain/audit"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

type memAlertRepo struct {
	alerts  map[alerts.AlertID]*alerts.Alert
	updates int
}

func (r *memAlertRepo) Create(ctx context.Context, a *alerts.Alert) error {
	r.alerts[a.ID] = a
	return nil
}

func (r *memAlertRepo) Get(ctx context.Context, id alerts.AlertID) (*alerts.Alert, error) {
	a, ok := r.alerts[id]
	if !ok {
		return nil, alerts.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAlertRepo) FindOpenByFingerprint(ctx context.Context, fp alerts.Fingerprint) (*alerts.Alert, error) {
	return nil, nil
}

func (r *memAlertRepo) AppendEvidence(ctx context.Context, id alerts.AlertID, evidenceID evidence.ID, severity alerts.Severity, updatedAt time.Time) error {
	return nil
}

func (r *memAlertRepo) UpdateStatus(ctx context.Context, id alerts.AlertID, status alerts.Status, updatedAt time.Time) error {
	a, ok := r.alerts[id]
	if !ok {
		return alerts.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = updatedAt
	r.updates++
	return nil
}

func (r *memAlertRepo) Delete(ctx context.Context, id alerts.AlertID) error {
	if _, ok := r.alerts[id]; !ok {
		return alerts.ErrNotFound
	}
	delete(r.alerts, id)
	return nil
}

func (r *memAlertRepo) List(ctx context.Context, f alerts.Filter) ([]*alerts.Alert, error) {
	var out []*alerts.Alert
	for _, a := range r.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type memAudit struct {
	entries []*audit.Entry
}

func (r *memAudit) Append(ctx context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *memAudit) Latest(ctx context.Context, limit int) ([]*audit.Entry, error) {
	return r.entries, nil
}

func testService() (*Service, *memAlertRepo, *memAudit) {
	repo := &memAlertRepo{alerts: map[alerts.AlertID]*alerts.Alert{
		"a1": {
			ID:          "a1",
			Fingerprint: "slip:1234567890",
			Severity:    alerts.SeverityHigh,
			Status:      alerts.StatusUnread,
			EvidenceIDs: []evidence.ID{"e1", "e2"},
		},
	}}
	aud := &memAudit{}
	svc := &Service{
		Repo:  repo,
		Audit: aud,
		Clock: application.FixedClock{T: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)},
	}
	return svc, repo, aud
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, repo, _ := testService()
	ctx := context.Background()

	if err := svc.MarkRead(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if repo.alerts["a1"].Status != alerts.StatusRead {
		t.Errorf("status = %s, want read", repo.alerts["a1"].Status)
	}
	// second call is a no-op, not an error
	if err := svc.MarkRead(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if repo.updates != 1 {
		t.Errorf("updates = %d, want 1", repo.updates)
	}
}

func TestMarkReadDoesNotDemoteResolved(t *testing.T) {
	svc, repo, _ := testService()
	ctx := context.Background()

	if err := svc.Resolve(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkRead(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if repo.alerts["a1"].Status != alerts.StatusResolved {
		t.Errorf("status = %s, want resolved", repo.alerts["a1"].Status)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	svc, repo, _ := testService()
	ctx := context.Background()

	if err := svc.Resolve(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Resolve(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if repo.updates != 1 {
		t.Errorf("updates = %d, want 1", repo.updates)
	}
}

func TestUnknownAlert(t *testing.T) {
	svc, _, _ := testService()
	if err := svc.MarkRead(context.Background(), "nope"); !errors.Is(err, alerts.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPurgeWritesAudit(t *testing.T) {
	svc, repo, aud := testService()
	ctx := context.Background()

	if err := svc.Purge(ctx, "a1", "admin-7"); err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.alerts["a1"]; ok {
		t.Error("alert still present after purge")
	}
	if len(aud.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(aud.entries))
	}
	e := aud.entries[0]
	if e.Action != audit.ActionAlertPurge || e.TargetID != "a1" || e.Actor != "admin-7" {
		t.Errorf("audit entry = %+v", e)
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(e.Details), &details); err != nil {
		t.Fatalf("details is not JSON: %v", err)
	}
	if details["fingerprint"] != "slip:1234567890" {
		t.Errorf("details fingerprint = %v", details["fingerprint"])
	}
}

func TestPurgeUnknownAlert(t *testing.T) {
	svc, _, aud := testService()
	if err := svc.Purge(context.Background(), "nope", "admin-7"); !errors.Is(err, alerts.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if len(aud.entries) != 0 {
		t.Error("failed purge must not be audited")
	}
}
