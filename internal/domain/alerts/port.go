package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

// ErrNotFound indicates the alert id is unknown.
var ErrNotFound = errors.New("alert not found")

// Filter untuk query alerts
type Filter struct {
	Status   Status
	Severity Severity
}

// Repository port (interface untuk persistence). FindOpenByFingerprint
// returns nil, nil when no unresolved alert carries the fingerprint; the
// correlation engine serializes lookup-and-create per fingerprint on top.
type Repository interface {
	Create(ctx context.Context, a *Alert) error
	Get(ctx context.Context, id AlertID) (*Alert, error)
	FindOpenByFingerprint(ctx context.Context, fp Fingerprint) (*Alert, error)
	AppendEvidence(ctx context.Context, id AlertID, evidenceID evidence.ID, severity Severity, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, id AlertID, status Status, updatedAt time.Time) error
	Delete(ctx context.Context, id AlertID) error
	List(ctx context.Context, f Filter) ([]*Alert, error)
}
