package cases

import (
	"context"
	"time"

	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

// Ledger port (interface untuk persistence). AttachEvidence must be
// transactional: it validates every id against links held by other active
// cases and links all-or-nothing.
type Ledger interface {
	Create(ctx context.Context, c *Case) (CaseID, error)
	Get(ctx context.Context, id CaseID) (*Case, error)
	List(ctx context.Context, status Status) ([]*Case, error)
	UpdateStatus(ctx context.Context, id CaseID, status Status, updatedAt time.Time) error
	AttachEvidence(ctx context.Context, id CaseID, links []EvidenceLink) error
	ActiveLinkHolder(ctx context.Context, evidenceID evidence.ID) (CaseID, bool, error)
}
