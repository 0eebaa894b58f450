package classify

import (
	"context"

	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

// Result of one classification call. Confidence is 0-100.
type Result struct {
	Category        evidence.Category `json:"category"`
	Confidence      int               `json:"confidence"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
}

// Client port (interface untuk external classifier). Stateless; safe for
// concurrent use. payloadRef is an opaque storage handle, never raw bytes.
type Client interface {
	Classify(ctx context.Context, payloadRef string) (Result, error)
}
