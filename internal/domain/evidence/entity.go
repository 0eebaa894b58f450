package evidence

import (
	"time"
)

// ID tipe untuk EvidenceItem
type ID string

// BatchID identifies the ingestion batch an item came from
type BatchID string

// Category enum
type Category string

const (
	CategoryTransactionSlip Category = "transaction-slip"
	CategoryWeapon          Category = "weapon"
	CategoryDrug            Category = "drug"
	CategoryAdultContent    Category = "adult-content"
	CategorySuspiciousSite  Category = "suspicious-site"
	CategoryBenign          Category = "benign"
	CategoryOther           Category = "other"

	// CategoryUnclassified marks items whose classification failed after retries.
	// They carry the failure reason and never reach correlation.
	CategoryUnclassified Category = "unclassified"
)

// Well-known extracted field keys. Category-dependent, optional.
const (
	FieldAccountName   = "account_name"
	FieldAccountNumber = "account_number"
	FieldBank          = "bank"
	FieldAmount        = "amount"
	FieldURL           = "url"
	FieldTitle         = "title"
	FieldBodyText      = "body_text"
	FieldKeywords      = "keywords"
	FieldFailure       = "failure"
)

// Aggregate Root: EvidenceItem. Immutable once classified; alerts and case
// links reference it by ID, never copy it.
type Item struct {
	ID              ID                `json:"id"`
	SourceBatchID   BatchID           `json:"source_batch_id"`
	PayloadRef      string            `json:"payload_ref"`
	Category        Category          `json:"category"`
	Confidence      int               `json:"confidence"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
	IngestedAt      time.Time         `json:"ingested_at"`
}

// Failed reports whether this item is a recorded classification failure.
func (i *Item) Failed() bool { return i.Category == CategoryUnclassified }

// Field returns an extracted field value, or "" if absent.
func (i *Item) Field(key string) string {
	if i.ExtractedFields == nil {
		return ""
	}
	return i.ExtractedFields[key]
}
