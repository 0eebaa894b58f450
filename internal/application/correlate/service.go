package correlate

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	"github.com/bryanwahyu/evidence-triage/internal/domain/alerts"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
	"github.com/bryanwahyu/evidence-triage/internal/domain/watchlist"
)

// confidenceThreshold: slips and suspicious sites below this stay low severity.
const confidenceThreshold = 80

// Matcher answers watchlist match queries for a classified item.
type Matcher interface {
	Match(ctx context.Context, item *evidence.Item) (*watchlist.Entry, error)
}

// Service implements the correlation & dedup use-cases.
// Lookup-and-merge-or-create is serialized per fingerprint; different
// fingerprints correlate fully concurrently.
type Service struct {
	Alerts    alerts.Repository
	Watchlist Matcher
	Clock     application.Clock

	mu    sync.Mutex
	locks map[alerts.Fingerprint]*fpLock
}

// fpLock is refcounted; the map only holds fingerprints currently being
// correlated and the last holder removes the entry on release.
type fpLock struct {
	sync.Mutex
	refs int
}

// Correlate decides alert-worthiness for one classified item and returns the
// new or merged alert, or nil when the item is benign with no watchlist hit.
func (s *Service) Correlate(ctx context.Context, item *evidence.Item) (*alerts.Alert, error) {
	if item.Failed() {
		return nil, fmt.Errorf("unclassified item cannot be correlated: %s", item.ID)
	}

	hit, err := s.Watchlist.Match(ctx, item)
	if err != nil {
		return nil, err
	}
	if item.Category == evidence.CategoryBenign && hit == nil {
		return nil, nil
	}

	var hitID watchlist.EntryID
	if hit != nil {
		hitID = hit.ID
	}
	fp := alerts.DeriveFingerprint(item, hitID)
	severity := severityFor(item, hit)

	lock := s.lockFingerprint(fp)
	defer s.unlockFingerprint(fp, lock)

	return s.upsert(ctx, fp, item, hit, severity)
}

// Consume adapts Correlate to the ingestion pipeline sink.
func (s *Service) Consume(ctx context.Context, item *evidence.Item) error {
	_, err := s.Correlate(ctx, item)
	return err
}

func (s *Service) upsert(ctx context.Context, fp alerts.Fingerprint, item *evidence.Item, hit *watchlist.Entry, severity alerts.Severity) (*alerts.Alert, error) {
	now := s.Clock.Now()

	existing, err := s.Alerts.FindOpenByFingerprint(ctx, fp)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// merge: grow the evidence set, keep the max severity, leave status alone
		if !existing.HasEvidence(item.ID) {
			merged := alerts.MaxSeverity(existing.Severity, severity)
			if err := s.Alerts.AppendEvidence(ctx, existing.ID, item.ID, merged, now); err != nil {
				return nil, err
			}
			existing.EvidenceIDs = append(existing.EvidenceIDs, item.ID)
			existing.Severity = merged
		}
		existing.UpdatedAt = now
		return existing, nil
	}

	a := &alerts.Alert{
		ID:          alerts.AlertID(uuid.New().String()),
		Fingerprint: fp,
		Severity:    severity,
		Category:    item.Category,
		Title:       titleFor(item, hit),
		Message:     messageFor(item, hit),
		Source:      sourceFor(item, hit),
		EvidenceIDs: []evidence.ID{item.ID},
		Status:      alerts.StatusUnread,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if hit != nil {
		a.WatchlistHit = hit.ID
	}
	if err := s.Alerts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) lockFingerprint(fp alerts.Fingerprint) *fpLock {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[alerts.Fingerprint]*fpLock)
	}
	l, ok := s.locks[fp]
	if !ok {
		l = &fpLock{}
		s.locks[fp] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

func (s *Service) unlockFingerprint(fp alerts.Fingerprint, l *fpLock) {
	l.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, fp)
	}
	s.mu.Unlock()
}

// severityFor applies the triage rules: contraband categories and hot
// watchlist hits are high; slips/sites with solid confidence are medium;
// everything else low.
func severityFor(item *evidence.Item, hit *watchlist.Entry) alerts.Severity {
	switch item.Category {
	case evidence.CategoryWeapon, evidence.CategoryDrug, evidence.CategoryAdultContent:
		return alerts.SeverityHigh
	}
	if hit != nil && hit.Hot() {
		return alerts.SeverityHigh
	}
	switch item.Category {
	case evidence.CategoryTransactionSlip, evidence.CategorySuspiciousSite:
		if item.Confidence >= confidenceThreshold {
			return alerts.SeverityMedium
		}
	}
	return alerts.SeverityLow
}

func sourceFor(item *evidence.Item, hit *watchlist.Entry) string {
	if hit != nil {
		return alerts.SourceWatchlist
	}
	if item.Category == evidence.CategorySuspiciousSite {
		return alerts.SourceCrawler
	}
	return alerts.SourceOCR
}

func titleFor(item *evidence.Item, hit *watchlist.Entry) string {
	if hit != nil {
		return fmt.Sprintf("watchlist %s hit: %s", hit.Kind, hit.Value)
	}
	switch item.Category {
	case evidence.CategoryTransactionSlip:
		return "suspicious transfer slip detected"
	case evidence.CategorySuspiciousSite:
		return "suspicious website detected"
	case evidence.CategoryWeapon:
		return "weapon imagery detected"
	case evidence.CategoryDrug:
		return "drug imagery detected"
	case evidence.CategoryAdultContent:
		return "adult content detected"
	}
	return fmt.Sprintf("flagged evidence: %s", item.Category)
}

func messageFor(item *evidence.Item, hit *watchlist.Entry) string {
	switch item.Category {
	case evidence.CategoryTransactionSlip:
		msg := fmt.Sprintf("transfer slip, account %s", item.Field(evidence.FieldAccountNumber))
		if amount := item.Field(evidence.FieldAmount); amount != "" {
			msg += fmt.Sprintf(", amount %s", amount)
		}
		if hit != nil {
			msg += " (account is on the watchlist)"
		}
		return msg
	case evidence.CategorySuspiciousSite:
		msg := fmt.Sprintf("site %s", item.Field(evidence.FieldURL))
		if kw := item.Field(evidence.FieldKeywords); kw != "" {
			msg += fmt.Sprintf(", keywords: %s", kw)
		}
		return msg
	}
	return fmt.Sprintf("classified as %s with confidence %d", item.Category, item.Confidence)
}
