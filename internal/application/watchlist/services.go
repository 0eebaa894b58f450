package watchlist

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	"github.com/bryanwahyu/evidence-triage/internal/domain/audit"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
	"github.com/bryanwahyu/evidence-triage/internal/domain/watchlist"
)

// Service owns the watchlist: commands go through the repository, match
// queries hit an in-memory index rebuilt at startup. The index is
// read-mostly; writers take the exclusive lock.
type Service struct {
	Repo  watchlist.Repository
	Audit audit.Repository
	Clock application.Clock

	mu      sync.RWMutex
	byValue map[watchlist.Kind]map[string]*watchlist.Entry
}

// Load rebuilds the in-memory index from the repository.
func (s *Service) Load(ctx context.Context) error {
	entries, err := s.Repo.List(ctx, "")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byValue = make(map[watchlist.Kind]map[string]*watchlist.Entry)
	for _, e := range entries {
		s.indexLocked(e)
	}
	return nil
}

func (s *Service) indexLocked(e *watchlist.Entry) {
	if s.byValue == nil {
		s.byValue = make(map[watchlist.Kind]map[string]*watchlist.Entry)
	}
	m := s.byValue[e.Kind]
	if m == nil {
		m = make(map[string]*watchlist.Entry)
		s.byValue[e.Kind] = m
	}
	m[normalize(e.Kind, e.Value)] = e
}

// Add registers a new entry. Value must be unique within its kind.
func (s *Service) Add(ctx context.Context, kind watchlist.Kind, value string) (*watchlist.Entry, error) {
	if !watchlist.ValidKind(kind) {
		return nil, fmt.Errorf("%w: invalid watchlist kind %q", watchlist.ErrValidation, kind)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: watchlist value is required", watchlist.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.byValue[kind]; m != nil {
		if _, dup := m[normalize(kind, value)]; dup {
			return nil, watchlist.ErrDuplicateEntry
		}
	}
	e := &watchlist.Entry{
		ID:      watchlist.EntryID(uuid.New().String()),
		Kind:    kind,
		Value:   value,
		Status:  watchlist.StatusActive,
		AddedAt: s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, e); err != nil {
		return nil, err
	}
	s.indexLocked(e)
	return e, nil
}

// Remove deletes an entry from the repository and the index, and records the
// removal in the audit log.
func (s *Service) Remove(ctx context.Context, id watchlist.EntryID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *watchlist.Entry
	for _, m := range s.byValue {
		for _, e := range m {
			if e.ID == id {
				found = e
			}
		}
	}
	if found == nil {
		return watchlist.ErrNotFound
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	delete(s.byValue[found.Kind], normalize(found.Kind, found.Value))

	if s.Audit != nil {
		entry := &audit.Entry{
			Action:    audit.ActionWatchlistRemove,
			TargetID:  string(id),
			Actor:     actor,
			Details:   fmt.Sprintf(`{"kind":%q,"value":%q}`, found.Kind, found.Value),
			CreatedAt: s.Clock.Now(),
		}
		if err := s.Audit.Append(ctx, entry); err != nil {
			// removal sudah terjadi; audit failure hanya dilog
			log.Printf("audit append error: action=%s target=%s err=%v", entry.Action, id, err)
		}
	}
	return nil
}

// SetStatus moves an entry between active / flagged / investigated.
func (s *Service) SetStatus(ctx context.Context, id watchlist.EntryID, status watchlist.Status) error {
	if !watchlist.ValidStatus(status) {
		return fmt.Errorf("%w: invalid watchlist status %q", watchlist.ErrValidation, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byValue {
		for _, e := range m {
			if e.ID == id {
				if err := s.Repo.UpdateStatus(ctx, id, status); err != nil {
					return err
				}
				e.Status = status
				return nil
			}
		}
	}
	return watchlist.ErrNotFound
}

// List returns entries of one kind, or all when kind is empty.
func (s *Service) List(ctx context.Context, kind watchlist.Kind) ([]*watchlist.Entry, error) {
	return s.Repo.List(ctx, kind)
}

// Match queries the index for the first watchlist hit on a classified item:
// account and URL values match exactly against extracted fields, keywords
// match by substring against the text fields. A hit bumps the entry's
// last-activity timestamp.
func (s *Service) Match(ctx context.Context, item *evidence.Item) (*watchlist.Entry, error) {
	s.mu.RLock()
	hit := s.matchLocked(item)
	s.mu.RUnlock()

	if hit != nil {
		if err := s.Repo.TouchActivity(ctx, hit.ID); err != nil {
			return nil, err
		}
	}
	return hit, nil
}

func (s *Service) matchLocked(item *evidence.Item) *watchlist.Entry {
	if m := s.byValue[watchlist.KindAccount]; m != nil {
		if acc := normalize(watchlist.KindAccount, item.Field(evidence.FieldAccountNumber)); acc != "" {
			if e, ok := m[acc]; ok {
				return e
			}
		}
	}
	if m := s.byValue[watchlist.KindURL]; m != nil {
		if u := normalize(watchlist.KindURL, item.Field(evidence.FieldURL)); u != "" {
			if e, ok := m[u]; ok {
				return e
			}
		}
	}
	if m := s.byValue[watchlist.KindKeyword]; m != nil {
		text := strings.ToLower(item.Field(evidence.FieldTitle) + " " +
			item.Field(evidence.FieldBodyText) + " " +
			item.Field(evidence.FieldKeywords))
		for kw, e := range m {
			if kw != "" && strings.Contains(text, kw) {
				return e
			}
		}
	}
	return nil
}

// Loaded reports whether the index has been rebuilt since startup.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byValue != nil
}

// Keywords returns the active keyword values, used to seed crawl runs.
func (s *Service) Keywords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.byValue[watchlist.KindKeyword]
	out := make([]string, 0, len(m))
	for _, e := range m {
		out = append(out, e.Value)
	}
	return out
}

// normalize aligns index keys with fingerprint normalization so a watchlist
// account matches a slip regardless of dash formatting.
func normalize(kind watchlist.Kind, value string) string {
	switch kind {
	case watchlist.KindAccount:
		var b strings.Builder
		for _, r := range value {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String()
	case watchlist.KindURL:
		host := value
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if i := strings.IndexAny(host, "/:"); i >= 0 {
			host = host[:i]
		}
		return strings.TrimPrefix(strings.ToLower(host), "www.")
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
