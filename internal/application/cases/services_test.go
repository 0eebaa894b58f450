package cases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	"github.com/bryanwahyu/evidence-triage/internal/domain/alerts"
	"github.com/bryanwahyu/evidence-triage/internal/domain/cases"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

type memLedger struct {
	mu        sync.Mutex
	seq       int
	cases     map[cases.CaseID]*cases.Case
	links     map[evidence.ID]cases.CaseID
	conflicts int // AttachEvidence fails with ErrConflict this many times
}

func newMemLedger() *memLedger {
	return &memLedger{
		cases: make(map[cases.CaseID]*cases.Case),
		links: make(map[evidence.ID]cases.CaseID),
	}
}

func (l *memLedger) Create(ctx context.Context, c *cases.Case) (cases.CaseID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	id := cases.CaseID(fmt.Sprintf("CASE-2025-%04d", l.seq))
	cp := *c
	cp.ID = id
	l.cases[id] = &cp
	return id, nil
}

func (l *memLedger) Get(ctx context.Context, id cases.CaseID) (*cases.Case, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cases[id]
	if !ok {
		return nil, cases.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (l *memLedger) List(ctx context.Context, status cases.Status) ([]*cases.Case, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*cases.Case
	for _, c := range l.cases {
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (l *memLedger) UpdateStatus(ctx context.Context, id cases.CaseID, status cases.Status, updatedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cases[id]
	if !ok {
		return cases.ErrNotFound
	}
	if !status.Active() {
		// released cases no longer hold their evidence
		for eid, holder := range l.links {
			if holder == id {
				delete(l.links, eid)
			}
		}
	}
	c.Status = status
	c.UpdatedAt = updatedAt
	return nil
}

func (l *memLedger) AttachEvidence(ctx context.Context, id cases.CaseID, links []cases.EvidenceLink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conflicts > 0 {
		l.conflicts--
		return cases.ErrConflict
	}
	c, ok := l.cases[id]
	if !ok {
		return cases.ErrNotFound
	}
	for _, ln := range links {
		if holder, held := l.links[ln.EvidenceID]; held && holder != id {
			return &cases.EvidenceAlreadyLinkedError{EvidenceID: ln.EvidenceID, HeldBy: holder}
		}
	}
	for _, ln := range links {
		if _, held := l.links[ln.EvidenceID]; held {
			continue
		}
		l.links[ln.EvidenceID] = id
		c.EvidenceLinks = append(c.EvidenceLinks, ln)
	}
	return nil
}

func (l *memLedger) ActiveLinkHolder(ctx context.Context, evidenceID evidence.ID) (cases.CaseID, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.links[evidenceID]
	return id, ok, nil
}

type memEvidence struct {
	items map[evidence.ID]*evidence.Item
}

func (r *memEvidence) Append(ctx context.Context, item *evidence.Item) error {
	r.items[item.ID] = item
	return nil
}

func (r *memEvidence) Get(ctx context.Context, id evidence.ID) (*evidence.Item, error) {
	it, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("evidence not found: %s", id)
	}
	return it, nil
}

func (r *memEvidence) GetMany(ctx context.Context, ids []evidence.ID) ([]*evidence.Item, error) {
	var out []*evidence.Item
	for _, id := range ids {
		if it, ok := r.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *memEvidence) ByBatch(ctx context.Context, batch evidence.BatchID) ([]*evidence.Item, error) {
	return nil, nil
}

type memAlerts struct {
	alerts map[alerts.AlertID]*alerts.Alert
}

func (r *memAlerts) Create(ctx context.Context, a *alerts.Alert) error { return nil }
func (r *memAlerts) Get(ctx context.Context, id alerts.AlertID) (*alerts.Alert, error) {
	a, ok := r.alerts[id]
	if !ok {
		return nil, alerts.ErrNotFound
	}
	return a, nil
}
func (r *memAlerts) FindOpenByFingerprint(ctx context.Context, fp alerts.Fingerprint) (*alerts.Alert, error) {
	return nil, nil
}
func (r *memAlerts) AppendEvidence(ctx context.Context, id alerts.AlertID, evidenceID evidence.ID, severity alerts.Severity, updatedAt time.Time) error {
	return nil
}
func (r *memAlerts) UpdateStatus(ctx context.Context, id alerts.AlertID, status alerts.Status, updatedAt time.Time) error {
	return nil
}
func (r *memAlerts) Delete(ctx context.Context, id alerts.AlertID) error { return nil }
func (r *memAlerts) List(ctx context.Context, f alerts.Filter) ([]*alerts.Alert, error) {
	return nil, nil
}

func testService(ledger *memLedger) (*Service, *memEvidence) {
	ev := &memEvidence{items: make(map[evidence.ID]*evidence.Item)}
	for i := 0; i < 5; i++ {
		id := evidence.ID(fmt.Sprintf("e%d", i))
		ev.items[id] = &evidence.Item{ID: id, Category: evidence.CategoryTransactionSlip, Confidence: 90}
	}
	ev.items["bad"] = &evidence.Item{ID: "bad", Category: evidence.CategoryUnclassified}
	return &Service{
		Ledger:   ledger,
		Evidence: ev,
		Alerts:   &memAlerts{},
		Clock:    application.FixedClock{T: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}, ev
}

func validCmd() CreateCaseCommand {
	return CreateCaseCommand{
		Title:    "online gambling ring",
		Category: cases.CategoryGambling,
		Priority: cases.PriorityHigh,
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := testService(newMemLedger())
	ctx := context.Background()

	tests := []struct {
		name string
		mut  func(*CreateCaseCommand)
	}{
		{"missing title", func(c *CreateCaseCommand) { c.Title = "" }},
		{"bad category", func(c *CreateCaseCommand) { c.Category = "traffic" }},
		{"bad priority", func(c *CreateCaseCommand) { c.Priority = "urgent" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := validCmd()
			tt.mut(&cmd)
			if _, err := svc.Create(ctx, cmd); !errors.Is(err, cases.ErrValidation) {
				t.Errorf("Create() err = %v, want ErrValidation", err)
			}
		})
	}

	id, err := svc.Create(ctx, validCmd())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != cases.StatusOpen {
		t.Errorf("new case status = %s, want open", c.Status)
	}
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	svc, _ := testService(newMemLedger())
	ctx := context.Background()
	id, _ := svc.Create(ctx, validCmd())

	// open → closed skips investigating
	err := svc.Transition(ctx, id, cases.StatusClosed)
	var invalid *cases.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.From != cases.StatusOpen || invalid.To != cases.StatusClosed {
		t.Errorf("error names %s → %s", invalid.From, invalid.To)
	}

	for _, to := range []cases.Status{cases.StatusInvestigating, cases.StatusClosed} {
		if err := svc.Transition(ctx, id, to); err != nil {
			t.Fatalf("Transition(%s): %v", to, err)
		}
	}
	// closed is terminal
	if err := svc.Transition(ctx, id, cases.StatusInvestigating); err == nil {
		t.Error("transition out of closed must fail")
	}
}

func TestAttachEvidence(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := testService(ledger)
	ctx := context.Background()
	id, _ := svc.Create(ctx, validCmd())

	if err := svc.AttachEvidence(ctx, id, nil, "officer-1"); !errors.Is(err, cases.ErrEmptySelection) {
		t.Errorf("empty selection err = %v", err)
	}
	if err := svc.AttachEvidence(ctx, id, []evidence.ID{"missing"}, "officer-1"); !errors.Is(err, cases.ErrValidation) {
		t.Errorf("unknown evidence err = %v", err)
	}
	if err := svc.AttachEvidence(ctx, id, []evidence.ID{"bad"}, "officer-1"); !errors.Is(err, cases.ErrValidation) {
		t.Errorf("unclassified evidence err = %v", err)
	}

	if err := svc.AttachEvidence(ctx, id, []evidence.ID{"e0", "e1", "e0"}, "officer-1"); err != nil {
		t.Fatalf("AttachEvidence: %v", err)
	}
	c, _ := svc.Get(ctx, id)
	if len(c.EvidenceLinks) != 2 {
		t.Errorf("links = %d, want 2 (duplicates collapsed)", len(c.EvidenceLinks))
	}

	// second case cannot claim evidence held by an active case
	other, _ := svc.Create(ctx, validCmd())
	err := svc.AttachEvidence(ctx, other, []evidence.ID{"e1", "e2"}, "officer-2")
	var linked *cases.EvidenceAlreadyLinkedError
	if !errors.As(err, &linked) {
		t.Fatalf("err = %v, want EvidenceAlreadyLinkedError", err)
	}
	if linked.HeldBy != id {
		t.Errorf("held by %s, want %s", linked.HeldBy, id)
	}
	// all-or-nothing: e2 must not be linked either
	oc, _ := svc.Get(ctx, other)
	if len(oc.EvidenceLinks) != 0 {
		t.Errorf("partial attach leaked %d links", len(oc.EvidenceLinks))
	}
}

func TestAttachEvidenceAfterRelease(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := testService(ledger)
	ctx := context.Background()

	first, _ := svc.Create(ctx, validCmd())
	if err := svc.AttachEvidence(ctx, first, []evidence.ID{"e0"}, "officer-1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Transition(ctx, first, cases.StatusSuspended); err != nil {
		t.Fatal(err)
	}

	// suspended cases release their claims
	second, _ := svc.Create(ctx, validCmd())
	if err := svc.AttachEvidence(ctx, second, []evidence.ID{"e0"}, "officer-2"); err != nil {
		t.Errorf("attach after release: %v", err)
	}
}

func TestAttachEvidenceRetriesConflictOnce(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := testService(ledger)
	ctx := context.Background()
	id, _ := svc.Create(ctx, validCmd())

	ledger.conflicts = 1
	if err := svc.AttachEvidence(ctx, id, []evidence.ID{"e0"}, "officer-1"); err != nil {
		t.Errorf("one conflict should be retried away: %v", err)
	}

	ledger.conflicts = 2
	if err := svc.AttachEvidence(ctx, id, []evidence.ID{"e1"}, "officer-1"); !errors.Is(err, cases.ErrConflict) {
		t.Errorf("persistent conflict err = %v, want ErrConflict", err)
	}
}

func TestAttachEvidenceToClosedCase(t *testing.T) {
	svc, _ := testService(newMemLedger())
	ctx := context.Background()
	id, _ := svc.Create(ctx, validCmd())
	_ = svc.Transition(ctx, id, cases.StatusInvestigating)
	_ = svc.Transition(ctx, id, cases.StatusClosed)

	if err := svc.AttachEvidence(ctx, id, []evidence.ID{"e0"}, "officer-1"); !errors.Is(err, cases.ErrCaseClosed) {
		t.Errorf("err = %v, want ErrCaseClosed", err)
	}
}

func TestCreateFromAlerts(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := testService(ledger)
	svc.Alerts = &memAlerts{alerts: map[alerts.AlertID]*alerts.Alert{
		"a1": {ID: "a1", EvidenceIDs: []evidence.ID{"e0", "e1"}},
		"a2": {ID: "a2", EvidenceIDs: []evidence.ID{"e1", "e2"}},
	}}
	ctx := context.Background()

	id, err := svc.CreateFromAlerts(ctx, CreateFromAlertsCommand{
		CreateCaseCommand: validCmd(),
		AlertIDs:          []alerts.AlertID{"a1", "a2"},
		LinkedBy:          "officer-1",
	})
	if err != nil {
		t.Fatalf("CreateFromAlerts: %v", err)
	}
	c, _ := svc.Get(ctx, id)
	if len(c.EvidenceLinks) != 3 {
		t.Errorf("links = %d, want union of 3", len(c.EvidenceLinks))
	}

	if _, err := svc.CreateFromAlerts(ctx, CreateFromAlertsCommand{
		CreateCaseCommand: validCmd(),
	}); !errors.Is(err, cases.ErrEmptySelection) {
		t.Errorf("no alerts err = %v, want ErrEmptySelection", err)
	}
}
