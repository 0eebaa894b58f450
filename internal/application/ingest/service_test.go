package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	"github.com/bryanwahyu/evidence-triage/internal/domain/classify"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

type memEvidenceRepo struct {
	mu    sync.Mutex
	items []*evidence.Item
}

func (r *memEvidenceRepo) Append(ctx context.Context, item *evidence.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items = append(r.items, &cp)
	return nil
}

func (r *memEvidenceRepo) Get(ctx context.Context, id evidence.ID) (*evidence.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id {
			cp := *it
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("evidence not found: %s", id)
}

func (r *memEvidenceRepo) GetMany(ctx context.Context, ids []evidence.ID) ([]*evidence.Item, error) {
	var out []*evidence.Item
	for _, id := range ids {
		it, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *memEvidenceRepo) ByBatch(ctx context.Context, batch evidence.BatchID) ([]*evidence.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*evidence.Item
	for _, it := range r.items {
		if it.SourceBatchID == batch {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

type classifierFunc func(ctx context.Context, ref string) (classify.Result, error)

func (f classifierFunc) Classify(ctx context.Context, ref string) (classify.Result, error) {
	return f(ctx, ref)
}

type memSink struct {
	mu    sync.Mutex
	items []*evidence.Item
}

func (s *memSink) Consume(ctx context.Context, item *evidence.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func refs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("payloads/b/p%d.jpg", i)
	}
	return out
}

func waitDone(t *testing.T, svc *Service, id evidence.BatchID) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := svc.BatchStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("BatchStatus: %v", err)
		}
		if st.Done {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("batch did not finish in time")
	return Status{}
}

func TestIngestRecordsEveryPayload(t *testing.T) {
	repo := &memEvidenceRepo{}
	sink := &memSink{}
	svc := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			return classify.Result{Category: evidence.CategoryBenign, Confidence: 99}, nil
		}),
		Sink:  sink,
		Clock: application.SystemClock{},
	}

	handle, err := svc.IngestBatch("b1", refs(10))
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if handle.Total != 10 {
		t.Errorf("handle total = %d", handle.Total)
	}

	st := waitDone(t, svc, "b1")
	if st.Completed != 10 || st.Failed != 0 {
		t.Errorf("status = %+v, want 10 completed, 0 failed", st)
	}
	if sink.count() != 10 {
		t.Errorf("sink received %d items, want 10", sink.count())
	}
}

func TestIngestRespectsBatchConcurrency(t *testing.T) {
	var inFlight, peak int64
	repo := &memEvidenceRepo{}
	svc := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return classify.Result{Category: evidence.CategoryBenign}, nil
		}),
		Clock: application.SystemClock{},
		Opts:  Options{BatchConcurrency: 3},
	}

	if _, err := svc.IngestBatch("b1", refs(20)); err != nil {
		t.Fatal(err)
	}
	st := waitDone(t, svc, "b1")
	if st.Completed != 20 {
		t.Errorf("completed = %d, want 20", st.Completed)
	}
	if got := atomic.LoadInt64(&peak); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
}

func TestIngestRetriesTransientFailures(t *testing.T) {
	var attempts int64
	repo := &memEvidenceRepo{}
	svc := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			if atomic.AddInt64(&attempts, 1) < 3 {
				return classify.Result{}, classify.ErrTimeout
			}
			return classify.Result{Category: evidence.CategoryTransactionSlip, Confidence: 90}, nil
		}),
		Clock: application.SystemClock{},
		Opts:  Options{MaxAttempts: 3, BackoffBase: time.Millisecond},
	}

	if _, err := svc.IngestBatch("b1", refs(1)); err != nil {
		t.Fatal(err)
	}
	st := waitDone(t, svc, "b1")
	if st.Failed != 0 {
		t.Errorf("status = %+v, want success after retries", st)
	}
	if got := atomic.LoadInt64(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestIngestTerminalErrorNotRetried(t *testing.T) {
	var attempts int64
	repo := &memEvidenceRepo{}
	sink := &memSink{}
	svc := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			atomic.AddInt64(&attempts, 1)
			return classify.Result{}, classify.ErrUnsupported
		}),
		Sink:  sink,
		Clock: application.SystemClock{},
		Opts:  Options{MaxAttempts: 3, BackoffBase: time.Millisecond},
	}

	if _, err := svc.IngestBatch("b1", refs(1)); err != nil {
		t.Fatal(err)
	}
	st := waitDone(t, svc, "b1")
	if st.Failed != 1 {
		t.Errorf("status = %+v, want 1 failed", st)
	}
	if got := atomic.LoadInt64(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on terminal errors)", got)
	}

	items, _ := repo.ByBatch(context.Background(), "b1")
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if !items[0].Failed() {
		t.Errorf("item category = %s, want unclassified", items[0].Category)
	}
	if items[0].Field(evidence.FieldFailure) == "" {
		t.Error("failure reason missing from extracted fields")
	}
	if sink.count() != 0 {
		t.Error("failed items must never reach the sink")
	}
}

func TestIngestExhaustedRetriesRecordFailure(t *testing.T) {
	repo := &memEvidenceRepo{}
	svc := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			return classify.Result{}, classify.ErrUnavailable
		}),
		Clock: application.SystemClock{},
		Opts:  Options{MaxAttempts: 2, BackoffBase: time.Millisecond},
	}

	if _, err := svc.IngestBatch("b1", refs(3)); err != nil {
		t.Fatal(err)
	}
	st := waitDone(t, svc, "b1")
	if st.Failed != 3 || st.Completed != 3 {
		t.Errorf("status = %+v, want 3 completed all failed", st)
	}
}

func TestCancelBatchKeepsCompletedItems(t *testing.T) {
	started := make(chan struct{})
	repo := &memEvidenceRepo{}
	svc := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return classify.Result{}, classify.ErrUnavailable
		}),
		Clock: application.SystemClock{},
		Opts:  Options{BatchConcurrency: 1, MaxAttempts: 3, BackoffBase: time.Millisecond},
	}

	if _, err := svc.IngestBatch("b1", refs(4)); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := svc.CancelBatch("b1"); err != nil {
		t.Fatal(err)
	}

	st := waitDone(t, svc, "b1")
	if st.Completed >= 4 {
		t.Errorf("completed = %d, expected cancellation to skip queued payloads", st.Completed)
	}
	// the in-flight item finished (as a failure) and stays queryable
	items, err := svc.BatchEvidence(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != st.Completed {
		t.Errorf("evidence rows = %d, status completed = %d", len(items), st.Completed)
	}
}

func TestRegistrySharedAcrossPipelines(t *testing.T) {
	registry := &Registry{}
	repo := &memEvidenceRepo{}
	block := make(chan struct{})

	archive := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			return classify.Result{Category: evidence.CategoryBenign}, nil
		}),
		Clock:   application.SystemClock{},
		Batches: registry,
	}
	crawlPipe := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			<-block
			return classify.Result{Category: evidence.CategorySuspiciousSite, Confidence: 90}, nil
		}),
		Clock:   application.SystemClock{},
		Opts:    Options{BatchConcurrency: 1},
		Batches: registry,
	}

	if _, err := crawlPipe.IngestBatch("crawl-1", refs(3)); err != nil {
		t.Fatal(err)
	}

	// the other pipeline sees the running crawl batch
	st, err := archive.BatchStatus(context.Background(), "crawl-1")
	if err != nil {
		t.Fatalf("BatchStatus via sibling pipeline: %v", err)
	}
	if st.Done || st.Total != 3 {
		t.Errorf("status = %+v, want total=3 not done", st)
	}
	if err := archive.CancelBatch("crawl-1"); err != nil {
		t.Fatalf("CancelBatch via sibling pipeline: %v", err)
	}
	close(block)
	waitDone(t, archive, "crawl-1")
}

func TestIngestFinishedBatchIDReusable(t *testing.T) {
	repo := &memEvidenceRepo{}
	svc := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			return classify.Result{Category: evidence.CategoryBenign}, nil
		}),
		Clock: application.SystemClock{},
	}

	if _, err := svc.IngestBatch("b1", refs(2)); err != nil {
		t.Fatal(err)
	}
	waitDone(t, svc, "b1")

	// a finished id may be re-ingested; items append to the same history
	if _, err := svc.IngestBatch("b1", refs(1)); err != nil {
		t.Fatalf("re-ingest of finished batch: %v", err)
	}
	waitDone(t, svc, "b1")
	items, err := repo.ByBatch(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Errorf("evidence rows = %d, want 3", len(items))
	}
}

func TestRegistrySweepsStaleFinishedBatches(t *testing.T) {
	r := &Registry{}
	t0 := time.Now()

	old := &batchState{cancel: func() {}, total: 1, startedAt: t0}
	if err := r.register("old", old); err != nil {
		t.Fatal(err)
	}
	r.markDone(old)

	fresh := &batchState{cancel: func() {}, total: 1, startedAt: t0.Add(2 * doneRetention)}
	if err := r.register("fresh", fresh); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := r.progress("old"); ok {
		t.Error("stale finished batch still in the registry")
	}
	if _, _, ok := r.progress("fresh"); !ok {
		t.Error("fresh batch missing from the registry")
	}
}

func TestIngestRejectsEmptyAndDuplicateBatches(t *testing.T) {
	block := make(chan struct{})
	svc := &Service{
		Repo: &memEvidenceRepo{},
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			<-block
			return classify.Result{Category: evidence.CategoryBenign}, nil
		}),
		Clock: application.SystemClock{},
	}

	if _, err := svc.IngestBatch("b1", nil); err == nil {
		t.Error("empty payload list must be rejected")
	}
	if _, err := svc.IngestBatch("b1", refs(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.IngestBatch("b1", refs(2)); err == nil {
		t.Error("duplicate running batch must be rejected")
	}
	close(block)
	waitDone(t, svc, "b1")
}

func TestBatchStatusUnknown(t *testing.T) {
	svc := &Service{Repo: &memEvidenceRepo{}, Clock: application.SystemClock{}}
	if _, err := svc.BatchStatus(context.Background(), "nope"); err == nil {
		t.Error("unknown batch must error")
	}
}

func TestBatchStatusCountsCategories(t *testing.T) {
	repo := &memEvidenceRepo{}
	categories := map[string]evidence.Category{
		"payloads/b/p0.jpg": evidence.CategoryWeapon,
		"payloads/b/p1.jpg": evidence.CategoryTransactionSlip,
		"payloads/b/p2.jpg": evidence.CategoryBenign,
	}
	svc := &Service{
		Repo: repo,
		Classifier: classifierFunc(func(ctx context.Context, ref string) (classify.Result, error) {
			return classify.Result{Category: categories[ref], Confidence: 90}, nil
		}),
		Clock: application.SystemClock{},
	}
	if _, err := svc.IngestBatch("b1", refs(3)); err != nil {
		t.Fatal(err)
	}
	st := waitDone(t, svc, "b1")
	if st.Flagged != 1 || st.Suspicious != 1 || st.Failed != 0 {
		t.Errorf("status = %+v, want 1 flagged, 1 suspicious", st)
	}
}
