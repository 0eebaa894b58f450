package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bryanwahyu/evidence-triage/internal/application"
	"github.com/bryanwahyu/evidence-triage/internal/domain/classify"
	"github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
)

// Sink consumes every successfully classified item, typically the
// correlation engine. Failed items are recorded but never forwarded.
type Sink interface {
	Consume(ctx context.Context, item *evidence.Item) error
}

// Options untuk pipeline tuning
type Options struct {
	BatchConcurrency int           // workers per batch
	GlobalLimit      int64         // cap across all batches, protects the classifier
	MaxAttempts      int           // classification attempts per payload
	BackoffBase      time.Duration // doubled per retry
}

func (o Options) withDefaults() Options {
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = 8
	}
	if o.GlobalLimit <= 0 {
		o.GlobalLimit = 32
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 200 * time.Millisecond
	}
	return o
}

// Service implements the ingestion pipeline use-cases.
// Service is designed to be used concurrently and is thread-safe.
type Service struct {
	Repo       evidence.Repository
	Classifier classify.Client
	Sink       Sink
	Clock      application.Clock
	Opts       Options

	// Batches may be shared by several pipeline instances (archive and
	// crawl) so status and cancel reach every batch no matter which
	// pipeline runs it. Nil gets a private registry.
	Batches *Registry

	globalSem *semaphore.Weighted
	semOnce   sync.Once
	regOnce   sync.Once
}

type batchState struct {
	cancel    context.CancelFunc
	total     int
	done      bool
	startedAt time.Time
}

// Registry tracks live batches across pipeline instances.
type Registry struct {
	mu      sync.Mutex
	batches map[evidence.BatchID]*batchState
}

// finished entries linger this long for status queries, then get swept on
// the next registration; the evidence log keeps their history
const doneRetention = time.Hour

func (r *Registry) register(id evidence.BatchID, st *batchState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.batches[id]; ok && !prev.done {
		return fmt.Errorf("batch already running: %s", id)
	}
	if r.batches == nil {
		r.batches = make(map[evidence.BatchID]*batchState)
	}
	for bid, bst := range r.batches {
		if bst.done && st.startedAt.Sub(bst.startedAt) > doneRetention {
			delete(r.batches, bid)
		}
	}
	r.batches[id] = st
	return nil
}

func (r *Registry) markDone(st *batchState) {
	r.mu.Lock()
	st.done = true
	r.mu.Unlock()
}

func (r *Registry) progress(id evidence.BatchID) (total int, done bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.batches[id]
	if !ok {
		return 0, false, false
	}
	return st.total, st.done, true
}

func (r *Registry) cancel(id evidence.BatchID) error {
	r.mu.Lock()
	st, ok := r.batches[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown batch: %s", id)
	}
	st.cancel()
	return nil
}

// BatchHandle dikembalikan ke caller setelah batch diterima
type BatchHandle struct {
	BatchID   evidence.BatchID `json:"batch_id"`
	Total     int              `json:"total"`
	StartedAt time.Time        `json:"started_at"`
}

// Status laporan progres satu batch
type Status struct {
	BatchID    evidence.BatchID `json:"batch_id"`
	Total      int              `json:"total"`
	Completed  int              `json:"completed"`
	Failed     int              `json:"failed"`
	Flagged    int              `json:"flagged"`
	Suspicious int              `json:"suspicious"`
	Done       bool             `json:"done"`
}

func (s *Service) sem() *semaphore.Weighted {
	s.semOnce.Do(func() {
		s.Opts = s.Opts.withDefaults()
		s.globalSem = semaphore.NewWeighted(s.Opts.GlobalLimit)
	})
	return s.globalSem
}

func (s *Service) registry() *Registry {
	s.regOnce.Do(func() {
		if s.Batches == nil {
			s.Batches = &Registry{}
		}
	})
	return s.Batches
}

// IngestBatch registers the batch and classifies its payloads on a bounded
// worker pool in the background. Every payload yields exactly one evidence
// record: classified on success, unclassified with the failure reason
// otherwise. Output order is completion order.
func (s *Service) IngestBatch(batchID evidence.BatchID, payloadRefs []string) (BatchHandle, error) {
	if len(payloadRefs) == 0 {
		return BatchHandle{}, fmt.Errorf("empty payload list")
	}
	if batchID == "" {
		batchID = evidence.BatchID(uuid.New().String())
	}
	s.sem()

	ctx, cancel := context.WithCancel(context.Background())
	now := s.Clock.Now()

	st := &batchState{cancel: cancel, total: len(payloadRefs), startedAt: now}
	if err := s.registry().register(batchID, st); err != nil {
		cancel()
		return BatchHandle{}, err
	}

	go s.run(ctx, batchID, payloadRefs, st)

	return BatchHandle{BatchID: batchID, Total: len(payloadRefs), StartedAt: now}, nil
}

func (s *Service) run(ctx context.Context, batchID evidence.BatchID, refs []string, st *batchState) {
	defer s.registry().markDone(st)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Opts.BatchConcurrency)

	for _, ref := range refs {
		// cooperative cancellation: checked between items, never mid-item
		if gctx.Err() != nil {
			break
		}
		ref := ref
		g.Go(func() error {
			if err := s.sem().Acquire(gctx, 1); err != nil {
				return nil // cancelled while queued, nothing dispatched
			}
			defer s.sem().Release(1)
			s.processOne(gctx, batchID, ref)
			return nil
		})
	}
	_ = g.Wait()
	log.Printf("ingest batch done: batch=%s total=%d", batchID, len(refs))
}

// processOne classifies a single payload with bounded retries and records
// the outcome 1:1. Cancellation mid-item lets the in-flight call finish or
// fail on its own; a completed item stays valid either way.
func (s *Service) processOne(ctx context.Context, batchID evidence.BatchID, ref string) {
	res, err := s.classifyWithRetry(ctx, ref)

	item := &evidence.Item{
		ID:            evidence.ID(uuid.New().String()),
		SourceBatchID: batchID,
		PayloadRef:    ref,
		IngestedAt:    s.Clock.Now(), // completion time, not submission time
	}
	if err != nil {
		item.Category = evidence.CategoryUnclassified
		item.ExtractedFields = map[string]string{evidence.FieldFailure: err.Error()}
	} else {
		item.Category = res.Category
		item.Confidence = res.Confidence
		item.ExtractedFields = res.ExtractedFields
	}

	if err := s.Repo.Append(context.Background(), item); err != nil {
		log.Printf("ingest append error: batch=%s ref=%s err=%v", batchID, ref, err)
		return
	}
	if item.Failed() || s.Sink == nil {
		return
	}
	if err := s.Sink.Consume(context.Background(), item); err != nil {
		log.Printf("ingest correlate error: batch=%s evidence=%s err=%v", batchID, item.ID, err)
	}
}

func (s *Service) classifyWithRetry(ctx context.Context, ref string) (classify.Result, error) {
	var lastErr error
	backoff := s.Opts.BackoffBase
	for attempt := 1; attempt <= s.Opts.MaxAttempts; attempt++ {
		res, err := s.Classifier.Classify(ctx, ref)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !classify.Transient(err) {
			return classify.Result{}, err // terminal, e.g. unsupported format
		}
		if attempt == s.Opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return classify.Result{}, lastErr
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return classify.Result{}, lastErr
}

// CancelBatch stops dispatching new classifications for the batch.
// Already-completed items remain valid and queryable.
func (s *Service) CancelBatch(batchID evidence.BatchID) error {
	return s.registry().cancel(batchID)
}

// BatchStatus returns progress and the triage summary shown to investigators.
func (s *Service) BatchStatus(ctx context.Context, batchID evidence.BatchID) (Status, error) {
	total, done, ok := s.registry().progress(batchID)

	items, err := s.Repo.ByBatch(ctx, batchID)
	if err != nil {
		return Status{}, err
	}
	if !ok && len(items) == 0 {
		return Status{}, fmt.Errorf("unknown batch: %s", batchID)
	}

	out := Status{BatchID: batchID, Completed: len(items), Done: true}
	if ok {
		out.Total = total
		out.Done = done
	} else {
		out.Total = len(items)
	}
	for _, it := range items {
		switch it.Category {
		case evidence.CategoryUnclassified:
			out.Failed++
		case evidence.CategoryWeapon, evidence.CategoryDrug, evidence.CategoryAdultContent:
			out.Flagged++
		case evidence.CategoryTransactionSlip, evidence.CategorySuspiciousSite:
			out.Suspicious++
		}
	}
	return out, nil
}

// BatchEvidence lists every recorded item of a batch, failures included.
func (s *Service) BatchEvidence(ctx context.Context, batchID evidence.BatchID) ([]*evidence.Item, error) {
	return s.Repo.ByBatch(ctx, batchID)
}
