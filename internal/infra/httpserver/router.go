package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appalerts "github.com/bryanwahyu/evidence-triage/internal/application/alerts"
	appcases "github.com/bryanwahyu/evidence-triage/internal/application/cases"
	appcrawl "github.com/bryanwahyu/evidence-triage/internal/application/crawlrun"
	appingest "github.com/bryanwahyu/evidence-triage/internal/application/ingest"
	appwatch "github.com/bryanwahyu/evidence-triage/internal/application/watchlist"
	domalerts "github.com/bryanwahyu/evidence-triage/internal/domain/alerts"
	domcases "github.com/bryanwahyu/evidence-triage/internal/domain/cases"
	domevidence "github.com/bryanwahyu/evidence-triage/internal/domain/evidence"
	domaudit "github.com/bryanwahyu/evidence-triage/internal/domain/audit"
	domwatch "github.com/bryanwahyu/evidence-triage/internal/domain/watchlist"
	"github.com/bryanwahyu/evidence-triage/internal/middleware"
)

// PayloadStore is the slice of the object store the HTTP surface needs.
type PayloadStore interface {
	PutPayload(ctx context.Context, batchID, name string, r io.Reader, size int64) (string, error)
	RemovePayload(ctx context.Context, payloadRef string) error
}

type Router struct {
	ingestSvc *appingest.Service
	crawlSvc  *appcrawl.Service
	alertSvc  *appalerts.Service
	watchSvc  *appwatch.Service
	caseSvc   *appcases.Service
	payloads  PayloadStore
	audit     domaudit.Repository
}

func NewRouter(ingestSvc *appingest.Service, crawlSvc *appcrawl.Service, alertSvc *appalerts.Service, watchSvc *appwatch.Service, caseSvc *appcases.Service, payloads PayloadStore, auditRepo domaudit.Repository) http.Handler {
	r := &Router{
		ingestSvc: ingestSvc,
		crawlSvc:  crawlSvc,
		alertSvc:  alertSvc,
		watchSvc:  watchSvc,
		caseSvc:   caseSvc,
		payloads:  payloads,
		audit:     auditRepo,
	}
	mux := chi.NewRouter()

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/batches", r.wrap(r.handleIngestBatch))
		rt.Get("/batches/{id}", r.wrap(r.handleBatchStatus))
		rt.Post("/batches/{id}/cancel", r.wrap(r.handleBatchCancel))
		rt.Get("/batches/{id}/evidence", r.wrap(r.handleBatchEvidence))

		rt.Post("/batches/{id}/payloads", r.wrap(r.handlePayloadUpload))
		rt.Delete("/payloads/*", r.wrap(r.handlePayloadRemove))

		rt.Post("/crawl", r.wrap(r.handleCrawl))

		rt.Get("/alerts", r.wrap(r.handleAlertList))
		rt.Post("/alerts/{id}/read", r.wrap(r.handleAlertRead))
		rt.Post("/alerts/{id}/resolve", r.wrap(r.handleAlertResolve))
		rt.Delete("/alerts/{id}", r.wrap(r.handleAlertPurge))

		rt.Post("/cases", r.wrap(r.handleCaseCreate))
		rt.Post("/cases/from-alerts", r.wrap(r.handleCaseFromAlerts))
		rt.Get("/cases", r.wrap(r.handleCaseList))
		rt.Get("/cases/{id}", r.wrap(r.handleCaseGet))
		rt.Post("/cases/{id}/evidence", r.wrap(r.handleCaseAttach))
		rt.Post("/cases/{id}/transition", r.wrap(r.handleCaseTransition))

		rt.Post("/watchlist", r.wrap(r.handleWatchlistAdd))
		rt.Get("/watchlist", r.wrap(r.handleWatchlistList))
		rt.Delete("/watchlist/{id}", r.wrap(r.handleWatchlistRemove))
		rt.Post("/watchlist/{id}/status", r.wrap(r.handleWatchlistStatus))

		rt.Get("/audit", r.wrap(r.handleAuditLatest))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps domain errors onto HTTP statuses in one place.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var invalid *domcases.InvalidTransitionError
		var linked *domcases.EvidenceAlreadyLinkedError
		switch {
		case errors.Is(err, sql.ErrNoRows),
			errors.Is(err, domalerts.ErrNotFound),
			errors.Is(err, domcases.ErrNotFound),
			errors.Is(err, domwatch.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.As(err, &invalid),
			errors.As(err, &linked),
			errors.Is(err, domcases.ErrCaseClosed),
			errors.Is(err, domcases.ErrConflict),
			errors.Is(err, domwatch.ErrDuplicateEntry):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, domcases.ErrEmptySelection),
			errors.Is(err, domcases.ErrValidation),
			errors.Is(err, domwatch.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/batches
// Body: {"batch_id": "...", "payload_refs": ["..."]}
// Classification runs in the background; the handle comes back immediately.
func (r *Router) handleIngestBatch(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		BatchID     string   `json:"batch_id"`
		PayloadRefs []string `json:"payload_refs"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(w, err)
	}
	if len(body.PayloadRefs) == 0 {
		return badRequestMsg(w, "payload_refs is required")
	}
	for _, ref := range body.PayloadRefs {
		if err := middleware.ValidatePayloadRef(ref); err != nil {
			return badRequest(w, err)
		}
	}
	handle, err := r.ingestSvc.IngestBatch(domevidence.BatchID(body.BatchID), body.PayloadRefs)
	if err != nil {
		return err
	}
	middleware.IncrementBatches()
	w.WriteHeader(http.StatusAccepted)
	return writeJSON(w, handle)
}

// GET /v1/batches/{id}
func (r *Router) handleBatchStatus(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	st, err := r.ingestSvc.BatchStatus(req.Context(), domevidence.BatchID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, st)
}

// POST /v1/batches/{id}/cancel
func (r *Router) handleBatchCancel(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := r.ingestSvc.CancelBatch(domevidence.BatchID(id)); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": "cancelling"})
}

// GET /v1/batches/{id}/evidence
func (r *Router) handleBatchEvidence(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	items, err := r.ingestSvc.BatchEvidence(req.Context(), domevidence.BatchID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, items)
}

// POST /v1/batches/{id}/payloads  (multipart, field "files")
// Uploads extracted payloads and returns their refs for a later ingest call.
func (r *Router) handlePayloadUpload(w http.ResponseWriter, req *http.Request) error {
	batchID := chi.URLParam(req, "id")
	if err := req.ParseMultipartForm(64 << 20); err != nil {
		return badRequest(w, err)
	}
	files := req.MultipartForm.File["files"]
	if len(files) == 0 {
		return badRequestMsg(w, "at least one file is required")
	}
	refs := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		ref, err := r.payloads.PutPayload(req.Context(), batchID, fh.Filename, f, fh.Size)
		f.Close()
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	w.WriteHeader(http.StatusCreated)
	return writeJSON(w, map[string][]string{"payload_refs": refs})
}

// DELETE /v1/payloads/{ref...}
func (r *Router) handlePayloadRemove(w http.ResponseWriter, req *http.Request) error {
	ref := chi.URLParam(req, "*")
	if err := middleware.ValidatePayloadRef(ref); err != nil {
		return badRequest(w, err)
	}
	if err := r.payloads.RemovePayload(req.Context(), ref); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": "removed"})
}

// POST /v1/crawl
// Body: {"urls": ["..."]}
func (r *Router) handleCrawl(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(w, err)
	}
	if len(body.URLs) == 0 {
		return badRequestMsg(w, "urls is required")
	}
	for _, u := range body.URLs {
		if err := middleware.ValidateURL(u); err != nil {
			return badRequest(w, err)
		}
	}
	handle, err := r.crawlSvc.Crawl(body.URLs)
	if err != nil {
		return err
	}
	middleware.IncrementCrawls()
	w.WriteHeader(http.StatusAccepted)
	return writeJSON(w, handle)
}

// GET /v1/alerts?status=&severity=
func (r *Router) handleAlertList(w http.ResponseWriter, req *http.Request) error {
	f := domalerts.Filter{
		Status:   domalerts.Status(req.URL.Query().Get("status")),
		Severity: domalerts.Severity(req.URL.Query().Get("severity")),
	}
	list, err := r.alertSvc.List(req.Context(), f)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domalerts.Alert{}
	}
	return writeJSON(w, list)
}

// POST /v1/alerts/{id}/read
func (r *Router) handleAlertRead(w http.ResponseWriter, req *http.Request) error {
	id := domalerts.AlertID(chi.URLParam(req, "id"))
	if err := r.alertSvc.MarkRead(req.Context(), id); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": "ok"})
}

// POST /v1/alerts/{id}/resolve
func (r *Router) handleAlertResolve(w http.ResponseWriter, req *http.Request) error {
	id := domalerts.AlertID(chi.URLParam(req, "id"))
	if err := r.alertSvc.Resolve(req.Context(), id); err != nil {
		return err
	}
	middleware.IncrementAlertsResolved()
	return writeJSON(w, map[string]string{"status": "ok"})
}

// DELETE /v1/alerts/{id}  (audited purge)
func (r *Router) handleAlertPurge(w http.ResponseWriter, req *http.Request) error {
	id := domalerts.AlertID(chi.URLParam(req, "id"))
	actor := middleware.SanitizeString(req.Header.Get("X-Actor"))
	if actor == "" {
		actor = middleware.GetActorFromContext(req.Context())
	}
	if err := r.alertSvc.Purge(req.Context(), id, actor); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": "purged"})
}

type caseBody struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	Priority        string `json:"priority"`
	AssignedOfficer string `json:"assigned_officer"`
}

func (b caseBody) command() appcases.CreateCaseCommand {
	return appcases.CreateCaseCommand{
		Title:           b.Title,
		Description:     b.Description,
		Category:        domcases.Category(b.Category),
		Priority:        domcases.Priority(b.Priority),
		AssignedOfficer: b.AssignedOfficer,
	}
}

// POST /v1/cases
func (r *Router) handleCaseCreate(w http.ResponseWriter, req *http.Request) error {
	var body caseBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(w, err)
	}
	id, err := r.caseSvc.Create(req.Context(), body.command())
	if err != nil {
		return err
	}
	middleware.IncrementCasesOpened()
	w.WriteHeader(http.StatusCreated)
	return writeJSON(w, map[string]string{"case_id": string(id)})
}

// POST /v1/cases/from-alerts
// Body: case fields + {"alert_ids": [...], "linked_by": "..."}
func (r *Router) handleCaseFromAlerts(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		caseBody
		AlertIDs []string `json:"alert_ids"`
		LinkedBy string   `json:"linked_by"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(w, err)
	}
	cmd := appcases.CreateFromAlertsCommand{
		CreateCaseCommand: body.command(),
		LinkedBy:          body.LinkedBy,
	}
	for _, aid := range body.AlertIDs {
		cmd.AlertIDs = append(cmd.AlertIDs, domalerts.AlertID(aid))
	}
	id, err := r.caseSvc.CreateFromAlerts(req.Context(), cmd)
	if err != nil {
		return err
	}
	middleware.IncrementCasesOpened()
	w.WriteHeader(http.StatusCreated)
	return writeJSON(w, map[string]string{"case_id": string(id)})
}

// GET /v1/cases?status=
func (r *Router) handleCaseList(w http.ResponseWriter, req *http.Request) error {
	list, err := r.caseSvc.List(req.Context(), domcases.Status(req.URL.Query().Get("status")))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domcases.Case{}
	}
	return writeJSON(w, list)
}

// GET /v1/cases/{id}
func (r *Router) handleCaseGet(w http.ResponseWriter, req *http.Request) error {
	c, err := r.caseSvc.Get(req.Context(), domcases.CaseID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	return writeJSON(w, c)
}

// POST /v1/cases/{id}/evidence
// Body: {"evidence_ids": [...], "linked_by": "..."}
func (r *Router) handleCaseAttach(w http.ResponseWriter, req *http.Request) error {
	id := domcases.CaseID(chi.URLParam(req, "id"))
	var body struct {
		EvidenceIDs []string `json:"evidence_ids"`
		LinkedBy    string   `json:"linked_by"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(w, err)
	}
	ids := make([]domevidence.ID, 0, len(body.EvidenceIDs))
	for _, e := range body.EvidenceIDs {
		ids = append(ids, domevidence.ID(e))
	}
	if err := r.caseSvc.AttachEvidence(req.Context(), id, ids, body.LinkedBy); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": "ok"})
}

// POST /v1/cases/{id}/transition
// Body: {"status": "investigating"}
func (r *Router) handleCaseTransition(w http.ResponseWriter, req *http.Request) error {
	id := domcases.CaseID(chi.URLParam(req, "id"))
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(w, err)
	}
	if err := r.caseSvc.Transition(req.Context(), id, domcases.Status(body.Status)); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": body.Status})
}

// POST /v1/watchlist
// Body: {"kind": "account", "value": "123-456-7890"}
func (r *Router) handleWatchlistAdd(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(w, err)
	}
	e, err := r.watchSvc.Add(req.Context(), domwatch.Kind(body.Kind), body.Value)
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusCreated)
	return writeJSON(w, e)
}

// GET /v1/watchlist?kind=
func (r *Router) handleWatchlistList(w http.ResponseWriter, req *http.Request) error {
	list, err := r.watchSvc.List(req.Context(), domwatch.Kind(req.URL.Query().Get("kind")))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domwatch.Entry{}
	}
	return writeJSON(w, list)
}

// DELETE /v1/watchlist/{id}  (audited)
func (r *Router) handleWatchlistRemove(w http.ResponseWriter, req *http.Request) error {
	id := domwatch.EntryID(chi.URLParam(req, "id"))
	actor := middleware.SanitizeString(req.Header.Get("X-Actor"))
	if actor == "" {
		actor = middleware.GetActorFromContext(req.Context())
	}
	if err := r.watchSvc.Remove(req.Context(), id, actor); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": "removed"})
}

// POST /v1/watchlist/{id}/status
// Body: {"status": "flagged"}
func (r *Router) handleWatchlistStatus(w http.ResponseWriter, req *http.Request) error {
	id := domwatch.EntryID(chi.URLParam(req, "id"))
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(w, err)
	}
	if err := r.watchSvc.SetStatus(req.Context(), id, domwatch.Status(body.Status)); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": body.Status})
}

// GET /v1/audit?limit=
func (r *Router) handleAuditLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	entries, err := r.audit.Latest(req.Context(), limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []*domaudit.Entry{}
	}
	return writeJSON(w, entries)
}

func badRequest(w http.ResponseWriter, err error) error {
	http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
	return nil
}

func badRequestMsg(w http.ResponseWriter, msg string) error {
	http.Error(w, msg, http.StatusBadRequest)
	return nil
}
