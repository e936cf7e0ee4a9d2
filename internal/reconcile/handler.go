package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/concord-collective/concord/internal/catalog"
	"github.com/concord-collective/concord/internal/eligibility"
	"github.com/concord-collective/concord/internal/platform/httpx"
)

// Enqueuer submits a reconciliation for asynchronous execution.
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, req Request) (string, error)
}

// Handler serves the reconciliation API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	catalog  *catalog.Provider
	enqueuer Enqueuer
	validate *validator.Validate
}

// NewHandler builds a Handler. The enqueuer may be nil, which disables the
// async endpoint.
func NewHandler(logger *slog.Logger, service *Service, catalogProvider *catalog.Provider, enqueuer Enqueuer) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		catalog:  catalogProvider,
		enqueuer: enqueuer,
		validate: validator.New(),
	}
}

// MountRoutes registers the reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/eligibility", h.eligibility)
	r.Get("/tenants", h.searchTenants)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Post("/reconcile", h.reconcile)
		r.Post("/reconcile/async", h.reconcileAsync)
	})
}

type outcomeResponse struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type reconcileResponse struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Applied  []string          `json:"applied"`
	Outcomes []outcomeResponse `json:"outcomes"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.Reconcile(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrUnknownFlag) {
			err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, toResponse(result))
}

func (h *Handler) reconcileAsync(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "async reconciliation is not configured")
		return
	}
	req, err := h.decodeRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	runID, err := h.enqueuer.EnqueueReconcile(r.Context(), req)
	if err != nil {
		h.logger.Error("enqueue reconcile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (h *Handler) eligibility(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	operatorID := query.Get("operator_id")
	subjectID := query.Get("subject_id")
	if operatorID == "" || subjectID == "" {
		httpx.RespondError(w, fmt.Errorf("%w: operator_id and subject_id are required", httpx.ErrValidation))
		return
	}

	elig, err := h.service.Eligibility(r.Context(), operatorID, subjectID, query.Get("tenant_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	options := elig.Options
	if options == nil {
		options = []eligibility.Option{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"options": options})
}

type tenantResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
}

func (h *Handler) searchTenants(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.catalog.Snapshot(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	matches := snapshot.Search(r.URL.Query().Get("q"))
	tenants := make([]tenantResponse, len(matches))
	for i, tenant := range matches {
		tenants[i] = tenantResponse{ID: tenant.ID, Name: tenant.Name, Alias: tenant.Alias}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (h *Handler) decodeRequest(r *http.Request) (Request, error) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return req, nil
}

func toResponse(result *Result) reconcileResponse {
	resp := reconcileResponse{
		ID:       result.ID,
		Status:   "ok",
		Applied:  result.Applied,
		Outcomes: make([]outcomeResponse, len(result.Outcomes)),
	}
	if resp.Applied == nil {
		resp.Applied = []string{}
	}
	if result.Partial() {
		resp.Status = "partial"
	}
	for i, outcome := range result.Outcomes {
		out := outcomeResponse{Key: outcome.Key, OK: outcome.Err == nil}
		if outcome.Err != nil {
			out.Error = outcome.Err.Error()
		}
		resp.Outcomes[i] = out
	}
	return resp
}
