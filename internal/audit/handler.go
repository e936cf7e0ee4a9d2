package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/concord-collective/concord/internal/platform/httpx"
)

const (
	timelineRateLimit  = 10
	timelineRateWindow = time.Minute
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
}

// Handler serves the audit timeline API.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the audit timeline endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(timelineRateLimit, timelineRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/audit", h.handleTimeline)
	})
}

type timelineResponse struct {
	Rows   []timelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

type timelineRow struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operator_id"`
	SubjectID  string    `json:"subject_id"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Requested  []string  `json:"requested"`
	Applied    []string  `json:"applied"`
	Failed     []string  `json:"failed,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}

	filters, err := parseTimelineFilters(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.String("error", err.Error()))
		httpx.RespondError(w, err)
		return
	}

	rows := make([]timelineRow, 0, len(result.Rows))
	for _, record := range result.Rows {
		rows = append(rows, timelineRow(record))
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Rows: rows, Paging: result.Paging})
}

func parseTimelineFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	filters := TimelineFilters{
		OperatorID: strings.TrimSpace(q.Get("operator")),
		SubjectID:  strings.TrimSpace(q.Get("subject")),
		TenantID:   strings.TrimSpace(q.Get("tenant")),
	}
	var err error
	if filters.From, err = parseTimeParam(q.Get("from")); err != nil {
		return TimelineFilters{}, fmt.Errorf("invalid from: %v", err)
	}
	if filters.To, err = parseTimeParam(q.Get("to")); err != nil {
		return TimelineFilters{}, fmt.Errorf("invalid to: %v", err)
	}
	if filters.Page, err = parseIntParam(q.Get("page")); err != nil {
		return TimelineFilters{}, fmt.Errorf("invalid page: %v", err)
	}
	if filters.PageSize, err = parseIntParam(q.Get("page_size")); err != nil {
		return TimelineFilters{}, fmt.Errorf("invalid page_size: %v", err)
	}
	return filters, nil
}

func parseTimeParam(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

func parseIntParam(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
