package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sentra/internal/audit/query"
	id "sentra/pkg/domain"
)

// QueryHandler serves the read side: search, detail, statistics.
type QueryHandler struct {
	service *query.Service
	logger  *slog.Logger
}

func NewQueryHandler(service *query.Service, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{service: service, logger: logger}
}

func (h *QueryHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	req := query.Request{
		Search:      q.Get("search"),
		DateFrom:    q.Get("dateFrom"),
		DateTo:      q.Get("dateTo"),
		ActionTypes: splitParam(q["actionType"]),
		ActorEmails: splitParam(q["actorEmail"]),
		Page:        intParam(q.Get("page"), 0),
		PageSize:    intParam(q.Get("pageSize"), 0),
	}

	filter, err := query.ValidateRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.service.Search(ctx, GetUserID(ctx), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *QueryHandler) handleDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	detail, ok, err := h.service.Detail(ctx, GetUserID(ctx), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *QueryHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var from, to *time.Time
	if raw := q.Get("dateFrom"); raw != "" {
		t, err := query.ParseTime(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		from = &t
	}
	if raw := q.Get("dateTo"); raw != "" {
		t, err := query.ParseTime(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		to = &t
	}

	stats, err := h.service.Statistics(ctx, GetUserID(ctx), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// splitParam drops empty values from a repeated query parameter.
func splitParam(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
