package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sentra/internal/audit/query"
	"sentra/internal/export"
	id "sentra/pkg/domain"
)

// ExportHandler serves the export pipeline: request, status, history,
// download.
type ExportHandler struct {
	service *export.Service
	logger  *slog.Logger
}

func NewExportHandler(service *export.Service, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{service: service, logger: logger}
}

type exportRequest struct {
	Format      string   `json:"format"`
	Search      string   `json:"search,omitempty"`
	DateFrom    string   `json:"dateFrom,omitempty"`
	DateTo      string   `json:"dateTo,omitempty"`
	ActionTypes []string `json:"actionTypes,omitempty"`
}

type exportJobResponse struct {
	ExportID           string     `json:"exportId"`
	Status             string     `json:"status"`
	Format             string     `json:"format"`
	Progress           int        `json:"progress"`
	TotalRecords       int64      `json:"totalRecords"`
	ProcessedRecords   int64      `json:"processedRecords"`
	FileSizeBytes      int64      `json:"fileSizeBytes,omitempty"`
	ErrorMessage       string     `json:"errorMessage,omitempty"`
	DownloadToken      string     `json:"downloadToken,omitempty"`
	DownloadsRemaining int        `json:"downloadsRemaining"`
	DownloadExpiresAt  *time.Time `json:"downloadExpiresAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

func toJobResponse(job export.Job) exportJobResponse {
	resp := exportJobResponse{
		ExportID:         job.ID.String(),
		Status:           string(job.Status),
		Format:           string(job.Format),
		Progress:         job.ProgressPercent(),
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		FileSizeBytes:    job.FileSizeBytes,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt,
	}
	if job.Status == export.StatusCompleted {
		resp.DownloadToken = job.DownloadToken
		resp.DownloadsRemaining = job.MaxDownloads - job.DownloadCount
		expires := job.DownloadExpires
		resp.DownloadExpiresAt = &expires
	}
	if !job.CompletedAt.IsZero() {
		completed := job.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

func (h *ExportHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeError(w, err)
		return
	}

	criteria := export.Criteria{
		Search:      req.Search,
		ActionTypes: req.ActionTypes,
	}
	if req.DateFrom != "" {
		t, err := query.ParseTime(req.DateFrom)
		if err != nil {
			writeError(w, err)
			return
		}
		criteria.DateFrom = &t
	}
	if req.DateTo != "" {
		t, err := query.ParseTime(req.DateTo)
		if err != nil {
			writeError(w, err)
			return
		}
		criteria.DateTo = &t
	}
	if criteria.DateFrom != nil && criteria.DateTo != nil && criteria.DateFrom.After(*criteria.DateTo) {
		writeError(w, errDateOrder)
		return
	}

	job, err := h.service.Request(ctx, GetUserID(ctx), format, criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (h *ExportHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := id.ParseExportID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	job, ok, err := h.service.Status(ctx, GetUserID(ctx), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *ExportHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := intParam(r.URL.Query().Get("limit"), 20)
	jobs, err := h.service.History(ctx, GetUserID(ctx), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	responses := make([]exportJobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, toJobResponse(job))
	}
	writeJSON(w, http.StatusOK, responses)
}

// handleDownload streams the export file. The token is the only credential:
// the route is deliberately outside RequireAuth so the requester can hand the
// link to a compliance officer, and unknown, expired, and exhausted tokens
// all return the same 404.
func (h *ExportHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	download, ok, err := h.service.Download(ctx, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}
	defer download.Reader.Close()

	w.Header().Set("Content-Type", download.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+download.Filename+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(download.SizeBytes, 10))
	if _, err := io.Copy(w, download.Reader); err != nil {
		h.logger.WarnContext(ctx, "export download interrupted", "error", err)
	}
}
