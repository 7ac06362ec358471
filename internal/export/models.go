// Package export implements the asynchronous audit export pipeline: rate
// limited job intake, a worker pool that streams scoped query pages into
// files, and secure time- and count-limited download tokens.
package export

import (
	"crypto/rand"
	"math/big"
	"time"

	id "sentra/pkg/domain"
	dErrors "sentra/pkg/domain-errors"
	"sentra/pkg/platform/sentinel"
)

// Format is the requested output encoding.
type Format string

const (
	FormatCSV  Format = "CSV"
	FormatJSON Format = "JSON"
	FormatPDF  Format = "PDF"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatCSV, FormatJSON, FormatPDF:
		return Format(raw), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported export format %q", raw)
	}
}

func (f Format) MimeType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatPDF:
		return "pdf"
	default:
		return "csv"
	}
}

// Status is the job lifecycle state. Completed jobs lapse to expired lazily:
// nothing rewrites the row at the deadline, readers derive it from the clock.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusExpired    Status = "EXPIRED"
)

// Rate and size ceilings for the pipeline.
const (
	MaxActiveJobs     = 3
	MaxRequestsWindow = 5
	RequestWindow     = time.Hour
	MaxExportRows     = 10000
	PageSize          = 1000

	DownloadTTL         = 7 * 24 * time.Hour
	DefaultMaxDownloads = 5

	tokenLength = 32
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken returns an unguessable download token drawn from crypto/rand
// over the alphanumeric alphabet.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate download token")
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Job is one export request and its progress through the pipeline.
type Job struct {
	ID          id.ExportID
	TenantID    id.TenantID
	RequestedBy id.UserID
	Format      Format
	Criteria    Criteria

	Status           Status
	TotalRecords     int64
	ProcessedRecords int64
	FilePath         string
	FileSizeBytes    int64
	ErrorMessage     string

	DownloadToken   string
	DownloadCount   int
	MaxDownloads    int
	DownloadExpires time.Time

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Criteria is the filter slice the requester asked for, persisted with the
// job so the worker re-derives the scoped query at processing time.
type Criteria struct {
	Search      string     `json:"search,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	ActionTypes []string   `json:"action_types,omitempty"`
}

// NewJob creates a pending job. The download token does not exist until the
// file does.
func NewJob(tenant id.TenantID, requester id.UserID, format Format, criteria Criteria) Job {
	return Job{
		ID:           id.NewExportID(),
		TenantID:     tenant,
		RequestedBy:  requester,
		Format:       format,
		Criteria:     criteria,
		Status:       StatusPending,
		MaxDownloads: DefaultMaxDownloads,
		CreatedAt:    time.Now(),
	}
}

// IsActive reports whether the job still occupies an active-job slot.
func (j Job) IsActive() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}

// MarkStarted transitions PENDING→PROCESSING.
func (j *Job) MarkStarted(total int64, now time.Time) error {
	if j.Status != StatusPending {
		return sentinel.ErrInvalidState
	}
	j.Status = StatusProcessing
	j.TotalRecords = total
	j.StartedAt = now
	return nil
}

// MarkCompleted transitions PROCESSING→COMPLETED and mints the download
// token with its expiry window.
func (j *Job) MarkCompleted(filePath string, sizeBytes int64, token string, now time.Time) error {
	if j.Status != StatusProcessing {
		return sentinel.ErrInvalidState
	}
	j.Status = StatusCompleted
	j.FilePath = filePath
	j.FileSizeBytes = sizeBytes
	j.DownloadToken = token
	j.DownloadExpires = now.Add(DownloadTTL)
	j.CompletedAt = now
	return nil
}

// MarkFailed transitions any active state to FAILED with a safe message.
func (j *Job) MarkFailed(message string, now time.Time) error {
	if !j.IsActive() {
		return sentinel.ErrInvalidState
	}
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.CompletedAt = now
	return nil
}

// IsDownloadExpired reports whether the download window has closed.
func (j Job) IsDownloadExpired(now time.Time) bool {
	return !j.DownloadExpires.IsZero() && now.After(j.DownloadExpires)
}

// CanDownload reports whether a download may proceed right now: the job must
// be completed, inside the window, and under the download cap.
func (j Job) CanDownload(now time.Time) bool {
	return j.Status == StatusCompleted &&
		!j.IsDownloadExpired(now) &&
		j.DownloadCount < j.MaxDownloads
}

// EffectiveStatus folds the lazy expiry into the reported state.
func (j Job) EffectiveStatus(now time.Time) Status {
	if j.Status == StatusCompleted && j.IsDownloadExpired(now) {
		return StatusExpired
	}
	return j.Status
}

// ProgressPercent reports 0-100 completion for status polling.
func (j Job) ProgressPercent() int {
	switch j.Status {
	case StatusCompleted:
		return 100
	case StatusPending:
		return 0
	}
	if j.TotalRecords <= 0 {
		return 0
	}
	pct := int(j.ProcessedRecords * 100 / j.TotalRecords)
	if pct > 100 {
		pct = 100
	}
	return pct
}
