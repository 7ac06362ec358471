package query

import (
	"strings"
	"time"

	"sentra/internal/audit"
	dErrors "sentra/pkg/domain-errors"
)

// Request carries raw query parameters as they arrive at the trust boundary.
// Validation converts it into an audit.Filter or a coded validation error.
type Request struct {
	Search      string
	DateFrom    string
	DateTo      string
	ActionTypes []string
	ActorEmails []string
	Page        int
	PageSize    int
}

// acceptedTimeLayouts are the timestamp forms callers may use, tried in
// order. Date-only values are interpreted at midnight UTC.
var acceptedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp, accepting date-only input.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range acceptedTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid date format %q, expected ISO-8601", raw)
}

// ValidateRequest checks bounds and date coherence and produces the filter
// for the scoping step. Page size violations are rejected rather than
// clamped.
func ValidateRequest(req Request) (audit.Filter, error) {
	if req.Page < 0 {
		return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "page must not be negative")
	}
	if req.PageSize < 0 || req.PageSize > audit.MaxPageSize {
		return audit.Filter{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"page size must be between 1 and %d", audit.MaxPageSize)
	}
	if len(req.Search) > audit.MaxSearchLength {
		return audit.Filter{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"search term must not exceed %d characters", audit.MaxSearchLength)
	}

	f := audit.Filter{
		Search:      req.Search,
		ActionTypes: req.ActionTypes,
		ActorEmails: req.ActorEmails,
		Page:        req.Page,
		PageSize:    req.PageSize,
	}

	if req.DateFrom != "" {
		from, err := ParseTime(req.DateFrom)
		if err != nil {
			return audit.Filter{}, err
		}
		f.DateFrom = &from
	}
	if req.DateTo != "" {
		to, err := ParseTime(req.DateTo)
		if err != nil {
			return audit.Filter{}, err
		}
		f.DateTo = &to
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "dateFrom must not be after dateTo")
	}

	return f.Normalized(), nil
}
