package audit

import (
	"strings"
	"time"

	id "sentra/pkg/domain"
)

// Pagination bounds. Requests above MaxPageSize are rejected, not clamped, so
// callers learn about the limit instead of silently losing rows.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
	MaxSearchLength = 255
)

// Filter is the request-scoped query criteria for the audit trail. Before
// execution every filter passes through scope.Resolver.ScopeFilter, after
// which TenantID is always set and ActorID is forced to the caller for roles
// without organization-wide visibility.
type Filter struct {
	TenantID             id.TenantID
	ActorID              *id.UserID
	DateFrom             *time.Time
	DateTo               *time.Time
	Search               string
	ActionTypes          []string
	ActorEmails          []string
	IncludeSystemActions bool
	Page                 int
	PageSize             int
}

func (f Filter) HasSearch() bool {
	return strings.TrimSpace(f.Search) != ""
}

func (f Filter) HasDateRange() bool {
	return f.DateFrom != nil || f.DateTo != nil
}

func (f Filter) HasActionTypes() bool {
	return len(f.ActionTypes) > 0
}

// SearchTerm returns the normalized term used for matching.
func (f Filter) SearchTerm() string {
	return strings.ToLower(strings.TrimSpace(f.Search))
}

// Normalized fills pagination defaults. It does not enforce limits; that is
// the validator's job at the trust boundary.
func (f Filter) Normalized() Filter {
	if f.Page < 0 {
		f.Page = 0
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	return f
}

// WithPage returns a copy targeting a specific page, used by the export
// worker to stream fixed-size batches.
func (f Filter) WithPage(page, size int) Filter {
	f.Page = page
	f.PageSize = size
	return f
}

// EffectiveFrom and EffectiveTo bound the range for store queries.
func (f Filter) EffectiveFrom() time.Time {
	if f.DateFrom != nil {
		return *f.DateFrom
	}
	return time.Time{}
}

func (f Filter) EffectiveTo(now time.Time) time.Time {
	if f.DateTo != nil {
		return *f.DateTo
	}
	return now
}
