// Package query is the read side of the audit trail. Every entry leaving this
// package has passed through permission scoping and per-field redaction, so
// transport handlers can serialize results without further checks.
package query

import (
	"time"
)

// Entry is the list-level view of an audit event. Actor fields are already
// redacted according to the caller's permissions.
type Entry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ActorID      string    `json:"actorId,omitempty"`
	ActorEmail   string    `json:"actorEmail"`
	Action       string    `json:"actionType"`
	Description  string    `json:"actionDescription"`
	ResourceType string    `json:"resourceType,omitempty"`
	ResourceID   string    `json:"resourceId,omitempty"`
	Outcome      string    `json:"outcome"`
	Severity     string    `json:"severity"`
	HasDetails   bool      `json:"hasDetails"`
}

// DetailEntry is the single-event view. Technical fields are blank when the
// caller lacks technical-data visibility.
type DetailEntry struct {
	Entry

	Module        string         `json:"module,omitempty"`
	EventType     string         `json:"eventType,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
	IPAddress     string         `json:"ipAddress,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
}

// Page wraps a result slice with pagination metadata mirroring the filter
// that produced it.
type Page struct {
	Content       []Entry `json:"content"`
	Page          int     `json:"page"`
	PageSize      int     `json:"pageSize"`
	TotalElements int64   `json:"totalElements"`
	TotalPages    int     `json:"totalPages"`
	First         bool    `json:"first"`
	Last          bool    `json:"last"`
}

func NewPage(content []Entry, page, pageSize int, total int64) Page {
	if content == nil {
		content = []Entry{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Page{
		Content:       content,
		Page:          page,
		PageSize:      pageSize,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         page == 0,
		Last:          page >= totalPages-1,
	}
}

// Statistics summarizes a tenant's audit activity over a period, scoped the
// same way as Search.
type Statistics struct {
	TotalEntries int64      `json:"totalEntries"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	PeriodStart  time.Time  `json:"periodStart"`
	PeriodEnd    time.Time  `json:"periodEnd"`
}
