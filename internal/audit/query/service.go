package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"

	"sentra/internal/audit"
	"sentra/internal/audit/metrics"
	"sentra/internal/redact"
	"sentra/internal/scope"
	id "sentra/pkg/domain"
	dErrors "sentra/pkg/domain-errors"
	"sentra/pkg/platform/sentinel"
)

// Service answers scoped, redacted read queries over the audit trail.
type Service struct {
	store   audit.Store
	scope   *scope.Resolver
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(store audit.Store, resolver *scope.Resolver, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		scope:  resolver,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns a page of entries matching the filter, narrowed to the
// caller's scope and redacted per their permissions.
func (s *Service) Search(ctx context.Context, userID id.UserID, requested audit.Filter) (Page, error) {
	scoped, err := s.scope.ScopeFilter(ctx, userID, requested)
	if err != nil {
		return Page{}, err
	}
	perms := s.scope.Resolve(ctx, userID)

	var (
		events []audit.Event
		total  int64
		mode   = "list"
	)
	start := s.now()
	if scoped.HasSearch() {
		mode = "search"
		events, total, err = s.store.Search(ctx, scoped)
	} else {
		events, total, err = s.store.List(ctx, scoped)
	}
	if err != nil {
		return Page{}, dErrors.Wrap(err, dErrors.CodeInternal, "audit query failed")
	}

	entries := make([]Entry, 0, len(events))
	for _, e := range events {
		entries = append(entries, s.toEntry(e, perms))
	}

	if s.metrics != nil {
		s.metrics.ObserveQuery(mode, len(entries))
		s.metrics.QueryDuration.Observe(s.now().Sub(start).Seconds())
	}
	s.logger.DebugContext(ctx, "audit query executed",
		"user_id", userID.String(), "mode", mode, "total", total)

	return NewPage(entries, scoped.Page, scoped.PageSize, total), nil
}

// Detail returns a single entry with full (permission-gated) fields. A
// missing event and an event the caller may not see produce the identical
// (zero, false, nil) result so existence cannot be probed across tenants.
func (s *Service) Detail(ctx context.Context, userID id.UserID, eventID id.EventID) (DetailEntry, bool, error) {
	event, err := s.store.FindByID(ctx, eventID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return DetailEntry{}, false, nil
	}
	if err != nil {
		return DetailEntry{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "audit lookup failed")
	}
	if !s.scope.CanAccessEntry(ctx, userID, event) {
		return DetailEntry{}, false, nil
	}

	perms := s.scope.Resolve(ctx, userID)
	return s.toDetailEntry(event, perms), true, nil
}

// Statistics summarizes the caller's visible slice of the trail over the
// given period. Nil bounds default to the role's maximum range ending now.
func (s *Service) Statistics(ctx context.Context, userID id.UserID, from, to *time.Time) (Statistics, error) {
	scoped, err := s.scope.ScopeFilter(ctx, userID, audit.Filter{DateFrom: from, DateTo: to})
	if err != nil {
		return Statistics{}, err
	}

	total, err := s.store.Count(ctx, scoped)
	if err != nil {
		return Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "audit statistics failed")
	}

	stats := Statistics{
		TotalEntries: total,
		PeriodStart:  scoped.EffectiveFrom(),
		PeriodEnd:    scoped.EffectiveTo(s.now()),
	}
	last, err := s.store.LastActivity(ctx, scoped)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// No activity in the period.
	case err != nil:
		return Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "audit statistics failed")
	default:
		stats.LastActivity = &last
	}
	return stats, nil
}

func (s *Service) toEntry(e audit.Event, perms scope.Permissions) Entry {
	entry := Entry{
		ID:           e.ID.String(),
		Timestamp:    e.CreatedAt,
		ActorEmail:   e.ActorEmail,
		Action:       e.Action,
		Description:  e.Description,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Outcome:      e.Outcome,
		Severity:     string(e.Severity),
		HasDetails:   perms.CanViewSensitiveData && e.Details.Len() > 0,
	}
	if e.ActorID != nil {
		entry.ActorID = e.ActorID.String()
	}
	if !perms.CanViewSensitiveData {
		if entry.ActorEmail != "" {
			entry.ActorEmail = redact.Redacted
		}
		entry.ActorID = ""
	}
	return entry
}

func (s *Service) toDetailEntry(e audit.Event, perms scope.Permissions) DetailEntry {
	detail := DetailEntry{
		Entry:         s.toEntry(e, perms),
		Module:        e.Module,
		EventType:     e.EventType,
		CorrelationID: e.CorrelationID,
	}
	if perms.CanViewSensitiveData {
		// Re-sanitize on the way out: rows written before a redaction rule
		// existed must still leave through it.
		detail.Details = redact.Map(e.Details.AsMap())
	}
	if perms.CanViewTechnicalData {
		detail.SessionID = e.SessionID
		detail.IPAddress = e.IPAddress
		detail.UserAgent = summarizeUserAgent(e.UserAgent)
	}
	return detail
}

// summarizeUserAgent condenses a raw user-agent header to browser and OS so
// detail views stay readable and fingerprint-poor.
func summarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	if os := ua.OS(); os != "" {
		return fmt.Sprintf("%s %s on %s", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}
