package audit

import (
	"context"
	"log/slog"
	"time"

	"sentra/internal/audit/metrics"
	"sentra/internal/redact"
	id "sentra/pkg/domain"
	dErrors "sentra/pkg/domain-errors"
)

// Recorder is the single write path into the audit trail. It stamps
// timestamps and retention, and re-sanitizes every inbound field so the
// stored detail map never carries a raw PII pattern, no matter which emitting
// module produced the event.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type RecorderOption func(*Recorder)

func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

func WithRecorderMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists an event. Redaction is best-effort by contract and never
// rejects the event; only validation and storage can fail.
func (r *Recorder) Record(ctx context.Context, event Event) (Event, error) {
	if event.TenantID.IsNil() {
		return Event{}, dErrors.New(dErrors.CodeInvalidInput, "tenant_id is required")
	}
	if event.Action == "" {
		return Event{}, dErrors.New(dErrors.CodeInvalidInput, "action is required")
	}

	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.RetentionExpiry.IsZero() {
		event.RetentionExpiry = event.CreatedAt.AddDate(0, 0, defaultRetentionDays)
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}
	if event.EventType == "" {
		event.EventType = event.Action
	}

	// Defense in depth: events arriving from ingest may carry raw maps.
	event.Details = redact.DetailsFrom(event.Details.AsMap())
	event.Description = redact.String(event.Description)

	if err := r.store.Append(ctx, event); err != nil {
		if r.metrics != nil {
			r.metrics.ObserveRecordFailure()
		}
		return Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist audit event")
	}

	if r.metrics != nil {
		r.metrics.ObserveRecord(event.Module)
	}
	r.logger.DebugContext(ctx, "audit event recorded",
		"event_id", event.ID.String(),
		"tenant_id", event.TenantID.String(),
		"action", event.Action,
	)
	return event, nil
}

// Erase replaces the event's detail map wholesale. Used by the GDPR erasure
// collaborator; individual keys are never patched.
func (r *Recorder) Erase(ctx context.Context, eventID id.EventID, replacement map[string]any) error {
	if err := r.store.ReplaceDetails(ctx, eventID, redact.DetailsFrom(replacement)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to replace event details")
	}
	return nil
}
