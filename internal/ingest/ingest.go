// Package ingest accepts audit events from collaborating modules, over Kafka
// and over the synchronous internal HTTP endpoint, and hands them to the
// recorder. Ingest is idempotent by event id, so producers may retry freely.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"sentra/internal/audit"
	"sentra/internal/platform/kafka/consumer"
	id "sentra/pkg/domain"
	dErrors "sentra/pkg/domain-errors"
)

// Payload is the wire form of an inbound audit event.
type Payload struct {
	EventID       string         `json:"event_id,omitempty"`
	TenantID      string         `json:"tenant_id"`
	ActorID       string         `json:"actor_id,omitempty"`
	ActorEmail    string         `json:"actor_email,omitempty"`
	Action        string         `json:"action"`
	Module        string         `json:"module,omitempty"`
	ResourceType  string         `json:"resource_type,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	Description   string         `json:"description,omitempty"`
	Outcome       string         `json:"outcome,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	SensitiveData bool           `json:"sensitive_data,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at,omitempty"`
}

// ToEvent converts the payload into a domain event, validating ids. The
// recorder fills remaining defaults and re-sanitizes every field.
func (p Payload) ToEvent() (audit.Event, error) {
	tenantID, err := id.ParseTenantID(p.TenantID)
	if err != nil {
		return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid tenant_id")
	}
	if p.Action == "" {
		return audit.Event{}, dErrors.New(dErrors.CodeInvalidInput, "action is required")
	}

	var actor *id.UserID
	if p.ActorID != "" {
		userID, err := id.ParseUserID(p.ActorID)
		if err != nil {
			return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid actor_id")
		}
		actor = &userID
	}

	event := audit.New(actor, p.Action).
		WithTenant(tenantID).
		WithCorrelationID(p.CorrelationID).
		WithSession(p.SessionID).
		WithClient(p.IPAddress, p.UserAgent).
		WithDescription(p.Description).
		WithDetails(p.Details)

	if p.EventID != "" {
		eventID, err := id.ParseEventID(p.EventID)
		if err != nil {
			return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid event_id")
		}
		event.ID = eventID
	}
	if p.ResourceType != "" || p.ResourceID != "" {
		event.ResourceType = p.ResourceType
		event.ResourceID = p.ResourceID
	}
	if p.Module != "" {
		event.Module = p.Module
	}
	if p.Outcome != "" {
		event.Outcome = p.Outcome
	}
	if p.Severity != "" {
		event.Severity = audit.Severity(p.Severity)
	}
	event.ActorEmail = p.ActorEmail
	event.SensitiveData = p.SensitiveData
	if !p.OccurredAt.IsZero() {
		event.CreatedAt = p.OccurredAt
	}
	return event, nil
}

// Ingestor feeds inbound payloads to the recorder.
type Ingestor struct {
	recorder *audit.Recorder
	logger   *slog.Logger
}

func NewIngestor(recorder *audit.Recorder, logger *slog.Logger) *Ingestor {
	return &Ingestor{recorder: recorder, logger: logger}
}

// Ingest records a single already-parsed payload.
func (i *Ingestor) Ingest(ctx context.Context, payload Payload) (audit.Event, error) {
	event, err := payload.ToEvent()
	if err != nil {
		return audit.Event{}, err
	}
	return i.recorder.Record(ctx, event)
}

// HandleMessage is the Kafka handler. Malformed payloads are logged and
// skipped; an audit pipeline must never wedge its partition on bad input.
func (i *Ingestor) HandleMessage(ctx context.Context, msg consumer.Message) error {
	var payload Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		i.logger.WarnContext(ctx, "skipping malformed audit payload",
			"topic", msg.Topic, "key", string(msg.Key), "error", err)
		return nil
	}
	event, err := i.Ingest(ctx, payload)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			i.logger.WarnContext(ctx, "skipping invalid audit payload",
				"topic", msg.Topic, "key", string(msg.Key), "error", err)
			return nil
		}
		return err
	}
	i.logger.DebugContext(ctx, "audit event ingested",
		"event_id", event.ID.String(), "action", event.Action)
	return nil
}
