// Package audit defines the immutable compliance event record and its
// persistence contracts. Events capture who did what, to what, and when for a
// tenant; once appended they are never mutated. Compensating writes (GDPR
// erasure) replace the whole detail map rather than patch it.
package audit

import (
	"strings"
	"time"

	"sentra/internal/redact"
	id "sentra/pkg/domain"
)

const defaultRetentionDays = 365

// Severity classifies an event for alerting and retention decisions.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Outcome of the audited operation as reported by the emitting module.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

// Event is a single append-only audit record. ActorID is nil for
// system-generated events. Details never contains raw email, credit-card, or
// SSN patterns: every constructor routes values through the redaction engine.
type Event struct {
	ID              id.EventID
	TenantID        id.TenantID
	ActorID         *id.UserID
	ActorEmail      string
	Action          string // dot-namespaced, e.g. "payment.processed"
	EventType       string
	Module          string
	ResourceType    string
	ResourceID      string
	Description     string
	Outcome         string
	Severity        Severity
	Details         redact.Details
	CorrelationID   string
	SessionID       string
	IPAddress       string
	UserAgent       string
	SensitiveData   bool
	CreatedAt       time.Time
	RetentionExpiry time.Time
}

// New creates an event with the essential actor and action. A nil actor
// denotes a system-generated event.
func New(actor *id.UserID, action string) Event {
	return Event{
		ID:              id.NewEventID(),
		ActorID:         actor,
		Action:          action,
		EventType:       action,
		Module:          "unknown",
		Severity:        SeverityLow,
		Outcome:         OutcomeSuccess,
		Details:         redact.NewDetails(),
		RetentionExpiry: time.Now().AddDate(0, 0, defaultRetentionDays),
	}
}

// Builder-style With methods return a modified copy, keeping Event values
// safe to share once recorded.

func (e Event) WithTenant(tenant id.TenantID) Event {
	e.TenantID = tenant
	return e
}

func (e Event) WithResource(resourceType, resourceID string) Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	e.Details = e.Details.With("resourceId", resourceID)
	return e
}

func (e Event) WithCorrelationID(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

func (e Event) WithSession(sessionID string) Event {
	e.SessionID = sessionID
	return e
}

func (e Event) WithClient(ipAddress, userAgent string) Event {
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

func (e Event) WithSeverity(s Severity) Event {
	e.Severity = s
	return e
}

func (e Event) WithOutcome(outcome string) Event {
	e.Outcome = outcome
	return e
}

func (e Event) WithDescription(desc string) Event {
	e.Description = redact.String(desc)
	return e
}

func (e Event) WithDetails(m map[string]any) Event {
	e.Details = e.Details.WithAll(m)
	return e
}

func (e Event) WithDetail(key string, value any) Event {
	e.Details = e.Details.With(key, value)
	return e
}

// IsSystemGenerated reports whether the event has no human actor.
func (e Event) IsSystemGenerated() bool { return e.ActorID == nil }

func (e Event) IsUserAction() bool    { return strings.HasPrefix(e.Action, "user.") }
func (e Event) IsPaymentAction() bool { return strings.HasPrefix(e.Action, "payment.") }
func (e Event) IsDataAction() bool    { return strings.HasPrefix(e.Action, "data.") }

func (e Event) HasTenantContext() bool { return !e.TenantID.IsNil() }

func (e Event) HasResourceContext() bool {
	_, ok := e.Details.Get("resourceId")
	return e.ResourceType != "" && ok
}

// Factory constructors for the common events emitted by collaborating
// modules. They exist so emitters cannot forget module or resource context.

func UserLogin(user id.UserID, tenant id.TenantID, ipAddress, correlationID string) Event {
	e := New(&user, "user.login").WithTenant(tenant).WithCorrelationID(correlationID)
	e.Module = "auth"
	e.IPAddress = ipAddress
	return e
}

func UserLogout(user id.UserID, tenant id.TenantID, correlationID string) Event {
	e := New(&user, "user.logout").WithTenant(tenant).WithCorrelationID(correlationID)
	e.Module = "auth"
	return e
}

func TenantCreated(actor id.UserID, tenant id.TenantID, details map[string]any) Event {
	e := New(&actor, "organization.created").WithTenant(tenant).WithDetails(details)
	e.Module = "user"
	return e.WithResource("organization", tenant.String())
}

func SubscriptionCreated(actor id.UserID, tenant id.TenantID, subscriptionID string, details map[string]any) Event {
	e := New(&actor, "subscription.created").WithTenant(tenant).WithDetails(details)
	e.Module = "subscription"
	return e.WithResource("subscription", subscriptionID)
}

func PaymentProcessed(actor id.UserID, tenant id.TenantID, paymentID string, details map[string]any) Event {
	e := New(&actor, "payment.processed").WithTenant(tenant).WithDetails(details)
	e.Module = "payment"
	e.SensitiveData = true
	return e.WithResource("payment", paymentID)
}

func DataExported(actor id.UserID, tenant id.TenantID, exportType string, details map[string]any) Event {
	e := New(&actor, "data.exported").WithTenant(tenant).WithDetails(details)
	e.Module = "audit"
	e.ResourceType = "export"
	return e.WithDetail("exportType", exportType)
}

func DataDeleted(actor id.UserID, tenant id.TenantID, resourceType, resourceID string, details map[string]any) Event {
	e := New(&actor, "data.deleted").WithTenant(tenant).WithDetails(details)
	e.Module = "audit"
	return e.WithResource(resourceType, resourceID)
}
