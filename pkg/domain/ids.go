// Package domain holds the typed identifiers shared across the service.
// Distinct UUID types prevent cross-assignment of user, tenant, event, and
// export identifiers at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "sentra/pkg/domain-errors"
)

type (
	UserID   uuid.UUID
	TenantID uuid.UUID
	EventID  uuid.UUID
	ExportID uuid.UUID
)

// parseUUID enforces the parsing invariant at trust boundaries: IDs must be
// valid, non-empty, non-nil UUIDs.
func parseUUID(raw, field string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", field)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", field)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", field)
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	u, err := parseUUID(raw, "user_id")
	return UserID(u), err
}

func ParseTenantID(raw string) (TenantID, error) {
	u, err := parseUUID(raw, "tenant_id")
	return TenantID(u), err
}

func ParseEventID(raw string) (EventID, error) {
	u, err := parseUUID(raw, "event_id")
	return EventID(u), err
}

func ParseExportID(raw string) (ExportID, error) {
	u, err := parseUUID(raw, "export_id")
	return ExportID(u), err
}

func NewUserID() UserID     { return UserID(uuid.New()) }
func NewTenantID() TenantID { return TenantID(uuid.New()) }
func NewEventID() EventID   { return EventID(uuid.New()) }
func NewExportID() ExportID { return ExportID(uuid.New()) }

func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id TenantID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string  { return uuid.UUID(id).String() }
func (id ExportID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ExportID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
