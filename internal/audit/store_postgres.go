package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sentra/internal/redact"
	id "sentra/pkg/domain"
	"sentra/pkg/platform/sentinel"
)

// PostgresStore persists audit events via database/sql (pgx stdlib driver).
//
// Schema:
//
//	CREATE TABLE audit_events (
//	    event_id         UUID PRIMARY KEY,
//	    tenant_id        UUID NOT NULL,
//	    actor_id         UUID,
//	    actor_email      TEXT NOT NULL DEFAULT '',
//	    action           VARCHAR(100) NOT NULL,
//	    event_type       VARCHAR(100) NOT NULL,
//	    module           VARCHAR(50) NOT NULL,
//	    resource_type    VARCHAR(255) NOT NULL DEFAULT '',
//	    resource_id      VARCHAR(255) NOT NULL DEFAULT '',
//	    description      TEXT NOT NULL DEFAULT '',
//	    outcome          VARCHAR(20) NOT NULL DEFAULT 'SUCCESS',
//	    severity         VARCHAR(20) NOT NULL DEFAULT 'LOW',
//	    details          JSONB NOT NULL DEFAULT '{}',
//	    correlation_id   VARCHAR(255) NOT NULL DEFAULT '',
//	    session_id       VARCHAR(255) NOT NULL DEFAULT '',
//	    ip_address       VARCHAR(45) NOT NULL DEFAULT '',
//	    user_agent       TEXT NOT NULL DEFAULT '',
//	    sensitive_data   BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    retention_expiry TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_audit_events_tenant_time ON audit_events (tenant_id, created_at DESC);
//	CREATE INDEX idx_audit_events_actor ON audit_events (actor_id);
//	CREATE INDEX idx_audit_events_correlation ON audit_events (correlation_id);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `event_id, tenant_id, actor_id, actor_email, action, event_type, module,
	resource_type, resource_id, description, outcome, severity, details,
	correlation_id, session_id, ip_address, user_agent, sensitive_data,
	created_at, retention_expiry`

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte("{}")
	}

	var actorID *uuid.UUID
	if event.ActorID != nil {
		u := uuid.UUID(*event.ActorID)
		actorID = &u
	}

	query := `
		INSERT INTO audit_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(event.ID),
		uuid.UUID(event.TenantID),
		actorID,
		event.ActorEmail,
		event.Action,
		event.EventType,
		event.Module,
		event.ResourceType,
		event.ResourceID,
		event.Description,
		event.Outcome,
		string(event.Severity),
		details,
		event.CorrelationID,
		event.SessionID,
		event.IPAddress,
		event.UserAgent,
		event.SensitiveData,
		event.CreatedAt,
		event.RetentionExpiry,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, eventID id.EventID) (Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE event_id = $1`,
		uuid.UUID(eventID),
	)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, sentinel.ErrNotFound
	}
	return event, err
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Event, int64, error) {
	return s.query(ctx, filter, false)
}

func (s *PostgresStore) Search(ctx context.Context, filter Filter) ([]Event, int64, error) {
	return s.query(ctx, filter, true)
}

func (s *PostgresStore) Count(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildWhere(filter, filter.HasSearch())
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events `+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) LastActivity(ctx context.Context, filter Filter) (time.Time, error) {
	where, args := buildWhere(filter, false)
	var last time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM audit_events `+where+` ORDER BY created_at DESC LIMIT 1`,
		args...,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, sentinel.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last activity: %w", err)
	}
	return last, nil
}

func (s *PostgresStore) ReplaceDetails(ctx context.Context, eventID id.EventID, details redact.Details) error {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_events SET details = $2 WHERE event_id = $1`,
		uuid.UUID(eventID), payload,
	)
	if err != nil {
		return fmt.Errorf("replace details: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, filter Filter, withSearch bool) ([]Event, int64, error) {
	filter = filter.Normalized()
	where, args := buildWhere(filter, withSearch)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	limitArgs := append(args, filter.PageSize, filter.Page*filter.PageSize)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM audit_events %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			eventColumns, where, len(args)+1, len(args)+2),
		limitArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}
	return events, total, rows.Err()
}

// buildWhere assembles the WHERE clause shared by list, search, count, and
// last-activity queries. The tenant predicate is always present: a filter
// reaches the store only after scoping.
func buildWhere(filter Filter, withSearch bool) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(filter.TenantID)}

	next := func() int { return len(args) + 1 }

	if filter.ActorID != nil {
		conds = append(conds, fmt.Sprintf("actor_id = $%d", next()))
		args = append(args, uuid.UUID(*filter.ActorID))
	}
	if !filter.IncludeSystemActions {
		conds = append(conds, "actor_id IS NOT NULL")
	}
	if filter.DateFrom != nil {
		conds = append(conds, fmt.Sprintf("created_at >= $%d", next()))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conds = append(conds, fmt.Sprintf("created_at <= $%d", next()))
		args = append(args, *filter.DateTo)
	}
	if filter.HasActionTypes() {
		conds = append(conds, fmt.Sprintf("action = ANY($%d)", next()))
		args = append(args, filter.ActionTypes)
	}
	if len(filter.ActorEmails) > 0 {
		conds = append(conds, fmt.Sprintf("actor_email = ANY($%d)", next()))
		args = append(args, filter.ActorEmails)
	}
	if withSearch && filter.HasSearch() {
		pattern := "%" + filter.SearchTerm() + "%"
		conds = append(conds, fmt.Sprintf(
			"(action ILIKE $%d OR description ILIKE $%d OR resource_type ILIKE $%d OR resource_id ILIKE $%d OR actor_email ILIKE $%d)",
			next(), next(), next(), next(), next()))
		args = append(args, pattern)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		event    Event
		eventID  uuid.UUID
		tenantID uuid.UUID
		actorID  *uuid.UUID
		severity string
		details  []byte
	)
	err := row.Scan(
		&eventID, &tenantID, &actorID, &event.ActorEmail,
		&event.Action, &event.EventType, &event.Module,
		&event.ResourceType, &event.ResourceID, &event.Description,
		&event.Outcome, &severity, &details,
		&event.CorrelationID, &event.SessionID,
		&event.IPAddress, &event.UserAgent, &event.SensitiveData,
		&event.CreatedAt, &event.RetentionExpiry,
	)
	if err != nil {
		return Event{}, err
	}

	event.ID = id.EventID(eventID)
	event.TenantID = id.TenantID(tenantID)
	if actorID != nil {
		actor := id.UserID(*actorID)
		event.ActorID = &actor
	}
	event.Severity = Severity(severity)
	_ = json.Unmarshal(details, &event.Details)
	return event, nil
}
