package audit

import (
	"context"
	"time"

	"sentra/internal/redact"
	id "sentra/pkg/domain"
)

// Store is the persistence contract for audit events. Implementations must
// return results sorted by CreatedAt descending and honor the filter's
// pagination. Stores are interface-driven so the query service and export
// worker can run against in-memory storage in tests.
type Store interface {
	// Append persists a new event. Appending an event whose ID already
	// exists is a no-op, which makes ingest replay idempotent.
	Append(ctx context.Context, event Event) error

	// FindByID returns sentinel.ErrNotFound when the event does not exist.
	FindByID(ctx context.Context, eventID id.EventID) (Event, error)

	// List returns a page of events matching the structured filter plus the
	// total match count.
	List(ctx context.Context, filter Filter) ([]Event, int64, error)

	// Search behaves like List but additionally matches the filter's search
	// term against action, description, resource, and actor email.
	Search(ctx context.Context, filter Filter) ([]Event, int64, error)

	// Count returns the total match count without fetching rows.
	Count(ctx context.Context, filter Filter) (int64, error)

	// LastActivity returns the creation time of the newest matching event,
	// or sentinel.ErrNotFound when nothing matches.
	LastActivity(ctx context.Context, filter Filter) (time.Time, error)

	// ReplaceDetails swaps the whole detail map of an event. This is the
	// only permitted mutation and exists for compensating GDPR erasure
	// writes; it never patches individual keys.
	ReplaceDetails(ctx context.Context, eventID id.EventID, details redact.Details) error
}
