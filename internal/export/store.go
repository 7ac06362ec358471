package export

import (
	"context"
	"time"

	id "sentra/pkg/domain"
)

// JobStore persists export jobs. Implementations return
// sentinel.ErrNotFound for missing jobs and sentinel.ErrConflict when Create
// sees a duplicate id.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID id.ExportID) (Job, error)

	// Update overwrites the stored job. The worker calls it once per page to
	// publish progress, so implementations should keep it cheap.
	Update(ctx context.Context, job Job) error

	// FindByToken resolves a download token to its job.
	FindByToken(ctx context.Context, token string) (Job, error)

	// ListByUser returns the user's jobs newest first.
	ListByUser(ctx context.Context, userID id.UserID, limit int) ([]Job, error)

	// CountActive counts the user's jobs still in PENDING or PROCESSING.
	CountActive(ctx context.Context, userID id.UserID) (int, error)

	// CountCreatedSince counts the user's jobs created at or after the cutoff,
	// regardless of state.
	CountCreatedSince(ctx context.Context, userID id.UserID, cutoff time.Time) (int, error)
}
