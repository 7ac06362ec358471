package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"sentra/internal/audit"
	expMetrics "sentra/internal/export/metrics"
	"sentra/internal/scope"
	id "sentra/pkg/domain"
	dErrors "sentra/pkg/domain-errors"
	"sentra/pkg/platform/sentinel"
)

// Service is the front of the export pipeline: it admits requests through the
// concurrency and rate limits, exposes status and history to the owner, and
// gates downloads on the token's window and count.
type Service struct {
	store   JobStore
	counter CounterStore
	queue   chan<- id.ExportID
	scope   *scope.Resolver
	logger  *slog.Logger
	metrics *expMetrics.Metrics
	now     func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *expMetrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(store JobStore, counter CounterStore, queue chan<- id.ExportID, resolver *scope.Resolver, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		counter: counter,
		queue:   queue,
		scope:   resolver,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func rateKey(userID id.UserID) string {
	return "audit:export:rate:" + userID.String()
}

// Request admits a new export job. Both limits are checked against the
// requester, not the tenant, so one user cannot starve their colleagues.
func (s *Service) Request(ctx context.Context, userID id.UserID, format Format, criteria Criteria) (Job, error) {
	if len(criteria.Search) > audit.MaxSearchLength {
		return Job{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"search term must not exceed %d characters", audit.MaxSearchLength)
	}

	perms := s.scope.Resolve(ctx, userID)
	if !perms.CanView {
		return Job{}, dErrors.New(dErrors.CodeAccessDenied, "access denied to audit logs")
	}

	active, err := s.store.CountActive(ctx, userID)
	if err != nil {
		return Job{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check active exports")
	}
	if active >= MaxActiveJobs {
		s.observeRateLimited()
		return Job{}, dErrors.Newf(dErrors.CodeRateLimited,
			"maximum of %d concurrent exports reached, wait for one to finish", MaxActiveJobs)
	}

	// The job store is the durable hourly check: it counts submissions that
	// outlive a flushed or restarted counter backend.
	recent, err := s.store.CountCreatedSince(ctx, userID, s.now().Add(-RequestWindow))
	if err != nil {
		return Job{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check export rate")
	}
	if recent >= MaxRequestsWindow {
		s.observeRateLimited()
		return Job{}, dErrors.Newf(dErrors.CodeRateLimited,
			"export limit of %d per hour reached, try again later", MaxRequestsWindow)
	}

	// The counter closes the race the store count leaves open: incremented
	// before the check, concurrent requests over-count and reject rather than
	// admit a sixth.
	count, err := s.counter.IncrWindow(ctx, rateKey(userID), RequestWindow)
	if err != nil {
		return Job{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "export rate limiter unavailable")
	}
	if count > MaxRequestsWindow {
		s.observeRateLimited()
		return Job{}, dErrors.Newf(dErrors.CodeRateLimited,
			"export limit of %d per hour reached, try again later", MaxRequestsWindow)
	}

	job := NewJob(perms.TenantID, userID, format, criteria)
	job.CreatedAt = s.now()
	if err := s.store.Create(ctx, job); err != nil {
		return Job{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create export job")
	}

	select {
	case s.queue <- job.ID:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}

	if s.metrics != nil {
		s.metrics.ObserveRequested(string(format))
	}
	s.logger.InfoContext(ctx, "export requested",
		"job_id", job.ID.String(),
		"user_id", userID.String(),
		"format", string(format),
	)
	return job, nil
}

// Status returns the job if the caller owns it. A missing job and another
// user's job produce the identical (zero, false, nil) result.
func (s *Service) Status(ctx context.Context, userID id.UserID, jobID id.ExportID) (Job, bool, error) {
	job, err := s.store.Get(ctx, jobID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load export job")
	}
	if job.RequestedBy != userID {
		return Job{}, false, nil
	}
	job.Status = job.EffectiveStatus(s.now())
	return job, true, nil
}

// History returns the caller's jobs newest first.
func (s *Service) History(ctx context.Context, userID id.UserID, limit int) ([]Job, error) {
	jobs, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load export history")
	}
	now := s.now()
	for i := range jobs {
		jobs[i].Status = jobs[i].EffectiveStatus(now)
	}
	return jobs, nil
}

// Download is a ready-to-stream export file.
type Download struct {
	Reader    io.ReadCloser
	MimeType  string
	Filename  string
	SizeBytes int64
}

// Download resolves a token to its file. Every failure mode collapses to
// (zero, false, nil): an unknown token, an expired window, and an exhausted
// download count are indistinguishable to the caller. The count is consumed
// before the file is served.
func (s *Service) Download(ctx context.Context, token string) (Download, bool, error) {
	job, err := s.store.FindByToken(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Download{}, false, nil
	}
	if err != nil {
		return Download{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve download token")
	}
	if !job.CanDownload(s.now()) {
		return Download{}, false, nil
	}

	job.DownloadCount++
	if err := s.store.Update(ctx, job); err != nil {
		return Download{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume download")
	}

	file, err := os.Open(job.FilePath)
	if err != nil {
		return Download{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "export file unavailable")
	}

	if s.metrics != nil {
		s.metrics.ObserveDownload()
	}
	s.logger.InfoContext(ctx, "export downloaded",
		"job_id", job.ID.String(),
		"downloads_used", job.DownloadCount,
	)
	return Download{
		Reader:    file,
		MimeType:  job.Format.MimeType(),
		Filename:  fmt.Sprintf("audit-export-%s.%s", job.ID.String(), job.Format.Extension()),
		SizeBytes: job.FileSizeBytes,
	}, true, nil
}

func (s *Service) observeRateLimited() {
	if s.metrics != nil {
		s.metrics.ObserveRateLimited()
	}
}
