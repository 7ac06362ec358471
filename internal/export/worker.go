package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"sentra/internal/audit"
	expMetrics "sentra/internal/export/metrics"
	"sentra/internal/redact"
	"sentra/internal/scope"
	id "sentra/pkg/domain"
)

const defaultWorkerCount = 2

// Worker drains the job queue and produces export files. Each job re-derives
// its scoped filter and permissions at processing time, so a role downgrade
// between request and processing narrows the output rather than leaking.
type Worker struct {
	jobs    <-chan id.ExportID
	store   JobStore
	events  audit.Store
	scope   *scope.Resolver
	dir     string
	workers int
	logger  *slog.Logger
	metrics *expMetrics.Metrics
	now     func() time.Time
}

type WorkerOption func(*Worker)

func WithWorkerCount(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.workers = n
		}
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func WithWorkerMetrics(m *expMetrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(jobs <-chan id.ExportID, store JobStore, events audit.Store, resolver *scope.Resolver, dir string, opts ...WorkerOption) *Worker {
	w := &Worker{
		jobs:    jobs,
		store:   store,
		events:  events,
		scope:   resolver,
		dir:     dir,
		workers: defaultWorkerCount,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes jobs until the context is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case jobID, ok := <-w.jobs:
					if !ok {
						return nil
					}
					w.process(ctx, jobID)
				}
			}
		})
	}
	return g.Wait()
}

func (w *Worker) process(ctx context.Context, jobID id.ExportID) {
	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		w.logger.ErrorContext(ctx, "export job lookup failed",
			"job_id", jobID.String(), "error", err)
		return
	}
	if job.Status != StatusPending {
		return
	}

	if err := w.produce(ctx, &job); err != nil {
		w.fail(ctx, &job, err)
	}
}

func (w *Worker) produce(ctx context.Context, job *Job) error {
	requested := audit.Filter{
		Search:      job.Criteria.Search,
		DateFrom:    job.Criteria.DateFrom,
		DateTo:      job.Criteria.DateTo,
		ActionTypes: job.Criteria.ActionTypes,
	}
	scoped, err := w.scope.ScopeFilter(ctx, job.RequestedBy, requested)
	if err != nil {
		return err
	}
	perms := w.scope.Resolve(ctx, job.RequestedBy)

	total, err := w.events.Count(ctx, scoped)
	if err != nil {
		return fmt.Errorf("count export rows: %w", err)
	}

	start := w.now()
	if err := job.MarkStarted(total, start); err != nil {
		return err
	}
	if err := w.store.Update(ctx, *job); err != nil {
		return fmt.Errorf("publish export start: %w", err)
	}

	limit := rowCap(perms)
	if total > int64(limit) {
		return fmt.Errorf("export of %d records exceeds the maximum of %d", total, limit)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s.%s", job.ID.String(), job.Format.Extension()))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	writer := NewWriter(job.Format)
	if err := writer.Begin(file, *job); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	for page := 0; int64(page)*PageSize < total; page++ {
		events, err := w.fetchPage(ctx, scoped, page)
		if err != nil {
			return fmt.Errorf("fetch export page %d: %w", page, err)
		}
		if len(events) == 0 {
			break
		}
		if err := writer.WritePage(toRecords(events, perms)); err != nil {
			return fmt.Errorf("write export page %d: %w", page, err)
		}

		job.ProcessedRecords += int64(len(events))
		if err := w.store.Update(ctx, *job); err != nil {
			return fmt.Errorf("publish export progress: %w", err)
		}
	}
	if err := writer.End(); err != nil {
		return fmt.Errorf("finalize export file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat export file: %w", err)
	}
	token, err := GenerateToken()
	if err != nil {
		return err
	}

	if err := job.MarkCompleted(path, info.Size(), token, w.now()); err != nil {
		return err
	}
	if err := w.store.Update(ctx, *job); err != nil {
		return fmt.Errorf("publish export completion: %w", err)
	}

	if w.metrics != nil {
		w.metrics.ObserveCompleted(job.ProcessedRecords, w.now().Sub(start))
	}
	w.logger.InfoContext(ctx, "export completed",
		"job_id", job.ID.String(),
		"format", string(job.Format),
		"records", job.ProcessedRecords,
	)
	return nil
}

// fetchPage pulls one page in the same mode the read path uses: a criteria
// with a search term pages through Search so the file holds exactly the rows
// Count admitted.
func (w *Worker) fetchPage(ctx context.Context, scoped audit.Filter, page int) ([]audit.Event, error) {
	paged := scoped.WithPage(page, PageSize)
	if scoped.HasSearch() {
		events, _, err := w.events.Search(ctx, paged)
		return events, err
	}
	events, _, err := w.events.List(ctx, paged)
	return events, err
}

// fail moves the job to FAILED and removes any partial file. The stored
// message is safe to surface to the requester.
func (w *Worker) fail(ctx context.Context, job *Job, cause error) {
	w.logger.ErrorContext(ctx, "export failed",
		"job_id", job.ID.String(), "error", cause)
	if w.metrics != nil {
		w.metrics.ObserveFailed()
	}

	if job.FilePath != "" {
		_ = os.Remove(job.FilePath)
	} else {
		_ = os.Remove(filepath.Join(w.dir, fmt.Sprintf("%s.%s", job.ID.String(), job.Format.Extension())))
	}

	if err := job.MarkFailed(cause.Error(), w.now()); err != nil {
		// The job may already be terminal in memory (an Update after
		// MarkCompleted failed) while the stored row still says PROCESSING.
		// Force the terminal state so the row converges instead of sitting
		// in PROCESSING forever.
		job.Status = StatusFailed
		job.ErrorMessage = cause.Error()
		job.CompletedAt = w.now()
	}
	if err := w.store.Update(ctx, *job); err != nil {
		w.logger.ErrorContext(ctx, "failed to persist export failure",
			"job_id", job.ID.String(), "error", err)
	}
}

// rowCap is the effective row ceiling: the global maximum, narrowed further
// by the requester's role.
func rowCap(perms scope.Permissions) int {
	limit := MaxExportRows
	if perms.MaxExportRows > 0 && perms.MaxExportRows < limit {
		limit = perms.MaxExportRows
	}
	return limit
}

func toRecords(events []audit.Event, perms scope.Permissions) []Record {
	records := make([]Record, 0, len(events))
	for _, e := range events {
		records = append(records, toRecord(e, perms))
	}
	return records
}

func toRecord(e audit.Event, perms scope.Permissions) Record {
	actor := e.ActorEmail
	if e.IsSystemGenerated() && actor == "" {
		actor = "system"
	}
	if !perms.CanViewSensitiveData && !e.IsSystemGenerated() {
		actor = redact.Redacted
	}

	resource := e.ResourceType
	if e.ResourceID != "" {
		resource = e.ResourceType + "/" + e.ResourceID
	}

	r := Record{
		Timestamp:   e.CreatedAt,
		Actor:       actor,
		Action:      e.Action,
		Resource:    resource,
		Description: e.Description,
		Outcome:     e.Outcome,
	}
	if perms.CanViewTechnicalData {
		r.IPAddress = e.IPAddress
		r.SessionID = e.SessionID
	}
	return r
}
