package export

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sentra/internal/audit"
	"sentra/internal/scope"
	id "sentra/pkg/domain"
	dErrors "sentra/pkg/domain-errors"
)

// recordingJobStore captures every Update so tests can assert the progress
// the worker published page by page.
type recordingJobStore struct {
	*InMemoryJobStore

	mu       sync.Mutex
	progress []int64
	statuses []Status
}

func (r *recordingJobStore) Update(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.progress = append(r.progress, job.ProcessedRecords)
	r.statuses = append(r.statuses, job.Status)
	r.mu.Unlock()
	return r.InMemoryJobStore.Update(ctx, job)
}

// inflatedCountStore reports an arbitrary total without holding the rows,
// for exercising the row ceiling.
type inflatedCountStore struct {
	*audit.InMemoryStore
	total int64
}

func (s *inflatedCountStore) Count(context.Context, audit.Filter) (int64, error) {
	return s.total, nil
}

// completionFailingStore rejects the first Update that publishes COMPLETED,
// simulating a store outage at the worst possible moment.
type completionFailingStore struct {
	*InMemoryJobStore

	mu     sync.Mutex
	failed bool
}

func (c *completionFailingStore) Update(ctx context.Context, job Job) error {
	c.mu.Lock()
	shouldFail := job.Status == StatusCompleted && !c.failed
	if shouldFail {
		c.failed = true
	}
	c.mu.Unlock()
	if shouldFail {
		return errors.New("connection reset")
	}
	return c.InMemoryJobStore.Update(ctx, job)
}

type ExportPipelineSuite struct {
	suite.Suite
	tenant   id.TenantID
	admin    id.UserID
	guest    id.UserID
	events   *audit.InMemoryStore
	jobs     *recordingJobStore
	counter  *InMemoryCounterStore
	queue    chan id.ExportID
	resolver *scope.Resolver
	service  *Service
	worker   *Worker
	dir      string
}

func TestExportPipelineSuite(t *testing.T) {
	suite.Run(t, new(ExportPipelineSuite))
}

func (s *ExportPipelineSuite) SetupTest() {
	s.tenant = id.NewTenantID()
	s.admin = id.NewUserID()
	s.guest = id.NewUserID()
	s.events = audit.NewInMemoryStore()
	s.jobs = &recordingJobStore{InMemoryJobStore: NewInMemoryJobStore()}
	s.counter = NewInMemoryCounterStore()
	s.queue = make(chan id.ExportID, 16)
	s.dir = s.T().TempDir()

	s.resolver = scope.NewResolver(scope.LookupFunc(
		func(_ context.Context, userID id.UserID) (scope.Identity, error) {
			switch userID {
			case s.admin:
				return scope.Identity{TenantID: s.tenant, Role: scope.RoleAdmin}, nil
			case s.guest:
				return scope.Identity{TenantID: s.tenant, Role: scope.RoleGuest}, nil
			}
			return scope.Identity{}, errors.New("unknown user")
		},
	))
	s.service = NewService(s.jobs, s.counter, s.queue, s.resolver)
	s.worker = NewWorker(s.queue, s.jobs, s.events, s.resolver, s.dir)
}

func (s *ExportPipelineSuite) seedEvents(n int) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		e := audit.New(&s.admin, "user.login").WithTenant(s.tenant)
		e.ActorEmail = "a***n@example.com"
		e.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		s.Require().NoError(s.events.Append(ctx, e))
	}
}

// drainOne pops the queued job id and runs it through the worker inline.
func (s *ExportPipelineSuite) drainOne() Job {
	ctx := context.Background()
	select {
	case jobID := <-s.queue:
		s.worker.process(ctx, jobID)
		job, err := s.jobs.Get(ctx, jobID)
		s.Require().NoError(err)
		return job
	default:
		s.FailNow("no job queued")
		return Job{}
	}
}

func (s *ExportPipelineSuite) TestFullCSVRun() {
	ctx := context.Background()
	s.seedEvents(2500)

	requested, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
	s.Require().NoError(err)
	s.Equal(StatusPending, requested.Status)

	job := s.drainOne()
	s.Equal(StatusCompleted, job.Status)
	s.Equal(int64(2500), job.TotalRecords)
	s.Equal(int64(2500), job.ProcessedRecords)
	s.Len(job.DownloadToken, 32)
	s.Positive(job.FileSizeBytes)

	s.Run("progress was published page by page", func() {
		s.Equal([]int64{0, 1000, 2000, 2500, 2500}, s.jobs.progress)
		s.Equal(StatusProcessing, s.jobs.statuses[0])
		s.Equal(StatusCompleted, s.jobs.statuses[len(s.jobs.statuses)-1])
	})

	s.Run("file holds header plus every row", func() {
		f, err := os.Open(job.FilePath)
		s.Require().NoError(err)
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		s.Require().NoError(err)
		s.Len(rows, 2501)
	})

	s.Run("status endpoint view is owner-only", func() {
		got, ok, err := s.service.Status(ctx, s.admin, job.ID)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(StatusCompleted, got.Status)

		_, ok, err = s.service.Status(ctx, s.guest, job.ID)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *ExportPipelineSuite) TestSearchCriteriaFiltersRows() {
	ctx := context.Background()
	s.seedEvents(7)
	base := time.Now().Add(-30 * time.Minute)
	for i := 0; i < 3; i++ {
		e := audit.New(&s.admin, "payment.processed").WithTenant(s.tenant)
		e.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		s.Require().NoError(s.events.Append(ctx, e))
	}

	_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{Search: "payment"})
	s.Require().NoError(err)
	job := s.drainOne()

	s.Equal(StatusCompleted, job.Status)
	s.Equal(int64(3), job.TotalRecords)
	s.Equal(int64(3), job.ProcessedRecords)

	f, err := os.Open(job.FilePath)
	s.Require().NoError(err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(rows, 4)
	for _, row := range rows[1:] {
		s.Equal("payment.processed", row[2])
	}
}

func (s *ExportPipelineSuite) TestSearchTermTooLongRejected() {
	_, err := s.service.Request(context.Background(), s.admin, FormatCSV, Criteria{
		Search: strings.Repeat("x", audit.MaxSearchLength+1),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Contains(err.Error(), "search term")
}

func (s *ExportPipelineSuite) TestDownloadWindow() {
	ctx := context.Background()
	s.seedEvents(10)
	_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
	s.Require().NoError(err)
	job := s.drainOne()

	s.Run("token downloads up to the cap", func() {
		for i := 0; i < DefaultMaxDownloads; i++ {
			download, ok, err := s.service.Download(ctx, job.DownloadToken)
			s.Require().NoError(err)
			s.Require().True(ok, "download %d should succeed", i+1)
			body, err := io.ReadAll(download.Reader)
			s.Require().NoError(err)
			s.Require().NoError(download.Reader.Close())
			s.True(strings.HasPrefix(string(body), "Timestamp,"))
			s.Equal("text/csv", download.MimeType)
		}

		_, ok, err := s.service.Download(ctx, job.DownloadToken)
		s.Require().NoError(err)
		s.False(ok, "download past the cap must fail")
	})

	s.Run("unknown token behaves identically to exhausted", func() {
		_, ok, err := s.service.Download(ctx, "nosuchtokennosuchtokennosuchtoke")
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *ExportPipelineSuite) TestDownloadExpiry() {
	ctx := context.Background()
	s.seedEvents(5)
	_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
	s.Require().NoError(err)
	job := s.drainOne()

	job.DownloadExpires = time.Now().Add(-time.Minute)
	s.Require().NoError(s.jobs.Update(ctx, job))

	_, ok, err := s.service.Download(ctx, job.DownloadToken)
	s.Require().NoError(err)
	s.False(ok)

	got, found, err := s.service.Status(ctx, s.admin, job.ID)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(StatusExpired, got.Status)
}

func (s *ExportPipelineSuite) TestConcurrencyLimit() {
	ctx := context.Background()
	for i := 0; i < MaxActiveJobs; i++ {
		_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
		s.Require().NoError(err)
	}

	_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Contains(err.Error(), "concurrent")
}

func (s *ExportPipelineSuite) TestHourlyRateLimit() {
	ctx := context.Background()
	s.seedEvents(1)

	for i := 0; i < MaxRequestsWindow; i++ {
		_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
		s.Require().NoError(err)
		s.drainOne()
	}

	_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Contains(err.Error(), "per hour")
}

func (s *ExportPipelineSuite) TestHourlyLimitSurvivesCounterRestart() {
	ctx := context.Background()
	s.seedEvents(1)

	for i := 0; i < MaxRequestsWindow; i++ {
		_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
		s.Require().NoError(err)
		s.drainOne()
	}

	// A fresh counter simulates a flushed rate-limit backend; the job store
	// still remembers every submission in the window.
	s.service = NewService(s.jobs, NewInMemoryCounterStore(), s.queue, s.resolver)
	_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Contains(err.Error(), "per hour")
}

func (s *ExportPipelineSuite) TestFailedCompletionPublishEndsFailed() {
	ctx := context.Background()
	s.seedEvents(5)
	flaky := &completionFailingStore{InMemoryJobStore: s.jobs.InMemoryJobStore}
	s.service = NewService(flaky, s.counter, s.queue, s.resolver)
	s.worker = NewWorker(s.queue, flaky, s.events, s.resolver, s.dir)

	_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
	s.Require().NoError(err)
	job := s.drainOne()

	s.Equal(StatusFailed, job.Status)
	s.Contains(job.ErrorMessage, "publish export completion")
	s.NoFileExists(filepath.Join(s.dir, job.ID.String()+".csv"))
}

func (s *ExportPipelineSuite) TestRowCeilingFailsJob() {
	ctx := context.Background()
	inflated := &inflatedCountStore{InMemoryStore: s.events, total: MaxExportRows + 1}
	s.worker = NewWorker(s.queue, s.jobs, inflated, s.resolver, s.dir)

	_, err := s.service.Request(ctx, s.admin, FormatCSV, Criteria{})
	s.Require().NoError(err)
	job := s.drainOne()

	s.Equal(StatusFailed, job.Status)
	s.Contains(job.ErrorMessage, "maximum")
	s.NoFileExists(filepath.Join(s.dir, job.ID.String()+".csv"))
}

func (s *ExportPipelineSuite) TestGuestCannotExport() {
	_, err := s.service.Request(context.Background(), s.guest, FormatCSV, Criteria{})
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
}
