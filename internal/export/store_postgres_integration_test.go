//go:build integration

package export_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sentra/internal/export"
	id "sentra/pkg/domain"
	"sentra/pkg/platform/sentinel"
	"sentra/pkg/testutil/containers"
)

type PostgresJobStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *export.PostgresJobStore
	user     id.UserID
}

func TestPostgresJobStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresJobStoreSuite))
}

func (s *PostgresJobStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = export.NewPostgresJobStore(s.postgres.DB)
}

func (s *PostgresJobStoreSuite) TearDownSuite() {
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *PostgresJobStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "export_jobs"))
	s.user = id.NewUserID()
}

func (s *PostgresJobStoreSuite) newJob() export.Job {
	job := export.NewJob(id.NewTenantID(), s.user, export.FormatCSV, export.Criteria{
		Search: "payment",
	})
	job.CreatedAt = job.CreatedAt.Truncate(time.Microsecond)
	s.Require().NoError(s.store.Create(context.Background(), job))
	return job
}

func (s *PostgresJobStoreSuite) TestCreateAndGet() {
	ctx := context.Background()
	job := s.newJob()

	stored, err := s.store.Get(ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(export.StatusPending, stored.Status)
	s.Equal("payment", stored.Criteria.Search)
	s.Empty(stored.DownloadToken)

	_, err = s.store.Get(ctx, id.NewExportID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresJobStoreSuite) TestLifecycleRoundTrip() {
	ctx := context.Background()
	job := s.newJob()
	now := time.Now().Truncate(time.Microsecond)

	s.Require().NoError(job.MarkStarted(500, now))
	job.ProcessedRecords = 500
	token, err := export.GenerateToken()
	s.Require().NoError(err)
	s.Require().NoError(job.MarkCompleted("/tmp/out.csv", 4096, token, now))
	s.Require().NoError(s.store.Update(ctx, job))

	stored, err := s.store.FindByToken(ctx, token)
	s.Require().NoError(err)
	s.Equal(job.ID, stored.ID)
	s.Equal(export.StatusCompleted, stored.Status)
	s.Equal(int64(500), stored.ProcessedRecords)
	s.WithinDuration(job.DownloadExpires, stored.DownloadExpires, time.Millisecond)

	_, err = s.store.FindByToken(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresJobStoreSuite) TestCounts() {
	ctx := context.Background()
	active := s.newJob()
	s.newJob()

	finished := active
	s.Require().NoError(finished.MarkStarted(1, time.Now()))
	s.Require().NoError(finished.MarkFailed("boom", time.Now()))
	s.Require().NoError(s.store.Update(ctx, finished))

	count, err := s.store.CountActive(ctx, s.user)
	s.Require().NoError(err)
	s.Equal(1, count)

	recent, err := s.store.CountCreatedSince(ctx, s.user, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(2, recent)

	none, err := s.store.CountCreatedSince(ctx, id.NewUserID(), time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Zero(none)
}

func (s *PostgresJobStoreSuite) TestListByUser() {
	ctx := context.Background()
	first := s.newJob()
	time.Sleep(10 * time.Millisecond)
	second := s.newJob()

	jobs, err := s.store.ListByUser(ctx, s.user, 10)
	s.Require().NoError(err)
	s.Require().Len(jobs, 2)
	s.Equal(second.ID, jobs[0].ID)
	s.Equal(first.ID, jobs[1].ID)

	limited, err := s.store.ListByUser(ctx, s.user, 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}
