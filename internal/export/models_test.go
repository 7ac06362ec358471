package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "sentra/pkg/domain"
	"sentra/pkg/platform/sentinel"
)

type JobSuite struct {
	suite.Suite
	now time.Time
}

func TestJobSuite(t *testing.T) {
	suite.Run(t, new(JobSuite))
}

func (s *JobSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *JobSuite) completedJob() Job {
	job := NewJob(id.NewTenantID(), id.NewUserID(), FormatCSV, Criteria{})
	s.Require().NoError(job.MarkStarted(100, s.now))
	job.ProcessedRecords = 100
	s.Require().NoError(job.MarkCompleted("/tmp/x.csv", 2048, "tok", s.now))
	return job
}

func (s *JobSuite) TestLifecycle() {
	s.Run("new jobs are pending and active", func() {
		job := NewJob(id.NewTenantID(), id.NewUserID(), FormatCSV, Criteria{})
		s.Equal(StatusPending, job.Status)
		s.True(job.IsActive())
		s.Equal(DefaultMaxDownloads, job.MaxDownloads)
	})

	s.Run("completion stamps token and expiry", func() {
		job := s.completedJob()
		s.Equal(StatusCompleted, job.Status)
		s.False(job.IsActive())
		s.Equal("tok", job.DownloadToken)
		s.Equal(s.now.Add(DownloadTTL), job.DownloadExpires)
	})

	s.Run("completing a pending job is rejected", func() {
		job := NewJob(id.NewTenantID(), id.NewUserID(), FormatCSV, Criteria{})
		err := job.MarkCompleted("/tmp/x.csv", 1, "tok", s.now)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("restarting a processing job is rejected", func() {
		job := NewJob(id.NewTenantID(), id.NewUserID(), FormatCSV, Criteria{})
		s.Require().NoError(job.MarkStarted(10, s.now))
		s.ErrorIs(job.MarkStarted(10, s.now), sentinel.ErrInvalidState)
	})

	s.Run("failing a completed job is rejected", func() {
		job := s.completedJob()
		s.ErrorIs(job.MarkFailed("late", s.now), sentinel.ErrInvalidState)
	})
}

func (s *JobSuite) TestDownloadGating() {
	s.Run("fresh completed job can download", func() {
		s.True(s.completedJob().CanDownload(s.now))
	})

	s.Run("past expiry cannot download and reports expired", func() {
		job := s.completedJob()
		after := s.now.Add(DownloadTTL + time.Minute)
		s.False(job.CanDownload(after))
		s.Equal(StatusExpired, job.EffectiveStatus(after))
	})

	s.Run("download count exhausts", func() {
		job := s.completedJob()
		job.DownloadCount = DefaultMaxDownloads
		s.False(job.CanDownload(s.now))
	})

	s.Run("pending job cannot download", func() {
		job := NewJob(id.NewTenantID(), id.NewUserID(), FormatCSV, Criteria{})
		s.False(job.CanDownload(s.now))
	})
}

func (s *JobSuite) TestProgressPercent() {
	job := NewJob(id.NewTenantID(), id.NewUserID(), FormatCSV, Criteria{})
	s.Zero(job.ProgressPercent())

	s.Require().NoError(job.MarkStarted(2500, s.now))
	job.ProcessedRecords = 1000
	s.Equal(40, job.ProgressPercent())

	job.ProcessedRecords = 2500
	s.Equal(100, job.ProgressPercent())
}

func (s *JobSuite) TestGenerateToken() {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		token, err := GenerateToken()
		s.Require().NoError(err)
		s.Len(token, 32)
		for _, c := range token {
			s.True(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9',
				"unexpected character %q", c)
		}
		s.False(seen[token], "token collision")
		seen[token] = true
	}
}

func (s *JobSuite) TestParseFormat() {
	for _, raw := range []string{"CSV", "JSON", "PDF"} {
		format, err := ParseFormat(raw)
		s.NoError(err)
		s.Equal(raw, string(format))
	}
	_, err := ParseFormat("XLSX")
	s.Error(err)
}
