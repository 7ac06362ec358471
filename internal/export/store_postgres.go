package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "sentra/pkg/domain"
	"sentra/pkg/platform/sentinel"
)

// PostgresJobStore persists export jobs via database/sql (pgx stdlib driver).
//
// Schema:
//
//	CREATE TABLE export_jobs (
//	    job_id            UUID PRIMARY KEY,
//	    tenant_id         UUID NOT NULL,
//	    requested_by      UUID NOT NULL,
//	    format            VARCHAR(10) NOT NULL,
//	    criteria          JSONB NOT NULL DEFAULT '{}',
//	    status            VARCHAR(20) NOT NULL,
//	    total_records     BIGINT NOT NULL DEFAULT 0,
//	    processed_records BIGINT NOT NULL DEFAULT 0,
//	    file_path         TEXT NOT NULL DEFAULT '',
//	    file_size_bytes   BIGINT NOT NULL DEFAULT 0,
//	    error_message     TEXT NOT NULL DEFAULT '',
//	    download_token    VARCHAR(64),
//	    download_count    INT NOT NULL DEFAULT 0,
//	    max_downloads     INT NOT NULL DEFAULT 5,
//	    download_expires  TIMESTAMPTZ,
//	    created_at        TIMESTAMPTZ NOT NULL,
//	    started_at        TIMESTAMPTZ,
//	    completed_at      TIMESTAMPTZ
//	);
//	CREATE UNIQUE INDEX idx_export_jobs_token ON export_jobs (download_token) WHERE download_token IS NOT NULL;
//	CREATE INDEX idx_export_jobs_user ON export_jobs (requested_by, created_at DESC);
type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

const jobColumns = `job_id, tenant_id, requested_by, format, criteria, status,
	total_records, processed_records, file_path, file_size_bytes, error_message,
	download_token, download_count, max_downloads, download_expires,
	created_at, started_at, completed_at`

func (s *PostgresJobStore) Create(ctx context.Context, job Job) error {
	criteria, err := json.Marshal(job.Criteria)
	if err != nil {
		criteria = []byte("{}")
	}
	query := `
		INSERT INTO export_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(job.ID),
		uuid.UUID(job.TenantID),
		uuid.UUID(job.RequestedBy),
		string(job.Format),
		criteria,
		string(job.Status),
		job.TotalRecords,
		job.ProcessedRecords,
		job.FilePath,
		job.FileSizeBytes,
		job.ErrorMessage,
		nullString(job.DownloadToken),
		job.DownloadCount,
		job.MaxDownloads,
		nullTime(job.DownloadExpires),
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert export job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, jobID id.ExportID) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM export_jobs WHERE job_id = $1`,
		uuid.UUID(jobID),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, sentinel.ErrNotFound
	}
	return job, err
}

func (s *PostgresJobStore) Update(ctx context.Context, job Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = $2, total_records = $3, processed_records = $4,
		    file_path = $5, file_size_bytes = $6, error_message = $7,
		    download_token = $8, download_count = $9, max_downloads = $10,
		    download_expires = $11, started_at = $12, completed_at = $13
		WHERE job_id = $1`,
		uuid.UUID(job.ID),
		string(job.Status),
		job.TotalRecords,
		job.ProcessedRecords,
		job.FilePath,
		job.FileSizeBytes,
		job.ErrorMessage,
		nullString(job.DownloadToken),
		job.DownloadCount,
		job.MaxDownloads,
		nullTime(job.DownloadExpires),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresJobStore) FindByToken(ctx context.Context, token string) (Job, error) {
	if token == "" {
		return Job{}, sentinel.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM export_jobs WHERE download_token = $1`,
		token,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, sentinel.ErrNotFound
	}
	return job, err
}

func (s *PostgresJobStore) ListByUser(ctx context.Context, userID id.UserID, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM export_jobs WHERE requested_by = $1 ORDER BY created_at DESC LIMIT $2`,
		uuid.UUID(userID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresJobStore) CountActive(ctx context.Context, userID id.UserID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM export_jobs WHERE requested_by = $1 AND status IN ('PENDING', 'PROCESSING')`,
		uuid.UUID(userID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active export jobs: %w", err)
	}
	return count, nil
}

func (s *PostgresJobStore) CountCreatedSince(ctx context.Context, userID id.UserID, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM export_jobs WHERE requested_by = $1 AND created_at >= $2`,
		uuid.UUID(userID), cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent export jobs: %w", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job         Job
		jobID       uuid.UUID
		tenantID    uuid.UUID
		requestedBy uuid.UUID
		format      string
		criteria    []byte
		status      string
		token       sql.NullString
		expires     sql.NullTime
		started     sql.NullTime
		completed   sql.NullTime
	)
	err := row.Scan(
		&jobID, &tenantID, &requestedBy, &format, &criteria, &status,
		&job.TotalRecords, &job.ProcessedRecords, &job.FilePath,
		&job.FileSizeBytes, &job.ErrorMessage,
		&token, &job.DownloadCount, &job.MaxDownloads, &expires,
		&job.CreatedAt, &started, &completed,
	)
	if err != nil {
		return Job{}, err
	}

	job.ID = id.ExportID(jobID)
	job.TenantID = id.TenantID(tenantID)
	job.RequestedBy = id.UserID(requestedBy)
	job.Format = Format(format)
	job.Status = Status(status)
	job.DownloadToken = token.String
	job.DownloadExpires = expires.Time
	job.StartedAt = started.Time
	job.CompletedAt = completed.Time
	_ = json.Unmarshal(criteria, &job.Criteria)
	return job, nil
}
