//go:build integration

// Package containers starts throwaway Postgres and Redis instances for
// integration tests. Containers are shared per test binary; Ryuk reaps them.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    event_id         UUID PRIMARY KEY,
    tenant_id        UUID NOT NULL,
    actor_id         UUID,
    actor_email      TEXT NOT NULL DEFAULT '',
    action           VARCHAR(100) NOT NULL,
    event_type       VARCHAR(100) NOT NULL,
    module           VARCHAR(50) NOT NULL,
    resource_type    VARCHAR(255) NOT NULL DEFAULT '',
    resource_id      VARCHAR(255) NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    outcome          VARCHAR(20) NOT NULL DEFAULT 'SUCCESS',
    severity         VARCHAR(20) NOT NULL DEFAULT 'LOW',
    details          JSONB NOT NULL DEFAULT '{}',
    correlation_id   VARCHAR(255) NOT NULL DEFAULT '',
    session_id       VARCHAR(255) NOT NULL DEFAULT '',
    ip_address       VARCHAR(45) NOT NULL DEFAULT '',
    user_agent       TEXT NOT NULL DEFAULT '',
    sensitive_data   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL,
    retention_expiry TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_tenant_time ON audit_events (tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS export_jobs (
    job_id            UUID PRIMARY KEY,
    tenant_id         UUID NOT NULL,
    requested_by      UUID NOT NULL,
    format            VARCHAR(10) NOT NULL,
    criteria          JSONB NOT NULL DEFAULT '{}',
    status            VARCHAR(20) NOT NULL,
    total_records     BIGINT NOT NULL DEFAULT 0,
    processed_records BIGINT NOT NULL DEFAULT 0,
    file_path         TEXT NOT NULL DEFAULT '',
    file_size_bytes   BIGINT NOT NULL DEFAULT 0,
    error_message     TEXT NOT NULL DEFAULT '',
    download_token    VARCHAR(64),
    download_count    INT NOT NULL DEFAULT 0,
    max_downloads     INT NOT NULL DEFAULT 5,
    download_expires  TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL,
    started_at        TIMESTAMPTZ,
    completed_at      TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_export_jobs_token ON export_jobs (download_token) WHERE download_token IS NOT NULL;
`

// PostgresContainer wraps a testcontainers Postgres instance with the audit
// schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
}

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("sentra_test"),
		tcpostgres.WithUsername("sentra"),
		tcpostgres.WithPassword("sentra"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping database: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{Container: container, DB: db}
}

// TruncateTables empties the given tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s", strings.Join(tables, ", ")))
	return err
}
