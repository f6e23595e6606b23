package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

// JobRepository persists development server jobs so that job ids survive a
// restart of the stub server.
type JobRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent devserver startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS dev_jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	object_key TEXT NOT NULL,
	garment_id TEXT NOT NULL,
	status TEXT NOT NULL,
	polls INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dev_jobs_status ON dev_jobs(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) CreateJob(ctx context.Context, job domain.StubJob) error {
	now := r.now()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO dev_jobs (id, kind, object_key, garment_id, status, polls, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		job.ID, job.Kind, job.ObjectKey, job.GarmentID, string(job.Status), job.Polls, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// AdvanceJob locks the row so concurrent polls of one job count once each.
func (r *JobRepository) AdvanceJob(ctx context.Context, id string, completeAfter int) (domain.StubJob, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StubJob{}, false, fmt.Errorf("begin advance tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
SELECT id, kind, object_key, garment_id, status, polls
FROM dev_jobs
WHERE id = $1
FOR UPDATE
`, id)

	var job domain.StubJob
	var status string
	if err := row.Scan(&job.ID, &job.Kind, &job.ObjectKey, &job.GarmentID, &status, &job.Polls); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StubJob{}, false, domain.WrapError(domain.ErrNotFound, "advance job", fmt.Errorf("job %q", id))
		}
		return domain.StubJob{}, false, fmt.Errorf("scan job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	if job.Status != domain.JobProcessing {
		return job, false, nil
	}

	job.Polls++
	completed := job.Polls >= max(1, completeAfter)
	if completed {
		job.Status = domain.JobCompleted
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE dev_jobs
SET status = $2, polls = $3, updated_at = $4
WHERE id = $1
`, job.ID, string(job.Status), job.Polls, r.now()); err != nil {
		return domain.StubJob{}, false, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.StubJob{}, false, fmt.Errorf("commit advance tx: %w", err)
	}
	return job, completed, nil
}
