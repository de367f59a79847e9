package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository using PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository constructs a new job repository instance.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	requestJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	artifactIDs, err := json.Marshal(job.ArtifactIDs)
	if err != nil {
		return fmt.Errorf("encode artifact ids: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO jobs (id, provider_job_id, kind, state, request, created_at, last_polled_at, next_poll_at, attempts, store_attempts, failure_reason, artifact_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`, job.ID, job.ProviderJobID, job.Kind, job.State, requestJSON, job.CreatedAt, nullableTime(job.LastPolledAt), job.NextPollAt, job.Attempts, job.StoreAttempts, job.FailureReason, artifactIDs)
	return err
}

func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, selectJobColumns+`
WHERE id = $1;
`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	requestJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	artifactIDs, err := json.Marshal(job.ArtifactIDs)
	if err != nil {
		return fmt.Errorf("encode artifact ids: %w", err)
	}
	// The state guard keeps terminal states monotonic across processes: the
	// api's opportunistic poll and the worker both write through here, and a
	// stale in-flight update must not resurrect a job the other side just
	// finished.
	tag, err := r.pool.Exec(ctx, `
UPDATE jobs
SET state = $2, request = $3, last_polled_at = $4, next_poll_at = $5, attempts = $6, store_attempts = $7, failure_reason = $8, artifact_ids = $9
WHERE id = $1 AND state IN ('queued', 'polling');
`, job.ID, job.State, requestJSON, nullableTime(job.LastPolledAt), job.NextPollAt, job.Attempts, job.StoreAttempts, job.FailureReason, artifactIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Lost race with a terminal transition, or the job is gone. Adopt
		// the current row so the caller observes the winning state.
		current, err := r.GetByID(ctx, job.ID)
		if err != nil {
			return err
		}
		*job = *current
	}
	return nil
}

func (r *JobRepositoryPG) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, selectJobColumns+`
WHERE state IN ('queued', 'polling') AND next_poll_at <= $1
ORDER BY next_poll_at ASC
LIMIT $2;
`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *JobRepositoryPG) ListActive(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, selectJobColumns+`
WHERE state IN ('queued', 'polling')
ORDER BY created_at ASC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

const selectJobColumns = `
SELECT id, provider_job_id, kind, state, request, created_at, last_polled_at, next_poll_at, attempts, store_attempts, failure_reason, artifact_ids
FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var requestJSON, artifactIDs []byte
	var lastPolled *time.Time
	if err := row.Scan(&job.ID, &job.ProviderJobID, &job.Kind, &job.State, &requestJSON, &job.CreatedAt, &lastPolled, &job.NextPollAt, &job.Attempts, &job.StoreAttempts, &job.FailureReason, &artifactIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(requestJSON, &job.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if len(artifactIDs) > 0 {
		if err := json.Unmarshal(artifactIDs, &job.ArtifactIDs); err != nil {
			return nil, fmt.Errorf("decode artifact ids: %w", err)
		}
	}
	if lastPolled != nil {
		job.LastPolledAt = *lastPolled
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
