package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hoistscout/hoistscout-core/internal/models"
	"github.com/hoistscout/hoistscout-core/internal/queue"
)

var _ queue.Queue = (*JobRepo)(nil)

// ErrNoJobAvailable is kept as an alias of queue.ErrNoJobAvailable for
// callers already importing this package directly.
var ErrNoJobAvailable = queue.ErrNoJobAvailable

// JobRepo implements the Job Queue (spec.md section 4.10) directly
// against the jobs table; claim uses row-level locking with
// skip-locked semantics so concurrent workers never collide.
type JobRepo struct {
	db *DB
}

// NewJobRepo builds a JobRepo.
func NewJobRepo(db *DB) *JobRepo { return &JobRepo{db: db} }

// Enqueue inserts a new pending job and returns its id.
func (r *JobRepo) Enqueue(ctx context.Context, job models.Job) (int64, error) {
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}
	var id int64
	err := r.db.SQL().QueryRowContext(ctx, `
		INSERT INTO jobs (site_id, kind, status, priority, scheduled_at, max_retries)
		VALUES ($1, $2, 'pending', $3, $4, $5)
		RETURNING id`,
		job.SiteID, job.Kind, job.Priority, job.ScheduledAt, job.MaxRetries,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: enqueuing job: %w", err)
	}
	return id, nil
}

// Claim atomically selects the highest-priority eligible pending job
// (scheduled_at <= now), transitions it to running, and stamps
// started_at/worker_id, using FOR UPDATE SKIP LOCKED so concurrent
// claimers never contend on the same row.
func (r *JobRepo) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: beginning claim tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id FROM jobs
		WHERE status = 'pending' AND scheduled_at <= now()
		ORDER BY priority DESC, scheduled_at ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJobAvailable
		}
		return nil, fmt.Errorf("postgres: selecting claimable job: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', started_at = $2, worker_id = $3, heartbeat = $2
		WHERE id = $1`, id, now, workerID,
	); err != nil {
		return nil, fmt.Errorf("postgres: claiming job %d: %w", id, err)
	}

	job, err := scanJob(tx.QueryRowContext(ctx, jobSelectColumns+" WHERE id = $1", id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: committing claim: %w", err)
	}
	return job, nil
}

// Complete transitions a running job to completed, recording stats.
func (r *JobRepo) Complete(ctx context.Context, jobID int64, stats []byte) error {
	res, err := r.db.SQL().ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', completed_at = now(), stats = $2
		WHERE id = $1 AND status = 'running'`, jobID, stats,
	)
	if err != nil {
		return fmt.Errorf("postgres: completing job %d: %w", jobID, err)
	}
	return requireRowAffected(res, jobID)
}

// Fail transitions a running job to failed, persisting stats (including
// the structured error_category, spec.md section 7). When retry is true
// and the incremented retry_count is still < max_retries, it instead re-enqueues as pending with
// scheduled_at = now + backoff(retry_count); stats are still recorded
// so a retried-away failure isn't silently lost.
func (r *JobRepo) Fail(ctx context.Context, jobID int64, errText string, retry bool, stats []byte) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning fail tx: %w", err)
	}
	defer tx.Rollback()

	var retryCount, maxRetries int
	if err := tx.QueryRowContext(ctx, `
		SELECT retry_count, max_retries FROM jobs WHERE id = $1 AND status = 'running'`, jobID,
	).Scan(&retryCount, &maxRetries); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("postgres: job %d not running", jobID)
		}
		return fmt.Errorf("postgres: reading job %d: %w", jobID, err)
	}

	nextRetry := retryCount + 1
	if retry && nextRetry < maxRetries {
		scheduledAt := time.Now().Add(models.Backoff(retryCount))
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'pending', error = $2, stats = $3, retry_count = $4, scheduled_at = $5,
			started_at = NULL, worker_id = '', cancel_flag = false
			WHERE id = $1`, jobID, errText, stats, nextRetry, scheduledAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'failed', error = $2, stats = $3, retry_count = $4, completed_at = now()
			WHERE id = $1`, jobID, errText, stats, nextRetry)
	}
	if err != nil {
		return fmt.Errorf("postgres: failing job %d: %w", jobID, err)
	}

	return tx.Commit()
}

// Cancel transitions a pending job directly to cancelled, or sets the
// cancel flag on a running job for the worker to observe at a safe
// checkpoint.
func (r *JobRepo) Cancel(ctx context.Context, jobID int64) error {
	res, err := r.db.SQL().ExecContext(ctx, `
		UPDATE jobs SET
			status = CASE WHEN status = 'pending' THEN 'cancelled' ELSE status END,
			cancel_flag = CASE WHEN status = 'running' THEN true ELSE cancel_flag END,
			completed_at = CASE WHEN status = 'pending' THEN now() ELSE completed_at END
		WHERE id = $1 AND status IN ('pending', 'running')`, jobID,
	)
	if err != nil {
		return fmt.Errorf("postgres: cancelling job %d: %w", jobID, err)
	}
	return requireRowAffected(res, jobID)
}

// MarkCancelled finalizes a running job's cancellation: the worker
// calls this once it has observed the cancel flag at a checkpoint and
// unwound (rolled back any pending transaction, closed the browser
// context), distinct from Cancel which only raises the flag.
func (r *JobRepo) MarkCancelled(ctx context.Context, jobID int64, stats []byte) error {
	res, err := r.db.SQL().ExecContext(ctx, `
		UPDATE jobs SET status = 'cancelled', completed_at = now(), stats = $2
		WHERE id = $1 AND status = 'running'`, jobID, stats,
	)
	if err != nil {
		return fmt.Errorf("postgres: marking job %d cancelled: %w", jobID, err)
	}
	return requireRowAffected(res, jobID)
}

// ReapStale rescues running jobs whose worker last heartbeat exceeded
// olderThan, marking them pending for retry.
func (r *JobRepo) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.SQL().ExecContext(ctx, `
		UPDATE jobs SET status = 'pending', started_at = NULL, worker_id = '', heartbeat = NULL
		WHERE status = 'running' AND heartbeat < $1`,
		time.Now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: reaping stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// Heartbeat stamps the current time on a running job, used by the
// Worker Pool's 30s heartbeat loop.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID int64) error {
	_, err := r.db.SQL().ExecContext(ctx, `
		UPDATE jobs SET heartbeat = now() WHERE id = $1 AND status = 'running'`, jobID,
	)
	if err != nil {
		return fmt.Errorf("postgres: heartbeat for job %d: %w", jobID, err)
	}
	return nil
}

// IsCancelled reports whether a running job's cancel flag is set, for
// the Scrape Runner to observe at page boundaries.
func (r *JobRepo) IsCancelled(ctx context.Context, jobID int64) (bool, error) {
	var cancelled bool
	err := r.db.SQL().QueryRowContext(ctx, `SELECT cancel_flag FROM jobs WHERE id = $1`, jobID).Scan(&cancelled)
	if err != nil {
		return false, fmt.Errorf("postgres: checking cancel flag for job %d: %w", jobID, err)
	}
	return cancelled, nil
}

// SaveProgress upserts the per-page progress side-table for jobID.
func (r *JobRepo) SaveProgress(ctx context.Context, progress models.JobProgress) error {
	_, err := r.db.SQL().ExecContext(ctx, `
		INSERT INTO job_progress (job_id, pages, items, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (job_id) DO UPDATE SET pages = $2, items = $3, updated_at = now()`,
		progress.JobID, progress.Pages, progress.Items,
	)
	if err != nil {
		return fmt.Errorf("postgres: saving progress for job %d: %w", progress.JobID, err)
	}
	return nil
}

const jobSelectColumns = `
	SELECT id, site_id, kind, status, priority, scheduled_at, started_at, completed_at,
		error, stats, retry_count, max_retries, worker_id, cancel_flag, heartbeat, created_at
	FROM jobs`

func scanJob(row *sql.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID, &job.SiteID, &job.Kind, &job.Status, &job.Priority, &job.ScheduledAt,
		&job.StartedAt, &job.CompletedAt, &job.Error, &job.Stats, &job.RetryCount,
		&job.MaxRetries, &job.WorkerID, &job.CancelFlag, &job.Heartbeat, &job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning job: %w", err)
	}
	return &job, nil
}

func requireRowAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("postgres: job %d not in an eligible state for this transition", id)
	}
	return nil
}
