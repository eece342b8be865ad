// Package queue defines the Job Queue contract (spec.md section 4.10)
// as an interface the Worker Pool and Scrape Runner depend on, backed
// in production by internal/storage/postgres.JobRepo.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

// ErrNoJobAvailable is returned by Claim when no eligible pending job
// exists; the Worker Pool treats it as "poll again later", not a
// failure worth logging.
var ErrNoJobAvailable = errors.New("queue: no job available")

// Queue is the durable job queue, backed by the relational database.
type Queue interface {
	Enqueue(ctx context.Context, job models.Job) (int64, error)
	Claim(ctx context.Context, workerID string) (*models.Job, error)
	Complete(ctx context.Context, jobID int64, stats []byte) error
	Fail(ctx context.Context, jobID int64, errText string, retry bool, stats []byte) error
	Cancel(ctx context.Context, jobID int64) error
	MarkCancelled(ctx context.Context, jobID int64, stats []byte) error
	ReapStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Heartbeat(ctx context.Context, jobID int64) error
	IsCancelled(ctx context.Context, jobID int64) (bool, error)
	SaveProgress(ctx context.Context, progress models.JobProgress) error
}
