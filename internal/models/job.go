package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobKind is the scope of work a Job performs.
type JobKind string

const (
	JobKindFull        JobKind = "full"
	JobKindIncremental JobKind = "incremental"
	JobKindTest        JobKind = "test"
)

// JobStatus is a Job's lifecycle state. Transitions move forward only,
// except running->pending when a failed job is re-enqueued for retry
// (spec.md section 3, invariant I1).
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// validTransitions enumerates the Job state machine from spec.md
// section 4.10: claim, complete, fail (with optional retry back to
// pending), and cancel from pending or running.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusRunning:   true,
		JobStatusCancelled: true,
	},
	JobStatusRunning: {
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
		JobStatusPending:   true, // retry re-enqueue after backoff
	},
}

// CanTransition reports whether moving from `from` to `to` is a legal
// Job state transition.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return false
	}
	next, ok := validTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ErrorCategory classifies why a Job failed, per spec.md section 7.
type ErrorCategory string

const (
	ErrorCategoryTransient   ErrorCategory = "transient"
	ErrorCategoryAuth        ErrorCategory = "auth"
	ErrorCategoryStructural  ErrorCategory = "structural"
	ErrorCategoryCompliance  ErrorCategory = "compliance"
	ErrorCategoryFatal       ErrorCategory = "fatal"
)

// Job is one queued request to scrape one site, with a lifecycle and a
// terminal outcome (spec.md section 3).
type Job struct {
	ID          int64           `json:"id"`
	SiteID      int64           `json:"site_id"`
	Kind        JobKind         `json:"kind"`
	Status      JobStatus       `json:"status"`
	Priority    int             `json:"priority"` // 1..10, higher first
	ScheduledAt time.Time       `json:"scheduled_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Stats       json.RawMessage `json:"stats,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	WorkerID    string          `json:"worker_id,omitempty"`
	CancelFlag  bool            `json:"cancel_flag"`
	Heartbeat   *time.Time      `json:"heartbeat,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// JobStats is the structured shape persisted into Job.Stats on
// completion or failure (spec.md section 4.9 step 7, section 7).
type JobStats struct {
	Pages         int           `json:"pages"`
	Items         int           `json:"items"`
	PDFs          int           `json:"pdfs"`
	DurationMs    int64         `json:"duration_ms"`
	Retries       int           `json:"retries"`
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
}

// Backoff computes the re-enqueue delay for a failed job, per spec.md
// section 4.9: backoff(n) = 60*2^n seconds, capped at 600s.
func Backoff(retryCount int) time.Duration {
	const (
		base = 60 * time.Second
		cap  = 600 * time.Second
	)
	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		d = cap
	}
	return d
}

// JobProgress is the side-table recording per-page progress of a
// running job without weakening the transactional opportunity/document
// persist invariant (see SPEC_FULL.md open question decisions).
type JobProgress struct {
	JobID     int64     `json:"job_id"`
	Pages     int       `json:"pages"`
	Items     int       `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidationError is returned when a caller attempts an illegal Job
// state transition.
type ValidationError struct {
	From, To JobStatus
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}
