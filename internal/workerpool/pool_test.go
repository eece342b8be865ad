package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/auth"
	"github.com/hoistscout/hoistscout-core/internal/extractor"
	"github.com/hoistscout/hoistscout-core/internal/models"
	"github.com/hoistscout/hoistscout-core/internal/queue"
	"github.com/hoistscout/hoistscout-core/internal/ratelimit"
	"github.com/hoistscout/hoistscout-core/internal/scraper"
	"github.com/hoistscout/hoistscout-core/internal/vault"
)

type fakeQueue struct {
	mu         sync.Mutex
	pending    []models.Job
	completed  []int64
	failed     map[int64]bool
	cancelled  map[int64]bool
	heartbeats int32
}

func (q *fakeQueue) Enqueue(ctx context.Context, job models.Job) (int64, error) { return 0, nil }

func (q *fakeQueue) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, queue.ErrNoJobAvailable
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return &job, nil
}

func (q *fakeQueue) Complete(ctx context.Context, jobID int64, stats []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, jobID int64, errText string, retry bool, stats []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failed == nil {
		q.failed = make(map[int64]bool)
	}
	q.failed[jobID] = true
	return nil
}

func (q *fakeQueue) Cancel(ctx context.Context, jobID int64) error { return nil }

func (q *fakeQueue) MarkCancelled(ctx context.Context, jobID int64, stats []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancelled == nil {
		q.cancelled = make(map[int64]bool)
	}
	q.cancelled[jobID] = true
	return nil
}

func (q *fakeQueue) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (q *fakeQueue) Heartbeat(ctx context.Context, jobID int64) error {
	atomic.AddInt32(&q.heartbeats, 1)
	return nil
}

func (q *fakeQueue) IsCancelled(ctx context.Context, jobID int64) (bool, error) { return false, nil }

func (q *fakeQueue) SaveProgress(ctx context.Context, progress models.JobProgress) error { return nil }

type fakeRunner struct {
	ran   int32
	fail  error
}

func (r *fakeRunner) Run(ctx context.Context, jobID, siteID int64) (*scraper.Outcome, error) {
	atomic.AddInt32(&r.ran, 1)
	if r.fail != nil {
		return nil, r.fail
	}
	return &scraper.Outcome{Pages: 1, Items: 2, PDFs: 0, Duration: time.Millisecond}, nil
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met before timeout")
}

func TestPool_ClaimsRunsAndCompletesJob(t *testing.T) {
	q := &fakeQueue{pending: []models.Job{{ID: 1, SiteID: 10}}}
	r := &fakeRunner{}
	p := New(Config{
		Queue:        q,
		Runner:       r,
		Logger:       arbor.NewLogger(),
		WorkerID:     "test-worker",
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
	})

	p.Start(context.Background())
	defer p.Stop()

	waitForCondition(t, time.Second, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.completed) == 1
	})

	assert.Equal(t, int32(1), atomic.LoadInt32(&r.ran))
}

func TestPool_FailedRunIsRecordedAsFailed(t *testing.T) {
	q := &fakeQueue{pending: []models.Job{{ID: 2, SiteID: 20}}}
	r := &fakeRunner{fail: assert.AnError}
	p := New(Config{
		Queue:        q,
		Runner:       r,
		Logger:       arbor.NewLogger(),
		WorkerID:     "test-worker",
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
	})

	p.Start(context.Background())
	defer p.Stop()

	waitForCondition(t, time.Second, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.failed[2]
	})
}

func TestPool_LegalBlockedIsNotRetryable(t *testing.T) {
	assert.False(t, isRetryable(&scraper.ErrLegalBlocked{Domain: "example.gov"}))
	assert.True(t, isRetryable(assert.AnError))
}

func TestPool_CancelledRunReachesTerminalStateWithPartialStats(t *testing.T) {
	q := &fakeQueue{pending: []models.Job{{ID: 3, SiteID: 30}}}
	r := &fakeRunner{fail: &scraper.ErrCancelled{JobID: 3, Pages: 2, Items: 5}}
	p := New(Config{
		Queue:        q,
		Runner:       r,
		Logger:       arbor.NewLogger(),
		WorkerID:     "test-worker",
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
	})

	p.Start(context.Background())
	defer p.Stop()

	waitForCondition(t, time.Second, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.cancelled[3]
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.False(t, q.failed[3])
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, models.ErrorCategoryCompliance, classifyError(&scraper.ErrLegalBlocked{Domain: "example.gov"}))
	assert.Equal(t, models.ErrorCategoryAuth, classifyError(&auth.AuthFailure{Reason: "bad credentials"}))
	assert.Equal(t, models.ErrorCategoryStructural, classifyError(&extractor.ErrExtractionFailed{PageURL: "https://example.com", Reason: "no selectors matched"}))
	assert.Equal(t, models.ErrorCategoryStructural, classifyError(&ratelimit.ErrTooManyViolations{Domain: "example.com", Violations: 4}))
	assert.Equal(t, models.ErrorCategoryFatal, classifyError(vault.ErrKeyMissing))
	assert.Equal(t, models.ErrorCategoryTransient, classifyError(assert.AnError))
}
