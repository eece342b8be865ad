// Package workerpool implements the Worker Pool (spec.md section
// 4.11): a bounded set of goroutines that claim Jobs from the Job
// Queue, hand each to the Scrape Runner, and record the outcome.
package workerpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/auth"
	"github.com/hoistscout/hoistscout-core/internal/common"
	"github.com/hoistscout/hoistscout-core/internal/compliance"
	"github.com/hoistscout/hoistscout-core/internal/extractor"
	"github.com/hoistscout/hoistscout-core/internal/models"
	"github.com/hoistscout/hoistscout-core/internal/queue"
	"github.com/hoistscout/hoistscout-core/internal/ratelimit"
	"github.com/hoistscout/hoistscout-core/internal/scraper"
	"github.com/hoistscout/hoistscout-core/internal/vault"
)

// Runner is the subset of scraper.Runner the pool depends on.
type Runner interface {
	Run(ctx context.Context, jobID, siteID int64) (*scraper.Outcome, error)
}

var _ Runner = (*scraper.Runner)(nil)

// Pool runs Concurrency workers, each looping claim->run->record until
// stopped.
type Pool struct {
	queue             queue.Queue
	runner            Runner
	logger            arbor.ILogger
	workerID          string
	concurrency       int
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	reapAfter         time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Config bundles the Pool's dependencies and tuning knobs.
type Config struct {
	Queue             queue.Queue
	Runner            Runner
	Logger            arbor.ILogger
	WorkerID          string
	Concurrency       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	ReapAfter         time.Duration
}

// New builds a Pool, filling in spec.md's default knobs for any zero
// value left unset.
func New(cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReapAfter <= 0 {
		cfg.ReapAfter = 90 * time.Second
	}
	return &Pool{
		queue:             cfg.Queue,
		runner:            cfg.Runner,
		logger:            cfg.Logger,
		workerID:          cfg.WorkerID,
		concurrency:       cfg.Concurrency,
		pollInterval:      cfg.PollInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
		reapAfter:         cfg.ReapAfter,
	}
}

// Start launches Concurrency worker goroutines and returns immediately.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info().
		Int("concurrency", p.concurrency).
		Str("worker_id", p.workerID).
		Msg("starting worker pool")

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		slot := i
		common.SafeGoWithContext(ctx, p.logger, fmt.Sprintf("workerpool-loop-%d", slot), func() {
			p.loop(ctx, slot)
		})
	}
}

// Stop signals every worker to finish its current job and exit, then
// blocks until they have.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.logger.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

// ReapOnce rescues jobs whose worker stopped heartbeating, making them
// eligible for claim again. Intended to run on a separate ticker from a
// single pool member (or the reap subcommand), not per-worker.
func (p *Pool) ReapOnce(ctx context.Context) (int64, error) {
	n, err := p.queue.ReapStale(ctx, p.reapAfter)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Warn().Int("count", int(n)).Msg("reaped stale jobs")
	}
	return n, nil
}

func (p *Pool) loop(ctx context.Context, slot int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Claim(ctx, p.workerID)
		if err != nil {
			if errors.Is(err, queue.ErrNoJobAvailable) {
				p.sleep(ctx, p.pollInterval)
				continue
			}
			p.logger.Error().Err(err).Int("slot", slot).Msg("claiming job")
			p.sleep(ctx, p.pollInterval)
			continue
		}

		// The claimed job runs to its end even if Stop is called meanwhile.
		p.run(context.WithoutCancel(ctx), job)
	}
}

func (p *Pool) run(ctx context.Context, job *models.Job) {
	p.logger.Info().Int("job_id", int(job.ID)).Int("site_id", int(job.SiteID)).Msg("job claimed")

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	common.SafeGoWithContext(hbCtx, p.logger, fmt.Sprintf("workerpool-heartbeat-%d", job.ID), func() {
		p.heartbeat(hbCtx, job.ID)
	})

	start := time.Now()
	outcome, runErr := p.runner.Run(ctx, job.ID, job.SiteID)

	if runErr != nil {
		var cancelled *scraper.ErrCancelled
		if errors.As(runErr, &cancelled) {
			stats := models.JobStats{
				Pages:      cancelled.Pages,
				Items:      cancelled.Items,
				DurationMs: time.Since(start).Milliseconds(),
				Retries:    job.RetryCount,
			}
			payload, err := json.Marshal(stats)
			if err != nil {
				p.logger.Error().Err(err).Int("job_id", int(job.ID)).Msg("marshaling cancelled job stats")
			}
			if err := p.queue.MarkCancelled(ctx, job.ID, payload); err != nil {
				p.logger.Error().Err(err).Int("job_id", int(job.ID)).Msg("recording job cancellation")
			}
			p.logger.Info().Int("job_id", int(job.ID)).Int("pages", cancelled.Pages).Msg("job cancelled")
			return
		}

		p.logger.Error().Err(runErr).Int("job_id", int(job.ID)).Msg("job failed")
		category := classifyError(runErr)
		stats := models.JobStats{
			DurationMs:    time.Since(start).Milliseconds(),
			Retries:       job.RetryCount,
			ErrorCategory: category,
		}
		payload, err := json.Marshal(stats)
		if err != nil {
			p.logger.Error().Err(err).Int("job_id", int(job.ID)).Msg("marshaling failed job stats")
		}
		retryable := isRetryable(runErr)
		if failErr := p.queue.Fail(ctx, job.ID, runErr.Error(), retryable, payload); failErr != nil {
			p.logger.Error().Err(failErr).Int("job_id", int(job.ID)).Msg("recording job failure")
		}
		return
	}

	stats := models.JobStats{
		Pages:      outcome.Pages,
		Items:      outcome.Items,
		PDFs:       outcome.PDFs,
		DurationMs: time.Since(start).Milliseconds(),
		Retries:    job.RetryCount,
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		p.logger.Error().Err(err).Int("job_id", int(job.ID)).Msg("marshaling job stats")
	}
	if err := p.queue.Complete(ctx, job.ID, payload); err != nil {
		p.logger.Error().Err(err).Int("job_id", int(job.ID)).Msg("recording job completion")
		return
	}

	p.logger.Info().
		Int("job_id", int(job.ID)).
		Int("pages", outcome.Pages).
		Int("items", outcome.Items).
		Int("pdfs", outcome.PDFs).
		Str("duration", outcome.Duration.String()).
		Msg("job completed")
}

func (p *Pool) heartbeat(ctx context.Context, jobID int64) {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.Heartbeat(ctx, jobID); err != nil {
				p.logger.Warn().Err(err).Int("job_id", int(jobID)).Msg("heartbeat failed")
			}
		}
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// isRetryable reports whether a Scrape Runner error warrants a
// backoff-and-retry re-enqueue rather than a terminal failure. Only a
// compliance block is not retried: retrying it without operator
// intervention would just fail the same way again.
func isRetryable(err error) bool {
	var blocked *scraper.ErrLegalBlocked
	return !errors.As(err, &blocked)
}

// classifyError maps a Scrape Runner error onto the structured
// error_category taxonomy from spec.md section 7, so Job.Stats carries
// a machine-readable reason alongside the human-readable error text.
func classifyError(err error) models.ErrorCategory {
	var legalBlocked *scraper.ErrLegalBlocked
	var complianceViolation *compliance.ErrComplianceViolation
	if errors.As(err, &legalBlocked) || errors.As(err, &complianceViolation) {
		return models.ErrorCategoryCompliance
	}

	var authFailure *auth.AuthFailure
	var captchaBlocked *auth.CaptchaBlocked
	var authTimeout *auth.AuthTimeout
	if errors.As(err, &authFailure) || errors.As(err, &captchaBlocked) || errors.As(err, &authTimeout) {
		return models.ErrorCategoryAuth
	}

	var extractionFailed *extractor.ErrExtractionFailed
	var tooManyViolations *ratelimit.ErrTooManyViolations
	if errors.As(err, &extractionFailed) || errors.As(err, &tooManyViolations) {
		return models.ErrorCategoryStructural
	}

	if errors.Is(err, vault.ErrKeyMissing) || errors.Is(err, vault.ErrTampered) {
		return models.ErrorCategoryFatal
	}

	return models.ErrorCategoryTransient
}
