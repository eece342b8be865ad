package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoistscout/hoistscout-core/internal/auth"
	"github.com/hoistscout/hoistscout-core/internal/browser"
	"github.com/hoistscout/hoistscout-core/internal/cache"
	"github.com/hoistscout/hoistscout-core/internal/common"
	"github.com/hoistscout/hoistscout-core/internal/compliance"
	"github.com/hoistscout/hoistscout-core/internal/docextract"
	"github.com/hoistscout/hoistscout-core/internal/documents"
	"github.com/hoistscout/hoistscout-core/internal/extractor"
	"github.com/hoistscout/hoistscout-core/internal/llm"
	"github.com/hoistscout/hoistscout-core/internal/objectstore"
	"github.com/hoistscout/hoistscout-core/internal/pagination"
	"github.com/hoistscout/hoistscout-core/internal/ratelimit"
	"github.com/hoistscout/hoistscout-core/internal/scraper"
	"github.com/hoistscout/hoistscout-core/internal/session"
	"github.com/hoistscout/hoistscout-core/internal/storage/postgres"
	"github.com/hoistscout/hoistscout-core/internal/vault"
	"github.com/hoistscout/hoistscout-core/internal/workerpool"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Claim and run scrape jobs until stopped",
	Long:  "serve starts the worker pool: each worker loops claiming a pending job, running the Scrape Runner against it, and recording the outcome, until interrupted.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	common.PrintBanner(config, logger)
	ctx := context.Background()

	cryptoVault, err := vault.New(config.Vault.KeyHex)
	if err != nil {
		logger.Fatal().Err(err).Msg("crypto vault unavailable, refusing to start")
		return err
	}

	db, err := postgres.Open(ctx, config.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
		return err
	}
	defer db.Close()

	redisClient := cache.NewClient(config.Redis)
	if err := cache.Ping(ctx, redisClient); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
		return err
	}
	defer redisClient.Close()

	objectStore, err := objectstore.New(ctx, config.ObjectStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to object store")
		return err
	}

	sites := postgres.NewSiteRepo(db)
	opportunities := postgres.NewOpportunityRepo(db)
	jobs := postgres.NewJobRepo(db)

	llmFactory := llm.NewFactory(config.Claude, config.Gemini, config.LLM, logger)
	pdfExtractor := docextract.New(logger)

	runner := scraper.New(scraper.Config{
		Sites:      sites,
		Persister:  opportunities,
		Vault:      cryptoVault,
		Compliance: compliance.New(config.Compliance, redisClient, logger),
		Auth:       auth.New(logger),
		Sessions:   session.NewStore(redisClient),
		RateLimiter: ratelimit.New(config.RateLimit.DefaultDelay, config.RateLimit.MaxViolations),
		Pagination: pagination.New(logger),
		Extractor:  extractor.New(llmFactory, logger),
		Documents:  documents.New(objectStore, pdfExtractor, logger),
		Browsers: browser.NewFactory(browser.Config{
			MaxConcurrency: config.Worker.Concurrency,
			Headless:       true,
			ProxyPool:      config.Proxy.Pool,
		}, logger),
		Queue:  jobs,
		Logger: logger,
	})

	workerID := config.Worker.ID
	if workerID == "" {
		workerID = common.NewWorkerID()
	}

	pool := workerpool.New(workerpool.Config{
		Queue:             jobs,
		Runner:            runner,
		Logger:            logger,
		WorkerID:          workerID,
		Concurrency:       config.Worker.Concurrency,
		PollInterval:      config.Worker.PollInterval,
		HeartbeatInterval: config.Worker.HeartbeatInterval,
		ReapAfter:         config.Worker.ReapAfter,
	})

	runCtx, cancel := context.WithCancel(ctx)
	pool.Start(runCtx)

	reapTicker := time.NewTicker(config.Worker.ReapAfter)
	defer reapTicker.Stop()
	common.SafeGoWithContext(runCtx, logger, "worker-reap-ticker", func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-reapTicker.C:
				if _, err := pool.ReapOnce(runCtx); err != nil {
					logger.Warn().Err(err).Msg("reap pass failed")
				}
			}
		}
	})

	logger.Info().Str("worker_id", workerID).Msg("worker ready, claiming jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("interrupt received, draining in-flight jobs")
	cancel()
	pool.Stop()

	common.PrintShutdownBanner(logger)
	common.Stop()
	return nil
}
