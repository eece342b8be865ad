package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hoistscout/hoistscout-core/internal/common"
	"github.com/hoistscout/hoistscout-core/internal/storage/postgres"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Rescue jobs stuck running under a dead worker, once, then exit",
	Long:  "reap finds jobs whose heartbeat has gone stale longer than worker.reap_after and returns them to pending, for an operator or cron to run independently of a live worker pool.",
	RunE:  runReap,
}

func runReap(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := postgres.Open(ctx, config.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
		return err
	}
	defer db.Close()

	jobs := postgres.NewJobRepo(db)
	n, err := jobs.ReapStale(ctx, config.Worker.ReapAfter)
	if err != nil {
		logger.Error().Err(err).Msg("reap failed")
		return err
	}

	logger.Info().Int("count", int(n)).Msg("reaped stale jobs")
	common.Stop()
	return nil
}
