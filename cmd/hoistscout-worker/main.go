package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hoistscout/hoistscout-core/internal/common"

	"github.com/ternarybob/arbor"
)

// configPaths is a custom flag type that allows multiple --config flags.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }

func (c *configPaths) Type() string { return "stringArray" }

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths

	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "hoistscout-worker",
	Short:         "HoistScout tender and grant discovery worker",
	Long:          "hoistscout-worker claims scrape jobs from the queue and runs them against registered sites, extracting tender and grant opportunities.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if len(configFiles) == 0 {
			if _, statErr := os.Stat("hoistscout.toml"); statErr == nil {
				configFiles = append(configFiles, "hoistscout.toml")
			} else if _, statErr := os.Stat("deployments/local/hoistscout.toml"); statErr == nil {
				configFiles = append(configFiles, "deployments/local/hoistscout.toml")
			}
		}

		config, err = common.LoadFromFiles(configFiles...)
		if err != nil {
			tempLogger := arbor.NewLogger()
			tempLogger.Fatal().Err(err).Msg("failed to load configuration")
			return err
		}

		logger = common.SetupLogger(config)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().VarP(&configFiles, "config", "c", "configuration file path (can be specified multiple times)")
	rootCmd.AddCommand(serveCmd, reapCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
