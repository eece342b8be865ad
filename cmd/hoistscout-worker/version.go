package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoistscout/hoistscout-core/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(common.GetFullVersion())
		return nil
	},
}
