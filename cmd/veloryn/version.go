package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MatusBehul/veloryn/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := common.Info()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Veloryn version %s\n", info.Version)
		fmt.Fprintf(out, "  build:  %s\n  commit: %s\n  go:     %s\n", info.Build, info.GitCommit, info.GoVersion)
	},
}
