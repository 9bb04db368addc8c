package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
)

var (
	configFiles []string

	// Global state, set by loadConfig before any subcommand runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "veloryn",
	Short:         "Resilient daily analysis pipeline",
	Long:          `Veloryn gathers market data for a ticker, asks the remote analysis agent for a structured daily analysis and stores the validated result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil,
		"Configuration file path (can be specified multiple times, later files override earlier ones)")

	rootCmd.AddCommand(serveCmd, analyzeCmd, breakerCmd, versionCmd)
}

// loadConfig runs the startup sequence shared by every command that needs
// the application: config files, env, CLI overrides, then the logger.
func loadConfig(port int, host string) error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("veloryn.toml"); err == nil {
			configFiles = append(configFiles, "veloryn.toml")
		} else if _, err := os.Stat("deployments/local/veloryn.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/veloryn.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration %v: %w", configFiles, err)
	}

	common.ApplyFlagOverrides(config, port, host)
	logger = common.SetupLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("badger_path", config.Storage.Badger.Path).
		Msg("Resolved configuration")

	return nil
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()
	common.LoadVersionFromFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
