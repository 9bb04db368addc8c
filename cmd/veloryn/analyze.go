package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MatusBehul/veloryn/internal/app"
	"github.com/MatusBehul/veloryn/internal/services/analysis"
)

var (
	analyzeTicker string
	analyzeDay    string
	analyzeUser   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis and print the outcome",
	Long:  `Runs the full pipeline once for a ticker and day, stores the result and prints the outcome as JSON. Exits non-zero when the pipeline fails.`,
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeTicker, "ticker", "t", "", "Ticker to analyze, e.g. AAPL or ASX:GNP")
	analyzeCmd.Flags().StringVarP(&analyzeDay, "day", "d", "", "Day to analyze (YYYY-MM-DD, default today UTC)")
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "Agent user id (overrides config)")
	analyzeCmd.MarkFlagRequired("ticker")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := loadConfig(0, ""); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	outcome, runErr := application.AnalysisService.Analyze(ctx, analysis.Request{
		Ticker: analyzeTicker,
		Day:    analyzeDay,
		UserID: analyzeUser,
	})
	if outcome != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return err
		}
	}
	return runErr
}
