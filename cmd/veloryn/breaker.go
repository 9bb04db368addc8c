package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MatusBehul/veloryn/internal/services/backoff"
	"github.com/MatusBehul/veloryn/internal/services/breaker"
	"github.com/MatusBehul/veloryn/internal/services/ledger"
	"github.com/MatusBehul/veloryn/internal/storage"
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Show circuit breaker and pacing state",
	Long:  `Reads the rate-limit ledger and prints whether new runs would be admitted and the pacing delay they would wait.`,
	RunE:  runBreaker,
}

func runBreaker(cmd *cobra.Command, args []string) error {
	if err := loadConfig(0, ""); err != nil {
		return err
	}
	ctx := context.Background()

	manager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return err
	}
	defer manager.Close()

	ledgerStorage, err := storage.NewLedgerStorage(ctx, logger, config, manager)
	if err != nil {
		return err
	}
	defer ledgerStorage.Close()

	b := breaker.NewBreaker(
		ledger.NewService(ledgerStorage, logger, config.Ledger.QueryLimit),
		backoff.NewPolicyFromConfig(config.Backoff),
		breaker.ConfigFrom(config.Breaker),
		logger,
	)

	state := b.CheckOpen(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ledger:        %s\n", config.Ledger.Backend)
	fmt.Fprintf(out, "open:          %t\n", state.Open)
	if state.Open {
		fmt.Fprintf(out, "retry in:      %s\n", state.Wait.Round(time.Second))
	}
	fmt.Fprintf(out, "events:        %d\n", state.Count)
	if state.Count > 0 {
		fmt.Fprintf(out, "last event:    %s ago\n", state.MostRecentAge.Round(time.Second))
	}
	fmt.Fprintf(out, "pacing delay:  %s\n", b.PacingDelay(ctx))
	return nil
}
