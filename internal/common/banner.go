package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the resolved configuration
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Veloryn", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("agent_url", config.Agent.BaseURL).
		Str("ledger_backend", config.Ledger.Backend).
		Bool("streaming", config.Agent.Streaming).
		Bool("scheduler_enabled", config.Scheduler.Enabled).
		Bool("nats_enabled", config.NATS.Enabled).
		Msg("Configuration loaded")
}
