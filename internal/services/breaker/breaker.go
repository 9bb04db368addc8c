// Package breaker gates remote calls on recent rate-limit history and paces
// calls that are admitted.
package breaker

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/metrics"
	"github.com/MatusBehul/veloryn/internal/services/ledger"
)

// Config holds breaker thresholds and pacing delays.
type Config struct {
	Window    time.Duration
	Threshold int
	Cooldown  time.Duration

	PacingWindow   time.Duration
	PacingMinimum  time.Duration
	PacingRecent   time.Duration
	PacingElevated time.Duration
	PacingHeavy    time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Window:         30 * time.Minute,
		Threshold:      5,
		Cooldown:       15 * time.Minute,
		PacingWindow:   10 * time.Minute,
		PacingMinimum:  10 * time.Second,
		PacingRecent:   30 * time.Second,
		PacingElevated: 60 * time.Second,
		PacingHeavy:    180 * time.Second,
	}
}

// ConfigFrom converts the [breaker] section, keeping defaults for zero values.
func ConfigFrom(cfg common.BreakerConfig) Config {
	out := DefaultConfig()
	if cfg.Window.Duration > 0 {
		out.Window = cfg.Window.Duration
	}
	if cfg.Threshold > 0 {
		out.Threshold = cfg.Threshold
	}
	if cfg.Cooldown.Duration > 0 {
		out.Cooldown = cfg.Cooldown.Duration
	}
	if cfg.PacingWindow.Duration > 0 {
		out.PacingWindow = cfg.PacingWindow.Duration
	}
	if cfg.PacingMinimum.Duration > 0 {
		out.PacingMinimum = cfg.PacingMinimum.Duration
	}
	if cfg.PacingRecent.Duration > 0 {
		out.PacingRecent = cfg.PacingRecent.Duration
	}
	if cfg.PacingElevated.Duration > 0 {
		out.PacingElevated = cfg.PacingElevated.Duration
	}
	if cfg.PacingHeavy.Duration > 0 {
		out.PacingHeavy = cfg.PacingHeavy.Duration
	}
	return out
}

// State is the breaker verdict at one instant.
type State struct {
	Open          bool          `json:"open"`
	Wait          time.Duration `json:"wait"`
	Count         int           `json:"count"`
	MostRecentAge time.Duration `json:"most_recent_age"`
}

// Jitterer scales a delay by a random factor.
type Jitterer interface {
	Jitter(d time.Duration) time.Duration
}

// Breaker reads the ledger to decide whether calls may proceed.
type Breaker struct {
	ledger *ledger.Service
	jitter Jitterer
	config Config
	logger arbor.ILogger
}

// NewBreaker creates a breaker over the ledger.
func NewBreaker(ledgerService *ledger.Service, jitter Jitterer, config Config, logger arbor.ILogger) *Breaker {
	return &Breaker{
		ledger: ledgerService,
		jitter: jitter,
		config: config,
		logger: logger,
	}
}

// CheckOpen reports whether enough recent rate-limit events have accumulated
// to halt calls, and for how long.
func (b *Breaker) CheckOpen(ctx context.Context) State {
	stats := b.ledger.RecentStats(ctx, b.config.Window)
	state := State{
		Count:         stats.Count,
		MostRecentAge: stats.MostRecentAge,
	}

	if stats.Count < b.config.Threshold {
		return state
	}

	wait := b.config.Cooldown - stats.MostRecentAge
	if wait <= 0 {
		return state
	}

	state.Open = true
	state.Wait = wait

	b.logger.Warn().
		Int("events", stats.Count).
		Dur("most_recent_age", stats.MostRecentAge).
		Dur("wait", wait).
		Msg("Circuit breaker open")

	return state
}

// PacingDelay returns the jittered delay to apply before the next call.
func (b *Breaker) PacingDelay(ctx context.Context) time.Duration {
	stats := b.ledger.RecentStats(ctx, b.config.PacingWindow)

	var delay time.Duration
	switch {
	case stats.CountWithin(5*time.Minute) >= 3:
		delay = b.config.PacingHeavy
	case stats.CountWithin(3*time.Minute) >= 2:
		delay = b.config.PacingElevated
	case stats.CountWithin(2*time.Minute) >= 1:
		delay = b.config.PacingRecent
	default:
		delay = b.config.PacingMinimum
	}

	if b.jitter != nil {
		delay = b.jitter.Jitter(delay)
	}

	metrics.PacingDelaySeconds.Observe(delay.Seconds())
	b.logger.Debug().
		Int("recent_events", stats.Count).
		Dur("delay", delay).
		Msg("Pacing delay computed")

	return delay
}
