package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/eodhd"
	"github.com/MatusBehul/veloryn/internal/handlers"
	"github.com/MatusBehul/veloryn/internal/interfaces"
	"github.com/MatusBehul/veloryn/internal/messaging/nats"
	"github.com/MatusBehul/veloryn/internal/services/agent"
	"github.com/MatusBehul/veloryn/internal/services/analysis"
	"github.com/MatusBehul/veloryn/internal/services/backoff"
	"github.com/MatusBehul/veloryn/internal/services/breaker"
	"github.com/MatusBehul/veloryn/internal/services/identity"
	"github.com/MatusBehul/veloryn/internal/services/ledger"
	"github.com/MatusBehul/veloryn/internal/services/orchestrator"
	"github.com/MatusBehul/veloryn/internal/services/scheduler"
	"github.com/MatusBehul/veloryn/internal/storage"
	"github.com/MatusBehul/veloryn/internal/templates"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	LedgerStorage  interfaces.RateLimitStorage

	// Pipeline
	Ledger       *ledger.Service
	Policy       *backoff.Policy
	Breaker      *breaker.Breaker
	Agent        *agent.Client
	Orchestrator *orchestrator.Orchestrator

	// Collaborators
	Market    interfaces.MarketDataProvider
	Publisher interfaces.PromotionPublisher

	AnalysisService *analysis.Service
	Scheduler       *scheduler.Service // nil when scheduling is disabled

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	AnalysisHandler  *handlers.AnalysisHandler
	BreakerHandler   *handlers.BreakerHandler
	SchedulerHandler *handlers.SchedulerHandler
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("agent_url", cfg.Agent.BaseURL).
		Str("ledger_backend", cfg.Ledger.Backend).
		Bool("scheduler", app.Scheduler != nil).
		Bool("publisher", app.Publisher != nil).
		Msg("Application initialized")

	return app, nil
}

// initDatabase opens the embedded store and selects the ledger backend
func (a *App) initDatabase(ctx context.Context) error {
	manager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.StorageManager = manager

	ledgerStorage, err := storage.NewLedgerStorage(ctx, a.Logger, a.Config, manager)
	if err != nil {
		manager.Close()
		return fmt.Errorf("failed to open rate limit ledger: %w", err)
	}
	a.LedgerStorage = ledgerStorage

	return nil
}

// initServices builds the request pipeline bottom-up: ledger, delays,
// breaker, transport, orchestrator and then the run service on top.
func (a *App) initServices(ctx context.Context) error {
	cfg := a.Config

	a.Ledger = ledger.NewService(a.LedgerStorage, a.Logger, cfg.Ledger.QueryLimit)
	a.Policy = backoff.NewPolicyFromConfig(cfg.Backoff)
	a.Breaker = breaker.NewBreaker(a.Ledger, a.Policy, breaker.ConfigFrom(cfg.Breaker), a.Logger)

	opts := []agent.ClientOption{
		agent.WithLogger(a.Logger),
		agent.WithRateLimitRecorder(a.Ledger),
		agent.WithMaxRetries(cfg.Agent.MaxRetries),
		agent.WithAttemptTimeout(cfg.Agent.AttemptTimeout.Duration),
		agent.WithSessionTimeout(cfg.Agent.SessionTimeout.Duration),
	}
	tokens, err := a.tokenSource(ctx)
	if err != nil {
		return err
	}
	if tokens != nil {
		opts = append(opts, agent.WithTokenSource(tokens))
	}
	a.Agent = agent.NewClient(cfg.Agent.BaseURL, a.Policy, opts...)

	a.Orchestrator = orchestrator.NewOrchestrator(a.Agent, a.Breaker, a.Policy, orchestrator.Config{
		MaxValidationRetries: cfg.Agent.MaxValidationRetries,
		ValidationBaseDelay:  cfg.Agent.ValidationBaseDelay.Duration,
	}, a.Logger)

	common.SetDefaultExchange(cfg.EODHD.Exchange)
	a.Market = eodhd.NewProvider(eodhd.NewClientFromConfig(cfg.EODHD, a.Logger), cfg.EODHD.NewsLimit, a.Logger)

	if cfg.NATS.Enabled {
		publisher, err := nats.NewPublisher(cfg.NATS, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect promotion publisher: %w", err)
		}
		a.Publisher = publisher
	} else {
		a.Logger.Info().Msg("NATS disabled, flagged analyses will not be promoted")
	}

	prompt, err := templates.GetTemplate(templates.DailyAnalysis, cfg.Agent.TemplatesDir)
	if err != nil {
		return fmt.Errorf("failed to load prompt template: %w", err)
	}

	a.AnalysisService = analysis.NewService(
		a.Orchestrator,
		a.Market,
		a.StorageManager.AnalysisStorage(),
		a.Publisher,
		prompt,
		analysis.ConfigFrom(cfg),
		a.Logger,
	)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewService(a.AnalysisService, cfg.Scheduler, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		a.Scheduler = sched
	}

	return nil
}

// tokenSource returns nil when identity tokens are disabled
func (a *App) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if a.Config.Agent.DisableAuth {
		a.Logger.Warn().Msg("Identity tokens disabled, calling agent without Authorization header")
		return nil, nil
	}
	tokens, err := identity.NewTokenSource(ctx, identity.Options{
		Audience:        a.Config.Agent.BaseURL,
		CredentialsFile: a.Config.Agent.CredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity token source: %w", err)
	}
	return tokens, nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.AnalysisHandler = handlers.NewAnalysisHandler(a.AnalysisService, a.StorageManager.AnalysisStorage(), a.Logger)
	a.BreakerHandler = handlers.NewBreakerHandler(a.Breaker)
	if a.Scheduler != nil {
		a.SchedulerHandler = handlers.NewSchedulerHandler(a.Scheduler, a.Logger)
	}
}

// Close releases resources in reverse order of creation
func (a *App) Close() error {
	var errs []error

	if a.Scheduler != nil {
		a.Scheduler.Stop()
		a.Logger.Info().Msg("Scheduler stopped")
	}

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close promotion publisher")
			errs = append(errs, err)
		}
	}

	if a.LedgerStorage != nil {
		if err := a.LedgerStorage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close rate limit ledger")
			errs = append(errs, err)
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			errs = append(errs, err)
		}
	}

	a.Logger.Info().Msg("Application closed")
	return errors.Join(errs...)
}
