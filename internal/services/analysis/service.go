// Package analysis runs one daily ticker analysis end to end: admission,
// market data, prompt, remote call, persistence and promotion.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/interfaces"
	"github.com/MatusBehul/veloryn/internal/metrics"
	"github.com/MatusBehul/veloryn/internal/models"
	"github.com/MatusBehul/veloryn/internal/services/agent"
	"github.com/MatusBehul/veloryn/internal/services/orchestrator"
	"github.com/MatusBehul/veloryn/internal/services/promotion"
	"github.com/MatusBehul/veloryn/internal/templates"
)

const dayLayout = "2006-01-02"

// PhaseMarketData is the phase name of the snapshot fetch in performance metrics.
const PhaseMarketData = "market_data"

// ErrInvalidRequest marks requests rejected before any work is done.
var ErrInvalidRequest = errors.New("invalid analysis request")

// Runner admits and executes remote analysis requests.
type Runner interface {
	Admit(ctx context.Context) *orchestrator.Result
	Execute(ctx context.Context, env orchestrator.Envelope) *orchestrator.Result
}

// Config holds the envelope defaults, promotion and cost settings.
type Config struct {
	AppName           string
	UserID            string
	PreferredLanguage string
	Streaming         bool

	PromotionLanguage string
	SeriesLength      int

	InputPerMTok  float64
	OutputPerMTok float64
}

// ConfigFrom maps the application configuration.
func ConfigFrom(cfg *common.Config) Config {
	return Config{
		AppName:           cfg.Agent.AppName,
		UserID:            cfg.Agent.UserID,
		PreferredLanguage: cfg.Agent.PreferredLanguage,
		Streaming:         cfg.Agent.Streaming,
		PromotionLanguage: cfg.Promotion.Language,
		SeriesLength:      cfg.Promotion.SeriesLength,
		InputPerMTok:      cfg.Cost.InputPerMTok,
		OutputPerMTok:     cfg.Cost.OutputPerMTok,
	}
}

// Request asks for the analysis of one ticker on one day.
type Request struct {
	Ticker string `json:"ticker"`
	Day    string `json:"day_input,omitempty"` // YYYY-MM-DD, defaults to today (UTC)
	UserID string `json:"user_id,omitempty"`
}

// Outcome is the caller-visible result of Analyze.
type Outcome struct {
	Status             orchestrator.Status   `json:"status"`
	Ticker             string                `json:"ticker"`
	Day                string                `json:"day"`
	SessionID          string                `json:"session_id,omitempty"`
	RecordID           string                `json:"result_document_id,omitempty"`
	Wait               time.Duration         `json:"wait,omitempty"`
	WaitSeconds        float64               `json:"wait_seconds,omitempty"`
	Languages          []string              `json:"languages,omitempty"`
	Items              []models.AnalysisItem `json:"-"`
	ValidationAttempts int                   `json:"validation_attempts"`
	TransportAttempts  int                   `json:"transport_attempts"`
	Promoted           bool                  `json:"promoted"`
	Class              models.FailureClass   `json:"failure_class,omitempty"`
	Error              string                `json:"error,omitempty"`
	ExecutionTime      time.Duration         `json:"-"`
	ExecutionSeconds   float64               `json:"execution_time"`
}

// Service runs analyses. Safe for concurrent use.
type Service struct {
	runner    Runner
	market    interfaces.MarketDataProvider
	storage   interfaces.AnalysisStorage
	publisher interfaces.PromotionPublisher
	prompt    *templates.Template
	config    Config
	logger    arbor.ILogger
	now       func() time.Time
}

// NewService creates the analysis service. publisher may be nil, in which
// case flagged analyses are not promoted.
func NewService(
	runner Runner,
	market interfaces.MarketDataProvider,
	storage interfaces.AnalysisStorage,
	publisher interfaces.PromotionPublisher,
	prompt *templates.Template,
	config Config,
	logger arbor.ILogger,
) *Service {
	if config.PromotionLanguage == "" {
		config.PromotionLanguage = models.DefaultLanguage
	}
	if config.PreferredLanguage == "" {
		config.PreferredLanguage = "English"
	}
	return &Service{
		runner:    runner,
		market:    market,
		storage:   storage,
		publisher: publisher,
		prompt:    prompt,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Analyze runs one analysis. A circuit-open outcome is returned without error;
// every failure returns the outcome together with the error.
func (s *Service) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	started := s.now()

	ticker := common.ParseTicker(req.Ticker)
	if ticker.IsZero() {
		return nil, fmt.Errorf("%w: ticker is required", ErrInvalidRequest)
	}

	day := strings.TrimSpace(req.Day)
	if day == "" {
		day = started.UTC().Format(dayLayout)
	}
	dayTime, err := time.Parse(dayLayout, day)
	if err != nil {
		return nil, fmt.Errorf("%w: day_input must be YYYY-MM-DD: %v", ErrInvalidRequest, err)
	}

	outcome := &Outcome{Ticker: ticker.Code, Day: day}
	logger := s.logger.WithCorrelationId(ticker.DocumentKey(day))
	defer func() {
		outcome.ExecutionTime = s.now().Sub(started)
		outcome.ExecutionSeconds = outcome.ExecutionTime.Seconds()
		metrics.RunsTotal.WithLabelValues(string(outcome.Status)).Inc()
		metrics.RunDuration.Observe(outcome.ExecutionSeconds)
	}()

	if admitted := s.runner.Admit(ctx); admitted != nil {
		outcome.Status = admitted.Status
		outcome.Class = admitted.Class
		outcome.Error = admitted.Error()
		if admitted.Status == orchestrator.StatusCircuitOpen {
			outcome.Wait = admitted.Wait
			outcome.WaitSeconds = admitted.Wait.Seconds()
			logger.Warn().Dur("wait", admitted.Wait).Msg("Analysis deferred, circuit open")
			return outcome, nil
		}
		return outcome, admitted.Err
	}

	marketStart := s.now()
	snapshot, err := s.market.Snapshot(ctx, ticker.String(), dayTime)
	marketElapsed := s.now().Sub(marketStart)
	if err != nil {
		err = models.NewClassError(models.FailureMarketData, fmt.Errorf("failed to fetch market data: %w", err))
		return s.failed(outcome, err), err
	}

	prompt, err := s.renderPrompt(ticker, day, snapshot)
	if err != nil {
		return s.failed(outcome, err), err
	}

	userID := req.UserID
	if userID == "" {
		userID = s.config.UserID
	}
	env := orchestrator.Envelope{
		AppName:           s.config.AppName,
		UserID:            userID,
		SessionID:         agent.NewSessionID(ticker.Code, started),
		Prompt:            prompt,
		Streaming:         s.config.Streaming,
		Ticker:            ticker.Code,
		PreferredLanguage: s.config.PreferredLanguage,
	}
	outcome.SessionID = env.SessionID
	outcome.RecordID = ticker.DocumentKey(day)
	logger = s.logger.WithCorrelationId(env.SessionID)

	logger.Info().
		Str("ticker", ticker.String()).
		Str("day", day).
		Int("prompt_length", len(prompt)).
		Msg("Starting analysis")

	result := s.runner.Execute(ctx, env)
	if result.Phases == nil {
		result.Phases = make(map[string]int64)
	}
	result.Phases[PhaseMarketData] += marketElapsed.Milliseconds()
	outcome.ValidationAttempts = result.ValidationAttempts
	outcome.TransportAttempts = result.TransportAttempts

	run := &run{
		ticker:   ticker,
		day:      day,
		env:      env,
		snapshot: snapshot,
		result:   result,
		started:  started,
	}

	if result.Status != orchestrator.StatusSuccess {
		outcome.Status = orchestrator.StatusFailed
		outcome.Class = result.Class
		outcome.Error = result.Error()
		runErr := result.Err
		if storeErr := s.persistFailure(ctx, run); storeErr != nil {
			logger.Error().Err(storeErr).Msg("Failed to persist failed analysis")
			runErr = errors.Join(runErr, storeErr)
		}
		return outcome, runErr
	}

	if err := s.persistSuccess(ctx, run); err != nil {
		err = models.NewClassError(models.FailureStorage, err)
		logger.Error().Err(err).Msg("Failed to persist analysis")
		return s.failed(outcome, err), err
	}

	promoted, err := s.promote(ctx, run)
	if err != nil {
		err = models.NewClassError(models.FailurePublish, err)
		logger.Error().Err(err).Msg("Failed to publish promotion")
		return s.failed(outcome, err), err
	}

	outcome.Status = orchestrator.StatusSuccess
	outcome.Items = result.Items
	outcome.Languages = languages(result.Items)
	outcome.Promoted = promoted

	logger.Info().
		Str("record_id", outcome.RecordID).
		Int("languages", len(outcome.Languages)).
		Bool("promoted", promoted).
		Msg("Analysis completed")

	return outcome, nil
}

func (s *Service) failed(outcome *Outcome, err error) *Outcome {
	outcome.Status = orchestrator.StatusFailed
	outcome.Class = models.ClassOf(err)
	outcome.Error = err.Error()
	return outcome
}

func (s *Service) renderPrompt(ticker common.Ticker, day string, snapshot *models.MarketSnapshot) (string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode market snapshot: %w", err)
	}
	return s.prompt.Render(templates.PromptData{
		Ticker: ticker.Code,
		Day:    day,
		Data:   string(data),
	})
}

func (s *Service) promote(ctx context.Context, r *run) (bool, error) {
	item := promotion.Candidate(r.result.Items, s.config.PromotionLanguage)
	if item == nil {
		return false, nil
	}
	if s.publisher == nil {
		s.logger.Debug().Str("ticker", r.ticker.Code).Msg("Promotion flagged but publisher disabled")
		return false, nil
	}

	msg := promotion.Build(r.snapshot.Profile, r.day, item, r.snapshot.DailyPrices, s.config.SeriesLength)
	if err := s.publisher.PublishPromotion(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

func languages(items []models.AnalysisItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Language)
	}
	return out
}
