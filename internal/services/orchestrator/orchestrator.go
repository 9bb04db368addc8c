// Package orchestrator drives one analysis request from admission to a
// validated result: session, call, extraction, validation, and full retries
// when the content is invalid.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/metrics"
	"github.com/MatusBehul/veloryn/internal/models"
	"github.com/MatusBehul/veloryn/internal/services/agent"
	"github.com/MatusBehul/veloryn/internal/services/breaker"
	"github.com/MatusBehul/veloryn/internal/services/extraction"
	"github.com/MatusBehul/veloryn/internal/services/validation"
)

// Envelope identifies one request.
type Envelope = agent.Envelope

// Status is the caller-visible outcome of a run.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusCircuitOpen Status = "circuit_open"
	StatusFailed      Status = "failed"
)

// Phase names used in Result.Phases.
const (
	PhaseAdmit      = "admit"
	PhaseSession    = "session"
	PhaseCalling    = "calling"
	PhaseExtracting = "extracting"
	PhaseValidating = "validating"
)

// Transport creates sessions and performs remote calls.
type Transport interface {
	CreateSession(ctx context.Context, env agent.Envelope) error
	Call(ctx context.Context, env agent.Envelope) (*agent.RawResponse, *agent.CallStats, error)
}

// Gate decides admission and pacing.
type Gate interface {
	CheckOpen(ctx context.Context) breaker.State
	PacingDelay(ctx context.Context) time.Duration
}

// Delayer computes jittered exponential delays.
type Delayer interface {
	Exponential(base time.Duration, attempt int) time.Duration
}

// ValidateFunc turns an extracted value into items.
type ValidateFunc func(payload interface{}) ([]models.AnalysisItem, error)

// Config holds validation retry settings.
type Config struct {
	MaxValidationRetries int
	ValidationBaseDelay  time.Duration
}

// Result is the outcome of Admit, Execute or Run.
type Result struct {
	Status             Status                 `json:"status"`
	Items              []models.AnalysisItem  `json:"items,omitempty"`
	Wait               time.Duration          `json:"wait,omitempty"`
	ValidationAttempts int                    `json:"validation_attempts"`
	TransportAttempts  int                    `json:"transport_attempts"`
	Attempts           []models.AttemptRecord `json:"attempts,omitempty"`
	Class              models.FailureClass    `json:"class,omitempty"`
	Err                error                  `json:"-"`
	Response           *agent.RawResponse     `json:"response,omitempty"`
	Strategy           string                 `json:"strategy,omitempty"`
	Phases             map[string]int64       `json:"phases"` // milliseconds
}

// Error returns the last error message, or "".
func (r *Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r *Result) fail(class models.FailureClass, err error) *Result {
	r.Status = StatusFailed
	r.Class = class
	r.Err = err
	r.Items = nil
	return r
}

func (r *Result) addPhase(name string, d time.Duration) {
	r.Phases[name] += d.Milliseconds()
}

func newResult() *Result {
	return &Result{Phases: make(map[string]int64)}
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeFatal
)

type outcome struct {
	kind  outcomeKind
	items []models.AnalysisItem
	class models.FailureClass
	err   error
}

// Orchestrator runs requests. Safe for concurrent use; runs share nothing but
// the gate's ledger.
type Orchestrator struct {
	transport Transport
	gate      Gate
	delays    Delayer
	validate  ValidateFunc
	config    Config
	logger    arbor.ILogger
	sleep     common.SleepFunc
	now       func() time.Time
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the pacing and retry sleep.
func WithSleeper(sleep common.SleepFunc) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// WithClock replaces the clock used for phase timings.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithValidator replaces the payload validator.
func WithValidator(validate ValidateFunc) Option {
	return func(o *Orchestrator) {
		o.validate = validate
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(transport Transport, gate Gate, delays Delayer, config Config, logger arbor.ILogger, opts ...Option) *Orchestrator {
	if config.MaxValidationRetries <= 0 {
		config.MaxValidationRetries = 3
	}
	if config.ValidationBaseDelay <= 0 {
		config.ValidationBaseDelay = 5 * time.Second
	}

	o := &Orchestrator{
		transport: transport,
		gate:      gate,
		delays:    delays,
		validate:  validation.Validate,
		config:    config,
		logger:    logger,
		sleep:     common.Sleep,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Admit checks the breaker and sleeps the pacing delay. It returns a
// circuit_open Result when the breaker is open, nil when the call may proceed,
// and a failed Result when ctx ends during pacing.
func (o *Orchestrator) Admit(ctx context.Context) *Result {
	state := o.gate.CheckOpen(ctx)
	if state.Open {
		metrics.CircuitOpenTotal.Inc()
		result := newResult()
		result.Status = StatusCircuitOpen
		result.Class = models.FailureCircuitOpen
		result.Wait = state.Wait
		result.Err = models.NewClassError(models.FailureCircuitOpen,
			fmt.Errorf("%d rate-limit events in window, retry in %s", state.Count, state.Wait.Round(time.Second)))
		return result
	}

	delay := o.gate.PacingDelay(ctx)
	o.logger.Debug().Dur("delay", delay).Msg("Pacing before remote call")
	if err := o.sleep(ctx, delay); err != nil {
		return newResult().fail(models.ClassOf(err), fmt.Errorf("pacing interrupted: %w", err))
	}
	return nil
}

// Run admits and then executes env.
func (o *Orchestrator) Run(ctx context.Context, env Envelope) *Result {
	started := o.now()
	if result := o.Admit(ctx); result != nil {
		result.addPhase(PhaseAdmit, o.now().Sub(started))
		return result
	}
	admitted := o.now().Sub(started)

	result := o.Execute(ctx, env)
	result.addPhase(PhaseAdmit, admitted)
	return result
}

// Execute creates the session and calls until the response validates, the
// validation budget is spent, or a fatal failure occurs.
func (o *Orchestrator) Execute(ctx context.Context, env Envelope) *Result {
	result := newResult()
	logger := o.logger.WithCorrelationId(env.SessionID)

	phaseStart := o.now()
	if err := o.transport.CreateSession(ctx, env); err != nil {
		result.addPhase(PhaseSession, o.now().Sub(phaseStart))
		logger.Error().Err(err).Msg("Session creation failed")
		return result.fail(models.ClassOf(err), fmt.Errorf("failed to create session: %w", err))
	}
	result.addPhase(PhaseSession, o.now().Sub(phaseStart))

	for {
		out := o.attempt(ctx, env, result)

		switch out.kind {
		case outcomeSuccess:
			result.Status = StatusSuccess
			result.Items = out.items
			result.Class = models.FailureNone
			result.Err = nil
			logger.Info().
				Int("items", len(out.items)).
				Int("validation_attempts", result.ValidationAttempts).
				Int("transport_attempts", result.TransportAttempts).
				Msg("Analysis request completed")
			return result

		case outcomeFatal:
			logger.Error().
				Err(out.err).
				Str("class", string(out.class)).
				Msg("Analysis request failed")
			return result.fail(out.class, out.err)
		}

		logger.Warn().
			Err(out.err).
			Int("validation_attempt", result.ValidationAttempts).
			Int("max_validation_attempts", o.config.MaxValidationRetries).
			Msg("Response content invalid")

		if result.ValidationAttempts >= o.config.MaxValidationRetries {
			return result.fail(out.class, fmt.Errorf("response invalid after %d attempts: %w", result.ValidationAttempts, out.err))
		}

		delay := o.delays.Exponential(o.config.ValidationBaseDelay, result.ValidationAttempts)
		metrics.ValidationRetriesTotal.Inc()
		logger.Info().Dur("delay", delay).Msg("Retrying remote call after invalid content")

		if err := o.sleep(ctx, delay); err != nil {
			return result.fail(models.ClassOf(err), fmt.Errorf("validation retry interrupted: %w", err))
		}
	}
}

// attempt runs CALLING, EXTRACTING and VALIDATING once.
func (o *Orchestrator) attempt(ctx context.Context, env Envelope, result *Result) outcome {
	phaseStart := o.now()
	resp, stats, err := o.transport.Call(ctx, env)
	result.addPhase(PhaseCalling, o.now().Sub(phaseStart))
	if stats != nil {
		result.TransportAttempts += stats.Attempts
		result.Attempts = append(result.Attempts, stats.Records...)
	}
	if err != nil {
		return outcome{kind: outcomeFatal, class: models.ClassOf(err), err: err}
	}

	result.Response = resp
	result.ValidationAttempts++

	phaseStart = o.now()
	payload, err := extraction.Extract(resp.Text)
	result.addPhase(PhaseExtracting, o.now().Sub(phaseStart))
	if err != nil {
		metrics.ExtractionTotal.WithLabelValues("failed").Inc()
		return outcome{kind: outcomeRetryable, class: models.FailureExtraction, err: err}
	}
	metrics.ExtractionTotal.WithLabelValues(payload.Strategy).Inc()
	result.Strategy = payload.Strategy

	phaseStart = o.now()
	items, err := o.validate(payload.Value)
	result.addPhase(PhaseValidating, o.now().Sub(phaseStart))
	if err != nil {
		return outcome{kind: outcomeRetryable, class: models.FailureValidation, err: err}
	}

	return outcome{kind: outcomeSuccess, items: items}
}
