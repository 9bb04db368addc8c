// Package scheduler runs daily analyses for the configured tickers on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/services/analysis"
	"github.com/MatusBehul/veloryn/internal/services/orchestrator"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Outcome, error)
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timerAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// TickerStatus is the scheduling state of one ticker.
type TickerStatus struct {
	Ticker     string     `json:"ticker"`
	Running    bool       `json:"running"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	RetryAt    *time.Time `json:"retry_at,omitempty"`
}

type tickerJob struct {
	status    TickerStatus
	stopRetry func() bool
}

// Service triggers analyses on a schedule. Runs for different tickers execute
// concurrently up to MaxConcurrent; a ticker never runs twice at once.
type Service struct {
	analyzer Analyzer
	schedule string
	tickers  []string
	sem      chan struct{}
	logger   arbor.ILogger

	cron      *cron.Cron
	entryID   cron.EntryID
	afterFunc AfterFunc
	now       func() time.Time

	mu      sync.Mutex
	jobs    map[string]*tickerJob
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	retries sync.WaitGroup
}

// NewService creates a scheduler for cfg.
func NewService(analyzer Analyzer, cfg common.SchedulerConfig, logger arbor.ILogger) (*Service, error) {
	if err := common.ValidateSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	jobs := make(map[string]*tickerJob, len(cfg.Tickers))
	tickers := make([]string, 0, len(cfg.Tickers))
	for _, raw := range cfg.Tickers {
		ticker := common.ParseTicker(raw)
		if ticker.IsZero() {
			continue
		}
		key := ticker.String()
		if _, dup := jobs[key]; dup {
			continue
		}
		jobs[key] = &tickerJob{status: TickerStatus{Ticker: key}}
		tickers = append(tickers, key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		analyzer:  analyzer,
		schedule:  cfg.Schedule,
		tickers:   tickers,
		sem:       make(chan struct{}, maxConcurrent),
		logger:    logger,
		cron:      cron.New(),
		afterFunc: timerAfterFunc,
		now:       time.Now,
		jobs:      jobs,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start registers the cron entry and starts the scheduler.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	id, err := s.cron.AddFunc(s.schedule, s.RunNow)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.schedule).
		Int("tickers", len(s.tickers)).
		Int("max_concurrent", cap(s.sem)).
		Msg("Scheduler started")
	return nil
}

// Stop cancels in-flight runs and pending retries and waits for them to end.
func (s *Service) Stop() {
	s.mu.Lock()
	s.cancel()
	for _, job := range s.jobs {
		if job.stopRetry != nil && job.stopRetry() {
			job.stopRetry = nil
			job.status.RetryAt = nil
			s.retries.Done()
		}
	}
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.retries.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// NextRun returns the next scheduled run, or the zero time when stopped.
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Statuses returns the state of every configured ticker in configuration order.
func (s *Service) Statuses() []TickerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TickerStatus, 0, len(s.tickers))
	for _, ticker := range s.tickers {
		out = append(out, s.jobs[ticker].status)
	}
	return out
}

// RunNow analyzes every configured ticker and waits for the runs to finish.
func (s *Service) RunNow() {
	var wg sync.WaitGroup
	for _, ticker := range s.tickers {
		wg.Add(1)
		common.SafeGo(s.logger, "scheduled-analysis-"+ticker, func() {
			defer wg.Done()
			s.runTicker(ticker, false)
		})
	}
	wg.Wait()
}

func (s *Service) runTicker(ticker string, isRetry bool) {
	outcome, ran := s.analyze(ticker)
	if !ran || outcome == nil || outcome.Status != orchestrator.StatusCircuitOpen {
		return
	}
	if isRetry {
		s.logger.Warn().Str("ticker", ticker).Msg("Circuit still open on retry, waiting for next schedule")
		return
	}
	s.scheduleRetry(ticker, outcome.Wait)
}

// analyze runs one analysis under the concurrency limit. It reports false
// when the ticker was already running or the scheduler is stopping.
func (s *Service) analyze(ticker string) (*analysis.Outcome, bool) {
	if s.ctx.Err() != nil {
		return nil, false
	}
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx.Done():
		return nil, false
	}
	defer func() { <-s.sem }()

	s.mu.Lock()
	job := s.jobs[ticker]
	if job.status.Running {
		s.mu.Unlock()
		s.logger.Debug().Str("ticker", ticker).Msg("Analysis already running, skipping")
		return nil, false
	}
	job.status.Running = true
	s.mu.Unlock()

	started := s.now()
	outcome, err := s.analyzer.Analyze(s.ctx, analysis.Request{Ticker: ticker})
	finished := s.now()

	s.mu.Lock()
	job.status.Running = false
	job.status.LastRun = &finished
	job.status.LastError = ""
	job.status.LastStatus = ""
	if outcome != nil {
		job.status.LastStatus = string(outcome.Status)
	}
	if err != nil {
		job.status.LastError = err.Error()
		if job.status.LastStatus == "" {
			job.status.LastStatus = string(orchestrator.StatusFailed)
		}
	}
	status := job.status.LastStatus
	s.mu.Unlock()

	logger := s.logger.WithCorrelationId(ticker)
	if err != nil {
		logger.Error().Err(err).Dur("duration", finished.Sub(started)).Msg("Scheduled analysis failed")
	} else {
		logger.Info().
			Str("status", status).
			Dur("duration", finished.Sub(started)).
			Msg("Scheduled analysis finished")
	}
	return outcome, true
}

func (s *Service) scheduleRetry(ticker string, wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.jobs[ticker]
	if s.ctx.Err() != nil || job.stopRetry != nil {
		return
	}

	retryAt := s.now().Add(wait)
	job.status.RetryAt = &retryAt
	s.retries.Add(1)
	job.stopRetry = s.afterFunc(wait, func() {
		defer s.retries.Done()

		s.mu.Lock()
		job.stopRetry = nil
		job.status.RetryAt = nil
		s.mu.Unlock()

		s.runTicker(ticker, true)
	})

	s.logger.Info().
		Str("ticker", ticker).
		Dur("wait", wait).
		Msg("Circuit open, analysis re-scheduled once")
}
