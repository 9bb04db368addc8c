package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/services/analysis"
	"github.com/MatusBehul/veloryn/internal/services/orchestrator"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	outcomes map[string][]*analysis.Outcome
	errs     map[string]error
	calls    []string
	active   int
	peak     int
	hold     time.Duration
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Ticker)
	f.active++
	f.peak = max(f.peak, f.active)
	var outcome *analysis.Outcome
	if queue := f.outcomes[req.Ticker]; len(queue) > 0 {
		outcome = queue[0]
		f.outcomes[req.Ticker] = queue[1:]
	} else {
		outcome = &analysis.Outcome{Status: orchestrator.StatusSuccess}
	}
	err := f.errs[req.Ticker]
	if err != nil {
		outcome = &analysis.Outcome{Status: orchestrator.StatusFailed}
	}
	f.mu.Unlock()

	time.Sleep(f.hold)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return outcome, err
}

func (f *fakeAnalyzer) callCount(ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == ticker {
			n++
		}
	}
	return n
}

type pendingTimer struct {
	wait time.Duration
	fire func()
}

type fakeTimers struct {
	mu      sync.Mutex
	pending []*pendingTimer
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, &pendingTimer{wait: d, fire: fn})
	return func() bool { return false }
}

func newTestService(t *testing.T, analyzer Analyzer, tickers []string, maxConcurrent int) (*Service, *fakeTimers) {
	t.Helper()
	svc, err := NewService(analyzer, common.SchedulerConfig{
		Schedule:      "0 6 * * 1-5",
		Tickers:       tickers,
		MaxConcurrent: maxConcurrent,
	}, arbor.NewNoOpLogger())
	require.NoError(t, err)

	timers := &fakeTimers{}
	svc.afterFunc = timers.afterFunc
	return svc, timers
}

func TestNewService_InvalidSchedule(t *testing.T) {
	_, err := NewService(&fakeAnalyzer{}, common.SchedulerConfig{Schedule: "every day"}, arbor.NewNoOpLogger())
	assert.Error(t, err)
}

func TestNewService_NormalizesTickers(t *testing.T) {
	svc, _ := newTestService(t, &fakeAnalyzer{}, []string{"aapl", "US:AAPL", " ", "ASX:GNP"}, 2)

	statuses := svc.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "US:AAPL", statuses[0].Ticker)
	assert.Equal(t, "ASX:GNP", statuses[1].Ticker)
}

func TestRunNow_AnalyzesEveryTicker(t *testing.T) {
	analyzer := &fakeAnalyzer{
		errs: map[string]error{"US:MSFT": errors.New("market data unavailable")},
	}
	svc, _ := newTestService(t, analyzer, []string{"AAPL", "MSFT"}, 2)

	svc.RunNow()

	assert.Equal(t, 1, analyzer.callCount("US:AAPL"))
	assert.Equal(t, 1, analyzer.callCount("US:MSFT"))

	statuses := svc.Statuses()
	assert.Equal(t, "success", statuses[0].LastStatus)
	assert.Empty(t, statuses[0].LastError)
	require.NotNil(t, statuses[0].LastRun)
	assert.Equal(t, "failed", statuses[1].LastStatus)
	assert.Equal(t, "market data unavailable", statuses[1].LastError)
	assert.False(t, statuses[1].Running)
}

func TestRunNow_RespectsConcurrencyLimit(t *testing.T) {
	analyzer := &fakeAnalyzer{hold: 20 * time.Millisecond}
	svc, _ := newTestService(t, analyzer, []string{"AAPL", "MSFT", "GOOG", "AMZN"}, 2)

	svc.RunNow()

	assert.Len(t, analyzer.calls, 4)
	assert.LessOrEqual(t, analyzer.peak, 2)
}

func TestRunNow_ConcurrentRunsSameTicker(t *testing.T) {
	analyzer := &fakeAnalyzer{hold: 5 * time.Millisecond}
	svc, _ := newTestService(t, analyzer, []string{"AAPL"}, 4)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.RunNow()
		}()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 20 {
			_ = svc.Statuses()
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()
	<-done

	assert.GreaterOrEqual(t, analyzer.callCount("US:AAPL"), 1)
	statuses := svc.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "success", statuses[0].LastStatus)
	assert.False(t, statuses[0].Running)
}

func TestCircuitOpen_ReschedulesOnce(t *testing.T) {
	circuitOpen := &analysis.Outcome{Status: orchestrator.StatusCircuitOpen, Wait: 13 * time.Minute}
	analyzer := &fakeAnalyzer{
		outcomes: map[string][]*analysis.Outcome{
			"US:AAPL": {circuitOpen, circuitOpen},
		},
	}
	svc, timers := newTestService(t, analyzer, []string{"AAPL"}, 1)

	svc.RunNow()

	require.Len(t, timers.pending, 1)
	assert.Equal(t, 13*time.Minute, timers.pending[0].wait)
	require.NotNil(t, svc.Statuses()[0].RetryAt)
	assert.Equal(t, "circuit_open", svc.Statuses()[0].LastStatus)

	timers.pending[0].fire()

	assert.Equal(t, 2, analyzer.callCount("US:AAPL"))
	assert.Len(t, timers.pending, 1, "a retry that finds the circuit open is not re-scheduled")
	assert.Nil(t, svc.Statuses()[0].RetryAt)
}

func TestCircuitOpen_SingleRetryPerTicker(t *testing.T) {
	circuitOpen := &analysis.Outcome{Status: orchestrator.StatusCircuitOpen, Wait: time.Minute}
	analyzer := &fakeAnalyzer{
		outcomes: map[string][]*analysis.Outcome{
			"US:AAPL": {circuitOpen, circuitOpen},
		},
	}
	svc, timers := newTestService(t, analyzer, []string{"AAPL"}, 1)

	svc.RunNow()
	svc.RunNow()

	assert.Len(t, timers.pending, 1)
}

func TestStartStop(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	svc, _ := newTestService(t, analyzer, []string{"AAPL"}, 1)

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start())
	assert.False(t, svc.NextRun().IsZero())

	svc.Stop()
	assert.True(t, svc.NextRun().IsZero())

	svc.RunNow()
	assert.Empty(t, analyzer.calls)
}
