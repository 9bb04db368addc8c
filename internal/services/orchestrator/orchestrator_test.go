package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/models"
	"github.com/MatusBehul/veloryn/internal/services/agent"
	"github.com/MatusBehul/veloryn/internal/services/breaker"
	"github.com/MatusBehul/veloryn/internal/services/validation"
)

const goodResponse = "```json\n" + `[{
	"language": "en",
	"overall_analysis": ["a"],
	"technical_analysis": ["b"],
	"fundamental_analysis": ["c"],
	"sentiment_analysis": ["d"],
	"risk_analysis": ["e"],
	"investment_insights": ["f"],
	"investment_narrative": ["g"],
	"promo_summary": "s",
	"promo_tts_text": "t",
	"promote_flag": "false"
}]` + "\n```"

const invalidResponse = `[{"language": "en", "overall_analysis": []}]`

type scriptedCall struct {
	text string
	err  error
}

type fakeTransport struct {
	sessionErr error
	sessions   int
	calls      []scriptedCall
	callCount  int
}

func (f *fakeTransport) CreateSession(ctx context.Context, env agent.Envelope) error {
	f.sessions++
	return f.sessionErr
}

func (f *fakeTransport) Call(ctx context.Context, env agent.Envelope) (*agent.RawResponse, *agent.CallStats, error) {
	call := f.calls[f.callCount]
	if f.callCount < len(f.calls)-1 {
		f.callCount++
	}
	stats := &agent.CallStats{Attempts: 1}
	if call.err != nil {
		return nil, stats, call.err
	}
	return &agent.RawResponse{Text: call.text, ResponseType: agent.ResponseText}, stats, nil
}

type fakeGate struct {
	state  breaker.State
	pacing time.Duration
}

func (g *fakeGate) CheckOpen(ctx context.Context) breaker.State  { return g.state }
func (g *fakeGate) PacingDelay(ctx context.Context) time.Duration { return g.pacing }

type linearDelays struct{}

func (linearDelays) Exponential(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt-1))
}

type sleepRecorder struct {
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func newTestOrchestrator(transport *fakeTransport, gate *fakeGate, sleeper *sleepRecorder) *Orchestrator {
	return NewOrchestrator(transport, gate, linearDelays{}, Config{
		MaxValidationRetries: 3,
		ValidationBaseDelay:  5 * time.Second,
	}, arbor.NewNoOpLogger(), WithSleeper(sleeper.Sleep))
}

func testEnvelope() Envelope {
	return Envelope{AppName: "app", UserID: "user", SessionID: "daily_AAPL_20250314_090000", Prompt: "p", Ticker: "AAPL"}
}

func TestRun_Success(t *testing.T) {
	transport := &fakeTransport{calls: []scriptedCall{{text: goodResponse}}}
	sleeper := &sleepRecorder{}
	gate := &fakeGate{pacing: 10 * time.Second}

	result := newTestOrchestrator(transport, gate, sleeper).Run(context.Background(), testEnvelope())

	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "en", result.Items[0].Language)
	assert.False(t, result.Items[0].PromoteFlag)
	assert.Equal(t, 1, result.ValidationAttempts)
	assert.Equal(t, 1, result.TransportAttempts)
	assert.Equal(t, "fenced", result.Strategy)
	assert.NoError(t, result.Err)
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeper.delays)
	assert.Contains(t, result.Phases, PhaseCalling)
}

func TestExecute_TwoInvalidThenValid(t *testing.T) {
	transport := &fakeTransport{calls: []scriptedCall{
		{text: invalidResponse},
		{text: "I am unable to produce JSON today."},
		{text: goodResponse},
	}}
	sleeper := &sleepRecorder{}

	result := newTestOrchestrator(transport, &fakeGate{}, sleeper).Execute(context.Background(), testEnvelope())

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 3, result.ValidationAttempts)
	assert.Equal(t, 3, result.TransportAttempts)
	assert.Equal(t, 1, transport.sessions)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, sleeper.delays)
}

func TestExecute_ValidationExhausted(t *testing.T) {
	transport := &fakeTransport{calls: []scriptedCall{{text: invalidResponse}}}
	sleeper := &sleepRecorder{}

	result := newTestOrchestrator(transport, &fakeGate{}, sleeper).Execute(context.Background(), testEnvelope())

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, models.FailureValidation, result.Class)
	assert.Equal(t, 3, result.ValidationAttempts)
	assert.Nil(t, result.Items)

	var failure *validation.ValidationFailure
	require.ErrorAs(t, result.Err, &failure)
	assert.Contains(t, result.Error(), "item[0].overall_analysis")
	assert.Len(t, sleeper.delays, 2)
}

func TestExecute_SessionFailureIsFatal(t *testing.T) {
	transport := &fakeTransport{
		sessionErr: &agent.TransportError{Class: models.FailureSession, StatusCode: 500, Attempts: 1, Err: errors.New("boom")},
		calls:      []scriptedCall{{text: goodResponse}},
	}

	result := newTestOrchestrator(transport, &fakeGate{}, &sleepRecorder{}).Execute(context.Background(), testEnvelope())

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, models.FailureSession, result.Class)
	assert.Equal(t, 0, transport.callCount)
	assert.Equal(t, 0, result.ValidationAttempts)
}

func TestExecute_TransportFailureNotRetried(t *testing.T) {
	transport := &fakeTransport{calls: []scriptedCall{
		{err: &agent.TransportError{Class: models.FailureRateLimited, StatusCode: 429, Attempts: 5, Err: errors.New("429")}},
		{text: goodResponse},
	}}
	sleeper := &sleepRecorder{}

	result := newTestOrchestrator(transport, &fakeGate{}, sleeper).Execute(context.Background(), testEnvelope())

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, models.FailureRateLimited, result.Class)
	assert.Equal(t, 0, result.ValidationAttempts)
	assert.Empty(t, sleeper.delays)

	var te *agent.TransportError
	require.ErrorAs(t, result.Err, &te)
	assert.Equal(t, 429, te.StatusCode)
}

func TestRun_CircuitOpen(t *testing.T) {
	transport := &fakeTransport{calls: []scriptedCall{{text: goodResponse}}}
	gate := &fakeGate{state: breaker.State{Open: true, Wait: 13 * time.Minute, Count: 5}}
	sleeper := &sleepRecorder{}

	result := newTestOrchestrator(transport, gate, sleeper).Run(context.Background(), testEnvelope())

	assert.Equal(t, StatusCircuitOpen, result.Status)
	assert.Equal(t, models.FailureCircuitOpen, result.Class)
	assert.Equal(t, 13*time.Minute, result.Wait)
	assert.Equal(t, 0, transport.sessions)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, models.FailureCircuitOpen, models.ClassOf(result.Err))
}

func TestAdmit_PacingInterrupted(t *testing.T) {
	sleeper := &sleepRecorder{err: context.Canceled}
	o := newTestOrchestrator(&fakeTransport{}, &fakeGate{pacing: time.Minute}, sleeper)

	result := o.Admit(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, StatusFailed, result.Status)
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestExecute_RetrySleepInterrupted(t *testing.T) {
	transport := &fakeTransport{calls: []scriptedCall{{text: invalidResponse}}}
	sleeper := &sleepRecorder{err: context.DeadlineExceeded}

	result := newTestOrchestrator(transport, &fakeGate{}, sleeper).Execute(context.Background(), testEnvelope())

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 1, result.ValidationAttempts)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
}
