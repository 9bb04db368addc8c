package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/metrics"
	"github.com/MatusBehul/veloryn/internal/models"
)

const (
	// DefaultMaxRetries is the number of run_sse attempts per call.
	DefaultMaxRetries = 5

	// DefaultAttemptTimeout bounds one run_sse attempt including the stream.
	DefaultAttemptTimeout = 5 * time.Minute

	// DefaultSessionTimeout bounds session creation.
	DefaultSessionTimeout = 60 * time.Second

	maxErrorBody = 2048
)

// DelayPolicy supplies the wait before a retry.
type DelayPolicy interface {
	NextDelay(attempt int, class models.FailureClass) time.Duration
}

// RateLimitRecorder receives 429 responses.
type RateLimitRecorder interface {
	Record(ctx context.Context, sessionKey string, statusCode int, detail string) error
}

// CallStats describes the attempts made by one Call.
type CallStats struct {
	Attempts int
	Records  []models.AttemptRecord
	Duration time.Duration
}

// Client is the agent session and run_sse client.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         oauth2.TokenSource
	policy         DelayPolicy
	recorder       RateLimitRecorder
	logger         arbor.ILogger
	maxRetries     int
	attemptTimeout time.Duration
	sessionTimeout time.Duration
	sleep          common.SleepFunc
	now            func() time.Time
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Its Timeout should be zero; attempts
// are bounded by context deadlines.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenSource sets the identity token source. Without one no
// Authorization header is sent.
func WithTokenSource(tokens oauth2.TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimitRecorder sets where 429 responses are recorded.
func WithRateLimitRecorder(recorder RateLimitRecorder) ClientOption {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// WithMaxRetries sets the number of attempts per call.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithAttemptTimeout sets the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithSessionTimeout sets the session creation timeout.
func WithSessionTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.sessionTimeout = d
		}
	}
}

// WithSleeper replaces the retry sleep.
func WithSleeper(sleep common.SleepFunc) ClientOption {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient creates an agent client for the service at baseURL.
func NewClient(baseURL string, policy DelayPolicy, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		policy:         policy,
		logger:         arbor.NewNoOpLogger(),
		maxRetries:     DefaultMaxRetries,
		attemptTimeout: DefaultAttemptTimeout,
		sessionTimeout: DefaultSessionTimeout,
		sleep:          common.Sleep,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateSession registers env.SessionID with the agent. An existing session
// (409) is accepted. Failures are not retried.
func (c *Client) CreateSession(ctx context.Context, env Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, c.sessionTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s",
		c.baseURL,
		url.PathEscape(env.AppName),
		url.PathEscape(env.UserID),
		url.PathEscape(env.SessionID))

	language := env.PreferredLanguage
	if language == "" {
		language = "English"
	}
	body, err := json.Marshal(sessionRequest{
		State: map[string]interface{}{"preferred_language": language},
	})
	if err != nil {
		return &TransportError{Class: models.FailureSession, Attempts: 1, Err: err}
	}

	req, err := c.newRequest(ctx, endpoint, body)
	if err != nil {
		var authErr *authError
		if errors.As(err, &authErr) {
			return &TransportError{Class: models.FailureAuth, Attempts: 1, Err: err}
		}
		return &TransportError{Class: models.FailureSession, Attempts: 1, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Class: models.FailureSession, Attempts: 1, Err: fmt.Errorf("failed to create session: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		c.logger.Debug().Str("session_id", env.SessionID).Msg("Session already exists")
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{
			Class:      models.FailureSession,
			StatusCode: resp.StatusCode,
			Attempts:   1,
			Err:        statusError(resp, "/apps/.../sessions"),
		}
	}

	c.logger.Info().
		Str("session_id", env.SessionID).
		Str("user_id", env.UserID).
		Msg("Agent session created")

	return nil
}

// Call posts the prompt to run_sse, retrying timeouts, network errors, 5xx
// and 429 responses. On 429 the event is recorded before backing off.
func (c *Client) Call(ctx context.Context, env Envelope) (*RawResponse, *CallStats, error) {
	started := c.now()
	stats := &CallStats{}

	body, err := json.Marshal(newRunRequest(env))
	if err != nil {
		return nil, stats, &TransportError{Class: models.FailureTransportFatal, Err: fmt.Errorf("failed to encode run request: %w", err)}
	}

	var (
		lastClass  models.FailureClass
		lastStatus int
		lastErr    error
	)

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		stats.Attempts = attempt

		resp, status, err := c.attempt(ctx, env, body)
		if err == nil {
			resp.ResponseTime = c.now().Sub(started)
			stats.Duration = resp.ResponseTime
			metrics.TransportAttemptsTotal.WithLabelValues("success").Inc()
			c.logger.Info().
				Str("session_id", env.SessionID).
				Int("attempt", attempt).
				Int("events", resp.EventsCount).
				Str("response_type", resp.ResponseType).
				Dur("response_time", resp.ResponseTime).
				Msg("Agent call completed")
			return resp, stats, nil
		}

		class := classify(err, status)
		lastClass, lastStatus, lastErr = class, status, err
		metrics.TransportAttemptsTotal.WithLabelValues(string(class)).Inc()

		record := models.AttemptRecord{
			Attempt:    attempt,
			Class:      class,
			StatusCode: status,
			Error:      err.Error(),
		}

		if class == models.FailureRateLimited && c.recorder != nil {
			// Best effort: the retry proceeds even when the ledger is down.
			_ = c.recorder.Record(ctx, env.Ticker, status, detailOf(err))
		}

		c.logger.Warn().
			Err(err).
			Str("session_id", env.SessionID).
			Int("attempt", attempt).
			Int("max_attempts", c.maxRetries).
			Int("status_code", status).
			Str("class", string(class)).
			Msg("Agent call attempt failed")

		if !class.Retryable() || ctx.Err() != nil {
			stats.Records = append(stats.Records, record)
			break
		}
		if attempt == c.maxRetries {
			stats.Records = append(stats.Records, record)
			break
		}

		delay := c.policy.NextDelay(attempt, class)
		record.DelayMs = delay.Milliseconds()
		stats.Records = append(stats.Records, record)

		c.logger.Info().
			Str("session_id", env.SessionID).
			Dur("delay", delay).
			Int("next_attempt", attempt+1).
			Msg("Retrying agent call")

		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	stats.Duration = c.now().Sub(started)
	return nil, stats, &TransportError{
		Class:      lastClass,
		StatusCode: lastStatus,
		Attempts:   stats.Attempts,
		Err:        lastErr,
	}
}

// attempt performs one run_sse request and assembles the response.
func (c *Client) attempt(ctx context.Context, env Envelope, body []byte) (*RawResponse, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	begin := time.Now()
	defer func() {
		metrics.TransportDuration.Observe(time.Since(begin).Seconds())
	}()

	req, err := c.newRequest(attemptCtx, c.baseURL+"/run_sse", body)
	if err != nil {
		return nil, 0, err
	}
	if env.Streaming {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("run_sse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, statusError(resp, "/run_sse")
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		raw, err := readStream(attemptCtx, resp.Body)
		if err != nil {
			return nil, resp.StatusCode, err
		}
		raw.StatusCode = resp.StatusCode
		return raw, resp.StatusCode, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	raw := readBody(data)
	raw.StatusCode = resp.StatusCode
	return raw, resp.StatusCode, nil
}

type authError struct {
	err error
}

func (e *authError) Error() string { return "identity token unavailable: " + e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

func (c *Client) newRequest(ctx context.Context, endpoint string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", common.UserAgent())

	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, &authError{err: err}
		}
		tok.SetAuthHeader(req)
	}
	return req, nil
}

// classify maps an attempt failure to its class.
func classify(err error, status int) models.FailureClass {
	var authErr *authError
	switch {
	case errors.As(err, &authErr):
		return models.FailureAuth
	case status == http.StatusTooManyRequests:
		return models.FailureRateLimited
	case status >= 500:
		return models.FailureTransportTransient
	case status >= 400:
		return models.FailureTransportFatal
	}

	if errors.Is(err, context.Canceled) {
		return models.FailureTransportFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTransportTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.FailureTransportTransient
	}
	// Other errors reading or connecting (reset, EOF mid-stream) are transient.
	return models.FailureTransportTransient
}

func statusError(resp *http.Response, endpoint string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		Endpoint:   endpoint,
	}
}

func detailOf(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Body
	}
	return err.Error()
}
