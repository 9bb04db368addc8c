// Package eodhd is a client for the EODHD market data API and the market
// data provider used to build analysis prompts.
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/metrics"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	defaultNewsLimit  = 50
	defaultRetryAfter = time.Minute
	maxErrorBody      = 4 << 10
)

// Client is a rate-limited EODHD API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit allows requestsPerSecond with an equal burst.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClientFromConfig creates a client from the [eodhd] configuration section.
func NewClientFromConfig(cfg common.EODHDConfig, logger arbor.ILogger) *Client {
	opts := []ClientOption{WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimit(cfg.RateLimit))
	}
	return NewClient(cfg.APIKey, opts...)
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     arbor.NewNoOpLogger(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get waits for the limiter, performs one GET and decodes the JSON body
// into result. endpoint labels logs and metrics.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, result interface{}) (err error) {
	defer func() {
		metrics.MarketDataRequestsTotal.WithLabelValues(endpoint, resultLabel(err)).Inc()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", common.UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("eodhd %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("EODHD API request")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body)), Endpoint: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// dated is implemented by list items that carry a raw date string.
type dated interface {
	dateRef() (raw string, parsed *time.Time)
}

// getDated fetches a JSON array and parses each item's date with the first
// matching layout. Unparseable dates stay zero.
func getDated[E any, P interface {
	*E
	dated
}](ctx context.Context, c *Client, endpoint, path string, params url.Values, layouts ...string) ([]E, error) {
	var items []E
	if err := c.get(ctx, endpoint, path, params, &items); err != nil {
		return nil, err
	}
	for i := range items {
		raw, parsed := P(&items[i]).dateRef()
		for _, layout := range layouts {
			if t, err := time.Parse(layout, raw); err == nil {
				*parsed = t
				break
			}
		}
	}
	return items, nil
}

// GetEOD returns end-of-day bars for a symbol in TICKER.EXCHANGE form.
// Defaults to daily bars in ascending order.
func (c *Client) GetEOD(ctx context.Context, symbol string, opts ...QueryOption) (EODResponse, error) {
	q := newQuery(query{period: "d", order: "a"}, opts)
	return getDated[EODData](ctx, c, "eod", "/eod/"+symbol, q.values(), dateLayout)
}

// GetFundamentals returns the fundamentals document for a symbol.
func (c *Client) GetFundamentals(ctx context.Context, symbol string) (*FundamentalsResponse, error) {
	var result FundamentalsResponse
	if err := c.get(ctx, "fundamentals", "/fundamentals/"+symbol, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetDividends returns dividend history for a symbol.
func (c *Client) GetDividends(ctx context.Context, symbol string, opts ...QueryOption) (DividendsResponse, error) {
	q := newQuery(query{}, opts)
	return getDated[DividendData](ctx, c, "div", "/div/"+symbol, q.values(), dateLayout)
}

// GetSplits returns split history for a symbol.
func (c *Client) GetSplits(ctx context.Context, symbol string, opts ...QueryOption) (SplitsResponse, error) {
	q := newQuery(query{}, opts)
	return getDated[SplitData](ctx, c, "splits", "/splits/"+symbol, q.values(), dateLayout)
}

// GetNews returns news for one or more symbols, at most 50 unless limited.
func (c *Client) GetNews(ctx context.Context, symbols []string, opts ...QueryOption) (NewsResponse, error) {
	q := newQuery(query{limit: defaultNewsLimit}, opts)
	params := q.values()
	params.Set("s", strings.Join(symbols, ","))
	return getDated[NewsItem](ctx, c, "news", "/news", params, time.RFC3339, dateTimeLayout, dateLayout)
}

func retryAfter(header string) time.Duration {
	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultRetryAfter
}
