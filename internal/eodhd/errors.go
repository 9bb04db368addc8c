package eodhd

import (
	"errors"
	"fmt"
	"time"
)

// APIError is a non-200 response other than 429.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eodhd %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// RateLimitError is a 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("eodhd rate limit exceeded, retry after %v", e.RetryAfter)
}

// resultLabel maps a request error to the metrics result label.
func resultLabel(err error) string {
	var apiErr *APIError
	var rateErr *RateLimitError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	default:
		return "error"
	}
}
