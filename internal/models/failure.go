package models

import (
	"context"
	"errors"
)

// FailureClass classifies why an attempt or run did not succeed.
type FailureClass string

const (
	FailureNone               FailureClass = ""
	FailureAuth               FailureClass = "auth_failure"
	FailureSession            FailureClass = "session_failure"
	FailureTransportTransient FailureClass = "transport_transient"
	FailureRateLimited        FailureClass = "rate_limited"
	FailureTransportFatal     FailureClass = "transport_fatal"
	FailureExtraction         FailureClass = "extraction_failure"
	FailureValidation         FailureClass = "validation_failure"
	FailureCircuitOpen        FailureClass = "circuit_open"
	FailureStorage            FailureClass = "storage_failure"
	FailureMarketData         FailureClass = "market_data_failure"
	FailurePublish            FailureClass = "publish_failure"
)

// Retryable reports whether the transport layer may retry after this class.
func (c FailureClass) Retryable() bool {
	return c == FailureTransportTransient || c == FailureRateLimited
}

// Classified is implemented by errors that know their failure class.
type Classified interface {
	FailureClass() FailureClass
}

// ClassError attaches a failure class to an error.
type ClassError struct {
	Class FailureClass
	Err   error
}

// NewClassError wraps err with class.
func NewClassError(class FailureClass, err error) *ClassError {
	return &ClassError{Class: class, Err: err}
}

func (e *ClassError) Error() string {
	return string(e.Class) + ": " + e.Err.Error()
}

func (e *ClassError) Unwrap() error              { return e.Err }
func (e *ClassError) FailureClass() FailureClass { return e.Class }

// ClassOf maps any error to its failure class. Unclassified errors are
// transient when caused by a context deadline and fatal otherwise.
func ClassOf(err error) FailureClass {
	if err == nil {
		return FailureNone
	}
	var classified Classified
	if errors.As(err, &classified) {
		return classified.FailureClass()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransportTransient
	}
	return FailureTransportFatal
}

// AttemptRecord is per-attempt bookkeeping kept for diagnostics.
type AttemptRecord struct {
	Attempt    int          `json:"attempt"`
	Class      FailureClass `json:"class,omitempty"`
	StatusCode int          `json:"status_code,omitempty"`
	DelayMs    int64        `json:"delay_ms,omitempty"` // Delay applied before the next attempt
	Error      string       `json:"error,omitempty"`
}
