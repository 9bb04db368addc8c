package agent

import (
	"fmt"

	"github.com/MatusBehul/veloryn/internal/models"
)

// TransportError is returned by CreateSession and Call when no usable response
// was obtained.
type TransportError struct {
	Class      models.FailureClass
	StatusCode int // last HTTP status, 0 when none was received
	Attempts   int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s after %d attempt(s) (status %d): %v", e.Class, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Class, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError describes a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent returned status %d from %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// FailureClass implements models.Classified.
func (e *TransportError) FailureClass() models.FailureClass {
	return e.Class
}
