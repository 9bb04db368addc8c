package common

import (
	"github.com/google/uuid"
)

// NewEventID generates a unique rate-limit event ID
func NewEventID() string {
	return "rl_" + uuid.New().String()
}
