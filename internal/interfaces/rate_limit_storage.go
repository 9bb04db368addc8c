package interfaces

import (
	"context"
	"time"

	"github.com/MatusBehul/veloryn/internal/models"
)

// RateLimitStorage persists rate-limit ledger events.
// Implementations never update or delete events.
type RateLimitStorage interface {
	AppendRateLimitEvent(ctx context.Context, event *models.RateLimitEvent) error
	// ListRateLimitEvents returns events of the given kind with timestamp >= since,
	// newest first, at most limit entries.
	ListRateLimitEvents(ctx context.Context, kind string, since time.Time, limit int) ([]*models.RateLimitEvent, error)
	Close() error
}
