package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/MatusBehul/veloryn/internal/interfaces"
	"github.com/MatusBehul/veloryn/internal/models"
)

// RateLimitStorage implements the rate-limit ledger on Badger
type RateLimitStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewRateLimitStorage creates a new RateLimitStorage instance
func NewRateLimitStorage(store *badgerhold.Store, logger arbor.ILogger) interfaces.RateLimitStorage {
	return &RateLimitStorage{
		store:  store,
		logger: logger,
	}
}

func (s *RateLimitStorage) AppendRateLimitEvent(ctx context.Context, event *models.RateLimitEvent) error {
	if event.ID == "" {
		return fmt.Errorf("rate limit event ID is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Insert keeps the ledger append-only: an existing key is an error
	if err := s.store.Insert(event.ID, event); err != nil {
		return fmt.Errorf("failed to append rate limit event: %w", err)
	}
	return nil
}

func (s *RateLimitStorage) ListRateLimitEvents(ctx context.Context, kind string, since time.Time, limit int) ([]*models.RateLimitEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := badgerhold.Where("Kind").Eq(kind).
		And("TimestampNano").Ge(since.UnixNano()).
		SortBy("TimestampNano").
		Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.RateLimitEvent
	if err := s.store.Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to query rate limit events: %w", err)
	}

	result := make([]*models.RateLimitEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

// Close is a no-op, the Manager owns the database
func (s *RateLimitStorage) Close() error {
	return nil
}
