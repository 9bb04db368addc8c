// Package ledger records provider throttling events and summarises recent ones.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/interfaces"
	"github.com/MatusBehul/veloryn/internal/metrics"
	"github.com/MatusBehul/veloryn/internal/models"
)

const (
	// DefaultQueryLimit caps the events read per RecentStats call.
	DefaultQueryLimit = 10

	maxDetailLength = 500
)

// Stats summarises ledger events inside a window.
type Stats struct {
	Count         int
	MostRecentAge time.Duration   // zero when Count is 0
	Ages          []time.Duration // newest first
}

// CountWithin returns how many events are younger than d.
func (s Stats) CountWithin(d time.Duration) int {
	count := 0
	for _, age := range s.Ages {
		if age <= d {
			count++
		}
	}
	return count
}

// Service appends rate-limit events and reads recency statistics.
// Reads fail open: a storage error yields empty Stats.
type Service struct {
	storage interfaces.RateLimitStorage
	logger  arbor.ILogger
	limit   int
	now     func() time.Time
}

// NewService creates a ledger service over the given storage.
func NewService(storage interfaces.RateLimitStorage, logger arbor.ILogger, limit int) *Service {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return &Service{
		storage: storage,
		logger:  logger,
		limit:   limit,
		now:     time.Now,
	}
}

// WithClock replaces the clock used to stamp and age events.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now returns the ledger clock time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Record appends one rate-limit event stamped with the current time.
// Callers on the request path treat the returned error as informational.
func (s *Service) Record(ctx context.Context, sessionKey string, statusCode int, detail string) error {
	if len(detail) > maxDetailLength {
		detail = detail[:maxDetailLength]
	}

	now := s.now().UTC()
	event := &models.RateLimitEvent{
		ID:            common.NewEventID(),
		Kind:          models.RateLimitEventKind,
		SessionKey:    sessionKey,
		StatusCode:    statusCode,
		Detail:        detail,
		Timestamp:     now,
		TimestampNano: now.UnixNano(),
	}

	if err := s.storage.AppendRateLimitEvent(ctx, event); err != nil {
		metrics.LedgerErrorsTotal.WithLabelValues("record").Inc()
		s.logger.Warn().
			Err(err).
			Str("session_key", sessionKey).
			Msg("Failed to record rate limit event")
		return fmt.Errorf("failed to record rate limit event: %w", err)
	}

	metrics.RateLimitEventsTotal.Inc()
	s.logger.Info().
		Str("session_key", sessionKey).
		Int("status_code", statusCode).
		Msg("Rate limit event recorded")

	return nil
}

// RecentStats scans events newer than now-window, newest first, capped at the
// configured limit.
func (s *Service) RecentStats(ctx context.Context, window time.Duration) Stats {
	now := s.now()
	events, err := s.storage.ListRateLimitEvents(ctx, models.RateLimitEventKind, now.Add(-window), s.limit)
	if err != nil {
		metrics.LedgerErrorsTotal.WithLabelValues("query").Inc()
		s.logger.Warn().
			Err(err).
			Dur("window", window).
			Msg("Rate limit ledger unavailable, assuming no recent events")
		return Stats{}
	}

	stats := Stats{Ages: make([]time.Duration, 0, len(events))}
	for _, event := range events {
		age := now.Sub(event.Timestamp)
		if age < 0 {
			age = 0
		}
		if age > window {
			continue
		}
		stats.Ages = append(stats.Ages, age)
	}

	stats.Count = len(stats.Ages)
	if stats.Count > 0 {
		stats.MostRecentAge = stats.Ages[0]
		for _, age := range stats.Ages[1:] {
			if age < stats.MostRecentAge {
				stats.MostRecentAge = age
			}
		}
	}

	return stats
}
