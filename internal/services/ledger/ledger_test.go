package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/models"
)

type memoryStorage struct {
	mu        sync.Mutex
	events    []*models.RateLimitEvent
	appendErr error
	listErr   error
}

func (m *memoryStorage) AppendRateLimitEvent(ctx context.Context, event *models.RateLimitEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryStorage) ListRateLimitEvents(ctx context.Context, kind string, since time.Time, limit int) ([]*models.RateLimitEvent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*models.RateLimitEvent
	for _, e := range m.events {
		if e.Kind == kind && !e.Timestamp.Before(since) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TimestampNano > result[j].TimestampNano })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *memoryStorage) Close() error { return nil }

func TestRecord_StampsEvent(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	storage := &memoryStorage{}
	svc := NewService(storage, arbor.NewNoOpLogger(), 10).WithClock(func() time.Time { return now })

	require.NoError(t, svc.Record(context.Background(), "AAPL", 429, "quota exceeded"))

	require.Len(t, storage.events, 1)
	event := storage.events[0]
	assert.Equal(t, models.RateLimitEventKind, event.Kind)
	assert.Equal(t, "AAPL", event.SessionKey)
	assert.Equal(t, 429, event.StatusCode)
	assert.Equal(t, now, event.Timestamp)
	assert.Equal(t, now.UnixNano(), event.TimestampNano)
	assert.NotEmpty(t, event.ID)
}

func TestRecord_ReturnsStorageError(t *testing.T) {
	storage := &memoryStorage{appendErr: errors.New("disk full")}
	svc := NewService(storage, arbor.NewNoOpLogger(), 10)

	err := svc.Record(context.Background(), "AAPL", 429, "")
	assert.Error(t, err)
}

func TestRecentStats_WindowAndOrder(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := base
	storage := &memoryStorage{}
	svc := NewService(storage, arbor.NewNoOpLogger(), 10).WithClock(func() time.Time { return clock })

	for _, offset := range []time.Duration{0, 5 * time.Minute, 8 * time.Minute, 9 * time.Minute} {
		clock = base.Add(offset)
		require.NoError(t, svc.Record(context.Background(), "AAPL", 429, ""))
	}

	clock = base.Add(10 * time.Minute)
	stats := svc.RecentStats(context.Background(), 6*time.Minute)

	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, time.Minute, stats.MostRecentAge)
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Minute, 5 * time.Minute}, stats.Ages)
	assert.Equal(t, 2, stats.CountWithin(2*time.Minute))
}

func TestRecentStats_CappedAtLimit(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	storage := &memoryStorage{}
	svc := NewService(storage, arbor.NewNoOpLogger(), 3).WithClock(func() time.Time { return now })

	for i := 0; i < 6; i++ {
		require.NoError(t, svc.Record(context.Background(), "AAPL", 429, ""))
	}

	assert.Equal(t, 3, svc.RecentStats(context.Background(), time.Hour).Count)
}

func TestRecentStats_FailsOpen(t *testing.T) {
	storage := &memoryStorage{listErr: errors.New("connection refused")}
	svc := NewService(storage, arbor.NewNoOpLogger(), 10)

	stats := svc.RecentStats(context.Background(), 30*time.Minute)

	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, time.Duration(0), stats.MostRecentAge)
}

func TestRecord_TruncatesDetail(t *testing.T) {
	storage := &memoryStorage{}
	svc := NewService(storage, arbor.NewNoOpLogger(), 10)

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, svc.Record(context.Background(), "AAPL", 429, string(long)))
	assert.Len(t, storage.events[0].Detail, maxDetailLength)
}
