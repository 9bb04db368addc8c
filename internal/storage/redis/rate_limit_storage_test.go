package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/models"
)

func setupStorage(t *testing.T) (*RateLimitStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	storage := NewRateLimitStorageWithClient(client, "test:ledger", arbor.NewNoOpLogger())
	t.Cleanup(func() { storage.Close() })
	return storage, mr
}

func event(id string, ts time.Time) *models.RateLimitEvent {
	return &models.RateLimitEvent{
		ID:            id,
		Kind:          models.RateLimitEventKind,
		SessionKey:    "AAPL",
		StatusCode:    429,
		Detail:        "quota exceeded",
		Timestamp:     ts,
		TimestampNano: ts.UnixNano(),
	}
}

func TestRedisLedger_ListNewestFirst(t *testing.T) {
	storage, _ := setupStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, storage.AppendRateLimitEvent(ctx, event("a", base)))
	require.NoError(t, storage.AppendRateLimitEvent(ctx, event("b", base.Add(time.Minute))))
	require.NoError(t, storage.AppendRateLimitEvent(ctx, event("c", base.Add(2*time.Minute))))

	events, err := storage.ListRateLimitEvents(ctx, models.RateLimitEventKind, base.Add(30*time.Second), 10)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
	assert.Equal(t, "quota exceeded", events[0].Detail)
	assert.True(t, events[0].Timestamp.Equal(base.Add(2*time.Minute)))
}

func TestRedisLedger_Limit(t *testing.T) {
	storage, _ := setupStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, storage.AppendRateLimitEvent(ctx, event(id, base.Add(time.Duration(i)*time.Second))))
	}

	events, err := storage.ListRateLimitEvents(ctx, models.RateLimitEventKind, base, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e", events[0].ID)
}

func TestRedisLedger_KindScoped(t *testing.T) {
	storage, mr := setupStorage(t)
	ctx := context.Background()
	now := time.Now()

	other := event("x", now)
	other.Kind = "quota"
	require.NoError(t, storage.AppendRateLimitEvent(ctx, other))

	events, err := storage.ListRateLimitEvents(ctx, models.RateLimitEventKind, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.True(t, mr.Exists("test:ledger:quota"))
}

func TestRedisLedger_Unavailable(t *testing.T) {
	storage, mr := setupStorage(t)
	mr.Close()

	_, err := storage.ListRateLimitEvents(context.Background(), models.RateLimitEventKind, time.Now(), 10)
	assert.Error(t, err)
}

func TestNewRateLimitStorage_PingFails(t *testing.T) {
	_, err := NewRateLimitStorage(context.Background(), common.LedgerConfig{RedisAddr: "127.0.0.1:1"}, arbor.NewNoOpLogger())
	assert.Error(t, err)
}
