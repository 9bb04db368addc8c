package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/models"
)

func newTestDB(t *testing.T) *badgerhold.Store {
	t.Helper()
	store, err := openStore(arbor.NewNoOpLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newEvent(id, kind string, ts time.Time) *models.RateLimitEvent {
	return &models.RateLimitEvent{
		ID:            id,
		Kind:          kind,
		SessionKey:    "AAPL",
		StatusCode:    429,
		Timestamp:     ts,
		TimestampNano: ts.UnixNano(),
	}
}

func TestRateLimitStorage_ListNewestFirst(t *testing.T) {
	storage := NewRateLimitStorage(newTestDB(t), arbor.NewNoOpLogger())
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, storage.AppendRateLimitEvent(ctx, newEvent("e1", models.RateLimitEventKind, base)))
	require.NoError(t, storage.AppendRateLimitEvent(ctx, newEvent("e2", models.RateLimitEventKind, base.Add(2*time.Minute))))
	require.NoError(t, storage.AppendRateLimitEvent(ctx, newEvent("e3", models.RateLimitEventKind, base.Add(4*time.Minute))))
	require.NoError(t, storage.AppendRateLimitEvent(ctx, newEvent("other", "quota", base.Add(5*time.Minute))))

	events, err := storage.ListRateLimitEvents(ctx, models.RateLimitEventKind, base.Add(time.Minute), 10)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "e3", events[0].ID)
	assert.Equal(t, "e2", events[1].ID)
}

func TestRateLimitStorage_Limit(t *testing.T) {
	storage := NewRateLimitStorage(newTestDB(t), arbor.NewNoOpLogger())
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, storage.AppendRateLimitEvent(ctx, newEvent(id, models.RateLimitEventKind, base.Add(time.Duration(i)*time.Second))))
	}

	events, err := storage.ListRateLimitEvents(ctx, models.RateLimitEventKind, base, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "d", events[0].ID)
	assert.Equal(t, "c", events[1].ID)
}

func TestRateLimitStorage_AppendOnly(t *testing.T) {
	storage := NewRateLimitStorage(newTestDB(t), arbor.NewNoOpLogger())
	ctx := context.Background()
	event := newEvent("dup", models.RateLimitEventKind, time.Now())

	require.NoError(t, storage.AppendRateLimitEvent(ctx, event))
	assert.Error(t, storage.AppendRateLimitEvent(ctx, event))
	assert.Error(t, storage.AppendRateLimitEvent(ctx, &models.RateLimitEvent{}))
}

func TestAnalysisStorage_RecordAndData(t *testing.T) {
	storage := NewAnalysisStorage(newTestDB(t), arbor.NewNoOpLogger())
	ctx := context.Background()

	record := &models.AnalysisRecord{
		ID:     "AAPL-2025-03-14",
		Ticker: "AAPL",
		Day:    "2025-03-14",
		Name:   "Apple Inc",
	}
	require.NoError(t, storage.SaveRecord(ctx, record))
	assert.False(t, record.Timestamp.IsZero())

	got, err := storage.GetRecord(ctx, "AAPL-2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", got.Name)

	overview := models.AnalysisOverview{Success: true, Day: "2025-03-14", ValidationAttempts: 2}
	require.NoError(t, storage.SaveData(ctx, record.ID, models.DataAnalysisOverview, overview))
	require.NoError(t, storage.SaveData(ctx, record.ID, models.DataDailyPrices, []models.PricePoint{{Date: "2025-03-14", Close: 212.5}}))
	require.NoError(t, storage.SaveData(ctx, "MSFT-2025-03-14", models.DataDailyPrices, []models.PricePoint{}))

	var decoded models.AnalysisOverview
	require.NoError(t, storage.GetData(ctx, record.ID, models.DataAnalysisOverview, &decoded))
	assert.True(t, decoded.Success)
	assert.Equal(t, 2, decoded.ValidationAttempts)

	docs, err := storage.ListData(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, models.DataAnalysisOverview, docs[0].Name)
	assert.Equal(t, models.DataDailyPrices, docs[1].Name)
}

func TestAnalysisStorage_NotFound(t *testing.T) {
	storage := NewAnalysisStorage(newTestDB(t), arbor.NewNoOpLogger())

	_, err := storage.GetRecord(context.Background(), "missing")
	assert.Error(t, err)

	var dest map[string]interface{}
	assert.Error(t, storage.GetData(context.Background(), "missing", models.DataNews, &dest))
}

func TestManager_ResetOnStartup(t *testing.T) {
	ctx := context.Background()
	config := &common.BadgerConfig{Path: t.TempDir()}

	manager, err := NewManager(arbor.NewNoOpLogger(), config)
	require.NoError(t, err)
	require.NoError(t, manager.AnalysisStorage().SaveRecord(ctx, &models.AnalysisRecord{ID: "r1", Ticker: "AAPL"}))
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	// Reopen keeps data
	manager, err = NewManager(arbor.NewNoOpLogger(), config)
	require.NoError(t, err)
	_, err = manager.AnalysisStorage().GetRecord(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, manager.Close())

	config.ResetOnStartup = true
	manager, err = NewManager(arbor.NewNoOpLogger(), config)
	require.NoError(t, err)
	defer manager.Close()
	_, err = manager.AnalysisStorage().GetRecord(ctx, "r1")
	assert.Error(t, err)
}

func TestManager_PathRequired(t *testing.T) {
	_, err := NewManager(arbor.NewNoOpLogger(), &common.BadgerConfig{})
	assert.Error(t, err)
}
