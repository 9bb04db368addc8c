package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
)

func newTestConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Agent.BaseURL = "http://127.0.0.1:1"
	cfg.Agent.DisableAuth = true
	cfg.EODHD.APIKey = "test-key"
	return cfg
}

func TestNew_WiresPipeline(t *testing.T) {
	cfg := newTestConfig(t)

	a, err := New(context.Background(), cfg, arbor.NewNoOpLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Ledger)
	assert.NotNil(t, a.Breaker)
	assert.NotNil(t, a.Agent)
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.AnalysisService)
	assert.NotNil(t, a.AnalysisHandler)
	assert.NotNil(t, a.BreakerHandler)
	assert.Nil(t, a.Publisher)
	assert.Nil(t, a.Scheduler)
	assert.Nil(t, a.SchedulerHandler)

	state := a.Breaker.CheckOpen(context.Background())
	assert.False(t, state.Open)
}

func TestNew_WithScheduler(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Tickers = []string{"AAPL", "US:MSFT"}

	a, err := New(context.Background(), cfg, arbor.NewNoOpLogger())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Scheduler)
	assert.NotNil(t, a.SchedulerHandler)
	assert.Len(t, a.Scheduler.Statuses(), 2)
}

func TestNew_EmptyTemplatesDirUsesEmbeddedPrompt(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Agent.TemplatesDir = t.TempDir()

	a, err := New(context.Background(), cfg, arbor.NewNoOpLogger())
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestNew_UnsupportedLedgerBackend(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Ledger.Backend = "etcd"

	_, err := New(context.Background(), cfg, arbor.NewNoOpLogger())
	assert.Error(t, err)
}
