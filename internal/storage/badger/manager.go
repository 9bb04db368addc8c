// Package badger stores analysis documents and the embedded rate-limit
// ledger in a single BadgerDB directory via badgerhold.
package badger

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/interfaces"
)

// Manager owns the database and the storages built on it.
type Manager struct {
	store     *badgerhold.Store
	analysis  interfaces.AnalysisStorage
	rateLimit interfaces.RateLimitStorage
	logger    arbor.ILogger
}

// NewManager opens the database at config.Path, wiping it first when
// reset_on_startup is set.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	store, err := openStore(logger, config)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return &Manager{
		store:     store,
		analysis:  NewAnalysisStorage(store, logger),
		rateLimit: NewRateLimitStorage(store, logger),
		logger:    logger,
	}, nil
}

func openStore(logger arbor.ILogger, config *common.BadgerConfig) (*badgerhold.Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("badger path is required")
	}

	if config.ResetOnStartup {
		logger.Warn().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
		if err := os.RemoveAll(config.Path); err != nil {
			return nil, fmt.Errorf("failed to reset database directory: %w", err)
		}
	}

	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // badger's own logger is noisy; arbor covers open/close

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", config.Path, err)
	}
	return store, nil
}

// AnalysisStorage returns the analysis document storage
func (m *Manager) AnalysisStorage() interfaces.AnalysisStorage {
	return m.analysis
}

// RateLimitStorage returns the embedded rate-limit ledger storage.
// Its Close is a no-op; the manager closes the database.
func (m *Manager) RateLimitStorage() interfaces.RateLimitStorage {
	return m.rateLimit
}

// Close closes the database
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	return err
}
