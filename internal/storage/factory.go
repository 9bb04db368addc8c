package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/interfaces"
	"github.com/MatusBehul/veloryn/internal/storage/badger"
	"github.com/MatusBehul/veloryn/internal/storage/redis"
)

// NewStorageManager creates the embedded Badger storage manager.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	return badger.NewManager(logger, &config.Storage.Badger)
}

// NewLedgerStorage returns the rate-limit ledger backend selected by
// [ledger] backend: the manager's embedded store or a shared Redis.
func NewLedgerStorage(ctx context.Context, logger arbor.ILogger, config *common.Config, manager interfaces.StorageManager) (interfaces.RateLimitStorage, error) {
	switch config.Ledger.Backend {
	case "", "badger":
		return manager.RateLimitStorage(), nil
	case "redis":
		storage, err := redis.NewRateLimitStorage(ctx, config.Ledger, logger)
		if err != nil {
			return nil, err
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s (expected badger or redis)", config.Ledger.Backend)
	}
}
