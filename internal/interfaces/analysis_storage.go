package interfaces

import (
	"context"

	"github.com/MatusBehul/veloryn/internal/models"
)

// AnalysisStorage persists analysis header documents and their data sub-collection.
type AnalysisStorage interface {
	SaveRecord(ctx context.Context, record *models.AnalysisRecord) error
	GetRecord(ctx context.Context, id string) (*models.AnalysisRecord, error)
	SaveData(ctx context.Context, recordID, name string, payload interface{}) error
	// GetData decodes the named data document into dest.
	GetData(ctx context.Context, recordID, name string, dest interface{}) error
	ListData(ctx context.Context, recordID string) ([]*models.AnalysisDataDocument, error)
}

// StorageManager owns the embedded database and the storages built on it.
type StorageManager interface {
	AnalysisStorage() AnalysisStorage
	RateLimitStorage() RateLimitStorage
	Close() error
}
