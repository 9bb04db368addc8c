package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/MatusBehul/veloryn/internal/interfaces"
	"github.com/MatusBehul/veloryn/internal/models"
)

// AnalysisStorage implements the AnalysisStorage interface for Badger
type AnalysisStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewAnalysisStorage creates a new AnalysisStorage instance
func NewAnalysisStorage(store *badgerhold.Store, logger arbor.ILogger) interfaces.AnalysisStorage {
	return &AnalysisStorage{
		store:  store,
		logger: logger,
	}
}

// dataDocumentID returns the key of a sub-collection document
func dataDocumentID(recordID, name string) string {
	return recordID + "/" + name
}

func (s *AnalysisStorage) SaveRecord(ctx context.Context, record *models.AnalysisRecord) error {
	if record.ID == "" {
		return fmt.Errorf("analysis record ID is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	if err := s.store.Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save analysis record: %w", err)
	}
	return nil
}

func (s *AnalysisStorage) GetRecord(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	var record models.AnalysisRecord
	if err := s.store.Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("analysis record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get analysis record: %w", err)
	}
	return &record, nil
}

func (s *AnalysisStorage) SaveData(ctx context.Context, recordID, name string, payload interface{}) error {
	if recordID == "" || name == "" {
		return fmt.Errorf("record ID and document name are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	doc := &models.AnalysisDataDocument{
		ID:        dataDocumentID(recordID, name),
		RecordID:  recordID,
		Name:      name,
		Payload:   data,
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.store.Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}

	s.logger.Debug().
		Str("record_id", recordID).
		Str("name", name).
		Int("bytes", len(data)).
		Msg("Saved analysis data document")

	return nil
}

func (s *AnalysisStorage) GetData(ctx context.Context, recordID, name string, dest interface{}) error {
	var doc models.AnalysisDataDocument
	if err := s.store.Get(dataDocumentID(recordID, name), &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("analysis data not found: %s/%s", recordID, name)
		}
		return fmt.Errorf("failed to get analysis data: %w", err)
	}

	if err := json.Unmarshal(doc.Payload, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func (s *AnalysisStorage) ListData(ctx context.Context, recordID string) ([]*models.AnalysisDataDocument, error) {
	var docs []models.AnalysisDataDocument
	if err := s.store.Find(&docs, badgerhold.Where("RecordID").Eq(recordID).SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list analysis data: %w", err)
	}

	result := make([]*models.AnalysisDataDocument, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}
