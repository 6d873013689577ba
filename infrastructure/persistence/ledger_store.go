package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/internal/database"
	"gorm.io/gorm/clause"
)

const saveAllBatchSize = 200

// LedgerStore implements ledger.Store using GORM.
type LedgerStore struct {
	database.Repository[ledger.Record, FileRecordModel]
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(db database.Database) LedgerStore {
	return LedgerStore{
		Repository: database.NewRepository[ledger.Record, FileRecordModel](db, FileRecordMapper{}, "ledger record"),
	}
}

var ledgerUpsert = clause.OnConflict{
	Columns:   []clause.Column{{Name: "path"}},
	DoUpdates: clause.AssignmentColumns([]string{"content_hash", "revision_id", "processed_at"}),
}

// Save creates or overwrites the record for its path.
func (s LedgerStore) Save(ctx context.Context, record ledger.Record) error {
	model := s.Mapper().ToModel(record)
	if err := s.DB(ctx).Clauses(ledgerUpsert).Create(&model).Error; err != nil {
		return fmt.Errorf("save ledger record: %w", err)
	}
	return nil
}

// SaveAll creates or overwrites many records.
func (s LedgerStore) SaveAll(ctx context.Context, records []ledger.Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]FileRecordModel, len(records))
	for i, r := range records {
		models[i] = s.Mapper().ToModel(r)
	}
	if err := s.DB(ctx).Clauses(ledgerUpsert).CreateInBatches(models, saveAllBatchSize).Error; err != nil {
		return fmt.Errorf("save ledger records: %w", err)
	}
	return nil
}
