package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helixml/taxon/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetaStore implements meta.Store using GORM.
type MetaStore struct {
	db database.Database
}

// NewMetaStore creates a new MetaStore.
func NewMetaStore(db database.Database) MetaStore {
	return MetaStore{db: db}
}

// Get returns the value for key.
func (s MetaStore) Get(ctx context.Context, key string) (string, bool, error) {
	var model MetaModel
	err := s.db.Session(ctx).Where("key = ?", key).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return model.Value, true, nil
}

// Set writes value for key.
func (s MetaStore) Set(ctx context.Context, key, value string) error {
	model := MetaModel{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}
