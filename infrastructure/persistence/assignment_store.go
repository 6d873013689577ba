package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/internal/database"
)

// AssignmentStore implements assignment.Store using GORM.
type AssignmentStore struct {
	database.Repository[assignment.Assignment, AssignmentModel]
	db database.Database
}

// NewAssignmentStore creates a new AssignmentStore.
func NewAssignmentStore(db database.Database) AssignmentStore {
	return AssignmentStore{
		Repository: database.NewRepository[assignment.Assignment, AssignmentModel](db, AssignmentMapper{}, "assignment"),
		db:         db,
	}
}

// ReplaceForDocument deletes the document's assignments and writes the new set.
func (s AssignmentStore) ReplaceForDocument(ctx context.Context, documentID string, assignments []assignment.Assignment) error {
	now := time.Now().UTC()
	return database.WithTransaction(ctx, s.db, func(tx database.Database) error {
		repo := s.Repository.WithDatabase(tx)
		if err := repo.DeleteBy(ctx, assignment.WithDocument(documentID)); err != nil {
			return err
		}
		if len(assignments) == 0 {
			return nil
		}
		models := make([]AssignmentModel, 0, len(assignments))
		for _, a := range assignments {
			if a.DocumentID() != documentID {
				return fmt.Errorf("assignment for %s in replacement of %s", a.DocumentID(), documentID)
			}
			model := repo.Mapper().ToModel(a)
			model.AssignedAt = now
			models = append(models, model)
		}
		if err := repo.DB(ctx).CreateInBatches(models, saveAllBatchSize).Error; err != nil {
			return fmt.Errorf("create assignments for %s: %w", documentID, err)
		}
		return nil
	})
}

// DeleteUnindexed removes assignments whose document has no ledger row.
func (s AssignmentStore) DeleteUnindexed(ctx context.Context) error {
	indexed := s.db.Session(ctx).Model(&FileRecordModel{}).Select("path")
	err := s.db.Session(ctx).Where("document_id NOT IN (?)", indexed).Delete(&AssignmentModel{}).Error
	if err != nil {
		return fmt.Errorf("delete unindexed assignments: %w", err)
	}
	return nil
}

// Find returns assignments ordered by document ID then confidence, highest first.
func (s AssignmentStore) Find(ctx context.Context, options ...query.Option) ([]assignment.Assignment, error) {
	q := query.Build(options...)
	if len(q.Orders()) == 0 {
		options = append(options,
			query.WithOrderAsc("document_id"),
			query.WithOrderDesc("confidence"),
			query.WithOrderAsc("tag"),
		)
	}
	return s.Repository.Find(ctx, options...)
}
