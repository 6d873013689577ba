package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/domain/search"
	"github.com/helixml/taxon/internal/database"
	"gorm.io/gorm/clause"
)

// ErrInvalidCollection indicates a collection name that cannot be used as
// part of a table name.
var ErrInvalidCollection = errors.New("invalid collection name")

var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,47}$`)

const upsertBatchSize = 100

// VectorStore implements search.VectorStore and search.Replacer on a
// per-collection table. Similarity is computed in process over the rows
// that pass the metadata filter.
type VectorStore struct {
	repo       database.Repository[search.Record, VectorModel]
	db         database.Database
	collection string
	logger     *slog.Logger
}

// NewVectorStore creates the collection table if needed and returns a store
// bound to it.
func NewVectorStore(ctx context.Context, db database.Database, collection string, logger *slog.Logger) (*VectorStore, error) {
	if !collectionPattern.MatchString(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	if logger == nil {
		logger = slog.Default()
	}

	table := fmt.Sprintf("taxon_%s_vectors", collection)
	if err := createVectorTable(ctx, db, table); err != nil {
		return nil, err
	}

	return &VectorStore{
		repo:       database.NewRepositoryForTable[search.Record, VectorModel](db, VectorMapper{}, collection+" vector", table),
		db:         db,
		collection: collection,
		logger:     logger.With("collection", collection),
	}, nil
}

func createVectorTable(ctx context.Context, db database.Database, table string) error {
	jsonType := "TEXT"
	if db.IsPostgres() {
		jsonType = "JSONB"
	}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(1100) PRIMARY KEY,
			source_file VARCHAR(1024) NOT NULL DEFAULT '',
			text TEXT,
			vector %s,
			metadata %s NOT NULL
		)`, table, jsonType, jsonType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_source_file ON %s (source_file)`, table, table),
	}
	for _, stmt := range statements {
		if err := db.Session(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("create vector table %s: %w", table, err)
		}
	}
	return nil
}

// Collection returns the collection name.
func (s *VectorStore) Collection() string { return s.collection }

// Upsert inserts records or overwrites them by ID.
func (s *VectorStore) Upsert(ctx context.Context, records []search.Record) error {
	return upsertVectors(ctx, s.repo, records)
}

func upsertVectors(ctx context.Context, repo database.Repository[search.Record, VectorModel], records []search.Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]VectorModel, len(records))
	for i, r := range records {
		models[i] = repo.Mapper().ToModel(r)
	}
	err := repo.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source_file", "text", "vector", "metadata"}),
	}).CreateInBatches(models, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("upsert %s: %w", repo.Label(), err)
	}
	return nil
}

// Query returns up to k records matching filter ranked by cosine similarity.
func (s *VectorStore) Query(ctx context.Context, vector []float64, k int, filter search.Filter) ([]search.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	records, err := s.repo.Find(ctx, s.filterOptions(filter)...)
	if err != nil {
		return nil, err
	}
	return search.TopK(vector, records, k), nil
}

// Delete removes every record matching filter.
func (s *VectorStore) Delete(ctx context.Context, filter search.Filter) error {
	return s.repo.DeleteBy(ctx, s.filterOptions(filter)...)
}

// Count returns the number of records matching filter.
func (s *VectorStore) Count(ctx context.Context, filter search.Filter) (int, error) {
	n, err := s.repo.Count(ctx, s.filterOptions(filter)...)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Get returns every record matching filter ordered by ID.
func (s *VectorStore) Get(ctx context.Context, filter search.Filter) ([]search.Record, error) {
	options := append(s.filterOptions(filter), query.WithOrderAsc("id"))
	return s.repo.Find(ctx, options...)
}

// Replace deletes the records matching filter and writes records in one
// transaction.
func (s *VectorStore) Replace(ctx context.Context, filter search.Filter, records []search.Record) error {
	return database.WithTransaction(ctx, s.db, func(tx database.Database) error {
		repo := s.repo.WithDatabase(tx)
		if err := repo.DeleteBy(ctx, s.filterOptions(filter)...); err != nil {
			return err
		}
		return upsertVectors(ctx, repo, records)
	})
}

// Drop removes the collection table.
func (s *VectorStore) Drop(ctx context.Context) error {
	if err := s.db.Session(ctx).Migrator().DropTable(s.repo.Table()); err != nil {
		return fmt.Errorf("drop %s: %w", s.repo.Table(), err)
	}
	return nil
}

// filterOptions translates a metadata filter into WHERE clauses. The source
// file has its own column; other keys are read from the JSON metadata.
// Missing keys compare as the empty string.
func (s *VectorStore) filterOptions(filter search.Filter) []query.Option {
	var options []query.Option
	for _, cond := range filter.Conditions() {
		op := "="
		if cond.Negate() {
			op = "<>"
		}
		if cond.Key() == search.MetaSourceFile {
			options = append(options, query.WithWhere("source_file "+op+" ?", cond.Value()))
			continue
		}
		if s.db.IsPostgres() {
			options = append(options, query.WithWhere(
				"COALESCE(metadata->>?, '') "+op+" ?", cond.Key(), cond.Value()))
			continue
		}
		options = append(options, query.WithWhere(
			"COALESCE(json_extract(metadata, ?), '') "+op+" ?", fmt.Sprintf(`$."%s"`, cond.Key()), cond.Value()))
	}
	return options
}

var (
	_ search.VectorStore = (*VectorStore)(nil)
	_ search.Replacer    = (*VectorStore)(nil)
)
