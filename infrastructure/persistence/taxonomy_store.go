package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/helixml/taxon/domain/taxonomy"
	"github.com/helixml/taxon/internal/database"
	"gorm.io/gorm"
)

// ProposalStore implements taxonomy.ProposalStore using GORM.
type ProposalStore struct {
	database.Repository[taxonomy.Proposal, ProposalModel]
	db database.Database
}

// NewProposalStore creates a new ProposalStore.
func NewProposalStore(db database.Database) ProposalStore {
	return ProposalStore{
		Repository: database.NewRepository[taxonomy.Proposal, ProposalModel](db, ProposalMapper{}, "proposal"),
		db:         db,
	}
}

// ReplaceProposals swaps every stored proposal for proposals.
func (s ProposalStore) ReplaceProposals(ctx context.Context, proposals []taxonomy.Proposal) error {
	now := time.Now().UTC()
	return database.WithTransaction(ctx, s.db, func(tx database.Database) error {
		repo := s.Repository.WithDatabase(tx)
		if err := repo.DeleteBy(ctx); err != nil {
			return err
		}
		for _, p := range proposals {
			model := repo.Mapper().ToModel(p)
			model.CreatedAt = now
			if err := repo.DB(ctx).Create(&model).Error; err != nil {
				return fmt.Errorf("create proposal for cluster %d: %w", p.ClusterID(), err)
			}
		}
		return nil
	})
}

// FindProposals returns every proposal ordered by cluster ID.
func (s ProposalStore) FindProposals(ctx context.Context) ([]taxonomy.Proposal, error) {
	var models []ProposalModel
	if err := s.DB(ctx).Order("cluster_id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("find proposals: %w", err)
	}
	result := make([]taxonomy.Proposal, len(models))
	for i, m := range models {
		result[i] = s.Mapper().ToDomain(m)
	}
	return result, nil
}

// TaxonomyStore implements taxonomy.Store using GORM.
type TaxonomyStore struct {
	db database.Database
}

// NewTaxonomyStore creates a new TaxonomyStore.
func NewTaxonomyStore(db database.Database) TaxonomyStore {
	return TaxonomyStore{db: db}
}

// Replace deletes the stored taxonomy and writes t.
func (s TaxonomyStore) Replace(ctx context.Context, t taxonomy.Taxonomy) error {
	return database.WithTransaction(ctx, s.db, func(tx database.Database) error {
		gdb := tx.Session(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, model := range []any{&ClusterTagModel{}, &TagModel{}, &SubcategoryModel{}, &CategoryModel{}} {
			if err := gdb.Delete(model).Error; err != nil {
				return fmt.Errorf("clear taxonomy: %w", err)
			}
		}

		var categories []CategoryModel
		var subcategories []SubcategoryModel
		for _, c := range t.Categories() {
			categories = append(categories, CategoryModel{Name: c.Name()})
			for _, sub := range c.Subcategories() {
				subcategories = append(subcategories, SubcategoryModel{Category: c.Name(), Name: sub})
			}
		}
		var tags []TagModel
		for _, tag := range t.Tags() {
			tags = append(tags, TagModel{Name: tag.Name(), Description: tag.Description()})
		}
		var clusterTags []ClusterTagModel
		for _, id := range t.ClusterIDs() {
			for _, name := range t.ClusterTags(id) {
				clusterTags = append(clusterTags, ClusterTagModel{ClusterID: id, Tag: name})
			}
		}

		db := tx.Session(ctx)
		if len(categories) > 0 {
			if err := db.CreateInBatches(categories, saveAllBatchSize).Error; err != nil {
				return fmt.Errorf("create categories: %w", err)
			}
		}
		if len(subcategories) > 0 {
			if err := db.CreateInBatches(subcategories, saveAllBatchSize).Error; err != nil {
				return fmt.Errorf("create subcategories: %w", err)
			}
		}
		if len(tags) > 0 {
			if err := db.CreateInBatches(tags, saveAllBatchSize).Error; err != nil {
				return fmt.Errorf("create tags: %w", err)
			}
		}
		if len(clusterTags) > 0 {
			if err := db.CreateInBatches(clusterTags, saveAllBatchSize).Error; err != nil {
				return fmt.Errorf("create cluster tags: %w", err)
			}
		}
		return nil
	})
}

// Load returns the stored taxonomy.
func (s TaxonomyStore) Load(ctx context.Context) (taxonomy.Taxonomy, error) {
	db := s.db.Session(ctx)

	var categories []CategoryModel
	if err := db.Order("name ASC").Find(&categories).Error; err != nil {
		return taxonomy.Taxonomy{}, fmt.Errorf("find categories: %w", err)
	}
	var subcategories []SubcategoryModel
	if err := db.Order("category ASC, name ASC").Find(&subcategories).Error; err != nil {
		return taxonomy.Taxonomy{}, fmt.Errorf("find subcategories: %w", err)
	}
	var tags []TagModel
	if err := db.Order("name ASC").Find(&tags).Error; err != nil {
		return taxonomy.Taxonomy{}, fmt.Errorf("find tags: %w", err)
	}
	var clusterTags []ClusterTagModel
	if err := db.Order("cluster_id ASC, tag ASC").Find(&clusterTags).Error; err != nil {
		return taxonomy.Taxonomy{}, fmt.Errorf("find cluster tags: %w", err)
	}

	subs := map[string][]string{}
	for _, s := range subcategories {
		subs[s.Category] = append(subs[s.Category], s.Name)
	}
	resultCategories := make([]taxonomy.Category, len(categories))
	for i, c := range categories {
		resultCategories[i] = taxonomy.NewCategory(c.Name, subs[c.Name])
	}
	resultTags := make([]taxonomy.Tag, len(tags))
	for i, t := range tags {
		resultTags[i] = taxonomy.NewTag(t.Name, t.Description)
	}
	byCluster := map[int][]string{}
	for _, ct := range clusterTags {
		byCluster[ct.ClusterID] = append(byCluster[ct.ClusterID], ct.Tag)
	}
	return taxonomy.NewTaxonomy(resultCategories, resultTags, byCluster), nil
}
