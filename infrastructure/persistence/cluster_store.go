package persistence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/meta"
	"github.com/helixml/taxon/internal/database"
	"gorm.io/gorm"
)

// ClusterStore implements cluster.Store using GORM.
type ClusterStore struct {
	db database.Database
}

// NewClusterStore creates a new ClusterStore.
func NewClusterStore(db database.Database) ClusterStore {
	return ClusterStore{db: db}
}

// Replace deletes every cluster and membership and writes clusters. The
// next free cluster ID is advanced past every written ID in the same
// transaction.
func (s ClusterStore) Replace(ctx context.Context, clusters []cluster.Cluster) error {
	now := time.Now().UTC()
	return database.WithTransaction(ctx, s.db, func(tx database.Database) error {
		next, err := nextClusterID(ctx, tx)
		if err != nil {
			return err
		}

		gdb := tx.Session(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := gdb.Delete(&ClusterMemberModel{}).Error; err != nil {
			return fmt.Errorf("delete cluster members: %w", err)
		}
		if err := gdb.Delete(&ClusterModel{}).Error; err != nil {
			return fmt.Errorf("delete clusters: %w", err)
		}

		for _, c := range clusters {
			if c.ID() >= next {
				next = c.ID() + 1
			}
			model := ClusterModel{ID: c.ID(), Centroid: Float64Slice(c.Centroid()), Size: c.Size(), CreatedAt: now}
			if err := tx.Session(ctx).Create(&model).Error; err != nil {
				return fmt.Errorf("create cluster %d: %w", c.ID(), err)
			}
			members := c.Members()
			if len(members) == 0 {
				continue
			}
			rows := make([]ClusterMemberModel, len(members))
			for i, m := range members {
				rows[i] = ClusterMemberModel{DocumentID: m.DocumentID(), ClusterID: c.ID(), Distance: m.Distance()}
			}
			if err := tx.Session(ctx).CreateInBatches(rows, saveAllBatchSize).Error; err != nil {
				return fmt.Errorf("create members of cluster %d: %w", c.ID(), err)
			}
		}
		return NewMetaStore(tx).Set(ctx, meta.KeyNextClusterID, strconv.Itoa(next))
	})
}

// NextID returns the first cluster ID not used by any build so far.
func (s ClusterStore) NextID(ctx context.Context) (int, error) {
	return nextClusterID(ctx, s.db)
}

// nextClusterID reads the recorded counter, falling back to one past the
// highest stored ID for databases written before the counter existed.
func nextClusterID(ctx context.Context, db database.Database) (int, error) {
	value, ok, err := NewMetaStore(db).Get(ctx, meta.KeyNextClusterID)
	if err != nil {
		return 0, err
	}
	if ok {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n, nil
		}
	}

	var highest *int
	if err := db.Session(ctx).Model(&ClusterModel{}).Select("MAX(id)").Scan(&highest).Error; err != nil {
		return 0, fmt.Errorf("find highest cluster id: %w", err)
	}
	if highest == nil {
		return 0, nil
	}
	return *highest + 1, nil
}

// FindAll returns every cluster ordered by ID.
func (s ClusterStore) FindAll(ctx context.Context) ([]cluster.Cluster, error) {
	var models []ClusterModel
	if err := s.db.Session(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("find clusters: %w", err)
	}
	var members []ClusterMemberModel
	if err := s.db.Session(ctx).Order("document_id ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("find cluster members: %w", err)
	}

	byCluster := make(map[int][]cluster.Member, len(models))
	for _, m := range members {
		byCluster[m.ClusterID] = append(byCluster[m.ClusterID], cluster.NewMember(m.DocumentID, m.Distance))
	}

	result := make([]cluster.Cluster, len(models))
	for i, m := range models {
		result[i] = cluster.NewCluster(m.ID, []float64(m.Centroid), byCluster[m.ID])
	}
	return result, nil
}

// Count returns the number of clusters.
func (s ClusterStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.Session(ctx).Model(&ClusterModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count clusters: %w", err)
	}
	return count, nil
}
