package persistence

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FileRecordModel is a processed-file ledger row.
type FileRecordModel struct {
	Path        string    `gorm:"column:path;primaryKey;size:1024"`
	ContentHash string    `gorm:"column:content_hash;size:64;not null"`
	RevisionID  string    `gorm:"column:revision_id;size:64"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

// TableName returns the table name.
func (FileRecordModel) TableName() string { return "processed_files" }

// MetaModel is a key/value bookkeeping row.
type MetaModel struct {
	Key       string    `gorm:"column:key;primaryKey;size:255"`
	Value     string    `gorm:"column:value;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (MetaModel) TableName() string { return "meta" }

// ClusterModel is one cluster and its centroid.
type ClusterModel struct {
	ID        int          `gorm:"column:id;primaryKey;autoIncrement:false"`
	Centroid  Float64Slice `gorm:"column:centroid;type:json"`
	Size      int          `gorm:"column:size"`
	CreatedAt time.Time    `gorm:"column:created_at"`
}

// TableName returns the table name.
func (ClusterModel) TableName() string { return "clusters" }

// ClusterMemberModel places one document in one cluster.
type ClusterMemberModel struct {
	DocumentID string  `gorm:"column:document_id;primaryKey;size:1024"`
	ClusterID  int     `gorm:"column:cluster_id;index;not null"`
	Distance   float64 `gorm:"column:distance"`
}

// TableName returns the table name.
func (ClusterMemberModel) TableName() string { return "cluster_members" }

// ProposalModel is one cluster's taxonomy proposal.
type ProposalModel struct {
	ClusterID   int               `gorm:"column:cluster_id;primaryKey;autoIncrement:false"`
	Category    string            `gorm:"column:category"`
	Subcategory string            `gorm:"column:subcategory"`
	Tags        ProposedTagColumn `gorm:"column:tags;type:json"`
	CreatedAt   time.Time         `gorm:"column:created_at"`
}

// TableName returns the table name.
func (ProposalModel) TableName() string { return "taxonomy_proposals" }

// CategoryModel is a canonical category.
type CategoryModel struct {
	Name string `gorm:"column:name;primaryKey;size:255"`
}

// TableName returns the table name.
func (CategoryModel) TableName() string { return "taxonomy_categories" }

// SubcategoryModel is a canonical subcategory of a category.
type SubcategoryModel struct {
	Category string `gorm:"column:category;primaryKey;size:255"`
	Name     string `gorm:"column:name;primaryKey;size:255"`
}

// TableName returns the table name.
func (SubcategoryModel) TableName() string { return "taxonomy_subcategories" }

// TagModel is a canonical tag.
type TagModel struct {
	Name        string `gorm:"column:name;primaryKey;size:255"`
	Description string `gorm:"column:description;type:text"`
}

// TableName returns the table name.
func (TagModel) TableName() string { return "taxonomy_tags" }

// ClusterTagModel maps a canonical tag to a cluster.
type ClusterTagModel struct {
	ClusterID int    `gorm:"column:cluster_id;primaryKey;autoIncrement:false"`
	Tag       string `gorm:"column:tag;primaryKey;size:255"`
}

// TableName returns the table name.
func (ClusterTagModel) TableName() string { return "taxonomy_cluster_tags" }

// AssignmentModel is one tag applied to one document.
type AssignmentModel struct {
	DocumentID string    `gorm:"column:document_id;primaryKey;size:1024"`
	Tag        string    `gorm:"column:tag;primaryKey;size:255;index"`
	Confidence float64   `gorm:"column:confidence;not null"`
	Source     string    `gorm:"column:source;size:32"`
	AssignedAt time.Time `gorm:"column:assigned_at"`
}

// TableName returns the table name.
func (AssignmentModel) TableName() string { return "tag_assignments" }

// VectorModel is one record of a vector collection. The table is chosen per
// collection, so the model has no fixed TableName.
type VectorModel struct {
	ID         string         `gorm:"column:id;primaryKey;size:1100"`
	SourceFile string         `gorm:"column:source_file;size:1024"`
	Text       string         `gorm:"column:text;type:text"`
	Vector     Float64Slice   `gorm:"column:vector;type:json"`
	Metadata   MetadataColumn `gorm:"column:metadata;type:json"`
}

// Float64Slice is a []float64 stored as JSON.
type Float64Slice []float64

// Scan implements sql.Scanner.
func (f *Float64Slice) Scan(value any) error {
	return scanJSON(value, f, "Float64Slice")
}

// Value implements driver.Valuer.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return jsonValue(f)
}

// MetadataColumn is flat string metadata stored as JSON.
type MetadataColumn map[string]string

// Scan implements sql.Scanner.
func (m *MetadataColumn) Scan(value any) error {
	return scanJSON(value, m, "MetadataColumn")
}

// Value implements driver.Valuer.
func (m MetadataColumn) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return jsonValue(m)
}

// ProposedTag is the JSON form of a proposed tag.
type ProposedTag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ProposedTagColumn is a list of proposed tags stored as JSON.
type ProposedTagColumn []ProposedTag

// Scan implements sql.Scanner.
func (p *ProposedTagColumn) Scan(value any) error {
	return scanJSON(value, p, "ProposedTagColumn")
}

// Value implements driver.Valuer.
func (p ProposedTagColumn) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return jsonValue(p)
}

func scanJSON(value any, target any, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %s", value, name)
	}
	return json.Unmarshal(data, target)
}

// jsonValue returns a string so both SQLite and PostgreSQL json columns
// accept the value.
func jsonValue(v any) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
