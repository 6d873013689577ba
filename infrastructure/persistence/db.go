// Package persistence provides the gorm-backed stores.
package persistence

import (
	"fmt"
	"strconv"

	"github.com/helixml/taxon/domain/meta"
	"github.com/helixml/taxon/internal/database"
	"gorm.io/gorm"
)

// SchemaVersion is recorded in the meta table after migration.
const SchemaVersion = 1

// AutoMigrate creates or updates every fixed table and records the schema
// version. Vector collection tables are created by NewVectorStore.
func AutoMigrate(db database.Database) error {
	if err := db.GORM().AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	err := db.GORM().Save(&MetaModel{Key: meta.KeySchemaVersion, Value: strconv.Itoa(SchemaVersion)}).Error
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// allModels returns every GORM model that AutoMigrate manages.
func allModels() []any {
	return []any{
		&FileRecordModel{},
		&MetaModel{},
		&ClusterModel{},
		&ClusterMemberModel{},
		&ProposalModel{},
		&CategoryModel{},
		&SubcategoryModel{},
		&TagModel{},
		&ClusterTagModel{},
		&AssignmentModel{},
	}
}

// ValidateSchema verifies every GORM model field has a corresponding column
// in the database.
func ValidateSchema(db database.Database) error {
	gdb := db.GORM()
	migrator := gdb.Migrator()

	var missing []string
	for _, model := range allModels() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model schema: %w", err)
		}

		columnTypes, err := migrator.ColumnTypes(model)
		if err != nil {
			return fmt.Errorf("get column types for %s: %w", stmt.Table, err)
		}

		actual := make(map[string]bool, len(columnTypes))
		for _, ct := range columnTypes {
			actual[ct.Name()] = true
		}

		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" || field.DBName == "-" {
				continue
			}
			if !actual[field.DBName] {
				missing = append(missing, stmt.Table+"."+field.DBName)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema missing columns: %v", missing)
	}
	return nil
}
