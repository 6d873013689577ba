// Package task names the pipeline operations and tracks their progress.
package task

import "strings"

// Operation identifies one pipeline phase or composite run.
type Operation string

// Operation values.
const (
	OperationReprocess         Operation = "taxon.index.reprocess"
	OperationRebuildIndex      Operation = "taxon.index.rebuild"
	OperationBuildClusters     Operation = "taxon.taxonomy.build_clusters"
	OperationProposeTaxonomy   Operation = "taxon.taxonomy.propose"
	OperationNormalizeTaxonomy Operation = "taxon.taxonomy.normalize"
	OperationEmbedTags         Operation = "taxon.taxonomy.embed_tags"
	OperationAssignTags        Operation = "taxon.taxonomy.assign_tags"
	OperationRebuildTaxonomy   Operation = "taxon.taxonomy.rebuild"
	OperationTagDocument       Operation = "taxon.tag.document"
	OperationMigrateLedger     Operation = "taxon.migrate.legacy_ledger"
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return string(o)
}

// IsIndexOperation returns true for operations that write the ledger or chunks.
func (o Operation) IsIndexOperation() bool {
	return strings.HasPrefix(string(o), "taxon.index.")
}

// IsTaxonomyOperation returns true for the taxonomy rebuild phases.
func (o Operation) IsTaxonomyOperation() bool {
	return strings.HasPrefix(string(o), "taxon.taxonomy.")
}

// Short returns the final segment of the operation name, e.g. "propose".
func (o Operation) Short() string {
	s := string(o)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// TaxonomyPhases returns the rebuild phases in the order they must run.
func TaxonomyPhases() []Operation {
	return []Operation{
		OperationBuildClusters,
		OperationProposeTaxonomy,
		OperationNormalizeTaxonomy,
		OperationEmbedTags,
		OperationAssignTags,
	}
}
