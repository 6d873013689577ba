package persistence

import (
	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/ledger"
	"github.com/helixml/taxon/domain/search"
	"github.com/helixml/taxon/domain/taxonomy"
)

// FileRecordMapper maps between ledger.Record and FileRecordModel.
type FileRecordMapper struct{}

// ToDomain converts a FileRecordModel to a ledger.Record.
func (FileRecordMapper) ToDomain(e FileRecordModel) ledger.Record {
	return ledger.NewRecord(e.Path, e.ContentHash, e.RevisionID, e.ProcessedAt)
}

// ToModel converts a ledger.Record to a FileRecordModel.
func (FileRecordMapper) ToModel(d ledger.Record) FileRecordModel {
	return FileRecordModel{
		Path:        d.Path(),
		ContentHash: d.ContentHash(),
		RevisionID:  d.RevisionID(),
		ProcessedAt: d.ProcessedAt(),
	}
}

// AssignmentMapper maps between assignment.Assignment and AssignmentModel.
type AssignmentMapper struct{}

// ToDomain converts an AssignmentModel to an assignment.Assignment.
func (AssignmentMapper) ToDomain(e AssignmentModel) assignment.Assignment {
	return assignment.NewAssignment(e.DocumentID, e.Tag, e.Confidence, assignment.Source(e.Source))
}

// ToModel converts an assignment.Assignment to an AssignmentModel.
func (AssignmentMapper) ToModel(d assignment.Assignment) AssignmentModel {
	return AssignmentModel{
		DocumentID: d.DocumentID(),
		Tag:        d.Tag(),
		Confidence: d.Confidence(),
		Source:     string(d.Source()),
	}
}

// ProposalMapper maps between taxonomy.Proposal and ProposalModel.
type ProposalMapper struct{}

// ToDomain converts a ProposalModel to a taxonomy.Proposal.
func (ProposalMapper) ToDomain(e ProposalModel) taxonomy.Proposal {
	tags := make([]taxonomy.TagProposal, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = taxonomy.NewTagProposal(t.Name, t.Description)
	}
	return taxonomy.NewProposal(e.ClusterID, e.Category, e.Subcategory, tags)
}

// ToModel converts a taxonomy.Proposal to a ProposalModel.
func (ProposalMapper) ToModel(d taxonomy.Proposal) ProposalModel {
	tags := make(ProposedTagColumn, 0, len(d.Tags()))
	for _, t := range d.Tags() {
		tags = append(tags, ProposedTag{Name: t.Name(), Description: t.Description()})
	}
	return ProposalModel{
		ClusterID:   d.ClusterID(),
		Category:    d.Category(),
		Subcategory: d.Subcategory(),
		Tags:        tags,
	}
}

// VectorMapper maps between search.Record and VectorModel.
type VectorMapper struct{}

// ToDomain converts a VectorModel to a search.Record.
func (VectorMapper) ToDomain(e VectorModel) search.Record {
	return search.NewRecord(e.ID, e.Text, []float64(e.Vector), search.Metadata(e.Metadata))
}

// ToModel converts a search.Record to a VectorModel.
func (VectorMapper) ToModel(d search.Record) VectorModel {
	meta := d.Metadata()
	return VectorModel{
		ID:         d.ID(),
		SourceFile: meta.Get(search.MetaSourceFile),
		Text:       d.Text(),
		Vector:     Float64Slice(d.Vector()),
		Metadata:   MetadataColumn(meta),
	}
}
