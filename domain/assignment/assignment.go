// Package assignment scores and stores the tags applied to each document.
package assignment

import (
	"context"

	"github.com/helixml/taxon/domain/query"
)

// Source records which signal produced an assignment.
type Source string

// Source values.
const (
	SourceEmbedding Source = "embedding"
	SourceCluster   Source = "cluster"
	SourceCombined  Source = "cluster+embedding"
	SourceLLM       Source = "llm"
)

// Assignment is one tag applied to one document.
type Assignment struct {
	documentID string
	tag        string
	confidence float64
	source     Source
}

// NewAssignment creates an Assignment.
func NewAssignment(documentID, tag string, confidence float64, source Source) Assignment {
	return Assignment{
		documentID: documentID,
		tag:        tag,
		confidence: confidence,
		source:     source,
	}
}

// DocumentID returns the tagged document.
func (a Assignment) DocumentID() string { return a.documentID }

// Tag returns the canonical tag name.
func (a Assignment) Tag() string { return a.tag }

// Confidence returns the score in [0,1].
func (a Assignment) Confidence() float64 { return a.confidence }

// Source returns the signal that produced the assignment.
func (a Assignment) Source() Source { return a.source }

// Store persists assignments. Rows are replaced per document.
type Store interface {
	// ReplaceForDocument swaps a document's assignments in one transaction.
	ReplaceForDocument(ctx context.Context, documentID string, assignments []Assignment) error
	// Find returns assignments ordered by document then confidence.
	Find(ctx context.Context, options ...query.Option) ([]Assignment, error)
	// Count returns the number of stored assignments.
	Count(ctx context.Context, options ...query.Option) (int64, error)
	// DeleteBy removes assignments; no options removes every row.
	DeleteBy(ctx context.Context, options ...query.Option) error
	// DeleteUnindexed removes assignments of documents absent from the
	// processed-file ledger.
	DeleteUnindexed(ctx context.Context) error
}

// WithDocument filters by document ID.
func WithDocument(documentID string) query.Option {
	return query.WithCondition("document_id", documentID)
}

// WithTag filters by tag name.
func WithTag(tag string) query.Option {
	return query.WithCondition("tag", tag)
}
