package search

import "context"

// Collection names.
const (
	CollectionChunks = "chunks"
	CollectionTags   = "tags"
)

// VectorStore is one named vector collection.
type VectorStore interface {
	// Upsert inserts records or overwrites them by ID.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to k records matching filter ranked by cosine
	// similarity to vector, highest first.
	Query(ctx context.Context, vector []float64, k int, filter Filter) ([]Match, error)

	// Delete removes every record matching filter.
	Delete(ctx context.Context, filter Filter) error

	// Count returns the number of records matching filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Get returns every record matching filter ordered by ID.
	Get(ctx context.Context, filter Filter) ([]Record, error)
}

// Replacer is implemented by stores that can swap the records matching a
// filter for a new set in one transaction.
type Replacer interface {
	Replace(ctx context.Context, filter Filter, records []Record) error
}

// Embedder converts text into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
