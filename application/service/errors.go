package service

import (
	"errors"
	"fmt"

	"github.com/helixml/taxon/domain/pipeline"
)

// Errors returned when a phase cannot start.
var (
	ErrNoGenerator   = fmt.Errorf("%w: no text generation provider configured", pipeline.ErrConfiguration)
	ErrNoEmbedder    = fmt.Errorf("%w: no embedding provider configured", pipeline.ErrConfiguration)
	ErrNoClusters    = fmt.Errorf("%w: no clusters, build clusters first", pipeline.ErrIntegrity)
	ErrNoProposals   = fmt.Errorf("%w: no taxonomy proposals, propose a taxonomy first", pipeline.ErrIntegrity)
	ErrEmptyTaxonomy = fmt.Errorf("%w: taxonomy has no tags, normalize first", pipeline.ErrIntegrity)
	ErrNoDocuments   = fmt.Errorf("%w: no indexed documents with chunks", pipeline.ErrIntegrity)

	ErrNoTagEmbeddings = fmt.Errorf("%w: no tag embeddings for the taxonomy, embed tags first", pipeline.ErrIntegrity)
)

var (
	errEmbeddingCount  = errors.New("embedding count mismatch")
	errRefinementEmpty = errors.New("refinement kept none of the taxonomy tags")
)

// unavailable marks a store error that stops the whole phase.
func unavailable(action string, err error) error {
	if errors.Is(err, pipeline.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", action, pipeline.ErrUnavailable, err)
}
