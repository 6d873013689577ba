package assignment

import (
	"fmt"
	"sort"

	"github.com/helixml/taxon/domain/pipeline"
)

// Weights combine the semantic and structural signals.
type Weights struct {
	embedding float64
	cluster   float64
}

// NewWeights creates Weights. Both must be non-negative.
func NewWeights(embedding, cluster float64) (Weights, error) {
	if embedding < 0 || cluster < 0 {
		return Weights{}, fmt.Errorf("%w: weights must be non-negative (embedding=%g, cluster=%g)",
			pipeline.ErrConfiguration, embedding, cluster)
	}
	return Weights{embedding: embedding, cluster: cluster}, nil
}

// DefaultWeights favours tag-embedding similarity.
func DefaultWeights() Weights {
	return Weights{embedding: 0.75, cluster: 0.25}
}

// Embedding returns the weight of cosine similarity.
func (w Weights) Embedding() float64 { return w.embedding }

// Cluster returns the boost for tags mapped to the document's cluster.
func (w Weights) Cluster() float64 { return w.cluster }

// Thresholds bound what the scorer keeps.
type Thresholds struct {
	topN          int
	minConfidence float64
}

// NewThresholds validates and creates Thresholds.
func NewThresholds(topN int, minConfidence float64) (Thresholds, error) {
	if topN <= 0 {
		return Thresholds{}, fmt.Errorf("%w: top_n must be positive, got %d", pipeline.ErrConfiguration, topN)
	}
	if minConfidence < 0 || minConfidence > 1 {
		return Thresholds{}, fmt.Errorf("%w: min_confidence must be in [0,1], got %g", pipeline.ErrConfiguration, minConfidence)
	}
	return Thresholds{topN: topN, minConfidence: minConfidence}, nil
}

// TopN returns the maximum number of tags per document.
func (t Thresholds) TopN() int { return t.topN }

// MinConfidence returns the minimum kept confidence.
func (t Thresholds) MinConfidence() float64 { return t.minConfidence }

// Scorer turns tag similarities and cluster tags into assignments.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer.
func NewScorer(weights Weights) Scorer {
	return Scorer{weights: weights}
}

// Weights returns the scorer weights.
func (s Scorer) Weights() Weights { return s.weights }

// Confidence is clamp(we*max(0,sim) + wc*inCluster, 0, 1).
func (s Scorer) Confidence(similarity float64, inCluster bool) float64 {
	if similarity < 0 {
		similarity = 0
	}
	c := s.weights.embedding * similarity
	if inCluster {
		c += s.weights.cluster
	}
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// Score ranks every candidate tag: the keys of similarities plus
// clusterTags. Results are at or above the minimum confidence, sorted by
// confidence then tag name, and capped at top N.
func (s Scorer) Score(documentID string, similarities map[string]float64, clusterTags []string, limits Thresholds) []Assignment {
	inCluster := make(map[string]bool, len(clusterTags))
	for _, t := range clusterTags {
		inCluster[t] = true
	}

	candidates := make(map[string]struct{}, len(similarities)+len(clusterTags))
	for t := range similarities {
		candidates[t] = struct{}{}
	}
	for t := range inCluster {
		candidates[t] = struct{}{}
	}

	result := make([]Assignment, 0, len(candidates))
	for tag := range candidates {
		sim, hasSim := similarities[tag]
		conf := s.Confidence(sim, inCluster[tag])
		if conf < limits.minConfidence {
			continue
		}
		result = append(result, NewAssignment(documentID, tag, conf, source(hasSim && sim > 0, inCluster[tag])))
	}

	Rank(result)
	if len(result) > limits.topN {
		result = result[:limits.topN]
	}
	return result
}

// Rank sorts assignments by confidence descending, then tag name.
func Rank(assignments []Assignment) {
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].confidence != assignments[j].confidence {
			return assignments[i].confidence > assignments[j].confidence
		}
		return assignments[i].tag < assignments[j].tag
	})
}

func source(semantic, structural bool) Source {
	switch {
	case semantic && structural:
		return SourceCombined
	case structural:
		return SourceCluster
	default:
		return SourceEmbedding
	}
}
