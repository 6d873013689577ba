package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/document"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/search"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/taxonomy"
)

// TagParams configures tagging of one document.
type TagParams struct {
	TopN               int
	MinConfidence      float64
	MaxClusterDistance float64
	// LLMRefine asks the generator to review the suggestions.
	LLMRefine bool
	// Persist stores the result as the document's assignments.
	Persist bool
}

// Validate checks the parameters.
func (p TagParams) Validate() (assignment.Thresholds, error) {
	limits, err := assignment.NewThresholds(p.TopN, p.MinConfidence)
	if err != nil {
		return assignment.Thresholds{}, err
	}
	if p.MaxClusterDistance <= 0 || p.MaxClusterDistance > 2 {
		return assignment.Thresholds{}, fmt.Errorf("%w: max cluster distance must be in (0, 2], got %g",
			pipeline.ErrConfiguration, p.MaxClusterDistance)
	}
	return limits, nil
}

// TagResult is the outcome of tagging one document.
type TagResult struct {
	DocumentID string
	// ClusterID is the nearest cluster, or -1 when the document is
	// unclustered.
	ClusterID       int
	ClusterDistance float64
	Assignments     []assignment.Assignment
	Refined         bool
	// RefineError is set when refinement was requested but failed; the
	// assignments are then the unrefined ones.
	RefineError string
	Persisted   bool
}

// Clustered reports whether the document fell within a cluster.
func (r TagResult) Clustered() bool { return r.ClusterID >= 0 }

// Tagger suggests tags for a single document using a prior taxonomy
// rebuild. It never writes clusters, the taxonomy or tag embeddings.
type Tagger struct {
	changes     *domainservice.ChangeTracker
	index       *domainservice.VectorIndex
	loader      document.Loader
	embedder    search.Embedder
	generator   domainservice.Generator
	clusters    cluster.Store
	taxonomy    taxonomy.Store
	tags        search.VectorStore
	assignments assignment.Store
	scorer      assignment.Scorer
	policy      CallPolicy
	logger      *slog.Logger
}

// NewTagger creates a Tagger. generator may be nil, which makes every
// refinement request degrade to the unrefined result.
func NewTagger(
	changes *domainservice.ChangeTracker,
	index *domainservice.VectorIndex,
	loader document.Loader,
	embedder search.Embedder,
	generator domainservice.Generator,
	clusters cluster.Store,
	store taxonomy.Store,
	tags search.VectorStore,
	assignments assignment.Store,
	weights assignment.Weights,
	policy CallPolicy,
	logger *slog.Logger,
) *Tagger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tagger{
		changes:     changes,
		index:       index,
		loader:      loader,
		embedder:    embedder,
		generator:   generator,
		clusters:    clusters,
		taxonomy:    store,
		tags:        tags,
		assignments: assignments,
		scorer:      assignment.NewScorer(weights),
		policy:      policy,
		logger:      logger,
	}
}

// TagNew scores path against the current taxonomy. A document farther than
// MaxClusterDistance from every centroid is scored on tag embeddings alone.
func (t *Tagger) TagNew(ctx context.Context, path string, params TagParams) (TagResult, error) {
	result := TagResult{DocumentID: path, ClusterID: -1}

	limits, err := params.Validate()
	if err != nil {
		return result, err
	}

	tax, err := t.taxonomy.Load(ctx)
	if err != nil {
		return result, unavailable("load taxonomy", err)
	}
	if tax.IsEmpty() {
		return result, ErrEmptyTaxonomy
	}
	vectors, err := tagVectors(ctx, t.tags)
	if err != nil {
		return result, err
	}
	vectors = knownTags(tax, vectors)
	if len(vectors) == 0 {
		return result, ErrNoTagEmbeddings
	}

	vector, chunks, err := t.documentVector(ctx, path)
	if err != nil {
		return result, err
	}

	clusters, err := t.clusters.FindAll(ctx)
	if err != nil {
		return result, unavailable("load clusters", err)
	}
	var clusterTags []string
	if c, distance, ok := nearestCluster(vector, clusters); ok {
		result.ClusterDistance = distance
		if distance <= params.MaxClusterDistance {
			result.ClusterID = c.ID()
			clusterTags = tax.ClusterTags(c.ID())
		}
	}

	sims := similarities(vector, vectors)
	result.Assignments = t.scorer.Score(path, sims, clusterTags, limits)

	if params.LLMRefine {
		refined, err := t.refine(ctx, path, chunks, result.Assignments, sims, clusterTags, tax, limits)
		if err != nil {
			t.logger.Warn("tag refinement failed, keeping unrefined tags",
				slog.String("document", path),
				slog.String("error", err.Error()),
			)
			result.RefineError = err.Error()
		} else {
			result.Assignments = refined
			result.Refined = true
		}
	}

	if params.Persist {
		if err := t.assignments.ReplaceForDocument(ctx, path, result.Assignments); err != nil {
			return result, unavailable("store assignments", err)
		}
		result.Persisted = true
	}
	return result, nil
}

// documentVector reuses the stored chunks when the ledger says the file is
// unchanged, and otherwise loads and embeds it without storing anything.
func (t *Tagger) documentVector(ctx context.Context, path string) ([]float64, []document.Chunk, error) {
	upToDate, err := t.changes.IsUpToDate(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("check %s: %w", path, err)
	}
	if upToDate {
		chunks, err := t.index.Chunks(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		if len(chunks) > 0 {
			vector, err := meanOf(chunks)
			return vector, chunks, err
		}
	}

	if t.embedder == nil {
		return nil, nil, ErrNoEmbedder
	}
	chunks, err := t.loader.LoadAndChunk(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%s: %w: %w", path, pipeline.ErrIntegrity, document.ErrNoChunks)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text()
	}
	var embedded [][]float64
	err = call(ctx, t.policy, t.logger, "embed document", func(ctx context.Context) error {
		v, err := t.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return fmt.Errorf("%w: got %d, want %d", errEmbeddingCount, len(v), len(texts))
		}
		embedded = v
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("embed %s: %w", path, err)
	}
	for i := range chunks {
		chunks[i] = chunks[i].WithVector(embedded[i])
	}
	vector, err := meanOf(chunks)
	return vector, chunks, err
}

func meanOf(chunks []document.Chunk) ([]float64, error) {
	vectors := make([][]float64, len(chunks))
	for i, c := range chunks {
		vectors[i] = c.Vector()
	}
	mean, err := search.Mean(vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrIntegrity, err)
	}
	return mean, nil
}

// nearestCluster returns the cluster whose centroid is closest by cosine
// distance, ties going to the lower ID.
func nearestCluster(vector []float64, clusters []cluster.Cluster) (cluster.Cluster, float64, bool) {
	best := -1
	bestDistance := math.Inf(1)
	for i, c := range clusters {
		d := search.CosineDistance(vector, c.Centroid())
		if d < bestDistance {
			best, bestDistance = i, d
		}
	}
	if best < 0 {
		return cluster.Cluster{}, 0, false
	}
	return clusters[best], bestDistance, true
}

// refine asks the generator once to review the suggestions. Tags it returns
// that are not in the taxonomy are ignored. Tags it adds are scored like any
// other tag and dropped below the minimum confidence. The kept tags are
// ranked by confidence before the top N cut.
func (t *Tagger) refine(
	ctx context.Context,
	path string,
	chunks []document.Chunk,
	suggested []assignment.Assignment,
	sims map[string]float64,
	clusterTags []string,
	tax taxonomy.Taxonomy,
	limits assignment.Thresholds,
) ([]assignment.Assignment, error) {
	if t.generator == nil {
		return nil, ErrNoGenerator
	}

	lines := make([]string, len(suggested))
	for i, a := range suggested {
		lines[i] = fmt.Sprintf("- %s (%.2f)", a.Tag(), a.Confidence())
	}
	allowed := make([]string, 0, len(tax.Tags()))
	for _, tag := range tax.Tags() {
		allowed = append(allowed, "- "+tag.Name())
	}
	excerpt := ""
	if len(chunks) > 0 {
		excerpt = truncate(chunks[0].Text(), DefaultExcerptRunes)
	}
	prompt := fmt.Sprintf(refineTaskPrompt, excerpt, strings.Join(lines, "\n"), strings.Join(allowed, "\n"))

	single := t.policy
	single.Retries = 0

	var names []string
	err := call(ctx, single, t.logger, "refine tags", func(ctx context.Context) error {
		text, err := t.generator.Generate(ctx, prompt, refineSystemPrompt)
		if err != nil {
			return err
		}
		names, err = parseRefinement(text)
		return err
	})
	if err != nil {
		return nil, err
	}

	bySuggestion := make(map[string]assignment.Assignment, len(suggested))
	for _, a := range suggested {
		bySuggestion[a.Tag()] = a
	}
	inCluster := make(map[string]bool, len(clusterTags))
	for _, name := range clusterTags {
		inCluster[name] = true
	}

	result := make([]assignment.Assignment, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := tax.Tag(name); !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if a, ok := bySuggestion[name]; ok {
			result = append(result, a)
			continue
		}
		conf := t.scorer.Confidence(sims[name], inCluster[name])
		if conf < limits.MinConfidence() {
			t.logger.Debug("dropping refined tag below minimum confidence",
				slog.String("document", path),
				slog.String("tag", name),
				slog.Float64("confidence", conf),
			)
			continue
		}
		result = append(result, assignment.NewAssignment(path, name, conf, assignment.SourceLLM))
	}
	if len(result) == 0 && len(suggested) > 0 {
		return nil, errRefinementEmpty
	}
	assignment.Rank(result)
	if len(result) > limits.TopN() {
		result = result[:limits.TopN()]
	}
	return result, nil
}
