package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/taxon/infrastructure/api/jsonapi"
	"github.com/helixml/taxon/infrastructure/api/middleware"
	"github.com/helixml/taxon/infrastructure/api/v1/dto"
	"github.com/helixml/taxon/internal/config"
)

// TaxonomyRouter handles clustering, taxonomy and assignment phases.
type TaxonomyRouter struct {
	pipeline   Pipeline
	defaults   config.TaxonomyConfig
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewTaxonomyRouter creates a new TaxonomyRouter. Request attributes
// override the values in defaults.
func NewTaxonomyRouter(p Pipeline, defaults config.TaxonomyConfig, logger *slog.Logger) *TaxonomyRouter {
	return &TaxonomyRouter{
		pipeline:   p,
		defaults:   defaults,
		serializer: jsonapi.NewSerializer(),
		logger:     defaultLogger(logger),
	}
}

// Routes returns the chi router for taxonomy endpoints.
func (r *TaxonomyRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.Tags)
	router.Get("/categories", r.Categories)
	router.Get("/clusters", r.ListClusters)
	router.Post("/clusters", r.BuildClusters)
	router.Post("/propose", r.Propose)
	router.Post("/normalize", r.Normalize)
	router.Post("/embed", r.EmbedTags)
	router.Post("/assign", r.Assign)
	router.Post("/rebuild", r.Rebuild)

	return router
}

// Tags handles GET /api/v1/taxonomy.
func (r *TaxonomyRouter) Tags(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	tax, err := r.pipeline.Taxonomy(ctx)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	builtAt, built, err := r.pipeline.LastTaxonomyBuild(ctx)
	if err != nil {
		r.logger.Warn("failed to read taxonomy build time", "error", err)
		built = false
	}

	doc := jsonapi.NewListResponse(r.serializer.TagResources(tax)).
		WithMeta(r.serializer.TaxonomyMeta(tax, builtAt, built))
	middleware.WriteJSON(w, http.StatusOK, doc)
}

// Categories handles GET /api/v1/taxonomy/categories.
func (r *TaxonomyRouter) Categories(w http.ResponseWriter, req *http.Request) {
	tax, err := r.pipeline.Taxonomy(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.CategoryResources(tax)))
}

// ListClusters handles GET /api/v1/taxonomy/clusters.
func (r *TaxonomyRouter) ListClusters(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	clusters, err := r.pipeline.Clusters(ctx)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	tax, err := r.pipeline.Taxonomy(ctx)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.ClusterResources(clusters, tax)))
}

// BuildClusters handles POST /api/v1/taxonomy/clusters.
func (r *TaxonomyRouter) BuildClusters(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.ClustersAttributes](req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	writeResult(w, r.serializer, r.pipeline.RebuildClusters(req.Context(), buildParams(r.defaults, attrs)))
}

// Propose handles POST /api/v1/taxonomy/propose.
func (r *TaxonomyRouter) Propose(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.ProposeAttributes](req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	sampleSize := valueOr(attrs.SampleSize, r.defaults.SampleSize())
	writeResult(w, r.serializer, r.pipeline.ProposeTaxonomy(req.Context(), sampleSize))
}

// Normalize handles POST /api/v1/taxonomy/normalize.
func (r *TaxonomyRouter) Normalize(w http.ResponseWriter, req *http.Request) {
	writeResult(w, r.serializer, r.pipeline.NormalizeTaxonomy(req.Context()))
}

// EmbedTags handles POST /api/v1/taxonomy/embed.
func (r *TaxonomyRouter) EmbedTags(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.EmbedTagsAttributes](req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	use := valueOr(attrs.UseDescriptions, r.defaults.UseDescriptions())
	writeResult(w, r.serializer, r.pipeline.EmbedTags(req.Context(), use))
}

// Assign handles POST /api/v1/taxonomy/assign.
func (r *TaxonomyRouter) Assign(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.AssignAttributes](req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	topN := valueOr(attrs.TopN, r.defaults.TopN())
	minConfidence := valueOr(attrs.MinConfidence, r.defaults.MinConfidence())
	writeResult(w, r.serializer, r.pipeline.AssignTags(req.Context(), topN, minConfidence))
}

// Rebuild handles POST /api/v1/taxonomy/rebuild.
func (r *TaxonomyRouter) Rebuild(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.RebuildAttributes](req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	writeResults(w, r.serializer, r.pipeline.RebuildTaxonomy(req.Context(), rebuildParams(r.defaults, attrs)))
}
