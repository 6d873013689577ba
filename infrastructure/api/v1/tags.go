package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/infrastructure/api/jsonapi"
	"github.com/helixml/taxon/infrastructure/api/middleware"
	"github.com/helixml/taxon/infrastructure/api/v1/dto"
	"github.com/helixml/taxon/internal/config"
)

// TagsRouter handles document tag endpoints.
type TagsRouter struct {
	pipeline   Pipeline
	defaults   config.TaxonomyConfig
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewTagsRouter creates a new TagsRouter.
func NewTagsRouter(p Pipeline, defaults config.TaxonomyConfig, logger *slog.Logger) *TagsRouter {
	return &TagsRouter{
		pipeline:   p,
		defaults:   defaults,
		serializer: jsonapi.NewSerializer(),
		logger:     defaultLogger(logger),
	}
}

// Routes returns the chi router for tag endpoints.
func (r *TagsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/assignments", r.ListAssignments)
	router.Post("/document", r.TagDocument)

	return router
}

// ListAssignments handles GET /api/v1/tags/assignments.
// Optional document and tag query parameters filter the results.
func (r *TagsRouter) ListAssignments(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	pagination := ParsePagination(req)

	var filters []query.Option
	if doc := strings.TrimSpace(req.URL.Query().Get("document")); doc != "" {
		filters = append(filters, assignment.WithDocument(doc))
	}
	if tag := strings.TrimSpace(req.URL.Query().Get("tag")); tag != "" {
		filters = append(filters, assignment.WithTag(tag))
	}

	total, err := r.pipeline.CountAssignments(ctx, filters...)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	assignments, err := r.pipeline.Assignments(ctx, append(filters, pagination.Options()...)...)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	doc := jsonapi.NewListResponse(r.serializer.AssignmentResources(assignments))
	doc.Meta = PaginationMeta(pagination, total)
	doc.Links = PaginationLinks(req, pagination, total)
	middleware.WriteJSON(w, http.StatusOK, doc)
}

// TagDocument handles POST /api/v1/tags/document.
func (r *TagsRouter) TagDocument(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.TagDocumentAttributes](req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	if strings.TrimSpace(attrs.Path) == "" {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "path is required", nil), r.logger)
		return
	}

	result, err := r.pipeline.TagNew(req.Context(), attrs.Path, tagParams(r.defaults, attrs))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.DocumentTagsResource(result)))
}
