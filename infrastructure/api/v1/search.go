package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/taxon/infrastructure/api/jsonapi"
	"github.com/helixml/taxon/infrastructure/api/middleware"
	"github.com/helixml/taxon/infrastructure/api/v1/dto"
)

// DefaultSearchLimit is the number of chunks returned when no limit is given.
const DefaultSearchLimit = 10

// SearchRouter handles search API endpoints.
type SearchRouter struct {
	pipeline   Pipeline
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewSearchRouter creates a new SearchRouter.
func NewSearchRouter(p Pipeline, logger *slog.Logger) *SearchRouter {
	return &SearchRouter{
		pipeline:   p,
		serializer: jsonapi.NewSerializer(),
		logger:     defaultLogger(logger),
	}
}

// Routes returns the chi router for search endpoints.
func (r *SearchRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Search)

	return router
}

// Search handles POST /api/v1/search.
func (r *SearchRouter) Search(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.SearchAttributes](req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	text := strings.TrimSpace(attrs.Query)
	if text == "" {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "query is required", nil), r.logger)
		return
	}

	matches, err := r.pipeline.Search(req.Context(), text, valueOr(attrs.Limit, DefaultSearchLimit))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.ChunkResources(matches)))
}
