package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/taxon/infrastructure/api/jsonapi"
	"github.com/helixml/taxon/infrastructure/api/middleware"
	"github.com/helixml/taxon/infrastructure/api/v1/dto"
)

// IndexRouter handles vector index endpoints.
type IndexRouter struct {
	pipeline   Pipeline
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewIndexRouter creates a new IndexRouter.
func NewIndexRouter(p Pipeline, logger *slog.Logger) *IndexRouter {
	return &IndexRouter{
		pipeline:   p,
		serializer: jsonapi.NewSerializer(),
		logger:     defaultLogger(logger),
	}
}

// Routes returns the chi router for index endpoints.
func (r *IndexRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/reprocess", r.Reprocess)
	router.Post("/rebuild", r.Rebuild)

	return router
}

// Reprocess handles POST /api/v1/index/reprocess.
func (r *IndexRouter) Reprocess(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.ReprocessAttributes](req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	writeResult(w, r.serializer, r.pipeline.Reprocess(req.Context(), attrs.Files))
}

// Rebuild handles POST /api/v1/index/rebuild.
func (r *IndexRouter) Rebuild(w http.ResponseWriter, req *http.Request) {
	writeResult(w, r.serializer, r.pipeline.RebuildIndex(req.Context()))
}
