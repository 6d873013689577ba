package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apimiddleware "github.com/helixml/taxon/infrastructure/api/middleware"
	v1 "github.com/helixml/taxon/infrastructure/api/v1"
	"github.com/helixml/taxon/internal/config"
)

// ReadTimeout bounds the read-only endpoints.
const ReadTimeout = 60 * time.Second

// APIServer provides the HTTP API over a taxon pipeline.
type APIServer struct {
	pipeline v1.Pipeline
	defaults config.TaxonomyConfig
	apiKeys  []string
	server   *Server
	router   chi.Router
	logger   *slog.Logger
}

// NewAPIServer creates an APIServer. defaults fill any parameter a request
// leaves out. apiKeys write-protect the index, taxonomy and tag routes:
// POST requests there need a valid X-API-KEY header. Reads and search stay
// open. No keys disables the check.
func NewAPIServer(p v1.Pipeline, defaults config.TaxonomyConfig, apiKeys []string, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIServer{
		pipeline: p,
		defaults: defaults,
		apiKeys:  apiKeys,
		logger:   logger,
	}
}

// Router returns the chi router for customization before mounting routes.
func (a *APIServer) Router() chi.Router {
	if a.router == nil {
		a.router = chi.NewRouter()
	}
	return a.router
}

// MountRoutes wires the health check and every v1 route.
func (a *APIServer) MountRoutes() {
	a.mountRoutes(a.Router())
}

func (a *APIServer) mountRoutes(router chi.Router) {
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		apimiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	indexRouter := v1.NewIndexRouter(a.pipeline, a.logger)
	taxonomyRouter := v1.NewTaxonomyRouter(a.pipeline, a.defaults, a.logger)
	tagsRouter := v1.NewTagsRouter(a.pipeline, a.defaults, a.logger)
	searchRouter := v1.NewSearchRouter(a.pipeline, a.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.With(chimiddleware.Timeout(ReadTimeout)).Mount("/search", searchRouter.Routes())

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.WriteProtectAuth(a.apiKeys))
			r.Mount("/index", indexRouter.Routes())
			r.Mount("/taxonomy", taxonomyRouter.Routes())
			r.Mount("/tags", tagsRouter.Routes())
		})
	})
}

// ListenAndServe starts the HTTP server on addr.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger)
	a.server = &server

	if a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the routes as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.MountRoutes()
	}
	return a.router
}
