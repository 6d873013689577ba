package taxon

import (
	"io"
	"log/slog"

	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/search"
	"github.com/helixml/taxon/infrastructure/tracking"
	"github.com/helixml/taxon/internal/config"
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to start from the internal/config defaults.
type clientConfig struct {
	app       config.AppConfig
	dbURL     string
	generator domainservice.Generator
	embedder  search.Embedder
	logger    *slog.Logger
	reporters []tracking.Reporter
	periodic  bool
	closers   []io.Closer
}

func newClientConfig() *clientConfig {
	return &clientConfig{app: config.NewAppConfig()}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig sets the application configuration. The database URL from
// cfg is used unless another database option follows.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.app = cfg
		c.dbURL = cfg.DBURL()
	}
}

// WithSQLite stores the index and taxonomy in the SQLite file at path.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.dbURL = "sqlite:///" + path
	}
}

// WithPostgres stores the index and taxonomy in PostgreSQL.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.dbURL = dsn
	}
}

// WithDocumentsRoot sets the directory documents are discovered under.
func WithDocumentsRoot(root string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDocuments(c.app.Documents().WithRoot(root)))
	}
}

// WithTaxonomy sets the taxonomy pipeline configuration.
func WithTaxonomy(t config.TaxonomyConfig) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithTaxonomy(t))
	}
}

// WithGenerator sets the text generator used for proposals and
// refinement. It takes precedence over the configured endpoint.
func WithGenerator(g domainservice.Generator) Option {
	return func(c *clientConfig) {
		c.generator = g
	}
}

// WithEmbedder sets the embedder used for chunks, tags and queries. It
// takes precedence over the configured endpoint.
func WithEmbedder(e search.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithReporter adds a progress reporter to every operation, alongside the
// logging reporter.
func WithReporter(r tracking.Reporter) Option {
	return func(c *clientConfig) {
		c.reporters = append(c.reporters, r)
	}
}

// WithPeriodicReprocess starts the background reprocess timer configured
// by the reindex settings.
func WithPeriodicReprocess() Option {
	return func(c *clientConfig) {
		c.periodic = true
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}
