// Package taxon builds and applies a document taxonomy.
//
// Taxon indexes a directory of text documents into chunk embeddings,
// clusters the documents, asks an LLM to propose tags per cluster,
// normalizes the proposals into one taxonomy and assigns tags back to
// every document.
//
// Basic usage:
//
//	client, err := taxon.New(
//	    taxon.WithSQLite(".taxon/taxon.db"),
//	    taxon.WithDocumentsRoot("./docs"),
//	    taxon.WithEmbedder(embedder),
//	    taxon.WithGenerator(generator),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	p := client.Pipeline()
//	p.Reprocess(ctx, nil)
//	for _, r := range p.RebuildTaxonomy(ctx, service.RebuildParamsFrom(client.Config().Taxonomy())) {
//	    fmt.Println(r)
//	}
package taxon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/helixml/taxon/application/service"
	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/search"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/infrastructure/git"
	"github.com/helixml/taxon/infrastructure/loader"
	"github.com/helixml/taxon/infrastructure/persistence"
	"github.com/helixml/taxon/infrastructure/provider"
	"github.com/helixml/taxon/infrastructure/tracking"
	"github.com/helixml/taxon/internal/config"
	"github.com/helixml/taxon/internal/database"
)

// Client is the main entry point for the taxon library.
type Client struct {
	db       database.Database
	pipeline *service.Pipeline
	periodic *service.PeriodicReprocess
	cfg      config.AppConfig
	closers  []io.Closer
	logger   *slog.Logger
	closed   atomic.Bool
	mu       sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.dbURL == "" {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	app := cfg.app
	if err := app.Validate(); err != nil {
		return nil, err
	}
	if _, err := config.PrepareDataDir(app.DataDir()); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(app.Documents().Root())
	if err != nil {
		return nil, fmt.Errorf("resolve documents root: %w", err)
	}

	ctx := context.Background()

	db, err := database.NewDatabase(ctx, cfg.dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}
	if err := persistence.ValidateSchema(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("validate schema: %w", err), errClose)
	}

	ledgerStore := persistence.NewLedgerStore(db)
	metaStore := persistence.NewMetaStore(db)
	clusterStore := persistence.NewClusterStore(db)
	proposalStore := persistence.NewProposalStore(db)
	taxonomyStore := persistence.NewTaxonomyStore(db)
	assignmentStore := persistence.NewAssignmentStore(db)

	chunkVectors, err := persistence.NewVectorStore(ctx, db, search.CollectionChunks, logger)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("chunk vector store: %w", err), errClose)
	}
	tagVectors, err := persistence.NewVectorStore(ctx, db, search.CollectionTags, logger)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("tag vector store: %w", err), errClose)
	}

	if path := app.LegacyLedgerPath(); path != "" {
		if err := migrateLegacyLedger(ctx, persistence.NewLegacyLedgerMigration(path, ledgerStore, metaStore, logger), logger); err != nil {
			errClose := db.Close()
			return nil, errors.Join(err, errClose)
		}
	}

	generator, embedder, err := buildProviders(cfg, logger)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("providers: %w", err), errClose)
	}

	docs := app.Documents()
	chunker, err := loader.NewChunker(loader.ChunkParams{Size: docs.ChunkSize(), Overlap: docs.ChunkOverlap()})
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("chunker: %w", err), errClose)
	}
	textLoader := loader.NewTextLoader(root, chunker, logger)
	discover := func(ctx context.Context) ([]string, error) {
		ignore, err := git.NewIgnore(root)
		if err != nil {
			return nil, err
		}
		return loader.Discover(ctx, root, docs.Include(), docs.Exclude(), ignore)
	}

	vcs := git.Open(ctx, root, logger)
	changes := domainservice.NewChangeTracker(ledgerStore, vcs, root, logger)
	index := domainservice.NewVectorIndex(chunkVectors, logger)

	tax := app.Taxonomy()
	weights, err := assignment.NewWeights(tax.EmbeddingWeight(), tax.ClusterWeight())
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(err, errClose)
	}
	policy := service.DefaultCallPolicy()
	policy.Timeout = tax.CallTimeout()
	policy.Retries = tax.CallRetries()

	reporters := append([]tracking.Reporter{
		tracking.NewCooldown(tracking.NewLoggingReporter(logger), app.ReportingInterval()),
	}, cfg.reporters...)
	trackers := trackerFactory{factory: tracking.NewFactory(logger, reporters...)}

	indexer := service.NewIndexer(changes, index, ledgerStore, textLoader, embedder, logger,
		service.WithDiscover(discover),
		service.WithIndexParallelism(tax.Parallelism()),
		service.WithIndexCallPolicy(policy),
		service.WithIndexMeta(metaStore, vcs),
		service.WithIndexTrackers(trackers),
	)
	clusterBuilder := service.NewClusterBuilder(ledgerStore, index, clusterStore, trackers, logger)
	proposer := service.NewProposer(clusterStore, index, proposalStore, generator, trackers, logger,
		service.WithProposerParallelism(tax.Parallelism()),
		service.WithProposerCallPolicy(policy),
	)
	normalizer := service.NewNormalizer(proposalStore, taxonomyStore, trackers, logger)
	tagEmbedder := service.NewTagEmbedder(taxonomyStore, tagVectors, embedder, policy, tax.Parallelism(), trackers, logger)
	assigner := service.NewAssigner(ledgerStore, index, clusterStore, taxonomyStore, tagVectors, assignmentStore, weights, trackers, logger)
	tagger := service.NewTagger(changes, index, textLoader, embedder, generator, clusterStore, taxonomyStore, tagVectors, assignmentStore, weights, policy, logger)

	p := service.NewPipeline(service.Components{
		Indexer:      indexer,
		Clusters:     clusterBuilder,
		Proposer:     proposer,
		Normalizer:   normalizer,
		TagEmbedder:  tagEmbedder,
		Assigner:     assigner,
		Tagger:       tagger,
		Index:        index,
		Embedder:     embedder,
		Meta:         metaStore,
		ClusterStore: clusterStore,
		Taxonomy:     taxonomyStore,
		Assignments:  assignmentStore,
		Trackers:     trackers,
		CallPolicy:   policy,
	}, logger)

	periodic := service.NewPeriodicReprocess(app.Reindex(), p, logger)
	if cfg.periodic {
		periodic.Start(ctx)
	}

	logger.Info("taxon client ready",
		slog.String("documents_root", root),
		slog.Bool("vcs", vcs.IsRepository(ctx)),
		slog.Bool("generator", generator != nil),
		slog.Bool("embedder", embedder != nil),
	)

	return &Client{
		db:       db,
		pipeline: p,
		periodic: periodic,
		cfg:      app.Apply(config.WithDocuments(docs.WithRoot(root))),
		closers:  cfg.closers,
		logger:   logger,
	}, nil
}

// Pipeline returns the operations the client runs.
func (c *Client) Pipeline() *service.Pipeline {
	return c.pipeline
}

// Config returns the effective configuration. The documents root is
// absolute.
func (c *Client) Config() config.AppConfig {
	return c.cfg
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Close stops background work and releases the database.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.periodic.Stop()

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Info("taxon client closed")
	return nil
}

func migrateLegacyLedger(ctx context.Context, m *persistence.LegacyLedgerMigration, logger *slog.Logger) error {
	applicable, err := m.Applicable(ctx)
	if err != nil {
		return fmt.Errorf("check legacy ledger: %w", err)
	}
	if !applicable {
		return nil
	}
	n, err := m.Apply(ctx)
	if err != nil {
		return fmt.Errorf("import legacy ledger: %w", err)
	}
	logger.Info("imported legacy ledger", slog.Int("records", n))
	return nil
}

// buildProviders resolves the generator and embedder. Explicit options win
// over configured endpoints; an unconfigured endpoint leaves the port nil.
func buildProviders(cfg *clientConfig, logger *slog.Logger) (domainservice.Generator, search.Embedder, error) {
	generator := cfg.generator
	embedder := cfg.embedder
	app := cfg.app

	var transport http.RoundTripper
	if dir := app.HTTPCacheDir(); dir != "" {
		cache, err := provider.NewCachingTransport(dir, nil)
		if err != nil {
			return nil, nil, err
		}
		transport = cache
	}

	if generator == nil {
		if e := app.EnrichmentEndpoint(); e != nil && e.IsConfigured() {
			p := provider.NewOpenAIProvider(openAIConfig(*e, transport), provider.WithTextOnly(), provider.WithLogger(logger))
			generator = provider.NewRateLimitedGenerator(p, provider.NewLimiter(e.RequestsPerSecond(), e.Burst()))
		}
	}
	if embedder == nil {
		if e := app.EmbeddingEndpoint(); e != nil && e.IsConfigured() {
			p := provider.NewOpenAIProvider(openAIConfig(*e, transport), provider.WithEmbeddingOnly(), provider.WithLogger(logger))
			embedder = provider.NewRateLimitedEmbedder(p, provider.NewLimiter(e.RequestsPerSecond(), e.Burst()))
		}
	}
	return generator, embedder, nil
}

// openAIConfig maps an endpoint onto provider settings. Provider retries are
// off: every pipeline call already runs under the taxonomy call policy, and
// retrying in both layers would multiply the attempts per unit.
func openAIConfig(e config.Endpoint, transport http.RoundTripper) provider.OpenAIConfig {
	return provider.OpenAIConfig{
		APIKey:         e.APIKey(),
		BaseURL:        e.BaseURL(),
		ChatModel:      e.Model(),
		EmbeddingModel: e.Model(),
		Timeout:        e.Timeout(),
		MaxRetries:     -1,
		MaxTokens:      e.MaxTokens(),
		BatchSize:      e.MaxBatchSize(),
		Transport:      transport,
	}
}

// trackerFactory adapts tracking.Factory to service.TrackerFactory.
type trackerFactory struct {
	factory *tracking.Factory
}

func (f trackerFactory) ForOperation(operation task.Operation) service.Tracker {
	return f.factory.Tracker(operation)
}
