// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidConfig indicates a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Default configuration values.
const (
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 8080
	DefaultLogLevel             = "INFO"
	DefaultDBFile               = "taxon.db"
	DefaultEndpointTimeout      = 60 * time.Second
	DefaultEndpointMaxTokens    = 4000
	DefaultEndpointMaxBatchSize = 16
	DefaultEndpointRequestsPerS = 5.0
	DefaultEndpointBurst        = 5
	DefaultChunkSize            = 1500
	DefaultChunkOverlap         = 200
	DefaultAlgorithm            = "kmeans"
	DefaultEpsilon              = 0.35
	DefaultMinPoints            = 3
	DefaultSampleSize           = 5
	DefaultTopN                 = 5
	DefaultMinConfidence        = 0.35
	DefaultMaxClusterDistance   = 0.6
	DefaultClusterWeight        = 0.25
	DefaultEmbeddingWeight      = 0.75
	DefaultParallelism          = 4
	DefaultCallTimeout          = 60 * time.Second
	DefaultCallRetries          = 3
	DefaultReindexInterval      = 30 * time.Minute
	DefaultReportingInterval    = 5 * time.Second
)

// DefaultInclude lists the glob patterns indexed when none are configured.
var DefaultInclude = []string{"**/*.md", "**/*.txt"}

// DefaultExclude lists the glob patterns skipped when none are configured.
var DefaultExclude = []string{".git/**", "**/node_modules/**"}

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// Endpoint configures an AI service endpoint.
type Endpoint struct {
	baseURL           string
	model             string
	apiKey            string
	timeout           time.Duration
	maxTokens         int
	maxBatchSize      int
	requestsPerSecond float64
	burst             int
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:           DefaultEndpointTimeout,
		maxTokens:         DefaultEndpointMaxTokens,
		maxBatchSize:      DefaultEndpointMaxBatchSize,
		requestsPerSecond: DefaultEndpointRequestsPerS,
		burst:             DefaultEndpointBurst,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxTokens returns the maximum completion token limit.
func (e Endpoint) MaxTokens() int { return e.maxTokens }

// MaxBatchSize returns the maximum number of texts per embedding request.
func (e Endpoint) MaxBatchSize() int { return e.maxBatchSize }

// RequestsPerSecond returns the sustained request rate. Zero disables pacing.
func (e Endpoint) RequestsPerSecond() float64 { return e.requestsPerSecond }

// Burst returns the rate limiter burst size.
func (e Endpoint) Burst() int { return e.burst }

// IsConfigured returns true if the endpoint has a model configured.
func (e Endpoint) IsConfigured() bool {
	return e.model != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxTokens sets the maximum completion token limit.
func WithMaxTokens(n int) EndpointOption {
	return func(e *Endpoint) { e.maxTokens = n }
}

// WithMaxBatchSize sets the embedding batch size.
func WithMaxBatchSize(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.maxBatchSize = n
		}
	}
}

// WithRateLimit sets the sustained request rate and burst.
func WithRateLimit(perSecond float64, burst int) EndpointOption {
	return func(e *Endpoint) {
		e.requestsPerSecond = perSecond
		e.burst = burst
	}
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// DocumentsConfig configures where documents are discovered and how they are chunked.
type DocumentsConfig struct {
	root         string
	include      []string
	exclude      []string
	chunkSize    int
	chunkOverlap int
}

// NewDocumentsConfig creates a DocumentsConfig with defaults.
func NewDocumentsConfig() DocumentsConfig {
	return DocumentsConfig{
		root:         ".",
		include:      append([]string(nil), DefaultInclude...),
		exclude:      append([]string(nil), DefaultExclude...),
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
}

// Root returns the directory documents are discovered under.
func (d DocumentsConfig) Root() string { return d.root }

// Include returns the include glob patterns.
func (d DocumentsConfig) Include() []string { return append([]string(nil), d.include...) }

// Exclude returns the exclude glob patterns.
func (d DocumentsConfig) Exclude() []string { return append([]string(nil), d.exclude...) }

// ChunkSize returns the target chunk size in characters.
func (d DocumentsConfig) ChunkSize() int { return d.chunkSize }

// ChunkOverlap returns the overlap between consecutive chunks in characters.
func (d DocumentsConfig) ChunkOverlap() int { return d.chunkOverlap }

// WithRoot returns a copy with the given root.
func (d DocumentsConfig) WithRoot(root string) DocumentsConfig {
	d.root = root
	return d
}

// WithInclude returns a copy with the given include patterns.
func (d DocumentsConfig) WithInclude(patterns []string) DocumentsConfig {
	d.include = append([]string(nil), patterns...)
	return d
}

// WithExclude returns a copy with the given exclude patterns.
func (d DocumentsConfig) WithExclude(patterns []string) DocumentsConfig {
	d.exclude = append([]string(nil), patterns...)
	return d
}

// WithChunking returns a copy with the given chunk size and overlap.
func (d DocumentsConfig) WithChunking(size, overlap int) DocumentsConfig {
	d.chunkSize = size
	d.chunkOverlap = overlap
	return d
}

// Validate checks chunking parameters.
func (d DocumentsConfig) Validate() error {
	if d.chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, d.chunkSize)
	}
	if d.chunkOverlap < 0 || d.chunkOverlap >= d.chunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidConfig, d.chunkSize, d.chunkOverlap)
	}
	return nil
}

// TaxonomyConfig holds the clustering, proposal and assignment parameters.
type TaxonomyConfig struct {
	algorithm          string
	k                  int
	maxDocuments       int
	epsilon            float64
	minPoints          int
	sampleSize         int
	topN               int
	minConfidence      float64
	maxClusterDistance float64
	clusterWeight      float64
	embeddingWeight    float64
	useDescriptions    bool
	parallelism        int
	callTimeout        time.Duration
	callRetries        int
}

// NewTaxonomyConfig creates a TaxonomyConfig with defaults.
func NewTaxonomyConfig() TaxonomyConfig {
	return TaxonomyConfig{
		algorithm:          DefaultAlgorithm,
		epsilon:            DefaultEpsilon,
		minPoints:          DefaultMinPoints,
		sampleSize:         DefaultSampleSize,
		topN:               DefaultTopN,
		minConfidence:      DefaultMinConfidence,
		maxClusterDistance: DefaultMaxClusterDistance,
		clusterWeight:      DefaultClusterWeight,
		embeddingWeight:    DefaultEmbeddingWeight,
		useDescriptions:    true,
		parallelism:        DefaultParallelism,
		callTimeout:        DefaultCallTimeout,
		callRetries:        DefaultCallRetries,
	}
}

// Algorithm returns the clustering algorithm name.
func (t TaxonomyConfig) Algorithm() string { return t.algorithm }

// K returns the requested cluster count; zero means derived from corpus size.
func (t TaxonomyConfig) K() int { return t.k }

// MaxDocuments caps the documents clustered; zero means no cap.
func (t TaxonomyConfig) MaxDocuments() int { return t.maxDocuments }

// Epsilon returns the DBSCAN neighbourhood radius in cosine distance.
func (t TaxonomyConfig) Epsilon() float64 { return t.epsilon }

// MinPoints returns the DBSCAN core point threshold.
func (t TaxonomyConfig) MinPoints() int { return t.minPoints }

// SampleSize returns the members sampled per cluster for proposals.
func (t TaxonomyConfig) SampleSize() int { return t.sampleSize }

// TopN returns the maximum tags assigned per document.
func (t TaxonomyConfig) TopN() int { return t.topN }

// MinConfidence returns the assignment confidence floor.
func (t TaxonomyConfig) MinConfidence() float64 { return t.minConfidence }

// MaxClusterDistance returns the cosine distance beyond which a new document is unclustered.
func (t TaxonomyConfig) MaxClusterDistance() float64 { return t.maxClusterDistance }

// ClusterWeight returns the weight of cluster membership in confidence.
func (t TaxonomyConfig) ClusterWeight() float64 { return t.clusterWeight }

// EmbeddingWeight returns the weight of tag similarity in confidence.
func (t TaxonomyConfig) EmbeddingWeight() float64 { return t.embeddingWeight }

// UseDescriptions reports whether tag descriptions are embedded with names.
func (t TaxonomyConfig) UseDescriptions() bool { return t.useDescriptions }

// Parallelism returns the bounded fan-out for external calls.
func (t TaxonomyConfig) Parallelism() int { return t.parallelism }

// CallTimeout returns the per-call timeout for generation requests.
func (t TaxonomyConfig) CallTimeout() time.Duration { return t.callTimeout }

// CallRetries returns the retry budget for generation requests.
func (t TaxonomyConfig) CallRetries() int { return t.callRetries }

// TaxonomyOption is a functional option for TaxonomyConfig.
type TaxonomyOption func(*TaxonomyConfig)

// WithAlgorithm sets the clustering algorithm.
func WithAlgorithm(name string) TaxonomyOption {
	return func(t *TaxonomyConfig) { t.algorithm = strings.ToLower(name) }
}

// WithK sets the cluster count.
func WithK(k int) TaxonomyOption {
	return func(t *TaxonomyConfig) { t.k = k }
}

// WithMaxDocuments caps the clustered documents.
func WithMaxDocuments(n int) TaxonomyOption {
	return func(t *TaxonomyConfig) { t.maxDocuments = n }
}

// WithDensity sets the DBSCAN epsilon and min points.
func WithDensity(epsilon float64, minPoints int) TaxonomyOption {
	return func(t *TaxonomyConfig) {
		t.epsilon = epsilon
		t.minPoints = minPoints
	}
}

// WithSampleSize sets the proposal sample size.
func WithSampleSize(n int) TaxonomyOption {
	return func(t *TaxonomyConfig) { t.sampleSize = n }
}

// WithThresholds sets the assignment top-n and confidence floor.
func WithThresholds(topN int, minConfidence float64) TaxonomyOption {
	return func(t *TaxonomyConfig) {
		t.topN = topN
		t.minConfidence = minConfidence
	}
}

// WithMaxClusterDistance sets the new-document cluster distance cutoff.
func WithMaxClusterDistance(d float64) TaxonomyOption {
	return func(t *TaxonomyConfig) { t.maxClusterDistance = d }
}

// WithWeights sets the cluster and embedding weights.
func WithWeights(cluster, embedding float64) TaxonomyOption {
	return func(t *TaxonomyConfig) {
		t.clusterWeight = cluster
		t.embeddingWeight = embedding
	}
}

// WithUseDescriptions sets whether tag descriptions are embedded.
func WithUseDescriptions(use bool) TaxonomyOption {
	return func(t *TaxonomyConfig) { t.useDescriptions = use }
}

// WithParallelism sets the bounded fan-out.
func WithParallelism(n int) TaxonomyOption {
	return func(t *TaxonomyConfig) { t.parallelism = n }
}

// WithCallPolicy sets the per-call timeout and retry budget.
func WithCallPolicy(timeout time.Duration, retries int) TaxonomyOption {
	return func(t *TaxonomyConfig) {
		t.callTimeout = timeout
		t.callRetries = retries
	}
}

// NewTaxonomyConfigWithOptions creates a TaxonomyConfig with functional options.
func NewTaxonomyConfigWithOptions(opts ...TaxonomyOption) TaxonomyConfig {
	t := NewTaxonomyConfig()
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Validate checks every parameter before any phase writes.
func (t TaxonomyConfig) Validate() error {
	var errs []error
	if t.algorithm != "kmeans" && t.algorithm != "dbscan" {
		errs = append(errs, fmt.Errorf("%w: unknown clustering algorithm %q", ErrInvalidConfig, t.algorithm))
	}
	if t.k < 0 {
		errs = append(errs, fmt.Errorf("%w: k must not be negative", ErrInvalidConfig))
	}
	if t.maxDocuments < 0 {
		errs = append(errs, fmt.Errorf("%w: max documents must not be negative", ErrInvalidConfig))
	}
	if t.epsilon <= 0 || t.epsilon > 2 {
		errs = append(errs, fmt.Errorf("%w: epsilon must be in (0, 2]", ErrInvalidConfig))
	}
	if t.minPoints < 1 {
		errs = append(errs, fmt.Errorf("%w: min points must be at least 1", ErrInvalidConfig))
	}
	if t.sampleSize < 1 {
		errs = append(errs, fmt.Errorf("%w: sample size must be at least 1", ErrInvalidConfig))
	}
	if t.topN < 1 {
		errs = append(errs, fmt.Errorf("%w: top n must be at least 1", ErrInvalidConfig))
	}
	if t.minConfidence < 0 || t.minConfidence > 1 {
		errs = append(errs, fmt.Errorf("%w: min confidence must be in [0, 1]", ErrInvalidConfig))
	}
	if t.maxClusterDistance <= 0 || t.maxClusterDistance > 2 {
		errs = append(errs, fmt.Errorf("%w: max cluster distance must be in (0, 2]", ErrInvalidConfig))
	}
	if t.clusterWeight < 0 || t.embeddingWeight < 0 || t.clusterWeight+t.embeddingWeight == 0 {
		errs = append(errs, fmt.Errorf("%w: weights must be non-negative and not both zero", ErrInvalidConfig))
	}
	if t.parallelism < 1 {
		errs = append(errs, fmt.Errorf("%w: parallelism must be at least 1", ErrInvalidConfig))
	}
	if t.callTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: call timeout must be positive", ErrInvalidConfig))
	}
	if t.callRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: call retries must not be negative", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// ReindexConfig configures the periodic reprocess loop run by the server.
type ReindexConfig struct {
	enabled  bool
	interval time.Duration
}

// NewReindexConfig creates a disabled ReindexConfig.
func NewReindexConfig() ReindexConfig {
	return ReindexConfig{interval: DefaultReindexInterval}
}

// Enabled returns whether periodic reprocessing runs.
func (r ReindexConfig) Enabled() bool { return r.enabled }

// Interval returns the time between runs.
func (r ReindexConfig) Interval() time.Duration { return r.interval }

// WithEnabled returns a copy with the enabled flag set.
func (r ReindexConfig) WithEnabled(enabled bool) ReindexConfig {
	r.enabled = enabled
	return r
}

// WithInterval returns a copy with the interval set. Non-positive values
// keep the current interval.
func (r ReindexConfig) WithInterval(d time.Duration) ReindexConfig {
	if d > 0 {
		r.interval = d
	}
	return r
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host               string
	port               int
	dataDir            string
	dbURL              string
	logLevel           string
	logFormat          LogFormat
	apiKeys            []string
	embeddingEndpoint  *Endpoint
	enrichmentEndpoint *Endpoint
	documents          DocumentsConfig
	taxonomy           TaxonomyConfig
	httpCacheDir       string
	legacyLedgerPath   string
	reindex            ReindexConfig
	reportingInterval  time.Duration
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taxon"
	}
	return filepath.Join(home, ".taxon")
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:      DefaultHost,
		port:      DefaultPort,
		dataDir:   dataDir,
		dbURL:     "sqlite:///" + filepath.Join(dataDir, DefaultDBFile),
		logLevel:  DefaultLogLevel,
		logFormat: LogFormatPretty,
		apiKeys:   []string{},
		documents: NewDocumentsConfig(),
		taxonomy:  NewTaxonomyConfig(),
		reindex:   NewReindexConfig(),

		reportingInterval: DefaultReportingInterval,
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the keys accepted by the HTTP server.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// EmbeddingEndpoint returns the embedding endpoint config.
func (c AppConfig) EmbeddingEndpoint() *Endpoint { return c.embeddingEndpoint }

// EnrichmentEndpoint returns the text generation endpoint config.
func (c AppConfig) EnrichmentEndpoint() *Endpoint { return c.enrichmentEndpoint }

// Documents returns the document discovery config.
func (c AppConfig) Documents() DocumentsConfig { return c.documents }

// Taxonomy returns the taxonomy pipeline config.
func (c AppConfig) Taxonomy() TaxonomyConfig { return c.taxonomy }

// HTTPCacheDir returns the provider response cache directory, if any.
func (c AppConfig) HTTPCacheDir() string { return c.httpCacheDir }

// LegacyLedgerPath returns the legacy JSON ledger to import, if any.
func (c AppConfig) LegacyLedgerPath() string { return c.legacyLedgerPath }

// Reindex returns the periodic reprocess config.
func (c AppConfig) Reindex() ReindexConfig { return c.reindex }

// ReportingInterval returns the minimum time between progress log lines
// for one operation.
func (c AppConfig) ReportingInterval() time.Duration { return c.reportingInterval }

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// Validate checks the nested configuration sections.
func (c AppConfig) Validate() error {
	return errors.Join(c.documents.Validate(), c.taxonomy.Validate())
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		if c.dbURL == "" || strings.HasSuffix(c.dbURL, DefaultDBFile) {
			c.dbURL = "sqlite:///" + filepath.Join(dir, DefaultDBFile)
		}
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithEmbeddingEndpoint sets the embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = &e }
}

// WithEnrichmentEndpoint sets the text generation endpoint.
func WithEnrichmentEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.enrichmentEndpoint = &e }
}

// WithDocuments sets the document discovery config.
func WithDocuments(d DocumentsConfig) AppConfigOption {
	return func(c *AppConfig) { c.documents = d }
}

// WithTaxonomy sets the taxonomy pipeline config.
func WithTaxonomy(t TaxonomyConfig) AppConfigOption {
	return func(c *AppConfig) { c.taxonomy = t }
}

// WithHTTPCacheDir sets the provider response cache directory.
func WithHTTPCacheDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.httpCacheDir = dir }
}

// WithLegacyLedgerPath sets the legacy JSON ledger path.
func WithLegacyLedgerPath(path string) AppConfigOption {
	return func(c *AppConfig) { c.legacyLedgerPath = path }
}

// WithReindex sets the periodic reprocess config.
func WithReindex(r ReindexConfig) AppConfigOption {
	return func(c *AppConfig) { c.reindex = r }
}

// WithReportingInterval sets the progress log interval.
func WithReportingInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.reportingInterval = d }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	return NewAppConfig().Apply(opts...)
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// API keys are reported as a count.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("embedding_model", endpointModel(c.embeddingEndpoint)),
		slog.String("enrichment_model", endpointModel(c.enrichmentEndpoint)),
		slog.String("documents_root", c.documents.Root()),
		slog.String("algorithm", c.taxonomy.Algorithm()),
		slog.Int("top_n", c.taxonomy.TopN()),
		slog.Float64("min_confidence", c.taxonomy.MinConfidence()),
		slog.Int("api_keys_count", len(c.apiKeys)),
	}
}

func (c AppConfig) maskedDBURL() string {
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

func endpointModel(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	return e.Model()
}

// ParseList parses a comma-separated list, dropping blanks.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
