package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use an underscore delimiter (e.g. TAXONOMY_TOP_N).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.taxon
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/taxon.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of keys accepted by the HTTP server.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// EmbeddingEndpoint configures the embedding service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// EnrichmentEndpoint configures the text generation service.
	EnrichmentEndpoint EndpointEnv `envconfig:"ENRICHMENT_ENDPOINT"`

	// Documents configures discovery and chunking.
	Documents DocumentsEnv `envconfig:"DOCUMENTS"`

	// Taxonomy configures clustering, proposals and assignment.
	Taxonomy TaxonomyEnv `envconfig:"TAXONOMY"`

	// HTTPCacheDir caches provider POST responses on disk when set.
	// Env: HTTP_CACHE_DIR
	HTTPCacheDir string `envconfig:"HTTP_CACHE_DIR"`

	// LegacyLedgerPath points at a JSON ledger from an older install to import once.
	// Env: LEGACY_LEDGER_PATH
	LegacyLedgerPath string `envconfig:"LEGACY_LEDGER_PATH"`

	// Reindex configures the server's periodic reprocess loop.
	Reindex ReindexEnv `envconfig:"REINDEX"`

	// ReportingInterval is the minimum seconds between progress log lines.
	// Env: REPORTING_INTERVAL (default: 5)
	ReportingInterval float64 `envconfig:"REPORTING_INTERVAL" default:"5"`
}

// ReindexEnv holds the periodic reprocess settings.
type ReindexEnv struct {
	// Env: REINDEX_ENABLED (default: false)
	Enabled bool `envconfig:"ENABLED" default:"false"`

	// Env: REINDEX_INTERVAL seconds (default: 1800)
	Interval float64 `envconfig:"INTERVAL" default:"1800"`
}

// EndpointEnv holds environment configuration for an AI endpoint.
type EndpointEnv struct {
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// Env: *_MAX_TOKENS (default: 4000)
	MaxTokens int `envconfig:"MAX_TOKENS" default:"4000"`

	// MaxBatchSize is the maximum number of texts per embedding request.
	// Env: *_MAX_BATCH_SIZE (default: 16)
	MaxBatchSize int `envconfig:"MAX_BATCH_SIZE" default:"16"`

	// RequestsPerSecond paces calls; 0 disables pacing.
	// Env: *_REQUESTS_PER_SECOND (default: 5)
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"5"`

	// Env: *_BURST (default: 5)
	Burst int `envconfig:"BURST" default:"5"`
}

// DocumentsEnv holds environment configuration for document discovery.
type DocumentsEnv struct {
	// Env: DOCUMENTS_ROOT (default: .)
	Root string `envconfig:"ROOT" default:"."`

	// Include is a comma-separated list of doublestar globs.
	// Env: DOCUMENTS_INCLUDE
	Include string `envconfig:"INCLUDE"`

	// Exclude is a comma-separated list of doublestar globs.
	// Env: DOCUMENTS_EXCLUDE
	Exclude string `envconfig:"EXCLUDE"`

	// Env: DOCUMENTS_CHUNK_SIZE (default: 1500)
	ChunkSize int `envconfig:"CHUNK_SIZE" default:"1500"`

	// Env: DOCUMENTS_CHUNK_OVERLAP (default: 200)
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`
}

// TaxonomyEnv holds environment configuration for the taxonomy pipeline.
type TaxonomyEnv struct {
	// Env: TAXONOMY_ALGORITHM (default: kmeans)
	Algorithm string `envconfig:"ALGORITHM" default:"kmeans"`

	// K is the cluster count; 0 derives it from the corpus size.
	// Env: TAXONOMY_K (default: 0)
	K int `envconfig:"K" default:"0"`

	// Env: TAXONOMY_MAX_DOCUMENTS (default: 0, no cap)
	MaxDocuments int `envconfig:"MAX_DOCUMENTS" default:"0"`

	// Env: TAXONOMY_EPSILON (default: 0.35)
	Epsilon float64 `envconfig:"EPSILON" default:"0.35"`

	// Env: TAXONOMY_MIN_POINTS (default: 3)
	MinPoints int `envconfig:"MIN_POINTS" default:"3"`

	// Env: TAXONOMY_SAMPLE_SIZE (default: 5)
	SampleSize int `envconfig:"SAMPLE_SIZE" default:"5"`

	// Env: TAXONOMY_TOP_N (default: 5)
	TopN int `envconfig:"TOP_N" default:"5"`

	// Env: TAXONOMY_MIN_CONFIDENCE (default: 0.35)
	MinConfidence float64 `envconfig:"MIN_CONFIDENCE" default:"0.35"`

	// Env: TAXONOMY_MAX_CLUSTER_DISTANCE (default: 0.6)
	MaxClusterDistance float64 `envconfig:"MAX_CLUSTER_DISTANCE" default:"0.6"`

	// Env: TAXONOMY_CLUSTER_WEIGHT (default: 0.25)
	ClusterWeight float64 `envconfig:"CLUSTER_WEIGHT" default:"0.25"`

	// Env: TAXONOMY_EMBEDDING_WEIGHT (default: 0.75)
	EmbeddingWeight float64 `envconfig:"EMBEDDING_WEIGHT" default:"0.75"`

	// Env: TAXONOMY_USE_DESCRIPTIONS (default: true)
	UseDescriptions bool `envconfig:"USE_DESCRIPTIONS" default:"true"`

	// Env: TAXONOMY_PARALLELISM (default: 4)
	Parallelism int `envconfig:"PARALLELISM" default:"4"`

	// CallTimeout is the per-call timeout in seconds.
	// Env: TAXONOMY_CALL_TIMEOUT (default: 60)
	CallTimeout float64 `envconfig:"CALL_TIMEOUT" default:"60"`

	// Env: TAXONOMY_CALL_RETRIES (default: 3)
	CallRetries int `envconfig:"CALL_RETRIES" default:"3"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "TAXON" requires TAXON_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithDocuments(e.Documents.ToDocumentsConfig()),
		WithTaxonomy(e.Taxonomy.ToTaxonomyConfig()),
		WithReindex(NewReindexConfig().
			WithEnabled(e.Reindex.Enabled).
			WithInterval(seconds(e.Reindex.Interval))),
	}
	if e.ReportingInterval > 0 {
		opts = append(opts, WithReportingInterval(seconds(e.ReportingInterval)))
	}

	if e.Host != "" {
		opts = append(opts, WithHost(e.Host))
	}
	if e.Port != 0 {
		opts = append(opts, WithPort(e.Port))
	}
	if e.DataDir != "" {
		opts = append(opts, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		opts = append(opts, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		opts = append(opts, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		opts = append(opts, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.APIKeys != "" {
		opts = append(opts, WithAPIKeys(ParseList(e.APIKeys)))
	}
	if e.EmbeddingEndpoint.IsConfigured() {
		opts = append(opts, WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))
	}
	if e.EnrichmentEndpoint.IsConfigured() {
		opts = append(opts, WithEnrichmentEndpoint(e.EnrichmentEndpoint.ToEndpoint()))
	}
	if e.HTTPCacheDir != "" {
		opts = append(opts, WithHTTPCacheDir(e.HTTPCacheDir))
	}
	if e.LegacyLedgerPath != "" {
		opts = append(opts, WithLegacyLedgerPath(e.LegacyLedgerPath))
	}

	return NewAppConfigWithOptions(opts...)
}

// IsConfigured returns true if the endpoint has a model configured.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != ""
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithModel(e.Model),
		WithTimeout(seconds(e.Timeout)),
		WithMaxTokens(e.MaxTokens),
		WithMaxBatchSize(e.MaxBatchSize),
		WithRateLimit(e.RequestsPerSecond, e.Burst),
	}
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}
	return NewEndpointWithOptions(opts...)
}

// ToDocumentsConfig converts DocumentsEnv to DocumentsConfig.
func (d DocumentsEnv) ToDocumentsConfig() DocumentsConfig {
	cfg := NewDocumentsConfig().WithChunking(d.ChunkSize, d.ChunkOverlap)
	if d.Root != "" {
		cfg = cfg.WithRoot(d.Root)
	}
	if include := ParseList(d.Include); len(include) > 0 {
		cfg = cfg.WithInclude(include)
	}
	if exclude := ParseList(d.Exclude); len(exclude) > 0 {
		cfg = cfg.WithExclude(exclude)
	}
	return cfg
}

// ToTaxonomyConfig converts TaxonomyEnv to TaxonomyConfig.
func (t TaxonomyEnv) ToTaxonomyConfig() TaxonomyConfig {
	return NewTaxonomyConfigWithOptions(
		WithAlgorithm(t.Algorithm),
		WithK(t.K),
		WithMaxDocuments(t.MaxDocuments),
		WithDensity(t.Epsilon, t.MinPoints),
		WithSampleSize(t.SampleSize),
		WithThresholds(t.TopN, t.MinConfidence),
		WithMaxClusterDistance(t.MaxClusterDistance),
		WithWeights(t.ClusterWeight, t.EmbeddingWeight),
		WithUseDescriptions(t.UseDescriptions),
		WithParallelism(t.Parallelism),
		WithCallPolicy(seconds(t.CallTimeout), t.CallRetries),
	)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
