// Package v1 serves the taxon HTTP API.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/helixml/taxon/application/service"
	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/query"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/taxonomy"
	"github.com/helixml/taxon/infrastructure/api/jsonapi"
	"github.com/helixml/taxon/infrastructure/api/middleware"
	"github.com/helixml/taxon/infrastructure/api/v1/dto"
	"github.com/helixml/taxon/internal/config"
)

// Pipeline is the set of operations the API exposes.
type Pipeline interface {
	Reprocess(ctx context.Context, files []string) pipeline.Result
	RebuildIndex(ctx context.Context) pipeline.Result
	RebuildClusters(ctx context.Context, params service.BuildParams) pipeline.Result
	ProposeTaxonomy(ctx context.Context, sampleSize int) pipeline.Result
	NormalizeTaxonomy(ctx context.Context) pipeline.Result
	EmbedTags(ctx context.Context, useDescription bool) pipeline.Result
	AssignTags(ctx context.Context, topN int, minConfidence float64) pipeline.Result
	RebuildTaxonomy(ctx context.Context, params service.RebuildParams) []pipeline.Result
	TagNew(ctx context.Context, path string, params service.TagParams) (service.TagResult, error)
	Search(ctx context.Context, text string, k int) ([]domainservice.ChunkMatch, error)
	Taxonomy(ctx context.Context) (taxonomy.Taxonomy, error)
	Clusters(ctx context.Context) ([]cluster.Cluster, error)
	Assignments(ctx context.Context, options ...query.Option) ([]assignment.Assignment, error)
	CountAssignments(ctx context.Context, options ...query.Option) (int64, error)
	LastTaxonomyBuild(ctx context.Context) (time.Time, bool, error)
}

// decode reads a JSON:API request body. An empty body leaves the
// attributes at their zero value.
func decode[T any](req *http.Request) (T, error) {
	var body dto.Request[T]
	if req.Body == nil {
		return body.Data.Attributes, nil
	}
	err := json.NewDecoder(req.Body).Decode(&body)
	if errors.Is(err, io.EOF) {
		return body.Data.Attributes, nil
	}
	if err != nil {
		return body.Data.Attributes, middleware.NewAPIError(http.StatusBadRequest, "invalid request body", err)
	}
	return body.Data.Attributes, nil
}

// writeResult writes a phase result with a status derived from its kind.
func writeResult(w http.ResponseWriter, s *jsonapi.Serializer, result pipeline.Result) {
	middleware.WriteJSON(w, resultStatus(result), jsonapi.NewSingleResponse(s.PhaseResultResource(result)))
}

// writeResults writes a rebuild sequence. The status is that of the last
// phase run, which is the failing one when the rebuild stopped early.
func writeResults(w http.ResponseWriter, s *jsonapi.Serializer, results []pipeline.Result) {
	status := http.StatusOK
	if n := len(results); n > 0 {
		status = resultStatus(results[n-1])
	}
	middleware.WriteJSON(w, status, jsonapi.NewListResponse(s.PhaseResultResources(results)))
}

func resultStatus(result pipeline.Result) int {
	if f, ok := result.(pipeline.Failure); ok {
		return middleware.StatusForKind(f.Kind())
	}
	return http.StatusOK
}

func buildParams(defaults config.TaxonomyConfig, attrs dto.ClustersAttributes) service.BuildParams {
	params := service.BuildParamsFrom(defaults)
	if attrs.Algorithm != nil {
		params.Algorithm = *attrs.Algorithm
	}
	if attrs.K != nil {
		params.K = *attrs.K
	}
	if attrs.MaxDocuments != nil {
		params.MaxDocuments = *attrs.MaxDocuments
	}
	if attrs.Epsilon != nil {
		params.Epsilon = *attrs.Epsilon
	}
	if attrs.MinPoints != nil {
		params.MinPoints = *attrs.MinPoints
	}
	return params
}

func rebuildParams(defaults config.TaxonomyConfig, attrs dto.RebuildAttributes) service.RebuildParams {
	params := service.RebuildParamsFrom(defaults)
	params.Clusters = buildParams(defaults, attrs.ClustersAttributes)
	params.SampleSize = valueOr(attrs.SampleSize, params.SampleSize)
	params.UseDescriptions = valueOr(attrs.UseDescriptions, params.UseDescriptions)
	params.TopN = valueOr(attrs.TopN, params.TopN)
	params.MinConfidence = valueOr(attrs.MinConfidence, params.MinConfidence)
	return params
}

func tagParams(defaults config.TaxonomyConfig, attrs dto.TagDocumentAttributes) service.TagParams {
	params := service.TagParamsFrom(defaults)
	params.TopN = valueOr(attrs.TopN, params.TopN)
	params.MinConfidence = valueOr(attrs.MinConfidence, params.MinConfidence)
	params.MaxClusterDistance = valueOr(attrs.MaxClusterDistance, params.MaxClusterDistance)
	params.LLMRefine = attrs.Refine
	params.Persist = attrs.Persist
	return params
}

func valueOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
