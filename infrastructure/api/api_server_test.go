package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helixml/taxon/domain/document"
	"github.com/helixml/taxon/domain/pipeline"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/domain/taxonomy"
	"github.com/helixml/taxon/infrastructure/api"
	v1 "github.com/helixml/taxon/infrastructure/api/v1"
	"github.com/helixml/taxon/internal/config"
)

// stubPipeline implements the handful of operations these tests reach.
type stubPipeline struct {
	v1.Pipeline
	rebuilds int
}

func (s *stubPipeline) RebuildIndex(context.Context) pipeline.Result {
	s.rebuilds++
	return pipeline.Succeeded(pipeline.NewTally(task.OperationRebuildIndex).Summary())
}

func (s *stubPipeline) Taxonomy(context.Context) (taxonomy.Taxonomy, error) {
	return taxonomy.NewTaxonomy(nil, []taxonomy.Tag{taxonomy.NewTag("stars", "")}, nil), nil
}

func (s *stubPipeline) LastTaxonomyBuild(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (s *stubPipeline) Search(context.Context, string, int) ([]domainservice.ChunkMatch, error) {
	return []domainservice.ChunkMatch{
		domainservice.NewChunkMatch(document.NewChunk("a.md", 0, 1, "stars", nil), 0.5),
	}, nil
}

func TestAPIServer_ReadsOpen_WritesProtected(t *testing.T) {
	stub := &stubPipeline{}
	server := api.NewAPIServer(stub, config.NewTaxonomyConfig(), []string{"test-secret-key"}, nil)
	handler := server.Handler()

	serve := func(method, path, body, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if key != "" {
			req.Header.Set("X-API-KEY", key)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("health check", func(t *testing.T) {
		w := serve(http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("GET taxonomy without key", func(t *testing.T) {
		w := serve(http.MethodGet, "/api/v1/taxonomy", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("POST search without key", func(t *testing.T) {
		w := serve(http.MethodPost, "/api/v1/search", `{"data":{"attributes":{"query":"stars"}}}`, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("POST rebuild index without key", func(t *testing.T) {
		w := serve(http.MethodPost, "/api/v1/index/rebuild", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, 0, stub.rebuilds)
	})

	t.Run("POST rebuild index with wrong key", func(t *testing.T) {
		w := serve(http.MethodPost, "/api/v1/index/rebuild", "", "nope")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("POST rebuild index with key", func(t *testing.T) {
		w := serve(http.MethodPost, "/api/v1/index/rebuild", "", "test-secret-key")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, stub.rebuilds)
	})
}

func TestAPIServer_NoKeysDisablesProtection(t *testing.T) {
	stub := &stubPipeline{}
	handler := api.NewAPIServer(stub, config.NewTaxonomyConfig(), nil, nil).Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, stub.rebuilds)
}

func TestAPIServer_ShutdownBeforeListen(t *testing.T) {
	server := api.NewAPIServer(&stubPipeline{}, config.NewTaxonomyConfig(), nil, nil)
	assert.NoError(t, server.Shutdown(context.Background()))
}
