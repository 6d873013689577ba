package e2e_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phaseAttrs struct {
	Operation string         `json:"operation"`
	OK        bool           `json:"ok"`
	Kind      string         `json:"kind"`
	Processed int            `json:"processed"`
	Counts    map[string]int `json:"counts"`
}

type assignmentAttrs struct {
	DocumentID string  `json:"document_id"`
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

type chunkAttrs struct {
	SourceFile string  `json:"source_file"`
	Score      float64 `json:"score"`
}

type documentTagsAttrs struct {
	ClusterID *int              `json:"cluster_id"`
	Tags      []assignmentAttrs `json:"tags"`
	Persisted bool              `json:"persisted"`
}

func TestPipeline_EndToEnd(t *testing.T) {
	ts := NewTestServer(t)

	resp := ts.POST("/api/v1/index/reprocess", testAPIKey, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reprocess singleDoc
	ts.DecodeJSON(resp, &reprocess)
	phase := attributes[phaseAttrs](t, reprocess.Data)
	assert.True(t, phase.OK)
	assert.Equal(t, 6, phase.Processed)

	resp = ts.POST("/api/v1/taxonomy/rebuild", testAPIKey, map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rebuild listDoc
	ts.DecodeJSON(resp, &rebuild)
	require.Len(t, rebuild.Data, 5)
	for _, r := range rebuild.Data {
		assert.True(t, attributes[phaseAttrs](t, r).OK, r.ID)
	}

	resp = ts.GET("/api/v1/taxonomy")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tags listDoc
	ts.DecodeJSON(resp, &tags)
	var names []string
	for _, r := range tags.Data {
		names = append(names, r.ID)
	}
	assert.ElementsMatch(t, subjects, names)

	resp = ts.GET("/api/v1/tags/assignments?document=fern-1.md")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var assigned listDoc
	ts.DecodeJSON(resp, &assigned)
	require.NotEmpty(t, assigned.Data)
	assert.Equal(t, "fern", attributes[assignmentAttrs](t, assigned.Data[0]).Tag)

	resp = ts.POST("/api/v1/search", "", map[string]any{"query": "basalt", "limit": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found listDoc
	ts.DecodeJSON(resp, &found)
	require.Len(t, found.Data, 2)
	assert.Contains(t, attributes[chunkAttrs](t, found.Data[0]).SourceFile, "basalt")
}

func TestPipeline_TagNewDocument(t *testing.T) {
	ts := NewTestServer(t)

	require.Equal(t, http.StatusOK, ts.POST("/api/v1/index/reprocess", testAPIKey, map[string]any{}).StatusCode)
	require.Equal(t, http.StatusOK, ts.POST("/api/v1/taxonomy/rebuild", testAPIKey, map[string]any{}).StatusCode)

	resp := ts.POST("/api/v1/tags/document", testAPIKey, map[string]any{"path": "comet-1.md"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tagged singleDoc
	ts.DecodeJSON(resp, &tagged)
	result := attributes[documentTagsAttrs](t, tagged.Data)
	require.NotNil(t, result.ClusterID)
	require.NotEmpty(t, result.Tags)
	assert.Equal(t, "comet", result.Tags[0].Tag)
	assert.False(t, result.Persisted)
}

func TestPipeline_AssignBeforeRebuildIsIntegrityError(t *testing.T) {
	ts := NewTestServer(t)

	resp := ts.POST("/api/v1/taxonomy/assign", testAPIKey, map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = ts.ReadBody(resp)
}

func TestPipeline_WritesNeedAPIKey(t *testing.T) {
	ts := NewTestServer(t)

	resp := ts.POST("/api/v1/index/reprocess", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = ts.ReadBody(resp)

	resp = ts.GET("/api/v1/taxonomy")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = ts.ReadBody(resp)
}
