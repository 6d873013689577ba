package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/helixml/taxon"
	"github.com/helixml/taxon/infrastructure/api"
	"github.com/helixml/taxon/internal/config"
)

const testAPIKey = "e2e-key"

var subjects = []string{"comet", "fern", "basalt"}

// keywordEmbedder places text on one axis per subject it mentions.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		v := make([]float64, len(subjects)+1)
		for j, s := range subjects {
			v[j] = float64(strings.Count(lower, s))
		}
		v[len(subjects)] = 0.1
		out[i] = v
	}
	return out, nil
}

// keywordGenerator proposes the subject mentioned most often in the prompt.
type keywordGenerator struct{}

func (keywordGenerator) Generate(_ context.Context, prompt, _ string) (string, error) {
	lower := strings.ToLower(prompt)
	best, count := subjects[0], -1
	for _, s := range subjects {
		if n := strings.Count(lower, s); n > count {
			best, count = s, n
		}
	}
	return fmt.Sprintf(`{"category": "Nature", "subcategory": %q, "tags": [{"name": %q, "description": "about %s"}]}`, best, best, best), nil
}

// TestServer wraps the API server for e2e testing.
type TestServer struct {
	t          *testing.T
	client     *taxon.Client
	httpServer *httptest.Server
	docs       string
}

// NewTestServer creates a client over a temporary SQLite database and a
// documents root holding two files per subject, and serves the API.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	data := t.TempDir()
	docs := t.TempDir()
	for i, s := range subjects {
		for j := range 2 {
			body := strings.Repeat(s+" notes and more "+s+". ", 3+i+j)
			if err := os.WriteFile(filepath.Join(docs, fmt.Sprintf("%s-%d.md", s, j)), []byte(body), 0o644); err != nil {
				t.Fatalf("write document: %v", err)
			}
		}
	}

	tax := config.NewTaxonomyConfigWithOptions(config.WithK(3), config.WithThresholds(2, 0.1))
	cfg := config.NewAppConfigWithOptions(
		config.WithDataDir(data),
		config.WithTaxonomy(tax),
		config.WithAPIKeys([]string{testAPIKey}),
	)

	client, err := taxon.New(
		taxon.WithConfig(cfg),
		taxon.WithSQLite(filepath.Join(data, "test.db")),
		taxon.WithDocumentsRoot(docs),
		taxon.WithEmbedder(keywordEmbedder{}),
		taxon.WithGenerator(keywordGenerator{}),
	)
	if err != nil {
		t.Fatalf("create taxon client: %v", err)
	}

	apiServer := api.NewAPIServer(client.Pipeline(), client.Config().Taxonomy(), cfg.APIKeys(), client.Logger())
	httpServer := httptest.NewServer(apiServer.Handler())

	ts := &TestServer{t: t, client: client, httpServer: httpServer, docs: docs}
	t.Cleanup(ts.Close)
	return ts
}

// URL returns the base URL of the test server.
func (ts *TestServer) URL() string {
	return ts.httpServer.URL
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	ts.httpServer.Close()
	_ = ts.client.Close()
}

// GET performs a GET request and returns the response.
func (ts *TestServer) GET(path string) *http.Response {
	ts.t.Helper()
	resp, err := http.Get(ts.URL() + path)
	if err != nil {
		ts.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// POST sends attributes wrapped in a JSON:API document. A non-empty key is
// sent as X-API-KEY.
func (ts *TestServer) POST(path, key string, attributes any) *http.Response {
	ts.t.Helper()
	body, err := json.Marshal(map[string]any{"data": map[string]any{"type": "request", "attributes": attributes}})
	if err != nil {
		ts.t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL()+path, bytes.NewReader(body))
	if err != nil {
		ts.t.Fatalf("create POST request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-KEY", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// DecodeJSON decodes the response body as JSON into v.
func (ts *TestServer) DecodeJSON(resp *http.Response, v any) {
	ts.t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		ts.t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and returns the response body as a string.
func (ts *TestServer) ReadBody(resp *http.Response) string {
	ts.t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		ts.t.Fatalf("read body: %v", err)
	}
	return string(body)
}

type resource struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

type listDoc struct {
	Data []resource     `json:"data"`
	Meta map[string]any `json:"meta"`
}

type singleDoc struct {
	Data resource `json:"data"`
}

func attributes[T any](t *testing.T, r resource) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(r.Attributes, &v); err != nil {
		t.Fatalf("decode attributes: %v", err)
	}
	return v
}
