package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingServer(t *testing.T, status int, count *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Call", strings.Repeat("i", int(n)))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, rt http.RoundTripper, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestCachingTransport_ReplaysSameRequest(t *testing.T) {
	var count atomic.Int32
	srv := countingServer(t, http.StatusOK, &count)
	transport, err := NewCachingTransport(t.TempDir(), srv.Client().Transport)
	require.NoError(t, err)

	first, body1 := post(t, transport, srv.URL+"/chat/completions", `1`)
	second, body2 := post(t, transport, srv.URL+"/chat/completions", `1`)

	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, `{"echo":1}`, body1)
	assert.Equal(t, body1, body2)
	assert.Equal(t, first.Header.Get("X-Call"), second.Header.Get("X-Call"))
	assert.Equal(t, http.StatusOK, second.StatusCode)
}

func TestCachingTransport_DifferentBodiesMiss(t *testing.T) {
	var count atomic.Int32
	srv := countingServer(t, http.StatusOK, &count)
	transport, err := NewCachingTransport(t.TempDir(), srv.Client().Transport)
	require.NoError(t, err)

	_, a := post(t, transport, srv.URL+"/embeddings", `1`)
	_, b := post(t, transport, srv.URL+"/embeddings", `2`)
	assert.Equal(t, int32(2), count.Load())
	assert.NotEqual(t, a, b)
}

func TestCachingTransport_FailuresNotCached(t *testing.T) {
	var count atomic.Int32
	srv := countingServer(t, http.StatusServiceUnavailable, &count)
	dir := t.TempDir()
	transport, err := NewCachingTransport(dir, srv.Client().Transport)
	require.NoError(t, err)

	post(t, transport, srv.URL+"/embeddings", `1`)
	post(t, transport, srv.URL+"/embeddings", `1`)
	assert.Equal(t, int32(2), count.Load())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCachingTransport_CorruptEntryFallsThrough(t *testing.T) {
	var count atomic.Int32
	srv := countingServer(t, http.StatusOK, &count)
	dir := t.TempDir()
	transport, err := NewCachingTransport(dir, srv.Client().Transport)
	require.NoError(t, err)

	url := srv.URL + "/embeddings"
	path := filepath.Join(dir, cacheKey(http.MethodPost, url, []byte(`1`))+".json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, body := post(t, transport, url, `1`)
	assert.Equal(t, `{"echo":1}`, body)
	assert.Equal(t, int32(1), count.Load())
}

func TestCachingTransport_WithProvider(t *testing.T) {
	fake := &fakeOpenAI{}
	srv := fake.server(t)
	transport, err := NewCachingTransport(t.TempDir(), nil)
	require.NoError(t, err)

	p := NewOpenAIProvider(OpenAIConfig{
		BaseURL:      srv.URL,
		MaxRetries:   -1,
		InitialDelay: time.Millisecond,
		Transport:    transport,
	})

	for range 3 {
		vectors, err := p.Embed(context.Background(), []string{"cached"})
		require.NoError(t, err)
		require.Len(t, vectors, 1)
	}
	assert.Equal(t, int64(1), fake.calls.Load())
}
