package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helixml/taxon/domain/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenAI mimics the chat and embeddings endpoints. Embeddings are
// [len(text), index, 1]; chat echoes the last message.
type fakeOpenAI struct {
	calls      atomic.Int64
	failFirst  int64
	failStatus int
	emptyChat  bool
	lastSystem atomic.Value
}

func (f *fakeOpenAI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		if n <= f.failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.failStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/embeddings":
			var body struct {
				Input []string `json:"input"`
				Model string   `json:"model"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			data := make([]map[string]any, len(body.Input))
			// Answer in reverse to check the provider reorders by index.
			for i, text := range body.Input {
				data[len(body.Input)-1-i] = map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float64{float64(len(text)), float64(i), 1},
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   data,
				"model":  body.Model,
				"usage":  map[string]int{"prompt_tokens": len(body.Input), "total_tokens": len(body.Input)},
			})
		case "/chat/completions":
			var body struct {
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Messages[0].Role == "system" {
				f.lastSystem.Store(body.Messages[0].Content)
			}
			content := "echo: " + body.Messages[len(body.Messages)-1].Content
			if f.emptyChat {
				content = ""
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server, batchSize, retries int) *OpenAIProvider {
	return NewOpenAIProvider(OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		BatchSize:    batchSize,
	})
}

func TestOpenAIProvider_Generate(t *testing.T) {
	fake := &fakeOpenAI{}
	p := testProvider(fake.server(t), 0, -1)

	out, err := p.Generate(context.Background(), "label this", "you are a librarian")
	require.NoError(t, err)
	assert.Equal(t, "echo: label this", out)
	assert.Equal(t, "you are a librarian", fake.lastSystem.Load())
}

func TestOpenAIProvider_GenerateRetriesServerErrors(t *testing.T) {
	fake := &fakeOpenAI{failFirst: 2, failStatus: http.StatusServiceUnavailable}
	p := testProvider(fake.server(t), 0, 3)

	out, err := p.Generate(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
	assert.Equal(t, int64(3), fake.calls.Load())
}

func TestOpenAIProvider_GenerateClientErrorIsPermanent(t *testing.T) {
	fake := &fakeOpenAI{failFirst: 10, failStatus: http.StatusBadRequest}
	p := testProvider(fake.server(t), 0, 3)

	_, err := p.Generate(context.Background(), "hi", "")
	require.Error(t, err)
	assert.Equal(t, int64(1), fake.calls.Load())

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode())
	assert.False(t, perr.Temporary())
	assert.Equal(t, pipeline.KindInternal, pipeline.KindOf(err))
}

func TestOpenAIProvider_ExhaustedRetriesAreTransient(t *testing.T) {
	fake := &fakeOpenAI{failFirst: 10, failStatus: http.StatusTooManyRequests}
	p := testProvider(fake.server(t), 0, 1)

	_, err := p.Generate(context.Background(), "hi", "")
	require.Error(t, err)
	assert.Equal(t, int64(2), fake.calls.Load())

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.IsRateLimited())
	assert.True(t, pipeline.IsRetryable(err))
}

func TestOpenAIProvider_GenerateEmptyContent(t *testing.T) {
	fake := &fakeOpenAI{emptyChat: true}
	p := testProvider(fake.server(t), 0, 1)

	_, err := p.Generate(context.Background(), "hi", "")
	require.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, int64(2), fake.calls.Load())
}

func TestOpenAIProvider_EmbedBatches(t *testing.T) {
	fake := &fakeOpenAI{}
	p := testProvider(fake.server(t), 2, -1)

	vectors, err := p.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	assert.Equal(t, int64(3), fake.calls.Load())
	for i, v := range vectors {
		assert.Equal(t, float64(i+1), v[0], "vector %d out of order", i)
	}
}

func TestOpenAIProvider_EmbedEmpty(t *testing.T) {
	fake := &fakeOpenAI{}
	p := testProvider(fake.server(t), 0, -1)

	vectors, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, fake.calls.Load())
}

func TestOpenAIProvider_Unsupported(t *testing.T) {
	fake := &fakeOpenAI{}
	srv := fake.server(t)

	textOnly := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, WithTextOnly())
	_, err := textOnly.Embed(context.Background(), []string{"x"})
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	embedOnly := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, WithEmbeddingOnly())
	_, err = embedOnly.Generate(context.Background(), "x", "")
	require.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestOpenAIProvider_CancelledContext(t *testing.T) {
	fake := &fakeOpenAI{}
	p := testProvider(fake.server(t), 0, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Embed(ctx, []string{"x"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIProvider_DisabledRetriesMakeOneAttempt(t *testing.T) {
	fake := &fakeOpenAI{failFirst: 10, failStatus: http.StatusServiceUnavailable}
	p := testProvider(fake.server(t), 0, -1)

	_, err := p.Generate(context.Background(), "hi", "")
	require.Error(t, err)
	assert.Equal(t, int64(1), fake.calls.Load())
	assert.True(t, pipeline.IsRetryable(err), "the caller may still retry")
}
