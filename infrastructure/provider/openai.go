package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults for OpenAIProvider.
const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultBatchSize      = 16
)

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
	InitialDelay   time.Duration
	BackoffFactor  float64
	MaxTokens      int
	BatchSize      int
	Transport      http.RoundTripper
}

// OpenAIProvider implements text generation and batched embedding against
// an OpenAI-compatible API.
type OpenAIProvider struct {
	client            *openai.Client
	chatModel         string
	embeddingModel    string
	maxRetries        int
	initialDelay      time.Duration
	backoffFactor     float64
	maxTokens         int
	batchSize         int
	supportsText      bool
	supportsEmbedding bool
	logger            *slog.Logger
}

// OpenAIOption is a functional option for OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithTextOnly disables embeddings.
func WithTextOnly() OpenAIOption {
	return func(p *OpenAIProvider) { p.supportsEmbedding = false }
}

// WithEmbeddingOnly disables text generation.
func WithEmbeddingOnly() OpenAIOption {
	return func(p *OpenAIProvider) { p.supportsText = false }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) OpenAIOption {
	return func(p *OpenAIProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewOpenAIProvider creates a provider from configuration. Zero values fall
// back to defaults; a negative MaxRetries disables retries.
func NewOpenAIProvider(cfg OpenAIConfig, opts ...OpenAIOption) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 || cfg.Transport != nil {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport}
	}

	p := &OpenAIProvider{
		client:            openai.NewClientWithConfig(config),
		chatModel:         valueOr(cfg.ChatModel, DefaultChatModel),
		embeddingModel:    valueOr(cfg.EmbeddingModel, DefaultEmbeddingModel),
		maxRetries:        cfg.MaxRetries,
		initialDelay:      cfg.InitialDelay,
		backoffFactor:     cfg.BackoffFactor,
		maxTokens:         cfg.MaxTokens,
		batchSize:         cfg.BatchSize,
		supportsText:      true,
		supportsEmbedding: true,
		logger:            slog.Default(),
	}
	if p.maxRetries == 0 {
		p.maxRetries = 5
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if p.initialDelay <= 0 {
		p.initialDelay = 2 * time.Second
	}
	if p.backoffFactor <= 0 {
		p.backoffFactor = 2.0
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// SupportsTextGeneration reports whether Generate is available.
func (p *OpenAIProvider) SupportsTextGeneration() bool { return p.supportsText }

// SupportsEmbedding reports whether Embed is available.
func (p *OpenAIProvider) SupportsEmbedding() bool { return p.supportsEmbedding }

// Generate runs one chat completion with an optional system message.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt, system string) (string, error) {
	if !p.supportsText {
		return "", ErrUnsupportedOperation
	}

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:    p.chatModel,
		Messages: messages,
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}

	var content string
	err := p.withRetry(ctx, "generate", func() error {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return ErrEmptyResponse
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", p.wrapError("generate", err)
	}
	return content, nil
}

// Embed returns one vector per text, calling the endpoint in batches.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if !p.supportsEmbedding {
		return nil, ErrUnsupportedOperation
	}

	result := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		vectors, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	err := p.withRetry(ctx, "embed", func() error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		// Routing providers answer 200 with an empty body when every
		// upstream is down.
		if len(resp.Data) == 0 && string(resp.Model) == "" && resp.Usage.TotalTokens == 0 {
			return fmt.Errorf("%w: no embedding data, model or usage", errUpstreamProviderFailure)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), len(texts))
		}
		return nil
	})
	if err != nil {
		return nil, p.wrapError("embed", err)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float64, len(data))
	for i, d := range data {
		vectors[i] = make([]float64, len(d.Embedding))
		for j, v := range d.Embedding {
			vectors[i][j] = float64(v)
		}
	}
	return vectors, nil
}

// withRetry executes fn with exponential backoff.
func (p *OpenAIProvider) withRetry(ctx context.Context, operation string, fn func() error) error {
	delay := p.initialDelay
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < p.maxRetries {
			p.logger.Warn("provider call failed, retrying",
				slog.String("operation", operation),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * p.backoffFactor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable determines if an error should be retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errEmbeddingCountMismatch) || errors.Is(err, ErrEmptyResponse) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode >= http.StatusInternalServerError ||
			reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// wrapError wraps an OpenAI error into a ProviderError.
func (p *OpenAIProvider) wrapError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return NewProviderError(operation, 0, err.Error(), err)
}
