package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/portdesk/internal/config"
	"golang.org/x/time/rate"
)

const (
	defaultEmbeddingBatchSize = 100
	jinaBaseURL               = "https://api.jina.ai/v1"
)

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// EmbeddingService calls an OpenAI-compatible /embeddings endpoint.
type EmbeddingService struct {
	client     *resty.Client
	provider   string
	model      string
	baseURL    string
	apiKey     string
	dimensions int
	batchSize  int
	limiter    *rate.Limiter
}

// NewEmbeddingService builds the client. A missing API key is allowed; calls
// then fail with ErrEmbeddingUnavailable.
func NewEmbeddingService(cfg *config.EmbeddingConfig) *EmbeddingService {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" && cfg.Provider == "jina" {
		baseURL = jinaBaseURL
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultEmbeddingBatchSize
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	s := &EmbeddingService{
		client:     client,
		provider:   cfg.Provider,
		model:      cfg.Model,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		batchSize:  batch,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s
}

// Model returns the embedding model name.
func (s *EmbeddingService) Model() string {
	return s.model
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
	Task       string   `json:"task,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// EmbedBatch embeds the non-empty entries of texts, in order, in batches.
// Empty and whitespace-only entries are dropped; callers that need positional
// alignment must filter the same way before calling.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.apiKey == "" || s.baseURL == "" {
		return nil, ErrEmbeddingUnavailable
	}

	clean := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoEmbeddableText
	}

	out := make([][]float32, 0, len(clean))
	for start := 0; start < len(clean); start += s.batchSize {
		end := start + s.batchSize
		if end > len(clean) {
			end = len(clean)
		}
		vecs, err := s.call(ctx, clean[start:end], "retrieval.passage")
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", ErrEmbeddingBatchFailed, start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.apiKey == "" || s.baseURL == "" {
		return nil, ErrEmbeddingUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoEmbeddableText
	}
	vecs, err := s.call(ctx, []string{query}, "retrieval.query")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingBatchFailed, err)
	}
	return vecs[0], nil
}

func (s *EmbeddingService) call(ctx context.Context, input []string, task string) ([][]float32, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := embeddingRequest{Model: s.model, Input: input}
	if s.provider == "jina" {
		req.Task = task
		req.Dimensions = s.dimensions
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.baseURL + "/embeddings")
	if err != nil {
		return nil, fmt.Errorf("call embeddings API: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		switch {
		case resp.Error != nil && resp.Error.Message != "":
			return nil, fmt.Errorf("embeddings API error: %s", resp.Error.Message)
		case resp.Detail != "":
			return nil, fmt.Errorf("embeddings API error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("embeddings API error: status %d", httpResp.StatusCode())
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(input))
	}

	vecs := make([][]float32, len(input))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vecs[item.Index] = item.Embedding
	}
	return vecs, nil
}
