// Package openai embeds text through an OpenAI-compatible /embeddings API.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/librarian/internal/adapters/driven/httpjson"
	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// modelDimensions are the native sizes of the hosted models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API root. Change it for Azure OpenAI or another
	// compatible server.
	BaseURL string

	// Model is the embedding model (default: text-embedding-3-small).
	Model string

	// Timeout bounds one request (default: 60s).
	Timeout time.Duration

	// Dimensions shortens text-embedding-3 vectors. Zero keeps the
	// model's native size.
	Dimensions int
}

// EmbeddingService embeds chunks and queries with an OpenAI model.
type EmbeddingService struct {
	api        *httpjson.Client
	model      string
	dimensions int
	shortened  bool
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai: API key is required", domain.ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dims, native := modelDimensions[cfg.Model]
	if !native {
		dims = 1536
	}
	shortened := cfg.Dimensions > 0 && cfg.Dimensions != dims
	if shortened && !strings.HasPrefix(cfg.Model, "text-embedding-3") {
		return nil, fmt.Errorf("%w: openai: %s does not support %d dimensions", domain.ErrInvalidInput, cfg.Model, cfg.Dimensions)
	}
	if cfg.Dimensions > 0 {
		dims = cfg.Dimensions
	}

	return &EmbeddingService{
		api:        httpjson.New("openai", cfg.BaseURL, cfg.Timeout).WithHeader("Authorization", "Bearer "+cfg.APIKey),
		model:      cfg.Model,
		dimensions: dims,
		shortened:  shortened,
	}, nil
}

// Embed embeds a single query.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The reply is reordered by its
// index field, which the API does not guarantee to be sequential.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{Model: s.model, Input: texts, EncodingFormat: "float"}
	if s.shortened {
		req.Dimensions = s.dimensions
	}

	var resp embeddingResponse
	if err := s.api.Post(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("openai: %s", resp.Error.Message)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	seen := make([]bool, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || seen[d.Index] {
			return nil, fmt.Errorf("openai returned bad embedding index %d", d.Index)
		}
		seen[d.Index] = true
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping checks the key and that the model exists without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.api.Get(ctx, "/models/"+s.model, nil)
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
