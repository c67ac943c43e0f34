// Package ollama provides a conversation service adapter using Ollama.
package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/librarian/internal/adapters/driven/httpjson"
	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

// Ensure ConversationService implements the interface.
var _ driven.ConversationService = (*ConversationService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second
)

// systemPrompt frames the search results for the model.
const systemPrompt = `You answer questions about the user's personal e-book library.
Use only the search results below. Cite books by title. If the results do not
answer the question, say so.

Search results:
%s`

// Config holds configuration for the Ollama conversation service.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model to use. Required.
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// ConversationService answers questions using Ollama's chat endpoint.
type ConversationService struct {
	api   *httpjson.Client
	model string
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// NewConversationService creates a new Ollama conversation service.
func NewConversationService(cfg Config) (*ConversationService, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: conversation model is required", domain.ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ConversationService{
		api:   httpjson.New("ollama", cfg.BaseURL, cfg.Timeout),
		model: cfg.Model,
	}, nil
}

// Exchange sends the question with its context and waits for the whole
// reply.
func (s *ConversationService) Exchange(ctx context.Context, req domain.ConversationRequest) (*domain.ConversationResponse, error) {
	chat := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, req.Context)},
			{Role: "user", Content: req.Question},
		},
	}

	var resp chatResponse
	if err := s.api.Post(ctx, "/api/chat", chat, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("ollama: %s", resp.Error)
	}

	model := resp.Model
	if model == "" {
		model = s.model
	}
	return &domain.ConversationResponse{
		Answer: strings.TrimSpace(resp.Message.Content),
		Model:  model,
	}, nil
}

// ModelName returns the chat model.
func (s *ConversationService) ModelName() string {
	return s.model
}

// Ping checks that the server answers.
func (s *ConversationService) Ping(ctx context.Context) error {
	return s.api.Get(ctx, "/api/tags", nil)
}

// Close releases resources.
func (s *ConversationService) Close() error {
	return nil
}
