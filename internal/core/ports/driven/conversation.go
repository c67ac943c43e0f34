package driven

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// ConversationService answers a question given formatted search results.
// This is an optional service - when nil, ask is disabled.
// Implementations must honour ctx deadlines and cancellation.
type ConversationService interface {
	// Exchange sends one request and waits for the reply.
	Exchange(ctx context.Context, req domain.ConversationRequest) (*domain.ConversationResponse, error)

	// ModelName returns the model answering questions.
	ModelName() string

	// Close releases resources.
	Close() error
}
