package driving

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// AskService answers a question using search results as context.
type AskService interface {
	// Ask searches for question and passes the results to the conversation service.
	Ask(ctx context.Context, question string, opts domain.SearchOptions) (*domain.ConversationResponse, []domain.SearchResult, error)
}
