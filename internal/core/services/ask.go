package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/core/ports/driving"
)

// Ensure AskService implements the interface.
var _ driving.AskService = (*AskService)(nil)

// AskService answers questions over search results.
type AskService struct {
	search       driving.SearchService
	conversation driven.ConversationService
}

// NewAskService creates an ask service. conversation may be nil, in
// which case Ask returns domain.ErrConversationUnavailable.
func NewAskService(search driving.SearchService, conversation driven.ConversationService) *AskService {
	return &AskService{search: search, conversation: conversation}
}

// Ask searches for question and hands the formatted results to the
// conversation service. The results are returned alongside the answer.
func (s *AskService) Ask(ctx context.Context, question string, opts domain.SearchOptions) (*domain.ConversationResponse, []domain.SearchResult, error) {
	if s.conversation == nil {
		return nil, nil, domain.ErrConversationUnavailable
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}

	results, err := s.search.Search(ctx, question, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("search: %w", err)
	}

	resp, err := s.conversation.Exchange(ctx, domain.ConversationRequest{
		Question: question,
		Context:  domain.FormatContext(results),
	})
	if err != nil {
		return nil, results, fmt.Errorf("conversation: %w", err)
	}
	return resp, results, nil
}
