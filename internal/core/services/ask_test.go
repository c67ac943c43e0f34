package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

type fakeConversation struct {
	got domain.ConversationRequest
	err error
}

func (c *fakeConversation) Exchange(_ context.Context, req domain.ConversationRequest) (*domain.ConversationResponse, error) {
	c.got = req
	if c.err != nil {
		return nil, c.err
	}
	return &domain.ConversationResponse{Answer: "Read Alpha.", Model: "fake"}, nil
}

func (c *fakeConversation) ModelName() string { return "fake" }
func (c *fakeConversation) Close() error      { return nil }

func TestAskService_Ask(t *testing.T) {
	lib, embedder := seedSearchLibrary(t)
	search := NewSearchService(embedder, lib.index, lib.store.ChunkStore(), testSearchConfig(), nil)
	conv := &fakeConversation{}
	svc := NewAskService(search, conv)

	resp, results, err := svc.Ask(context.Background(), "  white whale ", domain.SearchOptions{Limit: 1, MinSimilarity: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "Read Alpha.", resp.Answer)
	require.Len(t, results, 1)
	assert.Equal(t, "white whale", conv.got.Question)
	assert.Equal(t, domain.FormatContext(results), conv.got.Context)
	assert.Contains(t, conv.got.Context, "[1] Alpha by Anon")
}

func TestAskService_Unavailable(t *testing.T) {
	lib, embedder := seedSearchLibrary(t)
	search := NewSearchService(embedder, lib.index, lib.store.ChunkStore(), testSearchConfig(), nil)

	_, _, err := NewAskService(search, nil).Ask(context.Background(), "white whale", domain.SearchOptions{Limit: 1})
	assert.ErrorIs(t, err, domain.ErrConversationUnavailable)
}

func TestAskService_Errors(t *testing.T) {
	lib, embedder := seedSearchLibrary(t)
	search := NewSearchService(embedder, lib.index, lib.store.ChunkStore(), testSearchConfig(), nil)
	ctx := context.Background()

	_, _, err := NewAskService(search, &fakeConversation{}).Ask(ctx, "  ", domain.SearchOptions{Limit: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = NewAskService(search, &fakeConversation{}).Ask(ctx, "white whale", domain.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	boom := errors.New("model overloaded")
	_, results, err := NewAskService(search, &fakeConversation{err: boom}).Ask(ctx, "white whale", domain.SearchOptions{Limit: 2})
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, results)
}
