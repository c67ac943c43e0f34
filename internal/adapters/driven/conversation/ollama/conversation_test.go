package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

func TestNewConversationService(t *testing.T) {
	_, err := NewConversationService(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	svc, err := NewConversationService(Config{Model: "llama3.2", BaseURL: "http://host:1/"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", svc.ModelName())
	assert.Equal(t, "http://host:1", svc.api.BaseURL())
	assert.NoError(t, svc.Close())
}

func TestExchange(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Model:   "llama3.2:latest",
			Message: chatMessage{Role: "assistant", Content: "  Try Moby Dick.\n"},
			Done:    true,
		})
	}))
	defer server.Close()

	svc, err := NewConversationService(Config{BaseURL: server.URL, Model: "llama3.2"})
	require.NoError(t, err)

	resp, err := svc.Exchange(context.Background(), domain.ConversationRequest{
		Question: "Which book has a whale?",
		Context:  "[1] Moby Dick by Herman Melville (similarity 0.91)\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "Try Moby Dick.", resp.Answer)
	assert.Equal(t, "llama3.2:latest", resp.Model)

	assert.Equal(t, "llama3.2", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "[1] Moby Dick")
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Which book has a whale?", got.Messages[1].Content)
}

func TestExchange_Errors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()
		svc, err := NewConversationService(Config{BaseURL: server.URL, Model: "missing"})
		require.NoError(t, err)

		_, err = svc.Exchange(context.Background(), domain.ConversationRequest{Question: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
		assert.Contains(t, err.Error(), "model not found")
		assert.ErrorIs(t, err, domain.ErrModelRejected)
	})

	t.Run("error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":"out of memory"}`))
		}))
		defer server.Close()
		svc, err := NewConversationService(Config{BaseURL: server.URL, Model: "m"})
		require.NoError(t, err)

		_, err = svc.Exchange(context.Background(), domain.ConversationRequest{Question: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of memory")
	})

	t.Run("deadline", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)
		svc, err := NewConversationService(Config{BaseURL: server.URL, Model: "m"})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = svc.Exchange(ctx, domain.ConversationRequest{Question: "q"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	svc, err := NewConversationService(Config{BaseURL: server.URL, Model: "m"})
	require.NoError(t, err)
	assert.NoError(t, svc.Ping(context.Background()))
}
