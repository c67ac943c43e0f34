package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

func TestClient_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/echo", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["say"]})
	}))
	defer srv.Close()

	c := New("test", srv.URL+"/v1/", time.Second).WithHeader("Authorization", "Bearer k")
	assert.Equal(t, srv.URL+"/v1", c.BaseURL())

	var out map[string]string
	require.NoError(t, c.Post(context.Background(), "/echo", map[string]string{"say": "hi"}, &out))
	assert.Equal(t, "hi", out["echo"])
}

func TestClient_Get_NoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("ignored"))
	}))
	defer srv.Close()

	assert.NoError(t, New("test", srv.URL, time.Second).Get(context.Background(), "/", nil))
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		body     string
		message  string
		rejected bool
	}{
		{"plain text", http.StatusNotFound, "model not found\n", "model not found", true},
		{"ollama shape", http.StatusBadRequest, `{"error":"bad input"}`, "bad input", true},
		{"openai shape", http.StatusUnauthorized, `{"error":{"message":"invalid key","type":"auth"}}`, "invalid key", true},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, "slow down", false},
		{"timeout", http.StatusRequestTimeout, "", "", false},
		{"server error", http.StatusBadGateway, "upstream", "upstream", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New("svc", srv.URL, time.Second).Post(context.Background(), "/", struct{}{}, &struct{}{})
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, tt.message, se.Message)
			assert.Equal(t, tt.rejected, errors.Is(err, domain.ErrModelRejected))
			assert.Contains(t, err.Error(), "svc: status")
		})
	}
}

func TestClient_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := New("svc", srv.URL, time.Second).Get(context.Background(), "/", &out)
	assert.ErrorContains(t, err, "svc: decoding response")
}

func TestClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := New("svc", srv.URL, time.Minute).Get(ctx, "/", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
