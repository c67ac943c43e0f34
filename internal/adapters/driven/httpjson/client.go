// Package httpjson is the JSON-over-HTTP plumbing shared by the embedding
// and conversation adapters.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

const (
	// maxResponseBytes bounds a decoded reply. A batch of 32 vectors of
	// 3072 floats is a few megabytes of JSON.
	maxResponseBytes = 64 << 20

	// maxErrorBytes bounds the body quoted in a StatusError.
	maxErrorBytes = 512
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Service string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Code, e.Message)
}

// Unwrap reports client errors other than timeouts and rate limits as
// domain.ErrModelRejected.
func (e *StatusError) Unwrap() error {
	if e.Rejected() {
		return domain.ErrModelRejected
	}
	return nil
}

// Rejected reports whether retrying the same request cannot succeed.
func (e *StatusError) Rejected() bool {
	switch e.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Code >= 400 && e.Code < 500
}

// Client calls one JSON API.
type Client struct {
	service string
	baseURL string
	header  http.Header
	http    *http.Client
}

// New creates a client for baseURL. service names the API in errors.
func New(service, baseURL string, timeout time.Duration) *Client {
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  http.Header{},
		http:    &http.Client{Timeout: timeout},
	}
}

// WithHeader sets a header sent on every request.
func (c *Client) WithHeader(key, value string) *Client {
	c.header.Set(key, value)
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends in as JSON to path and decodes the reply into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", c.service, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

// Get requests path and decodes the reply into out. A nil out only
// checks the status.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, http.NoBody, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", c.service, err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", c.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return &StatusError{Service: c.service, Code: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", c.service, err)
	}
	return nil
}

// errorMessage pulls the message out of the error shapes used by Ollama
// and OpenAI-compatible servers, falling back to the raw text.
func errorMessage(raw []byte) string {
	var shaped struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &shaped) == nil && len(shaped.Error) > 0 {
		var text string
		if json.Unmarshal(shaped.Error, &text) == nil {
			return text
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
