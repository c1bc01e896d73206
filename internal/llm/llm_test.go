package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/cbning/internal/config"
)

type stubClient struct {
	calls int
	resp  string
	err   error
}

func (s *stubClient) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.resp, s.err
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	c, err := NewClient(ctx, config.LLMConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewClient(ctx, config.LLMConfig{Provider: "OpenAI", Model: "gpt-4o-mini", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewClient(ctx, config.LLMConfig{Provider: "ollama", Model: "llama3"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewClient(ctx, config.LLMConfig{Provider: "claude", Model: "claude-3-haiku", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &ClaudeClient{}, c)

	_, err = NewClient(ctx, config.LLMConfig{Provider: "watson"})
	assert.ErrorContains(t, err, "unsupported llm provider: watson")
}

func TestOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/v1", OllamaBaseURL(""))
	assert.Equal(t, "http://gpu:11434/v1", OllamaBaseURL("http://gpu:11434/"))
	assert.Equal(t, "http://gpu:11434/v1", OllamaBaseURL("http://gpu:11434/v1"))
}

func TestBreakerClient_PassesThrough(t *testing.T) {
	next := &stubClient{resp: "ok"}
	b := NewBreakerClient("test", next, config.Default().Breaker)

	out, err := b.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerClient_OpensAfterFailures(t *testing.T) {
	next := &stubClient{err: errors.New("provider down")}
	b := NewBreakerClient("test", next, config.BreakerConfig{
		MaxRequests:      1,
		IntervalSeconds:  60,
		TimeoutSeconds:   60,
		FailureThreshold: 0.5,
		MinRequests:      2,
	})

	for i := 0; i < 2; i++ {
		_, err := b.Generate(context.Background(), "hi")
		assert.ErrorContains(t, err, "provider down")
	}

	_, err := b.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, "open", b.State())
}

func TestBreakerClient_CancelledCallsDoNotTrip(t *testing.T) {
	next := &stubClient{err: context.Canceled}
	b := NewBreakerClient("test", next, config.BreakerConfig{
		MaxRequests: 1, IntervalSeconds: 60, TimeoutSeconds: 60, FailureThreshold: 0.5, MinRequests: 1,
	})

	for i := 0; i < 3; i++ {
		_, err := b.Generate(context.Background(), "hi")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 3, next.calls)
}

func chatServer(t *testing.T, reply string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Generate(t *testing.T) {
	t.Run("json mode", func(t *testing.T) {
		var seen map[string]any
		srv := chatServer(t, `{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"diff\":{}}"}}]}`, &seen)

		c, err := NewClient(context.Background(), config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k", BaseURL: srv.URL, JSONMode: true})
		require.NoError(t, err)

		out, err := c.Generate(context.Background(), "Reply with JSON")
		require.NoError(t, err)
		assert.Equal(t, `{"diff":{}}`, out)
		assert.Equal(t, map[string]any{"type": "json_object"}, seen["response_format"])
		assert.Equal(t, "gpt-4o-mini", seen["model"])
	})

	t.Run("plain text and no choices", func(t *testing.T) {
		var seen map[string]any
		srv := chatServer(t, `{"choices":[]}`, &seen)

		c := NewOpenAIClient("k", "llama3", srv.URL, 0)
		_, err := c.Generate(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrEmptyCompletion)
		assert.NotContains(t, seen, "response_format")
	})
}
