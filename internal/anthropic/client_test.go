package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{APIKey: "sk-ant-test", BaseURL: srv.URL + "/", Model: "claude-test"})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Model())
	assert.Equal(t, DefaultBaseURL, client.baseURL)
}

func TestClient_Complete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		assert.Equal(t, "be careful", req.System)
		assert.Equal(t, 300, req.MaxTokens)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.3, *req.Temperature, 1e-9)
		require.NotNil(t, req.TopP)
		assert.InDelta(t, 0.9, *req.TopP, 1e-9)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"response\":"},{"type":"tool_use"},{"type":"text","text":"[\"ok\"]}"}],"stop_reason":"end_turn"}`))
	})

	out, err := client.Complete(context.Background(), service.CompletionRequest{
		System:      "be careful",
		User:        "question",
		Temperature: 0.3,
		MaxTokens:   300,
		TopP:        0.9,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"response":["ok"]}`, out)
}

func TestClient_Complete_DefaultsMaxTokensAndOmitsTopP(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, DefaultMaxTokens, req["max_tokens"])
		assert.NotContains(t, req, "top_p")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hi"}]}`))
	})

	out, err := client.Complete(context.Background(), service.CompletionRequest{User: "q", TopP: 1})

	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestClient_Complete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "overloaded", status: 529, transient: true},
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true},
		{name: "server error", status: http.StatusInternalServerError, transient: true},
		{name: "request timeout", status: http.StatusRequestTimeout, transient: true},
		{name: "unauthorized", status: http.StatusUnauthorized, transient: false},
		{name: "bad request", status: http.StatusBadRequest, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"some_error","message":"nope"}}`))
			})

			_, err := client.Complete(context.Background(), service.CompletionRequest{User: "q"})

			require.Error(t, err)
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, tt.transient, domain.Code(err) == domain.ErrCodeGenerationTransport)
		})
	}
}

func TestClient_Complete_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: url})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), service.CompletionRequest{User: "q"})

	assert.ErrorIs(t, err, domain.ErrGenerationTransport)
}

func TestClient_Complete_NoText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	})

	_, err := client.Complete(context.Background(), service.CompletionRequest{User: "q"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrGenerationTransport)
}
