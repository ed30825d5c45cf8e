package openai

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

func chatServer(t *testing.T, status int, body string, inspect func(map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if inspect != nil {
			inspect(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestChatClient_Complete(t *testing.T) {
	srv := chatServer(t, http.StatusOK,
		`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"response\":[\"ok\"]}"},"finish_reason":"stop"}]}`,
		func(req map[string]any) {
			assert.Equal(t, "gpt-test", req["model"])
			assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
			assert.EqualValues(t, 256, req["max_tokens"])
			messages := req["messages"].([]any)
			require.Len(t, messages, 2)
			assert.Equal(t, "system", messages[0].(map[string]any)["role"])
			assert.Equal(t, "question", messages[1].(map[string]any)["content"])
		})
	defer srv.Close()

	client := NewChatClient("sk-test", srv.URL+"/v1", "gpt-test")
	out, err := client.Complete(context.Background(), service.CompletionRequest{
		System:      "be brief",
		User:        "question",
		Temperature: 0.3,
		MaxTokens:   256,
		TopP:        1,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"response":["ok"]}`, out)
}

func TestChatClient_Complete_ServerErrorIsTransient(t *testing.T) {
	srv := chatServer(t, http.StatusInternalServerError, `{"error":{"message":"overloaded","type":"server_error"}}`, nil)
	defer srv.Close()

	_, err := NewChatClient("sk-test", srv.URL+"/v1", "").Complete(context.Background(), service.CompletionRequest{User: "q"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGenerationTransport)
}

func TestChatClient_Complete_RateLimitIsTransient(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests"}}`, nil)
	defer srv.Close()

	_, err := NewChatClient("sk-test", srv.URL+"/v1", "").Complete(context.Background(), service.CompletionRequest{User: "q"})

	assert.ErrorIs(t, err, domain.ErrGenerationTransport)
}

func TestChatClient_Complete_BadRequestIsPermanent(t *testing.T) {
	srv := chatServer(t, http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request_error"}}`, nil)
	defer srv.Close()

	_, err := NewChatClient("sk-test", srv.URL+"/v1", "").Complete(context.Background(), service.CompletionRequest{User: "q"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrGenerationTransport)
	assert.Contains(t, err.Error(), "status 400")
}

func TestChatClient_Complete_NoChoices(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"id":"c1","object":"chat.completion","choices":[]}`, nil)
	defer srv.Close()

	_, err := NewChatClient("sk-test", srv.URL+"/v1", "").Complete(context.Background(), service.CompletionRequest{User: "q"})

	assert.Error(t, err)
}
