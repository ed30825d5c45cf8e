package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestClient_Encode_NormalizesAndPads(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{Dimension: 8})

	ctx := context.Background()
	mockAPI.On("CreateEmbeddings", ctx, "solar farm").Return([]float32{3, 4}, nil)

	embedding, err := client.Encode(ctx, "solar farm")

	require.NoError(t, err)
	assert.Len(t, embedding, 8)
	assert.InDelta(t, 0.6, embedding[0], 1e-6)
	assert.InDelta(t, 0.8, embedding[1], 1e-6)
	for _, x := range embedding[2:] {
		assert.Zero(t, x)
	}
	assert.InDelta(t, 1.0, norm(embedding), 1e-6)
	mockAPI.AssertExpectations(t)
}

func TestClient_Encode_Truncates(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{Dimension: 2})

	raw := []float32{1, 1, 1, 1}
	mockAPI.On("CreateEmbeddings", mock.Anything, "text").Return(raw, nil)

	embedding, err := client.Encode(context.Background(), "text")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, embedding)
}

func TestClient_Encode_Deterministic(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{})
	mockAPI.On("CreateEmbeddings", mock.Anything, "same").Return([]float32{0.1, 0.2, 0.3}, nil)

	a, err := client.Encode(context.Background(), "same")
	require.NoError(t, err)
	b, err := client.Encode(context.Background(), "same")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimension)
}

func TestClient_Encode_EmptyText(t *testing.T) {
	client := NewClient("")

	embedding, err := client.Encode(context.Background(), "  ")

	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_Encode_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{})

	mockAPI.On("CreateEmbeddings", mock.Anything, "Test text").Return(nil, errors.New("API rate limit exceeded"))

	embedding, err := client.Encode(context.Background(), "Test text")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "failed to create embedding")
}

func TestClient_Encode_EmptyVector(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{})
	mockAPI.On("CreateEmbeddings", mock.Anything, "x").Return([]float32{}, nil)

	_, err := client.Encode(context.Background(), "x")

	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestClient_Encode_RateLimiterHonorsContext(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{RequestsPerSecond: 0.001})
	mockAPI.On("CreateEmbeddings", mock.Anything, "x").Return([]float32{1}, nil).Once()

	_, err := client.Encode(context.Background(), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Encode(ctx, "x")

	assert.Error(t, err)
	mockAPI.AssertNumberOfCalls(t, "CreateEmbeddings", 1)
}

func TestNormalize_ZeroVector(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestNewClientWithConfig(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test-api-key", Dimension: 512})

	assert.NotNil(t, client.api)
	assert.Equal(t, string(DefaultEmbeddingModel), client.Model())
	assert.Equal(t, 512, client.Dimension())
	assert.Nil(t, client.limiter)
}

func TestOpenAIAdapter_CustomBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "custom-embed", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0,2]}],"model":"custom-embed"}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", EmbeddingModel: "custom-embed", Dimension: 3})

	embedding, err := client.Encode(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, embedding)
}
