package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloo-solutions/strom/internal/api/handlers"
	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) Converse(ctx context.Context, input service.ConversationInput) (*service.ConversationResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ConversationResult), args.Error(1)
}

type MockIngestionJobs struct {
	mock.Mock
}

func (m *MockIngestionJobs) Submit(ctx context.Context, in service.IngestDocumentInput) (*domain.IngestionJob, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestionJob), args.Error(1)
}

func (m *MockIngestionJobs) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestionJob), args.Error(1)
}

type noopIngester struct{}

func (noopIngester) IngestDocument(ctx context.Context, in service.IngestDocumentInput) (*service.IngestDocumentResult, error) {
	return &service.IngestDocumentResult{Filename: in.Filename}, nil
}

func setupRouter(conv *MockConversationService, jobs *MockIngestionJobs, health func(context.Context) error) http.Handler {
	return NewRouter(RouterConfig{
		ConversationHandler: handlers.NewConversationHandler(conv),
		IngestionHandler:    handlers.NewIngestionHandler(noopIngester{}, jobs, 0),
		HealthCheck:         health,
	})
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := setupRouter(new(MockConversationService), new(MockIngestionJobs), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_HealthEndpoint_Unavailable(t *testing.T) {
	router := setupRouter(new(MockConversationService), new(MockIngestionJobs), func(context.Context) error {
		return errors.New("connection refused")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_Conversation(t *testing.T) {
	conv := new(MockConversationService)
	conv.On("Converse", mock.Anything, service.ConversationInput{Message: "hello"}).
		Return(&service.ConversationResult{Answer: domain.FallbackAnswer()}, nil)
	router := setupRouter(conv, new(MockIngestionJobs), nil)

	req := httptest.NewRequest(http.MethodPost, "/agent/conversation", strings.NewReader(`{"message":"hello"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"response"`)
	conv.AssertExpectations(t)
}

func TestRouter_ConversationBodyCapped(t *testing.T) {
	conv := new(MockConversationService)
	router := setupRouter(conv, new(MockIngestionJobs), nil)

	body := `{"message":"` + strings.Repeat("a", int(maxJSONBodyBytes)) + `"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/agent/conversation", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	conv.AssertNotCalled(t, "Converse", mock.Anything, mock.Anything)
}

func TestRouter_JobRoute(t *testing.T) {
	jobs := new(MockIngestionJobs)
	jobs.On("Get", mock.Anything, "abc").Return(nil, domain.ErrIngestionJobNotFound)
	router := setupRouter(new(MockConversationService), jobs, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/jobs/abc", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	jobs.AssertExpectations(t)
}

func TestRouter_UnknownRoutes(t *testing.T) {
	router := setupRouter(new(MockConversationService), new(MockIngestionJobs), nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/knowledge", http.StatusNotFound},
		{http.MethodGet, "/agent/conversation", http.StatusMethodNotAllowed},
		{http.MethodGet, "/projects/create", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
