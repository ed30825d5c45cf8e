//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/strom/internal/api/handlers"
	"github.com/cloo-solutions/strom/internal/jobs"
	"github.com/cloo-solutions/strom/internal/logger"
	"github.com/cloo-solutions/strom/internal/openai"
	"github.com/cloo-solutions/strom/internal/repository"
	"github.com/cloo-solutions/strom/internal/server"
	"github.com/cloo-solutions/strom/internal/service"
	"github.com/cloo-solutions/strom/internal/testutil"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T         *testing.T
	Ctx       context.Context
	Pool      *pgxpool.Pool
	Chunks    *repository.DocumentChunkRepository
	ServerURL string
	// ChatReply is what the fake model answers with.
	ChatReply atomic.Value
	ChatCalls atomic.Int64
}

// SetupE2EEnv starts Postgres, a fake OpenAI-compatible model server and the
// API server wired the way stromd serve wires it.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	env := &E2ETestEnv{T: t, Ctx: ctx, Pool: pool}
	env.ChatReply.Store(`{"response":["No data."],"is_greeting":false,"exists_in_data":false,"exists_elsewhere":false,"relevant_projects":[],"sources":[]}`)

	model := httptest.NewServer(http.HandlerFunc(env.serveModel))
	t.Cleanup(model.Close)

	log := logger.Nop()
	encoder := openai.NewClientWithConfig(openai.Config{APIKey: "test", BaseURL: model.URL + "/v1"})
	endpoint := openai.NewChatClient("test", model.URL+"/v1", "")

	env.Chunks = repository.NewDocumentChunkRepository(pool, repository.TableDimension)
	ingestion := service.NewIngestionService(encoder, env.Chunks, nil, service.DefaultIngestionConfig(), log)
	retrieval := service.NewRetrievalService(encoder, env.Chunks, service.DefaultRetrievalConfig(), log)
	generator := service.NewGeneratorService(endpoint, service.DefaultGeneratorConfig(), log)
	conversation := service.NewConversationService(repository.NewConversationStore(pool), retrieval, generator,
		service.ConversationConfig{FreeMessageLimit: 2, MaxMessageChars: 4000}, log)

	runner := jobs.NewIngestionRunner(repository.NewIngestionJobRepository(pool), ingestion, 4, log)
	runnerCtx, cancel := context.WithCancel(ctx)
	go runner.Start(runnerCtx)
	t.Cleanup(func() {
		cancel()
	})

	api := httptest.NewServer(server.NewRouter(server.RouterConfig{
		Logger:              log,
		ConversationHandler: handlers.NewConversationHandler(conversation),
		IngestionHandler:    handlers.NewIngestionHandler(ingestion, runner, 0),
		HealthCheck:         pool.Ping,
	}))
	t.Cleanup(api.Close)
	env.ServerURL = api.URL

	return env
}

// serveModel fakes the embeddings and chat completions endpoints. Every text
// embeds to the same direction, so every stored chunk matches every query.
func (e *E2ETestEnv) serveModel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/embeddings"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{3, 4}}},
			"model":  "text-embedding-3-small",
		})
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		e.ChatCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": e.ChatReply.Load().(string)},
			}},
		})
	default:
		http.NotFound(w, r)
	}
}
