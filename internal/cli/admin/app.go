package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/strom/internal/anthropic"
	"github.com/cloo-solutions/strom/internal/cache"
	"github.com/cloo-solutions/strom/internal/config"
	"github.com/cloo-solutions/strom/internal/database"
	"github.com/cloo-solutions/strom/internal/logger"
	"github.com/cloo-solutions/strom/internal/openai"
	"github.com/cloo-solutions/strom/internal/qdrant"
	"github.com/cloo-solutions/strom/internal/repository"
	"github.com/cloo-solutions/strom/internal/service"
	"github.com/cloo-solutions/strom/internal/storage"
	"github.com/cloo-solutions/strom/internal/telemetry"
)

// app holds the components shared by serve, ingest and ask.
type app struct {
	cfg  *config.Config
	log  *logger.Logger
	pool *pgxpool.Pool

	ingestion    *service.IngestionService
	retrieval    *service.RetrievalService
	generator    *service.GeneratorService
	conversation *service.ConversationService
	jobs         *repository.IngestionJobRepository

	ready   []func(ctx context.Context) error
	closers []func()
}

type appOptions struct {
	// requireGeneration fails setup when no language model is configured.
	requireGeneration bool
	migrate           bool
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewWithOptions(logger.Options{Mode: cfg.LogMode, Level: cfg.LogLevel})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func initTelemetry(cfg *config.Config, log *logger.Logger, release string) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}
	// 10% in production, everything elsewhere
	sampleRate := 1.0
	if cfg.Environment == "production" {
		sampleRate = 0.1
	}
	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          "stromd@" + release,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
		Logger:           log.With("component", "telemetry"),
	})
	if err != nil {
		log.Warn("telemetry init failed, continuing without tracing", "error", err)
		return func() {}
	}
	return shutdown
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, log: log}
	if err := a.init(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts appOptions) error {
	cfg, log := a.cfg, a.log

	if opts.migrate {
		if err := database.RunMigrations(cfg.DatabaseURL, database.DefaultMigrationsSource, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	var err error
	a.pool, err = database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, a.pool.Close)
	a.ready = append(a.ready, a.pool.Ping)
	log.Info("connected to database")

	store, err := a.vectorStore(ctx)
	if err != nil {
		return err
	}
	encoder, err := a.encoder(ctx)
	if err != nil {
		return err
	}
	archive, err := a.archive(ctx)
	if err != nil {
		return err
	}

	a.ingestion = service.NewIngestionService(encoder, store, archive, service.IngestionConfig{
		Workers:        cfg.IngestWorkers,
		QueueSize:      cfg.IngestQueueSize,
		FeedBatchSize:  cfg.IngestFeedBatch,
		BulkBatchSize:  cfg.BulkBatchSize,
		PointChunkSize: cfg.PointChunkSize,
		Timeout:        cfg.IngestTimeout,
		Dimension:      cfg.VectorDim,
		Chunking: service.ChunkConfig{
			ChunkSize:      cfg.ChunkSize,
			Overlap:        cfg.ChunkOverlap,
			MinChunkSize:   cfg.MinChunkSize,
			SentenceAware:  true,
			ParagraphAware: true,
		},
	}, log.With("service", "IngestionService"))

	a.retrieval = service.NewRetrievalService(encoder, store, service.RetrievalConfig{
		SearchDepth:        cfg.SearchDepth,
		RelevanceThreshold: cfg.RelevanceThreshold,
		ExpansionLimit:     cfg.ExpansionLimit,
		ExpansionThreshold: cfg.ExpansionThreshold,
		PrimaryContextCap:  cfg.PrimaryContextCap,
	}, log.With("service", "RetrievalService"))

	a.jobs = repository.NewIngestionJobRepository(a.pool)

	endpoint, err := a.completionEndpoint()
	if err != nil {
		if opts.requireGeneration {
			return err
		}
		log.Warn("generation disabled", "reason", err)
		return nil
	}

	a.generator = service.NewGeneratorService(endpoint, service.GeneratorConfig{
		MaxRetries:  cfg.GenerationRetries,
		CallTimeout: cfg.GenerationTimeout,
		Defaults: service.GenerationParams{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			TopP:        cfg.TopP,
		},
	}, log.With("service", "GeneratorService"))

	a.conversation = service.NewConversationService(
		repository.NewConversationStore(a.pool),
		a.retrieval,
		a.generator,
		service.ConversationConfig{
			FreeMessageLimit: cfg.FreeMessageLimit,
			MaxMessageChars:  cfg.MaxMessageChars,
		},
		log.With("service", "ConversationService"),
	)
	return nil
}

func (a *app) vectorStore(ctx context.Context) (service.VectorStore, error) {
	if !a.cfg.UsesQdrant() {
		if a.cfg.VectorDim != repository.TableDimension {
			return nil, fmt.Errorf("pgvector backend stores %d-dimensional vectors, STROM_VECTOR_DIM is %d",
				repository.TableDimension, a.cfg.VectorDim)
		}
		return repository.NewDocumentChunkRepository(a.pool, a.cfg.VectorDim), nil
	}

	store, err := qdrant.NewVectorStore(a.log, qdrant.Config{
		URL:        a.cfg.QdrantURL,
		APIKey:     a.cfg.QdrantAPIKey,
		Collection: a.cfg.QdrantCollection,
		VectorDim:  a.cfg.VectorDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant store: %w", err)
	}
	if err := store.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure qdrant collection: %w", err)
	}
	a.ready = append(a.ready, store.Ready)
	a.log.Info("qdrant collection ready", "collection", a.cfg.QdrantCollection)
	return store, nil
}

func (a *app) encoder(ctx context.Context) (service.VectorEncoder, error) {
	if !a.cfg.HasOpenAI() {
		return nil, errors.New("STROM_OPENAI_API_KEY is required for embeddings")
	}
	client := openai.NewClientWithConfig(openai.Config{
		APIKey:            a.cfg.OpenAIAPIKey,
		BaseURL:           a.cfg.OpenAIBaseURL,
		EmbeddingModel:    goopenai.EmbeddingModel(a.cfg.EmbeddingModel),
		Dimension:         a.cfg.VectorDim,
		RequestsPerSecond: a.cfg.EmbeddingRPS,
	})
	if !a.cfg.HasRedis() {
		return client, nil
	}

	rs, err := cache.NewRedisStore(ctx, a.cfg.RedisURL)
	if err != nil {
		// The cache only saves encoder calls.
		a.log.Warn("embedding cache disabled", "error", err)
		return client, nil
	}
	a.closers = append(a.closers, func() { _ = rs.Close() })
	a.log.Info("embedding cache enabled", "ttl", a.cfg.EmbeddingTTL)
	return cache.NewCachedEncoder(client, rs, client.Model(), a.cfg.EmbeddingTTL, a.log), nil
}

func (a *app) archive(ctx context.Context) (service.DocumentArchive, error) {
	if !a.cfg.HasS3() {
		return nil, nil
	}
	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        a.cfg.S3Endpoint,
		Region:          a.cfg.S3Region,
		AccessKeyID:     a.cfg.S3AccessKey,
		SecretAccessKey: a.cfg.S3SecretKey,
		Bucket:          a.cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	a.log.Info("document archive ready", "bucket", a.cfg.S3Bucket)
	return client, nil
}

func (a *app) completionEndpoint() (service.CompletionEndpoint, error) {
	switch a.cfg.GenerationProvider {
	case config.ProviderOpenAI:
		if !a.cfg.HasOpenAI() {
			return nil, errors.New("STROM_OPENAI_API_KEY is required for openai generation")
		}
		return openai.NewChatClient(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL, a.cfg.OpenAIChatModel), nil
	default:
		return anthropic.NewClient(anthropic.Config{
			APIKey:  a.cfg.AnthropicAPIKey,
			BaseURL: a.cfg.AnthropicBaseURL,
			Model:   a.cfg.AnthropicModel,
			Timeout: a.cfg.GenerationTimeout,
		})
	}
}

// healthCheck reports the first unreachable backing store.
func (a *app) healthCheck(ctx context.Context) error {
	for _, check := range a.ready {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
