package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Vector store backends.
const (
	VectorBackendPgvector = "pgvector"
	VectorBackendQdrant   = "qdrant"
)

// Generation providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogMode  string `envconfig:"LOG_MODE" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	VectorBackend    string `envconfig:"VECTOR_BACKEND" default:"pgvector"`
	VectorDim        int    `envconfig:"VECTOR_DIM" default:"1024"`
	QdrantURL        string `envconfig:"QDRANT_URL"`
	QdrantAPIKey     string `envconfig:"QDRANT_API_KEY"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"projects"`

	OpenAIAPIKey    string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string  `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel  string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingRPS    float64 `envconfig:"EMBEDDING_RPS" default:"0"`
	OpenAIChatModel string  `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`

	GenerationProvider string        `envconfig:"GENERATION_PROVIDER" default:"anthropic"`
	AnthropicAPIKey    string        `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL   string        `envconfig:"ANTHROPIC_BASE_URL"`
	AnthropicModel     string        `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-sonnet-latest"`
	GenerationTimeout  time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`
	GenerationRetries  uint64        `envconfig:"GENERATION_RETRIES" default:"2"`
	Temperature        float64       `envconfig:"TEMPERATURE" default:"0.3"`
	MaxTokens          int           `envconfig:"MAX_TOKENS" default:"1000"`
	TopP               float64       `envconfig:"TOP_P" default:"1.0"`

	RedisURL     string        `envconfig:"REDIS_URL"`
	EmbeddingTTL time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"24h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"strom-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`
	MinChunkSize int `envconfig:"MIN_CHUNK_SIZE" default:"200"`

	IngestWorkers   int           `envconfig:"INGEST_WORKERS" default:"4"`
	IngestQueueSize int           `envconfig:"INGEST_QUEUE_SIZE" default:"100"`
	IngestFeedBatch int           `envconfig:"INGEST_FEED_BATCH" default:"50"`
	IngestTimeout   time.Duration `envconfig:"INGEST_TIMEOUT" default:"300s"`
	BulkBatchSize   int           `envconfig:"BULK_BATCH_SIZE" default:"100"`
	PointChunkSize  int           `envconfig:"POINT_CHUNK_SIZE" default:"20"`
	JobQueueSize    int           `envconfig:"JOB_QUEUE_SIZE" default:"16"`

	SearchDepth        int     `envconfig:"SEARCH_DEPTH" default:"10"`
	RelevanceThreshold float64 `envconfig:"RELEVANCE_THRESHOLD" default:"0"`
	ExpansionLimit     int     `envconfig:"EXPANSION_LIMIT" default:"20"`
	ExpansionThreshold float64 `envconfig:"EXPANSION_THRESHOLD" default:"0.5"`
	PrimaryContextCap  int     `envconfig:"PRIMARY_CONTEXT_CAP" default:"3"`

	FreeMessageLimit int   `envconfig:"FREE_MESSAGE_LIMIT" default:"10"`
	MaxMessageChars  int   `envconfig:"MAX_MESSAGE_CHARS" default:"4000"`
	MaxUploadBytes   int64 `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("STROM", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	c.VectorBackend = strings.ToLower(strings.TrimSpace(c.VectorBackend))
	c.GenerationProvider = strings.ToLower(strings.TrimSpace(c.GenerationProvider))

	switch c.VectorBackend {
	case VectorBackendPgvector, VectorBackendQdrant:
	default:
		return fmt.Errorf("invalid VECTOR_BACKEND %q: expected pgvector or qdrant", c.VectorBackend)
	}
	if c.VectorBackend == VectorBackendQdrant && c.QdrantURL == "" {
		return fmt.Errorf("QDRANT_URL is required when VECTOR_BACKEND=qdrant")
	}
	switch c.GenerationProvider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid GENERATION_PROVIDER %q: expected anthropic or openai", c.GenerationProvider)
	}
	if c.VectorDim <= 0 {
		return fmt.Errorf("VECTOR_DIM must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.IngestWorkers <= 0 || c.IngestQueueSize <= 0 || c.IngestFeedBatch <= 0 {
		return fmt.Errorf("ingestion workers, queue size and feed batch must be positive")
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasAnthropic() bool {
	return c.AnthropicAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) UsesQdrant() bool {
	return c.VectorBackend == VectorBackendQdrant
}

// HasGeneration reports whether the selected generation provider has credentials.
func (c *Config) HasGeneration() bool {
	if c.GenerationProvider == ProviderOpenAI {
		return c.HasOpenAI()
	}
	return c.HasAnthropic()
}
