package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/logger"
	"github.com/cloo-solutions/strom/internal/telemetry"
)

// VectorEncoder turns text into a fixed-dimension embedding.
type VectorEncoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists and searches embeddings.
type VectorStore interface {
	Upsert(ctx context.Context, points []domain.Point, wait bool) error
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchHit, error)
}

// DocumentArchive keeps the raw uploaded text. Optional.
type DocumentArchive interface {
	Archive(ctx context.Context, documentID, filename string, content []byte) (string, error)
}

// IngestionConfig tunes the ingestion worker pool.
type IngestionConfig struct {
	Workers        int
	QueueSize      int
	FeedBatchSize  int
	BulkBatchSize  int
	PointChunkSize int
	Timeout        time.Duration
	Dimension      int
	Chunking       ChunkConfig
}

// DefaultIngestionConfig mirrors the production defaults.
func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		Workers:        4,
		QueueSize:      100,
		FeedBatchSize:  50,
		BulkBatchSize:  100,
		PointChunkSize: 20,
		Timeout:        300 * time.Second,
		Chunking:       DefaultChunkConfig(),
	}
}

func (c IngestionConfig) withDefaults() IngestionConfig {
	d := DefaultIngestionConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.FeedBatchSize <= 0 {
		c.FeedBatchSize = d.FeedBatchSize
	}
	if c.BulkBatchSize <= 0 {
		c.BulkBatchSize = d.BulkBatchSize
	}
	if c.PointChunkSize <= 0 {
		c.PointChunkSize = d.PointChunkSize
	}
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking = d.Chunking
	}
	return c
}

// IngestDocumentInput is one uploaded document.
type IngestDocumentInput struct {
	Text     string
	Filename string
	Custom   map[string]any
	Bulk     bool
}

// IngestDocumentResult summarizes a processed upload.
type IngestDocumentResult struct {
	DocumentID  string                `json:"document_id"`
	Filename    string                `json:"filename"`
	TotalChunks int                   `json:"total_chunks"`
	ArchiveKey  string                `json:"archive_key,omitempty"`
	Stats       domain.IngestionStats `json:"stats"`
	Message     string                `json:"message"`
}

// IngestionService chunks, encodes and stores documents.
type IngestionService struct {
	encoder VectorEncoder
	store   VectorStore
	archive DocumentArchive
	cfg     IngestionConfig
	log     *logger.Logger
}

// NewIngestionService creates a new IngestionService. archive may be nil.
func NewIngestionService(encoder VectorEncoder, store VectorStore, archive DocumentArchive, cfg IngestionConfig, log *logger.Logger) *IngestionService {
	if log == nil {
		log = logger.Nop()
	}
	return &IngestionService{
		encoder: encoder,
		store:   store,
		archive: archive,
		cfg:     cfg.withDefaults(),
		log:     log,
	}
}

type ingestCounters struct {
	processed        atomic.Int64
	generated        atomic.Int64
	stored           atomic.Int64
	failedEmbeddings atomic.Int64
	failedStorage    atomic.Int64
}

func (c *ingestCounters) snapshot() domain.IngestionStats {
	return domain.IngestionStats{
		ChunksProcessed:     c.processed.Load(),
		EmbeddingsGenerated: c.generated.Load(),
		StoredEmbeddings:    c.stored.Load(),
		FailedEmbeddings:    c.failedEmbeddings.Load(),
		FailedStorage:       c.failedStorage.Load(),
	}
}

// Ingest encodes and stores each chunk individually through the worker pool.
// Per-chunk failures are counted, never returned; the error is non-nil only
// when ctx ends before the pool drains.
func (s *IngestionService) Ingest(ctx context.Context, chunks []domain.DocumentChunk, custom map[string]any) (domain.IngestionStats, error) {
	var counters ingestCounters
	err := s.runPool(ctx, chunks, custom, &counters, func(ctx context.Context, emb domain.DocumentEmbedding) {
		if err := s.store.Upsert(ctx, []domain.Point{emb.Point()}, true); err != nil {
			counters.failedStorage.Add(1)
			s.log.Warn("failed to store embedding", "point_id", emb.ID, "source", emb.Metadata.Source, "error", err)
			return
		}
		counters.stored.Add(1)
	})
	return counters.snapshot(), err
}

// IngestBulk encodes through the worker pool, then stores everything with StoreBulk.
func (s *IngestionService) IngestBulk(ctx context.Context, chunks []domain.DocumentChunk, custom map[string]any) (domain.IngestionStats, error) {
	var counters ingestCounters
	results := make(chan domain.DocumentEmbedding, s.cfg.QueueSize)
	collected := make([]domain.DocumentEmbedding, 0, len(chunks))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for emb := range results {
			collected = append(collected, emb)
		}
	}()

	err := s.runPool(ctx, chunks, custom, &counters, func(ctx context.Context, emb domain.DocumentEmbedding) {
		results <- emb
	})
	close(results)
	<-done
	if err != nil {
		return counters.snapshot(), err
	}

	bulk := s.StoreBulk(ctx, collected)
	counters.stored.Add(int64(bulk.Stored))
	counters.failedStorage.Add(int64(bulk.Failed))
	return counters.snapshot(), ctx.Err()
}

// StoreBulk upserts embeddings in network batches built from point sub-chunks.
// A failing sub-chunk or batch is counted and skipped.
func (s *IngestionService) StoreBulk(ctx context.Context, embeddings []domain.DocumentEmbedding) domain.BulkStoreStats {
	stats := domain.BulkStoreStats{Total: len(embeddings)}

	for start := 0; start < len(embeddings); start += s.cfg.BulkBatchSize {
		if ctx.Err() != nil {
			stats.Failed += len(embeddings) - start
			break
		}
		batch := embeddings[start:min(start+s.cfg.BulkBatchSize, len(embeddings))]

		points := make([]domain.Point, 0, len(batch))
		for sub := 0; sub < len(batch); sub += s.cfg.PointChunkSize {
			part, err := s.buildPoints(batch[sub:min(sub+s.cfg.PointChunkSize, len(batch))])
			if err != nil {
				stats.Failed += min(s.cfg.PointChunkSize, len(batch)-sub)
				s.log.Warn("skipping point sub-chunk", "batch_start", start, "offset", sub, "error", err)
				continue
			}
			points = append(points, part...)
		}
		if len(points) == 0 {
			continue
		}

		if err := s.store.Upsert(ctx, points, true); err != nil {
			stats.Failed += len(points)
			s.log.Warn("bulk upsert failed", "batch_start", start, "points", len(points), "error", err)
			continue
		}
		stats.Stored += len(points)
		s.log.Debug("stored batch", "batch_start", start, "points", len(points))
	}

	return stats
}

func (s *IngestionService) buildPoints(embeddings []domain.DocumentEmbedding) ([]domain.Point, error) {
	points := make([]domain.Point, 0, len(embeddings))
	for _, emb := range embeddings {
		if len(emb.Vector) == 0 {
			return nil, fmt.Errorf("point %d has an empty vector", emb.ID)
		}
		if s.cfg.Dimension > 0 && len(emb.Vector) != s.cfg.Dimension {
			return nil, fmt.Errorf("point %d has dimension %d, expected %d", emb.ID, len(emb.Vector), s.cfg.Dimension)
		}
		points = append(points, emb.Point())
	}
	return points, nil
}

// ValidateDocumentInput rejects uploads that cannot be ingested.
func ValidateDocumentInput(in IngestDocumentInput) error {
	if strings.TrimSpace(in.Text) == "" || !utf8.ValidString(in.Text) {
		return domain.ErrInvalidDocument
	}
	if strings.TrimSpace(in.Filename) == "" {
		return domain.Wrap(domain.ErrMissingRequiredField, errors.New("filename"))
	}
	return nil
}

// IngestDocument validates, segments, archives and ingests one document under
// the configured deadline.
func (s *IngestionService) IngestDocument(ctx context.Context, in IngestDocumentInput) (*IngestDocumentResult, error) {
	if err := ValidateDocumentInput(in); err != nil {
		return nil, err
	}
	filename := strings.TrimSpace(in.Filename)

	chunks := PrepareDocument(in.Text, filename, s.cfg.Chunking)
	if len(chunks) == 0 {
		return nil, domain.ErrInvalidDocument
	}
	result := &IngestDocumentResult{
		DocumentID:  chunks[0].DocumentID,
		Filename:    filename,
		TotalChunks: len(chunks),
	}

	ctx, span := telemetry.StartSpan(ctx, "IngestionService.IngestDocument", telemetry.SpanAttributes{
		DocumentID: result.DocumentID,
		Source:     filename,
		Mode:       ingestMode(in.Bulk),
		Operation:  "ingest",
	})
	defer span.End()

	if s.archive != nil {
		key, err := s.archive.Archive(ctx, result.DocumentID, filename, []byte(in.Text))
		if err != nil {
			err = domain.Wrap(domain.ErrArchiveFailed, err)
			span.SetError(err)
			telemetry.CaptureError(ctx, err)
			return nil, err
		}
		result.ArchiveKey = key
	}

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	var err error
	if in.Bulk {
		result.Stats, err = s.IngestBulk(runCtx, chunks, in.Custom)
	} else {
		result.Stats, err = s.Ingest(runCtx, chunks, in.Custom)
	}
	result.Message = result.Stats.Summary()
	span.SetData("chunks", result.TotalChunks)
	span.SetData("stored_embeddings", result.Stats.StoredEmbeddings)

	if err != nil {
		span.SetError(err)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.log.Warn("document ingestion timed out", "document_id", result.DocumentID, "timeout", s.cfg.Timeout)
			return result, domain.Wrap(domain.ErrIngestionTimeout, err)
		}
		return result, err
	}

	s.log.Info("document ingested",
		"document_id", result.DocumentID,
		"source", filename,
		"chunks", result.TotalChunks,
		"stored", result.Stats.StoredEmbeddings,
		"failed_embeddings", result.Stats.FailedEmbeddings,
		"failed_storage", result.Stats.FailedStorage,
		"duration", time.Since(started),
	)
	return result, nil
}

// runPool feeds chunks through a bounded queue to a fixed set of workers.
// Closing the queue is the stop signal; workers drain it and exit.
func (s *IngestionService) runPool(
	ctx context.Context,
	chunks []domain.DocumentChunk,
	custom map[string]any,
	counters *ingestCounters,
	handle func(context.Context, domain.DocumentEmbedding),
) error {
	queue := make(chan domain.DocumentChunk, s.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for start := 0; start < len(chunks); start += s.cfg.FeedBatchSize {
			for _, c := range chunks[start:min(start+s.cfg.FeedBatchSize, len(chunks))] {
				select {
				case queue <- c:
					counters.processed.Add(1)
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})

	for w := 0; w < s.cfg.Workers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case c, ok := <-queue:
					if !ok {
						return nil
					}
					s.embedChunk(gctx, c, custom, counters, handle)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *IngestionService) embedChunk(
	ctx context.Context,
	c domain.DocumentChunk,
	custom map[string]any,
	counters *ingestCounters,
	handle func(context.Context, domain.DocumentEmbedding),
) {
	vector, err := s.encoder.Encode(ctx, c.Text)
	if err != nil {
		counters.failedEmbeddings.Add(1)
		s.log.Warn("failed to encode chunk", "source", c.Source, "chunk_number", c.ChunkNumber(), "error", err)
		return
	}
	counters.generated.Add(1)

	handle(ctx, domain.DocumentEmbedding{
		ID:       domain.ChunkID(c.Text, c.Source, c.ChunkNumber()),
		Vector:   vector,
		Metadata: domain.NewDocumentMetadata(c, custom),
	})
}

func ingestMode(bulk bool) string {
	if bulk {
		return "bulk"
	}
	return "feed"
}
