package service

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/logger"
	"github.com/cloo-solutions/strom/internal/telemetry"
)

const maxExpansionSearches = 8

// RetrievalConfig holds search defaults.
type RetrievalConfig struct {
	SearchDepth        int
	RelevanceThreshold float64
	ExpansionLimit     int
	ExpansionThreshold float64
	PrimaryContextCap  int
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		SearchDepth:        10,
		ExpansionLimit:     20,
		ExpansionThreshold: 0.5,
		PrimaryContextCap:  3,
	}
}

// RetrieveOptions overrides the configured search depth and threshold for a
// single call. Zero values keep the configuration.
type RetrieveOptions struct {
	SearchDepth        int
	RelevanceThreshold float64
}

// RetrievalService assembles answer context for a query.
type RetrievalService struct {
	encoder VectorEncoder
	store   VectorStore
	cfg     RetrievalConfig
	log     *logger.Logger
}

func NewRetrievalService(encoder VectorEncoder, store VectorStore, cfg RetrievalConfig, log *logger.Logger) *RetrievalService {
	d := DefaultRetrievalConfig()
	if cfg.SearchDepth <= 0 {
		cfg.SearchDepth = d.SearchDepth
	}
	if cfg.ExpansionLimit <= 0 {
		cfg.ExpansionLimit = d.ExpansionLimit
	}
	if cfg.PrimaryContextCap <= 0 {
		cfg.PrimaryContextCap = d.PrimaryContextCap
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RetrievalService{encoder: encoder, store: store, cfg: cfg, log: log}
}

// Retrieve runs a primary similarity search, expands every matched document
// and collects texts and citable sources. Encoder and store failures are
// logged and yield an empty context.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts RetrieveOptions) *domain.AssembledContext {
	out := domain.NewAssembledContext()
	query = strings.TrimSpace(query)
	if query == "" {
		return out
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		Operation: "retrieve",
	})
	defer span.End()

	depth := s.cfg.SearchDepth
	if opts.SearchDepth > 0 {
		depth = opts.SearchDepth
	}
	threshold := s.cfg.RelevanceThreshold
	if opts.RelevanceThreshold > 0 {
		threshold = opts.RelevanceThreshold
	}

	vector, err := s.encoder.Encode(ctx, query)
	if err != nil {
		s.log.Warn("failed to encode query", "error", err)
		return out
	}

	primary, err := s.store.Search(ctx, domain.SearchRequest{
		Vector:         vector,
		Limit:          depth,
		ScoreThreshold: domain.Threshold(threshold),
	})
	if err != nil {
		s.log.Warn("primary search failed", "error", domain.Wrap(domain.ErrSearchFailed, err))
		return out
	}
	primary = withText(primary)
	if len(primary) == 0 {
		return out
	}

	hits := withText(s.expand(ctx, vector, primary))
	if len(hits) == 0 {
		hits = primary[:min(len(primary), s.cfg.PrimaryContextCap)]
	}

	for _, h := range hits {
		meta := h.Metadata()
		out.ContextTexts = append(out.ContextTexts, meta.Text)
		if src := ExtractSource(meta); !src.IsZero() {
			out.AvailableSources.Add(src)
		}
	}

	s.log.Debug("context assembled",
		"primary_hits", len(primary),
		"context_chunks", len(out.ContextTexts),
		"sources", out.AvailableSources.Len(),
	)
	return out
}

// expand searches each distinct document of the primary hits, in first-seen
// order. A failed search falls back to that document's primary hits. Hits
// without a document are capped like an expansion that found nothing.
func (s *RetrievalService) expand(ctx context.Context, vector []float32, primary []domain.SearchHit) []domain.SearchHit {
	var order []string
	byDoc := make(map[string][]domain.SearchHit)
	for _, h := range primary {
		id := h.Metadata().DocumentID
		if _, seen := byDoc[id]; !seen {
			order = append(order, id)
		}
		byDoc[id] = append(byDoc[id], h)
	}

	results := make([][]domain.SearchHit, len(order))
	var g errgroup.Group
	g.SetLimit(maxExpansionSearches)
	for i, docID := range order {
		if docID == "" {
			// Nothing to expand; these count as unexpanded primaries.
			results[i] = byDoc[docID][:min(len(byDoc[docID]), s.cfg.PrimaryContextCap)]
			continue
		}
		g.Go(func() error {
			hits, err := s.store.Search(ctx, domain.SearchRequest{
				Vector:         vector,
				Limit:          s.cfg.ExpansionLimit,
				ScoreThreshold: domain.Threshold(s.cfg.ExpansionThreshold),
				Filter:         &domain.FieldMatch{Key: domain.PayloadDocumentID, Value: docID},
			})
			if err != nil {
				s.log.Warn("expansion search failed", "document_id", docID, "error", err)
				results[i] = byDoc[docID]
				return nil
			}
			results[i] = hits
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[int64]struct{})
	var merged []domain.SearchHit
	for _, group := range results {
		for _, h := range group {
			if _, dup := seen[h.ID]; dup {
				continue
			}
			seen[h.ID] = struct{}{}
			merged = append(merged, h)
		}
	}
	return merged
}

func withText(hits []domain.SearchHit) []domain.SearchHit {
	out := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Metadata().Text) == "" {
			continue
		}
		out = append(out, h)
	}
	return out
}
