//go:build integration

package qdrant

import (
	"context"
	"testing"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_VectorStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	qc := testutil.NewQdrantContainer(ctx, t)

	s, err := NewVectorStore(nil, Config{URL: qc.URL, Collection: "projects_it", VectorDim: 3})
	require.NoError(t, err)
	require.NoError(t, s.Ready(ctx))
	require.NoError(t, s.EnsureCollection(ctx))
	require.NoError(t, s.EnsureCollection(ctx))

	err = s.Upsert(ctx, []domain.Point{
		{ID: 1, Vector: []float32{1, 0, 0}, Payload: map[string]any{domain.PayloadDocumentID: "doc_a", domain.PayloadText: "alpha"}},
		{ID: 2, Vector: []float32{0.8, 0.6, 0}, Payload: map[string]any{domain.PayloadDocumentID: "doc_b", domain.PayloadText: "beta"}},
	}, true)
	require.NoError(t, err)

	hits, err := s.Search(ctx, domain.SearchRequest{Vector: []float32{1, 0, 0}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)

	filtered, err := s.Search(ctx, domain.SearchRequest{
		Vector: []float32{1, 0, 0},
		Limit:  5,
		Filter: &domain.FieldMatch{Key: domain.PayloadDocumentID, Value: "doc_b"},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "beta", filtered[0].Metadata().Text)

	strict, err := s.Search(ctx, domain.SearchRequest{Vector: []float32{1, 0, 0}, Limit: 5, ScoreThreshold: domain.Threshold(0.9)})
	require.NoError(t, err)
	assert.Len(t, strict, 1)
}
