package repository

import (
	"testing"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchQuery(t *testing.T) {
	vec := []float32{1, 0, 0}

	tests := []struct {
		name     string
		req      domain.SearchRequest
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "plain",
			req:      domain.SearchRequest{Vector: vec},
			wantSQL:  "SELECT id, payload, 1 - (embedding <=> $1) AS score FROM document_chunks ORDER BY embedding <=> $1 LIMIT $2",
			wantArgs: 2,
		},
		{
			name: "document filter and threshold",
			req: domain.SearchRequest{
				Vector:         vec,
				Filter:         &domain.FieldMatch{Key: domain.PayloadDocumentID, Value: "doc_1"},
				ScoreThreshold: domain.Threshold(0.5),
			},
			wantSQL:  "SELECT id, payload, 1 - (embedding <=> $1) AS score FROM document_chunks WHERE document_id = $2 AND 1 - (embedding <=> $1) >= $3 ORDER BY embedding <=> $1 LIMIT $4",
			wantArgs: 4,
		},
		{
			name: "payload filter with vectors",
			req: domain.SearchRequest{
				Vector:      vec,
				Filter:      &domain.FieldMatch{Key: "source", Value: "a.txt"},
				WithVectors: true,
			},
			wantSQL:  "SELECT id, payload, 1 - (embedding <=> $1) AS score, embedding FROM document_chunks WHERE payload->>$2 = $3 ORDER BY embedding <=> $1 LIMIT $4",
			wantArgs: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildSearchQuery(tt.req, 7)
			assert.Equal(t, tt.wantSQL, sql)
			require.Len(t, args, tt.wantArgs)
			assert.Equal(t, pgvector.NewVector(vec), args[0])
			assert.Equal(t, 7, args[len(args)-1])
		})
	}
}
