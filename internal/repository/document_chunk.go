package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/strom/internal/domain"
)

// DocumentChunkRepository is the pgvector-backed vector store. Scores are
// cosine similarity, 1 - cosine distance, clamped to [0,1].
type DocumentChunkRepository struct {
	db        dbtx
	dimension int
}

// TableDimension is the width of the document_chunks.embedding column.
const TableDimension = 1024

func NewDocumentChunkRepository(pool *pgxpool.Pool, dimension int) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: pool, dimension: dimension}
}

const upsertChunkSQL = `INSERT INTO document_chunks
	(id, document_id, source, chunk_index, content, payload, embedding, updated_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
 ON CONFLICT (id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	source = EXCLUDED.source,
	chunk_index = EXCLUDED.chunk_index,
	content = EXCLUDED.content,
	payload = EXCLUDED.payload,
	embedding = EXCLUDED.embedding,
	updated_at = NOW()`

// Upsert writes points in one batch. Postgres commits synchronously, so wait
// has no effect here.
func (r *DocumentChunkRepository) Upsert(ctx context.Context, points []domain.Point, wait bool) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		if r.dimension > 0 && len(p.Vector) != r.dimension {
			return fmt.Errorf("point %d dimension mismatch: expected=%d got=%d", p.ID, r.dimension, len(p.Vector))
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for point %d: %w", p.ID, err)
		}
		meta := domain.MetadataFromPayload(p.Payload)
		batch.Queue(upsertChunkSQL,
			p.ID,
			meta.DocumentID,
			meta.Source,
			meta.ChunkNumber,
			meta.Text,
			payload,
			pgvector.NewVector(p.Vector),
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for range points {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upsert document chunk: %w", err)
		}
	}
	return results.Close()
}

// Search runs a cosine nearest-neighbour query. A filter on document_id uses
// the indexed column; other keys match top-level payload fields.
func (r *DocumentChunkRepository) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchHit, error) {
	if r.dimension > 0 && len(req.Vector) != r.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected=%d got=%d", r.dimension, len(req.Vector))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	query, args := buildSearchQuery(req, limit)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search document chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var (
			hit       domain.SearchHit
			payload   map[string]any
			embedding pgvector.Vector
		)
		dest := []any{&hit.ID, &payload, &hit.Score}
		if req.WithVectors {
			dest = append(dest, &embedding)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		hit.Score = domain.ClampScore(hit.Score)
		hit.Payload = payload
		if req.WithVectors {
			hit.Vector = embedding.Slice()
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func buildSearchQuery(req domain.SearchRequest, limit int) (string, []any) {
	args := []any{pgvector.NewVector(req.Vector)}
	columns := "id, payload, 1 - (embedding <=> $1) AS score"
	if req.WithVectors {
		columns += ", embedding"
	}

	var where []string
	if req.Filter != nil {
		if req.Filter.Key == domain.PayloadDocumentID {
			args = append(args, req.Filter.Value)
			where = append(where, fmt.Sprintf("document_id = $%d", len(args)))
		} else {
			args = append(args, req.Filter.Key, req.Filter.Value)
			where = append(where, fmt.Sprintf("payload->>$%d = $%d", len(args)-1, len(args)))
		}
	}
	if req.ScoreThreshold != nil {
		args = append(args, *req.ScoreThreshold)
		where = append(where, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM document_chunks")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1 LIMIT $%d", len(args))
	return sb.String(), args
}

// CountByDocument returns how many chunks are stored for a document.
func (r *DocumentChunkRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

// DeleteDocument removes every chunk of a document.
func (r *DocumentChunkRepository) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
