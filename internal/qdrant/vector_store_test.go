package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T, handler http.HandlerFunc) *VectorStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewVectorStore(nil, Config{URL: srv.URL, APIKey: "secret", Collection: "projects", VectorDim: 3})
	require.NoError(t, err)
	return s
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok", "time": 0.001}))
}

func TestVectorStore_Upsert_RequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/projects/points", r.URL.Path)
		assert.Equal(t, "wait=true", r.URL.RawQuery)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeResult(t, w, map[string]any{"status": "completed"})
	})

	payload := map[string]any{domain.PayloadText: "hello", domain.PayloadDocumentID: "doc_1"}
	err := s.Upsert(context.Background(), []domain.Point{
		{ID: 42, Vector: []float32{1, 0, 0}, Payload: payload},
		{ID: 43, Vector: []float32{0, 1, 0}},
	}, true)

	require.NoError(t, err)
	points := captured["points"].([]any)
	require.Len(t, points, 2)
	first := points[0].(map[string]any)
	assert.EqualValues(t, 42, first["id"])
	assert.Equal(t, "hello", first["payload"].(map[string]any)[domain.PayloadText])
	assert.Equal(t, map[string]any{}, points[1].(map[string]any)["payload"])
}

func TestVectorStore_Upsert_NoWait(t *testing.T) {
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wait=false", r.URL.RawQuery)
		writeResult(t, w, map[string]any{"status": "acknowledged"})
	})

	require.NoError(t, s.Upsert(context.Background(), []domain.Point{{ID: 1, Vector: []float32{1, 0, 0}}}, false))
}

func TestVectorStore_Upsert_DimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	err := s.Upsert(context.Background(), []domain.Point{{ID: 1, Vector: []float32{1, 0}}}, true)

	var opError *OperationError
	require.True(t, errors.As(err, &opError))
	assert.Equal(t, OperationErrorValidation, opError.Code)
}

func TestVectorStore_Upsert_Empty(t *testing.T) {
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	assert.NoError(t, s.Upsert(context.Background(), nil, true))
}

func TestVectorStore_Search(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/projects/points/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeResult(t, w, []map[string]any{
			{"id": 7, "score": 0.91, "payload": map[string]any{domain.PayloadText: "a"}},
			{"id": "bad-id", "score": 0.5, "payload": map[string]any{}},
			{"id": 8, "score": -0.2, "payload": map[string]any{domain.PayloadText: "b"}},
		})
	})

	hits, err := s.Search(context.Background(), domain.SearchRequest{
		Vector:         []float32{1, 0, 0},
		Limit:          20,
		ScoreThreshold: domain.Threshold(0.5),
		Filter:         &domain.FieldMatch{Key: domain.PayloadDocumentID, Value: "doc_1"},
	})

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(7), hits[0].ID)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	assert.Equal(t, "a", hits[0].Metadata().Text)
	assert.Equal(t, int64(8), hits[1].ID)
	assert.Zero(t, hits[1].Score)
	assert.Nil(t, hits[0].Vector)

	assert.EqualValues(t, 20, captured["limit"])
	assert.InDelta(t, 0.5, captured["score_threshold"], 1e-9)
	assert.Equal(t, true, captured["with_payload"])
	assert.Equal(t, map[string]any{
		"must": []any{map[string]any{"key": "document_id", "match": map[string]any{"value": "doc_1"}}},
	}, captured["filter"])
}

func TestVectorStore_Search_NoFilterOrThreshold(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeResult(t, w, []map[string]any{{"id": 1, "score": 0.4, "vector": []float32{1, 0, 0}}})
	})

	hits, err := s.Search(context.Background(), domain.SearchRequest{Vector: []float32{1, 0, 0}, WithVectors: true})

	require.NoError(t, err)
	assert.NotContains(t, captured, "filter")
	assert.NotContains(t, captured, "score_threshold")
	assert.EqualValues(t, 10, captured["limit"])
	require.Len(t, hits, 1)
	assert.Equal(t, []float32{1, 0, 0}, hits[0].Vector)
}

func TestVectorStore_Search_HTTPError(t *testing.T) {
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":{"error":"Wrong input: vector dimension error"}}`))
	})

	_, err := s.Search(context.Background(), domain.SearchRequest{Vector: []float32{1, 0, 0}})

	var opError *OperationError
	require.True(t, errors.As(err, &opError))
	assert.Equal(t, OperationErrorQueryFailed, opError.Code)
	assert.Equal(t, http.StatusBadRequest, opError.StatusCode)
	assert.Contains(t, opError.Error(), "vector dimension error")
}

func TestVectorStore_Search_EnvelopeStatusError(t *testing.T) {
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":null,"status":{"error":"collection is locked"}}`))
	})

	_, err := s.Search(context.Background(), domain.SearchRequest{Vector: []float32{1, 0, 0}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection is locked")
}

func TestVectorStore_Search_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	s, err := NewVectorStore(nil, Config{URL: url, Collection: "projects", VectorDim: 3})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), domain.SearchRequest{Vector: []float32{1, 0, 0}})

	var opError *OperationError
	require.True(t, errors.As(err, &opError))
	assert.Equal(t, OperationErrorTransportFailed, opError.Code)
}

func TestVectorStore_EnsureCollection_Creates(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var indexes []map[string]any
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection projects doesn't exist!"}}`))
		case r.URL.Path == "/collections/projects":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			vectors := body["vectors"].(map[string]any)
			assert.EqualValues(t, 3, vectors["size"])
			assert.Equal(t, "Cosine", vectors["distance"])
			writeResult(t, w, true)
		default:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			indexes = append(indexes, body)
			writeResult(t, w, map[string]any{"status": "completed"})
		}
	})

	require.NoError(t, s.EnsureCollection(context.Background()))

	assert.Equal(t, []string{
		"GET /collections/projects",
		"PUT /collections/projects",
		"PUT /collections/projects/index",
		"PUT /collections/projects/index",
	}, calls)
	require.Len(t, indexes, 2)
	assert.Equal(t, "document_id", indexes[0]["field_name"])
	assert.Equal(t, "keyword", indexes[0]["field_schema"])
	assert.Equal(t, "text", indexes[1]["field_name"])
}

func TestVectorStore_EnsureCollection_Existing(t *testing.T) {
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeResult(t, w, map[string]any{"config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"size": 3, "distance": "Cosine"},
		}}})
	})

	assert.NoError(t, s.EnsureCollection(context.Background()))
}

func TestVectorStore_EnsureCollection_SizeMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, map[string]any{"config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"size": 1536, "distance": "Cosine"},
		}}})
	})

	err := s.EnsureCollection(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected=3 actual=1536")
}

func TestVectorStore_Ready(t *testing.T) {
	status := http.StatusOK
	s := newTestVectorStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readyz", r.URL.Path)
		w.WriteHeader(status)
	})

	assert.NoError(t, s.Ready(context.Background()))

	status = http.StatusServiceUnavailable
	assert.Error(t, s.Ready(context.Background()))
}
