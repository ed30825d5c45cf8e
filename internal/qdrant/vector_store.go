// Package qdrant stores chunk vectors in a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/logger"
)

const (
	maxErrorBodyBytes = 1024
	maxResponseBytes  = 64 << 20
	distanceCosine    = "Cosine"
)

// VectorStore implements service.VectorStore on a single collection.
type VectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  []float32       `json:"vector"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (*VectorStore, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &VectorStore{
		log:     log.With("service", "QdrantVectorStore", "collection", cfg.Collection),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Ready checks the Qdrant readiness endpoint.
func (s *VectorStore) Ready(ctx context.Context) error {
	const op = "ready"
	req, err := s.newRequest(ctx, op, http.MethodGet, "/readyz", nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance when it does
// not exist and indexes the payload fields retrieval filters on. An existing
// collection with a different vector size is an error.
func (s *VectorStore) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"

	var info collectionInfo
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	var opError *OperationError
	switch {
	case err == nil:
		size := info.Config.Params.Vectors.Size
		if size != 0 && size != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size), nil)
		}
		return nil
	case errors.As(err, &opError) && opError.StatusCode == http.StatusNotFound:
	default:
		return err
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": distanceCosine,
		},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), create, nil); err != nil {
		return err
	}

	indexes := []map[string]any{
		{"field_name": domain.PayloadDocumentID, "field_schema": "keyword"},
		{"field_name": domain.PayloadText, "field_schema": map[string]any{
			"type":          "text",
			"tokenizer":     "word",
			"min_token_len": 2,
			"lowercase":     true,
		}},
	}
	for _, index := range indexes {
		if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/index?wait=true"), index, nil); err != nil {
			return err
		}
	}

	s.log.Info("qdrant collection created", "vector_dim", s.cfg.VectorDim, "distance", distanceCosine)
	return nil
}

// Upsert writes points. With wait=true Qdrant acknowledges only after the
// points are persisted and searchable.
func (s *VectorStore) Upsert(ctx context.Context, points []domain.Point, wait bool) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}

	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("point %d dimension mismatch: expected=%d got=%d", p.ID, s.cfg.VectorDim, len(p.Vector)), nil)
		}
		if p.ID < 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point id %d must be unsigned", p.ID), nil)
		}
		body = append(body, map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": clonePayload(p.Payload),
		})
	}

	path := s.collectionPath("/points?wait=" + strconv.FormatBool(wait))
	return s.doJSON(ctx, op, http.MethodPut, path, map[string]any{"points": body}, nil)
}

// Search returns the nearest points by cosine similarity, scores clamped to [0,1].
func (s *VectorStore) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchHit, error) {
	const op = "search"
	if len(req.Vector) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(req.Vector)), nil)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	body := map[string]any{
		"vector":       req.Vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  req.WithVectors,
	}
	if req.ScoreThreshold != nil {
		body["score_threshold"] = *req.ScoreThreshold
	}
	if req.Filter != nil {
		body["filter"] = matchFilter(*req.Filter)
	}

	var items []searchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), body, &items); err != nil {
		return nil, err
	}

	hits := make([]domain.SearchHit, 0, len(items))
	for _, item := range items {
		id, ok := decodePointID(item.ID)
		if !ok {
			s.log.Warn("skipping qdrant point with non-numeric id", "id", string(item.ID))
			continue
		}
		hit := domain.SearchHit{
			ID:      id,
			Score:   domain.ClampScore(item.Score),
			Payload: item.Payload,
		}
		if req.WithVectors {
			hit.Vector = item.Vector
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func matchFilter(m domain.FieldMatch) map[string]any {
	return map[string]any{
		"must": []any{
			map[string]any{
				"key":   m.Key,
				"match": map[string]any{"value": m.Value},
			},
		},
	}
}

func (s *VectorStore) newRequest(ctx context.Context, op, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
	return req, nil
}

func (s *VectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := s.newRequest(ctx, op, method, path, body)
	if err != nil {
		return err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(env.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func decodePointID(raw json.RawMessage) (int64, bool) {
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, true
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		parsed, err := strconv.ParseInt(idString, 10, 64)
		return parsed, err == nil
	}
	return 0, false
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *VectorStore) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}
