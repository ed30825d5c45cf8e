package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/strom/internal/api"
	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/service"
	"github.com/go-chi/chi/v5"
)

// DefaultMaxUploadBytes caps multipart uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

type DocumentIngester interface {
	IngestDocument(ctx context.Context, in service.IngestDocumentInput) (*service.IngestDocumentResult, error)
}

type IngestionJobs interface {
	Submit(ctx context.Context, in service.IngestDocumentInput) (*domain.IngestionJob, error)
	Get(ctx context.Context, id string) (*domain.IngestionJob, error)
}

type IngestionHandler struct {
	ingester       DocumentIngester
	jobs           IngestionJobs
	maxUploadBytes int64
}

// NewIngestionHandler creates the upload handler. jobs may be nil, in which
// case async uploads are rejected.
func NewIngestionHandler(ingester DocumentIngester, jobs IngestionJobs, maxUploadBytes int64) *IngestionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &IngestionHandler{ingester: ingester, jobs: jobs, maxUploadBytes: maxUploadBytes}
}

type IngestionJobResponse struct {
	ID          string                `json:"id"`
	Filename    string                `json:"filename"`
	DocumentID  string                `json:"document_id,omitempty"`
	Status      string                `json:"status"`
	Stats       domain.IngestionStats `json:"stats"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   string                `json:"created_at"`
	ProcessedAt string                `json:"processed_at,omitempty"`
}

func jobToResponse(j *domain.IngestionJob) *IngestionJobResponse {
	resp := &IngestionJobResponse{
		ID:         j.ID,
		Filename:   j.Filename,
		DocumentID: j.DocumentID,
		Status:     string(j.Status),
		Stats:      j.Stats,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if j.ProcessedAt != nil {
		resp.ProcessedAt = j.ProcessedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Create ingests an uploaded .txt file. With ?async=true the upload is
// queued and a job is returned; ?mode=bulk embeds everything before storing.
func (h *IngestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, err := h.readUpload(w, r)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if isTrue(r.URL.Query().Get("async")) {
		if h.jobs == nil {
			api.Error(w, http.StatusServiceUnavailable, "background ingestion is disabled")
			return
		}
		job, err := h.jobs.Submit(r.Context(), input)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusAccepted, jobToResponse(job))
		return
	}

	result, err := h.ingester.IngestDocument(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

func (h *IngestionHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		api.Error(w, http.StatusNotFound, "ingestion job not found")
		return
	}

	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, jobToResponse(job))
}

func (h *IngestionHandler) readUpload(w http.ResponseWriter, r *http.Request) (service.IngestDocumentInput, error) {
	var in service.IngestDocumentInput

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, domain.NewDomainError(domain.ErrCodeValidation, "upload is too large")
		}
		return in, domain.NewDomainError(domain.ErrCodeValidation, "invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return in, domain.Wrap(domain.ErrMissingRequiredField, errors.New("file"))
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".txt") {
		return in, domain.ErrUnsupportedFileType
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return in, domain.NewDomainError(domain.ErrCodeValidation, "failed to read upload")
	}

	in.Text = string(content)
	in.Filename = filepath.Base(header.Filename)
	in.Bulk = strings.EqualFold(r.URL.Query().Get("mode"), "bulk")

	if raw := strings.TrimSpace(r.FormValue("custom_metadata")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Custom); err != nil || in.Custom == nil {
			return in, domain.ErrInvalidCustomMetadata
		}
	}

	if err := service.ValidateDocumentInput(in); err != nil {
		return in, err
	}
	return in, nil
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
