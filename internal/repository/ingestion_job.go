package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/strom/internal/domain"
)

type IngestionJobRepository struct {
	db dbtx
}

func NewIngestionJobRepository(pool *pgxpool.Pool) *IngestionJobRepository {
	return &IngestionJobRepository{db: pool}
}

const ingestionJobColumns = `id, filename, document_id, status, stats, error, created_at, processed_at`

func (r *IngestionJobRepository) Create(ctx context.Context, job *domain.IngestionJob) error {
	if err := domain.ValidateIngestionJob(job); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid ingestion job", err)
	}
	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return fmt.Errorf("encode job stats: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO ingestion_jobs (`+ingestionJobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Filename, nullableString(job.DocumentID), job.Status, stats,
		nullableString(job.Error), job.CreatedAt, job.ProcessedAt,
	)
	return err
}

func (r *IngestionJobRepository) GetByID(ctx context.Context, id string) (*domain.IngestionJob, error) {
	job, err := scanIngestionJob(r.db.QueryRow(ctx,
		`SELECT `+ingestionJobColumns+` FROM ingestion_jobs WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIngestionJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// UpdateStatus records a status transition. Terminal statuses stamp processed_at.
func (r *IngestionJobRepository) UpdateStatus(ctx context.Context, job *domain.IngestionJob) error {
	if !isKnownStatus(job.Status) {
		return domain.ErrInvalidIngestionStatus
	}
	if job.Status.IsTerminal() && job.ProcessedAt == nil {
		now := time.Now().UTC()
		job.ProcessedAt = &now
	}
	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return fmt.Errorf("encode job stats: %w", err)
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingestion_jobs
		 SET status = $1, stats = $2, document_id = $3, error = $4, processed_at = $5
		 WHERE id = $6`,
		job.Status, stats, nullableString(job.DocumentID), nullableString(job.Error), job.ProcessedAt, job.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIngestionJobNotFound
	}
	return nil
}

// FailUnfinished marks jobs left pending or processing by a previous run as
// failed; their uploads only lived in that process's memory.
func (r *IngestionJobRepository) FailUnfinished(ctx context.Context, reason string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingestion_jobs
		 SET status = $1, error = $2, processed_at = NOW()
		 WHERE status IN ($3, $4)`,
		domain.IngestionJobStatusFailed, reason,
		domain.IngestionJobStatusPending, domain.IngestionJobStatusProcessing,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// ListRecent returns the newest jobs first.
func (r *IngestionJobRepository) ListRecent(ctx context.Context, limit int) ([]*domain.IngestionJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+ingestionJobColumns+` FROM ingestion_jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.IngestionJob
	for rows.Next() {
		job, err := scanIngestionJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanIngestionJob(row pgx.Row) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	var documentID, errMsg pgtype.Text
	var stats []byte
	if err := row.Scan(&job.ID, &job.Filename, &documentID, &job.Status, &stats, &errMsg, &job.CreatedAt, &job.ProcessedAt); err != nil {
		return nil, err
	}
	if documentID.Valid {
		job.DocumentID = documentID.String
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &job.Stats); err != nil {
			return nil, fmt.Errorf("decode job stats: %w", err)
		}
	}
	return &job, nil
}

func isKnownStatus(s domain.IngestionJobStatus) bool {
	return domain.ValidateIngestionJob(&domain.IngestionJob{ID: "-", Filename: "-", Status: s}) == nil
}
