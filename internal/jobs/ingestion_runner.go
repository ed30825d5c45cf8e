package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/logger"
	"github.com/cloo-solutions/strom/internal/service"
	"github.com/cloo-solutions/strom/internal/telemetry"
)

// DefaultQueueSize bounds the number of uploads waiting for the runner.
const DefaultQueueSize = 16

const (
	interruptedReason = "interrupted: service restarted before the job finished"
	stoppedReason     = "interrupted: service stopped while the job was running"
)

// IngestionJobRepository persists job status.
type IngestionJobRepository interface {
	Create(ctx context.Context, job *domain.IngestionJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestionJob, error)
	UpdateStatus(ctx context.Context, job *domain.IngestionJob) error
	FailUnfinished(ctx context.Context, reason string) (int64, error)
}

// DocumentProcessor ingests one document.
type DocumentProcessor interface {
	IngestDocument(ctx context.Context, in service.IngestDocumentInput) (*service.IngestDocumentResult, error)
}

type task struct {
	job   *domain.IngestionJob
	input service.IngestDocumentInput
}

// IngestionRunner processes uploads in the background, one at a time, in
// submission order.
type IngestionRunner struct {
	repo      IngestionJobRepository
	processor DocumentProcessor
	queue     chan task
	log       *logger.Logger
	now       func() time.Time
	newID     func() string

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewIngestionRunner creates a new IngestionRunner instance
func NewIngestionRunner(repo IngestionJobRepository, processor DocumentProcessor, queueSize int, log *logger.Logger) *IngestionRunner {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &IngestionRunner{
		repo:      repo,
		processor: processor,
		queue:     make(chan task, queueSize),
		log:       log.With("service", "IngestionRunner"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Submit records a pending job and queues the upload. Invalid input is
// rejected before a job is created. The returned job belongs to the caller;
// the runner works on its own copy.
func (r *IngestionRunner) Submit(ctx context.Context, in service.IngestDocumentInput) (*domain.IngestionJob, error) {
	if err := service.ValidateDocumentInput(in); err != nil {
		return nil, err
	}

	job := domain.NewIngestionJob(r.newID(), in.Filename, r.now())
	if err := r.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create ingestion job: %w", err)
	}

	queued := *job
	select {
	case r.queue <- task{job: &queued, input: in}:
		r.log.Info("ingestion job queued", "job_id", job.ID, "filename", job.Filename)
		return job, nil
	default:
		job.Status = domain.IngestionJobStatusFailed
		job.Error = domain.ErrJobQueueFull.Message
		if err := r.repo.UpdateStatus(ctx, job); err != nil {
			r.log.Warn("failed to record rejected job", "job_id", job.ID, "error", err)
		}
		return nil, domain.ErrJobQueueFull
	}
}

// Get returns the current state of a job.
func (r *IngestionRunner) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrIngestionJobNotFound
	}
	return r.repo.GetByID(ctx, id)
}

// Start marks jobs orphaned by a previous process as failed, then processes
// queued uploads until ctx is cancelled or Stop is called.
func (r *IngestionRunner) Start(ctx context.Context) {
	defer close(r.doneChan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if n, err := r.repo.FailUnfinished(ctx, interruptedReason); err != nil {
		r.log.Warn("failed to reset unfinished jobs", "error", err)
	} else if n > 0 {
		r.log.Info("marked unfinished jobs as failed", "count", n)
	}

	r.log.Info("ingestion runner started", "queue_size", cap(r.queue))

	for {
		if ctx.Err() != nil {
			r.log.Info("ingestion runner stopped")
			return
		}
		select {
		case <-ctx.Done():
			r.log.Info("ingestion runner stopped: context cancelled")
			return
		case <-r.stopChan:
			r.log.Info("ingestion runner stopped: stop signal received")
			return
		case t := <-r.queue:
			r.process(ctx, t)
		}
	}
}

// Stop cancels the job in progress, waits for its outcome to be recorded and
// for the runner to exit. Jobs still queued stay pending and are failed on
// the next Start.
func (r *IngestionRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	<-r.doneChan
	r.log.Info("ingestion runner shutdown complete")
}

func (r *IngestionRunner) process(ctx context.Context, t task) {
	job := t.job
	ctx, txn := telemetry.StartTransaction(ctx, "ingestion job", "queue.process")
	defer txn.End()
	ctx, span := telemetry.StartSpan(ctx, "IngestionRunner.process", telemetry.SpanAttributes{
		JobID:     job.ID,
		Source:    job.Filename,
		Operation: "ingest_job",
	})
	defer span.End()
	telemetry.AddBreadcrumb(ctx, "ingestion", "processing job", map[string]interface{}{
		"job_id": job.ID,
		"bulk":   t.input.Bulk,
	})

	job.Status = domain.IngestionJobStatusProcessing
	if err := r.repo.UpdateStatus(ctx, job); err != nil {
		r.log.Warn("failed to mark job processing", "job_id", job.ID, "error", err)
	}

	result, err := r.processor.IngestDocument(ctx, t.input)
	if result != nil {
		job.DocumentID = result.DocumentID
		job.Stats = result.Stats
	}

	switch {
	case err == nil:
		job.Status = domain.IngestionJobStatusCompleted
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		job.Status = domain.IngestionJobStatusFailed
		job.Error = stoppedReason
	case errors.Is(err, domain.ErrIngestionTimeout):
		job.Status = domain.IngestionJobStatusTimedOut
		job.Error = err.Error()
	default:
		job.Status = domain.IngestionJobStatusFailed
		job.Error = err.Error()
		span.SetError(err)
		telemetry.CaptureError(ctx, err)
	}

	// Record the outcome even if ctx was cancelled mid-job.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.repo.UpdateStatus(recordCtx, job); err != nil {
		r.log.Error("failed to record job outcome", "job_id", job.ID, "status", job.Status, "error", err)
		return
	}
	r.log.Info("ingestion job finished",
		"job_id", job.ID,
		"status", job.Status,
		"document_id", job.DocumentID,
		"stored", job.Stats.StoredEmbeddings,
	)
}
