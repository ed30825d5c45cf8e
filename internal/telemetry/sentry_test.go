package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/strom/internal/domain"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	assert.NotPanics(t, shutdown)
}

func TestStartSpan_WithoutClient(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "IngestionService.IngestDocument", SpanAttributes{
		DocumentID: "doc_abc",
		Source:     "solar.txt",
		Operation:  "ingest",
	})
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	_, child := StartSpan(ctx, "child", SpanAttributes{JobID: "job-1"})
	assert.NotPanics(t, func() {
		child.SetError(errors.New("boom"))
		child.End()
		span.End()
	})
}

func TestSpan_NilInner(t *testing.T) {
	var s Span
	assert.NotPanics(t, func() {
		s.End()
		s.SetError(errors.New("x"))
	})
	assert.NotNil(t, s.Context())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want sentry.SpanStatus
	}{
		{"deadline", fmt.Errorf("ingest: %w", context.DeadlineExceeded), sentry.SpanStatusDeadlineExceeded},
		{"canceled", context.Canceled, sentry.SpanStatusCanceled},
		{"validation", domain.ErrEmptyMessage, sentry.SpanStatusInvalidArgument},
		{"limit", domain.ErrMessageLimitReached, sentry.SpanStatusResourceExhausted},
		{"ingestion timeout", domain.Wrap(domain.ErrIngestionTimeout, errors.New("slow")), sentry.SpanStatusDeadlineExceeded},
		{"queue full", domain.ErrJobQueueFull, sentry.SpanStatusUnavailable},
		{"transport", domain.Wrap(domain.ErrGenerationTransport, errors.New("reset")), sentry.SpanStatusUnavailable},
		{"plain", errors.New("boom"), sentry.SpanStatusInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestScrubEvent(t *testing.T) {
	event := &sentry.Event{Request: &sentry.Request{URL: "/agent/conversation", Data: `{"message":"secret"}`, Cookies: "a=b"}}

	got := scrubEvent(event, &sentry.EventHint{OriginalException: errors.New("boom")})
	require.NotNil(t, got)
	assert.Empty(t, got.Request.Data)
	assert.Empty(t, got.Request.Cookies)
	assert.Equal(t, "/agent/conversation", got.Request.URL)

	assert.Nil(t, scrubEvent(&sentry.Event{}, &sentry.EventHint{OriginalException: fmt.Errorf("read: %w", context.Canceled)}))
	assert.NotNil(t, scrubEvent(&sentry.Event{}, nil))
}

func TestSampler(t *testing.T) {
	sample := sampler(0.25)

	health := &sentry.Span{Name: "GET /health"}
	assert.Zero(t, sample(sentry.SamplingContext{Span: health}))

	root := &sentry.Span{Name: "POST /agent/conversation"}
	assert.InDelta(t, 0.25, sample(sentry.SamplingContext{Span: root}), 1e-9)

	child := &sentry.Span{Name: "child", ParentSpanID: sentry.SpanID{1}, Sampled: sentry.SampledTrue}
	assert.InDelta(t, 1.0, sample(sentry.SamplingContext{Span: child}), 1e-9)

	child.Sampled = sentry.SampledFalse
	assert.Zero(t, sample(sentry.SamplingContext{Span: child}))
}

func TestCaptureAndBreadcrumb_WithoutClient(t *testing.T) {
	ctx, txn := StartTransaction(context.Background(), "ingestion job", "queue.process")
	defer txn.End()

	assert.NotPanics(t, func() {
		AddBreadcrumb(ctx, "ingestion", "processing job", map[string]interface{}{"job_id": "j-1"})
		CaptureError(ctx, domain.ErrArchiveFailed)
		CaptureError(ctx, nil)
		txn.SetData("chunks", 3)
	})
}
