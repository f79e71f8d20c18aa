package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-enrollment-api/internal/academic"
	"github.com/noah-isme/academic-enrollment-api/pkg/jobs"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

const (
	jobTypeCommitChangeSet = "changeset.commit"
	jobTypeDeleteRequest   = "request.delete"
)

type changeSetStore interface {
	Commit(ctx context.Context, changes *academic.ChangeSet) error
}

type requestRemover interface {
	Delete(ctx context.Context, id string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ChangeSetWriter persists the snapshots returned by the academic core. The
// in-memory aggregates are already updated when it runs, so a failed write is
// handed to the retry queue instead of being reported to the caller.
type ChangeSetWriter struct {
	store    changeSetStore
	requests requestRemover
	queue    jobEnqueuer
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewChangeSetWriter constructs the writer. Call UseQueue before serving traffic
// to enable retries.
func NewChangeSetWriter(store changeSetStore, requests requestRemover, metrics *MetricsService, logger *zap.Logger) *ChangeSetWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeSetWriter{store: store, requests: requests, metrics: metrics, logger: logger}
}

// UseQueue attaches the retry queue.
func (w *ChangeSetWriter) UseQueue(queue jobEnqueuer) {
	w.queue = queue
}

// Commit writes changes, scheduling a retry when the first attempt fails. An
// error is returned only when the write could neither succeed nor be queued.
func (w *ChangeSetWriter) Commit(ctx context.Context, changes *academic.ChangeSet) error {
	if changes == nil {
		return nil
	}
	if err := w.store.Commit(ctx, changes); err != nil {
		return w.retry(jobs.Job{ID: uuid.NewString(), Type: jobTypeCommitChangeSet, Payload: changes}, err)
	}
	return nil
}

// DeleteRequest removes a cancelled request row, with the same retry policy as Commit.
func (w *ChangeSetWriter) DeleteRequest(ctx context.Context, requestID string) error {
	if w.requests == nil {
		return nil
	}
	if err := w.requests.Delete(ctx, requestID); err != nil {
		return w.retry(jobs.Job{ID: uuid.NewString(), Type: jobTypeDeleteRequest, Payload: requestID}, err)
	}
	return nil
}

// Handle is the retry queue handler.
func (w *ChangeSetWriter) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobTypeCommitChangeSet:
		changes, ok := job.Payload.(*academic.ChangeSet)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
		}
		return w.store.Commit(ctx, changes)
	case jobTypeDeleteRequest:
		requestID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
		}
		return w.requests.Delete(ctx, requestID)
	default:
		return fmt.Errorf("unknown job type %s", job.Type)
	}
}

func (w *ChangeSetWriter) retry(job jobs.Job, cause error) error {
	w.metrics.RecordCommitFailure()
	if w.queue == nil {
		w.logger.Error("persist failed without retry queue", zap.String("job_type", job.Type), zap.Error(cause))
		return appErrors.Wrap(cause, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist changes")
	}
	if err := w.queue.Enqueue(job); err != nil {
		w.logger.Error("failed to queue persist retry", zap.String("job_type", job.Type), zap.NamedError("cause", cause), zap.Error(err))
		return appErrors.Wrap(cause, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist changes")
	}
	w.logger.Warn("persist failed, retry queued", zap.String("job_id", job.ID), zap.String("job_type", job.Type), zap.Error(cause))
	return nil
}
