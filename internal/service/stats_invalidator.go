package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-enrollment-api/pkg/jobs"
)

const jobTypeInvalidateStats = "request.stats.invalidate"

type cacheDeleter interface {
	Delete(ctx context.Context, keys ...string) error
}

// StatsInvalidator drops cached request statistics. A failed delete is retried
// through the invalidation queue.
type StatsInvalidator struct {
	cache  cacheDeleter
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewStatsInvalidator constructs the invalidator.
func NewStatsInvalidator(cache cacheDeleter, logger *zap.Logger) *StatsInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsInvalidator{cache: cache, logger: logger}
}

// UseQueue attaches the retry queue.
func (i *StatsInvalidator) UseQueue(queue jobEnqueuer) {
	i.queue = queue
}

// Invalidate deletes the cached statistics of a student.
func (i *StatsInvalidator) Invalidate(ctx context.Context, studentID string) {
	if i == nil || i.cache == nil {
		return
	}
	err := i.cache.Delete(ctx, requestStatsKey(studentID))
	if err == nil {
		return
	}
	if i.queue == nil {
		i.logger.Warn("stats invalidation failed", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: jobTypeInvalidateStats, Payload: studentID}
	if qErr := i.queue.Enqueue(job); qErr != nil {
		i.logger.Warn("failed to queue stats invalidation", zap.String("student_id", studentID), zap.NamedError("cause", err), zap.Error(qErr))
	}
}

// Handle is the invalidation queue handler.
func (i *StatsInvalidator) Handle(ctx context.Context, job jobs.Job) error {
	studentID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	return i.cache.Delete(ctx, requestStatsKey(studentID))
}

func requestStatsKey(studentID string) string {
	return "requests:stats:" + studentID
}
