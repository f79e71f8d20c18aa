package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-enrollment-api/internal/academic"
	"github.com/noah-isme/academic-enrollment-api/internal/dto"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
	"github.com/noah-isme/academic-enrollment-api/pkg/export"
)

type requestOwnerLookup interface {
	FindStudentID(ctx context.Context, requestID string) (string, error)
}

type requestWriter interface {
	changeSetCommitter
	DeleteRequest(ctx context.Context, requestID string) error
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type statsInvalidator interface {
	Invalidate(ctx context.Context, studentID string)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// RequestService drives the group and subject change request workflow.
type RequestService struct {
	ops         *academic.Operations
	loader      aggregateLoader
	owners      requestOwnerLookup
	writer      requestWriter
	cache       statsCache
	invalidator statsInvalidator
	statsTTL    time.Duration
	csv         csvRenderer
	pdf         pdfRenderer
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// RequestServiceOption customises the service.
type RequestServiceOption func(*RequestService)

// WithStatsCache caches per-student statistics for ttl and drops them through invalidator.
func WithStatsCache(cache statsCache, invalidator statsInvalidator, ttl time.Duration) RequestServiceOption {
	return func(s *RequestService) {
		s.cache = cache
		s.invalidator = invalidator
		if ttl > 0 {
			s.statsTTL = ttl
		}
	}
}

// WithRequestExporters overrides the history renderers.
func WithRequestExporters(csv csvRenderer, pdf pdfRenderer) RequestServiceOption {
	return func(s *RequestService) {
		if csv != nil {
			s.csv = csv
		}
		if pdf != nil {
			s.pdf = pdf
		}
	}
}

// NewRequestService constructs the service.
func NewRequestService(ops *academic.Operations, loader aggregateLoader, owners requestOwnerLookup, writer requestWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts ...RequestServiceOption) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RequestService{
		ops:       ops,
		loader:    loader,
		owners:    owners,
		writer:    writer,
		statsTTL:  time.Minute,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateGroupChange submits a request to move to another group of the same subject.
func (s *RequestService) CreateGroupChange(ctx context.Context, req dto.CreateGroupChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid group change payload")
	}
	if err := authorizeStudent(actor, req.StudentID); err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.loader, req.StudentID, []string{req.SubjectName}, []string{req.TargetGroupID}); err != nil {
		return nil, err
	}
	changes, err := s.ops.CreateGroupChangeRequest(req.StudentID, req.SubjectName, req.TargetGroupID, req.Reason)
	s.metrics.RecordRequestTransition("create", err)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, req.StudentID, changes)
}

// CreateSubjectChange submits a request to replace a subject with another one.
func (s *RequestService) CreateSubjectChange(ctx context.Context, req dto.CreateSubjectChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid subject change payload")
	}
	if err := authorizeStudent(actor, req.StudentID); err != nil {
		return nil, err
	}
	subjects := []string{req.SubjectName, req.TargetSubjectName}
	if err := hydrate(ctx, s.loader, req.StudentID, subjects, []string{req.TargetGroupID}); err != nil {
		return nil, err
	}
	changes, err := s.ops.CreateSubjectChangeRequest(req.StudentID, req.SubjectName, req.TargetSubjectName, req.TargetGroupID, req.Reason)
	s.metrics.RecordRequestTransition("create", err)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, req.StudentID, changes)
}

// Review moves a pending request into review.
func (s *RequestService) Review(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	studentID, err := s.prepare(ctx, requestID, false)
	if err != nil {
		return nil, err
	}
	changes, err := s.ops.ReviewRequest(studentID, requestID, actor.UserID)
	s.metrics.RecordRequestTransition("review", err)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, studentID, changes)
}

// Approve applies the requested change and resolves the request. When the
// change cannot be applied the request stays in review and the reason is returned.
func (s *RequestService) Approve(ctx context.Context, requestID string, req dto.ResolveRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid resolution payload")
	}
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	studentID, err := s.prepare(ctx, requestID, true)
	if err != nil {
		return nil, err
	}
	changes, err := s.ops.ApproveRequest(studentID, requestID, actor.UserID, req.Comment)
	s.metrics.RecordRequestTransition("approve", err)
	if err != nil {
		if errors.Is(err, appErrors.ErrInternal) {
			s.logger.Error("request approval left inconsistent state", zap.String("request_id", requestID), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("change request approved", zap.String("request_id", requestID), zap.String("student_id", studentID), zap.String("actor_id", actor.UserID))
	return s.finish(ctx, studentID, changes)
}

// Reject closes the request without applying it.
func (s *RequestService) Reject(ctx context.Context, requestID string, req dto.ResolveRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid resolution payload")
	}
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	studentID, err := s.prepare(ctx, requestID, false)
	if err != nil {
		return nil, err
	}
	changes, err := s.ops.RejectRequest(studentID, requestID, actor.UserID, req.Comment)
	s.metrics.RecordRequestTransition("reject", err)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, studentID, changes)
}

// Cancel lets the owner withdraw an unresolved request.
func (s *RequestService) Cancel(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	studentID, err := s.prepare(ctx, requestID, false)
	if err != nil {
		return nil, err
	}
	if err := authorizeStudent(actor, studentID); err != nil {
		return nil, err
	}
	removed, err := s.ops.RemoveRequest(studentID, requestID)
	s.metrics.RecordRequestTransition("cancel", err)
	if err != nil {
		return nil, err
	}
	if err := s.writer.DeleteRequest(ctx, requestID); err != nil {
		return nil, err
	}
	s.invalidate(ctx, studentID)
	return removed, nil
}

// Stats returns the request statistics of a student and whether they came from cache.
func (s *RequestService) Stats(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.RequestStats, bool, error) {
	if err := authorizeStudent(actor, studentID); err != nil {
		return nil, false, err
	}
	key := requestStatsKey(studentID)
	if s.cache != nil {
		var cached models.RequestStats
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}
	if err := hydrate(ctx, s.loader, studentID, nil, nil); err != nil {
		return nil, false, err
	}
	stats, err := s.ops.RequestStats(studentID)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, stats, s.statsTTL)
	}
	return &stats, false, nil
}

// History lists the student's resolved requests, oldest first.
func (s *RequestService) History(ctx context.Context, studentID string, actor *models.JWTClaims) ([]*models.ChangeRequest, error) {
	if err := authorizeStudent(actor, studentID); err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.loader, studentID, nil, nil); err != nil {
		return nil, err
	}
	return s.ops.RequestHistory(studentID)
}

// ExportHistory renders the resolved requests as CSV or PDF.
func (s *RequestService) ExportHistory(ctx context.Context, studentID string, format dto.ExportFormat, actor *models.JWTClaims) (*dto.ExportFile, error) {
	format = dto.ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = dto.ExportFormatCSV
	}
	if format != dto.ExportFormatCSV && format != dto.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	history, err := s.History(ctx, studentID, actor)
	if err != nil {
		return nil, err
	}
	dataset := historyDataset(history)
	filename := fmt.Sprintf("requests-%s.%s", studentID, format)

	switch format {
	case dto.ExportFormatPDF:
		content, err := s.pdf.Render(dataset, "Change requests "+studentID)
		if err != nil {
			return nil, internalOr(err, "failed to render pdf")
		}
		return &dto.ExportFile{Filename: filename, ContentType: "application/pdf", Content: content}, nil
	default:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, internalOr(err, "failed to render csv")
		}
		return &dto.ExportFile{Filename: filename, ContentType: "text/csv", Content: content}, nil
	}
}

// prepare resolves the owner of a request and loads it. With targets set the
// subjects and groups the request points at are loaded too.
func (s *RequestService) prepare(ctx context.Context, requestID string, targets bool) (string, error) {
	studentID, err := s.owners.FindStudentID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clonef(appErrors.ErrRequestNotFound, "request %s not found", requestID)
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve request owner")
	}
	if err := hydrate(ctx, s.loader, studentID, nil, nil); err != nil {
		return "", err
	}
	if !targets {
		return studentID, nil
	}
	student, err := s.ops.Student(studentID)
	if err != nil {
		return "", err
	}
	for _, r := range student.Requests {
		if r.ID != requestID {
			continue
		}
		subjects := []string{r.SubjectName, r.TargetSubjectName}
		groups := []string{r.CurrentGroupID, r.TargetGroupID}
		if err := hydrate(ctx, s.loader, "", subjects, groups); err != nil {
			return "", err
		}
	}
	return studentID, nil
}

func (s *RequestService) finish(ctx context.Context, studentID string, changes *academic.ChangeSet) (*models.ChangeRequest, error) {
	if err := s.writer.Commit(ctx, changes); err != nil {
		return nil, err
	}
	s.invalidate(ctx, studentID)
	for _, group := range changes.Groups {
		s.metrics.SetGroupOccupancy(group)
	}
	if len(changes.Requests) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "operation returned no request")
	}
	return changes.Requests[len(changes.Requests)-1], nil
}

func (s *RequestService) invalidate(ctx context.Context, studentID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, studentID)
	}
}

func historyDataset(history []*models.ChangeRequest) export.Dataset {
	headers := []string{"ID", "Kind", "Subject", "From Group", "Target Subject", "Target Group", "State", "Created", "Resolved", "Comment"}
	rows := make([]map[string]string, 0, len(history))
	for _, r := range history {
		row := map[string]string{
			"ID":             r.ID,
			"Kind":           string(r.Kind),
			"Subject":        r.SubjectName,
			"From Group":     r.CurrentGroupID,
			"Target Subject": r.TargetSubjectName,
			"Target Group":   r.TargetGroupID,
			"State":          string(r.State),
			"Created":        r.CreatedAt.Format(time.RFC3339),
		}
		if r.ResolvedAt != nil {
			row["Resolved"] = r.ResolvedAt.Format(time.RFC3339)
		}
		if r.ResolutionComment != nil {
			row["Comment"] = *r.ResolutionComment
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
