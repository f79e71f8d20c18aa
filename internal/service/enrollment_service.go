package service

import (
	"context"
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-enrollment-api/internal/academic"
	"github.com/noah-isme/academic-enrollment-api/internal/dto"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

// EnrollmentService exposes subject enrollment use cases.
type EnrollmentService struct {
	ops       *academic.Operations
	loader    aggregateLoader
	writer    changeSetCommitter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(ops *academic.Operations, loader aggregateLoader, writer changeSetCommitter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{ops: ops, loader: loader, writer: writer, metrics: metrics, validator: validate, logger: logger}
}

// Enroll starts a subject in a group.
func (s *EnrollmentService) Enroll(ctx context.Context, req dto.EnrollRequest, actor *models.JWTClaims) (*dto.EnrollmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	if err := authorizeStudent(actor, req.StudentID); err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.loader, req.StudentID, []string{req.SubjectName}, []string{req.GroupID}); err != nil {
		return nil, err
	}
	changes, err := s.ops.EnrollSubject(req.StudentID, req.SubjectName, req.GroupID)
	s.metrics.RecordEnrollment("enroll", err)
	if err != nil {
		s.logger.Debug("enrollment rejected", zap.String("student_id", req.StudentID), zap.String("subject", req.SubjectName), zap.String("group_id", req.GroupID), zap.Error(err))
		return nil, err
	}
	return s.finish(ctx, changes)
}

// Unenroll withdraws a subject and frees the seat.
func (s *EnrollmentService) Unenroll(ctx context.Context, req dto.UnenrollRequest, actor *models.JWTClaims) (*dto.EnrollmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid unenroll payload")
	}
	if err := authorizeStudent(actor, req.StudentID); err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.loader, req.StudentID, []string{req.SubjectName}, []string{req.GroupID}); err != nil {
		return nil, err
	}
	changes, err := s.ops.UnenrollSubject(req.StudentID, req.SubjectName, req.GroupID)
	s.metrics.RecordEnrollment("unenroll", err)
	if err != nil {
		s.logger.Debug("unenroll rejected", zap.String("student_id", req.StudentID), zap.String("subject", req.SubjectName), zap.Error(err))
		return nil, err
	}
	return s.finish(ctx, changes)
}

// Grade closes the current attempt as approved or failed.
func (s *EnrollmentService) Grade(ctx context.Context, req dto.GradeRequest, actor *models.JWTClaims) (*dto.EnrollmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade payload")
	}
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.loader, req.StudentID, []string{req.SubjectName}, nil); err != nil {
		return nil, err
	}

	var (
		changes   *academic.ChangeSet
		err       error
		operation string
	)
	switch req.Outcome {
	case dto.GradeOutcomeApproved:
		operation = "approve"
		changes, err = s.ops.ApproveSubject(req.StudentID, req.SubjectName, req.Grade)
	default:
		operation = "fail"
		changes, err = s.ops.FailSubject(req.StudentID, req.SubjectName, req.Grade)
	}
	s.metrics.RecordEnrollment(operation, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("subject graded",
		zap.String("student_id", req.StudentID),
		zap.String("subject", req.SubjectName),
		zap.String("outcome", string(req.Outcome)),
		zap.String("actor_id", actor.UserID),
	)
	return s.finish(ctx, changes)
}

// Eligibility reports whether the student could enroll in a subject, and
// optionally in a specific group. Rule violations are returned as data.
func (s *EnrollmentService) Eligibility(ctx context.Context, studentID string, query dto.EligibilityQuery, actor *models.JWTClaims) (*models.Eligibility, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid eligibility query")
	}
	if err := authorizeStudent(actor, studentID); err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.loader, studentID, []string{query.SubjectName}, []string{query.GroupID}); err != nil {
		return nil, err
	}

	var err error
	if query.GroupID == "" {
		err = s.ops.CanEnroll(studentID, query.SubjectName)
	} else {
		err = s.ops.CanEnrollInGroup(studentID, query.SubjectName, query.GroupID)
	}
	result := &models.Eligibility{StudentID: studentID, SubjectName: query.SubjectName, GroupID: query.GroupID, Eligible: err == nil}
	if err != nil {
		var appErr *appErrors.Error
		if !errors.As(err, &appErr) || errors.Is(err, appErrors.ErrInternal) {
			return nil, internalOr(err, "failed to check eligibility")
		}
		result.Code = appErr.Code
		result.Reason = appErr.Message
	}
	return result, nil
}

// StudentEnrollments lists the student's subject records ordered by subject name.
func (s *EnrollmentService) StudentEnrollments(ctx context.Context, studentID string, actor *models.JWTClaims) ([]*models.SubjectEnrollment, error) {
	if err := authorizeStudent(actor, studentID); err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.loader, studentID, nil, nil); err != nil {
		return nil, err
	}
	student, err := s.ops.Student(studentID)
	if err != nil {
		return nil, err
	}
	records := make([]*models.SubjectEnrollment, 0, len(student.Enrollments))
	for _, rec := range student.Enrollments {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].SubjectName < records[j].SubjectName })
	return records, nil
}

func (s *EnrollmentService) finish(ctx context.Context, changes *academic.ChangeSet) (*dto.EnrollmentResponse, error) {
	if err := s.writer.Commit(ctx, changes); err != nil {
		return nil, err
	}
	resp := &dto.EnrollmentResponse{}
	if len(changes.Enrollments) > 0 {
		resp.Enrollment = changes.Enrollments[0]
	}
	for _, group := range changes.Groups {
		s.metrics.SetGroupOccupancy(group)
		if resp.Group == nil {
			resp.Group = group
		}
	}
	return resp, nil
}
