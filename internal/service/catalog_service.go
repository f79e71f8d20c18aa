package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-enrollment-api/internal/academic"
	"github.com/noah-isme/academic-enrollment-api/internal/dto"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type subjectStore interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByName(ctx context.Context, name string) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
}

type groupStore interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id string) error
}

type catalogRegistry interface {
	aggregateLoader
	PutSubject(subject *models.Subject)
	PutGroup(group *models.Group) *models.Group
	EvictGroup(id string)
}

// CatalogService manages subjects and their groups.
type CatalogService struct {
	ops       *academic.Operations
	registry  catalogRegistry
	subjects  subjectStore
	groups    groupStore
	writer    changeSetCommitter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCatalogService constructs the service.
func NewCatalogService(ops *academic.Operations, registry catalogRegistry, subjects subjectStore, groups groupStore, writer changeSetCommitter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		ops:       ops,
		registry:  registry,
		subjects:  subjects,
		groups:    groups,
		writer:    writer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListSubjects returns catalog subjects with pagination.
func (s *CatalogService) ListSubjects(ctx context.Context, query dto.SubjectQuery) ([]models.Subject, *models.Pagination, error) {
	filter := models.SubjectFilter{
		Semester: query.Semester,
		Search:   strings.TrimSpace(query.Search),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	subjects, total, err := s.subjects.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// CreateSubject adds a subject. Prerequisites must already exist.
func (s *CatalogService) CreateSubject(ctx context.Context, req dto.CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid subject payload")
	}
	name := strings.TrimSpace(req.Name)
	if _, err := s.subjects.FindByName(ctx, name); err == nil {
		return nil, appErrors.Clonef(appErrors.ErrConflict, "subject %s already exists", name)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject")
	}
	for _, prereq := range req.Prerequisites {
		if prereq == name {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "subject %s cannot require itself", name)
		}
		if _, err := s.registry.LoadSubject(ctx, prereq); err != nil {
			if errors.Is(err, appErrors.ErrNotFound) {
				return nil, appErrors.Clonef(appErrors.ErrValidation, "prerequisite %s does not exist", prereq)
			}
			return nil, internalOr(err, "failed to check prerequisite")
		}
	}
	now := s.now()
	subject := &models.Subject{
		Name:          name,
		Credits:       req.Credits,
		Prerequisites: append(models.StringSlice{}, req.Prerequisites...),
		Semester:      req.Semester,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.registry.PutSubject(subject)
	return subject, nil
}

// GetGroup returns the current state of a group.
func (s *CatalogService) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	if _, err := s.registry.LoadGroup(ctx, id); err != nil {
		return nil, internalOr(err, "failed to load group")
	}
	return s.ops.Group(id)
}

// ListGroups lists groups, preferring the live state of groups held in memory.
func (s *CatalogService) ListGroups(ctx context.Context, filter models.GroupFilter) ([]*models.Group, error) {
	rows, err := s.groups.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	out := make([]*models.Group, 0, len(rows))
	for i := range rows {
		if live, err := s.ops.Group(rows[i].ID); err == nil {
			out = append(out, live)
			continue
		}
		out = append(out, &rows[i])
	}
	return out, nil
}

// CreateGroup opens a new, empty group for an existing subject.
func (s *CatalogService) CreateGroup(ctx context.Context, req dto.CreateGroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid group payload")
	}
	if _, err := s.registry.LoadSubject(ctx, req.SubjectName); err != nil {
		return nil, internalOr(err, "failed to load subject")
	}
	if _, err := s.groups.FindByID(ctx, req.ID); err == nil {
		return nil, appErrors.Clonef(appErrors.ErrConflict, "group %s already exists", req.ID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check group")
	}
	now := s.now()
	group := &models.Group{
		ID:          req.ID,
		SubjectName: req.SubjectName,
		ProfessorID: req.ProfessorID,
		Capacity:    req.Capacity,
		Schedule:    append(models.ScheduleSlots{}, req.Schedule...),
		StudentIDs:  []string{},
		State:       models.GroupStateOpen,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := academic.ValidateGroup(group); err != nil {
		return nil, err
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	resident := s.registry.PutGroup(group)
	s.metrics.SetGroupOccupancy(resident)
	return resident.Clone(), nil
}

// OpenGroup re-opens a closed group.
func (s *CatalogService) OpenGroup(ctx context.Context, id string) (*models.Group, error) {
	return s.changeGroup(ctx, id, s.ops.OpenGroup)
}

// CloseGroup stops admissions to a group.
func (s *CatalogService) CloseGroup(ctx context.Context, id string) (*models.Group, error) {
	return s.changeGroup(ctx, id, s.ops.CloseGroup)
}

// DeleteGroup removes an empty group.
func (s *CatalogService) DeleteGroup(ctx context.Context, id string) error {
	if _, err := s.registry.LoadGroup(ctx, id); err != nil {
		return internalOr(err, "failed to load group")
	}
	err := s.ops.RemoveGroup(id, func(group *models.Group) error {
		if err := s.groups.Delete(ctx, group.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clonef(appErrors.ErrOperationNotAllowed, "group %s still has students", group.ID)
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
		}
		s.registry.EvictGroup(group.ID)
		s.metrics.ForgetGroup(group)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("group deleted", zap.String("group_id", id))
	return nil
}

func (s *CatalogService) changeGroup(ctx context.Context, id string, apply func(string) (*academic.ChangeSet, error)) (*models.Group, error) {
	if _, err := s.registry.LoadGroup(ctx, id); err != nil {
		return nil, internalOr(err, "failed to load group")
	}
	changes, err := apply(id)
	if err != nil {
		return nil, err
	}
	if err := s.writer.Commit(ctx, changes); err != nil {
		return nil, err
	}
	group := changes.Groups[0]
	s.metrics.SetGroupOccupancy(group)
	return group, nil
}
