package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type subjectSource interface {
	FindByName(ctx context.Context, name string) (*models.Subject, error)
}

type groupSource interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
}

type studentSource interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentSource interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.SubjectEnrollment, error)
}

type requestSource interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.ChangeRequest, error)
}

// RegistrySources are the stores the registry hydrates from.
type RegistrySources struct {
	Subjects    subjectSource
	Groups      groupSource
	Students    studentSource
	Enrollments enrollmentSource
	Requests    requestSource
}

// Registry keeps one shared in-memory instance per group and student so the
// academic core can lock and mutate them. Aggregates are hydrated from the
// stores on first use and stay resident; subjects live in a TTL catalog.
type Registry struct {
	src     RegistrySources
	catalog *gocache.Cache
	logger  *zap.Logger
	flight  singleflight.Group

	mu       sync.RWMutex
	groups   map[string]*models.Group
	students map[string]*models.Student
}

// NewRegistry builds an empty registry.
func NewRegistry(src RegistrySources, catalogTTL time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalogTTL <= 0 {
		catalogTTL = 10 * time.Minute
	}
	return &Registry{
		src:      src,
		catalog:  gocache.New(catalogTTL, 2*catalogTTL),
		logger:   logger,
		groups:   make(map[string]*models.Group),
		students: make(map[string]*models.Student),
	}
}

// FindSubjectByName implements academic.Directory.
func (r *Registry) FindSubjectByName(name string) (*models.Subject, error) {
	if v, ok := r.catalog.Get(name); ok {
		return v.(*models.Subject), nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "subject %s not found", name)
}

// FindGroupByID implements academic.Directory.
func (r *Registry) FindGroupByID(id string) (*models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.groups[id]; ok {
		return g, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "group %s not found", id)
}

// FindStudentByID implements academic.Directory.
func (r *Registry) FindStudentByID(id string) (*models.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.students[id]; ok {
		return s, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "student %s not found", id)
}

// LoadSubject makes sure the subject is in the catalog.
func (r *Registry) LoadSubject(ctx context.Context, name string) (*models.Subject, error) {
	if s, err := r.FindSubjectByName(name); err == nil {
		return s, nil
	}
	v, err, _ := r.flight.Do("subject:"+name, func() (interface{}, error) {
		subject, err := r.src.Subjects.FindByName(ctx, name)
		if err != nil {
			return nil, notFoundOr(err, "subject %s not found", name)
		}
		r.catalog.SetDefault(subject.Name, subject)
		return subject, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Subject), nil
}

// LoadGroup makes sure the group is resident and returns the shared instance.
func (r *Registry) LoadGroup(ctx context.Context, id string) (*models.Group, error) {
	if g, err := r.FindGroupByID(id); err == nil {
		return g, nil
	}
	v, err, _ := r.flight.Do("group:"+id, func() (interface{}, error) {
		if g, err := r.FindGroupByID(id); err == nil {
			return g, nil
		}
		group, err := r.src.Groups.FindByID(ctx, id)
		if err != nil {
			return nil, notFoundOr(err, "group %s not found", id)
		}
		return r.putGroup(group), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Group), nil
}

// LoadStudent makes sure the student, its subject records, its requests and
// the groups it currently attends are resident.
func (r *Registry) LoadStudent(ctx context.Context, id string) (*models.Student, error) {
	if s, err := r.FindStudentByID(id); err == nil {
		return s, nil
	}
	v, err, _ := r.flight.Do("student:"+id, func() (interface{}, error) {
		if s, err := r.FindStudentByID(id); err == nil {
			return s, nil
		}
		student, err := r.src.Students.FindByID(ctx, id)
		if err != nil {
			return nil, notFoundOr(err, "student %s not found", id)
		}

		var records []models.SubjectEnrollment
		var requests []models.ChangeRequest
		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			var err error
			records, err = r.src.Enrollments.ListByStudent(egCtx, id)
			return err
		})
		eg.Go(func() error {
			var err error
			requests, err = r.src.Requests.ListByStudent(egCtx, id)
			return err
		})
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		student.Enrollments = make(map[string]*models.SubjectEnrollment, len(records))
		attending := make([]string, 0, len(records))
		for i := range records {
			rec := records[i]
			student.Enrollments[rec.SubjectName] = &rec
			if rec.Status == models.SubjectStatusInProgress && rec.GroupID != nil {
				attending = append(attending, *rec.GroupID)
			}
		}
		student.Requests = make([]*models.ChangeRequest, 0, len(requests))
		for i := range requests {
			req := requests[i]
			student.Requests = append(student.Requests, &req)
		}

		if err := r.loadGroups(ctx, attending); err != nil {
			return nil, err
		}
		return r.putStudent(student), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Student), nil
}

// PutSubject adds a newly created subject to the catalog.
func (r *Registry) PutSubject(subject *models.Subject) {
	r.catalog.SetDefault(subject.Name, subject)
}

// PutGroup registers a newly created group unless one is already resident.
func (r *Registry) PutGroup(group *models.Group) *models.Group {
	return r.putGroup(group)
}

// EvictGroup drops a deleted group.
func (r *Registry) EvictGroup(id string) {
	r.mu.Lock()
	delete(r.groups, id)
	r.mu.Unlock()
}

// Groups returns the resident groups, for occupancy reporting.
func (r *Registry) Groups() []*models.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out
}

func (r *Registry) loadGroups(ctx context.Context, ids []string) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, id := range ids {
		groupID := id
		eg.Go(func() error {
			if _, err := r.LoadGroup(egCtx, groupID); err != nil {
				if errors.Is(err, appErrors.ErrNotFound) {
					r.logger.Warn("enrolled group missing", zap.String("group_id", groupID))
					return nil
				}
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

func (r *Registry) putGroup(group *models.Group) *models.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.groups[group.ID]; ok {
		return existing
	}
	if group.StudentIDs == nil {
		group.StudentIDs = []string{}
	}
	r.groups[group.ID] = group
	return group
}

func (r *Registry) putStudent(student *models.Student) *models.Student {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.students[student.ID]; ok {
		return existing
	}
	r.students[student.ID] = student
	return student
}

func notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clonef(appErrors.ErrNotFound, format, args...)
	}
	return err
}
