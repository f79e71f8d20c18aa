package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/academic-enrollment-api/internal/academic"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	"github.com/noah-isme/academic-enrollment-api/pkg/jobs"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

// memRegistry is an in-memory aggregate directory and loader.
type memRegistry struct {
	mu       sync.Mutex
	subjects map[string]*models.Subject
	groups   map[string]*models.Group
	students map[string]*models.Student
	loadErr  error
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		subjects: make(map[string]*models.Subject),
		groups:   make(map[string]*models.Group),
		students: make(map[string]*models.Student),
	}
}

func (r *memRegistry) addSubject(name string, prereqs ...string) {
	r.subjects[name] = &models.Subject{Name: name, Credits: 4, Prerequisites: prereqs, Semester: 1}
}

func (r *memRegistry) addGroup(id, subject string, capacity int, slots ...models.ScheduleSlot) *models.Group {
	g := &models.Group{ID: id, SubjectName: subject, Capacity: capacity, Schedule: slots, StudentIDs: []string{}, State: models.GroupStateOpen, Version: 1}
	r.groups[id] = g
	return g
}

func (r *memRegistry) addStudent(id string) *models.Student {
	s := &models.Student{ID: id, FullName: "Student " + id, Active: true, Enrollments: map[string]*models.SubjectEnrollment{}}
	r.students[id] = s
	return s
}

func (r *memRegistry) FindSubjectByName(name string) (*models.Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subjects[name]; ok {
		return s, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "subject %s not found", name)
}

func (r *memRegistry) FindGroupByID(id string) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[id]; ok {
		return g, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "group %s not found", id)
}

func (r *memRegistry) FindStudentByID(id string) (*models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.students[id]; ok {
		return s, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "student %s not found", id)
}

func (r *memRegistry) LoadSubject(ctx context.Context, name string) (*models.Subject, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.FindSubjectByName(name)
}

func (r *memRegistry) LoadGroup(ctx context.Context, id string) (*models.Group, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.FindGroupByID(id)
}

func (r *memRegistry) LoadStudent(ctx context.Context, id string) (*models.Student, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.FindStudentByID(id)
}

func (r *memRegistry) PutSubject(subject *models.Subject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects[subject.Name] = subject
}

func (r *memRegistry) PutGroup(group *models.Group) *models.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.groups[group.ID]; ok {
		return existing
	}
	r.groups[group.ID] = group
	return group
}

func (r *memRegistry) EvictGroup(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
}

// FindStudentID scans resident students, standing in for the request table.
func (r *memRegistry) FindStudentID(ctx context.Context, requestID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		for _, req := range s.Requests {
			if req.ID == requestID {
				return s.ID, nil
			}
		}
	}
	return "", sql.ErrNoRows
}

type stubWriter struct {
	mu        sync.Mutex
	commits   []*academic.ChangeSet
	deleted   []string
	commitErr error
}

func (w *stubWriter) Commit(ctx context.Context, changes *academic.ChangeSet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.commitErr != nil {
		return w.commitErr
	}
	w.commits = append(w.commits, changes)
	return nil
}

func (w *stubWriter) DeleteRequest(ctx context.Context, requestID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleted = append(w.deleted, requestID)
	return nil
}

type stubStatsCache struct {
	values map[string]models.RequestStats
	sets   int
}

func (c *stubStatsCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*dest.(*models.RequestStats) = v
	return true, nil
}

func (c *stubStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.values == nil {
		c.values = make(map[string]models.RequestStats)
	}
	c.values[key] = value.(models.RequestStats)
	c.sets++
	return nil
}

func (c *stubStatsCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

type stubQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *stubQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("req-%d", n)
	}
}

func newOps(reg *memRegistry) *academic.Operations {
	return academic.New(reg, academic.WithIDGenerator(sequentialIDs()))
}

func slot(day, start, end string) models.ScheduleSlot {
	return models.ScheduleSlot{Day: day, Start: start, End: end}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

var errBoom = errors.New("boom")
