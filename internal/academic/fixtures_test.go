package academic

import (
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type memDirectory struct {
	mu       sync.Mutex
	subjects map[string]*models.Subject
	groups   map[string]*models.Group
	students map[string]*models.Student
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		subjects: make(map[string]*models.Subject),
		groups:   make(map[string]*models.Group),
		students: make(map[string]*models.Student),
	}
}

func (d *memDirectory) FindSubjectByName(name string) (*models.Subject, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.subjects[name]; ok {
		return s, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "subject %s not found", name)
}

func (d *memDirectory) FindGroupByID(id string) (*models.Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.groups[id]; ok {
		return g, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "group %s not found", id)
}

func (d *memDirectory) FindStudentByID(id string) (*models.Student, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.students[id]; ok {
		return s, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrNotFound, "student %s not found", id)
}

func (d *memDirectory) addSubject(name string, prerequisites ...string) *models.Subject {
	s := &models.Subject{Name: name, Credits: 4, Prerequisites: prerequisites}
	d.subjects[name] = s
	return s
}

func (d *memDirectory) addGroup(id, subject string, capacity int, slots ...models.ScheduleSlot) *models.Group {
	g := &models.Group{ID: id, SubjectName: subject, Capacity: capacity, Schedule: slots, State: models.GroupStateOpen, Version: 1}
	d.groups[id] = g
	return g
}

func (d *memDirectory) addStudent(id string) *models.Student {
	s := &models.Student{ID: id, FullName: "Student " + id, Semester: 1, Active: true, Enrollments: map[string]*models.SubjectEnrollment{}}
	d.students[id] = s
	return s
}

func slot(day, start, end string) models.ScheduleSlot {
	return models.ScheduleSlot{Day: day, Start: start, End: end}
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
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

func newTestOperations(dir *memDirectory) *Operations {
	return New(dir, WithClock(fixedClock()), WithIDGenerator(sequentialIDs()))
}

func grade(v float64) *float64 { return &v }
