package academic

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

// Directory resolves aggregates by id. Implementations must return the same
// pointer for the same id for as long as the aggregate exists, and a NOT_FOUND
// error otherwise. Lookups must not block on I/O.
type Directory interface {
	FindSubjectByName(name string) (*models.Subject, error)
	FindGroupByID(id string) (*models.Group, error)
	FindStudentByID(id string) (*models.Student, error)
}

// ChangeSet carries deep copies of every aggregate an operation mutated.
type ChangeSet struct {
	Enrollments []*models.SubjectEnrollment
	Groups      []*models.Group
	Requests    []*models.ChangeRequest
}

func (c *ChangeSet) addEnrollment(e *models.SubjectEnrollment) {
	if e != nil {
		c.Enrollments = append(c.Enrollments, e.Clone())
	}
}

func (c *ChangeSet) addGroup(g *models.Group) {
	if g != nil {
		c.Groups = append(c.Groups, g.Clone())
	}
}

func (c *ChangeSet) addRequest(r *models.ChangeRequest) {
	if r != nil {
		c.Requests = append(c.Requests, r.Clone())
	}
}

// maxLockAttempts bounds the re-lock loop used when the group to lock is only
// known after reading the student.
const maxLockAttempts = 8

// Operations combines the state machines into atomic academic operations.
type Operations struct {
	dir   Directory
	locks *lockTable
	now   func() time.Time
	newID func() string
}

// Option configures Operations.
type Option func(*Operations)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Operations) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Operations) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New constructs Operations over dir.
func New(dir Directory, opts ...Option) *Operations {
	o := &Operations{
		dir:   dir,
		locks: newLockTable(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// CanEnroll reports why the student could not start subjectName, or nil.
func (o *Operations) CanEnroll(studentID, subjectName string) error {
	student, subject, err := o.loadStudentSubject(studentID, subjectName)
	if err != nil {
		return err
	}
	release := o.locks.acquire(studentKey(student.ID))
	defer release()
	return checkEnroll(student, subject)
}

// CanEnrollInGroup extends CanEnroll with the group's subject, state, capacity
// and the student's schedule.
func (o *Operations) CanEnrollInGroup(studentID, subjectName, groupID string) error {
	student, subject, err := o.loadStudentSubject(studentID, subjectName)
	if err != nil {
		return err
	}
	group, err := o.dir.FindGroupByID(groupID)
	if err != nil {
		return err
	}
	release := o.locks.acquire(groupKey(group.ID), studentKey(student.ID))
	defer release()
	return o.checkEnrollInGroup(student, subject, group, "")
}

// EnrollSubject starts subjectName in groupID. The record transition and the
// seat reservation happen under both locks; a failed reservation reverts the record.
func (o *Operations) EnrollSubject(studentID, subjectName, groupID string) (*ChangeSet, error) {
	student, subject, err := o.loadStudentSubject(studentID, subjectName)
	if err != nil {
		return nil, err
	}
	group, err := o.dir.FindGroupByID(groupID)
	if err != nil {
		return nil, err
	}
	release := o.locks.acquire(groupKey(group.ID), studentKey(student.ID))
	defer release()

	if err := o.checkEnrollInGroup(student, subject, group, ""); err != nil {
		return nil, err
	}
	prev, err := enroll(student, subject, group.ID, o.now())
	if err != nil {
		return nil, err
	}
	if err := AddStudent(group, student.ID); err != nil {
		restore(student, subject.Name, prev)
		return nil, err
	}
	changes := &ChangeSet{}
	changes.addEnrollment(student.Enrollment(subject.Name))
	changes.addGroup(group)
	return changes, nil
}

// UnenrollSubject withdraws the student from subjectName and frees the seat in groupID.
func (o *Operations) UnenrollSubject(studentID, subjectName, groupID string) (*ChangeSet, error) {
	student, subject, err := o.loadStudentSubject(studentID, subjectName)
	if err != nil {
		return nil, err
	}
	group, err := o.dir.FindGroupByID(groupID)
	if err != nil {
		return nil, err
	}
	release := o.locks.acquire(groupKey(group.ID), studentKey(student.ID))
	defer release()

	rec := student.Enrollment(subject.Name)
	if rec != nil && rec.Status == models.SubjectStatusInProgress && !rec.InGroup(group.ID) {
		return nil, appErrors.Clonef(appErrors.ErrStudentNotInGroup, "student %s attends %s in another group", student.ID, subject.Name)
	}
	prev, _, err := resolve(student, subject.Name, subjectActionWithdraw, nil, o.now())
	if err != nil {
		return nil, err
	}
	if err := RemoveStudent(group, student.ID); err != nil {
		restore(student, subject.Name, prev)
		return nil, inconsistent(err, "withdrawn student missing from group")
	}
	changes := &ChangeSet{}
	changes.addEnrollment(student.Enrollment(subject.Name))
	changes.addGroup(group)
	return changes, nil
}

// ApproveSubject closes the current attempt as APPROVED and frees the seat.
func (o *Operations) ApproveSubject(studentID, subjectName string, grade *float64) (*ChangeSet, error) {
	return o.finishSubject(studentID, subjectName, subjectActionApprove, grade)
}

// FailSubject closes the current attempt as FAILED and frees the seat.
func (o *Operations) FailSubject(studentID, subjectName string, grade *float64) (*ChangeSet, error) {
	return o.finishSubject(studentID, subjectName, subjectActionFail, grade)
}

func (o *Operations) finishSubject(studentID, subjectName string, action subjectAction, grade *float64) (*ChangeSet, error) {
	student, subject, err := o.loadStudentSubject(studentID, subjectName)
	if err != nil {
		return nil, err
	}
	release, groupID, err := o.lockCurrentGroup(student, subject.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	if groupID == "" {
		return nil, subjectTransitionError(subject.Name, student.StatusOf(subject.Name), action)
	}
	group, err := o.dir.FindGroupByID(groupID)
	if err != nil {
		return nil, inconsistent(err, "enrolled group missing")
	}
	prev, _, err := resolve(student, subject.Name, action, grade, o.now())
	if err != nil {
		return nil, err
	}
	if err := RemoveStudent(group, student.ID); err != nil {
		restore(student, subject.Name, prev)
		return nil, inconsistent(err, "finished student missing from group")
	}
	changes := &ChangeSet{}
	changes.addEnrollment(student.Enrollment(subject.Name))
	changes.addGroup(group)
	return changes, nil
}

// OpenGroup re-opens a closed group.
func (o *Operations) OpenGroup(groupID string) (*ChangeSet, error) {
	return o.groupAction(groupID, OpenGroup)
}

// CloseGroup stops admissions to a group.
func (o *Operations) CloseGroup(groupID string) (*ChangeSet, error) {
	return o.groupAction(groupID, CloseGroup)
}

func (o *Operations) groupAction(groupID string, apply func(*models.Group) error) (*ChangeSet, error) {
	group, err := o.dir.FindGroupByID(groupID)
	if err != nil {
		return nil, err
	}
	release := o.locks.acquire(groupKey(group.ID))
	defer release()
	if err := apply(group); err != nil {
		return nil, err
	}
	changes := &ChangeSet{}
	changes.addGroup(group)
	return changes, nil
}

// RemoveGroup closes an empty group and hands it to evict while the lock is
// held, so no admission can slip in between the check and the eviction.
func (o *Operations) RemoveGroup(groupID string, evict func(*models.Group) error) error {
	group, err := o.dir.FindGroupByID(groupID)
	if err != nil {
		return err
	}
	release := o.locks.acquire(groupKey(group.ID))
	defer release()
	if group.Enrolled > 0 {
		return appErrors.Clonef(appErrors.ErrOperationNotAllowed, "group %s still has %d students", group.ID, group.Enrolled)
	}
	previous := group.State
	group.State = models.GroupStateClosed
	if evict != nil {
		if err := evict(group.Clone()); err != nil {
			group.State = previous
			return err
		}
	}
	group.Version++
	return nil
}

// Student returns a snapshot of the student aggregate.
func (o *Operations) Student(studentID string) (*models.Student, error) {
	student, err := o.dir.FindStudentByID(studentID)
	if err != nil {
		return nil, err
	}
	release := o.locks.acquire(studentKey(student.ID))
	defer release()
	return student.Clone(), nil
}

// Group returns a snapshot of the group.
func (o *Operations) Group(groupID string) (*models.Group, error) {
	group, err := o.dir.FindGroupByID(groupID)
	if err != nil {
		return nil, err
	}
	release := o.locks.acquire(groupKey(group.ID))
	defer release()
	return group.Clone(), nil
}

func (o *Operations) loadStudentSubject(studentID, subjectName string) (*models.Student, *models.Subject, error) {
	if studentID == "" || subjectName == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student and subject are required")
	}
	student, err := o.dir.FindStudentByID(studentID)
	if err != nil {
		return nil, nil, err
	}
	subject, err := o.dir.FindSubjectByName(subjectName)
	if err != nil {
		return nil, nil, err
	}
	return student, subject, nil
}

// checkEnrollInGroup runs every enrollment rule. ignoreGroupID is left out of the
// schedule check, for moves that free it. Callers hold the group and student locks.
func (o *Operations) checkEnrollInGroup(student *models.Student, subject *models.Subject, group *models.Group, ignoreGroupID string) error {
	if group.SubjectName != subject.Name {
		return appErrors.Clonef(appErrors.ErrCannotEnroll, "group %s does not teach %s", group.ID, subject.Name)
	}
	if err := checkEnroll(student, subject); err != nil {
		return err
	}
	if err := checkAdmission(group, student.ID); err != nil {
		return err
	}
	return o.checkSchedule(student, group, ignoreGroupID)
}

// checkSchedule compares group with every group the student currently attends.
// Schedules are fixed at group creation, so other groups are read without their locks.
func (o *Operations) checkSchedule(student *models.Student, group *models.Group, ignoreGroupID string) error {
	attending := make([]*models.Group, 0, len(student.Enrollments))
	for _, rec := range student.Enrollments {
		if rec.Status != models.SubjectStatusInProgress || rec.GroupID == nil {
			continue
		}
		if *rec.GroupID == ignoreGroupID || *rec.GroupID == group.ID {
			continue
		}
		other, err := o.dir.FindGroupByID(*rec.GroupID)
		if err != nil {
			if errors.Is(err, appErrors.ErrNotFound) {
				continue
			}
			return err
		}
		attending = append(attending, other)
	}
	if conflict := FindScheduleConflict(group, attending); conflict != nil {
		return appErrors.Clonef(appErrors.ErrScheduleConflict, "group %s %s %s-%s overlaps group %s",
			conflict.GroupID, conflict.Slot.Day, conflict.Slot.Start, conflict.Slot.End, conflict.ConflictGroupID)
	}
	return nil
}

// lockCurrentGroup locks the student together with the group currently held
// for subjectName (if any) and the extra keys. The group is read under the
// student lock, which is then dropped so the global order can be respected.
func (o *Operations) lockCurrentGroup(student *models.Student, subjectName string, extra ...lockKey) (func(), string, error) {
	read := func() string {
		if rec := student.Enrollment(subjectName); rec != nil && rec.Status == models.SubjectStatusInProgress && rec.GroupID != nil {
			return *rec.GroupID
		}
		return ""
	}
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		peek := o.locks.acquire(studentKey(student.ID))
		groupID := read()
		peek()

		keys := append([]lockKey{studentKey(student.ID), groupKey(groupID)}, extra...)
		release := o.locks.acquire(keys...)
		if read() == groupID {
			return release, groupID, nil
		}
		release()
	}
	return nil, "", appErrors.Clonef(appErrors.ErrConflict, "enrollment of %s in %s kept changing", student.ID, subjectName)
}

func inconsistent(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
