package academic

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

func TestEnrollSubjectCapacity(t *testing.T) {
	dir := newMemDirectory()
	dir.addSubject("Math")
	group := dir.addGroup("g-1", "Math", 2)
	for _, id := range []string{"s-1", "s-2", "s-3"} {
		dir.addStudent(id)
	}
	ops := newTestOperations(dir)

	_, err := ops.EnrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)
	changes, err := ops.EnrollSubject("s-2", "Math", "g-1")
	require.NoError(t, err)
	require.Len(t, changes.Groups, 1)
	assert.Equal(t, 2, changes.Groups[0].Enrolled)

	_, err = ops.EnrollSubject("s-3", "Math", "g-1")
	assert.ErrorIs(t, err, appErrors.ErrGroupFull)
	assert.Equal(t, 2, group.Enrolled)
	assert.Nil(t, dir.students["s-3"].Enrollment("Math"))
}

func TestConcurrentEnrollNeverOverbooks(t *testing.T) {
	const capacity, students = 5, 40
	dir := newMemDirectory()
	dir.addSubject("Math")
	group := dir.addGroup("g-1", "Math", capacity)
	for i := 0; i < students; i++ {
		dir.addStudent(fmt.Sprintf("s-%02d", i))
	}
	ops := newTestOperations(dir)

	var mu sync.Mutex
	succeeded, full := 0, 0
	var eg errgroup.Group
	for i := 0; i < students; i++ {
		id := fmt.Sprintf("s-%02d", i)
		eg.Go(func() error {
			_, err := ops.EnrollSubject(id, "Math", "g-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case appErrors.CodeOf(err) == appErrors.ErrGroupFull.Code:
				full++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, students-capacity, full)
	assert.Equal(t, capacity, group.Enrolled)
	assert.Len(t, group.StudentIDs, capacity)

	inProgress := 0
	for _, s := range dir.students {
		if s.StatusOf("Math") == models.SubjectStatusInProgress {
			inProgress++
		}
	}
	assert.Equal(t, capacity, inProgress)
}

func TestEnrollSubjectRules(t *testing.T) {
	dir := newMemDirectory()
	dir.addSubject("Algebra")
	dir.addSubject("Calculus", "Algebra")
	dir.addSubject("Physics")
	dir.addGroup("alg-1", "Algebra", 10, slot(models.DayMonday, "08:00", "10:00"))
	dir.addGroup("calc-1", "Calculus", 10)
	dir.addGroup("phy-1", "Physics", 10, slot(models.DayMonday, "09:00", "11:00"))
	closed := dir.addGroup("phy-2", "Physics", 10, slot(models.DayTuesday, "09:00", "11:00"))
	closed.State = models.GroupStateClosed
	dir.addStudent("s-1")
	ops := newTestOperations(dir)

	_, err := ops.EnrollSubject("s-1", "Calculus", "calc-1")
	assert.ErrorIs(t, err, appErrors.ErrPrerequisitesNotMet)

	_, err = ops.EnrollSubject("s-1", "Physics", "alg-1")
	assert.ErrorIs(t, err, appErrors.ErrCannotEnroll)

	_, err = ops.EnrollSubject("s-1", "Algebra", "alg-1")
	require.NoError(t, err)
	_, err = ops.EnrollSubject("s-1", "Algebra", "alg-1")
	assert.ErrorIs(t, err, appErrors.ErrSubjectAlreadyEnrolled)

	_, err = ops.EnrollSubject("s-1", "Physics", "phy-1")
	assert.ErrorIs(t, err, appErrors.ErrScheduleConflict)
	_, err = ops.EnrollSubject("s-1", "Physics", "phy-2")
	assert.ErrorIs(t, err, appErrors.ErrGroupClosed)

	_, err = ops.EnrollSubject("s-1", "Music", "phy-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = ops.EnrollSubject("", "Algebra", "alg-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestFailedSubjectCanBeRetakenApprovedCannot(t *testing.T) {
	dir := newMemDirectory()
	dir.addSubject("Math")
	group := dir.addGroup("g-1", "Math", 1)
	dir.addStudent("s-1")
	ops := newTestOperations(dir)

	_, err := ops.EnrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)
	changes, err := ops.FailSubject("s-1", "Math", grade(35))
	require.NoError(t, err)
	assert.Equal(t, 0, group.Enrolled)
	require.Len(t, changes.Enrollments, 1)
	assert.Equal(t, models.SubjectStatusFailed, changes.Enrollments[0].Status)

	require.NoError(t, ops.CanEnroll("s-1", "Math"))
	_, err = ops.EnrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)
	_, err = ops.ApproveSubject("s-1", "Math", grade(90))
	require.NoError(t, err)

	assert.ErrorIs(t, ops.CanEnroll("s-1", "Math"), appErrors.ErrSubjectAlreadyEnrolled)
	_, err = ops.EnrollSubject("s-1", "Math", "g-1")
	assert.ErrorIs(t, err, appErrors.ErrSubjectAlreadyEnrolled)

	student, err := ops.Student("s-1")
	require.NoError(t, err)
	assert.Len(t, student.Enrollment("Math").Attempts, 2)
}

func TestApproveSubjectRequiresInProgress(t *testing.T) {
	dir := newMemDirectory()
	dir.addSubject("Math")
	dir.addStudent("s-1")
	ops := newTestOperations(dir)

	_, err := ops.ApproveSubject("s-1", "Math", nil)
	assert.ErrorIs(t, err, appErrors.ErrCannotApprove)
	assert.ErrorIs(t, err, appErrors.ErrSubjectNotInProgress)
	_, err = ops.FailSubject("s-1", "Math", nil)
	assert.ErrorIs(t, err, appErrors.ErrCannotFail)
}

func TestUnenrollRoundTrip(t *testing.T) {
	dir := newMemDirectory()
	dir.addSubject("Math")
	group := dir.addGroup("g-1", "Math", 3)
	dir.addGroup("g-2", "Math", 3)
	dir.addStudent("s-1")
	ops := newTestOperations(dir)

	_, err := ops.EnrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)

	_, err = ops.UnenrollSubject("s-1", "Math", "g-2")
	assert.ErrorIs(t, err, appErrors.ErrStudentNotInGroup)

	_, err = ops.UnenrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)
	assert.Equal(t, 0, group.Enrolled)
	assert.Empty(t, group.StudentIDs)
	assert.Equal(t, models.SubjectStatusWithdrawn, dir.students["s-1"].StatusOf("Math"))

	_, err = ops.UnenrollSubject("s-1", "Math", "g-1")
	assert.ErrorIs(t, err, appErrors.ErrCannotDropSubject)

	_, err = ops.EnrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)
	assert.Equal(t, 1, group.Enrolled)
}

func TestFailedRoundTripEndsWithdrawn(t *testing.T) {
	dir := newMemDirectory()
	dir.addSubject("Math")
	group := dir.addGroup("g-1", "Math", 3)
	dir.addStudent("s-1")
	ops := newTestOperations(dir)

	_, err := ops.EnrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)
	_, err = ops.FailSubject("s-1", "Math", grade(20))
	require.NoError(t, err)

	_, err = ops.EnrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)
	_, err = ops.UnenrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)

	rec := dir.students["s-1"].Enrollment("Math")
	require.NotNil(t, rec)
	assert.Equal(t, models.SubjectStatusWithdrawn, rec.Status)
	require.Len(t, rec.Attempts, 2)
	assert.Equal(t, models.SubjectStatusFailed, rec.Attempts[0].Status)
	assert.Equal(t, models.SubjectStatusWithdrawn, rec.Attempts[1].Status)
	assert.Equal(t, 0, group.Enrolled)
	assert.NoError(t, ops.CanEnroll("s-1", "Math"))
}

func TestMixedWorkloadKeepsGroupsConsistent(t *testing.T) {
	const students, iterations = 20, 50
	dir := newMemDirectory()
	dir.addSubject("Math")
	dir.addGroup("a", "Math", 8)
	dir.addGroup("b", "Math", 8)
	ids := make([]string, students)
	for i := range ids {
		ids[i] = fmt.Sprintf("s-%02d", i)
		dir.addStudent(ids[i])
	}
	ops := newTestOperations(dir)
	groupFor := func(n int) string {
		if n%2 == 0 {
			return "a"
		}
		return "b"
	}
	internal := func(err error) error {
		if err != nil && appErrors.CodeOf(err) == appErrors.ErrInternal.Code {
			return err
		}
		return nil
	}

	var eg errgroup.Group
	for n, id := range ids {
		n, id := n, id
		eg.Go(func() error {
			for i := 0; i < iterations; i++ {
				var err error
				switch i % 3 {
				case 0:
					_, err = ops.EnrollSubject(id, "Math", groupFor(n+i))
				case 1:
					_, err = ops.UnenrollSubject(id, "Math", groupFor(n+i))
				default:
					_, err = ops.FailSubject(id, "Math", grade(40))
				}
				if err := internal(err); err != nil {
					return err
				}
			}
			return nil
		})
		eg.Go(func() error {
			for i := 0; i < iterations; i++ {
				changes, err := ops.CreateGroupChangeRequest(id, "Math", groupFor(n+i), "")
				if err != nil {
					if err := internal(err); err != nil {
						return err
					}
					continue
				}
				reqID := changes.Requests[0].ID
				if _, err := ops.ReviewRequest(id, reqID, "admin"); err != nil {
					return err
				}
				if _, err := ops.ApproveRequest(id, reqID, "admin", ""); err != nil {
					if err := internal(err); err != nil {
						return err
					}
					if _, err := ops.RejectRequest(id, reqID, "admin", "not applicable"); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("mixed workload did not finish, possible deadlock")
	}

	for _, groupID := range []string{"a", "b"} {
		group := dir.groups[groupID]
		members := 0
		for _, student := range dir.students {
			if rec := student.Enrollment("Math"); rec != nil && rec.Status == models.SubjectStatusInProgress && rec.InGroup(groupID) {
				members++
			}
		}
		assert.LessOrEqual(t, group.Enrolled, group.Capacity, groupID)
		assert.Equal(t, members, group.Enrolled, groupID)
		assert.Len(t, group.StudentIDs, group.Enrolled, groupID)
	}
}

func TestGroupAdministration(t *testing.T) {
	dir := newMemDirectory()
	dir.addSubject("Math")
	dir.addGroup("g-1", "Math", 3)
	dir.addStudent("s-1")
	ops := newTestOperations(dir)

	_, err := ops.CloseGroup("g-1")
	require.NoError(t, err)
	assert.ErrorIs(t, ops.CanEnrollInGroup("s-1", "Math", "g-1"), appErrors.ErrGroupClosed)
	_, err = ops.OpenGroup("g-1")
	require.NoError(t, err)
	_, err = ops.EnrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)

	evicted := false
	err = ops.RemoveGroup("g-1", func(*models.Group) error { evicted = true; return nil })
	assert.ErrorIs(t, err, appErrors.ErrOperationNotAllowed)
	assert.False(t, evicted)

	_, err = ops.UnenrollSubject("s-1", "Math", "g-1")
	require.NoError(t, err)
	require.NoError(t, ops.RemoveGroup("g-1", func(g *models.Group) error {
		evicted = true
		assert.Equal(t, models.GroupStateClosed, g.State)
		return nil
	}))
	assert.True(t, evicted)
}
