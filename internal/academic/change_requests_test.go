package academic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type requestFixture struct {
	dir *memDirectory
	ops *Operations
}

func newRequestFixture(t *testing.T) *requestFixture {
	t.Helper()
	dir := newMemDirectory()
	dir.addSubject("Math")
	dir.addSubject("Physics")
	dir.addGroup("math-1", "Math", 2, slot(models.DayMonday, "08:00", "10:00"))
	dir.addGroup("math-2", "Math", 1, slot(models.DayTuesday, "08:00", "10:00"))
	dir.addGroup("phy-1", "Physics", 1, slot(models.DayWednesday, "08:00", "10:00"))
	dir.addGroup("phy-2", "Physics", 1, slot(models.DayMonday, "09:00", "11:00"))
	dir.addStudent("s-1")
	dir.addStudent("s-2")
	ops := newTestOperations(dir)
	_, err := ops.EnrollSubject("s-1", "Math", "math-1")
	require.NoError(t, err)
	return &requestFixture{dir: dir, ops: ops}
}

func (f *requestFixture) groupChange(t *testing.T, target string) *models.ChangeRequest {
	t.Helper()
	changes, err := f.ops.CreateGroupChangeRequest("s-1", "Math", target, "work schedule")
	require.NoError(t, err)
	require.Len(t, changes.Requests, 1)
	return changes.Requests[0]
}

func TestCreateGroupChangeRequest(t *testing.T) {
	f := newRequestFixture(t)

	_, err := f.ops.CreateGroupChangeRequest("s-1", "Math", "math-1", "")
	assert.ErrorIs(t, err, appErrors.ErrSameGroup)
	_, err = f.ops.CreateGroupChangeRequest("s-1", "Math", "phy-1", "")
	assert.ErrorIs(t, err, appErrors.ErrCannotEnroll)
	_, err = f.ops.CreateGroupChangeRequest("s-2", "Math", "math-2", "")
	assert.ErrorIs(t, err, appErrors.ErrSubjectNotInProgress)

	req := f.groupChange(t, "math-2")
	assert.Equal(t, models.RequestStatePending, req.State)
	assert.Equal(t, models.RequestKindGroupChange, req.Kind)
	assert.Equal(t, "math-1", req.CurrentGroupID)
	assert.Equal(t, "math-2", req.TargetGroupID)
	assert.Equal(t, int64(1), req.Version)

	_, err = f.ops.CreateGroupChangeRequest("s-1", "Math", "math-2", "again")
	assert.ErrorIs(t, err, appErrors.ErrOperationNotAllowed)

	assert.Equal(t, 1, f.dir.groups["math-1"].Enrolled)
	assert.Equal(t, 0, f.dir.groups["math-2"].Enrolled)
}

func TestApproveGroupChangeMovesSeat(t *testing.T) {
	f := newRequestFixture(t)
	req := f.groupChange(t, "math-2")

	_, err := f.ops.ApproveRequest("s-1", req.ID, "admin", "")
	assert.ErrorIs(t, err, appErrors.ErrInvalidStateTransition)
	assert.ErrorIs(t, err, appErrors.ErrRequestNotInReview)

	_, err = f.ops.ReviewRequest("s-1", req.ID, "admin")
	require.NoError(t, err)
	changes, err := f.ops.ApproveRequest("s-1", req.ID, "admin", "approved")
	require.NoError(t, err)
	require.Len(t, changes.Requests, 1)
	assert.Equal(t, models.RequestStateApproved, changes.Requests[0].State)
	assert.Len(t, changes.Groups, 2)

	assert.Equal(t, 0, f.dir.groups["math-1"].Enrolled)
	assert.Equal(t, 1, f.dir.groups["math-2"].Enrolled)
	assert.True(t, f.dir.students["s-1"].Enrollment("Math").InGroup("math-2"))

	_, err = f.ops.ApproveRequest("s-1", req.ID, "admin", "")
	assert.ErrorIs(t, err, appErrors.ErrRequestAlreadyApproved)
}

func TestApproveWithFullTargetStaysInReview(t *testing.T) {
	f := newRequestFixture(t)
	req := f.groupChange(t, "math-2")
	_, err := f.ops.EnrollSubject("s-2", "Math", "math-2")
	require.NoError(t, err)

	_, err = f.ops.ReviewRequest("s-1", req.ID, "admin")
	require.NoError(t, err)
	_, err = f.ops.ApproveRequest("s-1", req.ID, "admin", "")
	assert.ErrorIs(t, err, appErrors.ErrGroupFull)

	stored, err := NewRequestManager(f.dir.students["s-1"]).Find(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateInReview, stored.State)
	assert.Nil(t, stored.ResolvedAt)
	assert.True(t, f.dir.students["s-1"].Enrollment("Math").InGroup("math-1"))
	assert.Equal(t, 1, f.dir.groups["math-1"].Enrolled)
	assert.Equal(t, 1, f.dir.groups["math-2"].Enrolled)
}

func TestRejectRequestIsFinal(t *testing.T) {
	f := newRequestFixture(t)
	req := f.groupChange(t, "math-2")
	_, err := f.ops.ReviewRequest("s-1", req.ID, "admin")
	require.NoError(t, err)

	changes, err := f.ops.RejectRequest("s-1", req.ID, "admin", "no reason given")
	require.NoError(t, err)
	first := changes.Requests[0]

	_, err = f.ops.RejectRequest("s-1", req.ID, "other", "second try")
	assert.ErrorIs(t, err, appErrors.ErrRequestAlreadyRejected)
	_, err = f.ops.ApproveRequest("s-1", req.ID, "other", "")
	assert.ErrorIs(t, err, appErrors.ErrInvalidStateTransition)

	stored, err := NewRequestManager(f.dir.students["s-1"]).Find(req.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.ResolvedAt, *stored.ResolvedAt)
	assert.Equal(t, "no reason given", *stored.ResolutionComment)

	history, err := f.ops.RequestHistory("s-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	stats, err := f.ops.RequestStats("s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)
	assert.InDelta(t, 100.0, stats.RejectedPercentage, 1e-9)
}

func TestSubjectChangeRequest(t *testing.T) {
	f := newRequestFixture(t)

	_, err := f.ops.CreateSubjectChangeRequest("s-1", "Math", "Math", "math-2", "")
	assert.ErrorIs(t, err, appErrors.ErrSameSubject)
	_, err = f.ops.CreateSubjectChangeRequest("s-1", "Math", "Physics", "phy-2", "")
	assert.NoError(t, err, "overlap with the group being left is ignored")
	_, err = f.ops.RemoveRequest("s-1", "req-1")
	require.NoError(t, err)

	changes, err := f.ops.CreateSubjectChangeRequest("s-1", "Math", "Physics", "phy-1", "prefer physics")
	require.NoError(t, err)
	req := changes.Requests[0]
	assert.Equal(t, models.RequestKindSubjectChange, req.Kind)

	_, err = f.ops.ReviewRequest("s-1", req.ID, "admin")
	require.NoError(t, err)
	changes, err = f.ops.ApproveRequest("s-1", req.ID, "admin", "")
	require.NoError(t, err)
	assert.Len(t, changes.Enrollments, 2)

	student := f.dir.students["s-1"]
	assert.Equal(t, models.SubjectStatusWithdrawn, student.StatusOf("Math"))
	assert.True(t, student.Enrollment("Physics").InGroup("phy-1"))
	assert.Equal(t, 0, f.dir.groups["math-1"].Enrolled)
	assert.Equal(t, 1, f.dir.groups["phy-1"].Enrolled)
}

func TestRemoveRequest(t *testing.T) {
	f := newRequestFixture(t)
	req := f.groupChange(t, "math-2")

	_, err := f.ops.RemoveRequest("s-2", req.ID)
	assert.ErrorIs(t, err, appErrors.ErrRequestNotFound)

	removed, err := f.ops.RemoveRequest("s-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, removed.ID)
	_, err = f.ops.ReviewRequest("s-1", req.ID, "admin")
	assert.ErrorIs(t, err, appErrors.ErrRequestNotFound)
}

func TestConcurrentApprovalsRespectCapacity(t *testing.T) {
	dir := newMemDirectory()
	dir.addSubject("Math")
	dir.addGroup("math-1", "Math", 10)
	target := dir.addGroup("math-2", "Math", 2)
	ops := newTestOperations(dir)

	ids := []string{"s-1", "s-2", "s-3", "s-4", "s-5"}
	requests := make(map[string]string, len(ids))
	for _, id := range ids {
		dir.addStudent(id)
		_, err := ops.EnrollSubject(id, "Math", "math-1")
		require.NoError(t, err)
		changes, err := ops.CreateGroupChangeRequest(id, "Math", "math-2", "")
		require.NoError(t, err)
		requests[id] = changes.Requests[0].ID
		_, err = ops.ReviewRequest(id, requests[id], "admin")
		require.NoError(t, err)
	}

	var eg errgroup.Group
	for _, id := range ids {
		studentID := id
		eg.Go(func() error {
			_, err := ops.ApproveRequest(studentID, requests[studentID], "admin", "")
			if err != nil && appErrors.CodeOf(err) != appErrors.ErrGroupFull.Code {
				return err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.Equal(t, 2, target.Enrolled)
	assert.Equal(t, 3, dir.groups["math-1"].Enrolled)
	approved := 0
	for _, id := range ids {
		stats, err := ops.RequestStats(id)
		require.NoError(t, err)
		approved += stats.Approved
	}
	assert.Equal(t, 2, approved)
}

func TestConcurrentResolutionHasOneWinner(t *testing.T) {
	losers := map[string]bool{
		appErrors.ErrRequestAlreadyApproved.Code: true,
		appErrors.ErrRequestAlreadyRejected.Code: true,
		appErrors.ErrInvalidStateTransition.Code: true,
	}
	for round := 0; round < 50; round++ {
		f := newRequestFixture(t)
		req := f.groupChange(t, "math-2")
		_, err := f.ops.ReviewRequest("s-1", req.ID, "admin")
		require.NoError(t, err)

		approves := []bool{true, false, true, false}
		results := make([]error, len(approves))
		start := make(chan struct{})
		var eg errgroup.Group
		for i, approve := range approves {
			i, approve := i, approve
			eg.Go(func() error {
				<-start
				if approve {
					_, results[i] = f.ops.ApproveRequest("s-1", req.ID, "admin", "")
				} else {
					_, results[i] = f.ops.RejectRequest("s-1", req.ID, "admin", "")
				}
				return nil
			})
		}
		close(start)
		require.NoError(t, eg.Wait())

		winners := 0
		approvedWon := false
		for i, err := range results {
			if err == nil {
				winners++
				approvedWon = approves[i]
				continue
			}
			assert.True(t, losers[appErrors.CodeOf(err)], "unexpected loser error: %v", err)
		}
		require.Equal(t, 1, winners)

		stored, err := NewRequestManager(f.dir.students["s-1"]).Find(req.ID)
		require.NoError(t, err)
		if approvedWon {
			assert.Equal(t, models.RequestStateApproved, stored.State)
			assert.Equal(t, 0, f.dir.groups["math-1"].Enrolled)
			assert.Equal(t, 1, f.dir.groups["math-2"].Enrolled)
		} else {
			assert.Equal(t, models.RequestStateRejected, stored.State)
			assert.Equal(t, 1, f.dir.groups["math-1"].Enrolled)
			assert.Equal(t, 0, f.dir.groups["math-2"].Enrolled)
		}
	}
}
