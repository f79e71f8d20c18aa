package academic

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type subjectAction string

const (
	subjectActionEnroll   subjectAction = "enroll"
	subjectActionApprove  subjectAction = "approve"
	subjectActionFail     subjectAction = "fail"
	subjectActionWithdraw subjectAction = "withdraw"
)

// APPROVED has no outgoing transitions; FAILED and WITHDRAWN only allow a new attempt.
var subjectTransitions = map[models.SubjectStatus]map[subjectAction]models.SubjectStatus{
	models.SubjectStatusNotStarted: {subjectActionEnroll: models.SubjectStatusInProgress},
	models.SubjectStatusInProgress: {
		subjectActionApprove:  models.SubjectStatusApproved,
		subjectActionFail:     models.SubjectStatusFailed,
		subjectActionWithdraw: models.SubjectStatusWithdrawn,
	},
	models.SubjectStatusFailed:    {subjectActionEnroll: models.SubjectStatusInProgress},
	models.SubjectStatusWithdrawn: {subjectActionEnroll: models.SubjectStatusInProgress},
	models.SubjectStatusApproved:  {},
}

func subjectTransition(from models.SubjectStatus, action subjectAction) (models.SubjectStatus, bool) {
	to, ok := subjectTransitions[from][action]
	return to, ok
}

func subjectTransitionError(subjectName string, from models.SubjectStatus, action subjectAction) error {
	switch action {
	case subjectActionEnroll:
		if from == models.SubjectStatusInProgress || from == models.SubjectStatusApproved {
			return appErrors.Clonef(appErrors.ErrSubjectAlreadyEnrolled, "subject %s is already %s", subjectName, from)
		}
		return appErrors.Clonef(appErrors.ErrCannotEnroll, "cannot enroll in %s from %s", subjectName, from)
	case subjectActionApprove:
		return notInProgress(appErrors.ErrCannotApprove, subjectName, from)
	case subjectActionFail:
		return notInProgress(appErrors.ErrCannotFail, subjectName, from)
	default:
		return notInProgress(appErrors.ErrCannotDropSubject, subjectName, from)
	}
}

func notInProgress(kind *appErrors.Error, subjectName string, from models.SubjectStatus) error {
	return appErrors.Wrap(
		appErrors.Clonef(appErrors.ErrSubjectNotInProgress, "subject %s is %s", subjectName, from),
		kind.Code, kind.Status, kind.Message)
}

// CheckPrerequisites requires every prerequisite of subject to be APPROVED for the student.
func CheckPrerequisites(student *models.Student, subject *models.Subject) error {
	var missing []string
	for _, name := range subject.Prerequisites {
		if student.StatusOf(name) != models.SubjectStatusApproved {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return appErrors.Clonef(appErrors.ErrPrerequisitesNotMet,
			"%s requires approved %s", subject.Name, strings.Join(missing, ", "))
	}
	return nil
}

// checkEnroll validates a new attempt at subject without mutating the student.
func checkEnroll(student *models.Student, subject *models.Subject) error {
	from := student.StatusOf(subject.Name)
	if _, ok := subjectTransition(from, subjectActionEnroll); !ok {
		return subjectTransitionError(subject.Name, from, subjectActionEnroll)
	}
	return CheckPrerequisites(student, subject)
}

// enroll moves the student's record for subject to IN_PROGRESS in groupID and
// returns the previous record (nil when none existed) for compensation.
func enroll(student *models.Student, subject *models.Subject, groupID string, now time.Time) (*models.SubjectEnrollment, error) {
	if err := checkEnroll(student, subject); err != nil {
		return nil, err
	}
	rec := student.Enrollment(subject.Name)
	prev := rec.Clone()
	if rec == nil {
		if student.Enrollments == nil {
			student.Enrollments = make(map[string]*models.SubjectEnrollment)
		}
		rec = &models.SubjectEnrollment{
			ID:          fmt.Sprintf("%s:%s", student.ID, subject.Name),
			StudentID:   student.ID,
			SubjectName: subject.Name,
			Status:      models.SubjectStatusNotStarted,
		}
		student.Enrollments[subject.Name] = rec
	}
	g := groupID
	rec.Status = models.SubjectStatusInProgress
	rec.GroupID = &g
	rec.Grade = nil
	rec.Semester = student.Semester
	rec.Version++
	rec.UpdatedAt = now
	return prev, nil
}

// resolve closes the current attempt with approve, fail or withdraw. It archives
// the attempt, clears the group and returns the released group id alongside the
// previous record.
func resolve(student *models.Student, subjectName string, action subjectAction, grade *float64, now time.Time) (*models.SubjectEnrollment, string, error) {
	rec := student.Enrollment(subjectName)
	from := student.StatusOf(subjectName)
	to, ok := subjectTransition(from, action)
	if !ok || rec == nil {
		return nil, "", subjectTransitionError(subjectName, from, action)
	}
	if grade != nil && (*grade < 0 || *grade > 100) {
		return nil, "", appErrors.Clonef(appErrors.ErrValidation, "grade %.2f out of range 0..100", *grade)
	}
	prev := rec.Clone()
	released := ""
	if rec.GroupID != nil {
		released = *rec.GroupID
	}
	attempt := models.EnrollmentAttempt{Status: to, GroupID: released, Semester: rec.Semester, ClosedAt: now}
	if grade != nil && action != subjectActionWithdraw {
		g := *grade
		rec.Grade = &g
		attempt.Grade = &g
	}
	rec.Attempts = append(rec.Attempts, attempt)
	rec.Status = to
	rec.GroupID = nil
	rec.Version++
	rec.UpdatedAt = now
	return prev, released, nil
}

// restore undoes enroll or resolve for subjectName. The record pointer is kept
// so the aggregate map stays stable.
func restore(student *models.Student, subjectName string, prev *models.SubjectEnrollment) {
	if prev == nil {
		delete(student.Enrollments, subjectName)
		return
	}
	if rec := student.Enrollment(subjectName); rec != nil {
		*rec = *prev
		return
	}
	student.Enrollments[subjectName] = prev
}
