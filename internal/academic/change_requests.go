package academic

import (
	"strings"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

// CreateGroupChangeRequest records a PENDING request to move the student to
// targetGroupID within subjectName. Nothing else changes until approval.
func (o *Operations) CreateGroupChangeRequest(studentID, subjectName, targetGroupID, reason string) (*ChangeSet, error) {
	student, subject, err := o.loadStudentSubject(studentID, subjectName)
	if err != nil {
		return nil, err
	}
	target, err := o.dir.FindGroupByID(targetGroupID)
	if err != nil {
		return nil, err
	}
	release := o.locks.acquire(studentKey(student.ID))
	defer release()

	currentGroupID, err := currentGroupOf(student, subject.Name)
	if err != nil {
		return nil, err
	}
	if currentGroupID == target.ID {
		return nil, appErrors.Clonef(appErrors.ErrSameGroup, "student already attends group %s", target.ID)
	}
	if target.SubjectName != subject.Name {
		return nil, appErrors.Clonef(appErrors.ErrCannotEnroll, "group %s does not teach %s", target.ID, subject.Name)
	}
	if err := o.checkSchedule(student, target, currentGroupID); err != nil {
		return nil, err
	}
	return o.submit(student, &models.ChangeRequest{
		Kind:              models.RequestKindGroupChange,
		SubjectName:       subject.Name,
		CurrentGroupID:    currentGroupID,
		TargetSubjectName: subject.Name,
		TargetGroupID:     target.ID,
		Reason:            reason,
	})
}

// CreateSubjectChangeRequest records a PENDING request to replace subjectName
// with targetSubjectName in targetGroupID.
func (o *Operations) CreateSubjectChangeRequest(studentID, subjectName, targetSubjectName, targetGroupID, reason string) (*ChangeSet, error) {
	if subjectName != "" && subjectName == targetSubjectName {
		return nil, appErrors.Clonef(appErrors.ErrSameSubject, "already enrolled in %s", subjectName)
	}
	student, subject, err := o.loadStudentSubject(studentID, subjectName)
	if err != nil {
		return nil, err
	}
	targetSubject, err := o.dir.FindSubjectByName(targetSubjectName)
	if err != nil {
		return nil, err
	}
	target, err := o.dir.FindGroupByID(targetGroupID)
	if err != nil {
		return nil, err
	}
	release := o.locks.acquire(studentKey(student.ID))
	defer release()

	currentGroupID, err := currentGroupOf(student, subject.Name)
	if err != nil {
		return nil, err
	}
	if target.SubjectName != targetSubject.Name {
		return nil, appErrors.Clonef(appErrors.ErrCannotEnroll, "group %s does not teach %s", target.ID, targetSubject.Name)
	}
	if err := checkEnroll(student, targetSubject); err != nil {
		return nil, err
	}
	if err := o.checkSchedule(student, target, currentGroupID); err != nil {
		return nil, err
	}
	return o.submit(student, &models.ChangeRequest{
		Kind:              models.RequestKindSubjectChange,
		SubjectName:       subject.Name,
		CurrentGroupID:    currentGroupID,
		TargetSubjectName: targetSubject.Name,
		TargetGroupID:     target.ID,
		Reason:            reason,
	})
}

func (o *Operations) submit(student *models.Student, req *models.ChangeRequest) (*ChangeSet, error) {
	manager := NewRequestManager(student)
	if manager.HasActive(req.SubjectName) {
		return nil, appErrors.Clonef(appErrors.ErrOperationNotAllowed, "an open request for %s already exists", req.SubjectName)
	}
	req.ID = o.newID()
	req.StudentID = student.ID
	req.State = models.RequestStatePending
	req.CreatedAt = o.now()
	req.Reason = strings.TrimSpace(req.Reason)
	req.Version = 1
	if err := manager.Add(req); err != nil {
		return nil, err
	}
	changes := &ChangeSet{}
	changes.addRequest(req)
	return changes, nil
}

// ReviewRequest moves a pending request into review.
func (o *Operations) ReviewRequest(studentID, requestID, reviewer string) (*ChangeSet, error) {
	release, req, err := o.lockRequest(studentID, requestID)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := ReviewRequest(req, reviewer, o.now()); err != nil {
		return nil, err
	}
	changes := &ChangeSet{}
	changes.addRequest(req)
	return changes, nil
}

// RejectRequest resolves an in-review request as rejected.
func (o *Operations) RejectRequest(studentID, requestID, resolver, comment string) (*ChangeSet, error) {
	release, req, err := o.lockRequest(studentID, requestID)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := RejectRequest(req, resolver, comment, o.now()); err != nil {
		return nil, err
	}
	changes := &ChangeSet{}
	changes.addRequest(req)
	return changes, nil
}

// ApproveRequest applies the requested change and only then marks the request
// approved. When the change cannot be applied the request stays IN_REVIEW and
// the cause is returned.
func (o *Operations) ApproveRequest(studentID, requestID, resolver, comment string) (*ChangeSet, error) {
	release, req, err := o.lockRequest(studentID, requestID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := checkRequestTransition(req, requestActionApprove); err != nil {
		return nil, err
	}
	student, err := o.dir.FindStudentByID(req.StudentID)
	if err != nil {
		return nil, err
	}
	changes := &ChangeSet{}
	switch req.Kind {
	case models.RequestKindGroupChange:
		err = o.applyGroupChange(student, req, changes)
	case models.RequestKindSubjectChange:
		err = o.applySubjectChange(student, req, changes)
	default:
		err = appErrors.Clonef(appErrors.ErrValidation, "unsupported request kind %q", req.Kind)
	}
	if err != nil {
		return nil, err
	}
	if err := ApproveRequest(req, resolver, comment, o.now()); err != nil {
		return nil, inconsistent(err, "change applied but request could not be approved")
	}
	changes.addRequest(req)
	return changes, nil
}

// RemoveRequest lets the student withdraw an unresolved request.
func (o *Operations) RemoveRequest(studentID, requestID string) (*models.ChangeRequest, error) {
	release, _, err := o.lockRequest(studentID, requestID)
	if err != nil {
		return nil, err
	}
	defer release()
	student, err := o.dir.FindStudentByID(studentID)
	if err != nil {
		return nil, err
	}
	removed, err := NewRequestManager(student).Remove(requestID)
	if err != nil {
		return nil, err
	}
	return removed.Clone(), nil
}

// RequestStats aggregates the student's requests.
func (o *Operations) RequestStats(studentID string) (models.RequestStats, error) {
	student, err := o.dir.FindStudentByID(studentID)
	if err != nil {
		return models.RequestStats{}, err
	}
	release := o.locks.acquire(studentKey(student.ID))
	defer release()
	return NewRequestManager(student).Stats(), nil
}

// RequestHistory returns the student's resolved requests, oldest first.
func (o *Operations) RequestHistory(studentID string) ([]*models.ChangeRequest, error) {
	student, err := o.dir.FindStudentByID(studentID)
	if err != nil {
		return nil, err
	}
	release := o.locks.acquire(studentKey(student.ID))
	defer release()
	history := NewRequestManager(student).History()
	out := make([]*models.ChangeRequest, 0, len(history))
	for _, r := range history {
		out = append(out, r.Clone())
	}
	return out, nil
}

// applyGroupChange moves the student's seat from the current to the target
// group of the same subject. Callers hold request, both groups and student.
func (o *Operations) applyGroupChange(student *models.Student, req *models.ChangeRequest, changes *ChangeSet) error {
	rec, current, target, err := o.requestParties(student, req)
	if err != nil {
		return err
	}
	if target.SubjectName != req.SubjectName {
		return appErrors.Clonef(appErrors.ErrCannotEnroll, "group %s does not teach %s", target.ID, req.SubjectName)
	}
	if err := o.checkSchedule(student, target, current.ID); err != nil {
		return err
	}
	if err := AddStudent(target, student.ID); err != nil {
		return err
	}
	if err := RemoveStudent(current, student.ID); err != nil {
		_ = RemoveStudent(target, student.ID)
		return inconsistent(err, "student missing from current group")
	}
	g := target.ID
	rec.GroupID = &g
	rec.Version++
	rec.UpdatedAt = o.now()

	changes.addEnrollment(rec)
	changes.addGroup(current)
	changes.addGroup(target)
	return nil
}

// applySubjectChange withdraws the current subject and starts the target one.
// The target seat is reserved first so that capacity failures need no rollback.
func (o *Operations) applySubjectChange(student *models.Student, req *models.ChangeRequest, changes *ChangeSet) error {
	_, current, target, err := o.requestParties(student, req)
	if err != nil {
		return err
	}
	targetSubject, err := o.dir.FindSubjectByName(req.TargetSubjectName)
	if err != nil {
		return err
	}
	if err := o.checkEnrollInGroup(student, targetSubject, target, current.ID); err != nil {
		return err
	}
	if err := AddStudent(target, student.ID); err != nil {
		return err
	}
	now := o.now()
	prevFrom, _, err := resolve(student, req.SubjectName, subjectActionWithdraw, nil, now)
	if err != nil {
		_ = RemoveStudent(target, student.ID)
		return inconsistent(err, "current subject could not be withdrawn")
	}
	if err := RemoveStudent(current, student.ID); err != nil {
		restore(student, req.SubjectName, prevFrom)
		_ = RemoveStudent(target, student.ID)
		return inconsistent(err, "student missing from current group")
	}
	if _, err := enroll(student, targetSubject, target.ID, now); err != nil {
		restore(student, req.SubjectName, prevFrom)
		reinstate(current, student.ID)
		_ = RemoveStudent(target, student.ID)
		return inconsistent(err, "target subject could not be started")
	}

	changes.addEnrollment(student.Enrollment(req.SubjectName))
	changes.addEnrollment(student.Enrollment(targetSubject.Name))
	changes.addGroup(current)
	changes.addGroup(target)
	return nil
}

// requestParties resolves the record and both groups a request refers to and
// checks the student still sits in the group the request was raised from.
func (o *Operations) requestParties(student *models.Student, req *models.ChangeRequest) (*models.SubjectEnrollment, *models.Group, *models.Group, error) {
	rec := student.Enrollment(req.SubjectName)
	if rec == nil || rec.Status != models.SubjectStatusInProgress {
		return nil, nil, nil, appErrors.Clonef(appErrors.ErrSubjectNotInProgress, "subject %s is %s", req.SubjectName, student.StatusOf(req.SubjectName))
	}
	if !rec.InGroup(req.CurrentGroupID) {
		return nil, nil, nil, appErrors.Clonef(appErrors.ErrStudentNotInGroup, "student %s left group %s after the request", student.ID, req.CurrentGroupID)
	}
	current, err := o.dir.FindGroupByID(req.CurrentGroupID)
	if err != nil {
		return nil, nil, nil, err
	}
	target, err := o.dir.FindGroupByID(req.TargetGroupID)
	if err != nil {
		return nil, nil, nil, err
	}
	return rec, current, target, nil
}

// lockRequest finds the request in the student's collection and locks it
// together with both groups it names and the student. Group ids on a request
// never change, so one peek is enough.
func (o *Operations) lockRequest(studentID, requestID string) (func(), *models.ChangeRequest, error) {
	if studentID == "" || requestID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student and request are required")
	}
	student, err := o.dir.FindStudentByID(studentID)
	if err != nil {
		return nil, nil, err
	}
	peek := o.locks.acquire(studentKey(student.ID))
	req, err := NewRequestManager(student).Find(requestID)
	var currentGroupID, targetGroupID string
	if req != nil {
		currentGroupID, targetGroupID = req.CurrentGroupID, req.TargetGroupID
	}
	peek()
	if err != nil {
		return nil, nil, err
	}

	release := o.locks.acquire(requestKey(requestID), groupKey(currentGroupID), groupKey(targetGroupID), studentKey(student.ID))
	req, err = NewRequestManager(student).Find(requestID)
	if err != nil {
		release()
		return nil, nil, err
	}
	return release, req, nil
}

func currentGroupOf(student *models.Student, subjectName string) (string, error) {
	rec := student.Enrollment(subjectName)
	if rec == nil || rec.Status != models.SubjectStatusInProgress || rec.GroupID == nil {
		return "", appErrors.Clonef(appErrors.ErrSubjectNotInProgress, "subject %s is %s", subjectName, student.StatusOf(subjectName))
	}
	return *rec.GroupID, nil
}
