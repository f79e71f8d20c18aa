package academic

import (
	"fmt"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type groupAction string

const (
	groupActionOpen  groupAction = "open"
	groupActionClose groupAction = "close"
)

var groupTransitions = map[models.GroupState]map[groupAction]models.GroupState{
	models.GroupStateOpen:   {groupActionClose: models.GroupStateClosed},
	models.GroupStateClosed: {groupActionOpen: models.GroupStateOpen},
}

func groupTransition(from models.GroupState, action groupAction) (models.GroupState, bool) {
	to, ok := groupTransitions[from][action]
	return to, ok
}

// ValidateGroup checks the structural invariants of a group definition.
func ValidateGroup(g *models.Group) error {
	if g == nil || g.ID == "" || g.SubjectName == "" {
		return appErrors.Clone(appErrors.ErrValidation, "group id and subject are required")
	}
	if g.Capacity <= 0 {
		return appErrors.Clonef(appErrors.ErrValidation, "group %s capacity must be positive", g.ID)
	}
	if g.Enrolled < 0 || g.Enrolled > g.Capacity || g.Enrolled != len(g.StudentIDs) {
		return appErrors.Clonef(appErrors.ErrValidation, "group %s enrolled count %d out of range", g.ID, g.Enrolled)
	}
	if _, ok := groupTransitions[g.State]; !ok {
		return appErrors.Clonef(appErrors.ErrValidation, "group %s has unknown state %q", g.ID, g.State)
	}
	for _, slot := range g.Schedule {
		if err := ValidateSlot(slot); err != nil {
			return err
		}
	}
	return nil
}

// checkAdmission reports why studentID could not be added to g, without mutating it.
func checkAdmission(g *models.Group, studentID string) error {
	switch g.State {
	case models.GroupStateOpen:
	case models.GroupStateClosed:
		return appErrors.Clonef(appErrors.ErrGroupClosed, "group %s is closed", g.ID)
	default:
		return appErrors.Clonef(appErrors.ErrInternal, "group %s has unknown state %q", g.ID, g.State)
	}
	if g.HasStudent(studentID) {
		return appErrors.Clonef(appErrors.ErrStudentAlreadyInGroup, "student %s already in group %s", studentID, g.ID)
	}
	if g.Enrolled >= g.Capacity {
		return appErrors.Clonef(appErrors.ErrGroupFull, "group %s is full (%d/%d)", g.ID, g.Enrolled, g.Capacity)
	}
	return nil
}

// AddStudent reserves a seat for studentID. The capacity check and the
// increment are one step; callers hold the group lock.
func AddStudent(g *models.Group, studentID string) error {
	if err := checkAdmission(g, studentID); err != nil {
		return err
	}
	g.StudentIDs = append(g.StudentIDs, studentID)
	g.Enrolled++
	g.Version++
	return nil
}

// RemoveStudent releases the student's seat. Closed groups still release.
func RemoveStudent(g *models.Group, studentID string) error {
	idx := -1
	for i, id := range g.StudentIDs {
		if id == studentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return appErrors.Clonef(appErrors.ErrStudentNotInGroup, "student %s not in group %s", studentID, g.ID)
	}
	if g.Enrolled <= 0 {
		return appErrors.Clonef(appErrors.ErrInternal, "group %s enrolled count would become negative", g.ID)
	}
	g.StudentIDs = append(g.StudentIDs[:idx], g.StudentIDs[idx+1:]...)
	g.Enrolled--
	g.Version++
	return nil
}

// reinstate puts a student back after a partially applied move. It skips the
// admission rules because the seat was held a moment ago.
func reinstate(g *models.Group, studentID string) {
	if g.HasStudent(studentID) {
		return
	}
	g.StudentIDs = append(g.StudentIDs, studentID)
	g.Enrolled++
	g.Version++
}

// OpenGroup lets a closed group admit students again.
func OpenGroup(g *models.Group) error {
	return applyGroupAction(g, groupActionOpen)
}

// CloseGroup stops new admissions. Enrolled students stay.
func CloseGroup(g *models.Group) error {
	return applyGroupAction(g, groupActionClose)
}

func applyGroupAction(g *models.Group, action groupAction) error {
	to, ok := groupTransition(g.State, action)
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidStateTransition,
			fmt.Sprintf("group %s cannot %s while %s", g.ID, action, g.State))
	}
	g.State = to
	g.Version++
	return nil
}
