package models

import "time"

// GroupState is the open/closed variant of a group.
type GroupState string

const (
	GroupStateOpen   GroupState = "OPEN"
	GroupStateClosed GroupState = "CLOSED"
)

// Group is an offering of a subject. Enrolled always equals len(StudentIDs)
// and never exceeds Capacity.
type Group struct {
	ID          string        `db:"id" json:"id"`
	SubjectName string        `db:"subject_name" json:"subjectName"`
	ProfessorID *string       `db:"professor_id" json:"professorId,omitempty"`
	Capacity    int           `db:"capacity" json:"capacity"`
	Schedule    ScheduleSlots `db:"schedule" json:"schedule"`
	Enrolled    int           `db:"enrolled" json:"enrolled"`
	StudentIDs  []string      `db:"-" json:"studentIds"`
	State       GroupState    `db:"state" json:"state"`
	Version     int64         `db:"version" json:"version"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`
}

// HasStudent reports whether the student occupies a seat.
func (g *Group) HasStudent(studentID string) bool {
	for _, id := range g.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// Available returns the number of free seats.
func (g *Group) Available() int {
	return g.Capacity - g.Enrolled
}

// Clone returns a deep copy safe to hand out after the group lock is released.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	if g.ProfessorID != nil {
		p := *g.ProfessorID
		c.ProfessorID = &p
	}
	c.Schedule = append(ScheduleSlots(nil), g.Schedule...)
	c.StudentIDs = append([]string(nil), g.StudentIDs...)
	return &c
}

// GroupFilter constrains group listings.
type GroupFilter struct {
	SubjectName string
	State       GroupState
	ProfessorID string
}
