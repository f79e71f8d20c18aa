package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// SubjectStatus is a student's progress in one subject.
type SubjectStatus string

const (
	SubjectStatusNotStarted SubjectStatus = "NOT_STARTED"
	SubjectStatusInProgress SubjectStatus = "IN_PROGRESS"
	SubjectStatusApproved   SubjectStatus = "APPROVED"
	SubjectStatusFailed     SubjectStatus = "FAILED"
	SubjectStatusWithdrawn  SubjectStatus = "WITHDRAWN"
)

// SubjectEnrollment is the per-student record for one subject. There is exactly
// one record per (student, subject); earlier outcomes are kept in Attempts.
type SubjectEnrollment struct {
	ID          string             `db:"id" json:"id"`
	StudentID   string             `db:"student_id" json:"studentId"`
	SubjectName string             `db:"subject_name" json:"subjectName"`
	Status      SubjectStatus      `db:"status" json:"status"`
	GroupID     *string            `db:"group_id" json:"groupId,omitempty"`
	Grade       *float64           `db:"grade" json:"grade,omitempty"`
	Semester    int                `db:"semester" json:"semester"`
	Attempts    EnrollmentAttempts `db:"attempts" json:"attempts"`
	Version     int64              `db:"version" json:"version"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updatedAt"`
}

// InGroup reports whether the record currently holds a seat in groupID.
func (e *SubjectEnrollment) InGroup(groupID string) bool {
	return e != nil && e.Status == SubjectStatusInProgress && e.GroupID != nil && *e.GroupID == groupID
}

// Clone returns a deep copy of the record.
func (e *SubjectEnrollment) Clone() *SubjectEnrollment {
	if e == nil {
		return nil
	}
	c := *e
	if e.GroupID != nil {
		g := *e.GroupID
		c.GroupID = &g
	}
	if e.Grade != nil {
		g := *e.Grade
		c.Grade = &g
	}
	c.Attempts = append(EnrollmentAttempts(nil), e.Attempts...)
	return &c
}

// EnrollmentAttempt is an archived outcome of a previous attempt at a subject.
type EnrollmentAttempt struct {
	Status   SubjectStatus `json:"status"`
	GroupID  string        `json:"groupId,omitempty"`
	Grade    *float64      `json:"grade,omitempty"`
	Semester int           `json:"semester"`
	ClosedAt time.Time     `json:"closedAt"`
}

// EnrollmentAttempts stores attempt history in a JSONB column.
type EnrollmentAttempts []EnrollmentAttempt

// Value implements driver.Valuer.
func (a EnrollmentAttempts) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]EnrollmentAttempt(a))
}

// Scan implements sql.Scanner.
func (a *EnrollmentAttempts) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// Eligibility is the outcome of an enrollment pre-check.
type Eligibility struct {
	StudentID   string `json:"studentId"`
	SubjectName string `json:"subjectName"`
	GroupID     string `json:"groupId,omitempty"`
	Eligible    bool   `json:"eligible"`
	Code        string `json:"code,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
