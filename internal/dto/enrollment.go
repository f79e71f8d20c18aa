package dto

import "github.com/noah-isme/academic-enrollment-api/internal/models"

// EnrollRequest starts a subject in a group.
type EnrollRequest struct {
	StudentID   string `json:"studentId" validate:"required"`
	SubjectName string `json:"subjectName" validate:"required"`
	GroupID     string `json:"groupId" validate:"required"`
}

// UnenrollRequest withdraws a subject and frees the group seat.
type UnenrollRequest struct {
	StudentID   string `json:"studentId" validate:"required"`
	SubjectName string `json:"subjectName" validate:"required"`
	GroupID     string `json:"groupId" validate:"required"`
}

// GradeOutcome is the administrative result of an attempt.
type GradeOutcome string

const (
	GradeOutcomeApproved GradeOutcome = "APPROVED"
	GradeOutcomeFailed   GradeOutcome = "FAILED"
)

// GradeRequest closes an in-progress subject as approved or failed.
type GradeRequest struct {
	StudentID   string       `json:"studentId" validate:"required"`
	SubjectName string       `json:"subjectName" validate:"required"`
	Outcome     GradeOutcome `json:"outcome" validate:"required,oneof=APPROVED FAILED"`
	Grade       *float64     `json:"grade" validate:"omitempty,gte=0,lte=100"`
}

// EnrollmentResponse returns the record and the group after an operation.
type EnrollmentResponse struct {
	Enrollment *models.SubjectEnrollment `json:"enrollment"`
	Group      *models.Group             `json:"group,omitempty"`
}

// EligibilityQuery carries the eligibility check parameters.
type EligibilityQuery struct {
	SubjectName string `form:"subject" validate:"required"`
	GroupID     string `form:"group"`
}
