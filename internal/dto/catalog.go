package dto

import "github.com/noah-isme/academic-enrollment-api/internal/models"

// CreateSubjectRequest adds a catalog subject.
type CreateSubjectRequest struct {
	Name          string   `json:"name" validate:"required,max=120"`
	Credits       int      `json:"credits" validate:"gte=0,lte=30"`
	Prerequisites []string `json:"prerequisites" validate:"dive,required"`
	Semester      int      `json:"semester" validate:"gte=0,lte=20"`
}

// CreateGroupRequest opens a new group for a subject.
type CreateGroupRequest struct {
	ID          string                `json:"id" validate:"required,max=64"`
	SubjectName string                `json:"subjectName" validate:"required"`
	ProfessorID *string               `json:"professorId"`
	Capacity    int                   `json:"capacity" validate:"required,gt=0"`
	Schedule    []models.ScheduleSlot `json:"schedule" validate:"dive"`
}

// SubjectQuery mirrors supported subject listing filters.
type SubjectQuery struct {
	Semester int    `form:"semester"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}
