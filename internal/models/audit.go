package models

import "time"

// Audit actions recorded for staff operations.
const (
	AuditActionSubjectCreate   = "SUBJECT_CREATE"
	AuditActionGroupCreate     = "GROUP_CREATE"
	AuditActionGroupOpen       = "GROUP_OPEN"
	AuditActionGroupClose      = "GROUP_CLOSE"
	AuditActionGroupDelete     = "GROUP_DELETE"
	AuditActionEnrollmentGrade = "ENROLLMENT_GRADE"
	AuditActionRequestReview   = "REQUEST_REVIEW"
	AuditActionRequestApprove  = "REQUEST_APPROVE"
	AuditActionRequestReject   = "REQUEST_REJECT"
)

// AuditLog is one entry of the staff audit trail.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	Action     string `form:"action"`
	Resource   string `form:"resource"`
	ResourceID string `form:"resourceId"`
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
}
