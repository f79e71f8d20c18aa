package models

import "time"

// RequestKind enumerates supported change requests.
type RequestKind string

const (
	RequestKindGroupChange   RequestKind = "GROUP_CHANGE"
	RequestKindSubjectChange RequestKind = "SUBJECT_CHANGE"
)

// RequestState captures workflow states for change requests.
type RequestState string

const (
	RequestStatePending  RequestState = "PENDING"
	RequestStateInReview RequestState = "IN_REVIEW"
	RequestStateApproved RequestState = "APPROVED"
	RequestStateRejected RequestState = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s RequestState) Terminal() bool {
	return s == RequestStateApproved || s == RequestStateRejected
}

// ChangeRequest is a student-submitted request to move to another group or subject.
// Resolution fields are written once.
type ChangeRequest struct {
	ID                string       `db:"id" json:"id"`
	Kind              RequestKind  `db:"kind" json:"kind"`
	StudentID         string       `db:"student_id" json:"studentId"`
	SubjectName       string       `db:"subject_name" json:"subjectName"`
	CurrentGroupID    string       `db:"current_group_id" json:"currentGroupId"`
	TargetSubjectName string       `db:"target_subject_name" json:"targetSubjectName"`
	TargetGroupID     string       `db:"target_group_id" json:"targetGroupId"`
	Reason            string       `db:"reason" json:"reason"`
	State             RequestState `db:"state" json:"state"`
	CreatedAt         time.Time    `db:"created_at" json:"createdAt"`
	ReviewedBy        *string      `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time   `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ResolvedBy        *string      `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolvedAt        *time.Time   `db:"resolved_at" json:"resolvedAt,omitempty"`
	ResolutionComment *string      `db:"resolution_comment" json:"resolutionComment,omitempty"`
	Version           int64        `db:"version" json:"version"`
}

// Clone returns a deep copy of the request.
func (r *ChangeRequest) Clone() *ChangeRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.ReviewedBy = cloneString(r.ReviewedBy)
	c.ResolvedBy = cloneString(r.ResolvedBy)
	c.ResolutionComment = cloneString(r.ResolutionComment)
	c.ReviewedAt = cloneTime(r.ReviewedAt)
	c.ResolvedAt = cloneTime(r.ResolvedAt)
	return &c
}

// RequestStats aggregates a student's requests. Percentages are 0..100 and
// ApprovalRate is a 0..1 fraction; all are zero when there are no requests.
type RequestStats struct {
	StudentID          string  `json:"studentId"`
	Total              int     `json:"total"`
	Pending            int     `json:"pending"`
	InReview           int     `json:"inReview"`
	Approved           int     `json:"approved"`
	Rejected           int     `json:"rejected"`
	ApprovalRate       float64 `json:"approvalRate"`
	PendingPercentage  float64 `json:"pendingPercentage"`
	InReviewPercentage float64 `json:"inReviewPercentage"`
	ApprovedPercentage float64 `json:"approvedPercentage"`
	RejectedPercentage float64 `json:"rejectedPercentage"`
}

// RequestFilter constrains request listings.
type RequestFilter struct {
	StudentID string
	State     []RequestState
	Kind      RequestKind
	Limit     int
	Offset    int
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
