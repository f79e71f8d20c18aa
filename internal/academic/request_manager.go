package academic

import (
	"sort"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

// RequestManager owns a student's change requests. It is not synchronised;
// Operations uses it while holding the student lock.
type RequestManager struct {
	student *models.Student
}

// NewRequestManager wraps the request collection of student.
func NewRequestManager(student *models.Student) *RequestManager {
	return &RequestManager{student: student}
}

// Add appends a request raised by the managed student.
func (m *RequestManager) Add(r *models.ChangeRequest) error {
	if r == nil || r.ID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "request id is required")
	}
	if r.StudentID != m.student.ID {
		return appErrors.Clonef(appErrors.ErrOperationNotAllowed, "request %s belongs to another student", r.ID)
	}
	if _, idx := m.find(r.ID); idx >= 0 {
		return appErrors.Clonef(appErrors.ErrConflict, "request %s already exists", r.ID)
	}
	m.student.Requests = append(m.student.Requests, r)
	return nil
}

// Find returns the request with id.
func (m *RequestManager) Find(id string) (*models.ChangeRequest, error) {
	r, idx := m.find(id)
	if idx < 0 {
		return nil, appErrors.Clonef(appErrors.ErrRequestNotFound, "request %s not found", id)
	}
	return r, nil
}

// Remove withdraws a request that has not been resolved yet.
func (m *RequestManager) Remove(id string) (*models.ChangeRequest, error) {
	r, idx := m.find(id)
	if idx < 0 {
		return nil, appErrors.Clonef(appErrors.ErrRequestNotFound, "request %s not found", id)
	}
	if r.State.Terminal() {
		return nil, appErrors.Clonef(appErrors.ErrOperationNotAllowed, "request %s is %s and cannot be removed", id, r.State)
	}
	reqs := m.student.Requests
	m.student.Requests = append(reqs[:idx:idx], reqs[idx+1:]...)
	return r, nil
}

// HasActive reports whether a pending or in-review request already targets subjectName.
func (m *RequestManager) HasActive(subjectName string) bool {
	for _, r := range m.student.Requests {
		if !r.State.Terminal() && r.SubjectName == subjectName {
			return true
		}
	}
	return false
}

// Active returns pending and in-review requests in creation order.
func (m *RequestManager) Active() []*models.ChangeRequest {
	return m.filter(func(r *models.ChangeRequest) bool { return !r.State.Terminal() })
}

// History returns resolved requests ordered by creation time, oldest first.
func (m *RequestManager) History() []*models.ChangeRequest {
	return m.filter(func(r *models.ChangeRequest) bool { return r.State.Terminal() })
}

// Count returns the number of requests in state.
func (m *RequestManager) Count(state models.RequestState) int {
	n := 0
	for _, r := range m.student.Requests {
		if r.State == state {
			n++
		}
	}
	return n
}

// Percentage returns the share of requests in state as 0..100.
func (m *RequestManager) Percentage(state models.RequestState) float64 {
	return 100 * ratio(m.Count(state), len(m.student.Requests))
}

// ApprovalRate returns approved / total as a 0..1 fraction.
func (m *RequestManager) ApprovalRate() float64 {
	return ratio(m.Count(models.RequestStateApproved), len(m.student.Requests))
}

// Stats aggregates counts and percentages.
func (m *RequestManager) Stats() models.RequestStats {
	stats := models.RequestStats{
		StudentID: m.student.ID,
		Total:     len(m.student.Requests),
		Pending:   m.Count(models.RequestStatePending),
		InReview:  m.Count(models.RequestStateInReview),
		Approved:  m.Count(models.RequestStateApproved),
		Rejected:  m.Count(models.RequestStateRejected),
	}
	stats.ApprovalRate = ratio(stats.Approved, stats.Total)
	stats.PendingPercentage = 100 * ratio(stats.Pending, stats.Total)
	stats.InReviewPercentage = 100 * ratio(stats.InReview, stats.Total)
	stats.ApprovedPercentage = 100 * ratio(stats.Approved, stats.Total)
	stats.RejectedPercentage = 100 * ratio(stats.Rejected, stats.Total)
	return stats
}

func (m *RequestManager) find(id string) (*models.ChangeRequest, int) {
	for i, r := range m.student.Requests {
		if r.ID == id {
			return r, i
		}
	}
	return nil, -1
}

func (m *RequestManager) filter(keep func(*models.ChangeRequest) bool) []*models.ChangeRequest {
	out := make([]*models.ChangeRequest, 0, len(m.student.Requests))
	for _, r := range m.student.Requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
