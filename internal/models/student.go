package models

import "time"

// Student is the aggregate owning a learner's subject records and change requests.
type Student struct {
	ID          string                        `db:"id" json:"id"`
	FullName    string                        `db:"full_name" json:"fullName"`
	Semester    int                           `db:"semester" json:"semester"`
	Active      bool                          `db:"active" json:"active"`
	Enrollments map[string]*SubjectEnrollment `db:"-" json:"enrollments"`
	Requests    []*ChangeRequest              `db:"-" json:"requests"`
	CreatedAt   time.Time                     `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time                     `db:"updated_at" json:"updatedAt"`
}

// Enrollment returns the record for subjectName, or nil when the student never enrolled.
func (s *Student) Enrollment(subjectName string) *SubjectEnrollment {
	if s == nil || s.Enrollments == nil {
		return nil
	}
	return s.Enrollments[subjectName]
}

// StatusOf returns the student's status in a subject, NOT_STARTED when there is no record.
func (s *Student) StatusOf(subjectName string) SubjectStatus {
	if rec := s.Enrollment(subjectName); rec != nil {
		return rec.Status
	}
	return SubjectStatusNotStarted
}

// Clone returns a deep copy of the aggregate.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}
	c := *s
	c.Enrollments = make(map[string]*SubjectEnrollment, len(s.Enrollments))
	for k, v := range s.Enrollments {
		c.Enrollments[k] = v.Clone()
	}
	c.Requests = make([]*ChangeRequest, 0, len(s.Requests))
	for _, r := range s.Requests {
		c.Requests = append(c.Requests, r.Clone())
	}
	return &c
}
