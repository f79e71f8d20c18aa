package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
)

// EnrollmentRepository handles persistence of per-student subject records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListByStudent returns every subject record of a student.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.SubjectEnrollment, error) {
	const query = `SELECT id, student_id, subject_name, status, group_id, grade, semester, attempts, version, updated_at
FROM subject_enrollments WHERE student_id = $1 ORDER BY subject_name ASC`
	var records []models.SubjectEnrollment
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return records, nil
}

// Save upserts a record unless a newer version is already stored.
func (r *EnrollmentRepository) Save(ctx context.Context, record *models.SubjectEnrollment) error {
	return saveEnrollment(ctx, r.db, record)
}

func saveEnrollment(ctx context.Context, ext sqlx.ExtContext, record *models.SubjectEnrollment) error {
	if record.Attempts == nil {
		record.Attempts = models.EnrollmentAttempts{}
	}
	const query = `INSERT INTO subject_enrollments (id, student_id, subject_name, status, group_id, grade, semester, attempts, version, updated_at)
VALUES (:id, :student_id, :subject_name, :status, :group_id, :grade, :semester, :attempts, :version, :updated_at)
ON CONFLICT (id)
DO UPDATE SET status = EXCLUDED.status, group_id = EXCLUDED.group_id, grade = EXCLUDED.grade,
              semester = EXCLUDED.semester, attempts = EXCLUDED.attempts, version = EXCLUDED.version,
              updated_at = EXCLUDED.updated_at
WHERE subject_enrollments.version < EXCLUDED.version`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, record); err != nil {
		return fmt.Errorf("save enrollment %s: %w", record.ID, err)
	}
	return nil
}
