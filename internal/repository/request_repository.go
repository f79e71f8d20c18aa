package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
)

const requestColumns = `id, kind, student_id, subject_name, current_group_id, target_subject_name, target_group_id, reason,
       state, created_at, reviewed_by, reviewed_at, resolved_by, resolved_at, resolution_comment, version`

// RequestRepository persists change request workflow data.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// FindStudentID returns the owner of a request.
func (r *RequestRepository) FindStudentID(ctx context.Context, requestID string) (string, error) {
	var studentID string
	if err := r.db.GetContext(ctx, &studentID, `SELECT student_id FROM change_requests WHERE id = $1`, requestID); err != nil {
		return "", err
	}
	return studentID, nil
}

// ListByStudent returns a student's requests oldest first.
func (r *RequestRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ChangeRequest, error) {
	return r.List(ctx, models.RequestFilter{StudentID: studentID, Limit: -1})
}

// List returns requests matching the filter ordered by creation time. A
// negative limit disables pagination.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.ChangeRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM change_requests", requestColumns))

	conditions := make([]string, 0, 3)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(filter.State) > 0 {
		placeholders := make([]string, len(filter.State))
		for i, state := range filter.State {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at ASC")

	if filter.Limit >= 0 {
		limit := filter.Limit
		if limit == 0 || limit > 200 {
			limit = 50
		}
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))
	}

	var requests []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return requests, nil
}

// Save upserts a request unless a newer version is already stored.
func (r *RequestRepository) Save(ctx context.Context, request *models.ChangeRequest) error {
	return saveRequest(ctx, r.db, request)
}

// Delete removes an unresolved request.
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM change_requests WHERE id = $1 AND state IN ($2, $3)`,
		id, models.RequestStatePending, models.RequestStateInReview)
	if err != nil {
		return fmt.Errorf("delete change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check change request delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func saveRequest(ctx context.Context, ext sqlx.ExtContext, request *models.ChangeRequest) error {
	const query = `INSERT INTO change_requests
	(id, kind, student_id, subject_name, current_group_id, target_subject_name, target_group_id, reason,
	 state, created_at, reviewed_by, reviewed_at, resolved_by, resolved_at, resolution_comment, version)
	VALUES (:id, :kind, :student_id, :subject_name, :current_group_id, :target_subject_name, :target_group_id, :reason,
	 :state, :created_at, :reviewed_by, :reviewed_at, :resolved_by, :resolved_at, :resolution_comment, :version)
	ON CONFLICT (id)
	DO UPDATE SET state = EXCLUDED.state, reviewed_by = EXCLUDED.reviewed_by, reviewed_at = EXCLUDED.reviewed_at,
	              resolved_by = EXCLUDED.resolved_by, resolved_at = EXCLUDED.resolved_at,
	              resolution_comment = EXCLUDED.resolution_comment, version = EXCLUDED.version
	WHERE change_requests.version < EXCLUDED.version`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, request); err != nil {
		return fmt.Errorf("save change request %s: %w", request.ID, err)
	}
	return nil
}
