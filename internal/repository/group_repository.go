package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
)

const groupColumns = `id, subject_name, professor_id, capacity, schedule, enrolled, state, version, created_at, updated_at`

// GroupRepository persists subject groups. Membership is not stored on the
// group row; it is derived from in-progress enrollment records.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByID loads a group together with the ids of its current members.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	query := fmt.Sprintf(`SELECT %s FROM groups WHERE id = $1`, groupColumns)
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	members, err := r.memberIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	group.StudentIDs = members
	return &group, nil
}

// List returns groups matching the filter ordered by subject then id.
func (r *GroupRepository) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, error) {
	var conditions []string
	var args []interface{}
	if filter.SubjectName != "" {
		args = append(args, filter.SubjectName)
		conditions = append(conditions, fmt.Sprintf("subject_name = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.ProfessorID != "" {
		args = append(args, filter.ProfessorID)
		conditions = append(conditions, fmt.Sprintf("professor_id = $%d", len(args)))
	}
	query := fmt.Sprintf(`SELECT %s FROM groups`, groupColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY subject_name ASC, id ASC"

	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// Create inserts a new group row.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	if group.Version == 0 {
		group.Version = 1
	}
	query := fmt.Sprintf(`INSERT INTO groups (%s)
VALUES (:id, :subject_name, :professor_id, :capacity, :schedule, :enrolled, :state, :version, :created_at, :updated_at)`, groupColumns)
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Save writes the mutable columns when the stored version is older.
func (r *GroupRepository) Save(ctx context.Context, group *models.Group) error {
	return saveGroup(ctx, r.db, group)
}

// Delete removes an empty group. A missing or non-empty group yields sql.ErrNoRows.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1 AND enrolled = 0`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete group rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *GroupRepository) memberIDs(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT student_id FROM subject_enrollments WHERE group_id = $1 AND status = $2 ORDER BY updated_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID, models.SubjectStatusInProgress); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return ids, nil
}

func saveGroup(ctx context.Context, ext sqlx.ExtContext, group *models.Group) error {
	const query = `UPDATE groups SET enrolled = :enrolled, state = :state, version = :version, updated_at = :updated_at
WHERE id = :id AND version < :version`
	group.UpdatedAt = time.Now().UTC()
	if _, err := sqlx.NamedExecContext(ctx, ext, query, group); err != nil {
		return fmt.Errorf("save group %s: %w", group.ID, err)
	}
	return nil
}
