package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-enrollment-api/internal/academic"
)

// ChangeSetRepository commits the aggregates mutated by one academic operation
// in a single transaction.
type ChangeSetRepository struct {
	db *sqlx.DB
}

// NewChangeSetRepository constructs the repository.
func NewChangeSetRepository(db *sqlx.DB) *ChangeSetRepository {
	return &ChangeSetRepository{db: db}
}

// Commit writes every snapshot in changes. Each write is version guarded, so
// a commit that lands after a newer one leaves the newer rows untouched.
func (r *ChangeSetRepository) Commit(ctx context.Context, changes *academic.ChangeSet) error {
	if changes == nil || (len(changes.Enrollments) == 0 && len(changes.Groups) == 0 && len(changes.Requests) == 0) {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin change set tx: %w", err)
	}
	for _, group := range changes.Groups {
		if err := saveGroup(ctx, tx, group); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	for _, record := range changes.Enrollments {
		if err := saveEnrollment(ctx, tx, record); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	for _, request := range changes.Requests {
		if err := saveRequest(ctx, tx, request); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit change set tx: %w", err)
	}
	return nil
}
