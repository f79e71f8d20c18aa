package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/academic-enrollment-api/internal/academic"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

// aggregateLoader makes aggregates resident before the academic core, which
// never performs I/O, looks them up.
type aggregateLoader interface {
	LoadSubject(ctx context.Context, name string) (*models.Subject, error)
	LoadGroup(ctx context.Context, id string) (*models.Group, error)
	LoadStudent(ctx context.Context, id string) (*models.Student, error)
}

type changeSetCommitter interface {
	Commit(ctx context.Context, changes *academic.ChangeSet) error
}

// hydrate loads the student, subjects and groups in parallel. Empty names are skipped.
func hydrate(ctx context.Context, loader aggregateLoader, studentID string, subjects []string, groups []string) error {
	eg, egCtx := errgroup.WithContext(ctx)
	if studentID != "" {
		eg.Go(func() error {
			_, err := loader.LoadStudent(egCtx, studentID)
			return err
		})
	}
	for _, name := range subjects {
		if name == "" {
			continue
		}
		subjectName := name
		eg.Go(func() error {
			_, err := loader.LoadSubject(egCtx, subjectName)
			return err
		})
	}
	for _, id := range groups {
		if id == "" {
			continue
		}
		groupID := id
		eg.Go(func() error {
			_, err := loader.LoadGroup(egCtx, groupID)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return internalOr(err, "failed to load academic records")
	}
	return nil
}

// authorizeStudent lets staff act on any student and students act on themselves.
func authorizeStudent(actor *models.JWTClaims, studentID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role.IsStaff() {
		return nil
	}
	if actor.Role == models.RoleStudent && actor.UserID == studentID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "students may only act on their own records")
}

func authorizeStaff(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.IsStaff() {
		return appErrors.ErrForbidden
	}
	return nil
}

// internalOr keeps typed errors and wraps anything else as INTERNAL_ERROR.
func internalOr(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
