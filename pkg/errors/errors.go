package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wrappers
// still match their predefined sentinel.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Ambient errors shared by every layer.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Group errors.
var (
	ErrGroupFull             = New("GROUP_FULL", http.StatusConflict, "group is at capacity")
	ErrGroupClosed           = New("GROUP_CLOSED", http.StatusConflict, "group is closed")
	ErrStudentAlreadyInGroup = New("STUDENT_ALREADY_IN_GROUP", http.StatusConflict, "student already in group")
	ErrStudentNotInGroup     = New("STUDENT_NOT_IN_GROUP", http.StatusConflict, "student not in group")
	ErrSameGroup             = New("SAME_GROUP", http.StatusBadRequest, "target group is the current group")
	ErrScheduleConflict      = New("SCHEDULE_CONFLICT", http.StatusConflict, "schedule conflict")
)

// Subject enrollment errors.
var (
	ErrSameSubject            = New("SAME_SUBJECT", http.StatusBadRequest, "target subject is the current subject")
	ErrSubjectAlreadyEnrolled = New("SUBJECT_ALREADY_ENROLLED", http.StatusConflict, "subject already enrolled or approved")
	ErrSubjectNotInProgress   = New("SUBJECT_NOT_IN_PROGRESS", http.StatusConflict, "subject is not in progress")
	ErrPrerequisitesNotMet    = New("PREREQUISITES_NOT_MET", http.StatusPreconditionFailed, "prerequisites not met")
	ErrCannotEnroll           = New("CANNOT_ENROLL", http.StatusConflict, "cannot enroll")
	ErrCannotApprove          = New("CANNOT_APPROVE", http.StatusConflict, "cannot approve subject")
	ErrCannotFail             = New("CANNOT_FAIL", http.StatusConflict, "cannot fail subject")
	ErrCannotDropSubject      = New("CANNOT_DROP_SUBJECT", http.StatusConflict, "cannot drop subject")
)

// Request workflow errors.
var (
	ErrInvalidStateTransition = New("INVALID_STATE_TRANSITION", http.StatusConflict, "invalid state transition")
	ErrRequestAlreadyApproved = New("REQUEST_ALREADY_APPROVED", http.StatusConflict, "request already approved")
	ErrRequestAlreadyRejected = New("REQUEST_ALREADY_REJECTED", http.StatusConflict, "request already rejected")
	ErrRequestNotInReview     = New("REQUEST_NOT_IN_REVIEW", http.StatusConflict, "request is not in review")
	ErrRequestNotFound        = New("REQUEST_NOT_FOUND", http.StatusNotFound, "request not found")
	ErrOperationNotAllowed    = New("OPERATION_NOT_ALLOWED", http.StatusForbidden, "operation not allowed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Clonef is Clone with a formatted message.
func Clonef(err *Error, format string, args ...interface{}) *Error {
	return Clone(err, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of err, or INTERNAL_ERROR for untyped errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Code
}
