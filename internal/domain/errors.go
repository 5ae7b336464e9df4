package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure; nothing here imports infrastructure.

var (
	// Ledger errors
	ErrInvalidAmount   = errors.New("xp amount must be a positive integer")
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")

	// Project errors
	ErrProjectNotFound = errors.New("project not found")
	ErrManagerAssigned = errors.New("project already has a project manager")
	ErrNotActiveMember = errors.New("user is not an active team member")
	ErrProjectAccess   = errors.New("access denied to this project")
	ErrClientOnly      = errors.New("only clients can create projects")
	ErrNotClient       = errors.New("only the project client can perform this action")
	ErrManagerOnly     = errors.New("only project managers can browse developers")
	ErrProjectStatus   = errors.New("invalid project status")

	// Task errors
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrXPOutOfRange    = errors.New("xp points must be between 10 and 1000")
	ErrStatusOnly      = errors.New("you can only update task status")
	ErrNotTaskEditor   = errors.New("only the project manager or the assigned developer can update this task")
	ErrNotProjectPM    = errors.New("only the project manager can perform this action")
	ErrEmptyTaskUpdate = errors.New("task update carries no fields")
)

// ─── Typed Errors ───────────────────────────────────────────────────────────

// Kind classifies an Error for callers that need to branch on it.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// Error carries a classification and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *Error {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation wraps err as a validation failure.
func Validation(err error) *Error { return newError(KindValidation, err, "") }

// Validationf builds a validation failure with a formatted message.
func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

// NotFound wraps err as a missing-entity failure.
func NotFound(err error) *Error { return newError(KindNotFound, err, "") }

// Forbidden wraps err as an authorization failure.
func Forbidden(err error) *Error { return newError(KindForbidden, err, "") }

// Conflict wraps err as a uniqueness/duplicate failure.
func Conflict(err error) *Error { return newError(KindConflict, err, "") }

// KindOf classifies any error. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
