package domain

import (
	"time"
	"unicode/utf8"
)

// ─── Task Updates ───────────────────────────────────────────────────────────
// A task edit is either a full manager update or a status-only update from
// the assignee. The two shapes are distinct types so that a developer can
// never smuggle other fields through.

// TaskUpdate is implemented by ManagerUpdate and StatusUpdate only.
type TaskUpdate interface {
	// NewStatus returns the requested status, if any.
	NewStatus() (TaskStatus, bool)
	Validate() error
	isTaskUpdate()
}

// ManagerUpdate is a partial edit by the project manager. Nil fields are
// left untouched.
type ManagerUpdate struct {
	Title       *string
	Description *string
	AssignedTo  *OptionalUser
	Status      *TaskStatus
	Priority    *Priority
	Difficulty  *Difficulty
	XPPoints    *int
	DueDate     *time.Time
}

func (ManagerUpdate) isTaskUpdate() {}

func (u ManagerUpdate) NewStatus() (TaskStatus, bool) {
	if u.Status == nil {
		return "", false
	}
	return *u.Status, true
}

// Validate checks every present field.
func (u ManagerUpdate) Validate() error {
	if u.Title == nil && u.Description == nil && u.AssignedTo == nil && u.Status == nil &&
		u.Priority == nil && u.Difficulty == nil && u.XPPoints == nil && u.DueDate == nil {
		return Validation(ErrEmptyTaskUpdate)
	}
	if u.Title != nil {
		if err := ValidateTaskTitle(*u.Title); err != nil {
			return err
		}
	}
	if u.Description != nil && utf8.RuneCountInString(*u.Description) > MaxDescriptionLen {
		return Validationf("description cannot exceed %d characters", MaxDescriptionLen)
	}
	if u.Status != nil && !u.Status.Valid() {
		return Validation(ErrInvalidStatus)
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return Validationf("invalid priority %q", *u.Priority)
	}
	if u.Difficulty != nil && !u.Difficulty.Valid() {
		return Validationf("invalid difficulty %q", *u.Difficulty)
	}
	if u.XPPoints != nil {
		if err := ValidateTaskXP(*u.XPPoints); err != nil {
			return err
		}
	}
	return nil
}

// Apply copies the present fields onto t.
func (u ManagerUpdate) Apply(t *Task) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.AssignedTo != nil {
		t.AssignedTo = *u.AssignedTo
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Difficulty != nil {
		t.Difficulty = *u.Difficulty
	}
	if u.XPPoints != nil {
		t.XPPoints = *u.XPPoints
	}
	if u.DueDate != nil {
		d := *u.DueDate
		t.DueDate = &d
	}
}

// StatusUpdate is the only edit an assignee may make.
type StatusUpdate struct {
	Status TaskStatus
}

func (StatusUpdate) isTaskUpdate() {}

func (u StatusUpdate) NewStatus() (TaskStatus, bool) { return u.Status, true }

func (u StatusUpdate) Validate() error {
	if !u.Status.Valid() {
		return Validation(ErrInvalidStatus)
	}
	return nil
}

// ─── Field Rules ────────────────────────────────────────────────────────────

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 1000
)

// ValidateTaskTitle enforces a non-empty title of bounded length.
func ValidateTaskTitle(title string) error {
	if title == "" {
		return Validationf("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return Validationf("title cannot exceed %d characters", MaxTitleLen)
	}
	return nil
}

// ValidateTaskXP enforces the task reward range.
func ValidateTaskXP(xp int) error {
	if xp < MinTaskXP || xp > MaxTaskXP {
		return Validation(ErrXPOutOfRange)
	}
	return nil
}
