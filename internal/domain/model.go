// Package domain contains pure business types with ZERO infrastructure imports.
// Accounts, projects, tasks and badge awards live here; the rules that move
// XP between them live in internal/app.
package domain

import (
	"encoding/json"
	"time"
)

// ─── Identity ───────────────────────────────────────────────────────────────

// UserID identifies an account.
type UserID string

// Role is the platform role an account signed up with.
type Role string

const (
	RoleClient    Role = "client"
	RoleManager   Role = "pm"
	RoleDeveloper Role = "developer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleManager, RoleDeveloper:
		return true
	}
	return false
}

// OptionalUser is a nullable account reference, shaped like sql.NullString.
// It is used for relations that may legitimately be absent (a project's PM,
// a task's assignee) so callers must unpack it before use.
type OptionalUser struct {
	ID    UserID
	Valid bool
}

// SomeUser wraps id as a present reference.
func SomeUser(id UserID) OptionalUser {
	return OptionalUser{ID: id, Valid: id != ""}
}

// NoUser is the absent reference.
var NoUser = OptionalUser{}

// Get returns the referenced ID and whether it is present.
func (o OptionalUser) Get() (UserID, bool) {
	return o.ID, o.Valid
}

// Is reports whether the reference is present and points at id.
func (o OptionalUser) Is(id UserID) bool {
	return o.Valid && o.ID == id
}

// MarshalJSON encodes an absent reference as null.
func (o OptionalUser) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(string(o.ID))
}

// UnmarshalJSON accepts a string or null.
func (o *OptionalUser) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*o = NoUser
		return nil
	}
	*o = SomeUser(UserID(*s))
	return nil
}

// ─── Account Ledger ─────────────────────────────────────────────────────────

// Account is a user together with their gamification ledger.
// Level is always derived from XP; it is stored only as a cache of the last
// recompute.
type Account struct {
	ID             UserID       `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Role           Role         `json:"role"`
	XP             int          `json:"xp"`
	Level          int          `json:"level"`
	TasksCompleted int          `json:"tasks_completed"`
	Badges         []BadgeAward `json:"badges"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NewAccount returns a fresh account with an empty ledger.
func NewAccount(id UserID, name, email string, role Role, now time.Time) *Account {
	return &Account{
		ID:        id,
		Name:      name,
		Email:     email,
		Role:      role,
		XP:        0,
		Level:     1,
		CreatedAt: now,
	}
}

// HasBadge reports whether badgeID has already been awarded.
func (a *Account) HasBadge(badgeID string) bool {
	for _, b := range a.Badges {
		if b.BadgeID == badgeID {
			return true
		}
	}
	return false
}

// BadgeAward is a badge held by an account. Awards are never revoked.
type BadgeAward struct {
	BadgeID  string    `json:"badge_id"`
	Name     string    `json:"name"`
	EarnedAt time.Time `json:"earned_at"`
}

// XPReason records why XP was credited.
type XPReason string

const (
	ReasonTaskCompleted  XPReason = "task_completed"
	ReasonPMBonus        XPReason = "pm_bonus"
	ReasonClientBonus    XPReason = "client_bonus"
	ReasonProjectCreated XPReason = "project_created"
	ReasonTaskCreated    XPReason = "task_created"
)

// XPEvent is one row of the XP audit trail.
type XPEvent struct {
	ID        int64     `json:"id"`
	UserID    UserID    `json:"user_id"`
	Amount    int       `json:"amount"`
	Reason    XPReason  `json:"reason"`
	ProjectID string    `json:"project_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ─── Projects ───────────────────────────────────────────────────────────────

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPending   ProjectStatus = "pending"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPending, ProjectActive, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// MemberStatus is a developer's standing in a project team.
type MemberStatus string

const (
	MemberInvited MemberStatus = "invited"
	MemberActive  MemberStatus = "active"
	MemberRemoved MemberStatus = "removed"
)

// TeamMember is a developer attached to a project.
type TeamMember struct {
	UserID   UserID       `json:"user_id"`
	Status   MemberStatus `json:"status"`
	JoinedAt time.Time    `json:"joined_at"`
}

// Project groups tasks under one client. The client is required from
// creation; the PM is optional until one is assigned.
type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Client      UserID        `json:"client"`
	Manager     OptionalUser  `json:"project_manager"`
	Status      ProjectStatus `json:"status"`
	Budget      int64         `json:"budget,omitempty"`
	Deadline    *time.Time    `json:"deadline,omitempty"`
	TechStack   []string      `json:"tech_stack,omitempty"`
	TotalXP     int           `json:"total_xp"`
	TeamMembers []TeamMember  `json:"team_members"`
	CreatedAt   time.Time     `json:"created_at"`
}

// IsActiveMember reports whether id is an active developer on the team.
func (p *Project) IsActiveMember(id UserID) bool {
	for _, m := range p.TeamMembers {
		if m.UserID == id && m.Status == MemberActive {
			return true
		}
	}
	return false
}

// CanView reports whether id may read the project.
func (p *Project) CanView(id UserID) bool {
	return p.Client == id || p.Manager.Is(id) || p.IsActiveMember(id)
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TaskStatus is a task's board column. Done is terminal for XP purposes.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "inProgress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// Priority of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Difficulty of a task.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

const (
	MinTaskXP     = 10
	MaxTaskXP     = 1000
	DefaultTaskXP = 50
)

// Task is a unit of work inside a project.
// CompletedAt records the first arrival in done and is never cleared.
// CompletedBy is set when a completion pays its assignee; a task pays once.
type Task struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	AssignedTo  OptionalUser `json:"assigned_to"`
	Status      TaskStatus   `json:"status"`
	Priority    Priority     `json:"priority"`
	Difficulty  Difficulty   `json:"difficulty"`
	XPPoints    int          `json:"xp_points"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	CompletedBy OptionalUser `json:"completed_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Paid reports whether the task's completion has already credited an
// assignee.
func (t *Task) Paid() bool {
	return t.CompletedBy.Valid
}
