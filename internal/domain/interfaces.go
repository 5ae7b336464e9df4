package domain

import (
	"context"
	"time"
)

// ─── Repository Interfaces ──────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// AccountRepo persists accounts and their ledgers.
type AccountRepo interface {
	InsertAccount(ctx context.Context, a *Account) error
	// GetAccount returns ErrAccountNotFound when id is unknown.
	GetAccount(ctx context.Context, id UserID) (*Account, error)
	// SaveLedger writes xp, level and tasks_completed.
	SaveLedger(ctx context.Context, a *Account) error
	InsertBadge(ctx context.Context, id UserID, award BadgeAward) error
	// ListAccountsByRole orders by level, then xp, highest first.
	ListAccountsByRole(ctx context.Context, role Role) ([]Account, error)
}

// ProjectRepo persists projects and their teams.
type ProjectRepo interface {
	InsertProject(ctx context.Context, p *Project) error
	// GetProject returns ErrProjectNotFound when id is unknown.
	GetProject(ctx context.Context, id string) (*Project, error)
	// SaveProject writes manager and status. total_xp moves via AddProjectXP.
	SaveProject(ctx context.Context, p *Project) error
	AddProjectXP(ctx context.Context, id string, delta int) error
	UpsertTeamMember(ctx context.Context, projectID string, m TeamMember) error
	// ListProjectsForUser returns projects id is client, manager or an active
	// member of, newest first.
	ListProjectsForUser(ctx context.Context, id UserID) ([]Project, error)
}

// TaskRepo persists tasks.
type TaskRepo interface {
	InsertTask(ctx context.Context, t *Task) error
	// GetTask returns ErrTaskNotFound when id is unknown.
	GetTask(ctx context.Context, id string) (*Task, error)
	SaveTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasksByProject(ctx context.Context, projectID string) ([]Task, error)
	ListTasksByAssignee(ctx context.Context, id UserID) ([]Task, error)
}

// EventRepo is the append-only XP audit trail.
type EventRepo interface {
	InsertXPEvent(ctx context.Context, e *XPEvent) error
	ListXPEvents(ctx context.Context, id UserID, limit int) ([]XPEvent, error)
}

// Repos bundles every repository. A transaction exposes the same surface.
type Repos interface {
	AccountRepo
	ProjectRepo
	TaskRepo
	EventRepo
}

// Store is the persistence root. WithinTx runs fn atomically: if fn returns
// an error nothing it wrote is visible afterwards.
type Store interface {
	Repos
	WithinTx(ctx context.Context, fn func(tx Repos) error) error
}

// ─── Engagement Events ──────────────────────────────────────────────────────

// EventType names an engagement notification.
type EventType string

const (
	EventTaskCompleted EventType = "task_completed"
	EventLevelUp       EventType = "level_up"
	EventBadgeAwarded  EventType = "badge_awarded"
)

// EngagementEvent is broadcast after a completion commits.
type EngagementEvent struct {
	Type      EventType `json:"type"`
	UserID    UserID    `json:"user_id"`
	ProjectID string    `json:"project_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	XP        int       `json:"xp,omitempty"`
	Level     int       `json:"level,omitempty"`
	BadgeID   string    `json:"badge_id,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers engagement events. Implementations are best effort.
type Publisher interface {
	Publish(ctx context.Context, e EngagementEvent) error
}
