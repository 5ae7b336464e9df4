package board

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/domain"
)

// CreateTaskInput describes a new task. Zero XPPoints means the default.
type CreateTaskInput struct {
	ProjectID   string              `json:"project_id" validate:"required"`
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description" validate:"max=1000"`
	AssignedTo  domain.OptionalUser `json:"assigned_to"`
	Priority    domain.Priority     `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Difficulty  domain.Difficulty   `json:"difficulty" validate:"omitempty,oneof=easy medium hard expert"`
	XPPoints    int                 `json:"xp_points" validate:"omitempty,min=10,max=1000"`
	DueDate     *time.Time          `json:"due_date"`
}

// CreateTask adds a task to a project. The project's total XP grows by the
// task's reward and the manager earns the flat task reward.
func (s *Service) CreateTask(ctx context.Context, requester domain.UserID, in CreateTaskInput) (*domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := domain.ValidateTaskTitle(in.Title); err != nil {
		return nil, err
	}
	if len([]rune(in.Description)) > domain.MaxDescriptionLen {
		return nil, domain.Validationf("description cannot exceed %d characters", domain.MaxDescriptionLen)
	}
	if in.XPPoints == 0 {
		in.XPPoints = domain.DefaultTaskXP
	}
	if err := domain.ValidateTaskXP(in.XPPoints); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, domain.Validationf("invalid priority %q", in.Priority)
	}
	if in.Difficulty == "" {
		in.Difficulty = domain.DifficultyMedium
	}
	if !in.Difficulty.Valid() {
		return nil, domain.Validationf("invalid difficulty %q", in.Difficulty)
	}

	now := s.now()
	t := &domain.Task{
		ID:          s.newID(),
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		Status:      domain.StatusTodo,
		Priority:    in.Priority,
		Difficulty:  in.Difficulty,
		XPPoints:    in.XPPoints,
		DueDate:     in.DueDate,
		CompletedBy: domain.NoUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	fx := &effects{}
	err := s.store.WithinTx(ctx, func(tx domain.Repos) error {
		p, err := tx.GetProject(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		if err := requireManager(p, requester); err != nil {
			return err
		}
		if id, ok := t.AssignedTo.Get(); ok && !p.IsActiveMember(id) {
			return domain.Validation(domain.ErrNotActiveMember)
		}
		if err := tx.InsertTask(ctx, t); err != nil {
			return err
		}
		if err := tx.AddProjectXP(ctx, p.ID, t.XPPoints); err != nil {
			return err
		}
		_, err = s.creditIfPresent(ctx, tx, fx, requester, s.rewards.TaskCreatedXP,
			domain.ReasonTaskCreated, p.ID, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.commit(ctx, fx)
	s.log.WithFields(log.Fields{"task": t.ID, "project": t.ProjectID, "xp": t.XPPoints}).Info("task created")
	return t, nil
}

// DeleteTask removes a task and takes its reward back out of the project's
// total. XP already paid for it stays paid.
func (s *Service) DeleteTask(ctx context.Context, requester domain.UserID, taskID string) error {
	err := s.store.WithinTx(ctx, func(tx domain.Repos) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		p, err := tx.GetProject(ctx, t.ProjectID)
		if err != nil {
			return err
		}
		if err := requireManager(p, requester); err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		return tx.AddProjectXP(ctx, p.ID, -t.XPPoints)
	})
	if err != nil {
		return err
	}
	s.log.WithField("task", taskID).Info("task deleted")
	return nil
}

// ListProjectTasks returns a project's tasks, optionally filtered by status.
func (s *Service) ListProjectTasks(ctx context.Context, requester domain.UserID, projectID string, status domain.TaskStatus) ([]domain.Task, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := requireView(p, requester); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return filterStatus(tasks, status), nil
}

// ListMyTasks returns the tasks assigned to requester.
func (s *Service) ListMyTasks(ctx context.Context, requester domain.UserID, status domain.TaskStatus) ([]domain.Task, error) {
	tasks, err := s.store.ListTasksByAssignee(ctx, requester)
	if err != nil {
		return nil, err
	}
	return filterStatus(tasks, status), nil
}

func filterStatus(tasks []domain.Task, status domain.TaskStatus) []domain.Task {
	if status == "" {
		return tasks
	}
	out := tasks[:0]
	for _, t := range tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
