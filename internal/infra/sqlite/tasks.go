package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/guildboard/guildboard/internal/domain"
)

// ─── Task Operations ────────────────────────────────────────────────────────

const taskColumns = `id, project_id, title, description, assigned_to, status, priority,
	difficulty, xp_points, due_date, completed_at, completed_by, created_at, updated_at`

// InsertTask stores a new task.
func (r *repos) InsertTask(ctx context.Context, t *domain.Task) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Title, t.Description, nullUser(t.AssignedTo), string(t.Status),
		string(t.Priority), string(t.Difficulty), t.XPPoints, nullTime(t.DueDate),
		nullTime(t.CompletedAt), nullUser(t.CompletedBy), fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads one task.
func (r *repos) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(domain.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// SaveTask overwrites every mutable column.
func (r *repos) SaveTask(ctx context.Context, t *domain.Task) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE tasks SET
			title        = ?,
			description  = ?,
			assigned_to  = ?,
			status       = ?,
			priority     = ?,
			difficulty   = ?,
			xp_points    = ?,
			due_date     = ?,
			completed_at = ?,
			completed_by = ?,
			updated_at   = ?
		WHERE id = ?
	`, t.Title, t.Description, nullUser(t.AssignedTo), string(t.Status), string(t.Priority),
		string(t.Difficulty), t.XPPoints, nullTime(t.DueDate), nullTime(t.CompletedAt),
		nullUser(t.CompletedBy), fmtTime(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound(domain.ErrTaskNotFound)
	}
	return nil
}

// DeleteTask removes a task.
func (r *repos) DeleteTask(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound(domain.ErrTaskNotFound)
	}
	return nil
}

// ListTasksByProject returns a project's tasks, newest first.
func (r *repos) ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE project_id = ? ORDER BY created_at DESC, rowid DESC`, projectID)
}

// ListTasksByAssignee returns the tasks assigned to id, newest first.
func (r *repos) ListTasksByAssignee(ctx context.Context, id domain.UserID) ([]domain.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE assigned_to = ? ORDER BY created_at DESC, rowid DESC`, string(id))
}

func (r *repos) listTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.Task, error) {
	var (
		t                            domain.Task
		status, priority, difficulty string
		created, updated             string
		assigned, completedBy        sql.NullString
		due, completedAt             sql.NullString
	)
	err := s.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &assigned, &status, &priority,
		&difficulty, &t.XPPoints, &due, &completedAt, &completedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.AssignedTo = optionalUser(assigned)
	t.CompletedBy = optionalUser(completedBy)
	t.Status = domain.TaskStatus(status)
	t.Priority = domain.Priority(priority)
	t.Difficulty = domain.Difficulty(difficulty)
	if t.DueDate, err = parseNullTime(due); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &t, nil
}
