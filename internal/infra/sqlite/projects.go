package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guildboard/guildboard/internal/domain"
)

// ─── Project Operations ─────────────────────────────────────────────────────

// InsertProject stores a project and any initial team members.
func (r *repos) InsertProject(ctx context.Context, p *domain.Project) error {
	stack, err := json.Marshal(nonNil(p.TechStack))
	if err != nil {
		return fmt.Errorf("marshal tech stack: %w", err)
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO projects (id, title, description, client_id, manager_id, status,
			budget, deadline, tech_stack, total_xp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Title, p.Description, string(p.Client), nullUser(p.Manager), string(p.Status),
		p.Budget, nullTime(p.Deadline), string(stack), p.TotalXP, fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	for _, m := range p.TeamMembers {
		if err := r.UpsertTeamMember(ctx, p.ID, m); err != nil {
			return err
		}
	}
	return nil
}

// GetProject loads a project with its team.
func (r *repos) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var (
		p                     domain.Project
		client, status, stack string
		created               string
		manager, deadline     sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, title, description, client_id, manager_id, status,
			budget, deadline, tech_stack, total_xp, created_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Title, &p.Description, &client, &manager, &status,
		&p.Budget, &deadline, &stack, &p.TotalXP, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(domain.ErrProjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	p.Client = domain.UserID(client)
	p.Manager = optionalUser(manager)
	p.Status = domain.ProjectStatus(status)
	if err := json.Unmarshal([]byte(stack), &p.TechStack); err != nil {
		return nil, fmt.Errorf("get project: tech_stack: %w", err)
	}
	if p.Deadline, err = parseNullTime(deadline); err != nil {
		return nil, fmt.Errorf("get project: deadline: %w", err)
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("get project: created_at: %w", err)
	}

	members, err := r.listTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	p.TeamMembers = members
	return &p, nil
}

// ListProjectsForUser returns the projects id is client, manager or an
// active team member of, newest first.
func (r *repos) ListProjectsForUser(ctx context.Context, id domain.UserID) ([]domain.Project, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id FROM projects
		WHERE client_id = ? OR manager_id = ? OR id IN (
			SELECT project_id FROM team_members WHERE user_id = ? AND status = ?
		)
		ORDER BY created_at DESC, rowid DESC
	`, string(id), string(id), string(id), string(domain.MemberActive))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var ids []string
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, pid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list projects: %w", err)
	}
	rows.Close()

	out := make([]domain.Project, 0, len(ids))
	for _, pid := range ids {
		p, err := r.GetProject(ctx, pid)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *repos) listTeam(ctx context.Context, projectID string) ([]domain.TeamMember, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT user_id, status, joined_at FROM team_members
		WHERE project_id = ? ORDER BY joined_at, rowid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list team: %w", err)
	}
	defer rows.Close()

	out := []domain.TeamMember{}
	for rows.Next() {
		var (
			m              domain.TeamMember
			status, joined string
		)
		if err := rows.Scan(&m.UserID, &status, &joined); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		m.Status = domain.MemberStatus(status)
		if m.JoinedAt, err = parseTime(joined); err != nil {
			return nil, fmt.Errorf("scan team member: joined_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveProject persists the manager and status. total_xp moves only through
// AddProjectXP.
func (r *repos) SaveProject(ctx context.Context, p *domain.Project) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE projects SET manager_id = ?, status = ? WHERE id = ?
	`, nullUser(p.Manager), string(p.Status), p.ID)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound(domain.ErrProjectNotFound)
	}
	return nil
}

// AddProjectXP adjusts the project's total assignable XP by delta.
func (r *repos) AddProjectXP(ctx context.Context, id string, delta int) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE projects SET total_xp = total_xp + ? WHERE id = ?
	`, delta, id)
	if err != nil {
		return fmt.Errorf("add project xp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound(domain.ErrProjectNotFound)
	}
	return nil
}

// UpsertTeamMember inserts a member or updates their status.
func (r *repos) UpsertTeamMember(ctx context.Context, projectID string, m domain.TeamMember) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO team_members (project_id, user_id, status, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET
			status = excluded.status
	`, projectID, string(m.UserID), string(m.Status), fmtTime(m.JoinedAt))
	if err != nil {
		return fmt.Errorf("upsert team member: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
