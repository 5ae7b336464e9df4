package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/guildboard/guildboard/internal/domain"
)

// ─── Account Operations ─────────────────────────────────────────────────────

// InsertAccount stores a new account. A duplicate email is a conflict.
func (r *repos) InsertAccount(ctx context.Context, a *domain.Account) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, role, xp, level, tasks_completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(a.ID), a.Name, a.Email, string(a.Role), a.XP, a.Level, a.TasksCompleted, fmtTime(a.CreatedAt))
	if isUniqueViolation(err) {
		return domain.Conflict(domain.ErrEmailTaken)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount loads an account and its badges, oldest award first.
func (r *repos) GetAccount(ctx context.Context, id domain.UserID) (*domain.Account, error) {
	var (
		a       domain.Account
		role    string
		created string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, email, role, xp, level, tasks_completed, created_at
		FROM accounts WHERE id = ?
	`, string(id)).Scan(&a.ID, &a.Name, &a.Email, &role, &a.XP, &a.Level, &a.TasksCompleted, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(domain.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	a.Role = domain.Role(role)
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("get account: created_at: %w", err)
	}

	badges, err := r.listBadges(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Badges = badges
	return &a, nil
}

func (r *repos) listBadges(ctx context.Context, id domain.UserID) ([]domain.BadgeAward, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT badge_id, name, earned_at FROM badge_awards
		WHERE user_id = ? ORDER BY earned_at, rowid
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	out := []domain.BadgeAward{}
	for rows.Next() {
		var (
			b      domain.BadgeAward
			earned string
		)
		if err := rows.Scan(&b.BadgeID, &b.Name, &earned); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		if b.EarnedAt, err = parseTime(earned); err != nil {
			return nil, fmt.Errorf("scan badge: earned_at: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListAccountsByRole returns every account with role, highest level first.
func (r *repos) ListAccountsByRole(ctx context.Context, role domain.Role) ([]domain.Account, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, email, role, xp, level, tasks_completed, created_at
		FROM accounts WHERE role = ?
		ORDER BY level DESC, xp DESC, created_at, rowid
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	out := []domain.Account{}
	for rows.Next() {
		var (
			a                 domain.Account
			roleName, created string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &roleName, &a.XP, &a.Level, &a.TasksCompleted, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Role = domain.Role(roleName)
		if a.CreatedAt, err = parseTime(created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan account: created_at: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	rows.Close()

	// Badges load only after the cursor is released: the store runs on one
	// connection.
	for i := range out {
		if out[i].Badges, err = r.listBadges(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SaveLedger persists xp, level and tasks_completed.
func (r *repos) SaveLedger(ctx context.Context, a *domain.Account) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET xp = ?, level = ?, tasks_completed = ? WHERE id = ?
	`, a.XP, a.Level, a.TasksCompleted, string(a.ID))
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound(domain.ErrAccountNotFound)
	}
	return nil
}

// InsertBadge records an award. The (user, badge) key rejects duplicates.
func (r *repos) InsertBadge(ctx context.Context, id domain.UserID, award domain.BadgeAward) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO badge_awards (user_id, badge_id, name, earned_at) VALUES (?, ?, ?, ?)
	`, string(id), award.BadgeID, award.Name, fmtTime(award.EarnedAt))
	if isUniqueViolation(err) {
		return domain.Conflict(fmt.Errorf("badge %s already awarded", award.BadgeID))
	}
	if err != nil {
		return fmt.Errorf("insert badge: %w", err)
	}
	return nil
}

// ─── XP Events ──────────────────────────────────────────────────────────────

// InsertXPEvent appends to the audit trail and fills e.ID.
func (r *repos) InsertXPEvent(ctx context.Context, e *domain.XPEvent) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO xp_events (user_id, amount, reason, project_id, task_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(e.UserID), e.Amount, string(e.Reason), nullString(e.ProjectID), nullString(e.TaskID), fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert xp event: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("xp event id: %w", err)
	}
	return nil
}

// ListXPEvents returns the newest events for a user.
func (r *repos) ListXPEvents(ctx context.Context, id domain.UserID, limit int) ([]domain.XPEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, amount, reason, project_id, task_id, created_at
		FROM xp_events WHERE user_id = ? ORDER BY id DESC LIMIT ?
	`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("list xp events: %w", err)
	}
	defer rows.Close()

	out := []domain.XPEvent{}
	for rows.Next() {
		var (
			e                domain.XPEvent
			reason, created  string
			project, taskRef sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &reason, &project, &taskRef, &created); err != nil {
			return nil, fmt.Errorf("scan xp event: %w", err)
		}
		e.Reason = domain.XPReason(reason)
		e.ProjectID = project.String
		e.TaskID = taskRef.String
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("scan xp event: created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
