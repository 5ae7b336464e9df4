package board

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/app/engagement"
	"github.com/guildboard/guildboard/internal/domain"
	"github.com/guildboard/guildboard/internal/infra/observability"
)

// ─── Task Completion ────────────────────────────────────────────────────────
//
// A task pays out exactly once: on the first transition into done that
// happens while it has an assignee. Reaching done unassigned pays nobody and
// leaves the task payable by a later transition. The payout, in order:
//
//  1. assignee += xp, tasksCompleted += 1
//  2. badge evaluation for the assignee
//  3. project manager += floor(xp * 0.2), if the project has one
//  4. client += floor(xp * 0.1)
//  5. task.completedAt / completedBy
//
// All five steps share the caller's transaction.

// CompletionResult is returned by every task update. The XP fields are zero
// unless the update completed the task for an assignee.
type CompletionResult struct {
	Task        *domain.Task          `json:"task"`
	Completed   bool                  `json:"completed"`
	XPEarned    int                   `json:"xp_earned"`
	LeveledUp   bool                  `json:"leveled_up"`
	NewLevel    int                   `json:"new_level,omitempty"`
	NewBadges   []engagement.BadgeRef `json:"new_badges"`
	PMBonus     int                   `json:"pm_bonus"`
	ClientBonus int                   `json:"client_bonus"`
}

// UpdateTask applies a manager edit or an assignee status change. When the
// update moves the task into done for the first time, XP is distributed in
// the same transaction.
func (s *Service) UpdateTask(ctx context.Context, requester domain.UserID, taskID string, update domain.TaskUpdate) (*CompletionResult, error) {
	if update == nil {
		return nil, domain.Validation(domain.ErrEmptyTaskUpdate)
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "task.update", map[string]string{
		"task":      taskID,
		"requester": string(requester),
	})
	start := time.Now()

	var (
		result = &CompletionResult{NewBadges: []engagement.BadgeRef{}}
		fx     = &effects{}
		paid   bool
	)
	err := s.store.WithinTx(ctx, func(tx domain.Repos) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		p, err := tx.GetProject(ctx, t.ProjectID)
		if err != nil {
			return err
		}
		if err := authorizeUpdate(p, t, requester, update); err != nil {
			return err
		}

		oldStatus, oldXP := t.Status, t.XPPoints
		switch u := update.(type) {
		case domain.ManagerUpdate:
			if u.AssignedTo != nil {
				if id, ok := u.AssignedTo.Get(); ok && !p.IsActiveMember(id) {
					return domain.Validation(domain.ErrNotActiveMember)
				}
			}
			u.Apply(t)
		case domain.StatusUpdate:
			t.Status = u.Status
		}
		if t.XPPoints != oldXP {
			if err := tx.AddProjectXP(ctx, p.ID, t.XPPoints-oldXP); err != nil {
				return err
			}
		}

		now := s.now()
		if completes(oldStatus, t) {
			result.Completed = true
			if _, ok := t.AssignedTo.Get(); ok {
				if err := s.distribute(ctx, tx, fx, t, p, result); err != nil {
					return err
				}
				t.CompletedBy = t.AssignedTo
				paid = true
			}
			if t.CompletedAt == nil {
				done := now
				t.CompletedAt = &done
			}
		}
		t.UpdatedAt = now
		if err := tx.SaveTask(ctx, t); err != nil {
			return err
		}
		result.Task = t
		return nil
	})

	span.SetAttr("completed", strconv.FormatBool(result.Completed))
	s.tracer.EndSpan(span, err)
	if err != nil {
		if result.Completed {
			observability.TaskCompletions.WithLabelValues("failed").Inc()
		}
		return nil, err
	}

	if result.Completed {
		observability.CompletionDuration.Observe(time.Since(start).Seconds())
		outcome := "unassigned"
		if paid {
			outcome = "credited"
		}
		observability.TaskCompletions.WithLabelValues(outcome).Inc()
		fields := log.Fields{"task": taskID, "outcome": outcome}
		if paid {
			fields["assignee"] = result.Task.CompletedBy.ID
			fields["xp"] = result.XPEarned
			fields["level_up"] = result.LeveledUp
			fields["badges"] = len(result.NewBadges)
		}
		s.log.WithFields(fields).Info("task completed")
	}
	s.commit(ctx, fx)
	return result, nil
}

// completes reports whether moving from old to t.Status enters done on a
// task that has not paid out yet.
func completes(old domain.TaskStatus, t *domain.Task) bool {
	return old != domain.StatusDone && t.Status == domain.StatusDone && !t.Paid()
}

// authorizeUpdate enforces who may send which update shape.
func authorizeUpdate(p *domain.Project, t *domain.Task, requester domain.UserID, update domain.TaskUpdate) error {
	isPM := p.Manager.Is(requester)
	switch update.(type) {
	case domain.ManagerUpdate:
		if !isPM {
			if t.AssignedTo.Is(requester) {
				return domain.Forbidden(domain.ErrStatusOnly)
			}
			return domain.Forbidden(domain.ErrNotProjectPM)
		}
	case domain.StatusUpdate:
		if !isPM && !t.AssignedTo.Is(requester) {
			return domain.Forbidden(domain.ErrNotTaskEditor)
		}
	default:
		return domain.Validationf("unsupported task update %T", update)
	}
	return nil
}

// distribute pays the assignee, manager and client for t. The assignee must
// have an account; missing manager or client accounts forfeit their bonus.
func (s *Service) distribute(ctx context.Context, tx domain.Repos, fx *effects, t *domain.Task, p *domain.Project, result *CompletionResult) error {
	assigneeID, _ := t.AssignedTo.Get()
	assignee, err := tx.GetAccount(ctx, assigneeID)
	if err != nil {
		return fmt.Errorf("assignee %s: %w", assigneeID, err)
	}

	engagement.IncrementTasksCompleted(assignee)
	res, err := s.applyCredit(ctx, tx, fx, assignee, t.XPPoints, domain.ReasonTaskCompleted, p.ID, t.ID)
	if err != nil {
		return err
	}
	result.XPEarned = t.XPPoints
	result.LeveledUp = res.LeveledUp
	result.NewLevel = res.Level

	now := s.now()
	for _, b := range engagement.Award(assignee, now) {
		if err := tx.InsertBadge(ctx, assignee.ID, domain.BadgeAward{BadgeID: b.ID, Name: b.Name, EarnedAt: now}); err != nil {
			return err
		}
		result.NewBadges = append(result.NewBadges, b.Ref())
		fx.awards = append(fx.awards, award{User: assignee.ID, Badge: b})
		fx.events = append(fx.events, domain.EngagementEvent{
			Type:      domain.EventBadgeAwarded,
			UserID:    assignee.ID,
			ProjectID: p.ID,
			TaskID:    t.ID,
			BadgeID:   b.ID,
			At:        now,
		})
	}
	fx.events = append([]domain.EngagementEvent{{
		Type:      domain.EventTaskCompleted,
		UserID:    assignee.ID,
		ProjectID: p.ID,
		TaskID:    t.ID,
		XP:        t.XPPoints,
		Level:     res.Level,
		At:        now,
	}}, fx.events...)

	if pmID, ok := p.Manager.Get(); ok {
		result.PMBonus, err = s.creditIfPresent(ctx, tx, fx, pmID, PMBonus(t.XPPoints),
			domain.ReasonPMBonus, p.ID, t.ID)
		if err != nil {
			return err
		}
	}
	result.ClientBonus, err = s.creditIfPresent(ctx, tx, fx, p.Client, ClientBonus(t.XPPoints),
		domain.ReasonClientBonus, p.ID, t.ID)
	return err
}
