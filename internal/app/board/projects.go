package board

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/domain"
)

// CreateProjectInput describes a new project.
type CreateProjectInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Budget      int64      `json:"budget" validate:"gte=0"`
	Deadline    *time.Time `json:"deadline"`
	TechStack   []string   `json:"tech_stack" validate:"max=20,dive,required,max=50"`
}

// CreateProject opens a project owned by the requesting client and pays the
// client the flat project reward.
func (s *Service) CreateProject(ctx context.Context, requester domain.UserID, in CreateProjectInput) (*domain.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, domain.Validationf("title is required")
	}
	if in.Budget < 0 {
		return nil, domain.Validationf("budget cannot be negative")
	}

	p := &domain.Project{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Client:      requester,
		Manager:     domain.NoUser,
		Status:      domain.ProjectPending,
		Budget:      in.Budget,
		Deadline:    in.Deadline,
		TechStack:   in.TechStack,
		TeamMembers: []domain.TeamMember{},
		CreatedAt:   s.now(),
	}

	fx := &effects{}
	err := s.store.WithinTx(ctx, func(tx domain.Repos) error {
		client, err := tx.GetAccount(ctx, requester)
		if err != nil {
			return err
		}
		if client.Role != domain.RoleClient {
			return domain.Forbidden(domain.ErrClientOnly)
		}
		if err := tx.InsertProject(ctx, p); err != nil {
			return err
		}
		if s.rewards.ProjectCreatedXP > 0 {
			if _, err := s.applyCredit(ctx, tx, fx, client, s.rewards.ProjectCreatedXP,
				domain.ReasonProjectCreated, p.ID, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.commit(ctx, fx)
	s.log.WithFields(log.Fields{"project": p.ID, "client": requester}).Info("project created")
	return p, nil
}

// AssignManager attaches a project manager and activates the project. Only
// the project's client may do this, and only once.
func (s *Service) AssignManager(ctx context.Context, requester domain.UserID, projectID string, pmID domain.UserID) (*domain.Project, error) {
	var out *domain.Project
	err := s.store.WithinTx(ctx, func(tx domain.Repos) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if p.Client != requester {
			return domain.Forbidden(domain.ErrNotClient)
		}
		if p.Manager.Valid {
			return domain.Conflict(domain.ErrManagerAssigned)
		}
		pm, err := tx.GetAccount(ctx, pmID)
		if err != nil {
			return err
		}
		if pm.Role != domain.RoleManager {
			return domain.Validationf("user %s is not a project manager", pmID)
		}
		p.Manager = domain.SomeUser(pmID)
		p.Status = domain.ProjectActive
		if err := tx.SaveProject(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(log.Fields{"project": projectID, "pm": pmID}).Info("project manager assigned")
	return out, nil
}

// AddTeamMember makes a developer an active member of the project.
func (s *Service) AddTeamMember(ctx context.Context, requester domain.UserID, projectID string, devID domain.UserID) (*domain.Project, error) {
	return s.setMember(ctx, requester, projectID, devID, domain.MemberActive)
}

// RemoveTeamMember marks a developer removed. Their past tasks keep their
// assignee.
func (s *Service) RemoveTeamMember(ctx context.Context, requester domain.UserID, projectID string, devID domain.UserID) (*domain.Project, error) {
	return s.setMember(ctx, requester, projectID, devID, domain.MemberRemoved)
}

func (s *Service) setMember(ctx context.Context, requester domain.UserID, projectID string, devID domain.UserID, status domain.MemberStatus) (*domain.Project, error) {
	var out *domain.Project
	err := s.store.WithinTx(ctx, func(tx domain.Repos) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if err := requireManager(p, requester); err != nil {
			return err
		}

		member := domain.TeamMember{UserID: devID, Status: status, JoinedAt: s.now()}
		if status == domain.MemberRemoved {
			if !p.IsActiveMember(devID) {
				return domain.NotFound(domain.ErrNotActiveMember)
			}
		} else {
			dev, err := tx.GetAccount(ctx, devID)
			if err != nil {
				return err
			}
			if dev.Role != domain.RoleDeveloper {
				return domain.Validationf("user %s is not a developer", devID)
			}
		}
		if err := tx.UpsertTeamMember(ctx, projectID, member); err != nil {
			return err
		}

		out, err = tx.GetProject(ctx, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(log.Fields{"project": projectID, "user": devID, "status": status}).Info("team updated")
	return out, nil
}

// GetProject returns a project visible to requester.
func (s *Service) GetProject(ctx context.Context, requester domain.UserID, projectID string) (*domain.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := requireView(p, requester); err != nil {
		return nil, err
	}
	return p, nil
}

// ListMyProjects returns the projects requester is client, manager or an
// active team member of, newest first, optionally filtered by status.
func (s *Service) ListMyProjects(ctx context.Context, requester domain.UserID, status domain.ProjectStatus) ([]domain.Project, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validation(domain.ErrProjectStatus)
	}
	projects, err := s.store.ListProjectsForUser(ctx, requester)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return projects, nil
	}
	out := projects[:0]
	for _, p := range projects {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}
