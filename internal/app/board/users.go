package board

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/app/engagement"
	"github.com/guildboard/guildboard/internal/domain"
)

// CreateUserInput is what a new account needs.
type CreateUserInput struct {
	Name  string      `json:"name" validate:"required,max=100"`
	Email string      `json:"email" validate:"required,email"`
	Role  domain.Role `json:"role" validate:"required,oneof=client pm developer"`
}

// CreateUser opens an account with an empty ledger.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*domain.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return nil, domain.Validationf("name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, domain.Validationf("invalid email %q", in.Email)
	}
	if !in.Role.Valid() {
		return nil, domain.Validationf("role must be one of client, pm, developer")
	}

	a := domain.NewAccount(domain.UserID(s.newID()), in.Name, in.Email, in.Role, s.now())
	if err := s.store.InsertAccount(ctx, a); err != nil {
		return nil, err
	}
	a.Badges = []domain.BadgeAward{}
	s.log.WithFields(log.Fields{"user": a.ID, "role": a.Role}).Info("account created")
	return a, nil
}

// LedgerView is an account with its level progress and recent XP history.
type LedgerView struct {
	Account  *domain.Account     `json:"account"`
	Progress engagement.Progress `json:"progress"`
	Recent   []domain.XPEvent    `json:"recent_xp"`
}

// Ledger returns the account snapshot for id.
func (s *Service) Ledger(ctx context.Context, id domain.UserID, recent int) (*LedgerView, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListXPEvents(ctx, id, recent)
	if err != nil {
		return nil, err
	}
	return &LedgerView{
		Account:  a,
		Progress: engagement.ProgressOf(a),
		Recent:   events,
	}, nil
}

// ListDevelopers returns developer accounts, highest level first. Only
// project managers browse developers.
func (s *Service) ListDevelopers(ctx context.Context, requester domain.UserID) ([]domain.Account, error) {
	a, err := s.store.GetAccount(ctx, requester)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, domain.Forbidden(domain.ErrManagerOnly)
	}
	if err != nil {
		return nil, err
	}
	if a.Role != domain.RoleManager {
		return nil, domain.Forbidden(domain.ErrManagerOnly)
	}
	return s.store.ListAccountsByRole(ctx, domain.RoleDeveloper)
}
