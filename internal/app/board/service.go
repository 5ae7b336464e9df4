// Package board runs the project board: users, projects and tasks, and the
// XP distribution that happens when a task is finished.
//
// Every mutating operation runs inside one store transaction. Ledger credits,
// badge awards, audit rows and aggregate counters either all land or none
// do. Metrics, logs and engagement events are emitted only after commit.
package board

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/app/engagement"
	"github.com/guildboard/guildboard/internal/domain"
	"github.com/guildboard/guildboard/internal/infra/observability"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// PMBonusPercent of a task's XP goes to the project manager.
	PMBonusPercent = 20
	// ClientBonusPercent of a task's XP goes to the project client.
	ClientBonusPercent = 10
)

// PMBonus is floor(xp * 0.2).
func PMBonus(xp int) int { return xp * PMBonusPercent / 100 }

// ClientBonus is floor(xp * 0.1).
func ClientBonus(xp int) int { return xp * ClientBonusPercent / 100 }

// Rewards are the flat credits paid outside task completion.
type Rewards struct {
	ProjectCreatedXP int
	TaskCreatedXP    int
}

// DefaultRewards returns the standard flat rewards.
func DefaultRewards() Rewards {
	return Rewards{ProjectCreatedXP: 50, TaskCreatedXP: 10}
}

// ─── Service ────────────────────────────────────────────────────────────────

// Service owns every board operation.
type Service struct {
	store   domain.Store
	pub     domain.Publisher
	tracer  *observability.Tracer
	log     *log.Logger
	now     func() time.Time
	newID   func() string
	rewards Rewards
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher sets where engagement events go after commit.
func WithPublisher(p domain.Publisher) Option { return func(s *Service) { s.pub = p } }

// WithTracer records a span per task update.
func WithTracer(t *observability.Tracer) Option { return func(s *Service) { s.tracer = t } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDs replaces the uuid generator.
func WithIDs(next func() string) Option { return func(s *Service) { s.newID = next } }

// WithRewards overrides the flat rewards.
func WithRewards(r Rewards) Option { return func(s *Service) { s.rewards = r } }

// NewService creates a board service over store.
func NewService(store domain.Store, logger *log.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		pub:     noopPublisher{},
		log:     logger,
		now:     time.Now,
		newID:   uuid.NewString,
		rewards: DefaultRewards(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = log.StandardLogger()
	}
	if s.pub == nil {
		s.pub = noopPublisher{}
	}
	return s
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.EngagementEvent) error { return nil }

// ─── Ledger Effects ─────────────────────────────────────────────────────────

// credit is one ledger credit made inside a transaction.
type credit struct {
	User   domain.UserID
	Amount int
	Reason domain.XPReason
	Result engagement.CreditResult
}

// award is one badge granted inside a transaction.
type award struct {
	User  domain.UserID
	Badge engagement.Badge
}

// effects collects what a transaction did so it can be reported after commit.
type effects struct {
	credits []credit
	awards  []award
	events  []domain.EngagementEvent
}

// applyCredit credits a loaded account, persists its ledger and writes the
// audit row.
func (s *Service) applyCredit(ctx context.Context, tx domain.Repos, fx *effects, a *domain.Account,
	amount int, reason domain.XPReason, projectID, taskID string) (engagement.CreditResult, error) {
	res, err := engagement.Credit(a, amount)
	if err != nil {
		return res, err
	}
	if err := tx.SaveLedger(ctx, a); err != nil {
		return res, err
	}
	if err := tx.InsertXPEvent(ctx, &domain.XPEvent{
		UserID:    a.ID,
		Amount:    amount,
		Reason:    reason,
		ProjectID: projectID,
		TaskID:    taskID,
		CreatedAt: s.now(),
	}); err != nil {
		return res, err
	}
	fx.credits = append(fx.credits, credit{User: a.ID, Amount: amount, Reason: reason, Result: res})
	if res.LeveledUp {
		fx.events = append(fx.events, domain.EngagementEvent{
			Type:      domain.EventLevelUp,
			UserID:    a.ID,
			ProjectID: projectID,
			TaskID:    taskID,
			Level:     res.Level,
			At:        s.now(),
		})
	}
	return res, nil
}

// creditIfPresent loads id and credits it. A missing account or a
// non-positive amount is skipped and reported as 0.
func (s *Service) creditIfPresent(ctx context.Context, tx domain.Repos, fx *effects, id domain.UserID,
	amount int, reason domain.XPReason, projectID, taskID string) (int, error) {
	if amount <= 0 {
		return 0, nil
	}
	a, err := tx.GetAccount(ctx, id)
	if errors.Is(err, domain.ErrAccountNotFound) {
		s.log.WithFields(log.Fields{"user": id, "reason": reason}).Debug("skipping credit for missing account")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if _, err := s.applyCredit(ctx, tx, fx, a, amount, reason, projectID, taskID); err != nil {
		return 0, err
	}
	return amount, nil
}

// commit reports a committed transaction: metrics, then best-effort events.
func (s *Service) commit(ctx context.Context, fx *effects) {
	for _, c := range fx.credits {
		observability.XPCredited.WithLabelValues(string(c.Reason)).Add(float64(c.Amount))
		if c.Result.LeveledUp {
			observability.LevelUps.Inc()
		}
	}
	for _, a := range fx.awards {
		observability.BadgesAwarded.WithLabelValues(a.Badge.ID).Inc()
	}
	for _, e := range fx.events {
		err := s.pub.Publish(ctx, e)
		result := "ok"
		if err != nil {
			result = "error"
			s.log.WithError(err).WithField("type", e.Type).Warn("engagement event not published")
		}
		observability.EventsPublished.WithLabelValues(string(e.Type), result).Inc()
	}
}

// ─── Access Helpers ─────────────────────────────────────────────────────────

func requireManager(p *domain.Project, requester domain.UserID) error {
	if !p.Manager.Is(requester) {
		return domain.Forbidden(domain.ErrNotProjectPM)
	}
	return nil
}

func requireView(p *domain.Project, requester domain.UserID) error {
	if !p.CanView(requester) {
		return domain.Forbidden(domain.ErrProjectAccess)
	}
	return nil
}
