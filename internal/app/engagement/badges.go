package engagement

import (
	"time"

	"github.com/guildboard/guildboard/internal/domain"
)

// ─── Badge Table ────────────────────────────────────────────────────────────

// Field is the ledger counter a badge criterion is measured against.
type Field string

const (
	FieldTasksCompleted Field = "tasksCompleted"
	FieldLevel          Field = "level"
	FieldXP             Field = "xp"

	// Dormant fields. No ledger counter backs them, so badges keyed on them
	// are published in the table but never awarded.
	FieldTasksInDay      Field = "tasksInDay"
	FieldProjectsCreated Field = "projectsCreated"
	FieldProjectsManaged Field = "projectsManaged"
)

// Dormant reports whether f has no live counter behind it.
func (f Field) Dormant() bool {
	switch f {
	case FieldTasksInDay, FieldProjectsCreated, FieldProjectsManaged:
		return true
	}
	return false
}

// Criterion is a single threshold predicate: value(Field) >= Threshold.
type Criterion struct {
	Field     Field `json:"field"`
	Threshold int   `json:"threshold"`
}

// Badge is an immutable badge definition.
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Criterion   Criterion `json:"criteria"`
	Dormant     bool      `json:"dormant,omitempty"`
}

// BadgeRef is the award summary handed back to callers.
type BadgeRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Ref trims b to its award summary.
func (b Badge) Ref() BadgeRef {
	return BadgeRef{ID: b.ID, Name: b.Name, Icon: b.Icon}
}

var badgeTable = []Badge{
	{ID: "first_quest", Name: "First Quest", Description: "Complete your first task", Icon: "🎯", Criterion: Criterion{FieldTasksCompleted, 1}},
	{ID: "task_warrior", Name: "Task Warrior", Description: "Complete 10 tasks", Icon: "⚔️", Criterion: Criterion{FieldTasksCompleted, 10}},
	{ID: "task_master", Name: "Task Master", Description: "Complete 50 tasks", Icon: "🏆", Criterion: Criterion{FieldTasksCompleted, 50}},
	{ID: "legend", Name: "Legend", Description: "Complete 100 tasks", Icon: "👑", Criterion: Criterion{FieldTasksCompleted, 100}},
	{ID: "level_5", Name: "Rising Star", Description: "Reach Level 5", Icon: "⭐", Criterion: Criterion{FieldLevel, 5}},
	{ID: "level_10", Name: "Elite Adventurer", Description: "Reach Level 10", Icon: "💫", Criterion: Criterion{FieldLevel, 10}},
	{ID: "level_25", Name: "Epic Hero", Description: "Reach Level 25", Icon: "🌟", Criterion: Criterion{FieldLevel, 25}},
	{ID: "xp_500", Name: "XP Hunter", Description: "Earn 500 total XP", Icon: "💰", Criterion: Criterion{FieldXP, 500}},
	{ID: "xp_1000", Name: "XP Collector", Description: "Earn 1000 total XP", Icon: "💎", Criterion: Criterion{FieldXP, 1000}},
	{ID: "speed_demon", Name: "Speed Demon", Description: "Complete 5 tasks in one day", Icon: "⚡", Criterion: Criterion{FieldTasksInDay, 5}},
	{ID: "project_starter", Name: "Quest Giver", Description: "Create your first project", Icon: "📋", Criterion: Criterion{FieldProjectsCreated, 1}},
	{ID: "guild_master", Name: "Guild Master", Description: "Manage 5 projects", Icon: "👨‍💼", Criterion: Criterion{FieldProjectsManaged, 5}},
}

func init() {
	for i := range badgeTable {
		badgeTable[i].Dormant = badgeTable[i].Criterion.Field.Dormant()
	}
}

// Badges returns a copy of the badge table in its canonical order.
func Badges() []Badge {
	out := make([]Badge, len(badgeTable))
	copy(out, badgeTable)
	return out
}

// LookupBadge finds a definition by id.
func LookupBadge(id string) (Badge, bool) {
	for _, b := range badgeTable {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// ─── Evaluation ─────────────────────────────────────────────────────────────

// valueOf reads the counter a criterion measures. ok is false for dormant
// fields.
func valueOf(a *domain.Account, f Field) (v int, ok bool) {
	switch f {
	case FieldTasksCompleted:
		return a.TasksCompleted, true
	case FieldLevel:
		return LevelFor(a.XP), true
	case FieldXP:
		return a.XP, true
	}
	return 0, false
}

// Eligible reports whether the account meets b's criterion, regardless of
// whether it already holds b.
func Eligible(a *domain.Account, b Badge) bool {
	v, ok := valueOf(a, b.Criterion.Field)
	return ok && v >= b.Criterion.Threshold
}

// Evaluate returns every badge the account qualifies for but does not yet
// hold, in table order. It does not modify a.
func Evaluate(a *domain.Account) []Badge {
	var out []Badge
	for _, b := range badgeTable {
		if a.HasBadge(b.ID) {
			continue
		}
		if Eligible(a, b) {
			out = append(out, b)
		}
	}
	return out
}

// Award evaluates the account and appends an award for each newly eligible
// badge. A second call with no intervening ledger change returns nothing.
func Award(a *domain.Account, now time.Time) []Badge {
	fresh := Evaluate(a)
	for _, b := range fresh {
		a.Badges = append(a.Badges, domain.BadgeAward{
			BadgeID:  b.ID,
			Name:     b.Name,
			EarnedAt: now,
		})
	}
	return fresh
}
